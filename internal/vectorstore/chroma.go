package vectorstore

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
)

// ChromaConfig addresses one collection on a Chroma v2 server.
type ChromaConfig struct {
	Host       string
	APIKey     string
	Tenant     string
	Database   string
	Collection string
}

// ChromaStore keeps chunks in a Chroma collection. Embeddings are computed
// client side so both backends share one embedding model.
type ChromaStore struct {
	cfg      ChromaConfig
	embedder Embedder
	client   chroma.Client

	mu  sync.Mutex
	col chroma.Collection
}

var _ Store = (*ChromaStore)(nil)

type chromaOptions struct {
	httpClient *http.Client
}

type ChromaOption func(*chromaOptions)

func WithHTTPClient(c *http.Client) ChromaOption {
	return func(o *chromaOptions) {
		if c != nil {
			o.httpClient = c
		}
	}
}

func NewChromaStore(cfg ChromaConfig, embedder Embedder, opts ...ChromaOption) (*ChromaStore, error) {
	o := chromaOptions{httpClient: &http.Client{Timeout: 60 * time.Second}}
	for _, opt := range opts {
		opt(&o)
	}

	clientOpts := []chroma.ClientOption{
		chroma.WithBaseURL(cfg.Host),
		chroma.WithDatabaseAndTenant(cfg.Database, cfg.Tenant),
		chroma.WithHTTPClient(o.httpClient),
	}
	// A static header instead of the token provider, which rewrites the
	// client's header map on every request.
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, chroma.WithDefaultHeaders(map[string]string{
			string(chroma.XChromaTokenHeader): cfg.APIKey,
		}))
	}

	client, err := chroma.NewHTTPClient(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create chroma client: %w", err)
	}
	return &ChromaStore{cfg: cfg, embedder: embedder, client: client}, nil
}

// collection resolves the collection handle once. A failed lookup is
// retried on the next call. The pre-flight runs here too because the
// client records its result without locking.
func (s *ChromaStore) collection(ctx context.Context) (chroma.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.col != nil {
		return s.col, nil
	}

	if err := s.client.PreFlight(ctx); err != nil {
		return nil, fmt.Errorf("chroma pre-flight failed: %w", err)
	}
	col, err := s.client.GetOrCreateCollection(ctx, s.cfg.Collection,
		chroma.WithHNSWSpaceCreate(embeddings.COSINE),
		chroma.WithEmbeddingFunctionCreate(embedderFunction{s.embedder}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create collection %q: %w", s.cfg.Collection, err)
	}
	if col.ID() == "" {
		return nil, fmt.Errorf("collection %q: empty id in response", s.cfg.Collection)
	}
	s.col = col
	return col, nil
}

func (s *ChromaStore) Add(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	col, err := s.collection(ctx)
	if err != nil {
		return err
	}

	ids := make([]chroma.DocumentID, len(records))
	texts := make([]string, len(records))
	metas := make([]chroma.DocumentMetadata, len(records))
	for i, r := range records {
		ids[i] = chroma.DocumentID(r.ID)
		texts[i] = r.Document
		if metas[i], err = chroma.NewDocumentMetadataFromMap(r.Metadata); err != nil {
			return fmt.Errorf("chunk %s: %w", r.ID, err)
		}
	}

	err = col.Add(ctx,
		chroma.WithIDs(ids...),
		chroma.WithTexts(texts...),
		chroma.WithMetadatas(metas...),
	)
	if err != nil {
		return fmt.Errorf("chroma add failed: %w", err)
	}
	return nil
}

func (s *ChromaStore) Query(ctx context.Context, text string, n int) ([]Match, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}
	if n <= 0 {
		return []Match{}, nil
	}
	col, err := s.collection(ctx)
	if err != nil {
		return nil, err
	}

	res, err := col.Query(ctx,
		chroma.WithQueryTexts(text),
		chroma.WithNResults(n),
	)
	if err != nil {
		return nil, fmt.Errorf("chroma query failed: %w", err)
	}

	matches := []Match{}
	idGroups := res.GetIDGroups()
	if len(idGroups) == 0 {
		return matches, nil
	}
	var (
		docs  chroma.Documents
		metas chroma.DocumentMetadatas
		dists embeddings.Distances
	)
	if g := res.GetDocumentsGroups(); len(g) > 0 {
		docs = g[0]
	}
	if g := res.GetMetadatasGroups(); len(g) > 0 {
		metas = g[0]
	}
	if g := res.GetDistancesGroups(); len(g) > 0 {
		dists = g[0]
	}

	for i, id := range idGroups[0] {
		m := Match{ID: string(id), Metadata: map[string]any{}}
		if i < len(docs) && docs[i] != nil {
			m.Document = docs[i].ContentString()
		}
		if i < len(metas) && metas[i] != nil {
			m.Metadata = metadataMap(metas[i])
		}
		if i < len(dists) {
			// cosine space: distance = 1 - similarity
			m.Score = 1 - float64(dists[i])
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func (s *ChromaStore) DeleteDocument(ctx context.Context, documentID string) error {
	col, err := s.collection(ctx)
	if err != nil {
		return err
	}
	err = col.Delete(ctx, chroma.WithWhereDelete(chroma.EqString("document_id", documentID)))
	if err != nil {
		return fmt.Errorf("chroma delete failed: %w", err)
	}
	return nil
}

func metadataMap(md chroma.DocumentMetadata) map[string]any {
	out := map[string]any{}
	keyed, ok := md.(interface{ Keys() []string })
	if !ok {
		return out
	}
	for _, k := range keyed.Keys() {
		raw, ok := md.GetRaw(k)
		if !ok {
			continue
		}
		if v, ok := raw.(chroma.MetadataValue); ok {
			if val, ok := v.GetRaw(); ok {
				out[k] = val
			}
			continue
		}
		out[k] = raw
	}
	return out
}

// embedderFunction lets the chroma client embed texts with our Embedder.
type embedderFunction struct {
	embedder Embedder
}

func (f embedderFunction) EmbedDocuments(ctx context.Context, texts []string) ([]embeddings.Embedding, error) {
	vectors, err := embedChecked(ctx, f.embedder, texts)
	if err != nil {
		return nil, err
	}
	out := make([]embeddings.Embedding, len(vectors))
	for i, v := range vectors {
		out[i] = embeddings.NewEmbeddingFromFloat32(v)
	}
	return out, nil
}

func (f embedderFunction) EmbedQuery(ctx context.Context, text string) (embeddings.Embedding, error) {
	out, err := f.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}
