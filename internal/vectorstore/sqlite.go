package vectorstore

import (
	"container/heap"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
)

// SQLiteStore keeps chunk embeddings as BLOBs in the chunks table and
// searches them brute force from an in-memory copy.
type SQLiteStore struct {
	db       *sqlx.DB
	embedder Embedder

	mu     sync.RWMutex
	chunks map[string]storedChunk
}

var _ Store = (*SQLiteStore)(nil)

type storedChunk struct {
	document string
	metadata map[string]any
	vector   []float32 // normalized
}

type chunkRow struct {
	ID         string `db:"id"`
	Document   string `db:"document"`
	Metadata   string `db:"metadata"`
	Embedding  []byte `db:"embedding"`
	Dimensions int    `db:"dimensions"`
}

// NewSQLiteStore loads existing chunks from db. The chunks table is created
// by the db migrations.
func NewSQLiteStore(ctx context.Context, db *sqlx.DB, embedder Embedder) (*SQLiteStore, error) {
	s := &SQLiteStore{
		db:       db,
		embedder: embedder,
		chunks:   make(map[string]storedChunk),
	}
	if err := s.loadAll(ctx); err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) loadAll(ctx context.Context) error {
	var rows []chunkRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, document, metadata, embedding, dimensions FROM chunks`); err != nil {
		return err
	}
	for _, r := range rows {
		meta, err := decodeMetadata(r.Metadata)
		if err != nil {
			return fmt.Errorf("chunk %s: %w", r.ID, err)
		}
		s.chunks[r.ID] = storedChunk{
			document: r.Document,
			metadata: meta,
			vector:   blobToFloat32(r.Embedding, r.Dimensions),
		}
	}
	return nil
}

// Add embeds and writes records in one transaction. Existing IDs are replaced.
func (s *SQLiteStore) Add(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Document
	}
	vectors, err := embedChecked(ctx, s.embedder, texts)
	if err != nil {
		return err
	}

	staged := make(map[string]storedChunk, len(records))
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("chunk %s: failed to encode metadata: %w", r.ID, err)
		}
		vec := normalize(vectors[i])
		_, err = tx.ExecContext(ctx, `
			INSERT INTO chunks (id, document, metadata, embedding, dimensions)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				document=excluded.document, metadata=excluded.metadata,
				embedding=excluded.embedding, dimensions=excluded.dimensions
		`, r.ID, r.Document, string(meta), float32ToBlob(vec), len(vec))
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", r.ID, err)
		}

		// round-trip so cached metadata matches what a reload would see
		cached, err := decodeMetadata(string(meta))
		if err != nil {
			return err
		}
		staged[r.ID] = storedChunk{document: r.Document, metadata: cached, vector: vec}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	for id, c := range staged {
		s.chunks[id] = c
	}
	return nil
}

// Query returns the n chunks most similar to text.
func (s *SQLiteStore) Query(ctx context.Context, text string, n int) ([]Match, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}
	if n <= 0 {
		return []Match{}, nil
	}

	vectors, err := embedChecked(ctx, s.embedder, []string{text})
	if err != nil {
		return nil, err
	}
	query := normalize(vectors[0])

	s.mu.RLock()
	defer s.mu.RUnlock()

	h := &minHeap{}
	for id, c := range s.chunks {
		if len(c.vector) != len(query) {
			continue
		}
		score := dotProduct(query, c.vector)
		if h.Len() < n {
			heap.Push(h, scored{id: id, score: score})
		} else if score > (*h)[0].score {
			(*h)[0] = scored{id: id, score: score}
			heap.Fix(h, 0)
		}
	}

	matches := make([]Match, h.Len())
	for i := len(matches) - 1; i >= 0; i-- {
		top := heap.Pop(h).(scored)
		c := s.chunks[top.id]
		matches[i] = Match{ID: top.id, Document: c.document, Metadata: c.metadata, Score: top.score}
	}
	return matches, nil
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM chunks WHERE json_extract(metadata, '$.document_id') = ?`, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks of %s: %w", documentID, err)
	}
	for id, c := range s.chunks {
		if c.metadata["document_id"] == documentID {
			delete(s.chunks, id)
		}
	}
	return nil
}

// Count returns the number of indexed chunks.
func (s *SQLiteStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func decodeMetadata(raw string) (map[string]any, error) {
	meta := map[string]any{}
	if raw == "" || raw == "null" {
		return meta, nil
	}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, fmt.Errorf("invalid metadata: %w", err)
	}
	return meta, nil
}

type scored struct {
	id    string
	score float64
}

// minHeap keeps the current top-n with the weakest match at the root.
type minHeap []scored

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return h[i].score < h[j].score }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)        { *h = append(*h, x.(scored)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func float32ToBlob(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func blobToFloat32(b []byte, dims int) []float32 {
	v := make([]float32, dims)
	for i := 0; i < dims && i*4+4 <= len(b); i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
