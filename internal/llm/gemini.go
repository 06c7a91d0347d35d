package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// GeminiClient owns the process-wide genai client. The client is built on
// first use and then shared; a failed build is not cached.
type GeminiClient struct {
	apiKey string

	mu     sync.Mutex
	client *genai.Client
}

var _ Provider = (*GeminiClient)(nil)

func NewGeminiClient(apiKey string) *GeminiClient {
	return &GeminiClient{apiKey: apiKey}
}

func (c *GeminiClient) conn(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}
	if c.apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	c.client = client
	return client, nil
}

// Model returns a handle for the named Gemini model.
func (c *GeminiClient) Model(ctx context.Context, name string) (Model, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: empty model name", ErrModelUnavailable)
	}
	client, err := c.conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return &geminiModel{client: client, name: name}, nil
}

type geminiModel struct {
	client *genai.Client
	name   string
}

func (m *geminiModel) Generate(ctx context.Context, prompt string) (string, error) {
	result, err := m.client.Models.GenerateContent(ctx, m.name, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}
	return result.Text(), nil
}

// embedBatchSize is the most texts sent in one embedding request.
const embedBatchSize = 100

// Embedder produces embedding vectors with a Gemini embedding model.
type Embedder struct {
	client *GeminiClient
	model  string
}

func NewEmbedder(client *GeminiClient, model string) *Embedder {
	return &Embedder{client: client, model: model}
}

// Embed returns one vector per text, in order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	client, err := e.client.conn(ctx)
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += embedBatchSize {
		end := min(i+embedBatchSize, len(texts))

		contents := make([]*genai.Content, 0, end-i)
		for _, t := range texts[i:end] {
			contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
		}

		resp, err := client.Models.EmbedContent(ctx, e.model, contents, nil)
		if err != nil {
			return nil, fmt.Errorf("embedding batch %d-%d failed: %w", i, end, err)
		}
		if len(resp.Embeddings) != end-i {
			return nil, fmt.Errorf("embedding batch %d-%d: expected %d vectors, got %d", i, end, end-i, len(resp.Embeddings))
		}
		for _, emb := range resp.Embeddings {
			vectors = append(vectors, emb.Values)
		}
	}
	return vectors, nil
}
