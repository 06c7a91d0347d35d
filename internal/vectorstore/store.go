// Package vectorstore indexes document chunks for similarity search.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
)

// DefaultBatchSize is the most records written in one Add call.
const DefaultBatchSize = 5000

var ErrEmptyQuery = errors.New("query text is empty")

// Record is one chunk to index.
type Record struct {
	ID       string
	Document string
	Metadata map[string]any
}

// Match is a query hit, most similar first. Score is cosine similarity.
type Match struct {
	ID       string
	Document string
	Metadata map[string]any
	Score    float64
}

type Store interface {
	Add(ctx context.Context, records []Record) error
	Query(ctx context.Context, text string, n int) ([]Match, error)
	// DeleteDocument removes every chunk whose metadata document_id is
	// documentID. Deleting an unknown document is not an error.
	DeleteDocument(ctx context.Context, documentID string) error
}

// Embedder turns texts into vectors, one per text, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// AddInBatches writes records in sequential batches of at most batchSize.
// It stops at the first failing batch; earlier batches stay written.
func AddInBatches(ctx context.Context, store Store, records []Record, batchSize int) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))
		if err := store.Add(ctx, records[start:end]); err != nil {
			return fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
	}
	return nil
}

func embedChecked(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	vectors, err := e.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}
