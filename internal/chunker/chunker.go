// Package chunker splits document text into fixed-size overlapping windows.
package chunker

import (
	"errors"
	"fmt"
	"iter"
	"unicode/utf8"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of characters shared by
// neighbouring chunks.
const DefaultChunkOverlap = 200

var ErrInvalidConfig = errors.New("invalid chunker configuration")

// Chunker is immutable and safe for concurrent use.
type Chunker struct {
	size    int
	overlap int
}

type Option func(*Chunker)

func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		c.size = size
	}
}

func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		c.overlap = overlap
	}
}

// New returns a chunker, rejecting configurations whose window would not
// advance (overlap >= size).
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		size:    DefaultChunkSize,
		overlap: DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.size <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d must be positive", ErrInvalidConfig, c.size)
	}
	if c.overlap < 0 || c.overlap >= c.size {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidConfig, c.overlap, c.size)
	}
	return c, nil
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Step is how far each window advances.
func (c *Chunker) Step() int { return c.size - c.overlap }

// All yields (position, chunk) pairs. Windows are measured in characters,
// start every Step() characters and the final one may be shorter than the
// chunk size. The sequence can be ranged over any number of times.
func (c *Chunker) All(text string) iter.Seq2[int, string] {
	return func(yield func(int, string) bool) {
		if text == "" {
			return
		}
		// byte offset of every rune, plus the end of the string
		offsets := make([]int, 0, utf8.RuneCountInString(text)+1)
		for i := range text {
			offsets = append(offsets, i)
		}
		n := len(offsets)
		offsets = append(offsets, len(text))

		pos := 0
		for start := 0; start < n; start += c.Step() {
			end := min(start+c.size, n)
			if !yield(pos, text[offsets[start]:offsets[end]]) {
				return
			}
			pos++
		}
	}
}

// Split collects All into a slice.
func (c *Chunker) Split(text string) []string {
	var chunks []string
	for _, chunk := range c.All(text) {
		chunks = append(chunks, chunk)
	}
	return chunks
}
