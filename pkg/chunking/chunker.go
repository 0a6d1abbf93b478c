// Package chunking splits extracted text into overlapping passages and embeds them.
package chunking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/thefalc/podcast-research-agent/pkg/ai"
	"github.com/thefalc/podcast-research-agent/pkg/domain"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
	DefaultBatchSize    = 64
)

var (
	// ErrEmbedderRequired is returned when no embedder is configured.
	ErrEmbedderRequired = errors.New("embedder is required")
	// ErrDimensionMismatch is returned when vectors of one run differ in length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Chunker splits documents into passages and attaches one embedding to each.
type Chunker struct {
	splitter     textsplitter.TextSplitter
	embedder     ai.Embedder
	chunkSize    int
	chunkOverlap int
	batchSize    int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the target passage length in characters.
func WithChunkSize(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithChunkOverlap sets how many characters consecutive passages share.
func WithChunkOverlap(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.chunkOverlap = n
		}
	}
}

// WithBatchSize bounds how many passages go into one embedding request.
func WithBatchSize(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// New creates a Chunker that embeds with embedder.
func New(embedder ai.Embedder, opts ...Option) (*Chunker, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	c := &Chunker{
		embedder:     embedder,
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		batchSize:    DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.chunkOverlap >= c.chunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", c.chunkOverlap, c.chunkSize)
	}
	c.splitter = textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(c.chunkSize),
		textsplitter.WithChunkOverlap(c.chunkOverlap),
	)
	return c, nil
}

// Split cuts text into passages, splitting on paragraphs, then lines, then words.
func (c *Chunker) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	parts, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// ChunkAndEmbed returns the passages of every document in source order, each with
// its embedding. No deduplication is performed.
func (c *Chunker) ChunkAndEmbed(ctx context.Context, docs []domain.Document) ([]domain.Passage, error) {
	var texts, titles []string
	for _, doc := range docs {
		parts, err := c.Split(doc.Content)
		if err != nil {
			return nil, err
		}
		texts = append(texts, parts...)
		for range parts {
			titles = append(titles, doc.Title)
		}
	}
	if len(texts) == 0 {
		return nil, nil
	}

	passages := make([]domain.Passage, 0, len(texts))
	dim := 0
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		batch := texts[start:end]

		vecs, err := c.embedder.EmbedTexts(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embed passages [%d:%d]: %w", start, end, err)
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("embed passages [%d:%d]: got %d vectors", start, end, len(vecs))
		}

		for i, vec := range vecs {
			if dim == 0 {
				dim = len(vec)
			}
			if len(vec) == 0 || len(vec) != dim {
				return nil, fmt.Errorf("%w: passage %d has %d dimensions, want %d", ErrDimensionMismatch, start+i, len(vec), dim)
			}
			passages = append(passages, domain.Passage{Title: titles[start+i], Text: batch[i], Embedding: vec})
		}
	}
	return passages, nil
}
