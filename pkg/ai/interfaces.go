// Package ai defines the embedding and completion capabilities the pipeline depends on.
package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates embeddings for multiple texts in one call.
	// The returned slice is in the same order as texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer produces a single non-streaming completion.
// Implementations must be thread-safe for concurrent use.
type Completer interface {
	// Complete sends an optional system instruction and the user content and
	// returns the text of the single response.
	Complete(ctx context.Context, system, user string) (string, error)
}
