// Package mock provides deterministic test doubles for the ai capabilities.
package mock

import (
	"context"
	"hash/fnv"
	"sync"
)

// DefaultDimensions is the vector size produced by Embedder when Dim is zero.
const DefaultDimensions = 8

// Embedder is a test double for ai.Embedder. Vectors are derived from a hash of
// the text, so equal texts embed equally.
type Embedder struct {
	Dim            int
	EmbedTextFunc  func(ctx context.Context, text string) ([]float32, error)
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	mu        sync.Mutex
	callCount int
}

// EmbedText generates a deterministic embedding based on text hash.
func (m *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	m.inc()
	if m.EmbedTextFunc != nil {
		return m.EmbedTextFunc(ctx, text)
	}
	return Vector(text, m.dim()), nil
}

// EmbedTexts generates deterministic embeddings for multiple texts.
func (m *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.inc()
	if m.EmbedTextsFunc != nil {
		return m.EmbedTextsFunc(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = Vector(text, m.dim())
	}
	return out, nil
}

// CallCount returns the number of times any method was called.
func (m *Embedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

func (m *Embedder) inc() {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()
}

func (m *Embedder) dim() int {
	if m.Dim > 0 {
		return m.Dim
	}
	return DefaultDimensions
}

// Vector creates a deterministic embedding vector from text.
func Vector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float32, dim)
	for i := 0; i < dim; i++ {
		seed = seed*1664525 + 1013904223
		vector[i] = float32(seed%1000) / 1000.0
	}
	return vector
}

// Call is one recorded completion request.
type Call struct {
	System string
	User   string
}

// Completer is a test double for ai.Completer.
type Completer struct {
	// Response is returned when CompleteFunc is nil.
	Response     string
	CompleteFunc func(ctx context.Context, system, user string) (string, error)

	mu    sync.Mutex
	calls []Call
}

// Complete records the call and returns Response or the result of CompleteFunc.
func (m *Completer) Complete(ctx context.Context, system, user string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{System: system, User: user})
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, system, user)
	}
	return m.Response, nil
}

// Calls returns a copy of the recorded calls.
func (m *Completer) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}
