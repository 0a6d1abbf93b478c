// Package bus moves chunk records from ingestion to durable storage.
package bus

import (
	"context"

	"github.com/thefalc/podcast-research-agent/pkg/db"
	"github.com/thefalc/podcast-research-agent/pkg/domain"
)

// DefaultTopic carries chunk records.
const DefaultTopic = "podprep-text-chunks-1"

// Publisher hands a batch of chunk records to durable storage.
type Publisher interface {
	Publish(ctx context.Context, records []domain.TextChunk) error
}

// StorePublisher writes records straight to a chunk store, for single-process deployments.
type StorePublisher struct {
	store db.ChunkStore
}

// NewStorePublisher creates a StorePublisher.
func NewStorePublisher(store db.ChunkStore) *StorePublisher {
	return &StorePublisher{store: store}
}

// Publish saves records to the store.
func (p *StorePublisher) Publish(ctx context.Context, records []domain.TextChunk) error {
	return p.store.SaveChunks(ctx, records)
}
