package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/thefalc/podcast-research-agent/pkg/domain"
)

var (
	// ErrBundleNotFound is returned when a bundle id matches no record.
	ErrBundleNotFound = errors.New("research bundle not found")
	// ErrAlreadyProcessed is returned when a brief was already saved for the bundle.
	ErrAlreadyProcessed = errors.New("research bundle already processed")
	// ErrStatusNotFound is returned when no ingestion has been recorded for a bundle.
	ErrStatusNotFound = errors.New("ingestion status not found")
)

// BundleStore reads bundles and records their research brief.
type BundleStore interface {
	CreateBundle(ctx context.Context, b *domain.ResearchBundle) (string, error)
	GetBundle(ctx context.Context, id string) (*domain.ResearchBundle, error)
	// SaveBrief stores the brief and sets processed in one conditional update.
	// It returns ErrAlreadyProcessed if the bundle is already processed and
	// ErrBundleNotFound if it no longer exists.
	SaveBrief(ctx context.Context, id, brief string) error
	ListProcessedBundles(ctx context.Context) ([]domain.ResearchBundle, error)
}

// ChunkStore persists passages and answers bundle-scoped similarity queries.
type ChunkStore interface {
	SaveChunks(ctx context.Context, chunks []domain.TextChunk) error
	CountChunks(ctx context.Context, bundleID string) (int, error)
	SearchChunks(ctx context.Context, bundleID string, query []float32, k int) ([]domain.ScoredChunk, error)
}

// QuestionStore reads questions mined for a bundle.
type QuestionStore interface {
	GetQuestions(ctx context.Context, bundleID string) ([]domain.CandidateQuestion, error)
}

// StatusStore tracks ingestion progress per bundle.
type StatusStore interface {
	SaveStatus(ctx context.Context, status *domain.IngestionStatus) error
	GetStatus(ctx context.Context, bundleID string) (*domain.IngestionStatus, error)
}

// Store is everything the pipeline needs from the datastore.
type Store interface {
	BundleStore
	ChunkStore
	QuestionStore
	StatusStore
}

// DBProvider is an interface for database clients that provide access to a sql.DB handle.
// This allows both PostgresClient and SupabaseClient to be used interchangeably.
type DBProvider interface {
	DB() *sql.DB
}
