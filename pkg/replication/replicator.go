// Package replication copies finished research briefs into a Postgres archive.
package replication

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/thefalc/podcast-research-agent/pkg/db"
	"github.com/thefalc/podcast-research-agent/pkg/domain"
	"github.com/thefalc/podcast-research-agent/pkg/logging"
)

const (
	defaultBatchSize = 100
	defaultWorkers   = 5
)

// Config wires the replication dependencies.
type Config struct {
	Bundles   db.BundleStore
	Postgres  db.DBProvider
	BatchSize int
	Workers   int
	Logger    *zap.Logger
}

// Replicator copies processed bundles from the document store to Postgres.
// It is a one-shot copy; rows already present are left untouched.
type Replicator struct {
	bundles   db.BundleStore
	pg        db.DBProvider
	batchSize int
	workers   int
	logger    *zap.Logger
}

// Summary counts what a replication run did.
type Summary struct {
	Processed int
	Inserted  int
}

func NewReplicator(cfg Config) (*Replicator, error) {
	if cfg.Bundles == nil {
		return nil, fmt.Errorf("bundle store is required")
	}
	if cfg.Postgres == nil {
		return nil, fmt.Errorf("postgres client is required")
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Replicator{
		bundles:   cfg.Bundles,
		pg:        cfg.Postgres,
		batchSize: batchSize,
		workers:   workers,
		logger:    logging.OrNop(cfg.Logger).Named("replication"),
	}, nil
}

// ReplicateBriefs reads every processed bundle and inserts its brief into the
// research_brief table, skipping bundle ids that are already archived.
func (r *Replicator) ReplicateBriefs(ctx context.Context) (*Summary, error) {
	arch, err := openArchive(r.pg)
	if err != nil {
		return nil, err
	}
	if _, ok := arch.(*restArchive); ok {
		r.logger.Info("no direct postgres connection, archiving through the supabase REST API")
	}
	if err := arch.ensureSchema(ctx); err != nil {
		return nil, err
	}

	bundles, err := r.bundles.ListProcessedBundles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processed bundles: %w", err)
	}
	r.logger.Info("loaded processed bundles", zap.Int("bundles", len(bundles)))

	sum, err := r.processBatches(ctx, arch, bundles)
	if err != nil {
		return sum, err
	}
	r.logger.Info("replication complete", zap.Int("processed", sum.Processed), zap.Int("inserted", sum.Inserted))
	return sum, nil
}

// processBatches fans batches out to a fixed set of workers and stops at the first error.
func (r *Replicator) processBatches(ctx context.Context, arch archive, bundles []domain.ResearchBundle) (*Summary, error) {
	type result struct {
		processed int
		inserted  int
		err       error
	}

	batches := splitBatches(bundles, r.batchSize)
	jobs := make(chan []domain.ResearchBundle, len(batches))
	results := make(chan result, len(batches))
	for _, b := range batches {
		jobs <- b
	}
	close(jobs)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range jobs {
				inserted, err := r.processBatch(ctx, arch, batch)
				results <- result{processed: len(batch), inserted: inserted, err: err}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	sum := &Summary{}
	var firstErr error
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
				cancel()
			}
			continue
		}
		sum.Processed += res.processed
		sum.Inserted += res.inserted
	}
	return sum, firstErr
}

func (r *Replicator) processBatch(ctx context.Context, arch archive, batch []domain.ResearchBundle) (int, error) {
	existing := map[string]bool{}
	if ids := bundleIDs(batch); len(ids) > 0 {
		var err error
		if existing, err = arch.existingIDs(ctx, ids); err != nil {
			return 0, err
		}
	}
	toInsert := filterNew(batch, existing)
	if len(toInsert) == 0 {
		return 0, nil
	}
	if err := arch.insert(ctx, toInsert); err != nil {
		return 0, err
	}
	r.logger.Debug("archived briefs", zap.Int("batch", len(batch)), zap.Int("inserted", len(toInsert)))
	return len(toInsert), nil
}

func splitBatches(bundles []domain.ResearchBundle, size int) [][]domain.ResearchBundle {
	var out [][]domain.ResearchBundle
	for start := 0; start < len(bundles); start += size {
		out = append(out, bundles[start:min(start+size, len(bundles))])
	}
	return out
}

func bundleIDs(batch []domain.ResearchBundle) []string {
	ids := make([]string, 0, len(batch))
	for _, b := range batch {
		if b.ID != "" {
			ids = append(ids, b.ID)
		}
	}
	return ids
}

// filterNew drops bundles without an id, without a brief, or already archived.
func filterNew(all []domain.ResearchBundle, existing map[string]bool) []domain.ResearchBundle {
	out := make([]domain.ResearchBundle, 0, len(all))
	for _, b := range all {
		if b.ID == "" || b.ResearchBriefText == "" || existing[b.ID] {
			continue
		}
		out = append(out, b)
	}
	return out
}
