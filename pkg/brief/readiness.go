package brief

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/thefalc/podcast-research-agent/pkg/db"
	"github.com/thefalc/podcast-research-agent/pkg/domain"
	"github.com/thefalc/podcast-research-agent/pkg/logging"
)

// ReadinessPolicy bounds how long synthesis waits for ingestion to settle.
type ReadinessPolicy struct {
	// InitialDelay is waited before the first check.
	InitialDelay time.Duration
	PollInterval time.Duration
	MaxInterval  time.Duration
	// Backoff multiplies the poll interval after every unsuccessful check.
	Backoff float64
	// MaxWait caps the total wait, initial delay included.
	MaxWait time.Duration
}

// Readiness polls ingestion status and chunk counts until a bundle's
// ingestion is complete and all of its published chunks are stored.
type Readiness struct {
	status db.StatusStore
	chunks db.ChunkStore
	policy ReadinessPolicy
	logger *zap.Logger
	now    func() time.Time
	after  func(time.Duration) <-chan time.Time
}

// NewReadiness creates a Readiness.
func NewReadiness(status db.StatusStore, chunks db.ChunkStore, policy ReadinessPolicy, logger *zap.Logger) *Readiness {
	if policy.PollInterval <= 0 {
		policy.PollInterval = time.Second
	}
	if policy.MaxInterval < policy.PollInterval {
		policy.MaxInterval = policy.PollInterval
	}
	if policy.Backoff < 1 {
		policy.Backoff = 1
	}
	return &Readiness{
		status: status,
		chunks: chunks,
		policy: policy,
		logger: logging.OrNop(logger).Named("readiness"),
		now:    time.Now,
		after:  time.After,
	}
}

// Wait blocks until the bundle is ready or MaxWait elapses. It reports whether
// the bundle became ready; a timeout is not an error. Only ctx cancellation
// returns an error.
func (r *Readiness) Wait(ctx context.Context, bundleID string) (bool, error) {
	deadline := r.now().Add(r.policy.MaxWait)
	if err := r.sleep(ctx, min(r.policy.InitialDelay, r.policy.MaxWait)); err != nil {
		return false, err
	}

	interval := r.policy.PollInterval
	for attempt := 1; ; attempt++ {
		if r.ready(ctx, bundleID) {
			r.logger.Debug("bundle ready", zap.String("bundle_id", bundleID), zap.Int("attempts", attempt))
			return true, nil
		}

		remaining := deadline.Sub(r.now())
		if remaining <= 0 {
			r.logger.Warn("ingestion did not settle before max wait",
				zap.String("bundle_id", bundleID),
				zap.Duration("max_wait", r.policy.MaxWait),
				zap.Int("attempts", attempt),
			)
			return false, nil
		}
		if err := r.sleep(ctx, min(interval, remaining)); err != nil {
			return false, err
		}
		interval = min(time.Duration(float64(interval)*r.policy.Backoff), r.policy.MaxInterval)
	}
}

func (r *Readiness) ready(ctx context.Context, bundleID string) bool {
	st, err := r.status.GetStatus(ctx, bundleID)
	if err != nil {
		if !errors.Is(err, db.ErrStatusNotFound) {
			r.logger.Warn("read ingestion status", zap.String("bundle_id", bundleID), zap.Error(err))
		}
		return false
	}
	if st.State != domain.IngestionComplete {
		return false
	}
	if st.Published == 0 {
		return true
	}
	n, err := r.chunks.CountChunks(ctx, bundleID)
	if err != nil {
		r.logger.Warn("count chunks", zap.String("bundle_id", bundleID), zap.Error(err))
		return false
	}
	return n >= st.Published
}

func (r *Readiness) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.after(d):
		return nil
	}
}
