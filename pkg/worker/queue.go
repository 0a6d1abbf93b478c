// Package worker runs ingestion and brief jobs on a bounded goroutine pool so
// HTTP triggers can return immediately without spawning unsupervised work.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/thefalc/podcast-research-agent/pkg/brief"
	"github.com/thefalc/podcast-research-agent/pkg/logging"
	"github.com/thefalc/podcast-research-agent/pkg/pipeline"
)

var (
	// ErrQueueFull is returned when the backlog is at capacity.
	ErrQueueFull = errors.New("work queue is full")
	// ErrQueueClosed is returned after Shutdown has been called.
	ErrQueueClosed = errors.New("work queue is closed")
)

// Ingestor runs ingestion for one bundle.
type Ingestor interface {
	Ingest(ctx context.Context, bundleID string, urls []string) (*pipeline.Report, error)
}

// Synthesizer writes the research brief for one bundle.
type Synthesizer interface {
	Generate(ctx context.Context, bundleID string) (*brief.Result, error)
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Workers   int    `json:"workers"`
	Running   int    `json:"running"`
	Queued    int    `json:"queued"`
	Capacity  int    `json:"capacity"`
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Rejected  uint64 `json:"rejected"`
}

// Config sizes the Queue.
type Config struct {
	Ingestor    Ingestor
	Synthesizer Synthesizer
	PoolSize    int
	MaxQueued   int
	// JobTimeout bounds each job. Zero means no limit.
	JobTimeout time.Duration
	Logger     *zap.Logger
}

type job struct {
	kind     string
	bundleID string
	run      func(ctx context.Context) error
}

// Queue buffers jobs and runs them on an ants pool.
type Queue struct {
	ingestor    Ingestor
	synthesizer Synthesizer
	pool        *ants.Pool
	jobs        chan job
	timeout     time.Duration
	logger      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
	dispatch sync.WaitGroup

	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
}

type antsLogger struct{ *zap.SugaredLogger }

func (l antsLogger) Printf(format string, args ...any) { l.Warnf(format, args...) }

// NewQueue creates a Queue and starts its dispatcher.
func NewQueue(cfg Config) (*Queue, error) {
	if cfg.Ingestor == nil || cfg.Synthesizer == nil {
		return nil, fmt.Errorf("worker: ingestor and synthesizer are required")
	}
	size := cfg.PoolSize
	if size < 1 {
		size = 1
	}
	backlog := cfg.MaxQueued
	if backlog < 1 {
		backlog = 1
	}
	logger := logging.OrNop(cfg.Logger).Named("worker")

	pool, err := ants.NewPool(size,
		ants.WithLogger(antsLogger{logger.Sugar()}),
		ants.WithPanicHandler(func(p any) {
			logger.Error("job panicked", zap.Any("panic", p))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		ingestor:    cfg.Ingestor,
		synthesizer: cfg.Synthesizer,
		pool:        pool,
		jobs:        make(chan job, backlog),
		timeout:     cfg.JobTimeout,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
	q.dispatch.Add(1)
	go q.dispatchLoop()
	return q, nil
}

// SubmitIngest queues ingestion of urls for bundleID.
func (q *Queue) SubmitIngest(bundleID string, urls []string) error {
	urls = append([]string(nil), urls...)
	return q.enqueue(job{
		kind:     "ingest",
		bundleID: bundleID,
		run: func(ctx context.Context) error {
			_, err := q.ingestor.Ingest(ctx, bundleID, urls)
			return err
		},
	})
}

// SubmitBrief queues brief synthesis for bundleID.
func (q *Queue) SubmitBrief(bundleID string) error {
	return q.enqueue(job{
		kind:     "brief",
		bundleID: bundleID,
		run: func(ctx context.Context) error {
			res, err := q.synthesizer.Generate(ctx, bundleID)
			if err != nil {
				return err
			}
			q.logger.Info("brief job finished",
				zap.String("bundle_id", bundleID),
				zap.Stringer("outcome", res.Outcome),
			)
			return nil
		},
	})
}

func (q *Queue) enqueue(j job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- j:
		q.submitted.Add(1)
		q.logger.Debug("job queued", zap.String("kind", j.kind), zap.String("bundle_id", j.bundleID))
		return nil
	default:
		q.rejected.Add(1)
		q.logger.Warn("job rejected, queue full", zap.String("kind", j.kind), zap.String("bundle_id", j.bundleID))
		return ErrQueueFull
	}
}

func (q *Queue) dispatchLoop() {
	defer q.dispatch.Done()
	for j := range q.jobs {
		q.inflight.Add(1)
		// Submit blocks until a pool worker is free.
		if err := q.pool.Submit(func() { q.run(j) }); err != nil {
			q.inflight.Done()
			q.failed.Add(1)
			q.logger.Error("submit job", zap.String("kind", j.kind), zap.String("bundle_id", j.bundleID), zap.Error(err))
		}
	}
}

func (q *Queue) run(j job) {
	defer q.inflight.Done()

	ctx := q.ctx
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return j.run(ctx)
	}()

	fields := []zap.Field{
		zap.String("kind", j.kind),
		zap.String("bundle_id", j.bundleID),
		zap.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		q.failed.Add(1)
		q.logger.Error("job failed", append(fields, zap.Error(err))...)
		return
	}
	q.completed.Add(1)
	q.logger.Debug("job done", fields...)
}

// Stats returns current queue counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Workers:   q.pool.Cap(),
		Running:   q.pool.Running(),
		Queued:    len(q.jobs),
		Capacity:  cap(q.jobs),
		Submitted: q.submitted.Load(),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
		Rejected:  q.rejected.Load(),
	}
}

// Shutdown stops accepting jobs and waits for queued and running jobs to
// finish. When ctx expires first, running jobs are cancelled and ctx's error
// is returned.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.dispatch.Wait()
		q.inflight.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		q.cancel()
		<-done
		err = ctx.Err()
	}
	q.cancel()
	q.pool.Release()
	return err
}
