// Package pipeline fans a research bundle's URLs out to extraction, chunking and
// publishing, isolating failures per URL.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/thefalc/podcast-research-agent/pkg/bus"
	"github.com/thefalc/podcast-research-agent/pkg/db"
	"github.com/thefalc/podcast-research-agent/pkg/domain"
	"github.com/thefalc/podcast-research-agent/pkg/logging"
)

// ErrNoPassages is recorded for a URL whose documents produced no passages.
var ErrNoPassages = errors.New("no passages produced")

// Extractor turns one URL into documents.
type Extractor interface {
	Extract(ctx context.Context, url string) ([]domain.Document, error)
}

// ChunkEmbedder splits documents into embedded passages.
type ChunkEmbedder interface {
	ChunkAndEmbed(ctx context.Context, docs []domain.Document) ([]domain.Passage, error)
}

// Report summarizes one ingestion run.
type Report struct {
	BundleID  string
	Published int
	Succeeded []string
	// Skipped lists repeated URLs that were processed once already in this run.
	Skipped  []string
	Failures []domain.URLFailure
}

// Ingestor runs extract, chunk and publish for each URL of a bundle.
type Ingestor struct {
	extractor   Extractor
	chunker     ChunkEmbedder
	publisher   bus.Publisher
	status      db.StatusStore
	filters     []URLFilter
	concurrency int
	urlTimeout  time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// Config wires the Ingestor.
type Config struct {
	Extractor Extractor
	Chunker   ChunkEmbedder
	Publisher bus.Publisher
	// Status is optional. When set, running and complete states are recorded
	// so brief synthesis can wait for ingestion to settle.
	Status db.StatusStore
	// Filters screen URLs after the built-in validity and duplicate checks.
	Filters []URLFilter
	// Concurrency bounds how many URLs are processed at once. Values below 2
	// process URLs sequentially in the order given.
	Concurrency int
	// URLTimeout bounds the work for a single URL. Zero means no limit.
	URLTimeout time.Duration
	Logger     *zap.Logger
}

// NewIngestor creates an Ingestor.
func NewIngestor(cfg Config) (*Ingestor, error) {
	if cfg.Extractor == nil || cfg.Chunker == nil || cfg.Publisher == nil {
		return nil, fmt.Errorf("pipeline: extractor, chunker and publisher are required")
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Ingestor{
		extractor:   cfg.Extractor,
		chunker:     cfg.Chunker,
		publisher:   cfg.Publisher,
		status:      cfg.Status,
		filters:     cfg.Filters,
		concurrency: concurrency,
		urlTimeout:  cfg.URLTimeout,
		logger:      logging.OrNop(cfg.Logger).Named("ingest"),
		now:         time.Now,
	}, nil
}

type urlResult struct {
	started   bool
	url       string
	published int
	err       error
}

// Ingest processes every URL of the bundle. A failing URL is recorded in the
// report and never stops its siblings. The returned error is non-nil only when
// ctx is cancelled.
func (in *Ingestor) Ingest(ctx context.Context, bundleID string, urls []string) (*Report, error) {
	log := in.logger.With(zap.String("bundle_id", bundleID))
	started := in.now()
	in.saveStatus(ctx, &domain.IngestionStatus{
		BundleID:  bundleID,
		State:     domain.IngestionRunning,
		StartedAt: started,
	})

	filters := append([]URLFilter{ValidURLFilter{}, newDuplicateFilter()}, in.filters...)
	checked := screenURLs(ctx, urls, filters...)

	results := make([]urlResult, len(urls))
	run := func(ctx context.Context, i int) {
		if checked[i].err != nil {
			results[i] = urlResult{started: true, url: checked[i].url, err: checked[i].err}
			return
		}
		results[i] = in.processURL(ctx, bundleID, checked[i].url)
	}
	if in.concurrency == 1 {
		for i := range checked {
			if ctx.Err() != nil {
				break
			}
			run(ctx, i)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(in.concurrency)
		for i := range checked {
			g.Go(func() error {
				run(gctx, i)
				return nil
			})
		}
		_ = g.Wait()
	}

	report := &Report{BundleID: bundleID}
	for i, res := range results {
		if !res.started {
			// never started because ctx was cancelled
			res = urlResult{url: checked[i].url, err: ctx.Err()}
		}
		if errors.Is(res.err, ErrDuplicateURL) {
			report.Skipped = append(report.Skipped, res.url)
			continue
		}
		if res.err != nil {
			log.Warn("url failed", zap.String("url", res.url), zap.Error(res.err))
			report.Failures = append(report.Failures, domain.URLFailure{URL: res.url, Error: res.err.Error()})
			continue
		}
		report.Published += res.published
		report.Succeeded = append(report.Succeeded, res.url)
	}

	log.Info("ingestion finished",
		zap.Int("urls", len(urls)),
		zap.Int("succeeded", len(report.Succeeded)),
		zap.Int("failed", len(report.Failures)),
		zap.Int("published", report.Published),
	)

	if err := ctx.Err(); err != nil {
		return report, err
	}

	in.saveStatus(ctx, &domain.IngestionStatus{
		BundleID:   bundleID,
		State:      domain.IngestionComplete,
		Published:  report.Published,
		Failures:   report.Failures,
		StartedAt:  started,
		FinishedAt: in.now(),
	})
	return report, nil
}

func (in *Ingestor) processURL(ctx context.Context, bundleID, url string) (res urlResult) {
	res.started = true
	res.url = url
	defer func() {
		if r := recover(); r != nil {
			res.published = 0
			res.err = fmt.Errorf("panic: %v", r)
		}
	}()

	if in.urlTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.urlTimeout)
		defer cancel()
	}

	docs, err := in.extractor.Extract(ctx, url)
	if err != nil {
		res.err = err
		return res
	}

	passages, err := in.chunker.ChunkAndEmbed(ctx, docs)
	if err != nil {
		res.err = fmt.Errorf("chunk %s: %w", url, err)
		return res
	}
	if len(passages) == 0 {
		res.err = fmt.Errorf("%w: %s", ErrNoPassages, url)
		return res
	}

	records := make([]domain.TextChunk, len(passages))
	for i, p := range passages {
		records[i] = domain.TextChunk{
			BundleID:  bundleID,
			SourceURL: url,
			Title:     p.Title,
			Text:      p.Text,
			Embedding: p.Embedding,
		}
	}
	if err := in.publisher.Publish(ctx, records); err != nil {
		res.err = fmt.Errorf("publish %s: %w", url, err)
		return res
	}

	in.logger.Debug("url ingested",
		zap.String("bundle_id", bundleID),
		zap.String("url", url),
		zap.Int("passages", len(records)),
	)
	res.published = len(records)
	return res
}

func (in *Ingestor) saveStatus(ctx context.Context, st *domain.IngestionStatus) {
	if in.status == nil {
		return
	}
	if err := in.status.SaveStatus(ctx, st); err != nil {
		in.logger.Warn("save ingestion status",
			zap.String("bundle_id", st.BundleID),
			zap.String("state", string(st.State)),
			zap.Error(err),
		)
	}
}
