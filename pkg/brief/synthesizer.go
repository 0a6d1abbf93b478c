// Package brief builds a research brief for a bundle from its retrieved
// passages and mined questions.
package brief

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/thefalc/podcast-research-agent/pkg/ai"
	"github.com/thefalc/podcast-research-agent/pkg/db"
	"github.com/thefalc/podcast-research-agent/pkg/domain"
	"github.com/thefalc/podcast-research-agent/pkg/logging"
)

// DefaultTopK is how many passages are retrieved for a brief.
const DefaultTopK = 15

// ErrEmptyBrief is returned when the model produced no brief text.
var ErrEmptyBrief = errors.New("empty research brief")

// Outcome is what a synthesis run did with the bundle.
type Outcome int

const (
	// Generated means a brief was written and the bundle marked processed.
	Generated Outcome = iota
	// SkippedNotFound means the bundle did not exist when synthesis started.
	SkippedNotFound
	// SkippedProcessed means the bundle already had a brief.
	SkippedProcessed
)

func (o Outcome) String() string {
	switch o {
	case Generated:
		return "generated"
	case SkippedNotFound:
		return "skipped_not_found"
	case SkippedProcessed:
		return "skipped_processed"
	default:
		return "unknown"
	}
}

// Waiter blocks until a bundle's ingestion has settled.
type Waiter interface {
	Wait(ctx context.Context, bundleID string) (bool, error)
}

// Result describes one synthesis run.
type Result struct {
	Outcome  Outcome
	Query    string
	Passages int
	Brief    string
}

// Synthesizer turns a bundle into a research brief.
type Synthesizer struct {
	bundles     db.BundleStore
	chunks      db.ChunkStore
	questions   db.QuestionStore
	embedder    ai.Embedder
	completer   ai.Completer
	readiness   Waiter
	topK        int
	expandQuery bool
	logger      *zap.Logger
}

// Config wires the Synthesizer.
type Config struct {
	Bundles   db.BundleStore
	Chunks    db.ChunkStore
	Questions db.QuestionStore
	Embedder  ai.Embedder
	Completer ai.Completer
	// Readiness is optional; nil starts synthesis immediately.
	Readiness Waiter
	TopK      int
	// ExpandQuery asks the completer for a search query built from the whole
	// bundle instead of searching with the bundle context alone.
	ExpandQuery bool
	Logger      *zap.Logger
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(cfg Config) (*Synthesizer, error) {
	if cfg.Bundles == nil || cfg.Chunks == nil || cfg.Questions == nil {
		return nil, fmt.Errorf("brief: bundle, chunk and question stores are required")
	}
	if cfg.Embedder == nil || cfg.Completer == nil {
		return nil, fmt.Errorf("brief: embedder and completer are required")
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Synthesizer{
		bundles:     cfg.Bundles,
		chunks:      cfg.Chunks,
		questions:   cfg.Questions,
		embedder:    cfg.Embedder,
		completer:   cfg.Completer,
		readiness:   cfg.Readiness,
		topK:        topK,
		expandQuery: cfg.ExpandQuery,
		logger:      logging.OrNop(cfg.Logger).Named("brief"),
	}, nil
}

// Generate waits for ingestion to settle and writes the brief for bundleID.
// Missing and already processed bundles are skipped without error. A bundle
// deleted between read and write surfaces db.ErrBundleNotFound.
func (s *Synthesizer) Generate(ctx context.Context, bundleID string) (*Result, error) {
	log := s.logger.With(zap.String("bundle_id", bundleID))

	if s.readiness != nil {
		if _, err := s.readiness.Wait(ctx, bundleID); err != nil {
			return nil, err
		}
	}

	bundle, err := s.bundles.GetBundle(ctx, bundleID)
	if errors.Is(err, db.ErrBundleNotFound) {
		log.Info("bundle not found, skipping")
		return &Result{Outcome: SkippedNotFound}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load bundle %s: %w", bundleID, err)
	}
	if bundle.Processed {
		log.Info("bundle already processed, skipping")
		return &Result{Outcome: SkippedProcessed}, nil
	}

	mined, err := s.questions.GetQuestions(ctx, bundleID)
	if err != nil {
		return nil, fmt.Errorf("load questions for %s: %w", bundleID, err)
	}
	questions := FlattenQuestions(mined)

	query := s.buildQuery(ctx, log, bundle)
	vec, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	passages, err := s.chunks.SearchChunks(ctx, bundleID, vec, s.topK)
	if err != nil {
		return nil, fmt.Errorf("search chunks for %s: %w", bundleID, err)
	}
	log.Info("retrieved passages", zap.Int("passages", len(passages)), zap.Int("questions", len(mined)))

	system, user := BriefPrompt(bundle, JoinPassages(passages), questions)
	text, err := s.completer.Complete(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("generate brief: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyBrief
	}

	res := &Result{Outcome: Generated, Query: query, Passages: len(passages), Brief: text}
	if err := s.bundles.SaveBrief(ctx, bundleID, text); err != nil {
		if errors.Is(err, db.ErrAlreadyProcessed) {
			log.Info("bundle processed concurrently, discarding brief")
			return &Result{Outcome: SkippedProcessed, Query: query, Passages: len(passages)}, nil
		}
		return nil, fmt.Errorf("save brief: %w", err)
	}

	log.Info("research brief saved", zap.Int("brief_chars", len(text)))
	return res, nil
}

// BuildQuery returns the retrieval query for a bundle.
func (s *Synthesizer) BuildQuery(ctx context.Context, bundle *domain.ResearchBundle) string {
	return s.buildQuery(ctx, s.logger, bundle)
}

func (s *Synthesizer) buildQuery(ctx context.Context, log *zap.Logger, bundle *domain.ResearchBundle) string {
	fallback := strings.TrimSpace(bundle.Context)
	if fallback == "" {
		fallback = strings.TrimSpace(bundle.GuestName + " " + bundle.Company + " " + bundle.Topic)
	}
	if !s.expandQuery {
		return fallback
	}

	system, user := QueryPrompt(bundle)
	q, err := s.completer.Complete(ctx, system, user)
	if err != nil {
		log.Warn("query expansion failed, using bundle context", zap.Error(err))
		return fallback
	}
	q = strings.TrimSpace(q)
	if q == "" {
		return fallback
	}
	log.Debug("expanded search query", zap.String("query", q))
	return q
}
