// Package content turns source URLs into plain-text documents.
package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/thefalc/podcast-research-agent/pkg/ai"
	"github.com/thefalc/podcast-research-agent/pkg/domain"
	"github.com/thefalc/podcast-research-agent/pkg/httpclient"
	"github.com/thefalc/podcast-research-agent/pkg/logging"
)

// DefaultMaxPageChars caps how much normalized page text is sent for extraction.
const DefaultMaxPageChars = 100_000

var (
	// ErrExtractionFailed is returned when a URL produced no usable text.
	ErrExtractionFailed = errors.New("content extraction failed")
	// ErrUnsupportedURL is returned for recognized but unsupported sources such as video.
	ErrUnsupportedURL = errors.New("unsupported url")
)

// Fetcher retrieves a URL body.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*httpclient.Response, error)
}

// EpisodeTranscriber turns a podcast episode page URL into ordered transcript parts.
type EpisodeTranscriber interface {
	TranscribeEpisode(ctx context.Context, episodeURL string) ([]string, error)
}

// Extractor produces documents for web pages and podcast episodes.
type Extractor struct {
	fetcher      Fetcher
	completer    ai.Completer
	podcasts     EpisodeTranscriber
	maxPageChars int
	logger       *zap.Logger
}

// Config wires the Extractor dependencies.
type Config struct {
	Fetcher   Fetcher
	Completer ai.Completer
	// Podcasts may be nil, in which case podcast URLs fail extraction.
	Podcasts     EpisodeTranscriber
	MaxPageChars int
	Logger       *zap.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(cfg Config) (*Extractor, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.Completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if cfg.MaxPageChars <= 0 {
		cfg.MaxPageChars = DefaultMaxPageChars
	}
	return &Extractor{
		fetcher:      cfg.Fetcher,
		completer:    cfg.Completer,
		podcasts:     cfg.Podcasts,
		maxPageChars: cfg.MaxPageChars,
		logger:       logging.OrNop(cfg.Logger).Named("content"),
	}, nil
}

// Extract returns the documents for rawURL. Every failure wraps ErrExtractionFailed.
func (e *Extractor) Extract(ctx context.Context, rawURL string) ([]domain.Document, error) {
	kind := Classify(rawURL)
	e.logger.Debug("extracting", zap.String("url", rawURL), zap.Stringer("kind", kind))

	var (
		doc domain.Document
		err error
	)
	switch kind {
	case KindPodcast:
		doc, err = e.extractPodcast(ctx, rawURL)
	case KindVideo:
		err = fmt.Errorf("%w: %s sources are not supported", ErrUnsupportedURL, kind)
	default:
		doc, err = e.extractWeb(ctx, rawURL)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrExtractionFailed, rawURL, err)
	}
	return []domain.Document{doc}, nil
}

func (e *Extractor) extractWeb(ctx context.Context, rawURL string) (domain.Document, error) {
	resp, err := e.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return domain.Document{}, err
	}

	var text, title string
	if IsPDF(resp.ContentType, resp.Body) {
		raw, err := ExtractTextFromPDF(resp.Body)
		if err != nil {
			return domain.Document{}, fmt.Errorf("pdf: %w", err)
		}
		text = CollapseWhitespace(raw)
	} else {
		if title, text, err = ExtractArticle(string(resp.Body)); err != nil {
			return domain.Document{}, err
		}
	}
	if text == "" {
		return domain.Document{}, errors.New("page has no text")
	}

	extracted, err := e.completer.Complete(ctx, "", ExtractionPrompt(title, truncate(text, e.maxPageChars)))
	if err != nil {
		return domain.Document{}, fmt.Errorf("llm extraction: %w", err)
	}
	extracted = strings.TrimSpace(extracted)
	if extracted == "" {
		return domain.Document{}, errors.New("llm extraction returned no text")
	}

	return domain.Document{URL: rawURL, Title: title, Content: extracted}, nil
}

func (e *Extractor) extractPodcast(ctx context.Context, rawURL string) (domain.Document, error) {
	if e.podcasts == nil {
		return domain.Document{}, fmt.Errorf("%w: podcast transcription is not configured", ErrUnsupportedURL)
	}

	parts, err := e.podcasts.TranscribeEpisode(ctx, rawURL)
	if err != nil {
		return domain.Document{}, err
	}

	transcript := strings.TrimSpace(strings.Join(parts, "\n"))
	if transcript == "" {
		return domain.Document{}, errors.New("no transcript produced")
	}
	return domain.Document{URL: rawURL, Content: transcript}, nil
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}
