// Package openai implements the ai capabilities on OpenAI-compatible APIs via langchaingo.
package openai

import (
	"errors"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/thefalc/podcast-research-agent/pkg/logging"
)

// ErrAPIKeyRequired is returned when no API key is configured.
var ErrAPIKeyRequired = errors.New("openai api key is required")

// Config configures the provider.
type Config struct {
	APIKey            string
	BaseURL           string
	ChatModel         string
	ExtractionModel   string
	EmbeddingModel    string
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Provider owns the clients for chat, extraction and embeddings. All of them
// share one request rate limiter.
type Provider struct {
	chat       *Completer
	extraction *Completer
	embedder   *Embedder
	limiter    *rate.Limiter
}

// NewProvider creates the clients described by cfg.
func NewProvider(cfg Config, logger *zap.Logger) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyRequired
	}
	logger = logging.OrNop(logger).Named("openai")

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	chatLLM, err := openai.New(clientOptions(cfg, openai.WithModel(cfg.ChatModel))...)
	if err != nil {
		return nil, err
	}
	extractionLLM, err := openai.New(clientOptions(cfg, openai.WithModel(cfg.ExtractionModel))...)
	if err != nil {
		return nil, err
	}
	embedLLM, err := openai.New(clientOptions(cfg, openai.WithEmbeddingModel(cfg.EmbeddingModel))...)
	if err != nil {
		return nil, err
	}
	embedder, err := embeddings.NewEmbedder(embedLLM, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &Provider{
		chat:       &Completer{model: chatLLM, limiter: limiter, logger: logger.With(zap.String("model", cfg.ChatModel))},
		extraction: &Completer{model: extractionLLM, limiter: limiter, logger: logger.With(zap.String("model", cfg.ExtractionModel))},
		embedder:   &Embedder{embedder: embedder, limiter: limiter, logger: logger},
		limiter:    limiter,
	}, nil
}

// Chat returns the completer used for brief synthesis and query expansion.
func (p *Provider) Chat() *Completer { return p.chat }

// Extraction returns the completer used for page text extraction.
func (p *Provider) Extraction() *Completer { return p.extraction }

// Embedder returns the embedding client.
func (p *Provider) Embedder() *Embedder { return p.embedder }

// Limiter returns the shared request limiter so other OpenAI clients can respect it.
func (p *Provider) Limiter() *rate.Limiter { return p.limiter }

func clientOptions(cfg Config, extra ...openai.Option) []openai.Option {
	opts := []openai.Option{openai.WithToken(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, openai.WithHTTPClient(cfg.HTTPClient))
	}
	return append(opts, extra...)
}
