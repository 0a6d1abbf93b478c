package transcribe

import (
	"context"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Whisper transcribes audio files with the OpenAI audio transcription API.
type Whisper struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
}

// WhisperConfig configures a Whisper transcriber.
type WhisperConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Limiter    *rate.Limiter
}

// NewWhisper creates a Whisper transcriber.
func NewWhisper(cfg WhisperConfig) (*Whisper, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("whisper: api key is required")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &Whisper{client: openai.NewClientWithConfig(oc), model: model, limiter: cfg.Limiter}, nil
}

// Transcribe uploads the file at path and returns its transcript text.
func (w *Whisper) Transcribe(ctx context.Context, path string) (string, error) {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: path,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", path, err)
	}
	return resp.Text, nil
}
