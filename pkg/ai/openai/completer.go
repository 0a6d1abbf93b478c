package openai

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tmc/langchaingo/llms"
)

// ErrEmptyResponse is returned when the model answers with no choices.
var ErrEmptyResponse = errors.New("empty completion response")

// Completer implements ai.Completer on a langchaingo model.
type Completer struct {
	model   llms.Model
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewCompleter wraps an arbitrary langchaingo model.
func NewCompleter(model llms.Model, limiter *rate.Limiter, logger *zap.Logger) *Completer {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Completer{model: model, limiter: limiter, logger: logger}
}

// Complete sends the system and user messages at temperature 0 and returns the first choice.
func (c *Completer) Complete(ctx context.Context, system, user string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	messages := make([]llms.MessageContent, 0, 2)
	if system != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, user))

	c.logger.Debug("completion request", zap.Int("systemLen", len(system)), zap.Int("userLen", len(user)))
	resp, err := c.model.GenerateContent(ctx, messages, llms.WithTemperature(0.0))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}
