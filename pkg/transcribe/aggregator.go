// Package transcribe turns split episode audio into transcript text.
package transcribe

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/thefalc/podcast-research-agent/pkg/audio"
	"github.com/thefalc/podcast-research-agent/pkg/logging"
)

// ErrChunkFailed marks a single chunk that could not be transcribed.
var ErrChunkFailed = errors.New("transcription chunk failed")

// Transcriber converts one local audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// Aggregator transcribes every chunk of a job in order.
type Aggregator struct {
	transcriber Transcriber
	logger      *zap.Logger
}

// NewAggregator creates an Aggregator.
func NewAggregator(t Transcriber, logger *zap.Logger) *Aggregator {
	return &Aggregator{transcriber: t, logger: logging.OrNop(logger).Named("transcribe")}
}

// Transcribe returns the text of each chunk that transcribed successfully, in chunk order.
// A failed chunk is logged and skipped. The job's files are always removed before returning.
func (a *Aggregator) Transcribe(ctx context.Context, job *audio.Job) (texts []string, err error) {
	defer func() {
		if cerr := job.Cleanup(); cerr != nil {
			a.logger.Warn("cleanup audio files", zap.Error(cerr))
		}
	}()

	for i, chunk := range job.Chunks {
		if err := ctx.Err(); err != nil {
			return texts, err
		}

		text, err := a.transcriber.Transcribe(ctx, chunk)
		if err != nil {
			a.logger.Warn("skipping chunk",
				zap.Int("chunk", i+1),
				zap.Int("chunks", len(job.Chunks)),
				zap.Error(fmt.Errorf("%w: %v", ErrChunkFailed, err)))
			continue
		}
		texts = append(texts, text)
	}

	a.logger.Info("transcribed audio",
		zap.Int("chunks", len(job.Chunks)),
		zap.Int("succeeded", len(texts)))
	return texts, nil
}
