package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thefalc/podcast-research-agent/pkg/httpclient"
	"github.com/thefalc/podcast-research-agent/pkg/logging"
)

// DefaultMaxChunkBytes is the largest file the transcription service accepts.
const DefaultMaxChunkBytes int64 = 25 * 1024 * 1024

var (
	// ErrAcquisitionFailed is returned when the audio could not be downloaded.
	ErrAcquisitionFailed = errors.New("audio acquisition failed")
	// ErrSplitFailed is returned when the audio could not be cut into chunks.
	ErrSplitFailed = errors.New("audio split failed")
)

// CommandRunner runs an external command. Tests replace it to avoid ffmpeg.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Job is one downloaded episode and the chunk files cut from it.
// Chunks is ordered by chunk index; when no split was needed it holds only Source.
type Job struct {
	Source string
	Chunks []string
}

// Files returns every distinct file owned by the job.
func (j *Job) Files() []string {
	seen := make(map[string]bool, len(j.Chunks)+1)
	var out []string
	for _, f := range append([]string{j.Source}, j.Chunks...) {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// Cleanup removes the source and every chunk file. Missing files are not an error.
func (j *Job) Cleanup() error {
	var errs []error
	for _, f := range j.Files() {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Splitter downloads episode audio to scratch storage and cuts oversized files.
type Splitter struct {
	client        *httpclient.HTTPClient
	scratchDir    string
	maxChunkBytes int64
	secondsPerMB  float64
	ffmpeg        string
	run           CommandRunner
	logger        *zap.Logger
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithScratchDir sets where downloads and chunks are written.
func WithScratchDir(dir string) Option {
	return func(s *Splitter) { s.scratchDir = dir }
}

// WithMaxChunkBytes sets the split threshold.
func WithMaxChunkBytes(n int64) Option {
	return func(s *Splitter) { s.maxChunkBytes = n }
}

// WithSecondsPerMB sets the duration heuristic.
func WithSecondsPerMB(v float64) Option {
	return func(s *Splitter) { s.secondsPerMB = v }
}

// WithFFmpeg sets the ffmpeg binary.
func WithFFmpeg(path string) Option {
	return func(s *Splitter) { s.ffmpeg = path }
}

// WithCommandRunner sets a custom command runner (for testing).
func WithCommandRunner(run CommandRunner) Option {
	return func(s *Splitter) { s.run = run }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Splitter) { s.logger = l }
}

// NewSplitter creates a Splitter that downloads with client.
func NewSplitter(client *httpclient.HTTPClient, opts ...Option) *Splitter {
	s := &Splitter{
		client:        client,
		scratchDir:    os.TempDir(),
		maxChunkBytes: DefaultMaxChunkBytes,
		secondsPerMB:  DefaultSecondsPerMB,
		ffmpeg:        "ffmpeg",
		run:           runCommand,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = httpclient.NewClient(httpclient.BrowserClient)
	}
	s.logger = logging.OrNop(s.logger).Named("audio")
	return s
}

// AcquireAndSplit downloads audioURL and returns the chunk files to transcribe.
// The caller owns the returned Job and must call Cleanup. On error nothing is left behind.
func (s *Splitter) AcquireAndSplit(ctx context.Context, audioURL string) (*Job, error) {
	source, size, err := s.download(ctx, audioURL)
	if err != nil {
		return nil, err
	}

	job := &Job{Source: source, Chunks: []string{source}}
	windows := PlanWindows(size, s.maxChunkBytes, s.secondsPerMB)
	if windows == nil {
		s.logger.Debug("no split needed", zap.String("file", source), zap.String("size", humanize.IBytes(uint64(size))))
		return job, nil
	}

	s.logger.Info("splitting audio",
		zap.String("file", source),
		zap.String("size", humanize.IBytes(uint64(size))),
		zap.Int("chunks", len(windows)),
		zap.Float64("chunkSeconds", windows[0].Duration()))

	job.Chunks = make([]string, 0, len(windows))
	for i, w := range windows {
		dest := ChunkPath(source, w.Index)
		job.Chunks = append(job.Chunks, dest)
		if err := s.cut(ctx, source, dest, w, i == len(windows)-1); err != nil {
			_ = job.Cleanup()
			return nil, fmt.Errorf("%w: chunk %d: %v", ErrSplitFailed, w.Index+1, err)
		}
	}
	return job, nil
}

// ChunkPath names chunk index i of source, next to source.
func ChunkPath(source string, i int) string {
	return filepath.Join(filepath.Dir(source), fmt.Sprintf("chunk_%d_%s", i+1, filepath.Base(source)))
}

func (s *Splitter) download(ctx context.Context, audioURL string) (string, int64, error) {
	if err := os.MkdirAll(s.scratchDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("%w: create scratch dir: %v", ErrAcquisitionFailed, err)
	}

	path := filepath.Join(s.scratchDir, uuid.NewString()+".mp3")
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrAcquisitionFailed, err)
	}

	n, err := s.client.Download(ctx, audioURL, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("%w: %v", ErrAcquisitionFailed, err)
	}

	s.logger.Info("downloaded audio", zap.String("url", audioURL), zap.String("size", humanize.IBytes(uint64(n))))
	return path, n, nil
}

// cut copies one window of source into dest without re-encoding.
// The last window is open-ended so an underestimated duration never drops audio.
func (s *Splitter) cut(ctx context.Context, source, dest string, w Window, last bool) error {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", formatSeconds(w.Start),
		"-i", source,
	}
	if !last {
		args = append(args, "-t", formatSeconds(w.Duration()))
	}
	args = append(args, "-vn", "-c", "copy", dest)
	return s.run(ctx, s.ffmpeg, args...)
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}
