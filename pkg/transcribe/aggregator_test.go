package transcribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thefalc/podcast-research-agent/pkg/audio"
)

type fakeTranscriber struct {
	texts map[string]string
	fail  map[string]bool
	seen  []string
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	f.seen = append(f.seen, path)
	if f.fail[path] {
		return "", errors.New("rate limited")
	}
	return f.texts[path], nil
}

func writeJob(t *testing.T, chunks int) *audio.Job {
	t.Helper()
	dir := t.TempDir()
	source := filepath.Join(dir, "episode.mp3")
	require.NoError(t, os.WriteFile(source, []byte("src"), 0o600))
	job := &audio.Job{Source: source}
	for i := 0; i < chunks; i++ {
		p := audio.ChunkPath(source, i)
		require.NoError(t, os.WriteFile(p, []byte("chunk"), 0o600))
		job.Chunks = append(job.Chunks, p)
	}
	return job
}

func TestAggregator_InOrderAndCleansUp(t *testing.T) {
	job := writeJob(t, 3)
	ft := &fakeTranscriber{texts: map[string]string{
		job.Chunks[0]: "one",
		job.Chunks[1]: "two",
		job.Chunks[2]: "three",
	}}

	texts, err := NewAggregator(ft, nil).Transcribe(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, texts)
	assert.Equal(t, job.Chunks, ft.seen)

	for _, f := range job.Files() {
		assert.NoFileExists(t, f)
	}
}

func TestAggregator_SkipsFailedChunk(t *testing.T) {
	job := writeJob(t, 3)
	ft := &fakeTranscriber{
		texts: map[string]string{job.Chunks[0]: "one", job.Chunks[2]: "three"},
		fail:  map[string]bool{job.Chunks[1]: true},
	}

	texts, err := NewAggregator(ft, nil).Transcribe(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "three"}, texts)
	for _, f := range job.Files() {
		assert.NoFileExists(t, f)
	}
}

func TestAggregator_SingleFileJob(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "small.mp3")
	require.NoError(t, os.WriteFile(source, []byte("src"), 0o600))
	job := &audio.Job{Source: source, Chunks: []string{source}}
	ft := &fakeTranscriber{texts: map[string]string{source: "whole episode"}}

	texts, err := NewAggregator(ft, nil).Transcribe(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, []string{"whole episode"}, texts)
	assert.NoFileExists(t, source)
}

func TestAggregator_CancelledStillCleansUp(t *testing.T) {
	job := writeJob(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAggregator(&fakeTranscriber{}, nil).Transcribe(ctx, job)
	require.ErrorIs(t, err, context.Canceled)
	for _, f := range job.Files() {
		assert.NoFileExists(t, f)
	}
}
