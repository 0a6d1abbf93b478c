package content

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thefalc/podcast-research-agent/pkg/audio"
)

type stubResolver struct {
	audioURL string
	err      error
}

func (s stubResolver) ResolveAudioURL(ctx context.Context, episodeURL string) (string, error) {
	return s.audioURL, s.err
}

type stubSplitter struct {
	gotURL string
	err    error
}

func (s *stubSplitter) AcquireAndSplit(ctx context.Context, audioURL string) (*audio.Job, error) {
	s.gotURL = audioURL
	if s.err != nil {
		return nil, s.err
	}
	return &audio.Job{Source: "/tmp/x.mp3", Chunks: []string{"/tmp/chunk_1_x.mp3", "/tmp/chunk_2_x.mp3"}}, nil
}

type stubJobTranscriber struct {
	called bool
}

func (s *stubJobTranscriber) Transcribe(ctx context.Context, job *audio.Job) ([]string, error) {
	s.called = true
	return []string{"a", "b"}, nil
}

func TestPodcastTranscriber(t *testing.T) {
	sp := &stubSplitter{}
	tr := &stubJobTranscriber{}
	p := &PodcastTranscriber{Resolver: stubResolver{audioURL: "https://cdn.example.com/ep.mp3"}, Splitter: sp, Transcriber: tr}

	parts, err := p.TranscribeEpisode(context.Background(), "https://podcasts.apple.com/us/podcast/x/id1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, parts)
	assert.Equal(t, "https://cdn.example.com/ep.mp3", sp.gotURL)
}

func TestPodcastTranscriber_StopsOnAcquisitionFailure(t *testing.T) {
	tr := &stubJobTranscriber{}
	p := &PodcastTranscriber{
		Resolver:    stubResolver{audioURL: "https://cdn.example.com/ep.mp3"},
		Splitter:    &stubSplitter{err: audio.ErrAcquisitionFailed},
		Transcriber: tr,
	}

	_, err := p.TranscribeEpisode(context.Background(), "https://podcasts.apple.com/us/podcast/x/id1")
	require.ErrorIs(t, err, audio.ErrAcquisitionFailed)
	assert.False(t, tr.called)
}

func TestPodcastTranscriber_ResolverError(t *testing.T) {
	sp := &stubSplitter{}
	boom := errors.New("feed not found")
	p := &PodcastTranscriber{Resolver: stubResolver{err: boom}, Splitter: sp, Transcriber: &stubJobTranscriber{}}

	_, err := p.TranscribeEpisode(context.Background(), "https://podcasts.apple.com/us/podcast/x/id1")
	require.ErrorIs(t, err, boom)
	assert.Empty(t, sp.gotURL)
}
