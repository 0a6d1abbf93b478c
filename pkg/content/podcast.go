package content

import (
	"context"

	"github.com/thefalc/podcast-research-agent/pkg/audio"
)

// AudioResolver finds the downloadable audio of an episode page.
type AudioResolver interface {
	ResolveAudioURL(ctx context.Context, episodeURL string) (string, error)
}

// AudioSplitter downloads audio and cuts it into transcribable chunks.
type AudioSplitter interface {
	AcquireAndSplit(ctx context.Context, audioURL string) (*audio.Job, error)
}

// JobTranscriber transcribes every chunk of a job and removes its files.
type JobTranscriber interface {
	Transcribe(ctx context.Context, job *audio.Job) ([]string, error)
}

// PodcastTranscriber chains episode resolution, audio splitting and transcription.
type PodcastTranscriber struct {
	Resolver    AudioResolver
	Splitter    AudioSplitter
	Transcriber JobTranscriber
}

// TranscribeEpisode returns the transcript parts of an episode in chunk order.
func (p *PodcastTranscriber) TranscribeEpisode(ctx context.Context, episodeURL string) ([]string, error) {
	audioURL, err := p.Resolver.ResolveAudioURL(ctx, episodeURL)
	if err != nil {
		return nil, err
	}

	job, err := p.Splitter.AcquireAndSplit(ctx, audioURL)
	if err != nil {
		return nil, err
	}

	return p.Transcriber.Transcribe(ctx, job)
}
