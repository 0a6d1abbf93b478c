package podcast

import (
	"errors"
	"strings"
	"testing"
)

func TestParseEpisodeURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    EpisodeRef
		wantErr bool
	}{
		{
			name: "apple episode url",
			url:  "https://podcasts.apple.com/us/podcast/deep-dive-into-inference-optimization/id1234567890?i=1000654321",
			want: EpisodeRef{FeedID: "1234567890", TitleSlug: "deep-dive-into-inference-optimization"},
		},
		{
			name: "uppercase slug is lowered",
			url:  "https://podcasts.apple.com/gb/podcast/Scaling-Kafka/id42",
			want: EpisodeRef{FeedID: "42", TitleSlug: "scaling-kafka"},
		},
		{
			name: "percent in title is decoded once",
			url:  "https://podcasts.apple.com/us/podcast/100%25-uptime-myths/id42?i=7",
			want: EpisodeRef{FeedID: "42", TitleSlug: "100-uptime-myths"},
		},
		{
			name: "accents and quotes are normalized like titles",
			url:  "https://podcasts.apple.com/fr/podcast/caf%C3%A9-talk-it%E2%80%99s-live/id42",
			want: EpisodeRef{FeedID: "42", TitleSlug: "caf-talk-its-live"},
		},
		{
			name:    "title with no slug characters",
			url:     "https://podcasts.apple.com/jp/podcast/%E6%97%A5%E6%9C%AC/id42",
			wantErr: true,
		},
		{
			name:    "missing id",
			url:     "https://podcasts.apple.com/us/podcast/some-episode/",
			wantErr: true,
		},
		{
			name:    "missing title",
			url:     "https://podcasts.apple.com/us/id42",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEpisodeURL(tt.url)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedURL) {
					t.Fatalf("expected ErrMalformedURL, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEpisodeURL() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseEpisodeURL() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseEpisodeURL_MatchesNormalizedTitle(t *testing.T) {
	ref, err := ParseEpisodeURL("https://podcasts.apple.com/fr/podcast/caf%C3%A9-talk-it%E2%80%99s-live/id42")
	if err != nil {
		t.Fatalf("ParseEpisodeURL() error = %v", err)
	}
	episodes := []Episode{
		{Title: "Other Episode", AudioURL: "https://cdn.example/other.mp3"},
		{Title: "Café Talk: It’s Live", AudioURL: "https://cdn.example/cafe.mp3"},
	}
	got, err := MatchEpisode(episodes, ref.TitleSlug)
	if err != nil {
		t.Fatalf("MatchEpisode() error = %v", err)
	}
	if got.AudioURL != "https://cdn.example/cafe.mp3" {
		t.Errorf("MatchEpisode() = %+v, want the cafe episode", got)
	}
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"Deep Dive Into Inference Optimization": "deep-dive-into-inference-optimization",
		"  Episode 42: Kafka, Flink & You!  ":   "episode-42-kafka-flink-you",
		"Already-a-slug":                        "already-a-slug",
		"Dashes -- and   spaces":                "dashes-and-spaces",
		"Tabs\tand\nnewlines":                   "tabs-and-newlines",
		"":                                      "",
	}
	for in, want := range tests {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSlug_Idempotent(t *testing.T) {
	inputs := []string{
		"Deep Dive Into Inference Optimization",
		"  Ünïcode – Titles — with ‘quotes’ ",
		"a - b -- c",
		"---leading and trailing---",
		"What's new in Go 1.24?",
		"MiXeD   CaSe\twith\ttabs",
	}
	for _, in := range inputs {
		once := Slug(in)
		if twice := Slug(once); twice != once {
			t.Errorf("Slug not idempotent for %q: %q then %q", in, once, twice)
		}
		if once != strings.ToLower(once) {
			t.Errorf("Slug(%q) = %q is not lowercase", in, once)
		}
		if strings.ContainsAny(once, " \t\n") || strings.Contains(once, "--") {
			t.Errorf("Slug(%q) = %q has whitespace or repeated hyphens", in, once)
		}
	}
}

func TestMatchEpisode_FirstMatchWins(t *testing.T) {
	episodes := []Episode{
		{Title: "Deep Dive Into Inference Optimization", AudioURL: "https://cdn.example.com/1.mp3"},
		{Title: "Other Episode", AudioURL: "https://cdn.example.com/2.mp3"},
		{Title: "Deep Dive Into Inference Optimization (Rerun)", AudioURL: "https://cdn.example.com/3.mp3"},
	}

	got, err := MatchEpisode(episodes, "deep-dive-into-inference-optimization")
	if err != nil {
		t.Fatalf("MatchEpisode() error = %v", err)
	}
	if got != episodes[0] {
		t.Errorf("MatchEpisode() = %+v, want first episode", got)
	}
}

func TestMatchEpisode_NoMatch(t *testing.T) {
	_, err := MatchEpisode([]Episode{{Title: "Other Episode"}}, "missing-slug")
	if !errors.Is(err, ErrEpisodeNotFound) {
		t.Fatalf("expected ErrEpisodeNotFound, got %v", err)
	}
}
