package podcast

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Engineering Talk</title>
    <item>
      <title>Other Episode</title>
      <enclosure url="https://cdn.example.com/other.mp3" length="100" type="audio/mpeg"/>
    </item>
    <item>
      <title>Deep Dive Into Inference Optimization</title>
      <enclosure url="https://cdn.example.com/inference.mp3" length="200" type="audio/mpeg"/>
    </item>
  </channel>
</rss>`

func newCatalogAndFeed(t *testing.T, resultCount int) (*httptest.Server, *httptest.Server) {
	t.Helper()
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(testFeed))
	}))
	catalog := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "1234" || r.URL.Query().Get("entity") != "podcast" {
			t.Errorf("unexpected catalog query %q", r.URL.RawQuery)
		}
		if resultCount == 0 {
			_, _ = w.Write([]byte(`{"resultCount":0,"results":[]}`))
			return
		}
		fmt.Fprintf(w, `{"resultCount":1,"results":[{"feedUrl":%q}]}`, feed.URL)
	}))
	t.Cleanup(feed.Close)
	t.Cleanup(catalog.Close)
	return catalog, feed
}

func TestResolveAudioURL(t *testing.T) {
	catalog, _ := newCatalogAndFeed(t, 1)
	r := NewResolver(catalog.URL, nil, nil, nil)

	got, err := r.ResolveAudioURL(context.Background(), "https://podcasts.apple.com/us/podcast/deep-dive-into-inference-optimization/id1234?i=99")
	if err != nil {
		t.Fatalf("ResolveAudioURL() error = %v", err)
	}
	if got != "https://cdn.example.com/inference.mp3" {
		t.Errorf("ResolveAudioURL() = %q", got)
	}
}

func TestResolveAudioURL_FeedNotFound(t *testing.T) {
	catalog, _ := newCatalogAndFeed(t, 0)
	r := NewResolver(catalog.URL, nil, nil, nil)

	_, err := r.ResolveAudioURL(context.Background(), "https://podcasts.apple.com/us/podcast/anything/id1234")
	if !errors.Is(err, ErrFeedNotFound) {
		t.Fatalf("expected ErrFeedNotFound, got %v", err)
	}
}

func TestResolveAudioURL_EpisodeNotFound(t *testing.T) {
	catalog, _ := newCatalogAndFeed(t, 1)
	r := NewResolver(catalog.URL, nil, nil, nil)

	_, err := r.ResolveAudioURL(context.Background(), "https://podcasts.apple.com/us/podcast/not-in-the-feed/id1234")
	if !errors.Is(err, ErrEpisodeNotFound) {
		t.Fatalf("expected ErrEpisodeNotFound, got %v", err)
	}
}

func TestResolveAudioURL_Malformed(t *testing.T) {
	r := NewResolver("http://127.0.0.1:0", nil, nil, nil)
	_, err := r.ResolveAudioURL(context.Background(), "https://podcasts.apple.com/us/podcast/no-id-here/")
	if !errors.Is(err, ErrMalformedURL) {
		t.Fatalf("expected ErrMalformedURL, got %v", err)
	}
}
