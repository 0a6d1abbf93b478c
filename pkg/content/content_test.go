package content

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thefalc/podcast-research-agent/pkg/ai/mock"
	"github.com/thefalc/podcast-research-agent/pkg/httpclient"
)

const testPage = `<!DOCTYPE html>
<html>
<head>
  <title>Scaling Vector Search</title>
  <style>body { color: red; }</style>
  <script>var tracking = "ignore me";</script>
</head>
<body>
  <h1>Scaling Vector Search</h1>
  <p>Vector   databases
     index embeddings.</p><p>They answer nearest-neighbour queries.</p>
</body>
</html>`

func TestClassify(t *testing.T) {
	tests := map[string]Kind{
		"https://podcasts.apple.com/us/podcast/ep/id123":  KindPodcast,
		"https://www.youtube.com/watch?v=abc":             KindVideo,
		"https://youtu.be/abc":                            KindVideo,
		"https://example.com/post":                        KindWeb,
		"https://notpodcasts.apple.com.evil.example/ep":   KindWeb,
		"https://blog.example.com/youtube.com-in-the-url": KindWeb,
		"::not a url": KindWeb,
	}
	for in, want := range tests {
		assert.Equal(t, want, Classify(in), in)
	}
}

func TestNormalizeHTML(t *testing.T) {
	text, err := NormalizeHTML(testPage)
	require.NoError(t, err)

	assert.NotContains(t, text, "tracking")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "<")
	assert.Contains(t, text, "Vector databases index embeddings.")
	assert.Contains(t, text, "embeddings. They answer")
	assert.NotContains(t, text, "  ")
	assert.Equal(t, strings.TrimSpace(text), text)
}

func TestExtractArticle_TitleFallbacks(t *testing.T) {
	title, _, err := ExtractArticle(`<html><head><meta property="og:title" content="OG Title"></head><body></body></html>`)
	require.NoError(t, err)
	assert.Equal(t, "OG Title", title)

	title, _, err = ExtractArticle(`<html><body><h1>Heading Only</h1></body></html>`)
	require.NoError(t, err)
	assert.Equal(t, "Heading Only", title)
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF("application/pdf", nil))
	assert.True(t, IsPDF("application/octet-stream", []byte("%PDF-1.7\n...")))
	assert.False(t, IsPDF("text/html; charset=utf-8", []byte("<html>")))
}

func newExtractor(t *testing.T, completer *mock.Completer, podcasts EpisodeTranscriber) *Extractor {
	t.Helper()
	e, err := NewExtractor(Config{
		Fetcher:   httpclient.NewClient(httpclient.BrowserClient),
		Completer: completer,
		Podcasts:  podcasts,
	})
	require.NoError(t, err)
	return e
}

func TestExtract_WebPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(testPage))
	}))
	defer srv.Close()

	completer := &mock.Completer{Response: "  Vector databases index embeddings.  "}
	docs, err := newExtractor(t, completer, nil).Extract(context.Background(), srv.URL+"/post")
	require.NoError(t, err)
	require.Len(t, docs, 1)

	assert.Equal(t, srv.URL+"/post", docs[0].URL)
	assert.Equal(t, "Scaling Vector Search", docs[0].Title)
	assert.Equal(t, "Vector databases index embeddings.", docs[0].Content)

	calls := completer.Calls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].System)
	assert.Contains(t, calls[0].User, "Here is the content of a webpage:")
	assert.Contains(t, calls[0].User, "Title: Scaling Vector Search\n")
	assert.Contains(t, calls[0].User, "They answer nearest-neighbour queries.")
	assert.Contains(t, calls[0].User, "summarize the most important information on the page")
}

const articlePage = `<!DOCTYPE html>
<html>
<head><title>Embedding Drift in Production</title></head>
<body>
  <div class="sidebar"><a href="/a">Subscribe to our newsletter</a> <a href="/b">Archive</a></div>
  <article>
    <h1>Embedding Drift in Production</h1>
    <p>Embedding models change over time, and vectors produced by an older model stop lining up with vectors produced by a newer one. Teams notice this first as a slow decline in retrieval quality.</p>
    <p>The usual fix is to re-embed the whole corpus whenever the model changes, and to keep the model version next to every stored vector so that mixed indexes can be detected early.</p>
    <p>Some teams also keep a small golden set of queries and expected hits, and run it after every deploy to catch drift before users do.</p>
  </article>
  <div class="footer">Copyright Example Corp</div>
</body>
</html>`

func TestExtractArticle(t *testing.T) {
	title, text, err := ExtractArticle(articlePage)
	require.NoError(t, err)
	assert.Equal(t, "Embedding Drift in Production", title)
	assert.Contains(t, text, "re-embed the whole corpus whenever the model changes")
	assert.Contains(t, text, "golden set of queries")
	assert.NotContains(t, text, "Subscribe to our newsletter")
	assert.NotContains(t, text, "<")
}

func TestExtractArticle_ShortPageUsesWholeText(t *testing.T) {
	title, text, err := ExtractArticle(testPage)
	require.NoError(t, err)
	assert.Equal(t, "Scaling Vector Search", title)

	whole, err := NormalizeHTML(testPage)
	require.NoError(t, err)
	assert.Equal(t, whole, text)
}

func TestExtractionPrompt_OmitsEmptyTitle(t *testing.T) {
	prompt := ExtractionPrompt("", "page text")
	assert.NotContains(t, prompt, "Title:")
	assert.Contains(t, prompt, "Here is the content of a webpage:\npage text\n")

	prompt = ExtractionPrompt("A Post", "page text")
	assert.Contains(t, prompt, "Here is the content of a webpage:\nTitle: A Post\npage text\n")
}

func TestExtract_WebFailures(t *testing.T) {
	notFound := httptest.NewServer(http.NotFoundHandler())
	defer notFound.Close()

	_, err := newExtractor(t, &mock.Completer{Response: "x"}, nil).Extract(context.Background(), notFound.URL)
	require.ErrorIs(t, err, ErrExtractionFailed)
	require.ErrorIs(t, err, httpclient.ErrUnexpectedStatus)

	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(testPage))
	}))
	defer ok.Close()

	_, err = newExtractor(t, &mock.Completer{Response: "   "}, nil).Extract(context.Background(), ok.URL)
	require.ErrorIs(t, err, ErrExtractionFailed)

	llmDown := &mock.Completer{CompleteFunc: func(ctx context.Context, system, user string) (string, error) {
		return "", errors.New("503 from model")
	}}
	_, err = newExtractor(t, llmDown, nil).Extract(context.Background(), ok.URL)
	require.ErrorIs(t, err, ErrExtractionFailed)
}

func TestExtract_InvalidPDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 truncated"))
	}))
	defer srv.Close()

	_, err := newExtractor(t, &mock.Completer{Response: "x"}, nil).Extract(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrExtractionFailed)
}

func TestExtract_Video(t *testing.T) {
	completer := &mock.Completer{Response: "x"}
	_, err := newExtractor(t, completer, nil).Extract(context.Background(), "https://www.youtube.com/watch?v=1")
	require.ErrorIs(t, err, ErrExtractionFailed)
	require.ErrorIs(t, err, ErrUnsupportedURL)
	assert.Empty(t, completer.Calls())
}

type fakeEpisodes struct {
	parts []string
	err   error
}

func (f fakeEpisodes) TranscribeEpisode(ctx context.Context, episodeURL string) ([]string, error) {
	return f.parts, f.err
}

func TestExtract_Podcast(t *testing.T) {
	const episode = "https://podcasts.apple.com/us/podcast/deep-dive/id42"

	docs, err := newExtractor(t, &mock.Completer{}, fakeEpisodes{parts: []string{"part one", "part two"}}).
		Extract(context.Background(), episode)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "part one\npart two", docs[0].Content)

	_, err = newExtractor(t, &mock.Completer{}, fakeEpisodes{}).Extract(context.Background(), episode)
	require.ErrorIs(t, err, ErrExtractionFailed)

	notFound := errors.New("episode not found")
	_, err = newExtractor(t, &mock.Completer{}, fakeEpisodes{err: notFound}).Extract(context.Background(), episode)
	require.ErrorIs(t, err, notFound)

	_, err = newExtractor(t, &mock.Completer{}, nil).Extract(context.Background(), episode)
	require.ErrorIs(t, err, ErrUnsupportedURL)
}
