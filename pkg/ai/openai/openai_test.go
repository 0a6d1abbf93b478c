package openai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type fakeModel struct {
	messages []llms.MessageContent
	reply    string
	err      error
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	if f.err != nil {
		return nil, f.err
	}
	if f.reply == "" {
		return &llms.ContentResponse{}, nil
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

type fakeEmbedder struct {
	dim int
}

func (f fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func (f fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, f.dim), nil
}

func TestCompleter_SystemAndUserRoles(t *testing.T) {
	m := &fakeModel{reply: "<h1>Brief</h1>"}
	c := NewCompleter(m, nil, nil)

	out, err := c.Complete(context.Background(), "persona", "context")
	require.NoError(t, err)
	assert.Equal(t, "<h1>Brief</h1>", out)

	require.Len(t, m.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, m.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, m.messages[1].Role)
	assert.Equal(t, llms.TextContent{Text: "context"}, m.messages[1].Parts[0])
}

func TestCompleter_UserOnly(t *testing.T) {
	m := &fakeModel{reply: "text"}
	_, err := NewCompleter(m, nil, nil).Complete(context.Background(), "", "page")
	require.NoError(t, err)
	require.Len(t, m.messages, 1)
	assert.Equal(t, llms.ChatMessageTypeHuman, m.messages[0].Role)
}

func TestCompleter_Errors(t *testing.T) {
	_, err := NewCompleter(&fakeModel{}, nil, nil).Complete(context.Background(), "", "x")
	require.ErrorIs(t, err, ErrEmptyResponse)

	boom := errors.New("boom")
	_, err = NewCompleter(&fakeModel{err: boom}, nil, nil).Complete(context.Background(), "", "x")
	require.ErrorIs(t, err, boom)
}

func TestEmbedder_ConstantDimension(t *testing.T) {
	e := &Embedder{embedder: fakeEmbedder{dim: 1536}, limiter: rate.NewLimiter(rate.Inf, 1), logger: zap.NewNop()}

	vecs, err := e.EmbedTexts(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.Len(t, v, 1536)
	}

	q, err := e.EmbedText(context.Background(), "query")
	require.NoError(t, err)
	assert.Len(t, q, 1536)
}

func TestNewProvider_RequiresKey(t *testing.T) {
	_, err := NewProvider(Config{}, nil)
	require.ErrorIs(t, err, ErrAPIKeyRequired)
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(Config{
		APIKey:            "sk-test",
		BaseURL:           "http://127.0.0.1:1/v1",
		ChatModel:         "gpt-4o",
		ExtractionModel:   "gpt-4o-mini",
		EmbeddingModel:    "text-embedding-3-small",
		RequestsPerSecond: 2,
	}, nil)
	require.NoError(t, err)
	assert.NotNil(t, p.Chat())
	assert.NotNil(t, p.Extraction())
	assert.NotNil(t, p.Embedder())
	assert.Equal(t, rate.Limit(2), p.Limiter().Limit())
}
