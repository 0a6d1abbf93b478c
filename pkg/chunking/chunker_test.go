package chunking

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thefalc/podcast-research-agent/pkg/ai/mock"
	"github.com/thefalc/podcast-research-agent/pkg/domain"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("word%04d", i)
	}
	return strings.Join(parts, " ")
}

func TestSplit_SizeAndOverlap(t *testing.T) {
	c, err := New(&mock.Embedder{})
	require.NoError(t, err)

	parts, err := c.Split(words(400))
	require.NoError(t, err)
	require.Greater(t, len(parts), 1)

	for i, p := range parts {
		assert.LessOrEqual(t, utf8.RuneCountInString(p), DefaultChunkSize, "passage %d too long", i)
	}
	for i := 1; i < len(parts); i++ {
		first := strings.Fields(parts[i])[0]
		assert.Contains(t, parts[i-1], first, "passage %d does not overlap its predecessor", i)
		assert.False(t, strings.HasPrefix(parts[i-1], first), "passage %d repeats its predecessor", i)
	}
}

func TestSplit_ShortAndEmpty(t *testing.T) {
	c, err := New(&mock.Embedder{})
	require.NoError(t, err)

	parts, err := c.Split("A short post.")
	require.NoError(t, err)
	assert.Equal(t, []string{"A short post."}, parts)

	parts, err = c.Split("   \n\n ")
	require.NoError(t, err)
	assert.Empty(t, parts)
}

func TestChunkAndEmbed_OrderAndDimension(t *testing.T) {
	emb := &mock.Embedder{Dim: 16}
	c, err := New(emb, WithBatchSize(3))
	require.NoError(t, err)

	docs := []domain.Document{
		{URL: "https://a.example.com", Title: "First", Content: words(200)},
		{URL: "https://b.example.com", Title: "Second", Content: "second document"},
	}
	passages, err := c.ChunkAndEmbed(context.Background(), docs)
	require.NoError(t, err)
	require.NotEmpty(t, passages)

	assert.Equal(t, "second document", passages[len(passages)-1].Text)
	assert.Equal(t, "Second", passages[len(passages)-1].Title)
	assert.True(t, strings.HasPrefix(passages[0].Text, "word0000"))
	for _, p := range passages[:len(passages)-1] {
		assert.Equal(t, "First", p.Title)
	}
	for _, p := range passages {
		assert.Len(t, p.Embedding, 16)
		assert.Equal(t, mock.Vector(p.Text, 16), p.Embedding)
	}
	assert.Equal(t, (len(passages)+2)/3, emb.CallCount())
}

func TestChunkAndEmbed_DimensionMismatch(t *testing.T) {
	emb := &mock.Embedder{EmbedTextsFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = make([]float32, 4+i)
		}
		return out, nil
	}}
	c, err := New(emb)
	require.NoError(t, err)

	_, err = c.ChunkAndEmbed(context.Background(), []domain.Document{{Content: words(200)}})
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	require.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = New(&mock.Embedder{}, WithChunkSize(50), WithChunkOverlap(50))
	require.Error(t, err)
}
