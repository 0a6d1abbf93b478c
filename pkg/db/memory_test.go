package db

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thefalc/podcast-research-agent/pkg/domain"
)

func TestMemoryStore_SaveBriefIsConditional(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id, err := s.CreateBundle(ctx, &domain.ResearchBundle{Context: "ctx"})
	require.NoError(t, err)

	require.NoError(t, s.SaveBrief(ctx, id, "<h1>first</h1>"))
	err = s.SaveBrief(ctx, id, "<h1>second</h1>")
	require.ErrorIs(t, err, ErrAlreadyProcessed)

	b, err := s.GetBundle(ctx, id)
	require.NoError(t, err)
	assert.True(t, b.Processed)
	assert.Equal(t, "<h1>first</h1>", b.ResearchBriefText)

	require.ErrorIs(t, s.SaveBrief(ctx, "missing", "x"), ErrBundleNotFound)
}

func TestMemoryStore_GetBundleReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id, err := s.CreateBundle(ctx, &domain.ResearchBundle{ID: "b1", URLs: []string{"u"}})
	require.NoError(t, err)
	assert.Equal(t, "b1", id)

	b, err := s.GetBundle(ctx, id)
	require.NoError(t, err)
	b.Processed = true

	again, err := s.GetBundle(ctx, id)
	require.NoError(t, err)
	assert.False(t, again.Processed)

	_, err = s.CreateBundle(ctx, &domain.ResearchBundle{ID: "b1"})
	require.Error(t, err)
}

func TestMemoryStore_SearchIsBundleScoped(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.SaveChunks(ctx, []domain.TextChunk{
		{BundleID: "a", Text: "exact", Embedding: []float32{1, 0}},
		{BundleID: "a", Text: "close", Embedding: []float32{0.9, 0.1}},
		{BundleID: "a", Text: "far", Embedding: []float32{0, 1}},
		{BundleID: "b", Text: "other bundle", Embedding: []float32{1, 0}},
	}))

	hits, err := s.SearchChunks(ctx, "a", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "exact", hits[0].Text)
	assert.Equal(t, "close", hits[1].Text)
	for _, h := range hits {
		assert.Equal(t, "a", h.BundleID)
	}

	n, err := s.CountChunks(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMemoryStore_Status(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.GetStatus(ctx, "a")
	require.ErrorIs(t, err, ErrStatusNotFound)

	require.NoError(t, s.SaveStatus(ctx, &domain.IngestionStatus{BundleID: "a", State: domain.IngestionComplete, Published: 3}))
	st, err := s.GetStatus(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.IngestionComplete, st.State)
	assert.Equal(t, 3, st.Published)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 1}))
	assert.False(t, math.IsNaN(CosineSimilarity(nil, nil)))
}
