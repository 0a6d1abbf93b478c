package db

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thefalc/podcast-research-agent/pkg/domain"
)

// MemoryStore is an in-process Store using brute-force cosine similarity search.
// Suitable for tests and single-process development runs.
type MemoryStore struct {
	mu        sync.RWMutex
	bundles   map[string]*domain.ResearchBundle
	chunks    []domain.TextChunk
	questions []domain.CandidateQuestion
	statuses  map[string]domain.IngestionStatus
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bundles:  make(map[string]*domain.ResearchBundle),
		statuses: make(map[string]domain.IngestionStatus),
	}
}

// CreateBundle stores a copy of b. An empty id is replaced with a generated one.
func (m *MemoryStore) CreateBundle(ctx context.Context, b *domain.ResearchBundle) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *b
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if _, exists := m.bundles[cp.ID]; exists {
		return "", fmt.Errorf("bundle %s already exists", cp.ID)
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.URLs = append([]string(nil), b.URLs...)
	m.bundles[cp.ID] = &cp
	return cp.ID, nil
}

// GetBundle returns a copy of the bundle.
func (m *MemoryStore) GetBundle(ctx context.Context, id string) (*domain.ResearchBundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.bundles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBundleNotFound, id)
	}
	cp := *b
	return &cp, nil
}

// DeleteBundle removes a bundle.
func (m *MemoryStore) DeleteBundle(id string) {
	m.mu.Lock()
	delete(m.bundles, id)
	m.mu.Unlock()
}

// SaveBrief sets the brief and processed flag if the bundle is not processed yet.
func (m *MemoryStore) SaveBrief(ctx context.Context, id, brief string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bundles[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrBundleNotFound, id)
	}
	if b.Processed {
		return fmt.Errorf("%w: %s", ErrAlreadyProcessed, id)
	}
	b.ResearchBriefText = brief
	b.Processed = true
	return nil
}

// ListProcessedBundles returns processed bundles ordered by creation time.
func (m *MemoryStore) ListProcessedBundles(ctx context.Context) ([]domain.ResearchBundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.ResearchBundle
	for _, b := range m.bundles {
		if b.Processed {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SaveChunks appends chunk records.
func (m *MemoryStore) SaveChunks(ctx context.Context, chunks []domain.TextChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		c.Embedding = append([]float32(nil), c.Embedding...)
		m.chunks = append(m.chunks, c)
	}
	return nil
}

// Chunks returns every stored chunk for a bundle in insertion order.
func (m *MemoryStore) Chunks(bundleID string) []domain.TextChunk {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.TextChunk
	for _, c := range m.chunks {
		if c.BundleID == bundleID {
			out = append(out, c)
		}
	}
	return out
}

// CountChunks returns how many chunks a bundle has.
func (m *MemoryStore) CountChunks(ctx context.Context, bundleID string) (int, error) {
	return len(m.Chunks(bundleID)), nil
}

// SearchChunks ranks the bundle's chunks by cosine similarity to query.
// Ties keep insertion order.
func (m *MemoryStore) SearchChunks(ctx context.Context, bundleID string, query []float32, k int) ([]domain.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	var scored []domain.ScoredChunk
	for _, c := range m.Chunks(bundleID) {
		if len(c.Embedding) != len(query) {
			return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), len(c.Embedding))
		}
		scored = append(scored, domain.ScoredChunk{
			BundleID: c.BundleID,
			Text:     c.Text,
			Score:    CosineSimilarity(query, c.Embedding),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

// AddQuestions stores mined questions for a bundle.
func (m *MemoryStore) AddQuestions(q ...domain.CandidateQuestion) {
	m.mu.Lock()
	m.questions = append(m.questions, q...)
	m.mu.Unlock()
}

// GetQuestions returns the mined questions of a bundle.
func (m *MemoryStore) GetQuestions(ctx context.Context, bundleID string) ([]domain.CandidateQuestion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.CandidateQuestion
	for _, q := range m.questions {
		if q.BundleID == bundleID {
			out = append(out, q)
		}
	}
	return out, nil
}

// SaveStatus replaces the ingestion status of a bundle.
func (m *MemoryStore) SaveStatus(ctx context.Context, status *domain.IngestionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *status
	cp.Failures = append([]domain.URLFailure(nil), status.Failures...)
	m.statuses[status.BundleID] = cp
	return nil
}

// GetStatus returns the ingestion status of a bundle.
func (m *MemoryStore) GetStatus(ctx context.Context, bundleID string) (*domain.IngestionStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.statuses[bundleID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStatusNotFound, bundleID)
	}
	return &s, nil
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either is a zero vector or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
