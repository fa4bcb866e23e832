package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lostfound/backend/internal/domain"
)

// stubComparer returns a fixed score, or err when set
type stubComparer struct {
	score float64
	err   error
	calls atomic.Int32
}

func (s *stubComparer) CompareSemantic(ctx context.Context, textA, textB string) (float64, error) {
	s.calls.Add(1)
	if s.err != nil {
		return 0, s.err
	}
	return s.score, nil
}

// stubExplainer counts calls so tests can assert it was never invoked
type stubExplainer struct {
	text  string
	err   error
	calls atomic.Int32

	mu        sync.Mutex
	lastLost  string
	lastFound string
}

func (s *stubExplainer) ExplainMatch(ctx context.Context, lost, found *domain.Item, breakdown domain.SimilarityBreakdown) (string, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.lastLost, s.lastFound = lost.ID, found.ID
	s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return s.text, nil
}

type stubExtractor struct {
	features *domain.ImageFeatureSet
	err      error
}

func (s *stubExtractor) ExtractFeatures(ctx context.Context, imageRef string) (*domain.ImageFeatureSet, error) {
	return s.features, s.err
}

type stubNormalizer struct {
	normalized *domain.NormalizedItem
	err        error
}

func (s *stubNormalizer) NormalizeDescription(ctx context.Context, description string, labels []domain.Label) (*domain.NormalizedItem, error) {
	return s.normalized, s.err
}

// memoryItemRepo is an in-memory domain.ItemRepository
type memoryItemRepo struct {
	mu               sync.Mutex
	items            map[string]*domain.Item
	processingErrors map[string]string
	createErr        error
}

func newMemoryItemRepo(items ...*domain.Item) *memoryItemRepo {
	r := &memoryItemRepo{items: map[string]*domain.Item{}, processingErrors: map[string]string{}}
	for _, it := range items {
		r.items[it.ID] = it
	}
	return r
}

func (r *memoryItemRepo) Create(ctx context.Context, item *domain.Item) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.ID] = item
	return nil
}

func (r *memoryItemRepo) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	cp := *it
	return &cp, nil
}

func (r *memoryItemRepo) List(ctx context.Context, filter domain.ItemFilter) ([]*domain.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Item
	for _, it := range r.items {
		if it.Status != filter.Status {
			continue
		}
		if filter.Type != "" && it.Type != filter.Type {
			continue
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memoryItemRepo) ListCandidates(ctx context.Context, itemType domain.ItemType, excludeID string, limit int) ([]*domain.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Item
	for _, it := range r.items {
		if it.ID == excludeID || it.Type != itemType || it.Status != domain.ItemStatusOpen || !it.Processed() {
			continue
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryItemRepo) SaveFeatures(ctx context.Context, id string, features *domain.ImageFeatureSet, normalized *domain.NormalizedItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok {
		return domain.ErrItemNotFound
	}
	now := time.Now()
	it.ImageFeatures = features
	it.Normalized = normalized
	it.ProcessedAt = &now
	return nil
}

func (r *memoryItemRepo) RecordProcessingError(ctx context.Context, id string, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processingErrors[id] = message
	if it, ok := r.items[id]; ok {
		it.ProcessingError = message
	}
	return nil
}

// memoryMatchRepo is an in-memory domain.MatchRepository
type memoryMatchRepo struct {
	mu      sync.Mutex
	matches map[string]*domain.Match
	items   *memoryItemRepo
	seq     int
}

func newMemoryMatchRepo(items *memoryItemRepo) *memoryMatchRepo {
	return &memoryMatchRepo{matches: map[string]*domain.Match{}, items: items}
}

func (r *memoryMatchRepo) SaveAll(ctx context.Context, matches []domain.Match) ([]domain.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var saved []domain.Match
	for _, m := range matches {
		dup := false
		for _, existing := range r.matches {
			if existing.PairKey() == m.PairKey() {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		r.seq++
		m.ID = "match-" + string(rune('0'+r.seq))
		m.CreatedAt = time.Now()
		cp := m
		r.matches[m.ID] = &cp
		saved = append(saved, m)
	}
	return saved, nil
}

func (r *memoryMatchRepo) GetByID(ctx context.Context, id string) (*domain.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return nil, domain.ErrMatchNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *memoryMatchRepo) ListForItem(ctx context.Context, itemID string, itemType domain.ItemType) ([]domain.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Match
	for _, m := range r.matches {
		if (itemType == domain.ItemTypeLost && m.LostItemID == itemID) ||
			(itemType == domain.ItemTypeFound && m.FoundItemID == itemID) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryMatchRepo) Resolve(ctx context.Context, match *domain.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[match.ID]
	if !ok {
		return domain.ErrMatchNotFound
	}
	*m = *match
	if r.items != nil {
		r.items.mu.Lock()
		for _, id := range []string{match.LostItemID, match.FoundItemID} {
			if it, ok := r.items.items[id]; ok {
				it.Status = domain.ItemStatusMatched
			}
		}
		r.items.mu.Unlock()
	}
	return nil
}

var errCollaborator = errors.New("collaborator unavailable")

// Fixtures shared across tests

func watchFeatures(r, g, b int) *domain.ImageFeatureSet {
	return &domain.ImageFeatureSet{
		Labels: []domain.Label{
			{Description: "Watch", Confidence: 0.97},
			{Description: "Wearable", Confidence: 0.91},
		},
		Objects: []domain.DetectedObject{{Name: "Watch", Confidence: 0.92}},
		Colors: []domain.Color{
			{Red: r, Green: g, Blue: b, PixelFraction: 0.7},
			{Red: 50, Green: 50, Blue: 50, PixelFraction: 0.2},
		},
	}
}

func processedItem(id string, itemType domain.ItemType, features *domain.ImageFeatureSet, normalized *domain.NormalizedItem) *domain.Item {
	now := time.Now()
	return &domain.Item{
		ID:            id,
		Type:          itemType,
		Title:         "item " + id,
		Description:   "description of " + id,
		ImageRef:      "https://images.example.com/" + id + ".jpg",
		Status:        domain.ItemStatusOpen,
		CreatedBy:     "user-" + id,
		CreatedAt:     now,
		ImageFeatures: features,
		Normalized:    normalized,
		ProcessedAt:   &now,
	}
}

func candidateOf(item *domain.Item) domain.Candidate {
	return domain.CandidateFromItem(item)
}
