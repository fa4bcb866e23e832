package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lostfound/backend/internal/domain"
	"github.com/lostfound/backend/internal/logger"
	"github.com/lostfound/backend/internal/metrics"
)

// Listing defaults
const (
	defaultListLimit      = 20
	maxListLimit          = 100
	defaultCandidateLimit = 50
)

// ItemServiceConfig holds configuration for the item service
type ItemServiceConfig struct {
	CandidateLimit int
}

// ItemService handles report submission and the extract -> normalize -> match pipeline
type ItemService struct {
	items          domain.ItemRepository
	matches        domain.MatchRepository
	extractor      domain.FeatureExtractor
	normalizer     domain.TextNormalizer
	orchestrator   *MatchOrchestrator
	candidateLimit int
	logger         logger.Logger
	now            func() time.Time
}

// NewItemService creates a new item service with dependencies
func NewItemService(
	items domain.ItemRepository,
	matches domain.MatchRepository,
	extractor domain.FeatureExtractor,
	normalizer domain.TextNormalizer,
	orchestrator *MatchOrchestrator,
	config ItemServiceConfig,
	log logger.Logger,
) *ItemService {
	limit := config.CandidateLimit
	if limit <= 0 {
		limit = defaultCandidateLimit
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &ItemService{
		items:          items,
		matches:        matches,
		extractor:      extractor,
		normalizer:     normalizer,
		orchestrator:   orchestrator,
		candidateLimit: limit,
		logger:         log.WithFields(map[string]interface{}{"component": "item_service"}),
		now:            time.Now,
	}
}

// CreateItem validates and stores a new open report
func (s *ItemService) CreateItem(ctx context.Context, request *domain.CreateItemRequest) (*domain.Item, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}

	item := &domain.Item{
		ID:          uuid.NewString(),
		Type:        request.Type,
		Title:       strings.TrimSpace(request.Title),
		Description: strings.TrimSpace(request.Description),
		ImageRef:    strings.TrimSpace(request.ImageRef),
		Status:      domain.ItemStatusOpen,
		CreatedBy:   request.UserID,
		CreatedAt:   s.now().UTC(),
	}

	if err := s.items.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}

	s.logger.Info("item created", map[string]interface{}{
		"itemId": item.ID,
		"type":   item.Type,
	})
	return item, nil
}

// GetItem returns a single item
func (s *ItemService) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: item id is required", domain.ErrValidation)
	}
	return s.items.GetByID(ctx, id)
}

// ListItems lists items by status (default open) and optional type, newest first
func (s *ItemService) ListItems(ctx context.Context, filter domain.ItemFilter) ([]*domain.Item, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown item type %q", domain.ErrValidation, filter.Type)
	}
	if filter.Status == "" {
		filter.Status = domain.ItemStatusOpen
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	return s.items.List(ctx, filter)
}

// ProcessItem extracts features for an item, stores them, and matches the item
// against open reports of the opposite type. Feature extraction failure is
// recorded on the item and returned; normalization failure falls back silently.
// Features are extracted once; a processed item is only re-matched.
func (s *ItemService) ProcessItem(ctx context.Context, id string) ([]domain.Match, error) {
	item, err := s.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != domain.ItemStatusOpen {
		return nil, fmt.Errorf("%w: item %s is %s", domain.ErrItemNotOpen, item.ID, item.Status)
	}

	log := s.logger.WithFields(map[string]interface{}{"itemId": item.ID})

	if item.Processed() {
		log.Info("item already processed, re-running matching", nil)
		return s.findAndCreateMatches(ctx, item)
	}

	log.Info("processing item", nil)

	features, err := s.extractor.ExtractFeatures(ctx, item.ImageRef)
	if err == nil && features == nil {
		err = domain.NewCollaboratorError(domain.CapabilityFeatureExtraction, errors.New("extractor returned no features"))
	}
	if err != nil {
		if !errors.Is(err, domain.ErrFeatureExtraction) {
			err = domain.NewCollaboratorError(domain.CapabilityFeatureExtraction, err)
		}
		log.Error("feature extraction failed", map[string]interface{}{"error": err})
		if recErr := s.items.RecordProcessingError(ctx, item.ID, err.Error()); recErr != nil {
			log.Error("failed to record processing error", map[string]interface{}{"error": recErr})
		}
		return nil, err
	}

	normalized := s.normalizeWithFallback(ctx, item, features.Labels)

	if err := s.items.SaveFeatures(ctx, item.ID, features, &normalized); err != nil {
		return nil, fmt.Errorf("save features: %w", err)
	}
	processedAt := s.now().UTC()
	item.ImageFeatures = features
	item.Normalized = &normalized
	item.ProcessedAt = &processedAt

	log.Info("item features extracted", map[string]interface{}{
		"labels":   len(features.Labels),
		"category": normalized.Category,
	})

	return s.findAndCreateMatches(ctx, item)
}

// normalizeWithFallback never fails; any normalizer error yields FallbackNormalized
func (s *ItemService) normalizeWithFallback(ctx context.Context, item *domain.Item, labels []domain.Label) domain.NormalizedItem {
	if s.normalizer == nil {
		return domain.FallbackNormalized(item.Description)
	}

	normalized, err := s.normalizer.NormalizeDescription(ctx, item.Description, labels)
	if err != nil || normalized == nil {
		metrics.CollaboratorFallbacks.WithLabelValues(string(domain.CapabilityNormalization)).Inc()
		s.logger.Warn("normalization failed, using fallback", map[string]interface{}{
			"itemId": item.ID,
			"error":  err,
		})
		return domain.FallbackNormalized(item.Description)
	}

	out := *normalized
	if out.Description == "" {
		out.Description = item.Description
	}
	out.Category = domain.ParseCategory(string(out.Category))
	if out.Features == nil {
		out.Features = []string{}
	}
	if out.Colors == nil {
		out.Colors = []string{}
	}
	return out
}

func (s *ItemService) findAndCreateMatches(ctx context.Context, item *domain.Item) ([]domain.Match, error) {
	candidates, err := s.items.ListCandidates(ctx, item.Type.Opposite(), item.ID, s.candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	pool := make([]domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		pool = append(pool, domain.CandidateFromItem(c))
	}

	result, err := s.orchestrator.Orchestrate(ctx, domain.CandidateFromItem(item), pool)
	if err != nil {
		return nil, err
	}

	if len(result.Matches) == 0 {
		return []domain.Match{}, nil
	}

	saved, err := s.matches.SaveAll(ctx, result.Matches)
	if err != nil {
		return nil, fmt.Errorf("save matches: %w", err)
	}

	s.logger.Info("matches created", map[string]interface{}{
		"itemId":  item.ID,
		"matches": len(saved),
	})
	return saved, nil
}
