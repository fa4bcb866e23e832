package usecase

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/lostfound/backend/internal/domain"
	"github.com/lostfound/backend/internal/logger"
	"github.com/lostfound/backend/internal/metrics"
)

// Default scoring configuration
const (
	DefaultImageWeight         = 0.4
	DefaultTextWeight          = 0.4
	DefaultMetadataWeight      = 0.2
	DefaultConfidenceThreshold = 0.6
	DefaultMaxConcurrency      = 4
	DefaultScoringTimeout      = 30 * time.Second
)

// ScoringConfig holds the weights and threshold for the match scorer and orchestrator.
// Weights need not sum to 1; only the final composite score is clamped.
type ScoringConfig struct {
	ImageWeight         float64
	TextWeight          float64
	MetadataWeight      float64
	ConfidenceThreshold float64
	MaxConcurrency      int
	ScoringTimeout      time.Duration
}

// DefaultScoringConfig returns the stock weights and threshold
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		ImageWeight:         DefaultImageWeight,
		TextWeight:          DefaultTextWeight,
		MetadataWeight:      DefaultMetadataWeight,
		ConfidenceThreshold: DefaultConfidenceThreshold,
		MaxConcurrency:      DefaultMaxConcurrency,
		ScoringTimeout:      DefaultScoringTimeout,
	}
}

// Validate rejects non-finite weights and thresholds
func (c ScoringConfig) Validate() error {
	values := map[string]float64{
		"image weight":         c.ImageWeight,
		"text weight":          c.TextWeight,
		"metadata weight":      c.MetadataWeight,
		"confidence threshold": c.ConfidenceThreshold,
	}
	for name, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s must be a finite number, got %v", domain.ErrConfiguration, name, v)
		}
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("%w: max concurrency must not be negative", domain.ErrConfiguration)
	}
	return nil
}

// MatchScorer combines image, text and metadata similarity into a confidence score
type MatchScorer struct {
	config    ScoringConfig
	comparer  domain.SemanticComparer
	explainer domain.MatchExplainer
	logger    logger.Logger
}

// NewMatchScorer creates a scorer. The config is validated here so that a
// scorer never runs with NaN or infinite weights.
func NewMatchScorer(
	config ScoringConfig,
	comparer domain.SemanticComparer,
	explainer domain.MatchExplainer,
	log logger.Logger,
) (*MatchScorer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &MatchScorer{
		config:    config,
		comparer:  comparer,
		explainer: explainer,
		logger:    log.WithFields(map[string]interface{}{"component": "match_scorer"}),
	}, nil
}

// Threshold returns the minimum confidence score for a reportable match
func (s *MatchScorer) Threshold() float64 {
	return s.config.ConfidenceThreshold
}

// Score computes the similarity breakdown and confidence for one pair.
// The explanation generator is only called when the pair passes the threshold.
func (s *MatchScorer) Score(ctx context.Context, a, b domain.Candidate) (*domain.ScoreResult, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	breakdown := domain.SimilarityBreakdown{
		ImageSimilarity:    ImageSimilarity(a.ImageFeatures, b.ImageFeatures),
		TextSimilarity:     s.TextSimilarity(ctx, a.Item.Description, b.Item.Description),
		MetadataSimilarity: MetadataSimilarity(a.Normalized, b.Normalized),
	}

	confidence := clamp01(
		breakdown.ImageSimilarity*s.config.ImageWeight +
			breakdown.TextSimilarity*s.config.TextWeight +
			breakdown.MetadataSimilarity*s.config.MetadataWeight)

	result := &domain.ScoreResult{
		ConfidenceScore: confidence,
		Breakdown:       breakdown,
	}

	if confidence >= s.config.ConfidenceThreshold {
		lost, found := orderByType(a.Item, b.Item)
		result.Explanation = s.explain(ctx, lost, found, breakdown)
	}

	s.logger.Debug("pair scored", map[string]interface{}{
		"itemA":      a.Item.ID,
		"itemB":      b.Item.ID,
		"confidence": confidence,
		"image":      breakdown.ImageSimilarity,
		"text":       breakdown.TextSimilarity,
		"metadata":   breakdown.MetadataSimilarity,
	})

	return result, nil
}

// TextSimilarity asks the semantic comparer for a score. Any failure yields
// FallbackTextSimilarity so that one flaky call never fails the pair.
func (s *MatchScorer) TextSimilarity(ctx context.Context, textA, textB string) float64 {
	if s.comparer == nil {
		return domain.FallbackTextSimilarity
	}

	score, err := s.comparer.CompareSemantic(ctx, textA, textB)
	if err != nil {
		metrics.CollaboratorFallbacks.WithLabelValues(string(domain.CapabilitySemanticComparison)).Inc()
		s.logger.Warn("semantic comparison failed, using fallback", map[string]interface{}{
			"error": err,
		})
		return domain.FallbackTextSimilarity
	}
	return clamp01(score)
}

func (s *MatchScorer) explain(ctx context.Context, lost, found *domain.Item, breakdown domain.SimilarityBreakdown) string {
	if s.explainer == nil {
		return domain.FallbackExplanation
	}

	explanation, err := s.explainer.ExplainMatch(ctx, lost, found, breakdown)
	if err == nil {
		explanation = strings.TrimSpace(explanation)
	}
	if err != nil || explanation == "" {
		metrics.CollaboratorFallbacks.WithLabelValues(string(domain.CapabilityExplanation)).Inc()
		s.logger.Warn("explanation generation failed, using fallback", map[string]interface{}{
			"lostItemId":  lost.ID,
			"foundItemId": found.ID,
			"error":       err,
		})
		return domain.FallbackExplanation
	}
	return explanation
}

// orderByType returns the pair as (lost, found) based on each item's declared type
func orderByType(a, b *domain.Item) (lost, found *domain.Item) {
	if a.Type == domain.ItemTypeFound && b.Type == domain.ItemTypeLost {
		return b, a
	}
	return a, b
}
