package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// FeatureExtractor turns an image reference into labels, objects, colors and text
type FeatureExtractor interface {
	ExtractFeatures(ctx context.Context, imageRef string) (*ImageFeatureSet, error)
}

// TextNormalizer reads a free-text description together with detected labels
type TextNormalizer interface {
	NormalizeDescription(ctx context.Context, description string, labels []Label) (*NormalizedItem, error)
}

// SemanticComparer rates how similar two descriptions are, in [0,1]
type SemanticComparer interface {
	CompareSemantic(ctx context.Context, textA, textB string) (float64, error)
}

// MatchExplainer writes a short rationale for a lost/found pair
type MatchExplainer interface {
	ExplainMatch(ctx context.Context, lost, found *Item, breakdown SimilarityBreakdown) (string, error)
}

// ItemRepository persists items and their extracted features
type ItemRepository interface {
	Create(ctx context.Context, item *Item) error
	GetByID(ctx context.Context, id string) (*Item, error)
	List(ctx context.Context, filter ItemFilter) ([]*Item, error)
	// ListCandidates returns processed, open items of the given type, excluding excludeID
	ListCandidates(ctx context.Context, itemType ItemType, excludeID string, limit int) ([]*Item, error)
	SaveFeatures(ctx context.Context, id string, features *ImageFeatureSet, normalized *NormalizedItem) error
	RecordProcessingError(ctx context.Context, id string, message string) error
}

// MatchRepository persists matches. SaveAll must ignore pairs that already exist.
type MatchRepository interface {
	SaveAll(ctx context.Context, matches []Match) ([]Match, error)
	GetByID(ctx context.Context, id string) (*Match, error)
	ListForItem(ctx context.Context, itemID string, itemType ItemType) ([]Match, error)
	// Resolve marks the match resolved and both referenced items matched, atomically
	Resolve(ctx context.Context, match *Match) error
}
