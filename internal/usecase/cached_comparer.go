package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"github.com/lostfound/backend/internal/domain"
	"github.com/lostfound/backend/internal/logger"
)

var multipleSpacesRegex = regexp.MustCompile(`\s+`)

// CachedComparer caches semantic comparison scores. The cache key ignores
// argument order, case and whitespace. Cache failures never fail a comparison.
type CachedComparer struct {
	next   domain.SemanticComparer
	cache  domain.CacheRepository
	ttl    time.Duration
	logger logger.Logger
}

// NewCachedComparer wraps next with cache
func NewCachedComparer(next domain.SemanticComparer, cache domain.CacheRepository, ttl time.Duration, log logger.Logger) *CachedComparer {
	if ttl <= 0 {
		ttl = 168 * time.Hour // Default 7 days
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &CachedComparer{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "cached_comparer"}),
	}
}

// CompareSemantic returns a cached score or asks the wrapped comparer
func (c *CachedComparer) CompareSemantic(ctx context.Context, textA, textB string) (float64, error) {
	key := semanticCacheKey(textA, textB)

	if value, err := c.cache.Get(ctx, key); err == nil {
		if score, ok := value.(float64); ok {
			return score, nil
		}
	}

	score, err := c.next.CompareSemantic(ctx, textA, textB)
	if err != nil {
		return 0, err
	}

	if err := c.cache.Set(ctx, key, score, c.ttl); err != nil {
		c.logger.Warn("failed to cache semantic score", map[string]interface{}{"error": err})
	}
	return score, nil
}

// semanticCacheKey builds "semantic:{sha256}" from the order-insensitive pair
func semanticCacheKey(textA, textB string) string {
	a := normalizeForCacheKey(textA)
	b := normalizeForCacheKey(textB)
	if b < a {
		a, b = b, a
	}
	sum := sha256.Sum256([]byte(a + "\x00" + b))
	return "semantic:" + hex.EncodeToString(sum[:])
}

// normalizeForCacheKey lower-cases and collapses whitespace
func normalizeForCacheKey(s string) string {
	s = strings.ToLower(s)
	s = multipleSpacesRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
