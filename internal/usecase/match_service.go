package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lostfound/backend/internal/domain"
	"github.com/lostfound/backend/internal/logger"
)

// MatchService reads and resolves persisted matches
type MatchService struct {
	items   domain.ItemRepository
	matches domain.MatchRepository
	logger  logger.Logger
	now     func() time.Time
}

// NewMatchService creates a new match service
func NewMatchService(items domain.ItemRepository, matches domain.MatchRepository, log logger.Logger) *MatchService {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &MatchService{
		items:   items,
		matches: matches,
		logger:  log.WithFields(map[string]interface{}{"component": "match_service"}),
		now:     time.Now,
	}
}

// GetMatches returns the matches of an item, highest confidence first,
// each with the other item of the pair attached. Matches whose other item
// no longer exists are skipped.
func (s *MatchService) GetMatches(ctx context.Context, itemID string) ([]domain.MatchWithItem, error) {
	if strings.TrimSpace(itemID) == "" {
		return nil, fmt.Errorf("%w: item id is required", domain.ErrValidation)
	}

	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	matches, err := s.matches.ListForItem(ctx, item.ID, item.Type)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].ConfidenceScore > matches[j].ConfidenceScore
	})

	out := make([]domain.MatchWithItem, 0, len(matches))
	for _, m := range matches {
		otherID := m.LostItemID
		if item.Type == domain.ItemTypeLost {
			otherID = m.FoundItemID
		}

		other, err := s.items.GetByID(ctx, otherID)
		if errors.Is(err, domain.ErrItemNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, domain.MatchWithItem{Match: m, OtherItem: other})
	}
	return out, nil
}

// ResolveMatch confirms a pending match; both of its items become matched
func (s *MatchService) ResolveMatch(ctx context.Context, matchID string) (*domain.Match, error) {
	if strings.TrimSpace(matchID) == "" {
		return nil, fmt.Errorf("%w: match id is required", domain.ErrValidation)
	}

	match, err := s.matches.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}

	if err := match.Resolve(s.now().UTC()); err != nil {
		return nil, err
	}

	if err := s.matches.Resolve(ctx, match); err != nil {
		return nil, err
	}

	s.logger.Info("match resolved", map[string]interface{}{
		"matchId":     match.ID,
		"lostItemId":  match.LostItemID,
		"foundItemId": match.FoundItemID,
	})
	return match, nil
}
