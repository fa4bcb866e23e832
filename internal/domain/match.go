package domain

import (
	"fmt"
	"time"
)

// MatchStatus is the lifecycle state of a proposed match.
// The only transition is pending -> resolved.
type MatchStatus string

const (
	MatchStatusPending  MatchStatus = "pending"
	MatchStatusResolved MatchStatus = "resolved"
)

// FallbackTextSimilarity is the text similarity used when semantic comparison fails
const FallbackTextSimilarity = 0.0

// FallbackExplanation is used when the explanation generator fails
const FallbackExplanation = "These items may match based on their visual and textual similarities."

// SimilarityBreakdown holds the three per-signal similarities of a candidate pair
type SimilarityBreakdown struct {
	ImageSimilarity    float64 `json:"imageSimilarity"`
	TextSimilarity     float64 `json:"textSimilarity"`
	MetadataSimilarity float64 `json:"metadataSimilarity"`
}

// ScoreResult is the outcome of scoring one pair
type ScoreResult struct {
	ConfidenceScore float64             `json:"confidenceScore"`
	Explanation     string              `json:"explanation"`
	Breakdown       SimilarityBreakdown `json:"breakdown"`
}

// Match is a proposed pairing between one lost and one found item
type Match struct {
	ID              string              `json:"matchId"`
	LostItemID      string              `json:"lostItemId"`
	FoundItemID     string              `json:"foundItemId"`
	ConfidenceScore float64             `json:"confidenceScore"`
	Explanation     string              `json:"explanation"`
	Breakdown       SimilarityBreakdown `json:"breakdown"`
	Status          MatchStatus         `json:"status"`
	CreatedAt       time.Time           `json:"createdAt"`
	ResolvedAt      *time.Time          `json:"resolvedAt,omitempty"`
}

// PairKey identifies the ordered (lost, found) pair of a match
func (m *Match) PairKey() string {
	return m.LostItemID + "|" + m.FoundItemID
}

// Resolve moves a pending match to resolved
func (m *Match) Resolve(at time.Time) error {
	if m.Status == MatchStatusResolved {
		return fmt.Errorf("%w: %s", ErrMatchAlreadyResolved, m.ID)
	}
	if m.Status != MatchStatusPending {
		return fmt.Errorf("%w: unknown match status %q", ErrValidation, m.Status)
	}
	m.Status = MatchStatusResolved
	m.ResolvedAt = &at
	return nil
}

// MatchWithItem is a match as seen from one of its items
type MatchWithItem struct {
	Match
	OtherItem *Item `json:"otherItem"`
}

// Candidate bundles an item with its extracted and normalized features
type Candidate struct {
	Item          *Item
	ImageFeatures *ImageFeatureSet
	Normalized    *NormalizedItem
}

// CandidateFromItem builds a Candidate from an item's stored features
func CandidateFromItem(item *Item) Candidate {
	return Candidate{
		Item:          item,
		ImageFeatures: item.ImageFeatures,
		Normalized:    item.Normalized,
	}
}

// Validate checks the candidate carries everything needed for scoring
func (c Candidate) Validate() error {
	if c.Item == nil {
		return fmt.Errorf("%w: candidate has no item", ErrValidation)
	}
	if !c.Item.Type.Valid() {
		return fmt.Errorf("%w: item %s has invalid type %q", ErrValidation, c.Item.ID, c.Item.Type)
	}
	if c.ImageFeatures == nil {
		return fmt.Errorf("%w: item %s has no image features", ErrValidation, c.Item.ID)
	}
	if c.Normalized == nil {
		return fmt.Errorf("%w: item %s has no normalized description", ErrValidation, c.Item.ID)
	}
	return nil
}
