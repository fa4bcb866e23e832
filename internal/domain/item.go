package domain

import (
	"fmt"
	"strings"
	"time"
)

// ItemType distinguishes lost reports from found reports
type ItemType string

const (
	ItemTypeLost  ItemType = "lost"
	ItemTypeFound ItemType = "found"
)

// Valid reports whether t is one of the known item types
func (t ItemType) Valid() bool {
	return t == ItemTypeLost || t == ItemTypeFound
}

// Opposite returns the type a report of type t is matched against
func (t ItemType) Opposite() ItemType {
	if t == ItemTypeLost {
		return ItemTypeFound
	}
	return ItemTypeLost
}

// ItemStatus is the lifecycle state of a report
type ItemStatus string

const (
	ItemStatusOpen    ItemStatus = "open"
	ItemStatusMatched ItemStatus = "matched"
)

// Category is the coarse item classification produced by the text normalizer
type Category string

const (
	CategoryElectronics Category = "electronics"
	CategoryClothing    Category = "clothing"
	CategoryAccessories Category = "accessories"
	CategoryDocuments   Category = "documents"
	CategoryOther       Category = "other"
)

// Categories lists every category the normalizer may return
var Categories = []Category{
	CategoryElectronics,
	CategoryClothing,
	CategoryAccessories,
	CategoryDocuments,
	CategoryOther,
}

// ParseCategory maps free text onto a known category, falling back to other
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c
		}
	}
	return CategoryOther
}

// Label is an image label detected by the feature extractor
type Label struct {
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// DetectedObject is a localized object detected by the feature extractor
type DetectedObject struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Color is one dominant color of an image
type Color struct {
	Red           int     `json:"red"`
	Green         int     `json:"green"`
	Blue          int     `json:"blue"`
	PixelFraction float64 `json:"pixelFraction"`
}

// ImageFeatureSet is everything the feature extractor reports for one image.
// Colors are ordered by descending pixel fraction, so Colors[0] is the dominant color.
type ImageFeatureSet struct {
	Labels  []Label          `json:"labels"`
	Objects []DetectedObject `json:"objects"`
	Colors  []Color          `json:"colors"`
	Text    string           `json:"text"`
}

// NormalizedItem is the text normalizer's structured reading of a description
type NormalizedItem struct {
	Description string   `json:"normalizedDescription"`
	Category    Category `json:"category"`
	Features    []string `json:"features"`
	Colors      []string `json:"colors"`
}

// FallbackNormalized is used whenever the text normalizer cannot produce a result.
// Normalization failure never blocks an item from being stored or matched.
func FallbackNormalized(description string) NormalizedItem {
	return NormalizedItem{
		Description: description,
		Category:    CategoryOther,
		Features:    []string{},
		Colors:      []string{},
	}
}

// Item is a single lost or found report
type Item struct {
	ID              string           `json:"id"`
	Type            ItemType         `json:"type"`
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	ImageRef        string           `json:"imageUrl"`
	Status          ItemStatus       `json:"status"`
	CreatedBy       string           `json:"createdBy"`
	CreatedAt       time.Time        `json:"createdAt"`
	ImageFeatures   *ImageFeatureSet `json:"imageFeatures,omitempty"`
	Normalized      *NormalizedItem  `json:"normalized,omitempty"`
	ProcessedAt     *time.Time       `json:"processedAt,omitempty"`
	ProcessingError string           `json:"processingError,omitempty"`
	MatchedAt       *time.Time       `json:"matchedAt,omitempty"`
}

// Processed reports whether features have been extracted for the item
func (i *Item) Processed() bool {
	return i.ImageFeatures != nil && i.Normalized != nil
}

// CreateItemRequest is a new report as submitted by a user
type CreateItemRequest struct {
	UserID      string   `json:"userId"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	ImageRef    string   `json:"imageUrl"`
	Type        ItemType `json:"type"`
}

// Validate checks that every required field is present
func (r *CreateItemRequest) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: empty request", ErrValidation)
	}

	var missing []string
	if strings.TrimSpace(r.UserID) == "" {
		missing = append(missing, "userId")
	}
	if strings.TrimSpace(r.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(r.Description) == "" {
		missing = append(missing, "description")
	}
	if strings.TrimSpace(r.ImageRef) == "" {
		missing = append(missing, "imageUrl")
	}
	if r.Type == "" {
		missing = append(missing, "type")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", ErrValidation, strings.Join(missing, ", "))
	}

	if !r.Type.Valid() {
		return fmt.Errorf("%w: type must be %q or %q", ErrValidation, ItemTypeLost, ItemTypeFound)
	}
	return nil
}

// ItemFilter narrows an item listing
type ItemFilter struct {
	Type   ItemType
	Status ItemStatus
	Limit  int
}
