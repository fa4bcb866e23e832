package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned when an item or request is malformed
	ErrValidation = errors.New("validation failed")

	// ErrConfiguration is returned when weights or thresholds are unusable
	ErrConfiguration = errors.New("invalid configuration")

	// ErrFeatureExtraction is returned when image features cannot be extracted
	ErrFeatureExtraction = errors.New("feature extraction failed")

	// ErrNormalization is returned when the text normalizer fails
	ErrNormalization = errors.New("description normalization failed")

	// ErrSemanticComparison is returned when the semantic comparer fails
	ErrSemanticComparison = errors.New("semantic comparison failed")

	// ErrExplanation is returned when the explanation generator fails
	ErrExplanation = errors.New("explanation generation failed")

	// ErrItemNotFound is returned when an item does not exist
	ErrItemNotFound = errors.New("item not found")

	// ErrMatchNotFound is returned when a match does not exist
	ErrMatchNotFound = errors.New("match not found")

	// ErrMatchAlreadyResolved is returned when resolving a match twice
	ErrMatchAlreadyResolved = errors.New("match already resolved")

	// ErrItemNotOpen is returned when matching an item that is no longer open
	ErrItemNotOpen = errors.New("item is not open")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrRateLimited is returned when rate limit or queue capacity is exceeded
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Capability names an external collaborator
type Capability string

const (
	CapabilityFeatureExtraction  Capability = "feature_extraction"
	CapabilityNormalization      Capability = "normalization"
	CapabilitySemanticComparison Capability = "semantic_comparison"
	CapabilityExplanation        Capability = "explanation"
)

var capabilitySentinels = map[Capability]error{
	CapabilityFeatureExtraction:  ErrFeatureExtraction,
	CapabilityNormalization:      ErrNormalization,
	CapabilitySemanticComparison: ErrSemanticComparison,
	CapabilityExplanation:        ErrExplanation,
}

// CollaboratorError wraps a failure of one external capability
type CollaboratorError struct {
	Capability Capability
	Err        error
}

// NewCollaboratorError wraps err as a failure of capability c
func NewCollaboratorError(c Capability, err error) *CollaboratorError {
	return &CollaboratorError{Capability: c, Err: err}
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s collaborator failure: %v", e.Capability, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the capability sentinel, e.g. ErrFeatureExtraction
func (e *CollaboratorError) Is(target error) bool {
	sentinel, ok := capabilitySentinels[e.Capability]
	return ok && target == sentinel
}
