package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/lostfound/backend/internal/domain"
	"github.com/lostfound/backend/internal/logger"
	"github.com/xeipuuv/gojsonschema"
)

// maxNormalizedFeatures caps how many distinguishing features are kept
const maxNormalizedFeatures = 5

// Completer is the chat capability the normalizer, prompt comparer and explainer need
type Completer interface {
	Complete(ctx context.Context, prompt string, temperature float32) (string, error)
}

var jsonObjectRegex = regexp.MustCompile(`(?s)\{.*\}`)

const normalizedSchema = `{
  "type": "object",
  "required": ["normalized_description", "category"],
  "properties": {
    "normalized_description": {"type": "string"},
    "category": {"type": "string"},
    "features": {"type": "array", "items": {"type": "string"}},
    "colors": {"type": "array", "items": {"type": "string"}}
  }
}`

type normalizerReply struct {
	NormalizedDescription string   `json:"normalized_description"`
	Category              string   `json:"category"`
	Features              []string `json:"features"`
	Colors                []string `json:"colors"`
}

// Normalizer reads a free-text description into a structured NormalizedItem.
// It implements domain.TextNormalizer.
type Normalizer struct {
	llm    Completer
	schema *gojsonschema.Schema
	logger logger.Logger
}

// NewNormalizer creates a normalizer backed by the given completer
func NewNormalizer(llm Completer, log logger.Logger) (*Normalizer, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(normalizedSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile normalizer schema: %w", err)
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Normalizer{
		llm:    llm,
		schema: schema,
		logger: log.WithFields(map[string]interface{}{"component": "llm_normalizer"}),
	}, nil
}

// NormalizeDescription asks the model for a normalized description, category,
// features and colors. Failures are returned as normalization collaborator errors.
func (n *Normalizer) NormalizeDescription(ctx context.Context, description string, labels []domain.Label) (*domain.NormalizedItem, error) {
	reply, err := n.llm.Complete(ctx, normalizePrompt(description, labels), 0.2)
	if err != nil {
		return nil, domain.NewCollaboratorError(domain.CapabilityNormalization, err)
	}

	normalized, err := n.parse(reply)
	if err != nil {
		n.logger.Warn("unusable normalizer reply", map[string]interface{}{
			"error": err,
			"reply": truncate(reply, 200),
		})
		return nil, domain.NewCollaboratorError(domain.CapabilityNormalization, err)
	}
	return normalized, nil
}

func (n *Normalizer) parse(reply string) (*domain.NormalizedItem, error) {
	raw := jsonObjectRegex.FindString(reply)
	if raw == "" {
		return nil, errors.New("no JSON object in reply")
	}

	result, err := n.schema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid JSON in reply: %w", err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return nil, fmt.Errorf("reply does not match schema: %s", strings.Join(problems, "; "))
	}

	var out normalizerReply
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to decode reply: %w", err)
	}

	features := cleanStrings(out.Features)
	if len(features) > maxNormalizedFeatures {
		features = features[:maxNormalizedFeatures]
	}

	return &domain.NormalizedItem{
		Description: strings.TrimSpace(out.NormalizedDescription),
		Category:    domain.ParseCategory(out.Category),
		Features:    features,
		Colors:      cleanStrings(out.Colors),
	}, nil
}

// cleanStrings trims entries and drops blanks; the result is never nil
func cleanStrings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
