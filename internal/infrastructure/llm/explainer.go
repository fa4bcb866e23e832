package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/lostfound/backend/internal/domain"
	"github.com/lostfound/backend/internal/logger"
)

// Explainer writes a short rationale for a lost/found pair.
// It implements domain.MatchExplainer.
type Explainer struct {
	llm    Completer
	logger logger.Logger
}

// NewExplainer creates an explainer backed by the given completer
func NewExplainer(llm Completer, log logger.Logger) *Explainer {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Explainer{
		llm:    llm,
		logger: log.WithFields(map[string]interface{}{"component": "llm_explainer"}),
	}
}

// ExplainMatch returns the model's explanation with surrounding quotes removed
func (e *Explainer) ExplainMatch(ctx context.Context, lost, found *domain.Item, breakdown domain.SimilarityBreakdown) (string, error) {
	if lost == nil || found == nil {
		return "", domain.NewCollaboratorError(domain.CapabilityExplanation, errors.New("both items are required"))
	}

	reply, err := e.llm.Complete(ctx, explainPrompt(lost, found, breakdown), 0.7)
	if err != nil {
		return "", domain.NewCollaboratorError(domain.CapabilityExplanation, err)
	}

	text := strings.TrimSpace(strings.Trim(strings.TrimSpace(reply), `"`))
	if text == "" {
		return "", domain.NewCollaboratorError(domain.CapabilityExplanation, errors.New("empty explanation"))
	}
	return text, nil
}
