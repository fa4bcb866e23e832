package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/lostfound/backend/internal/domain"
	"github.com/lostfound/backend/internal/logger"
	"gonum.org/v1/gonum/mat"
)

// Embedder is the embeddings capability the embedding comparer needs
type Embedder interface {
	Embed(ctx context.Context, texts ...string) ([][]float32, error)
}

var firstNumberRegex = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// PromptComparer asks the model directly for a similarity score.
// It implements domain.SemanticComparer.
type PromptComparer struct {
	llm    Completer
	logger logger.Logger
}

// NewPromptComparer creates a comparer backed by the given completer
func NewPromptComparer(llm Completer, log logger.Logger) *PromptComparer {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &PromptComparer{
		llm:    llm,
		logger: log.WithFields(map[string]interface{}{"component": "llm_prompt_comparer"}),
	}
}

// CompareSemantic returns the model's rating in [0,1]. A reply without a
// number rates 0.
func (c *PromptComparer) CompareSemantic(ctx context.Context, textA, textB string) (float64, error) {
	reply, err := c.llm.Complete(ctx, comparePrompt(textA, textB), 0)
	if err != nil {
		return 0, domain.NewCollaboratorError(domain.CapabilitySemanticComparison, err)
	}
	return parseScore(reply), nil
}

func parseScore(reply string) float64 {
	match := firstNumberRegex.FindString(reply)
	if match == "" {
		return 0
	}
	score, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0
	}
	return clamp01(score)
}

// EmbeddingComparer scores descriptions by cosine similarity of their
// embeddings. It implements domain.SemanticComparer.
type EmbeddingComparer struct {
	embedder Embedder
	logger   logger.Logger
}

// NewEmbeddingComparer creates a comparer backed by the given embedder
func NewEmbeddingComparer(embedder Embedder, log logger.Logger) *EmbeddingComparer {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &EmbeddingComparer{
		embedder: embedder,
		logger:   log.WithFields(map[string]interface{}{"component": "llm_embedding_comparer"}),
	}
}

// CompareSemantic embeds both texts and returns their cosine similarity,
// with negative similarity reported as 0
func (c *EmbeddingComparer) CompareSemantic(ctx context.Context, textA, textB string) (float64, error) {
	vectors, err := c.embedder.Embed(ctx, textA, textB)
	if err != nil {
		return 0, domain.NewCollaboratorError(domain.CapabilitySemanticComparison, err)
	}
	if len(vectors) != 2 {
		return 0, domain.NewCollaboratorError(domain.CapabilitySemanticComparison,
			fmt.Errorf("expected 2 embeddings, got %d", len(vectors)))
	}

	similarity, err := cosineSimilarity(vectors[0], vectors[1])
	if err != nil {
		return 0, domain.NewCollaboratorError(domain.CapabilitySemanticComparison, err)
	}
	return clamp01(similarity), nil
}

func cosineSimilarity(a, b []float32) (float64, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, fmt.Errorf("embedding dimensions differ: %d vs %d", len(a), len(b))
	}

	va := mat.NewVecDense(len(a), toFloat64(a))
	vb := mat.NewVecDense(len(b), toFloat64(b))

	norms := mat.Norm(va, 2) * mat.Norm(vb, 2)
	if norms == 0 {
		return 0, errors.New("zero-length embedding")
	}
	return mat.Dot(va, vb) / norms, nil
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
