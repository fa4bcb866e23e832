package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/lostfound/backend/internal/domain"
	"github.com/lostfound/backend/internal/logger"
	"github.com/lostfound/backend/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// PairScorer scores one candidate pair
type PairScorer interface {
	Score(ctx context.Context, a, b domain.Candidate) (*domain.ScoreResult, error)
}

// thresholdScorer is a scorer that gates explanations on its own threshold
type thresholdScorer interface {
	Threshold() float64
}

// CandidateFailure records a candidate whose scoring failed
type CandidateFailure struct {
	ItemID string
	Err    error
}

// OrchestrationResult is the outcome of matching one item against a pool
type OrchestrationResult struct {
	Matches  []domain.Match
	Scored   int
	Failures []CandidateFailure
}

// MatchOrchestrator scores a new item against a candidate pool and emits matches
type MatchOrchestrator struct {
	scorer         PairScorer
	threshold      float64
	maxConcurrency int
	scoringTimeout time.Duration
	logger         logger.Logger
}

// NewMatchOrchestrator creates an orchestrator. MaxConcurrency bounds the number
// of pairs (and so external calls) in flight at once; zero means sequential.
// A scorer with its own threshold must agree with config, or matches could be
// emitted without an explanation.
func NewMatchOrchestrator(config ScoringConfig, scorer PairScorer, log logger.Logger) (*MatchOrchestrator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if scorer == nil {
		return nil, fmt.Errorf("%w: orchestrator requires a scorer", domain.ErrConfiguration)
	}
	if ts, ok := scorer.(thresholdScorer); ok && ts.Threshold() != config.ConfidenceThreshold {
		return nil, fmt.Errorf("%w: scorer threshold %.2f differs from orchestrator threshold %.2f",
			domain.ErrConfiguration, ts.Threshold(), config.ConfidenceThreshold)
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	concurrency := config.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &MatchOrchestrator{
		scorer:         scorer,
		threshold:      config.ConfidenceThreshold,
		maxConcurrency: concurrency,
		scoringTimeout: config.ScoringTimeout,
		logger:         log.WithFields(map[string]interface{}{"component": "match_orchestrator"}),
	}, nil
}

type pairOutcome struct {
	candidate domain.Candidate
	result    *domain.ScoreResult
	err       error
}

// Orchestrate scores an open subject against every open, opposite-type candidate.
// The pool is treated as a read-only snapshot. A failing candidate is recorded
// in Failures and never stops the others; each (lost, found) pair is scored at
// most once per call.
func (o *MatchOrchestrator) Orchestrate(
	ctx context.Context,
	subject domain.Candidate,
	pool []domain.Candidate,
) (*OrchestrationResult, error) {
	if err := subject.Validate(); err != nil {
		return nil, err
	}
	if subject.Item.Status != domain.ItemStatusOpen {
		return nil, fmt.Errorf("%w: item %s is %s", domain.ErrItemNotOpen, subject.Item.ID, subject.Item.Status)
	}

	result := &OrchestrationResult{}
	eligible := o.eligibleCandidates(subject, pool, result)

	outcomes := make([]pairOutcome, len(eligible))

	var g errgroup.Group
	g.SetLimit(o.maxConcurrency)
	for i, candidate := range eligible {
		i, candidate := i, candidate
		g.Go(func() error {
			outcomes[i] = o.scoreOne(ctx, subject, candidate)
			return nil
		})
	}
	_ = g.Wait()

	for _, out := range outcomes {
		if out.err != nil {
			metrics.ScoringFailures.Inc()
			o.logger.Error("candidate scoring failed", map[string]interface{}{
				"itemId":      subject.Item.ID,
				"candidateId": out.candidate.Item.ID,
				"error":       out.err,
			})
			result.Failures = append(result.Failures, CandidateFailure{ItemID: out.candidate.Item.ID, Err: out.err})
			continue
		}

		result.Scored++
		metrics.CandidatesScored.Inc()

		if out.result.ConfidenceScore < o.threshold {
			continue
		}

		match := newMatch(subject.Item, out.candidate.Item, out.result)
		result.Matches = append(result.Matches, match)
		metrics.MatchesCreated.Inc()
	}

	o.logger.Info("orchestration complete", map[string]interface{}{
		"itemId":     subject.Item.ID,
		"candidates": len(eligible),
		"scored":     result.Scored,
		"matches":    len(result.Matches),
		"failures":   len(result.Failures),
	})

	return result, nil
}

// eligibleCandidates keeps open, opposite-type candidates, dropping repeats of the same item
func (o *MatchOrchestrator) eligibleCandidates(subject domain.Candidate, pool []domain.Candidate, result *OrchestrationResult) []domain.Candidate {
	want := subject.Item.Type.Opposite()
	seen := make(map[string]bool, len(pool))
	eligible := make([]domain.Candidate, 0, len(pool))

	for _, c := range pool {
		if c.Item == nil {
			result.Failures = append(result.Failures, CandidateFailure{
				Err: fmt.Errorf("%w: candidate has no item", domain.ErrValidation),
			})
			continue
		}
		if c.Item.ID == subject.Item.ID || c.Item.Type != want || c.Item.Status != domain.ItemStatusOpen {
			continue
		}
		if seen[c.Item.ID] {
			continue
		}
		seen[c.Item.ID] = true
		eligible = append(eligible, c)
	}
	return eligible
}

func (o *MatchOrchestrator) scoreOne(ctx context.Context, subject, candidate domain.Candidate) (out pairOutcome) {
	out.candidate = candidate
	start := time.Now()

	defer func() {
		metrics.ScoringDuration.Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			out.result = nil
			out.err = fmt.Errorf("scoring panicked: %v", r)
		}
	}()

	if o.scoringTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.scoringTimeout)
		defer cancel()
	}

	res, err := o.scorer.Score(ctx, subject, candidate)
	if err == nil && res == nil {
		err = fmt.Errorf("scorer returned no result")
	}
	out.result = res
	out.err = err
	return out
}

// newMatch assigns lost/found ids by each item's declared type, never by submission order
func newMatch(subject, candidate *domain.Item, score *domain.ScoreResult) domain.Match {
	lost, found := orderByType(subject, candidate)
	return domain.Match{
		LostItemID:      lost.ID,
		FoundItemID:     found.ID,
		ConfidenceScore: clamp01(score.ConfidenceScore),
		Explanation:     score.Explanation,
		Breakdown:       score.Breakdown,
		Status:          domain.MatchStatusPending,
	}
}
