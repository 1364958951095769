// Package confidence scores assistant responses on data quality,
// completeness and cultural accuracy, and keeps the latest score per
// session for review tooling.
package confidence

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dialogd/internal/analysis"
)

const (
	// defaultBase is used when the provider reports no confidence.
	defaultBase = 0.6

	// reviewThreshold flags responses below this overall score.
	reviewThreshold = 0.5

	completenessBonus   = 0.2
	completenessPenalty = -0.1
	culturalDefault     = 0.1
)

// Dimensions are the per-axis scores that fed the overall value.
type Dimensions struct {
	DataQuality      float64 `json:"data_quality"`
	Completeness     float64 `json:"completeness"`
	CulturalAccuracy float64 `json:"cultural_accuracy"`
}

// Breakdown is a scored response.
type Breakdown struct {
	SessionID      string     `json:"session_id"`
	Overall        float64    `json:"overall"`
	Dimensions     Dimensions `json:"dimensions"`
	RequiresReview bool       `json:"requires_review"`
	EvaluatedAt    time.Time  `json:"evaluated_at"`
}

// Score computes the confidence breakdown for a response.
//
// The overall value is the provider's own confidence (0.6 when absent)
// adjusted for completeness (+0.2 with at least one algorithm result,
// -0.1 without) and cultural accuracy (+0.1, or the numeric
// "cultural_adjustment" metadata override), clamped to [0, 1].
func Score(resp *analysis.Response) Breakdown {
	base := defaultBase
	if resp != nil && resp.Confidence != nil {
		base = *resp.Confidence
	}

	completeness := completenessPenalty
	if resp != nil && len(resp.AlgorithmResults) > 0 {
		completeness = completenessBonus
	}

	cultural := culturalDefault
	if resp != nil {
		if override, ok := culturalOverride(resp.Metadata); ok {
			cultural = override
		}
	}

	overall := clamp01(base + completeness + cultural)
	return Breakdown{
		Overall: overall,
		Dimensions: Dimensions{
			DataQuality:      clamp01(base),
			Completeness:     completeness,
			CulturalAccuracy: cultural,
		},
		RequiresReview: overall < reviewThreshold,
		EvaluatedAt:    time.Now(),
	}
}

func culturalOverride(meta map[string]any) (float64, bool) {
	if meta == nil {
		return 0, false
	}
	switch v := meta[analysis.MetaCulturalAdjustment].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

// Evaluator scores responses and records them through a Repository.
type Evaluator struct {
	repo   Repository
	logger *zap.Logger
}

// NewEvaluator creates an evaluator. repo may be nil, in which case
// scores are computed but not persisted.
func NewEvaluator(repo Repository, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{repo: repo, logger: logger}
}

// Evaluate scores resp for the session and upserts the breakdown.
// Repository failures are logged and the score is still returned.
func (e *Evaluator) Evaluate(ctx context.Context, sessionID string, resp *analysis.Response) Breakdown {
	b := Score(resp)
	b.SessionID = sessionID

	if e.repo != nil {
		if err := e.repo.Upsert(ctx, b); err != nil {
			e.logger.Warn("confidence upsert failed",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
	}
	return b
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
