// Package policy decides the next conversation state from the session
// context. The default engine is a fixed priority list of rules; the
// first matching rule wins.
package policy

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dialogd/internal/session"
)

// Action is a follow-up the orchestrator should take after a decision.
type Action string

const (
	ActionAskMore   Action = "ask_more"
	ActionAnalyze   Action = "analyze"
	ActionSummarize Action = "summarize"
	ActionHandoff   Action = "handoff"
)

// TagExpertHandoff marks sessions that asked for a human expert.
const TagExpertHandoff = "expert-handoff"

// Decision is the outcome of a policy evaluation.
type Decision struct {
	NextState  session.StateType `json:"next_state"`
	Reasoning  string            `json:"reasoning"`
	Confidence float64           `json:"confidence"`
	Actions    []Action          `json:"actions"`
}

// Engine evaluates a session context into a routing decision.
type Engine interface {
	Evaluate(ctx context.Context, sctx *session.Context) (Decision, error)
}

// RuleBased is the default Engine: a fixed priority rule list.
type RuleBased struct {
	logger *zap.Logger
}

// NewRuleBased creates the default rule-based policy engine.
func NewRuleBased(logger *zap.Logger) *RuleBased {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RuleBased{logger: logger}
}

// Evaluate applies the rules in priority order:
//
//  1. incomplete birth data keeps the session collecting info
//  2. an expert-handoff tag routes to a human, even mid-analysis
//  3. no analysis yet routes to analyzing
//  4. otherwise recommend, with confidence growing per analysis
func (e *RuleBased) Evaluate(_ context.Context, sctx *session.Context) (Decision, error) {
	if sctx == nil {
		return Decision{}, errors.New("policy: session context is required")
	}

	if !sctx.UserProfile.Birth.Complete() {
		return e.decided(sctx, Decision{
			NextState:  session.StateCollectingInfo,
			Reasoning:  "birth data incomplete, keep collecting",
			Confidence: 0.6,
			Actions:    []Action{ActionAskMore},
		}), nil
	}

	if sctx.HasTopicTag(TagExpertHandoff) {
		return e.decided(sctx, Decision{
			NextState:  session.StateExpertHandoff,
			Reasoning:  "user requested a human expert",
			Confidence: 0.7,
			Actions:    []Action{ActionHandoff},
		}), nil
	}

	count := sctx.Metadata.AnalysisCount
	if count <= 0 {
		return e.decided(sctx, Decision{
			NextState:  session.StateAnalyzing,
			Reasoning:  "profile complete, no analysis yet",
			Confidence: 0.8,
			Actions:    []Action{ActionAnalyze},
		}), nil
	}

	bonusSteps := count
	if bonusSteps > 3 {
		bonusSteps = 3
	}
	return e.decided(sctx, Decision{
		NextState:  session.StateRecommending,
		Reasoning:  fmt.Sprintf("analysis available (%d rounds), move to recommendations", count),
		Confidence: clamp01(0.7 + float64(bonusSteps)*0.05),
		Actions:    []Action{ActionSummarize},
	}), nil
}

func (e *RuleBased) decided(sctx *session.Context, d Decision) Decision {
	e.logger.Debug("policy decision",
		zap.String("session_id", sctx.SessionID),
		zap.String("next_state", string(d.NextState)),
		zap.Float64("confidence", d.Confidence),
		zap.String("reasoning", d.Reasoning),
	)
	return d
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
