package analysis

import (
	"github.com/fyrsmithlabs/dialogd/internal/policy"
	"github.com/fyrsmithlabs/dialogd/internal/session"
)

// ModelStrategy selects the provider, model and generation parameters
// for one turn.
type ModelStrategy struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// DefaultStrategy is the safe fallback used whenever planning cannot
// pick anything better.
func DefaultStrategy() ModelStrategy {
	return ModelStrategy{
		Provider:    "deepseek",
		Model:       "deepseek-chat",
		Temperature: 0.3,
		MaxTokens:   1200,
	}
}

// BuildStrategyPlan derives the model strategy for a turn from the
// policy decision. Unknown or missing decisions get DefaultStrategy.
func BuildStrategyPlan(decision policy.Decision, sctx *session.Context) ModelStrategy {
	s := DefaultStrategy()

	switch decision.NextState {
	case session.StateCollectingInfo:
		// short clarifying questions, keep it cheap
		s.Temperature = 0.4
		s.MaxTokens = 600
	case session.StateAnalyzing:
		s.Temperature = 0.2
		s.MaxTokens = 1600
	case session.StateDeepDive:
		s.Temperature = 0.2
		s.MaxTokens = 2000
	case session.StateRecommending:
		s.Temperature = 0.5
	case session.StateExpertHandoff, session.StateClosure:
		s.MaxTokens = 400
	}

	if sctx != nil && sctx.UserProfile.Expertise == "expert" {
		// expert users get the longer-form model output
		if s.MaxTokens < 1600 {
			s.MaxTokens = 1600
		}
	}

	return s
}
