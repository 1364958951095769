// Package analysis produces the assistant's answer for a turn: a
// provider-backed generation combined with deterministic domain
// results, returned as a single integrated response.
package analysis

import (
	"time"
)

// Metadata keys recognized on a Response.
const (
	// MetaNextState carries a provider hint that overrides the policy
	// decision for the session's next state.
	MetaNextState = "next_state"

	// MetaCulturalAdjustment overrides the default cultural confidence
	// adjustment with a numeric value.
	MetaCulturalAdjustment = "cultural_adjustment"

	// MetaReason explains canned responses ("budget_limit", "failover").
	MetaReason = "reason"
)

// AlgorithmResult is one deterministic domain computation that fed the
// response.
type AlgorithmResult struct {
	Domain        string         `json:"domain"`
	Success       bool           `json:"success"`
	Data          map[string]any `json:"data,omitempty"`
	Confidence    float64        `json:"confidence"`
	ExecutionTime time.Duration  `json:"execution_time"`
}

// Response is the integrated outcome of one analysis turn.
type Response struct {
	ID       string    `json:"id"`
	Provider string    `json:"provider"`
	Model    string    `json:"model"`
	Created  time.Time `json:"created"`

	Content    string   `json:"content"`
	Summary    string   `json:"summary,omitempty"`
	Highlights []string `json:"highlights,omitempty"`
	NextSteps  []string `json:"next_steps,omitempty"`

	Suggestions       []string `json:"suggestions,omitempty"`
	FollowUpQuestions []string `json:"follow_up_questions,omitempty"`
	ActionItems       []string `json:"action_items,omitempty"`

	AlgorithmResults []AlgorithmResult `json:"algorithm_results,omitempty"`
	TopicTags        []string          `json:"topic_tags,omitempty"`

	// Confidence is the provider's own confidence when it reports one.
	Confidence *float64 `json:"confidence,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// NextStateHint returns the provider's next-state hint, or "" when the
// response carries none.
func (r *Response) NextStateHint() string {
	if r == nil || r.Metadata == nil {
		return ""
	}
	if s, ok := r.Metadata[MetaNextState].(string); ok {
		return s
	}
	return ""
}

// Reason returns the canned-response reason, or "" for real responses.
func (r *Response) Reason() string {
	if r == nil || r.Metadata == nil {
		return ""
	}
	if s, ok := r.Metadata[MetaReason].(string); ok {
		return s
	}
	return ""
}
