package orchestrator

import (
	"github.com/fyrsmithlabs/dialogd/internal/confidence"
	"github.com/fyrsmithlabs/dialogd/internal/knowledge"
	"github.com/fyrsmithlabs/dialogd/internal/policy"
	"github.com/fyrsmithlabs/dialogd/internal/session"
)

// Params identifies one inbound user turn.
type Params struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
	Message   string `json:"message"`
	Locale    string `json:"locale,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// StateInfo is the state triple returned with a turn.
type StateInfo struct {
	Previous session.StateType `json:"previous"`
	Current  session.StateType `json:"current"`
	Decision policy.Decision   `json:"decision"`
}

// TurnUsage is the turn's token and cost accounting.
type TurnUsage struct {
	Provider         string  `json:"provider"`
	Model            string  `json:"model"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
	Success          bool    `json:"success"`
	ErrorMessage     string  `json:"error_message,omitempty"`
}

// TurnResult is the composed outcome of one turn.
type TurnResult struct {
	Reply             session.Message           `json:"reply"`
	SessionState      *session.State            `json:"session_state"`
	Suggestions       []string                  `json:"suggestions"`
	FollowUpQuestions []string                  `json:"follow_up_questions"`
	ActionItems       []string                  `json:"action_items"`
	Confidence        confidence.Breakdown      `json:"confidence"`
	Explanation       string                    `json:"explanation"`
	Knowledge         []knowledge.ConceptResult `json:"knowledge"`
	Usage             TurnUsage                 `json:"usage"`
	State             StateInfo                 `json:"state"`
	LimitedByBudget   bool                      `json:"limited_by_budget"`
}
