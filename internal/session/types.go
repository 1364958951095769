// Package session defines the conversation data model: messages, the
// per-session working context, and the durable session state, together
// with the Store interface the orchestrator persists through.
package session

import (
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// StateType is the closed set of conversation states.
type StateType string

const (
	StateGreeting       StateType = "greeting"
	StateCollectingInfo StateType = "collecting_info"
	StateAnalyzing      StateType = "analyzing"
	StateExplaining     StateType = "explaining"
	StateRecommending   StateType = "recommending"
	StateDeepDive       StateType = "deepdive"
	StateClosure        StateType = "closure"
	StateExpertHandoff  StateType = "expert_handoff"
	StateError          StateType = "error"
)

// AllStates returns every defined conversation state.
func AllStates() []StateType {
	return []StateType{
		StateGreeting, StateCollectingInfo, StateAnalyzing, StateExplaining,
		StateRecommending, StateDeepDive, StateClosure, StateExpertHandoff,
		StateError,
	}
}

// Valid reports whether s is one of the defined conversation states.
func (s StateType) Valid() bool {
	switch s {
	case StateGreeting, StateCollectingInfo, StateAnalyzing, StateExplaining,
		StateRecommending, StateDeepDive, StateClosure, StateExpertHandoff,
		StateError:
		return true
	}
	return false
}

// Message is a single conversation message. Messages are immutable once
// created; history is append-only.
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Preferences holds per-user presentation preferences.
type Preferences struct {
	Language      string `json:"language,omitempty"`
	ResponseStyle string `json:"response_style,omitempty"`
}

// BirthProfile is the collected birth facts the analysis domain needs.
// Year, month, day and hour form the required-field set; a profile
// missing any of them is treated as incomplete.
type BirthProfile struct {
	Year     int    `json:"year"`
	Month    int    `json:"month"`
	Day      int    `json:"day"`
	Hour     int    `json:"hour"`
	Gender   string `json:"gender,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// Complete reports whether the required birth fields are all present.
func (b *BirthProfile) Complete() bool {
	if b == nil {
		return false
	}
	return b.Year != 0 &&
		b.Month >= 1 && b.Month <= 12 &&
		b.Day >= 1 && b.Day <= 31 &&
		b.Hour >= 0 && b.Hour <= 23
}

// UserProfile is the per-session user profile: preferences plus the
// domain facts collected so far.
type UserProfile struct {
	Preferences Preferences   `json:"preferences"`
	Birth       *BirthProfile `json:"birth,omitempty"`
	Expertise   string        `json:"expertise,omitempty"`
}

// Metadata carries per-context bookkeeping counters.
// TotalMessages is monotonically non-decreasing.
type Metadata struct {
	TotalMessages   int           `json:"total_messages"`
	AnalysisCount   int           `json:"analysis_count"`
	SessionDuration time.Duration `json:"session_duration"`
	LastActivity    time.Time     `json:"last_activity"`
	TraceID         string        `json:"trace_id,omitempty"`
}

// DomainResult is the cached latest result from one analysis domain.
// Entries are replaced wholesale per domain key, never partially merged.
type DomainResult struct {
	Domain        string         `json:"domain"`
	Success       bool           `json:"success"`
	Data          map[string]any `json:"data,omitempty"`
	Confidence    float64        `json:"confidence"`
	ExecutionTime time.Duration  `json:"execution_time"`
	LastUpdatedAt time.Time      `json:"last_updated_at"`
}

// Context is the per-session working memory.
type Context struct {
	SessionID      string                  `json:"session_id"`
	UserID         string                  `json:"user_id,omitempty"`
	Locale         string                  `json:"locale,omitempty"`
	Messages       []Message               `json:"messages"`
	UserProfile    UserProfile             `json:"user_profile"`
	Metadata       Metadata                `json:"metadata"`
	DomainSnapshot map[string]DomainResult `json:"domain_snapshot,omitempty"`
	TopicTags      []string                `json:"topic_tags,omitempty"`
}

// State is the unit of persistence: one session's durable state.
// It is owned exclusively by the orchestrator during a turn.
type State struct {
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	Locale       string    `json:"locale,omitempty"`
	CurrentState StateType `json:"current_state"`
	Context      Context   `json:"context"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
