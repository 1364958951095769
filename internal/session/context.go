package session

import (
	"time"
)

// NewContext creates an empty conversation context for a session.
func NewContext(sessionID, userID, locale string) Context {
	now := time.Now()
	return Context{
		SessionID:      sessionID,
		UserID:         userID,
		Locale:         locale,
		Messages:       []Message{},
		DomainSnapshot: map[string]DomainResult{},
		TopicTags:      []string{},
		Metadata: Metadata{
			LastActivity: now,
		},
	}
}

// NewState creates a fresh session state starting in initialState.
func NewState(sessionID, userID, locale string, initialState StateType, c Context) *State {
	now := time.Now()
	return &State{
		SessionID:    sessionID,
		UserID:       userID,
		Locale:       locale,
		CurrentState: initialState,
		Context:      c,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// AppendMessage returns a copy of c with msg appended and the message
// counters advanced. The input context is not modified.
func AppendMessage(c Context, msg Message) Context {
	out := cloneContext(c)
	out.Messages = append(out.Messages, msg)
	out.Metadata.TotalMessages++
	if !msg.Timestamp.IsZero() {
		if !out.Metadata.LastActivity.IsZero() && msg.Timestamp.After(out.Metadata.LastActivity) {
			out.Metadata.SessionDuration += msg.Timestamp.Sub(out.Metadata.LastActivity)
		}
		out.Metadata.LastActivity = msg.Timestamp
	}
	return out
}

// UpsertDomainSnapshot returns a copy of snapshot with each result
// replacing any previous entry for its domain wholesale.
func UpsertDomainSnapshot(snapshot map[string]DomainResult, results ...DomainResult) map[string]DomainResult {
	out := make(map[string]DomainResult, len(snapshot)+len(results))
	for k, v := range snapshot {
		out[k] = v
	}
	for _, r := range results {
		if r.Domain == "" {
			continue
		}
		if r.LastUpdatedAt.IsZero() {
			r.LastUpdatedAt = time.Now()
		}
		out[r.Domain] = r
	}
	return out
}

// MergeTopicTags unions existing and added tags, preserving first-seen
// order and dropping duplicates and empty strings.
func MergeTopicTags(existing []string, added ...string) []string {
	seen := make(map[string]struct{}, len(existing)+len(added))
	out := make([]string, 0, len(existing)+len(added))
	for _, tag := range existing {
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	for _, tag := range added {
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// HasTopicTag reports whether the context carries the given tag.
func (c *Context) HasTopicTag(tag string) bool {
	for _, t := range c.TopicTags {
		if t == tag {
			return true
		}
	}
	return false
}

// cloneContext makes a shallow-safe copy: slices and maps are copied so
// callers can treat contexts as immutable values.
func cloneContext(c Context) Context {
	out := c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	out.TopicTags = make([]string, len(c.TopicTags))
	copy(out.TopicTags, c.TopicTags)
	out.DomainSnapshot = make(map[string]DomainResult, len(c.DomainSnapshot))
	for k, v := range c.DomainSnapshot {
		out.DomainSnapshot[k] = v
	}
	return out
}
