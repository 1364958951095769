// Package usage records per-turn provider usage: tokens, estimated
// cost and outcome. Records fan out to pluggable sinks; sink failures
// never affect the turn.
package usage

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Record is one turn's usage.
type Record struct {
	SessionID        string    `json:"session_id"`
	UserID           string    `json:"user_id,omitempty"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	CostUSD          float64   `json:"cost_usd"`
	Success          bool      `json:"success"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Sink receives usage records.
type Sink interface {
	Append(ctx context.Context, r Record) error
}

// Tracker fans records out to all sinks, best-effort.
type Tracker struct {
	sinks  []Sink
	logger *zap.Logger
}

// NewTracker creates a tracker over the given sinks.
func NewTracker(logger *zap.Logger, sinks ...Sink) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{sinks: sinks, logger: logger}
}

// Track stamps and delivers the record to every sink. Failures are
// logged and do not stop delivery to the remaining sinks.
func (t *Tracker) Track(ctx context.Context, r Record) {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	for _, sink := range t.sinks {
		if err := sink.Append(ctx, r); err != nil {
			t.logger.Warn("usage sink append failed",
				zap.String("session_id", r.SessionID),
				zap.Error(err),
			)
		}
	}
}

// MemorySink buffers records in memory, for tests and diagnostics.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Append stores the record.
func (s *MemorySink) Append(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

// Records returns a copy of all stored records.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}
