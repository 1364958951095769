package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLiteSink persists usage records to a usage_records table on a
// shared database handle. The caller owns the handle.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink wraps db, creating the schema if needed.
func NewSQLiteSink(db *sql.DB) (*SQLiteSink, error) {
	if db == nil {
		return nil, errors.New("usage: db is required")
	}
	query := `
	CREATE TABLE IF NOT EXISTS usage_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		user_id TEXT,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		prompt_tokens INTEGER NOT NULL,
		completion_tokens INTEGER NOT NULL,
		cost_usd REAL NOT NULL,
		success INTEGER NOT NULL,
		error_message TEXT,
		recorded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_session ON usage_records(session_id, recorded_at);
	`
	if _, err := db.Exec(query); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Append inserts the record.
func (s *SQLiteSink) Append(ctx context.Context, r Record) error {
	success := 0
	if r.Success {
		success = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_records
			(session_id, user_id, provider, model, prompt_tokens, completion_tokens, cost_usd, success, error_message, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.UserID, r.Provider, r.Model,
		r.PromptTokens, r.CompletionTokens, r.CostUSD,
		success, r.ErrorMessage, r.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("append usage record: %w", err)
	}
	return nil
}
