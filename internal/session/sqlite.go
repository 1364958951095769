package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on an embedded SQLite database. The
// context is stored as a JSON column; sessions are keyed by
// (session_id, user_id) with upsert semantics.
type SQLiteStore struct {
	db    *sql.DB
	owned bool
}

// OpenSQLite opens (or creates) a SQLite database at path and returns a
// session store backed by it. WAL mode is enabled for concurrency.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := path + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	store, err := NewSQLiteStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	store.owned = true
	return store, nil
}

// NewSQLiteStore wraps an existing database handle. The caller keeps
// ownership of db; Close does not close it.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("session: db is required")
	}
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS conversation_sessions (
		session_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		locale TEXT,
		current_state TEXT NOT NULL,
		context_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, user_id)
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON conversation_sessions(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Load retrieves a session state, or (nil, nil) when absent.
func (s *SQLiteStore) Load(ctx context.Context, sessionID, userID string) (*State, error) {
	query := `
		SELECT session_id, user_id, locale, current_state, context_json, created_at, updated_at
		FROM conversation_sessions WHERE session_id = ? AND user_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID, userID)

	var (
		st          State
		locale      sql.NullString
		contextJSON string
		createdAt   int64
		updatedAt   int64
	)
	err := row.Scan(&st.SessionID, &st.UserID, &locale, &st.CurrentState, &contextJSON, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	st.Locale = locale.String
	st.CreatedAt = time.UnixMilli(createdAt)
	st.UpdatedAt = time.UnixMilli(updatedAt)
	if err := json.Unmarshal([]byte(contextJSON), &st.Context); err != nil {
		return nil, fmt.Errorf("decode session context: %w", err)
	}
	return &st, nil
}

// Persist upserts the session state.
func (s *SQLiteStore) Persist(ctx context.Context, state *State) error {
	if state == nil {
		return errors.New("session: state is required")
	}
	contextJSON, err := json.Marshal(state.Context)
	if err != nil {
		return fmt.Errorf("encode session context: %w", err)
	}

	query := `
		INSERT INTO conversation_sessions
			(session_id, user_id, locale, current_state, context_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, user_id) DO UPDATE SET
			locale = excluded.locale,
			current_state = excluded.current_state,
			context_json = excluded.context_json,
			updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		state.SessionID, state.UserID, state.Locale, string(state.CurrentState),
		string(contextJSON), state.CreatedAt.UnixMilli(), state.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// Reset deletes the session row if present.
func (s *SQLiteStore) Reset(ctx context.Context, sessionID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM conversation_sessions WHERE session_id = ? AND user_id = ?`,
		sessionID, userID)
	if err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	return nil
}

// Close closes the underlying database when this store opened it.
func (s *SQLiteStore) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}
