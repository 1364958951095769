package confidence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Repository keeps the latest confidence breakdown per session.
type Repository interface {
	Upsert(ctx context.Context, b Breakdown) error
	GetLatest(ctx context.Context, sessionID string) (*Breakdown, error)
}

// MemoryRepository is an in-process Repository.
type MemoryRepository struct {
	mu     sync.RWMutex
	latest map[string]Breakdown
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{latest: make(map[string]Breakdown)}
}

// Upsert replaces the stored breakdown for the session.
func (r *MemoryRepository) Upsert(_ context.Context, b Breakdown) error {
	if b.SessionID == "" {
		return errors.New("confidence: session ID is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latest[b.SessionID] = b
	return nil
}

// GetLatest returns the stored breakdown, or (nil, nil) when absent.
func (r *MemoryRepository) GetLatest(_ context.Context, sessionID string) (*Breakdown, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.latest[sessionID]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

// SQLiteRepository persists breakdowns to a confidence_scores table on
// a shared database handle. The caller owns the handle.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository wraps db, creating the schema if needed.
func NewSQLiteRepository(db *sql.DB) (*SQLiteRepository, error) {
	if db == nil {
		return nil, errors.New("confidence: db is required")
	}
	query := `
	CREATE TABLE IF NOT EXISTS confidence_scores (
		session_id TEXT PRIMARY KEY,
		overall REAL NOT NULL,
		data_quality REAL NOT NULL,
		completeness REAL NOT NULL,
		cultural_accuracy REAL NOT NULL,
		requires_review INTEGER NOT NULL,
		evaluated_at INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(query); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// Upsert replaces the row for the session.
func (r *SQLiteRepository) Upsert(ctx context.Context, b Breakdown) error {
	if b.SessionID == "" {
		return errors.New("confidence: session ID is required")
	}
	review := 0
	if b.RequiresReview {
		review = 1
	}
	query := `
		INSERT INTO confidence_scores
			(session_id, overall, data_quality, completeness, cultural_accuracy, requires_review, evaluated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			overall = excluded.overall,
			data_quality = excluded.data_quality,
			completeness = excluded.completeness,
			cultural_accuracy = excluded.cultural_accuracy,
			requires_review = excluded.requires_review,
			evaluated_at = excluded.evaluated_at`

	_, err := r.db.ExecContext(ctx, query,
		b.SessionID, b.Overall,
		b.Dimensions.DataQuality, b.Dimensions.Completeness, b.Dimensions.CulturalAccuracy,
		review, b.EvaluatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert confidence score: %w", err)
	}
	return nil
}

// GetLatest returns the stored breakdown, or (nil, nil) when absent.
func (r *SQLiteRepository) GetLatest(ctx context.Context, sessionID string) (*Breakdown, error) {
	query := `
		SELECT overall, data_quality, completeness, cultural_accuracy, requires_review, evaluated_at
		FROM confidence_scores WHERE session_id = ?`

	var (
		b           Breakdown
		review      int
		evaluatedAt int64
	)
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&b.Overall, &b.Dimensions.DataQuality, &b.Dimensions.Completeness,
		&b.Dimensions.CulturalAccuracy, &review, &evaluatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load confidence score: %w", err)
	}
	b.SessionID = sessionID
	b.RequiresReview = review == 1
	b.EvaluatedAt = time.UnixMilli(evaluatedAt)
	return &b, nil
}
