package budget

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Entry is one budget gate check.
type Entry struct {
	Identity string
	CostUSD  float64
	Allowed  bool
	At       time.Time
}

// Ledger records budget gate checks. Implementations must tolerate
// concurrent writers; writes are best-effort from the caller's side.
type Ledger interface {
	Record(ctx context.Context, e Entry) error
	SpentTodayUSD(ctx context.Context, identity string) (float64, error)
}

// MemoryLedger keeps entries in memory, for tests and single-node use.
type MemoryLedger struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

// Record appends the entry, stamping At when unset.
func (l *MemoryLedger) Record(_ context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

// SpentTodayUSD sums allowed spend for identity since local midnight.
func (l *MemoryLedger) SpentTodayUSD(_ context.Context, identity string) (float64, error) {
	midnight := startOfDay(time.Now())
	l.mu.Lock()
	defer l.mu.Unlock()

	var total float64
	for _, e := range l.entries {
		if e.Identity == identity && e.Allowed && !e.At.Before(midnight) {
			total += e.CostUSD
		}
	}
	return total, nil
}

// Entries returns a copy of all recorded entries.
func (l *MemoryLedger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// SQLiteLedger persists budget checks to a budget_usage table on a
// shared database handle. The caller owns the handle.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger wraps db, creating the schema if needed.
func NewSQLiteLedger(db *sql.DB) (*SQLiteLedger, error) {
	if db == nil {
		return nil, errors.New("budget: db is required")
	}
	query := `
	CREATE TABLE IF NOT EXISTS budget_usage (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		identity TEXT NOT NULL,
		cost_usd REAL NOT NULL,
		allowed INTEGER NOT NULL,
		recorded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_budget_usage_identity ON budget_usage(identity, recorded_at);
	`
	if _, err := db.Exec(query); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteLedger{db: db}, nil
}

// Record inserts the entry.
func (l *SQLiteLedger) Record(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	allowed := 0
	if e.Allowed {
		allowed = 1
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO budget_usage (identity, cost_usd, allowed, recorded_at) VALUES (?, ?, ?, ?)`,
		e.Identity, e.CostUSD, allowed, e.At.UnixMilli())
	if err != nil {
		return fmt.Errorf("record budget entry: %w", err)
	}
	return nil
}

// SpentTodayUSD sums allowed spend for identity since local midnight.
func (l *SQLiteLedger) SpentTodayUSD(ctx context.Context, identity string) (float64, error) {
	midnight := startOfDay(time.Now()).UnixMilli()

	var total sql.NullFloat64
	err := l.db.QueryRowContext(ctx,
		`SELECT SUM(cost_usd) FROM budget_usage WHERE identity = ? AND allowed = 1 AND recorded_at >= ?`,
		identity, midnight).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum budget entries: %w", err)
	}
	return total.Float64, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
