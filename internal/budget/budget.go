// Package budget gates expensive calls against a per-identity daily
// budget. A single call may spend at most 10% of the daily budget; the
// gate is per-call and deliberately stateless so a ledger outage can
// never block conversations.
package budget

import (
	"context"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dialogd/internal/session"
)

// DefaultDailyBudgetUSD is the daily spend ceiling applied when no
// budget is configured.
const DefaultDailyBudgetUSD = 10.0

// perCallFraction caps any single call at this share of the daily budget.
const perCallFraction = 0.1

// Controller decides whether an estimated call cost is acceptable.
type Controller struct {
	dailyBudgetUSD float64
	ledger         Ledger
	logger         *zap.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithDailyBudget overrides the daily budget. A zero or negative
// budget yields a non-positive per-call threshold, so every positive
// cost is denied.
func WithDailyBudget(usd float64) Option {
	return func(c *Controller) {
		c.dailyBudgetUSD = usd
	}
}

// WithLedger attaches a spend ledger. Ledger writes are best-effort.
func WithLedger(l Ledger) Option {
	return func(c *Controller) { c.ledger = l }
}

// NewController creates a budget controller.
func NewController(logger *zap.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		dailyBudgetUSD: DefaultDailyBudgetUSD,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DailyBudgetUSD returns the configured daily budget.
func (c *Controller) DailyBudgetUSD() float64 {
	return c.dailyBudgetUSD
}

// Identity resolves the budget identity for a session: the trimmed
// user ID when present, otherwise the session ID.
func Identity(sctx *session.Context) string {
	if sctx == nil {
		return ""
	}
	if id := strings.TrimSpace(sctx.UserID); id != "" {
		return id
	}
	return sctx.SessionID
}

// EnsureWithinBudget reports whether a call with the given estimated
// cost may proceed. Invalid costs (NaN, zero, negative) are allowed
// without touching the ledger. A cost exactly at the per-call
// threshold is allowed; only costs above it are denied. Denied calls
// leave no ledger entry, and allowed calls are recorded only when an
// identity resolves. Ledger failures are logged and never flip the
// outcome.
func (c *Controller) EnsureWithinBudget(ctx context.Context, sctx *session.Context, estimatedCostUSD float64) bool {
	if math.IsNaN(estimatedCostUSD) || estimatedCostUSD <= 0 {
		return true
	}

	identity := Identity(sctx)
	threshold := c.dailyBudgetUSD * perCallFraction

	if estimatedCostUSD > threshold {
		c.logger.Warn("call denied by budget gate",
			zap.String("identity", identity),
			zap.Float64("estimated_cost_usd", estimatedCostUSD),
			zap.Float64("per_call_threshold_usd", threshold),
		)
		return false
	}

	if c.ledger != nil && identity != "" {
		if err := c.ledger.Record(ctx, Entry{
			Identity: identity,
			CostUSD:  estimatedCostUSD,
			Allowed:  true,
		}); err != nil {
			c.logger.Warn("budget ledger write failed",
				zap.String("identity", identity),
				zap.Error(err),
			)
		}
	}

	return true
}
