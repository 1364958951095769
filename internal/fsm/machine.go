package fsm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dialogd/internal/session"
)

const instrumentationName = "github.com/fyrsmithlabs/dialogd/internal/fsm"

const (
	maxTransitionTries   = 3
	initialRetryInterval = 500 * time.Millisecond

	// ewmaAlpha weights the average transition time update.
	ewmaAlpha = 0.1

	// healthyFailureRate is the failure-rate ceiling for IsHealthy.
	healthyFailureRate = 0.1
)

// State is the per-session machine position. Data carries transition
// bookkeeping, most notably the error details after a fallback.
type State struct {
	Current     session.StateType   `json:"current"`
	Previous    session.StateType   `json:"previous"`
	Transitions []session.StateType `json:"transitions"`
	Data        map[string]any      `json:"data"`
}

// Event describes one completed state change.
type Event struct {
	SessionID string
	From      session.StateType
	To        session.StateType
	Trigger   string
	Timestamp time.Time
}

// Listener observes state changes. Listener values must be comparable;
// RemoveListener matches by equality. Listener panics are contained
// and never affect the transition.
type Listener interface {
	StateChanged(ctx context.Context, e Event)
}

// LastError captures the most recent unrecoverable transition failure.
type LastError struct {
	Timestamp time.Time         `json:"timestamp"`
	Error     string            `json:"error"`
	SessionID string            `json:"session_id"`
	FromState session.StateType `json:"from_state"`
}

// Metrics is a snapshot of machine counters.
type Metrics struct {
	TotalTransitions      int64         `json:"total_transitions"`
	FailedTransitions     int64         `json:"failed_transitions"`
	AverageTransitionTime time.Duration `json:"average_transition_time"`
	LastError             *LastError    `json:"last_error,omitempty"`
}

// Machine executes transitions over a validated Config. It is safe for
// concurrent use; per-session State values are owned by their callers.
type Machine struct {
	config Config
	logger *zap.Logger

	mu        sync.Mutex
	listeners []Listener

	metricsMu         sync.Mutex
	totalTransitions  int64
	failedTransitions int64
	averageTransition float64 // milliseconds, exponentially weighted
	lastError         *LastError

	transitionCounter metric.Int64Counter
	failureCounter    metric.Int64Counter

	// retryInterval is the initial backoff interval, shortened in tests.
	retryInterval time.Duration
}

// New validates cfg and builds a machine. A missing error state is
// injected; any other config defect is fatal.
func New(cfg Config, logger *zap.Logger) (*Machine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	m := &Machine{
		config:        cfg,
		logger:        logger,
		retryInterval: initialRetryInterval,
	}

	meter := otel.Meter(instrumentationName)
	var err error
	m.transitionCounter, err = meter.Int64Counter(
		"dialogd.fsm.transitions_total",
		metric.WithDescription("Total number of attempted state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create transition counter: %w", err)
	}
	m.failureCounter, err = meter.Int64Counter(
		"dialogd.fsm.transition_failures_total",
		metric.WithDescription("Total number of state transitions that fell back to the error state"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create failure counter: %w", err)
	}

	return m, nil
}

// CreateInitialState returns a fresh machine state at the configured
// initial state.
func (m *Machine) CreateInitialState() *State {
	cfg := m.config.stateConfig(m.config.InitialState)
	return &State{
		Current:     m.config.InitialState,
		Previous:    m.config.InitialState,
		Transitions: append([]session.StateType{}, cfg.Transitions...),
		Data:        map[string]any{},
	}
}

// AddListener registers a state-change listener.
func (m *Machine) AddListener(l Listener) {
	if l == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// RemoveListener removes the first registered listener equal to l.
func (m *Machine) RemoveListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.listeners {
		if existing == l {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			return
		}
	}
}

// Transition attempts to move current forward given the session
// context. It never returns an error: transient failures are retried
// with exponential backoff, and an unrecoverable failure lands in the
// fallback error state with the failure recorded in Data. When no
// transition is eligible the current state is returned unchanged.
func (m *Machine) Transition(ctx context.Context, current *State, sctx *session.Context, trigger string) *State {
	start := time.Now()
	defer func() {
		m.recordTransitionTime(time.Since(start))
	}()

	m.metricsMu.Lock()
	m.totalTransitions++
	m.metricsMu.Unlock()
	m.transitionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(current.Current)),
		attribute.String("trigger", trigger),
	))

	op := func() (*State, error) {
		next, err := m.executeTransition(ctx, current, sctx, trigger)
		if err != nil && !IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return next, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.retryInterval

	next, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(maxTransitionTries),
	)
	if err != nil {
		m.recordFailure(ctx, current, sctx, trigger, err)
		return m.createFallbackState(current, err)
	}
	return next
}

// executeTransition runs one attempt: find eligible transitions from
// the current state, fire the first whose condition passes.
func (m *Machine) executeTransition(ctx context.Context, current *State, sctx *session.Context, trigger string) (*State, error) {
	stateCfg := m.config.stateConfig(current.Current)
	eligible := m.matchingTransitions(current.Current, stateCfg.Transitions)

	if len(eligible) == 0 {
		m.logger.Warn("no transitions available from state",
			zap.String("state", string(current.Current)),
			zap.String("trigger", trigger),
		)
		return current, nil
	}

	for _, t := range eligible {
		ok, err := m.evaluateCondition(ctx, t.Condition, sctx)
		if err != nil {
			// only retryable condition errors abort the attempt
			return nil, err
		}
		if !ok {
			continue
		}

		m.runHook(ctx, stateCfg.OnExit, sctx, "on_exit", current.Current)
		if t.Action != nil {
			if err := t.Action(ctx, sctx); err != nil {
				m.logger.Error("transition action failed",
					zap.String("from", string(t.From)),
					zap.String("to", string(t.To)),
					zap.Error(err),
				)
			}
		}
		targetCfg := m.config.stateConfig(t.To)
		m.runHook(ctx, targetCfg.OnEnter, sctx, "on_enter", t.To)

		next := &State{
			Current:     t.To,
			Previous:    current.Current,
			Transitions: append([]session.StateType{}, targetCfg.Transitions...),
			Data:        cloneData(current.Data),
		}

		m.emitStateChange(ctx, Event{
			SessionID: sessionID(sctx),
			From:      current.Current,
			To:        t.To,
			Trigger:   trigger,
			Timestamp: time.Now(),
		})

		return next, nil
	}

	m.logger.Warn("no transition condition matched, staying in current state",
		zap.String("state", string(current.Current)),
		zap.String("trigger", trigger),
	)
	return current, nil
}

// evaluateCondition treats condition errors as a non-match unless the
// error is marked retryable, which aborts the attempt for retry.
func (m *Machine) evaluateCondition(ctx context.Context, cond Condition, sctx *session.Context) (bool, error) {
	if cond == nil {
		return true, nil
	}
	ok, err := cond(ctx, sctx)
	if err != nil {
		if IsRetryable(err) {
			return false, err
		}
		m.logger.Error("condition evaluation failed", zap.Error(err))
		return false, nil
	}
	return ok, nil
}

func (m *Machine) runHook(ctx context.Context, hook Hook, sctx *session.Context, kind string, state session.StateType) {
	if hook == nil {
		return
	}
	if err := hook(ctx, sctx); err != nil {
		m.logger.Error("lifecycle hook failed",
			zap.String("hook", kind),
			zap.String("state", string(state)),
			zap.Error(err),
		)
	}
}

// matchingTransitions returns the globally declared transitions from
// state whose target is also locally allowed.
func (m *Machine) matchingTransitions(state session.StateType, allowed []session.StateType) []Transition {
	allowedSet := make(map[session.StateType]struct{}, len(allowed))
	for _, s := range allowed {
		allowedSet[s] = struct{}{}
	}

	var out []Transition
	for _, t := range m.config.Transitions {
		if t.From != state {
			continue
		}
		if _, ok := allowedSet[t.To]; !ok {
			continue
		}
		out = append(out, t)
	}
	return out
}

// createFallbackState moves to the error state, preserving data and
// recording what went wrong.
func (m *Machine) createFallbackState(current *State, err error) *State {
	data := cloneData(current.Data)
	data["error"] = err.Error()
	data["errorTimestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["previousState"] = string(current.Current)

	return &State{
		Current:     FallbackState,
		Previous:    current.Current,
		Transitions: []session.StateType{},
		Data:        data,
	}
}

// emitStateChange fans the event out to all listeners concurrently.
// Listener panics are contained.
func (m *Machine) emitStateChange(ctx context.Context, e Event) {
	m.mu.Lock()
	listeners := append([]Listener{}, m.listeners...)
	m.mu.Unlock()

	if len(listeners) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, l := range listeners {
		wg.Add(1)
		go func(l Listener) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("state change listener panicked",
						zap.Any("panic", r),
						zap.String("from", string(e.From)),
						zap.String("to", string(e.To)),
					)
				}
			}()
			l.StateChanged(ctx, e)
		}(l)
	}
	wg.Wait()
}

func (m *Machine) recordFailure(ctx context.Context, current *State, sctx *session.Context, trigger string, err error) {
	m.metricsMu.Lock()
	m.failedTransitions++
	m.lastError = &LastError{
		Timestamp: time.Now(),
		Error:     err.Error(),
		SessionID: sessionID(sctx),
		FromState: current.Current,
	}
	m.metricsMu.Unlock()

	m.failureCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(current.Current)),
		attribute.String("trigger", trigger),
	))

	m.logger.Error("transition failed, falling back to error state",
		zap.String("from", string(current.Current)),
		zap.String("trigger", trigger),
		zap.Error(err),
	)
}

func (m *Machine) recordTransitionTime(d time.Duration) {
	ms := float64(d.Microseconds()) / 1000
	m.metricsMu.Lock()
	defer m.metricsMu.Unlock()
	m.averageTransition = m.averageTransition*(1-ewmaAlpha) + ms*ewmaAlpha
}

// GetMetrics returns a snapshot of the machine counters.
func (m *Machine) GetMetrics() Metrics {
	m.metricsMu.Lock()
	defer m.metricsMu.Unlock()

	out := Metrics{
		TotalTransitions:      m.totalTransitions,
		FailedTransitions:     m.failedTransitions,
		AverageTransitionTime: time.Duration(m.averageTransition * float64(time.Millisecond)),
	}
	if m.lastError != nil {
		le := *m.lastError
		out.LastError = &le
	}
	return out
}

// ResetMetrics clears all counters and the last error.
func (m *Machine) ResetMetrics() {
	m.metricsMu.Lock()
	defer m.metricsMu.Unlock()
	m.totalTransitions = 0
	m.failedTransitions = 0
	m.averageTransition = 0
	m.lastError = nil
}

// IsHealthy reports whether the failure rate is below 10%. A machine
// with no transitions yet is healthy.
func (m *Machine) IsHealthy() bool {
	m.metricsMu.Lock()
	defer m.metricsMu.Unlock()
	if m.totalTransitions == 0 {
		return true
	}
	rate := float64(m.failedTransitions) / float64(m.totalTransitions)
	return rate < healthyFailureRate
}

func cloneData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data)+3)
	for k, v := range data {
		out[k] = v
	}
	return out
}

func sessionID(sctx *session.Context) string {
	if sctx == nil {
		return ""
	}
	return sctx.SessionID
}
