package fsm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dialogd/internal/session"
)

func twoStateConfig(cond Condition) Config {
	return Config{
		InitialState: session.StateGreeting,
		States: map[session.StateType]*StateConfig{
			session.StateGreeting: {
				Transitions: []session.StateType{session.StateCollectingInfo},
			},
			session.StateCollectingInfo: {
				Transitions: []session.StateType{},
			},
		},
		Transitions: []Transition{
			{From: session.StateGreeting, To: session.StateCollectingInfo, Condition: cond},
		},
	}
}

func newTestMachine(t *testing.T, cfg Config) *Machine {
	t.Helper()
	m, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	m.retryInterval = time.Millisecond
	return m
}

func emptySessionCtx() *session.Context {
	c := session.NewContext("sess-1", "user-1", "")
	return &c
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing pieces",
			cfg:     Config{},
			wantErr: "requires initial state",
		},
		{
			name: "undefined initial state",
			cfg: Config{
				InitialState: session.StateGreeting,
				States:       map[session.StateType]*StateConfig{session.StateClosure: {}},
				Transitions:  []Transition{},
			},
			wantErr: "initial state",
		},
		{
			name: "transition to undefined state",
			cfg: Config{
				InitialState: session.StateGreeting,
				States: map[session.StateType]*StateConfig{
					session.StateGreeting: {Transitions: []session.StateType{session.StateClosure}},
				},
				Transitions: []Transition{
					{From: session.StateGreeting, To: session.StateClosure},
				},
			},
			wantErr: "undefined state",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, zap.NewNop())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewInjectsErrorState(t *testing.T) {
	cfg := twoStateConfig(Always())
	_, defined := cfg.States[session.StateError]
	require.False(t, defined)

	m := newTestMachine(t, cfg)
	_, ok := m.config.States[session.StateError]
	assert.True(t, ok, "error state must be auto-injected")
}

func TestCreateInitialState(t *testing.T) {
	m := newTestMachine(t, twoStateConfig(Always()))
	st := m.CreateInitialState()

	assert.Equal(t, session.StateGreeting, st.Current)
	assert.Equal(t, session.StateGreeting, st.Previous)
	assert.Equal(t, []session.StateType{session.StateCollectingInfo}, st.Transitions)
	assert.NotNil(t, st.Data)
}

func TestTransitionHappyPath(t *testing.T) {
	m := newTestMachine(t, twoStateConfig(Always()))
	st := m.CreateInitialState()

	next := m.Transition(context.Background(), st, emptySessionCtx(), "user_message")

	assert.Equal(t, session.StateCollectingInfo, next.Current)
	assert.Equal(t, session.StateGreeting, next.Previous)

	metrics := m.GetMetrics()
	assert.EqualValues(t, 1, metrics.TotalTransitions)
	assert.EqualValues(t, 0, metrics.FailedTransitions)
	assert.Nil(t, metrics.LastError)
}

func TestTransitionNoEligibleIsNoOp(t *testing.T) {
	m := newTestMachine(t, twoStateConfig(Always()))
	st := m.CreateInitialState()

	// walk to the terminal state, which declares no transitions
	st = m.Transition(context.Background(), st, emptySessionCtx(), "t")
	require.Equal(t, session.StateCollectingInfo, st.Current)

	next := m.Transition(context.Background(), st, emptySessionCtx(), "t")
	assert.Equal(t, st.Current, next.Current)
	assert.Equal(t, st.Previous, next.Previous)

	// repeating the no-op changes nothing
	again := m.Transition(context.Background(), next, emptySessionCtx(), "t")
	assert.Equal(t, next.Current, again.Current)
	assert.True(t, m.IsHealthy())
}

func TestTransitionConditionFalseStays(t *testing.T) {
	m := newTestMachine(t, twoStateConfig(Never()))
	st := m.CreateInitialState()

	next := m.Transition(context.Background(), st, emptySessionCtx(), "t")
	assert.Equal(t, session.StateGreeting, next.Current)
	assert.EqualValues(t, 0, m.GetMetrics().FailedTransitions)
}

func TestTransitionConditionErrorTreatedAsFalse(t *testing.T) {
	cfg := twoStateConfig(func(context.Context, *session.Context) (bool, error) {
		return false, errors.New("business rule exploded")
	})
	// a second edge behind the failing one still fires
	cfg.States[session.StateGreeting].Transitions = append(
		cfg.States[session.StateGreeting].Transitions, session.StateClosure)
	cfg.States[session.StateClosure] = &StateConfig{Transitions: []session.StateType{}}
	cfg.Transitions = append(cfg.Transitions,
		Transition{From: session.StateGreeting, To: session.StateClosure, Condition: Always()})

	m := newTestMachine(t, cfg)
	next := m.Transition(context.Background(), m.CreateInitialState(), emptySessionCtx(), "t")

	assert.Equal(t, session.StateClosure, next.Current)
	assert.EqualValues(t, 0, m.GetMetrics().FailedTransitions)
}

func TestTransitionRetryableErrorFallsBack(t *testing.T) {
	attempts := 0
	cfg := twoStateConfig(func(context.Context, *session.Context) (bool, error) {
		attempts++
		return false, MarkRetryable(errors.New("store unavailable"))
	})

	m := newTestMachine(t, cfg)
	st := m.CreateInitialState()
	next := m.Transition(context.Background(), st, emptySessionCtx(), "t")

	assert.Equal(t, 3, attempts, "retryable errors are retried up to three tries")
	assert.Equal(t, session.StateError, next.Current)
	assert.Equal(t, session.StateGreeting, next.Previous)
	assert.Equal(t, "store unavailable", next.Data["error"])
	assert.Equal(t, string(session.StateGreeting), next.Data["previousState"])
	assert.NotEmpty(t, next.Data["errorTimestamp"])

	metrics := m.GetMetrics()
	assert.EqualValues(t, 1, metrics.FailedTransitions)
	require.NotNil(t, metrics.LastError)
	assert.Equal(t, "sess-1", metrics.LastError.SessionID)
	assert.False(t, m.IsHealthy())
}

func TestTransitionRetryableErrorRecovers(t *testing.T) {
	attempts := 0
	cfg := twoStateConfig(func(context.Context, *session.Context) (bool, error) {
		attempts++
		if attempts < 3 {
			return false, MarkRetryable(errors.New("transient"))
		}
		return true, nil
	})

	m := newTestMachine(t, cfg)
	next := m.Transition(context.Background(), m.CreateInitialState(), emptySessionCtx(), "t")

	assert.Equal(t, session.StateCollectingInfo, next.Current)
	assert.EqualValues(t, 0, m.GetMetrics().FailedTransitions)
}

func TestTransitionHooksAndActions(t *testing.T) {
	var order []string
	var mu sync.Mutex
	record := func(step string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, step)
	}

	cfg := twoStateConfig(Always())
	cfg.States[session.StateGreeting].OnExit = func(context.Context, *session.Context) error {
		record("exit")
		return nil
	}
	cfg.States[session.StateCollectingInfo].OnEnter = func(context.Context, *session.Context) error {
		record("enter")
		return errors.New("enter hook failed")
	}
	cfg.Transitions[0].Action = func(context.Context, *session.Context) error {
		record("action")
		return errors.New("action failed")
	}

	m := newTestMachine(t, cfg)
	next := m.Transition(context.Background(), m.CreateInitialState(), emptySessionCtx(), "t")

	// hook and action failures never block the transition
	assert.Equal(t, session.StateCollectingInfo, next.Current)
	assert.Equal(t, []string{"exit", "action", "enter"}, order)
}

type recordingListener struct {
	mu     sync.Mutex
	events []Event
}

func (l *recordingListener) StateChanged(_ context.Context, e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

type panickyListener struct{}

func (panickyListener) StateChanged(context.Context, Event) { panic("listener bug") }

func TestListeners(t *testing.T) {
	m := newTestMachine(t, twoStateConfig(Always()))

	rec := &recordingListener{}
	m.AddListener(panickyListener{})
	m.AddListener(rec)

	next := m.Transition(context.Background(), m.CreateInitialState(), emptySessionCtx(), "user_message")
	require.Equal(t, session.StateCollectingInfo, next.Current)

	rec.mu.Lock()
	require.Len(t, rec.events, 1)
	e := rec.events[0]
	rec.mu.Unlock()

	assert.Equal(t, "sess-1", e.SessionID)
	assert.Equal(t, session.StateGreeting, e.From)
	assert.Equal(t, session.StateCollectingInfo, e.To)
	assert.Equal(t, "user_message", e.Trigger)
}

func TestRemoveListener(t *testing.T) {
	m := newTestMachine(t, twoStateConfig(Always()))

	rec := &recordingListener{}
	m.AddListener(rec)
	m.RemoveListener(rec)

	m.Transition(context.Background(), m.CreateInitialState(), emptySessionCtx(), "t")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.events)
}

func TestMetricsAverageAndReset(t *testing.T) {
	m := newTestMachine(t, twoStateConfig(Always()))

	for i := 0; i < 3; i++ {
		m.Transition(context.Background(), m.CreateInitialState(), emptySessionCtx(), "t")
	}

	metrics := m.GetMetrics()
	assert.EqualValues(t, 3, metrics.TotalTransitions)
	assert.Greater(t, metrics.AverageTransitionTime, time.Duration(0))

	m.ResetMetrics()
	metrics = m.GetMetrics()
	assert.Zero(t, metrics.TotalTransitions)
	assert.Zero(t, metrics.FailedTransitions)
	assert.Zero(t, metrics.AverageTransitionTime)
	assert.Nil(t, metrics.LastError)
}

func TestIsHealthyVacuouslyTrue(t *testing.T) {
	m := newTestMachine(t, twoStateConfig(Always()))
	assert.True(t, m.IsHealthy())
}

func TestDefaultConfigFullWalk(t *testing.T) {
	m := newTestMachine(t, DefaultConfig())
	ctx := context.Background()

	sctx := emptySessionCtx()
	st := m.CreateInitialState()
	require.Equal(t, session.StateGreeting, st.Current)

	// greeting needs a first message
	st = m.Transition(ctx, st, sctx, "t")
	assert.Equal(t, session.StateGreeting, st.Current)

	sctx.Metadata.TotalMessages = 1
	st = m.Transition(ctx, st, sctx, "t")
	require.Equal(t, session.StateCollectingInfo, st.Current)

	// collecting waits for the complete profile
	st = m.Transition(ctx, st, sctx, "t")
	assert.Equal(t, session.StateCollectingInfo, st.Current)

	sctx.UserProfile.Birth = &session.BirthProfile{Year: 1990, Month: 6, Day: 15, Hour: 10}
	st = m.Transition(ctx, st, sctx, "t")
	require.Equal(t, session.StateAnalyzing, st.Current)

	sctx.Metadata.AnalysisCount = 1
	st = m.Transition(ctx, st, sctx, "t")
	require.Equal(t, session.StateExplaining, st.Current)

	st = m.Transition(ctx, st, sctx, "t")
	require.Equal(t, session.StateRecommending, st.Current)

	sctx.TopicTags = []string{"goodbye"}
	st = m.Transition(ctx, st, sctx, "t")
	require.Equal(t, session.StateClosure, st.Current)

	// closure is terminal
	st = m.Transition(ctx, st, sctx, "t")
	assert.Equal(t, session.StateClosure, st.Current)
	assert.True(t, m.IsHealthy())
}

func TestDefaultConfigExpertHandoffPriority(t *testing.T) {
	m := newTestMachine(t, DefaultConfig())
	ctx := context.Background()

	sctx := emptySessionCtx()
	sctx.Metadata.TotalMessages = 4
	sctx.Metadata.AnalysisCount = 1
	sctx.UserProfile.Birth = &session.BirthProfile{Year: 1990, Month: 6, Day: 15, Hour: 10}
	sctx.TopicTags = []string{"expert-handoff"}

	st := &State{
		Current:     session.StateAnalyzing,
		Previous:    session.StateCollectingInfo,
		Transitions: []session.StateType{session.StateExplaining, session.StateExpertHandoff},
		Data:        map[string]any{},
	}

	// handoff wins over the normal explaining edge
	next := m.Transition(ctx, st, sctx, "t")
	assert.Equal(t, session.StateExpertHandoff, next.Current)
}

func TestRetryableMarking(t *testing.T) {
	assert.Nil(t, MarkRetryable(nil))
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errors.New("plain")))

	err := MarkRetryable(errors.New("transient"))
	assert.True(t, IsRetryable(err))
	assert.Equal(t, "transient", err.Error())

	wrapped := errors.Join(errors.New("outer"), err)
	assert.True(t, IsRetryable(wrapped))
}
