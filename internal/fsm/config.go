// Package fsm is the conversation state machine: a validated state
// graph with guarded transitions, lifecycle hooks, retry on transient
// failures and a fallback error state that keeps turns alive when a
// transition cannot complete.
package fsm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/dialogd/internal/session"
)

// Condition guards a transition. A false result skips the transition;
// an error is treated as false unless marked retryable, in which case
// the whole transition attempt is retried.
type Condition func(ctx context.Context, sctx *session.Context) (bool, error)

// Action runs when a transition fires, between the exit and enter
// hooks. Action errors never block the transition.
type Action func(ctx context.Context, sctx *session.Context) error

// Hook runs on state entry or exit. Hook errors never block the
// transition.
type Hook func(ctx context.Context, sctx *session.Context) error

// Transition is one edge of the state graph. It is eligible only when
// the source state also lists To in its local transitions.
type Transition struct {
	From      session.StateType
	To        session.StateType
	Condition Condition
	Action    Action
}

// StateConfig describes one state.
type StateConfig struct {
	// Transitions lists the states reachable from this state.
	Transitions []session.StateType

	OnEnter Hook
	OnExit  Hook

	// Timeout is the intended dwell limit for the state. It is carried
	// in the config for session expiry tooling; the machine itself does
	// not enforce it.
	Timeout time.Duration
}

// Config is the full state machine definition.
type Config struct {
	InitialState session.StateType
	States       map[session.StateType]*StateConfig
	Transitions  []Transition
}

// FallbackState is entered when a transition fails beyond recovery.
const FallbackState = session.StateError

// validate checks the config and injects the fallback error state when
// the graph does not define one.
func (c *Config) validate() error {
	if c.InitialState == "" || c.States == nil || c.Transitions == nil {
		return errors.New("fsm: config requires initial state, states and transitions")
	}
	if _, ok := c.States[c.InitialState]; !ok {
		return fmt.Errorf("fsm: initial state %q is not defined", c.InitialState)
	}
	for _, t := range c.Transitions {
		if _, ok := c.States[t.From]; !ok {
			return fmt.Errorf("fsm: transition references undefined state: %s -> %s", t.From, t.To)
		}
		if _, ok := c.States[t.To]; !ok {
			return fmt.Errorf("fsm: transition references undefined state: %s -> %s", t.From, t.To)
		}
	}
	if _, ok := c.States[FallbackState]; !ok {
		c.States[FallbackState] = &StateConfig{Transitions: []session.StateType{}}
	}
	return nil
}

// stateConfig resolves a state's config, falling back to the error
// state for undefined states.
func (c *Config) stateConfig(state session.StateType) *StateConfig {
	if cfg, ok := c.States[state]; ok {
		return cfg
	}
	if cfg, ok := c.States[FallbackState]; ok {
		return cfg
	}
	return &StateConfig{Transitions: []session.StateType{}}
}
