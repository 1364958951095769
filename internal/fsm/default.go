package fsm

import (
	"time"

	"github.com/fyrsmithlabs/dialogd/internal/policy"
	"github.com/fyrsmithlabs/dialogd/internal/session"
)

// DefaultConfig is the standard conversation flow: greet, collect the
// birth profile, analyze, explain, recommend, optionally deep-dive,
// then close. A human handoff is reachable from every analytical state
// and the error state is a sink.
func DefaultConfig() Config {
	return Config{
		InitialState: session.StateGreeting,
		States: map[session.StateType]*StateConfig{
			session.StateGreeting: {
				Transitions: []session.StateType{session.StateCollectingInfo},
			},
			session.StateCollectingInfo: {
				Transitions: []session.StateType{session.StateAnalyzing},
				Timeout:     30 * time.Minute,
			},
			session.StateAnalyzing: {
				Transitions: []session.StateType{session.StateExplaining, session.StateExpertHandoff},
			},
			session.StateExplaining: {
				Transitions: []session.StateType{session.StateRecommending, session.StateExpertHandoff},
			},
			session.StateRecommending: {
				Transitions: []session.StateType{session.StateDeepDive, session.StateClosure, session.StateExpertHandoff},
			},
			session.StateDeepDive: {
				Transitions: []session.StateType{session.StateRecommending, session.StateClosure},
			},
			session.StateExpertHandoff: {
				Transitions: []session.StateType{session.StateClosure},
			},
			session.StateClosure: {
				Transitions: []session.StateType{},
			},
			session.StateError: {
				Transitions: []session.StateType{},
			},
		},
		Transitions: []Transition{
			{From: session.StateGreeting, To: session.StateCollectingInfo, Condition: MinMessages(1)},
			{From: session.StateCollectingInfo, To: session.StateAnalyzing, Condition: ProfileComplete()},

			{From: session.StateAnalyzing, To: session.StateExpertHandoff, Condition: HasTopicTag(policy.TagExpertHandoff)},
			{From: session.StateAnalyzing, To: session.StateExplaining, Condition: MinAnalyses(1)},

			{From: session.StateExplaining, To: session.StateExpertHandoff, Condition: HasTopicTag(policy.TagExpertHandoff)},
			{From: session.StateExplaining, To: session.StateRecommending, Condition: Always()},

			{From: session.StateRecommending, To: session.StateExpertHandoff, Condition: HasTopicTag(policy.TagExpertHandoff)},
			{From: session.StateRecommending, To: session.StateDeepDive, Condition: HasTopicTag("deep-dive")},
			{From: session.StateRecommending, To: session.StateClosure, Condition: HasTopicTag("goodbye")},

			{From: session.StateDeepDive, To: session.StateClosure, Condition: HasTopicTag("goodbye")},
			{From: session.StateDeepDive, To: session.StateRecommending, Condition: Always()},

			{From: session.StateExpertHandoff, To: session.StateClosure, Condition: Always()},
		},
	}
}
