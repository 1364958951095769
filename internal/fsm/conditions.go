package fsm

import (
	"context"

	"github.com/fyrsmithlabs/dialogd/internal/session"
)

// Always is a condition that always passes.
func Always() Condition {
	return func(context.Context, *session.Context) (bool, error) {
		return true, nil
	}
}

// Never is a condition that never passes.
func Never() Condition {
	return func(context.Context, *session.Context) (bool, error) {
		return false, nil
	}
}

// MinMessages passes once the conversation holds at least n messages.
func MinMessages(n int) Condition {
	return func(_ context.Context, sctx *session.Context) (bool, error) {
		if sctx == nil {
			return false, nil
		}
		return sctx.Metadata.TotalMessages >= n, nil
	}
}

// MinAnalyses passes once at least n analysis rounds have completed.
func MinAnalyses(n int) Condition {
	return func(_ context.Context, sctx *session.Context) (bool, error) {
		if sctx == nil {
			return false, nil
		}
		return sctx.Metadata.AnalysisCount >= n, nil
	}
}

// HasTopicTag passes when the session carries the tag.
func HasTopicTag(tag string) Condition {
	return func(_ context.Context, sctx *session.Context) (bool, error) {
		if sctx == nil {
			return false, nil
		}
		return sctx.HasTopicTag(tag), nil
	}
}

// ProfileComplete passes when the birth profile has all required fields.
func ProfileComplete() Condition {
	return func(_ context.Context, sctx *session.Context) (bool, error) {
		if sctx == nil {
			return false, nil
		}
		return sctx.UserProfile.Birth.Complete(), nil
	}
}

// Not inverts a condition. Errors pass through unchanged.
func Not(c Condition) Condition {
	return func(ctx context.Context, sctx *session.Context) (bool, error) {
		ok, err := c(ctx, sctx)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}
}

// All passes when every condition passes. Errors pass through.
func All(conds ...Condition) Condition {
	return func(ctx context.Context, sctx *session.Context) (bool, error) {
		for _, c := range conds {
			ok, err := c(ctx, sctx)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}
}
