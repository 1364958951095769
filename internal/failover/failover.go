// Package failover runs an operation against a primary provider and
// falls back to alternates in order when the primary fails.
package failover

import (
	"context"

	"go.uber.org/zap"
)

// Operation produces a value of type T against one provider.
type Operation[T any] func(ctx context.Context) (T, error)

// Execute calls primary and, on failure, each fallback in order,
// returning the first success. When every attempt fails the primary's
// original error is returned, since that is the error that describes
// the real outage rather than a degraded alternate.
//
// label names the operation in logs. A nil logger is replaced with a
// nop logger.
func Execute[T any](ctx context.Context, label string, logger *zap.Logger, primary Operation[T], fallbacks ...Operation[T]) (T, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	result, primaryErr := primary(ctx)
	if primaryErr == nil {
		return result, nil
	}

	logger.Warn("primary provider failed, trying fallbacks",
		zap.String("operation", label),
		zap.Int("fallbacks", len(fallbacks)),
		zap.Error(primaryErr),
	)

	for i, fallback := range fallbacks {
		logger.Info("attempting fallback provider",
			zap.String("operation", label),
			zap.Int("fallback_index", i),
		)

		result, err := fallback(ctx)
		if err == nil {
			return result, nil
		}

		logger.Error("fallback provider failed",
			zap.String("operation", label),
			zap.Int("fallback_index", i),
			zap.Error(err),
		)
	}

	var zero T
	return zero, primaryErr
}
