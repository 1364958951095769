package failover

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExecutePrimarySucceeds(t *testing.T) {
	fallbackCalled := false

	got, err := Execute(context.Background(), "analysis", zap.NewNop(),
		func(ctx context.Context) (string, error) { return "primary", nil },
		func(ctx context.Context) (string, error) {
			fallbackCalled = true
			return "fallback", nil
		},
	)

	require.NoError(t, err)
	assert.Equal(t, "primary", got)
	assert.False(t, fallbackCalled, "fallback must not run when primary succeeds")
}

func TestExecuteFallsBackInOrder(t *testing.T) {
	var order []string

	got, err := Execute(context.Background(), "analysis", zap.NewNop(),
		func(ctx context.Context) (string, error) {
			order = append(order, "primary")
			return "", errors.New("primary down")
		},
		func(ctx context.Context) (string, error) {
			order = append(order, "fb0")
			return "", errors.New("fb0 down")
		},
		func(ctx context.Context) (string, error) {
			order = append(order, "fb1")
			return "from-fb1", nil
		},
		func(ctx context.Context) (string, error) {
			order = append(order, "fb2")
			return "from-fb2", nil
		},
	)

	require.NoError(t, err)
	assert.Equal(t, "from-fb1", got)
	assert.Equal(t, []string{"primary", "fb0", "fb1"}, order, "later fallbacks must not run after a success")
}

func TestExecuteAllFailReturnsPrimaryError(t *testing.T) {
	primaryErr := errors.New("primary outage")

	_, err := Execute(context.Background(), "analysis", zap.NewNop(),
		func(ctx context.Context) (int, error) { return 0, primaryErr },
		func(ctx context.Context) (int, error) { return 0, errors.New("fallback outage") },
	)

	assert.ErrorIs(t, err, primaryErr)
}

func TestExecuteNoFallbacks(t *testing.T) {
	primaryErr := errors.New("down")

	_, err := Execute(context.Background(), "analysis", nil,
		func(ctx context.Context) (int, error) { return 0, primaryErr },
	)
	assert.ErrorIs(t, err, primaryErr)
}
