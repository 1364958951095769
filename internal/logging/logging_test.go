package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid json", cfg: Config{Level: "debug", Format: "json"}, wantErr: false},
		{name: "valid console", cfg: Config{Level: "warn", Format: "console"}, wantErr: false},
		{name: "bad level", cfg: Config{Level: "loud", Format: "json"}, wantErr: true},
		{name: "bad format", cfg: Config{Level: "info", Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew(t *testing.T) {
	logger, err := New(&Config{Level: "debug", Format: "console", OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	require.NotNil(t, logger)

	// nil config falls back to defaults
	logger, err = New(nil)
	require.NoError(t, err)
	require.NotNil(t, logger)

	_, err = New(&Config{Level: "nope", Format: "json"})
	assert.Error(t, err)
}

func TestContextCorrelation(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, SessionIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Empty(t, ContextFields(ctx))

	ctx = WithSessionID(ctx, "sess-42")
	ctx = WithRequestID(ctx, "req-7")
	assert.Equal(t, "sess-42", SessionIDFromContext(ctx))
	assert.Equal(t, "req-7", RequestIDFromContext(ctx))

	fields := ContextFields(ctx)
	assert.Len(t, fields, 2)
}
