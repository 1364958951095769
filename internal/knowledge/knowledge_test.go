package knowledge

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEmbedText(t *testing.T) {
	vec := EmbedText("five elements")
	require.Len(t, vec, EmbedDim)

	// deterministic
	assert.Equal(t, vec, EmbedText("five elements"))

	// unit length
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sum, 1e-5)

	// empty text is the zero vector
	zero := EmbedText("")
	require.Len(t, zero, EmbedDim)
	for _, v := range zero {
		assert.Zero(t, v)
	}

	assert.NotEqual(t, EmbedText("wood"), EmbedText("metal"))
}

func TestEmbedTextNoNaN(t *testing.T) {
	for _, text := range []string{"a", "漢字", "  ", "🎴"} {
		for _, v := range EmbedText(text) {
			assert.False(t, math.IsNaN(float64(v)), "NaN for input %q", text)
		}
	}
}

func TestChromemStoreRoundTrip(t *testing.T) {
	store, err := NewChromemStore(ChromemConfig{Path: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	// empty store returns empty results, not an error
	results, err := store.SearchSimilarConcepts(ctx, EmbedText("five elements"), 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	require.NoError(t, store.AddConcepts(ctx, DefaultConcepts()))

	results, err = store.SearchSimilarConcepts(ctx, EmbedText("five elements wood fire"), 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.NotEmpty(t, r.ID)
		assert.NotEmpty(t, r.Name)
		assert.NotEmpty(t, r.Description)
	}
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)

	// topK above the corpus size is capped, not an error
	results, err = store.SearchSimilarConcepts(ctx, EmbedText("anything"), 100)
	require.NoError(t, err)
	assert.Len(t, results, len(DefaultConcepts()))

	// non-positive topK falls back to the default
	results, err = store.SearchSimilarConcepts(ctx, EmbedText("anything"), 0)
	require.NoError(t, err)
	assert.Len(t, results, DefaultTopK)
}

func TestChromemStoreTenantIsolation(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	alpha, err := NewChromemStore(ChromemConfig{Path: dir, Tenant: "alpha"}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, alpha.AddConcepts(ctx, DefaultConcepts()))

	// same path, different tenant: separate collection, empty corpus
	beta, err := NewChromemStore(ChromemConfig{Path: dir, Tenant: "beta"}, zap.NewNop())
	require.NoError(t, err)

	results, err := beta.SearchSimilarConcepts(ctx, EmbedText("five elements"), 3)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = alpha.SearchSimilarConcepts(ctx, EmbedText("five elements"), 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestChromemStoreValidation(t *testing.T) {
	store, err := NewChromemStore(ChromemConfig{}, nil)
	require.NoError(t, err)

	assert.Error(t, store.AddConcepts(context.Background(), nil))
	assert.Error(t, store.AddConcepts(context.Background(), []Concept{{Name: "no id"}}))
}

func TestConfigDefaultsAndValidation(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	assert.Equal(t, "chromem", cfg.Provider)
	assert.Equal(t, DefaultTopK, cfg.TopK)
	require.NoError(t, cfg.Validate())

	bad := Config{Provider: "pinecone"}
	assert.Error(t, bad.Validate())
}

func TestFactoryBuildsChromem(t *testing.T) {
	svc, err := New(context.Background(), Config{
		Provider: "chromem",
		Chromem:  ChromemConfig{Path: t.TempDir()},
	}, zap.NewNop())
	require.NoError(t, err)
	defer svc.Close()

	_, ok := svc.(*ChromemStore)
	assert.True(t, ok)
}
