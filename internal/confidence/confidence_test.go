package confidence

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/dialogd/internal/analysis"
)

func ptr(v float64) *float64 { return &v }

func respWith(conf *float64, results int, meta map[string]any) *analysis.Response {
	r := &analysis.Response{Confidence: conf, Metadata: meta}
	for i := 0; i < results; i++ {
		r.AlgorithmResults = append(r.AlgorithmResults, analysis.AlgorithmResult{Domain: "birth_chart", Success: true})
	}
	return r
}

func TestScore(t *testing.T) {
	tests := []struct {
		name        string
		resp        *analysis.Response
		wantOverall float64
		wantReview  bool
	}{
		{
			name:        "provider confidence with results",
			resp:        respWith(ptr(0.7), 1, nil),
			wantOverall: 1.0, // 0.7 + 0.2 + 0.1
			wantReview:  false,
		},
		{
			name:        "absent confidence defaults to 0.6",
			resp:        respWith(nil, 1, nil),
			wantOverall: 0.9, // 0.6 + 0.2 + 0.1
			wantReview:  false,
		},
		{
			name:        "no results is penalized",
			resp:        respWith(ptr(0.5), 0, nil),
			wantOverall: 0.5, // 0.5 - 0.1 + 0.1
			wantReview:  false,
		},
		{
			name:        "cultural override applies",
			resp:        respWith(ptr(0.5), 1, map[string]any{analysis.MetaCulturalAdjustment: -0.3}),
			wantOverall: 0.4, // 0.5 + 0.2 - 0.3
			wantReview:  true,
		},
		{
			name:        "non-numeric override ignored",
			resp:        respWith(ptr(0.5), 1, map[string]any{analysis.MetaCulturalAdjustment: "high"}),
			wantOverall: 0.8, // 0.5 + 0.2 + 0.1
			wantReview:  false,
		},
		{
			name:        "clamped above",
			resp:        respWith(ptr(0.95), 1, nil),
			wantOverall: 1.0,
			wantReview:  false,
		},
		{
			name:        "clamped below",
			resp:        respWith(ptr(0.0), 0, map[string]any{analysis.MetaCulturalAdjustment: -0.5}),
			wantOverall: 0.0,
			wantReview:  true,
		},
		{
			name:        "nil response",
			resp:        nil,
			wantOverall: 0.6, // 0.6 - 0.1 + 0.1
			wantReview:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Score(tt.resp)
			assert.InDelta(t, tt.wantOverall, b.Overall, 1e-9)
			assert.Equal(t, tt.wantReview, b.RequiresReview)
			assert.GreaterOrEqual(t, b.Overall, 0.0)
			assert.LessOrEqual(t, b.Overall, 1.0)
		})
	}
}

func TestEvaluatorPersists(t *testing.T) {
	repo := NewMemoryRepository()
	eval := NewEvaluator(repo, zap.NewNop())

	b := eval.Evaluate(context.Background(), "sess-1", respWith(ptr(0.7), 1, nil))
	assert.Equal(t, "sess-1", b.SessionID)

	stored, err := repo.GetLatest(context.Background(), "sess-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.InDelta(t, b.Overall, stored.Overall, 1e-9)

	// re-evaluation replaces, not appends
	eval.Evaluate(context.Background(), "sess-1", respWith(ptr(0.2), 0, nil))
	stored, err = repo.GetLatest(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.2, stored.Overall, 1e-9)
}

type failingRepo struct{}

func (failingRepo) Upsert(context.Context, Breakdown) error { return errors.New("down") }
func (failingRepo) GetLatest(context.Context, string) (*Breakdown, error) {
	return nil, errors.New("down")
}

func TestEvaluatorRepoFailureStillScores(t *testing.T) {
	eval := NewEvaluator(failingRepo{}, zap.NewNop())
	b := eval.Evaluate(context.Background(), "sess-1", respWith(ptr(0.7), 1, nil))
	assert.InDelta(t, 1.0, b.Overall, 1e-9)
}

func TestEvaluatorNilRepository(t *testing.T) {
	eval := NewEvaluator(nil, nil)
	b := eval.Evaluate(context.Background(), "sess-1", respWith(nil, 0, nil))
	assert.Equal(t, "sess-1", b.SessionID)
}

func TestSQLiteRepository(t *testing.T) {
	db, err := sql.Open("sqlite", t.TempDir()+"/confidence.db")
	require.NoError(t, err)
	defer db.Close()

	repo, err := NewSQLiteRepository(db)
	require.NoError(t, err)

	ctx := context.Background()

	got, err := repo.GetLatest(ctx, "sess-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	b := Score(respWith(ptr(0.7), 1, nil))
	b.SessionID = "sess-1"
	require.NoError(t, repo.Upsert(ctx, b))

	got, err = repo.GetLatest(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.InDelta(t, b.Overall, got.Overall, 1e-9)
	assert.Equal(t, b.RequiresReview, got.RequiresReview)

	// conflict replaces
	b2 := Score(respWith(ptr(0.1), 0, nil))
	b2.SessionID = "sess-1"
	require.NoError(t, repo.Upsert(ctx, b2))

	got, err = repo.GetLatest(ctx, "sess-1")
	require.NoError(t, err)
	assert.InDelta(t, b2.Overall, got.Overall, 1e-9)

	assert.Error(t, repo.Upsert(ctx, Breakdown{}))
}
