package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dialogd/internal/session"
)

func completeBirth() *session.BirthProfile {
	return &session.BirthProfile{Year: 1990, Month: 6, Day: 15, Hour: 10}
}

func TestEvaluateIncompleteBirthData(t *testing.T) {
	engine := NewRuleBased(zap.NewNop())

	tests := []struct {
		name  string
		birth *session.BirthProfile
	}{
		{name: "no profile", birth: nil},
		{name: "missing year", birth: &session.BirthProfile{Month: 6, Day: 15, Hour: 10}},
		{name: "missing month", birth: &session.BirthProfile{Year: 1990, Day: 15, Hour: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sctx := session.NewContext("s", "u", "")
			sctx.UserProfile.Birth = tt.birth

			d, err := engine.Evaluate(context.Background(), &sctx)
			require.NoError(t, err)
			assert.Equal(t, session.StateCollectingInfo, d.NextState)
			assert.Equal(t, 0.6, d.Confidence)
			assert.Equal(t, []Action{ActionAskMore}, d.Actions)
		})
	}
}

func TestEvaluateExpertHandoffBeatsAnalysis(t *testing.T) {
	engine := NewRuleBased(zap.NewNop())

	sctx := session.NewContext("s", "u", "")
	sctx.UserProfile.Birth = completeBirth()
	sctx.TopicTags = []string{TagExpertHandoff}
	// handoff wins even though no analysis ran yet
	sctx.Metadata.AnalysisCount = 0

	d, err := engine.Evaluate(context.Background(), &sctx)
	require.NoError(t, err)
	assert.Equal(t, session.StateExpertHandoff, d.NextState)
	assert.Equal(t, 0.7, d.Confidence)
	assert.Equal(t, []Action{ActionHandoff}, d.Actions)
}

func TestEvaluateNeedsAnalysis(t *testing.T) {
	engine := NewRuleBased(zap.NewNop())

	sctx := session.NewContext("s", "u", "")
	sctx.UserProfile.Birth = completeBirth()

	d, err := engine.Evaluate(context.Background(), &sctx)
	require.NoError(t, err)
	assert.Equal(t, session.StateAnalyzing, d.NextState)
	assert.Equal(t, 0.8, d.Confidence)
	assert.Equal(t, []Action{ActionAnalyze}, d.Actions)
}

func TestEvaluateRecommendingConfidenceGrowth(t *testing.T) {
	engine := NewRuleBased(zap.NewNop())

	tests := []struct {
		analysisCount  int
		wantConfidence float64
	}{
		{analysisCount: 1, wantConfidence: 0.75},
		{analysisCount: 2, wantConfidence: 0.80},
		{analysisCount: 3, wantConfidence: 0.85},
		{analysisCount: 4, wantConfidence: 0.85},
		{analysisCount: 50, wantConfidence: 0.85},
	}

	for _, tt := range tests {
		sctx := session.NewContext("s", "u", "")
		sctx.UserProfile.Birth = completeBirth()
		sctx.Metadata.AnalysisCount = tt.analysisCount

		d, err := engine.Evaluate(context.Background(), &sctx)
		require.NoError(t, err)
		assert.Equal(t, session.StateRecommending, d.NextState)
		assert.InDelta(t, tt.wantConfidence, d.Confidence, 1e-9, "analysisCount=%d", tt.analysisCount)
		assert.Equal(t, []Action{ActionSummarize}, d.Actions)
	}
}

func TestEvaluateNilContext(t *testing.T) {
	engine := NewRuleBased(nil)
	_, err := engine.Evaluate(context.Background(), nil)
	assert.Error(t, err)
}
