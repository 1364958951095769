package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dialogd/internal/policy"
	"github.com/fyrsmithlabs/dialogd/internal/session"
)

// fakeModel is a canned llms.Model for tests.
type fakeModel struct {
	content string
	err     error
	prompts []string
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, m := range messages {
		for _, part := range m.Parts {
			if text, ok := part.(llms.TextContent); ok {
				f.prompts = append(f.prompts, text.Text)
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.content}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.content, nil
}

func analysisCtx(birth *session.BirthProfile) *session.Context {
	c := session.NewContext("sess-1", "user-1", "en")
	c.UserProfile.Birth = birth
	return &c
}

func TestProcessUserMessage(t *testing.T) {
	model := &fakeModel{content: "  Your chart points to a strong wood element.  "}
	svc, err := NewLLMService(model, zap.NewNop())
	require.NoError(t, err)

	sctx := analysisCtx(&session.BirthProfile{Year: 1990, Month: 6, Day: 15, Hour: 10})
	resp, err := svc.ProcessUserMessage(context.Background(), sctx, "what does my chart say?", DefaultStrategy())
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "deepseek", resp.Provider)
	assert.Equal(t, "deepseek-chat", resp.Model)
	assert.Equal(t, "Your chart points to a strong wood element.", resp.Content)

	require.Len(t, resp.AlgorithmResults, 1)
	chart := resp.AlgorithmResults[0]
	assert.Equal(t, "birth_chart", chart.Domain)
	assert.True(t, chart.Success)

	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], "year=1990")
	assert.Contains(t, model.prompts[0], "what does my chart say?")
}

func TestProcessUserMessageIncompleteBirth(t *testing.T) {
	model := &fakeModel{content: "Please share your birth hour."}
	svc, err := NewLLMService(model, zap.NewNop())
	require.NoError(t, err)

	resp, err := svc.ProcessUserMessage(context.Background(), analysisCtx(nil), "hello", DefaultStrategy())
	require.NoError(t, err)
	assert.Empty(t, resp.AlgorithmResults)
	assert.Contains(t, model.prompts[0], "Birth data: incomplete")
}

func TestProcessUserMessageProviderError(t *testing.T) {
	providerErr := errors.New("upstream 503")
	svc, err := NewLLMService(&fakeModel{err: providerErr}, zap.NewNop())
	require.NoError(t, err)

	_, err = svc.ProcessUserMessage(context.Background(), analysisCtx(nil), "hello", DefaultStrategy())
	assert.ErrorIs(t, err, providerErr)
}

func TestNewLLMServiceRequiresModel(t *testing.T) {
	_, err := NewLLMService(nil, zap.NewNop())
	assert.Error(t, err)
}

func TestStaticService(t *testing.T) {
	svc := &StaticService{Content: "Sorry, no meaningful answer is available right now."}
	resp, err := svc.ProcessUserMessage(context.Background(), analysisCtx(nil), "hi", DefaultStrategy())
	require.NoError(t, err)
	assert.Equal(t, "static", resp.Provider)
	assert.Equal(t, "failover", resp.Reason())
}

func TestBuildStrategyPlan(t *testing.T) {
	sctx := analysisCtx(nil)

	tests := []struct {
		name      string
		nextState session.StateType
		wantTemp  float64
		wantMax   int
	}{
		{name: "default for unknown", nextState: session.StateGreeting, wantTemp: 0.3, wantMax: 1200},
		{name: "collecting is cheap", nextState: session.StateCollectingInfo, wantTemp: 0.4, wantMax: 600},
		{name: "analyzing is precise", nextState: session.StateAnalyzing, wantTemp: 0.2, wantMax: 1600},
		{name: "deepdive is long", nextState: session.StateDeepDive, wantTemp: 0.2, wantMax: 2000},
		{name: "recommending is warmer", nextState: session.StateRecommending, wantTemp: 0.5, wantMax: 1200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := BuildStrategyPlan(policy.Decision{NextState: tt.nextState}, sctx)
			assert.Equal(t, "deepseek", s.Provider)
			assert.Equal(t, "deepseek-chat", s.Model)
			assert.Equal(t, tt.wantTemp, s.Temperature)
			assert.Equal(t, tt.wantMax, s.MaxTokens)
		})
	}

	expert := analysisCtx(nil)
	expert.UserProfile.Expertise = "expert"
	s := BuildStrategyPlan(policy.Decision{NextState: session.StateRecommending}, expert)
	assert.Equal(t, 1600, s.MaxTokens)
}

func TestResponseMetadataHelpers(t *testing.T) {
	var nilResp *Response
	assert.Empty(t, nilResp.NextStateHint())
	assert.Empty(t, nilResp.Reason())

	resp := &Response{Metadata: map[string]any{
		MetaNextState: "deepdive",
		MetaReason:    "budget_limit",
	}}
	assert.Equal(t, "deepdive", resp.NextStateHint())
	assert.Equal(t, "budget_limit", resp.Reason())

	// non-string values are ignored
	resp = &Response{Metadata: map[string]any{MetaNextState: 42}}
	assert.Empty(t, resp.NextStateHint())
}

func TestComputeBirthChart(t *testing.T) {
	chart, ok := computeBirthChart(&session.BirthProfile{Year: 1990, Month: 6, Day: 15, Hour: 10})
	require.True(t, ok)
	assert.Equal(t, "geng", chart.Data["year_stem"])
	assert.Equal(t, "wu", chart.Data["year_branch"])
	assert.Equal(t, "horse", chart.Data["zodiac"])
	assert.Equal(t, "si", chart.Data["hour_branch"])

	// 1984 starts a cycle: jia-zi, rat
	chart, ok = computeBirthChart(&session.BirthProfile{Year: 1984, Month: 2, Day: 2, Hour: 23})
	require.True(t, ok)
	assert.Equal(t, "jia", chart.Data["year_stem"])
	assert.Equal(t, "zi", chart.Data["year_branch"])
	assert.Equal(t, "rat", chart.Data["zodiac"])
	assert.Equal(t, "zi", chart.Data["hour_branch"])

	_, ok = computeBirthChart(nil)
	assert.False(t, ok)
}
