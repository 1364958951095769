package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dialogd/internal/session"
)

// promptHistoryLimit bounds how many recent messages feed the prompt.
const promptHistoryLimit = 10

// Service produces the integrated response for one user message.
type Service interface {
	ProcessUserMessage(ctx context.Context, sctx *session.Context, message string, strategy ModelStrategy) (*Response, error)
}

// LLMService is the default Service: a language model generation plus
// the deterministic birth chart computation.
type LLMService struct {
	llm    llms.Model
	logger *zap.Logger
}

// NewLLMService creates an analysis service over a language model.
func NewLLMService(llm llms.Model, logger *zap.Logger) (*LLMService, error) {
	if llm == nil {
		return nil, errors.New("analysis: llm is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMService{llm: llm, logger: logger}, nil
}

// ProcessUserMessage generates a response for the message within the
// session context, using the given model strategy.
func (s *LLMService) ProcessUserMessage(ctx context.Context, sctx *session.Context, message string, strategy ModelStrategy) (*Response, error) {
	if sctx == nil {
		return nil, errors.New("analysis: session context is required")
	}

	start := time.Now()
	prompt := buildPrompt(sctx, message)

	content, err := llms.GenerateFromSinglePrompt(ctx, s.llm, prompt,
		llms.WithModel(strategy.Model),
		llms.WithTemperature(strategy.Temperature),
		llms.WithMaxTokens(strategy.MaxTokens),
	)
	if err != nil {
		return nil, fmt.Errorf("generate response: %w", err)
	}

	s.logger.Debug("analysis generation complete",
		zap.String("session_id", sctx.SessionID),
		zap.String("model", strategy.Model),
		zap.Duration("duration", time.Since(start)),
	)

	resp := &Response{
		ID:       uuid.NewString(),
		Provider: strategy.Provider,
		Model:    strategy.Model,
		Created:  time.Now(),
		Content:  strings.TrimSpace(content),
	}
	if chart, ok := computeBirthChart(sctx.UserProfile.Birth); ok {
		resp.AlgorithmResults = append(resp.AlgorithmResults, chart)
	}
	return resp, nil
}

// buildPrompt assembles the generation prompt: instructions, the known
// profile, recent history and the new message.
func buildPrompt(sctx *session.Context, message string) string {
	var b strings.Builder

	b.WriteString("You are a conversational assistant for traditional birth chart analysis. ")
	b.WriteString("Answer in the user's language, stay grounded in the provided chart data, ")
	b.WriteString("and say so plainly when the data is insufficient.\n\n")

	if sctx.Locale != "" {
		fmt.Fprintf(&b, "Locale: %s\n", sctx.Locale)
	}
	if birth := sctx.UserProfile.Birth; birth.Complete() {
		fmt.Fprintf(&b, "Birth data: year=%d month=%d day=%d hour=%d\n", birth.Year, birth.Month, birth.Day, birth.Hour)
	} else {
		b.WriteString("Birth data: incomplete\n")
	}
	if len(sctx.TopicTags) > 0 {
		fmt.Fprintf(&b, "Topics so far: %s\n", strings.Join(sctx.TopicTags, ", "))
	}

	history := sctx.Messages
	if len(history) > promptHistoryLimit {
		history = history[len(history)-promptHistoryLimit:]
	}
	if len(history) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, m := range history {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
	}

	fmt.Fprintf(&b, "\nuser: %s\nassistant:", message)
	return b.String()
}

// StaticService returns a fixed answer regardless of input. It serves
// as the degraded fallback provider when every model is unreachable.
type StaticService struct {
	Content string
}

// ProcessUserMessage returns the canned content.
func (s *StaticService) ProcessUserMessage(_ context.Context, _ *session.Context, _ string, strategy ModelStrategy) (*Response, error) {
	return &Response{
		ID:       uuid.NewString(),
		Provider: "static",
		Model:    strategy.Model,
		Created:  time.Now(),
		Content:  s.Content,
		Metadata: map[string]any{MetaReason: "failover"},
	}, nil
}
