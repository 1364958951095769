// Package orchestrator sequences one conversation turn end to end:
// session load, policy decision, budget gate, provider call with
// failover, state resolution, persistence and best-effort enrichment.
// A turn degrades to a canned reply rather than failing; only malformed
// input and a dead session store on initial load reach the caller.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dialogd/internal/analysis"
	"github.com/fyrsmithlabs/dialogd/internal/budget"
	"github.com/fyrsmithlabs/dialogd/internal/confidence"
	"github.com/fyrsmithlabs/dialogd/internal/failover"
	"github.com/fyrsmithlabs/dialogd/internal/knowledge"
	"github.com/fyrsmithlabs/dialogd/internal/policy"
	"github.com/fyrsmithlabs/dialogd/internal/pricing"
	"github.com/fyrsmithlabs/dialogd/internal/sanitize"
	"github.com/fyrsmithlabs/dialogd/internal/session"
	"github.com/fyrsmithlabs/dialogd/internal/usage"
)

var tracer = otel.Tracer("dialogd.orchestrator")

// ErrEmptyMessage rejects turns whose message is empty after cleaning.
var ErrEmptyMessage = errors.New("orchestrator: message is empty")

// Canned reply texts for degraded turns.
const (
	budgetLimitText = "This conversation is approaching its budget limit. To avoid extra charges, please try again later or upgrade your plan."
	unavailableText = "Sorry, the service is temporarily unavailable. Your request has been recorded; please try again shortly."
	apologyText     = "Sorry, no meaningful answer is available right now."
)

// Deps are the orchestrator's collaborators. Store, Policy, Budget and
// Analysis are required; the rest degrade to no-ops when nil.
type Deps struct {
	Store      session.Store
	Policy     policy.Engine
	Budget     *budget.Controller
	Analysis   analysis.Service
	Knowledge  knowledge.Service
	Confidence *confidence.Evaluator
	Usage      *usage.Tracker
	Logger     *zap.Logger

	// KnowledgeTopK caps enrichment results. Defaults to
	// knowledge.DefaultTopK.
	KnowledgeTopK int
}

// Orchestrator executes conversation turns.
type Orchestrator struct {
	store      session.Store
	policy     policy.Engine
	budget     *budget.Controller
	analysis   analysis.Service
	knowledge  knowledge.Service
	confidence *confidence.Evaluator
	usage      *usage.Tracker
	logger     *zap.Logger
	topK       int
}

// New validates deps and builds an orchestrator.
func New(deps Deps) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, errors.New("orchestrator: session store is required")
	}
	if deps.Policy == nil {
		return nil, errors.New("orchestrator: policy engine is required")
	}
	if deps.Budget == nil {
		return nil, errors.New("orchestrator: budget controller is required")
	}
	if deps.Analysis == nil {
		return nil, errors.New("orchestrator: analysis service is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Confidence == nil {
		deps.Confidence = confidence.NewEvaluator(nil, deps.Logger)
	}
	if deps.Usage == nil {
		deps.Usage = usage.NewTracker(deps.Logger)
	}
	if deps.KnowledgeTopK <= 0 {
		deps.KnowledgeTopK = knowledge.DefaultTopK
	}

	return &Orchestrator{
		store:      deps.Store,
		policy:     deps.Policy,
		budget:     deps.Budget,
		analysis:   deps.Analysis,
		knowledge:  deps.Knowledge,
		confidence: deps.Confidence,
		usage:      deps.Usage,
		logger:     deps.Logger,
		topK:       deps.KnowledgeTopK,
	}, nil
}

// HandleUserMessage executes exactly one turn.
func (o *Orchestrator) HandleUserMessage(ctx context.Context, p Params) (*TurnResult, error) {
	ctx, span := tracer.Start(ctx, "Orchestrator.HandleUserMessage")
	defer span.End()
	span.SetAttributes(
		attribute.String("session_id", p.SessionID),
		attribute.String("user_id", p.UserID),
	)

	// 1. validate
	message := sanitize.UserText(p.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	// 2. load or bootstrap the session
	st, err := o.store.Load(ctx, p.SessionID, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if st == nil {
		st = session.NewState(p.SessionID, p.UserID, p.Locale,
			session.StateGreeting, session.NewContext(p.SessionID, p.UserID, p.Locale))
	}
	if p.TraceID != "" {
		st.Context.Metadata.TraceID = p.TraceID
	}

	// 3. append the user message and checkpoint it
	now := time.Now()
	st.Context = session.AppendMessage(st.Context, session.Message{
		ID:        uuid.NewString(),
		Role:      session.RoleUser,
		Content:   message,
		Timestamp: now,
	})
	st.UpdatedAt = now
	o.persist(ctx, st, "user message checkpoint")

	// 4. policy decision
	decision, err := o.policy.Evaluate(ctx, &st.Context)
	if err != nil {
		o.logger.Warn("policy evaluation failed, keeping current state",
			zap.String("session_id", p.SessionID),
			zap.Error(err),
		)
		decision = policy.Decision{NextState: st.CurrentState, Reasoning: "policy unavailable"}
	}

	// 5. model strategy
	strategy := analysis.BuildStrategyPlan(decision, &st.Context)

	// 6. budget gate, then analysis behind failover
	promptTokens := pricing.EstimatePromptTokens(message)
	expectedTokens := pricing.ExpectedCompletionTokens(promptTokens)
	estimatedCost := pricing.EstimateCostUSD(strategy.Model, promptTokens, expectedTokens)

	var (
		resp            *analysis.Response
		limitedByBudget bool
	)
	if !o.budget.EnsureWithinBudget(ctx, &st.Context, estimatedCost) {
		limitedByBudget = true
		resp = cannedResponse(budgetLimitText, "budget_limit", strategy)
	} else {
		resp, err = failover.Execute(ctx, "analysis", o.logger,
			func(ctx context.Context) (*analysis.Response, error) {
				return o.analysis.ProcessUserMessage(ctx, &st.Context, message, strategy)
			},
			func(ctx context.Context) (*analysis.Response, error) {
				return cannedResponse(unavailableText, "failover", strategy), nil
			},
		)
		if err != nil {
			o.logger.Error("analysis failed past failover, using canned reply",
				zap.String("session_id", p.SessionID),
				zap.Error(err),
			)
			resp = cannedResponse(unavailableText, "failover", strategy)
		}
	}

	// 7. reply text and real accounting
	replyText := strings.TrimSpace(resp.Content)
	if replyText == "" {
		replyText = apologyText
	}
	completionTokens := pricing.EstimateCompletionTokens(replyText)
	actualCost := pricing.EstimateCostUSD(strategy.Model, promptTokens, completionTokens)

	// 8. fold analysis results into the context
	if len(resp.AlgorithmResults) > 0 {
		st.Context.DomainSnapshot = session.UpsertDomainSnapshot(
			st.Context.DomainSnapshot, toDomainResults(resp.AlgorithmResults)...)
		st.Context.Metadata.AnalysisCount++
	}
	if len(resp.TopicTags) > 0 {
		st.Context.TopicTags = session.MergeTopicTags(st.Context.TopicTags, resp.TopicTags...)
	}

	// 9. append the reply and resolve the next state; a provider hint
	// beats the policy decision
	reply := session.Message{
		ID:        uuid.NewString(),
		Role:      session.RoleAssistant,
		Content:   replyText,
		Timestamp: time.Now(),
		Metadata: map[string]any{
			"provider": resp.Provider,
			"model":    resp.Model,
		},
	}
	if reason := resp.Reason(); reason != "" {
		reply.Metadata[analysis.MetaReason] = reason
	}
	st.Context = session.AppendMessage(st.Context, reply)

	previous := st.CurrentState
	nextState := decision.NextState
	if hint := session.StateType(resp.NextStateHint()); hint.Valid() {
		nextState = hint
	}
	if nextState.Valid() {
		st.CurrentState = nextState
	}
	st.UpdatedAt = time.Now()

	// 10. assistant checkpoint
	o.persist(ctx, st, "assistant message checkpoint")

	// 11. best-effort enrichment, awaited but never fatal
	concepts := o.enrichKnowledge(ctx, replyText, resp.Suggestions)
	explanation := buildExplanation(decision, resp, concepts)
	breakdown := o.confidence.Evaluate(ctx, p.SessionID, resp)

	turnUsage := TurnUsage{
		Provider:         resp.Provider,
		Model:            resp.Model,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		EstimatedCostUSD: actualCost,
		Success:          !limitedByBudget,
	}
	if limitedByBudget {
		turnUsage.ErrorMessage = "budget_exceeded"
	}
	o.usage.Track(ctx, usage.Record{
		SessionID:        p.SessionID,
		UserID:           p.UserID,
		Provider:         turnUsage.Provider,
		Model:            turnUsage.Model,
		PromptTokens:     turnUsage.PromptTokens,
		CompletionTokens: turnUsage.CompletionTokens,
		CostUSD:          turnUsage.EstimatedCostUSD,
		Success:          turnUsage.Success,
		ErrorMessage:     turnUsage.ErrorMessage,
	})

	// 12. composed result
	return &TurnResult{
		Reply:             reply,
		SessionState:      st,
		Suggestions:       normalizeList(resp.Suggestions),
		FollowUpQuestions: normalizeList(resp.FollowUpQuestions),
		ActionItems:       normalizeList(resp.ActionItems),
		Confidence:        breakdown,
		Explanation:       explanation,
		Knowledge:         concepts,
		Usage:             turnUsage,
		State: StateInfo{
			Previous: previous,
			Current:  st.CurrentState,
			Decision: decision,
		},
		LimitedByBudget: limitedByBudget,
	}, nil
}

// ResetSession deletes the session.
func (o *Orchestrator) ResetSession(ctx context.Context, sessionID, userID string) error {
	return o.store.Reset(ctx, sessionID, userID)
}

// GetSession loads the session, or (nil, nil) when absent.
func (o *Orchestrator) GetSession(ctx context.Context, sessionID, userID string) (*session.State, error) {
	return o.store.Load(ctx, sessionID, userID)
}

// persist writes the session and logs on failure. Checkpoint failures
// after the initial load degrade the turn instead of aborting it.
func (o *Orchestrator) persist(ctx context.Context, st *session.State, checkpoint string) {
	if err := o.store.Persist(ctx, st); err != nil {
		o.logger.Error("session persist failed",
			zap.String("session_id", st.SessionID),
			zap.String("checkpoint", checkpoint),
			zap.Error(err),
		)
	}
}

// enrichKnowledge embeds the reply and queries the concept store.
// Failures and a missing store both yield an empty result.
func (o *Orchestrator) enrichKnowledge(ctx context.Context, replyText string, suggestions []string) []knowledge.ConceptResult {
	if o.knowledge == nil {
		return []knowledge.ConceptResult{}
	}

	text := replyText
	if len(suggestions) > 0 {
		text += " " + strings.Join(suggestions, " ")
	}

	results, err := o.knowledge.SearchSimilarConcepts(ctx, knowledge.EmbedText(text), o.topK)
	if err != nil {
		o.logger.Warn("knowledge enrichment failed", zap.Error(err))
		return []knowledge.ConceptResult{}
	}
	return results
}

// cannedResponse builds a synthetic degraded reply.
func cannedResponse(text, reason string, strategy analysis.ModelStrategy) *analysis.Response {
	return &analysis.Response{
		ID:       uuid.NewString(),
		Provider: strategy.Provider,
		Model:    strategy.Model,
		Created:  time.Now(),
		Content:  text,
		Metadata: map[string]any{analysis.MetaReason: reason},
	}
}

// buildExplanation summarizes how the reply was produced.
func buildExplanation(decision policy.Decision, resp *analysis.Response, concepts []knowledge.ConceptResult) string {
	var b strings.Builder

	if resp.Summary != "" {
		b.WriteString(resp.Summary)
	}
	if decision.Reasoning != "" {
		if b.Len() > 0 {
			b.WriteString("; ")
		}
		b.WriteString(decision.Reasoning)
	}

	if len(resp.AlgorithmResults) > 0 {
		domains := make([]string, 0, len(resp.AlgorithmResults))
		for _, r := range resp.AlgorithmResults {
			if r.Success {
				domains = append(domains, r.Domain)
			}
		}
		if len(domains) > 0 {
			if b.Len() > 0 {
				b.WriteString("; ")
			}
			fmt.Fprintf(&b, "grounded in %s analysis", strings.Join(domains, ", "))
		}
	}

	if len(concepts) > 0 {
		names := make([]string, 0, len(concepts))
		for _, c := range concepts {
			if c.Name != "" {
				names = append(names, c.Name)
			}
		}
		if len(names) > 0 {
			if b.Len() > 0 {
				b.WriteString("; ")
			}
			fmt.Fprintf(&b, "related concepts: %s", strings.Join(names, ", "))
		}
	}

	if reason := resp.Reason(); reason != "" {
		if b.Len() > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "degraded reply (%s)", reason)
	}

	return b.String()
}

func toDomainResults(results []analysis.AlgorithmResult) []session.DomainResult {
	out := make([]session.DomainResult, len(results))
	for i, r := range results {
		out[i] = session.DomainResult{
			Domain:        r.Domain,
			Success:       r.Success,
			Data:          r.Data,
			Confidence:    r.Confidence,
			ExecutionTime: r.ExecutionTime,
		}
	}
	return out
}

// normalizeList trims entries and drops empties and duplicates.
func normalizeList(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
