package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adjutant-ai/adjutant/internal/infra"
	"github.com/adjutant-ai/adjutant/internal/provider"
	"github.com/adjutant-ai/adjutant/pkg/models"
)

// Loop termination causes. Each maps to a distinct session state and user
// message in process.
var (
	ErrProviderExhausted = errors.New("provider retries exhausted")
	ErrLoopLimitExceeded = errors.New("loop iteration limit exceeded")
	ErrToolFailureStreak = errors.New("consecutive tool failures")
)

// process runs the full lifecycle for one admitted event: session
// bookkeeping, the agent loop, and the outbound reply.
func (r *Runtime) process(ctx context.Context, event *models.Event) {
	session, err := r.store.GetOrCreate(ctx, event.ConversationID, event.Channel)
	if err != nil {
		r.logger.Error(ctx, "session lookup failed", "error", err)
		return
	}
	if session.Status == models.SessionFailed {
		r.logger.Info(ctx, "failed session resumes on new event")
	}
	session.Status = models.SessionRunning
	session.LastActivity = time.Now()
	if err := r.store.Save(ctx, session); err != nil {
		r.logger.Error(ctx, "session save failed", "error", err)
		return
	}

	if err := r.store.AppendMessage(ctx, session.ConversationID, &models.Message{
		EventID:     event.ID,
		Role:        models.RoleUser,
		Content:     event.Content,
		Attachments: event.Attachments,
		CreatedAt:   event.CreatedAt,
	}); err != nil {
		r.logger.Error(ctx, "appending user turn failed", "error", err)
	}

	text, iterations, err := r.loop(ctx, session, event)
	if r.metrics != nil && iterations > 0 {
		r.metrics.LoopIterations.Observe(float64(iterations))
	}
	session.Iterations = iterations
	session.LastActivity = time.Now()

	switch {
	case err == nil:
		session.Status = models.SessionIdle
		r.saveSession(ctx, session)
		r.deliver(ctx, event.Channel, event.ConversationID, text)
	case errors.Is(err, ErrLoopLimitExceeded):
		session.Status = models.SessionIdle
		r.saveSession(ctx, session)
		r.logger.Warn(ctx, "loop limit exceeded", "iterations", iterations)
		r.deliver(ctx, event.Channel, event.ConversationID,
			"I could not finish that request within my step limit. Try breaking it into smaller pieces.")
	case errors.Is(err, ErrProviderExhausted):
		session.Status = models.SessionFailed
		r.saveSession(ctx, session)
		r.logger.Error(ctx, "provider exhausted", "error", err)
		r.deliver(ctx, event.Channel, event.ConversationID,
			"The model backend is unavailable right now. Your message was saved; send another to retry.")
	case errors.Is(err, ErrToolFailureStreak):
		session.Status = models.SessionFailed
		r.saveSession(ctx, session)
		r.logger.Error(ctx, "aborting after repeated tool failures", "error", err)
		r.deliver(ctx, event.Channel, event.ConversationID,
			"Repeated tool failures stopped this request. Send another message to retry.")
	default:
		// Cancellation during shutdown: leave the session as persisted;
		// the event was already admitted and will not be replayed.
		r.logger.Warn(ctx, "loop interrupted", "error", err)
	}
}

func (r *Runtime) saveSession(ctx context.Context, session *models.Session) {
	if err := r.store.Save(ctx, session); err != nil {
		r.logger.Error(ctx, "session save failed",
			"conversation_id", session.ConversationID, "error", err)
	}
}

// loop is the bounded think-act cycle. It returns the final answer text
// and the number of iterations consumed.
func (r *Runtime) loop(ctx context.Context, session *models.Session, event *models.Event) (string, int, error) {
	specs := r.toolSpecs()
	consecutiveFailures := 0

	for iteration := 1; iteration <= r.opts.MaxIterations; iteration++ {
		resp, err := r.complete(ctx, session, event, specs)
		if err != nil {
			return "", iteration, err
		}

		if resp.Final() {
			if err := r.store.AppendMessage(ctx, session.ConversationID, &models.Message{
				Role:      models.RoleAssistant,
				Content:   resp.Text,
				CreatedAt: time.Now(),
			}); err != nil {
				r.logger.Error(ctx, "appending assistant turn failed", "error", err)
			}
			return resp.Text, iteration, nil
		}

		results, err := r.executeCalls(ctx, session, resp)
		if err != nil {
			return "", iteration, err
		}

		if allErrored(results) {
			consecutiveFailures++
			if consecutiveFailures >= r.opts.MaxConsecutiveToolFailures {
				return "", iteration, fmt.Errorf("%w: %d iterations in a row",
					ErrToolFailureStreak, consecutiveFailures)
			}
		} else {
			consecutiveFailures = 0
		}
	}
	return "", r.opts.MaxIterations, ErrLoopLimitExceeded
}

// complete builds the context bundle and calls the provider with bounded
// retries. Retrieval failures never block the loop; they degrade to an
// empty snippet list.
func (r *Runtime) complete(ctx context.Context, session *models.Session, event *models.Event, specs []provider.ToolSpec) (*provider.Response, error) {
	history, err := r.store.GetHistory(ctx, session.ConversationID, r.opts.HistoryLimit)
	if err != nil {
		r.logger.Error(ctx, "history load failed", "error", err)
	}
	window := make([]models.Message, 0, len(history))
	for _, msg := range history {
		window = append(window, *msg)
	}
	snippets := r.retriever.Retrieve(ctx, event.Content, session.ConversationID)

	req := &provider.Request{
		System:   r.opts.SystemPrompt,
		History:  window,
		Snippets: snippets,
		Tools:    specs,
	}

	cfg := *r.opts.Retry
	cfg.RetryIf = provider.IsRetryable
	resp, result := infra.Retry(ctx, &cfg, func(ctx context.Context) (*provider.Response, error) {
		return r.gateway.Complete(ctx, req)
	})
	if r.metrics != nil {
		if result.Attempts > 1 {
			r.metrics.ProviderRetries.Add(float64(result.Attempts - 1))
		}
		status := "success"
		if result.LastError != nil {
			status = providerStatus(result.LastError)
		}
		r.metrics.ProviderRequestCounter.WithLabelValues(status).Inc()
	}
	if result.LastError != nil {
		if ctx.Err() != nil {
			return nil, result.LastError
		}
		return nil, fmt.Errorf("%w: %w", ErrProviderExhausted, result.LastError)
	}
	return resp, nil
}

// executeCalls records the assistant's tool intent, gates sensitive calls,
// dispatches the rest, and records the results. Every call ends with
// exactly one result.
func (r *Runtime) executeCalls(ctx context.Context, session *models.Session, resp *provider.Response) ([]models.ToolResult, error) {
	calls := make([]models.ToolCall, len(resp.ToolCalls))
	copy(calls, resp.ToolCalls)
	for i := range calls {
		risk, _ := r.policy.Classify(&calls[i])
		calls[i].Risk = risk
	}
	if err := r.store.AppendMessage(ctx, session.ConversationID, &models.Message{
		Role:      models.RoleAssistant,
		Content:   resp.Text,
		ToolCalls: calls,
		CreatedAt: time.Now(),
	}); err != nil {
		r.logger.Error(ctx, "appending tool intent failed", "error", err)
	}

	results := make([]models.ToolResult, 0, len(calls))
	for i := range calls {
		result, err := r.executeCall(ctx, session, &calls[i])
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	if err := r.store.AppendMessage(ctx, session.ConversationID, &models.Message{
		Role:        models.RoleTool,
		ToolResults: results,
		CreatedAt:   time.Now(),
	}); err != nil {
		r.logger.Error(ctx, "appending tool results failed", "error", err)
	}
	return results, nil
}

func (r *Runtime) executeCall(ctx context.Context, session *models.Session, call *models.ToolCall) (models.ToolResult, error) {
	if call.Risk == models.RiskSensitive {
		_, reason := r.policy.Classify(call)
		outcome, err := r.awaitApproval(ctx, session, call, reason)
		if err != nil {
			return models.ToolResult{}, err
		}
		if outcome != models.ApprovalApproved {
			return models.ToolResult{
				ToolCallID: call.ID,
				Content:    fmt.Sprintf("tool call %s was not approved (%s)", call.Name, outcome),
				IsError:    true,
			}, nil
		}
	}
	return r.dispatcher.Dispatch(ctx, call)
}

// awaitApproval suspends the loop on the gate, persisting the session as
// awaiting_approval for the duration so the state survives restarts and
// is visible to new events.
func (r *Runtime) awaitApproval(ctx context.Context, session *models.Session, call *models.ToolCall, reason string) (models.ApprovalOutcome, error) {
	session.Status = models.SessionAwaitingApproval
	r.saveSession(ctx, session)

	outcome, err := r.gate.Request(ctx, session.ConversationID, call, reason)

	session.Status = models.SessionRunning
	session.LastActivity = time.Now()
	r.saveSession(ctx, session)
	return outcome, err
}

func (r *Runtime) toolSpecs() []provider.ToolSpec {
	specs := r.registry.Specs()
	out := make([]provider.ToolSpec, 0, len(specs))
	for _, s := range specs {
		out = append(out, provider.ToolSpec{
			Name:        s.Name,
			Description: s.Description,
			InputSchema: s.InputSchema,
		})
	}
	return out
}

func allErrored(results []models.ToolResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, result := range results {
		if !result.IsError {
			return false
		}
	}
	return true
}

func providerStatus(err error) string {
	var perr *provider.Error
	if errors.As(err, &perr) {
		return string(perr.Kind)
	}
	return "error"
}
