package approval

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adjutant-ai/adjutant/internal/observability"
	"github.com/adjutant-ai/adjutant/pkg/models"
)

// Surface is where approval prompts are delivered: usually the channel
// adapter of the conversation that triggered the call.
type Surface interface {
	NotifyApproval(ctx context.Context, req *models.ApprovalRequest) error
}

// SurfaceFunc adapts a function to the Surface interface.
type SurfaceFunc func(ctx context.Context, req *models.ApprovalRequest) error

func (f SurfaceFunc) NotifyApproval(ctx context.Context, req *models.ApprovalRequest) error {
	return f(ctx, req)
}

// ErrUnknownCall is returned by Resolve for a tool call id with no
// pending request.
var ErrUnknownCall = errors.New("no pending approval for tool call")

// DefaultTTL is how long a request stays decidable before it expires.
const DefaultTTL = 10 * time.Minute

// Gate suspends sensitive tool calls until a human decides. Every tool
// call id gets a fresh request: an approval never carries over to a later
// call, even with identical arguments.
type Gate struct {
	store   Store
	surface Surface
	logger  *observability.Logger
	metrics *observability.Metrics
	ttl     time.Duration
	clock   func() time.Time

	mu      sync.Mutex
	waiters map[string]chan decision // keyed by tool call id
}

// decision carries a resolution from Resolve to the suspended waiter, so
// outcome and approver are recorded in one write.
type decision struct {
	outcome   models.ApprovalOutcome
	decidedBy string
}

// NewGate builds a Gate. surface may be nil (prompts are then only
// observable through the store, useful in tests).
func NewGate(store Store, surface Surface, logger *observability.Logger, metrics *observability.Metrics, ttl time.Duration) *Gate {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Gate{
		store:   store,
		surface: surface,
		logger:  logger,
		metrics: metrics,
		ttl:     ttl,
		clock:   time.Now,
		waiters: map[string]chan decision{},
	}
}

// Request creates and persists a fresh ApprovalRequest for the call,
// notifies the surface, and blocks until the request is resolved or its
// TTL elapses. Expiry is recorded as its own outcome; callers treat it
// as a denial.
func (g *Gate) Request(ctx context.Context, conversationID string, call *models.ToolCall, reason string) (models.ApprovalOutcome, error) {
	if call == nil || call.ID == "" {
		return "", errors.New("tool call id is required")
	}
	now := g.clock()
	req := &models.ApprovalRequest{
		ID:             uuid.NewString(),
		ToolCallID:     call.ID,
		ToolName:       call.Name,
		Input:          call.Input,
		ConversationID: conversationID,
		Reason:         reason,
		Outcome:        models.ApprovalPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(g.ttl),
	}
	// Register the waiter before persisting so a decision can land the
	// moment the request is visible.
	ch := make(chan decision, 1)
	g.mu.Lock()
	g.waiters[call.ID] = ch
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.waiters, call.ID)
		g.mu.Unlock()
	}()

	if err := g.store.Save(ctx, req); err != nil {
		return "", err
	}

	if g.surface != nil {
		if err := g.surface.NotifyApproval(ctx, req); err != nil {
			g.logger.Warn(ctx, "approval prompt delivery failed",
				"approval_id", req.ID, "tool", call.Name, "error", err)
		}
	}
	g.logger.Info(ctx, "approval requested",
		"approval_id", req.ID, "tool", call.Name, "conversation_id", conversationID,
		"expires_at", req.ExpiresAt)

	return g.await(ctx, req, ch)
}

func (g *Gate) await(ctx context.Context, req *models.ApprovalRequest, ch chan decision) (models.ApprovalOutcome, error) {
	timer := time.NewTimer(req.ExpiresAt.Sub(g.clock()))
	defer timer.Stop()

	select {
	case d := <-ch:
		g.record(ctx, req, d.outcome, d.decidedBy)
		return d.outcome, nil
	case <-timer.C:
		g.record(ctx, req, models.ApprovalExpired, "")
		return models.ApprovalExpired, nil
	case <-ctx.Done():
		// Shutdown mid-wait: the request stays pending in the store so a
		// restart can rehydrate it.
		return "", ctx.Err()
	}
}

// Resolve delivers a human decision for a pending tool call. decidedBy
// identifies the approver for the audit record.
func (g *Gate) Resolve(ctx context.Context, toolCallID string, outcome models.ApprovalOutcome, decidedBy string) error {
	if !outcome.Terminal() {
		return errors.New("resolution outcome must be terminal")
	}
	g.mu.Lock()
	ch, ok := g.waiters[toolCallID]
	g.mu.Unlock()
	if !ok {
		return ErrUnknownCall
	}
	select {
	case ch <- decision{outcome: outcome, decidedBy: decidedBy}:
	default:
		// A decision already landed; first one wins.
	}
	return nil
}

// Rehydrate reloads persisted pending requests after a restart. Requests
// past their TTL are expired immediately; live ones get a waiter again so
// Resolve works, with each resolution reported through resolved.
func (g *Gate) Rehydrate(ctx context.Context, resolved func(req *models.ApprovalRequest, outcome models.ApprovalOutcome)) error {
	pending, err := g.store.ListPending(ctx)
	if err != nil {
		return err
	}
	for _, req := range pending {
		if !req.ExpiresAt.After(g.clock()) {
			g.record(ctx, req, models.ApprovalExpired, "")
			if resolved != nil {
				resolved(req, models.ApprovalExpired)
			}
			continue
		}

		ch := make(chan decision, 1)
		g.mu.Lock()
		g.waiters[req.ToolCallID] = ch
		g.mu.Unlock()

		go func(req *models.ApprovalRequest, ch chan decision) {
			defer func() {
				g.mu.Lock()
				delete(g.waiters, req.ToolCallID)
				g.mu.Unlock()
			}()
			outcome, err := g.await(ctx, req, ch)
			if err != nil {
				return
			}
			if resolved != nil {
				resolved(req, outcome)
			}
		}(req, ch)

		g.logger.Info(ctx, "approval request rehydrated",
			"approval_id", req.ID, "tool", req.ToolName, "expires_at", req.ExpiresAt)
	}
	return nil
}

func (g *Gate) record(ctx context.Context, req *models.ApprovalRequest, outcome models.ApprovalOutcome, decidedBy string) {
	req.Outcome = outcome
	req.DecidedAt = g.clock()
	if decidedBy != "" {
		req.DecidedBy = decidedBy
	}
	if err := g.store.Save(ctx, req); err != nil {
		g.logger.Error(ctx, "persisting approval outcome failed",
			"approval_id", req.ID, "outcome", outcome, "error", err)
	}
	if g.metrics != nil {
		g.metrics.ApprovalCounter.WithLabelValues(string(outcome)).Inc()
	}
	g.logger.Info(ctx, "approval resolved",
		"approval_id", req.ID, "tool", req.ToolName, "outcome", outcome)
}
