// Package runtime is the orchestration core: it admits inbound events,
// serializes work per conversation, and drives the agent loop against the
// provider, the approval gate, and the capability dispatcher.
package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adjutant-ai/adjutant/internal/approval"
	"github.com/adjutant-ai/adjutant/internal/capability"
	"github.com/adjutant-ai/adjutant/internal/channels"
	"github.com/adjutant-ai/adjutant/internal/infra"
	"github.com/adjutant-ai/adjutant/internal/memory"
	"github.com/adjutant-ai/adjutant/internal/observability"
	"github.com/adjutant-ai/adjutant/internal/provider"
	"github.com/adjutant-ai/adjutant/internal/sessions"
	"github.com/adjutant-ai/adjutant/pkg/models"
)

// Options are the runtime's tunable limits. Zero values fall back to the
// defaults below.
type Options struct {
	// MaxIterations bounds provider round-trips per inbound event.
	MaxIterations int

	// MaxConsecutiveToolFailures aborts the loop when this many tool
	// iterations in a row produce only errors.
	MaxConsecutiveToolFailures int

	// HistoryLimit caps the history window in the context bundle.
	HistoryLimit int

	// QueueSize bounds each conversation's FIFO.
	QueueSize int

	// DedupeTTL is how long admitted event ids are remembered.
	DedupeTTL time.Duration

	// SystemPrompt seeds every context bundle.
	SystemPrompt string

	// Retry governs provider completion retries.
	Retry *infra.RetryConfig
}

const (
	defaultMaxIterations   = 10
	defaultMaxToolFailures = 3
	defaultHistoryLimit    = 50
	defaultQueueSize       = 32
	defaultDedupeTTL       = 15 * time.Minute
	dedupeMaxSize          = 100_000
)

func (o Options) withDefaults() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = defaultMaxIterations
	}
	if o.MaxConsecutiveToolFailures <= 0 {
		o.MaxConsecutiveToolFailures = defaultMaxToolFailures
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = defaultHistoryLimit
	}
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}
	if o.DedupeTTL <= 0 {
		o.DedupeTTL = defaultDedupeTTL
	}
	if o.Retry == nil {
		o.Retry = infra.DefaultRetryConfig()
	}
	return o
}

// Runtime owns the per-conversation workers and the agent loop.
type Runtime struct {
	opts       Options
	store      sessions.Store
	gateway    provider.Gateway
	registry   *capability.Registry
	dispatcher *capability.Dispatcher
	policy     *approval.Policy
	gate       *approval.Gate
	retriever  *memory.BestEffort
	adapters   *channels.Registry
	dedupe     *infra.DedupeCache
	logger     *observability.Logger
	metrics    *observability.Metrics

	mu      sync.Mutex
	workers map[string]*worker
	wg      sync.WaitGroup
}

// worker serializes one conversation. refs counts enqueued events not yet
// fully processed; the worker exits when it drops to zero.
type worker struct {
	queue chan *models.Event
	refs  int
}

// Deps bundles the runtime's collaborators.
type Deps struct {
	Store      sessions.Store
	Gateway    provider.Gateway
	Registry   *capability.Registry
	Dispatcher *capability.Dispatcher
	Policy     *approval.Policy
	Gate       *approval.Gate
	Retriever  *memory.BestEffort
	Adapters   *channels.Registry
	Logger     *observability.Logger
	Metrics    *observability.Metrics
}

// New builds a Runtime.
func New(deps Deps, opts Options) *Runtime {
	opts = opts.withDefaults()
	return &Runtime{
		opts:       opts,
		store:      deps.Store,
		gateway:    deps.Gateway,
		registry:   deps.Registry,
		dispatcher: deps.Dispatcher,
		policy:     deps.Policy,
		gate:       deps.Gate,
		retriever:  deps.Retriever,
		adapters:   deps.Adapters,
		dedupe:     infra.NewDedupeCache(opts.DedupeTTL, dedupeMaxSize),
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		workers:    map[string]*worker{},
	}
}

// Run drains the inbox until ctx is cancelled or the inbox closes, then
// waits for in-flight conversations to finish.
func (r *Runtime) Run(ctx context.Context, inbox *channels.Inbox) error {
	if err := r.rehydrateApprovals(ctx); err != nil {
		return err
	}
	for {
		event, err := inbox.Take(ctx)
		if err != nil {
			r.wg.Wait()
			if err == channels.ErrInboxClosed {
				return nil
			}
			return err
		}
		r.HandleEvent(ctx, event)
	}
}

// HandleEvent admits one inbound event: deduplicates by event id, then
// enqueues it on the conversation's FIFO. Distinct conversations proceed
// in parallel; events within one conversation run strictly in order.
// Admission never blocks on a single conversation's backlog; a full queue
// refuses the event so the inbox keeps draining for everyone else.
func (r *Runtime) HandleEvent(ctx context.Context, event *models.Event) {
	if event == nil || event.ConversationID == "" {
		return
	}
	ctx = observability.WithEvent(ctx, event.ID, event.ConversationID, string(event.Channel))

	if r.resolveFromChat(ctx, event) {
		return
	}

	if event.ID != "" {
		if r.dedupe.Seen(event.ID) {
			r.logger.Debug(ctx, "duplicate event dropped")
			return
		}
		// The cache is empty after a restart; history is the durable record.
		stored, err := r.store.HasEvent(ctx, event.ID)
		if err != nil {
			r.logger.Warn(ctx, "replay check failed", "error", err)
		} else if stored {
			r.logger.Debug(ctx, "replayed event dropped")
			return
		}
	}
	if r.metrics != nil {
		r.metrics.EventCounter.WithLabelValues(string(event.Channel), string(event.Direction)).Inc()
	}
	r.notifyIfAwaiting(ctx, event)

	r.mu.Lock()
	w, ok := r.workers[event.ConversationID]
	if !ok {
		w = &worker{queue: make(chan *models.Event, r.opts.QueueSize)}
		r.workers[event.ConversationID] = w
		r.wg.Add(1)
		if r.metrics != nil {
			r.metrics.ActiveConversations.Inc()
		}
		go r.drain(event.ConversationID, w)
	}
	w.refs++
	r.mu.Unlock()

	select {
	case w.queue <- event:
	default:
		r.release(event.ConversationID, w)
		r.dedupe.Forget(event.ID)
		r.logger.Warn(ctx, "conversation queue full, event refused")
		r.deliver(ctx, event.Channel, event.ConversationID,
			"This conversation's queue is full. Wait for the current work to finish, then resend.")
	}
}

// drain is the per-conversation worker goroutine.
func (r *Runtime) drain(conversationID string, w *worker) {
	defer r.wg.Done()
	for event := range w.queue {
		ctx := observability.WithEvent(context.Background(),
			event.ID, event.ConversationID, string(event.Channel))
		r.process(ctx, event)
		if r.release(conversationID, w) {
			return
		}
	}
}

// release drops one queue reference. At zero the worker is removed and its
// queue closed, which also unblocks drain when the dropped reference was
// the only one outstanding.
func (r *Runtime) release(conversationID string, w *worker) bool {
	r.mu.Lock()
	w.refs--
	if w.refs > 0 {
		r.mu.Unlock()
		return false
	}
	delete(r.workers, conversationID)
	close(w.queue)
	r.mu.Unlock()
	if r.metrics != nil {
		r.metrics.ActiveConversations.Dec()
	}
	return true
}

// resolveFromChat treats "approve <call-id>" and "deny <call-id>" inbound
// messages as approval decisions. Decisions bypass the conversation FIFO:
// the loop they release is suspended inside it.
func (r *Runtime) resolveFromChat(ctx context.Context, event *models.Event) bool {
	fields := strings.Fields(event.Content)
	if len(fields) != 2 {
		return false
	}
	var outcome models.ApprovalOutcome
	switch strings.ToLower(fields[0]) {
	case "approve":
		outcome = models.ApprovalApproved
	case "deny":
		outcome = models.ApprovalDenied
	default:
		return false
	}
	callID := fields[1]
	decidedBy := event.Sender
	if decidedBy == "" {
		decidedBy = string(event.Channel)
	}
	if err := r.gate.Resolve(ctx, callID, outcome, decidedBy); err != nil {
		r.logger.Warn(ctx, "chat decision rejected", "tool_call_id", callID, "error", err)
		r.deliver(ctx, event.Channel, event.ConversationID,
			"No pending approval for call "+callID+".")
		return true
	}
	r.deliver(ctx, event.Channel, event.ConversationID,
		fmt.Sprintf("Recorded %s for call %s.", outcome, callID))
	return true
}

// notifyIfAwaiting tells the user when their new message queues behind a
// pending approval instead of being acted on immediately.
func (r *Runtime) notifyIfAwaiting(ctx context.Context, event *models.Event) {
	session, err := r.store.Get(ctx, event.ConversationID)
	if err != nil || session.Status != models.SessionAwaitingApproval {
		return
	}
	r.deliver(ctx, event.Channel, event.ConversationID,
		"A previous request is still awaiting approval. Your message is queued and will be handled next.")
}

// ResolveApproval forwards a human decision to the gate. It is the entry
// point for whatever surface collects decisions (chat command, CLI, API).
func (r *Runtime) ResolveApproval(ctx context.Context, toolCallID string, outcome models.ApprovalOutcome, decidedBy string) error {
	return r.gate.Resolve(ctx, toolCallID, outcome, decidedBy)
}

// rehydrateApprovals reloads persisted pending approvals after a restart.
// The suspended loops are gone, so a late resolution just informs the user
// and releases the session.
func (r *Runtime) rehydrateApprovals(ctx context.Context) error {
	return r.gate.Rehydrate(ctx, func(req *models.ApprovalRequest, outcome models.ApprovalOutcome) {
		session, err := r.store.Get(ctx, req.ConversationID)
		if err != nil {
			return
		}
		if session.Status == models.SessionAwaitingApproval {
			session.Status = models.SessionIdle
			if err := r.store.Save(ctx, session); err != nil {
				r.logger.Error(ctx, "releasing session after rehydrated approval failed",
					"conversation_id", req.ConversationID, "error", err)
			}
		}
		r.deliver(ctx, session.Channel, req.ConversationID,
			"The pending approval for "+req.ToolName+" was resolved as "+string(outcome)+
				" after a restart. Send your request again to continue.")
	})
}

// deliver sends an outbound text event. Delivery failures are logged and
// otherwise ignored; the loop's own state is already persisted.
func (r *Runtime) deliver(ctx context.Context, channel models.ChannelType, conversationID, text string) {
	adapter, ok := r.adapters.Get(channel)
	if !ok {
		r.logger.Warn(ctx, "no adapter for outbound event", "channel", channel)
		return
	}
	event := &models.Event{
		Channel:        channel,
		ConversationID: conversationID,
		Direction:      models.DirectionOutbound,
		Content:        text,
		CreatedAt:      time.Now(),
	}
	if r.metrics != nil {
		r.metrics.EventCounter.WithLabelValues(string(channel), string(models.DirectionOutbound)).Inc()
	}
	if err := adapter.Send(ctx, event); err != nil {
		r.logger.Error(ctx, "outbound delivery failed", "channel", channel, "error", err)
	}
}
