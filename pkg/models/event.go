package models

import (
	"encoding/json"
	"time"
)

// ChannelType identifies the external communication surface an event
// entered or leaves through.
type ChannelType string

const (
	ChannelTelegram ChannelType = "telegram"
	ChannelDiscord  ChannelType = "discord"
	ChannelSlack    ChannelType = "slack"
	ChannelEmail    ChannelType = "email"
	ChannelMatrix   ChannelType = "matrix"

	// ChannelConsole is the local terminal surface, used for development
	// and for operating the daemon over SSH.
	ChannelConsole ChannelType = "console"
)

// Direction indicates whether an event flows into or out of the runtime.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Role indicates the author type of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Event is the normalized unit of communication shared by all channel
// adapters. Inbound events are produced by adapters; outbound events are
// consumed by them. Events are immutable once created.
type Event struct {
	// ID is the correlation id. Adapters must produce stable ids so the
	// runtime can deduplicate redelivered events.
	ID             string       `json:"id"`
	Channel        ChannelType  `json:"channel"`
	ConversationID string       `json:"conversation_id"`
	Sender         string       `json:"sender,omitempty"`
	Direction      Direction    `json:"direction"`
	Content        string       `json:"content"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Attachment represents a file or media attachment on an event.
type Attachment struct {
	ID       string `json:"id"`
	Type     string `json:"type"` // image, audio, video, document
	URL      string `json:"url,omitempty"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// SessionStatus is the lifecycle state of a conversation session.
type SessionStatus string

const (
	// SessionIdle means no loop is active for the session.
	SessionIdle SessionStatus = "idle"

	// SessionRunning means a loop is executing for the session.
	SessionRunning SessionStatus = "running"

	// SessionAwaitingApproval means the loop is suspended on a pending
	// human approval decision.
	SessionAwaitingApproval SessionStatus = "awaiting_approval"

	// SessionFailed means the last loop terminated abnormally. The session
	// is released and resets to running on the next inbound event.
	SessionFailed SessionStatus = "failed"
)

// Session is the durable state of one conversation. There is exactly one
// session per conversation id, and at most one active loop per session.
type Session struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Channel        ChannelType    `json:"channel"`
	Status         SessionStatus  `json:"status"`
	Iterations     int            `json:"iterations"`
	LastActivity   time.Time      `json:"last_activity"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Message is one turn in a session's history.
type Message struct {
	ID          string       `json:"id"`
	SessionID   string       `json:"session_id"`
	EventID     string       `json:"event_id,omitempty"`
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Risk classifies how dangerous a capability invocation is.
type Risk string

const (
	// RiskSafe capabilities dispatch without human approval.
	RiskSafe Risk = "safe"

	// RiskSensitive capabilities require an approved ApprovalRequest
	// before dispatch.
	RiskSensitive Risk = "sensitive"
)

// ToolCall is a provider-issued request to invoke a named capability.
// It exists from the moment the provider response is parsed until a
// ToolResult for it is recorded.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
	Risk  Risk            `json:"risk,omitempty"`
}

// ToolResult is the outcome of a dispatched capability.
type ToolResult struct {
	ToolCallID string        `json:"tool_call_id"`
	Content    string        `json:"content"`
	IsError    bool          `json:"is_error,omitempty"`
	Elapsed    time.Duration `json:"elapsed,omitempty"`
}

// ApprovalOutcome is the resolution state of an ApprovalRequest.
type ApprovalOutcome string

const (
	ApprovalPending  ApprovalOutcome = "pending"
	ApprovalApproved ApprovalOutcome = "approved"
	ApprovalDenied   ApprovalOutcome = "denied"

	// ApprovalExpired is recorded when the request TTL elapses. Dispatch
	// treats it as a denial, but it is kept distinct for audit.
	ApprovalExpired ApprovalOutcome = "expired"
)

// Terminal reports whether the outcome is final.
func (o ApprovalOutcome) Terminal() bool {
	return o == ApprovalApproved || o == ApprovalDenied || o == ApprovalExpired
}

// ApprovalRequest is a pending human decision tied 1:1 to a sensitive
// ToolCall. Approvals are never reused across distinct tool call ids, even
// for identical arguments.
type ApprovalRequest struct {
	ID             string          `json:"id"`
	ToolCallID     string          `json:"tool_call_id"`
	ToolName       string          `json:"tool_name"`
	Input          json.RawMessage `json:"input,omitempty"`
	ConversationID string          `json:"conversation_id"`
	Reason         string          `json:"reason,omitempty"`
	Outcome        ApprovalOutcome `json:"outcome"`
	CreatedAt      time.Time       `json:"created_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
	DecidedAt      time.Time       `json:"decided_at,omitempty"`
	DecidedBy      string          `json:"decided_by,omitempty"`
}

// ContextSnippet is one retrieved memory item or RAG chunk.
type ContextSnippet struct {
	Source  string  `json:"source"`
	Content string  `json:"content"`
	Score   float32 `json:"score,omitempty"`
}

// ContextBundle is the ephemeral per-iteration input to the provider:
// a history window plus retrieved snippets. It is rebuilt every iteration
// and never persisted.
type ContextBundle struct {
	System   string
	History  []Message
	Snippets []ContextSnippet
}
