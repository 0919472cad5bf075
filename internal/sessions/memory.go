package sessions

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adjutant-ai/adjutant/pkg/models"
)

// maxMessagesPerSession bounds stored history per conversation. Older turns
// are trimmed once the limit is exceeded.
const maxMessagesPerSession = 1000

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session // keyed by conversation id
	messages map[string][]*models.Message
	events   map[string]struct{}
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: map[string]*models.Session{},
		messages: map[string][]*models.Message{},
		events:   map[string]struct{}{},
	}
}

func (m *MemoryStore) GetOrCreate(ctx context.Context, conversationID string, channel models.ChannelType) (*models.Session, error) {
	if conversationID == "" {
		return nil, errors.New("conversation id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.sessions[conversationID]; ok {
		return cloneSession(session), nil
	}

	now := time.Now()
	session := &models.Session{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Channel:        channel,
		Status:         models.SessionIdle,
		LastActivity:   now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.sessions[conversationID] = session
	return cloneSession(session), nil
}

func (m *MemoryStore) Get(ctx context.Context, conversationID string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(session), nil
}

func (m *MemoryStore) Save(ctx context.Context, session *models.Session) error {
	if session == nil {
		return errors.New("session is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.sessions[session.ConversationID]
	if !ok {
		return ErrNotFound
	}
	clone := cloneSession(session)
	clone.ID = existing.ID
	clone.CreatedAt = existing.CreatedAt
	clone.UpdatedAt = time.Now()
	m.sessions[session.ConversationID] = clone
	return nil
}

func (m *MemoryStore) ListActive(ctx context.Context) ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Session
	for _, session := range m.sessions {
		if session.Status == models.SessionIdle {
			continue
		}
		out = append(out, cloneSession(session))
	}
	return out, nil
}

func (m *MemoryStore) AppendMessage(ctx context.Context, conversationID string, msg *models.Message) error {
	if msg == nil {
		return errors.New("message is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[conversationID]
	if !ok {
		return ErrNotFound
	}
	clone := cloneMessage(msg)
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.SessionID == "" {
		clone.SessionID = session.ID
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	m.messages[conversationID] = append(m.messages[conversationID], clone)
	if clone.EventID != "" {
		m.events[clone.EventID] = struct{}{}
	}

	if len(m.messages[conversationID]) > maxMessagesPerSession {
		excess := len(m.messages[conversationID]) - maxMessagesPerSession
		m.messages[conversationID] = m.messages[conversationID][excess:]
	}
	return nil
}

func (m *MemoryStore) GetHistory(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	messages := m.messages[conversationID]
	if len(messages) == 0 {
		return []*models.Message{}, nil
	}
	start := 0
	if limit > 0 && len(messages) > limit {
		start = len(messages) - limit
	}
	out := make([]*models.Message, 0, len(messages)-start)
	for _, msg := range messages[start:] {
		out = append(out, cloneMessage(msg))
	}
	return out, nil
}

func (m *MemoryStore) HasEvent(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.events[eventID]
	return ok, nil
}

func cloneSession(session *models.Session) *models.Session {
	if session == nil {
		return nil
	}
	clone := *session
	if session.Metadata != nil {
		clone.Metadata = make(map[string]any, len(session.Metadata))
		for k, v := range session.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

func cloneMessage(msg *models.Message) *models.Message {
	if msg == nil {
		return nil
	}
	clone := *msg
	if len(msg.Attachments) > 0 {
		clone.Attachments = append([]models.Attachment{}, msg.Attachments...)
	}
	if len(msg.ToolCalls) > 0 {
		clone.ToolCalls = append([]models.ToolCall{}, msg.ToolCalls...)
	}
	if len(msg.ToolResults) > 0 {
		clone.ToolResults = append([]models.ToolResult{}, msg.ToolResults...)
	}
	return &clone
}
