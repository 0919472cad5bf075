package approval

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/adjutant-ai/adjutant/pkg/models"
)

// ErrNotFound is returned when no approval request matches.
var ErrNotFound = errors.New("approval request not found")

// Store persists approval requests so pending decisions survive restarts.
type Store interface {
	Save(ctx context.Context, req *models.ApprovalRequest) error
	Get(ctx context.Context, id string) (*models.ApprovalRequest, error)
	GetByToolCall(ctx context.Context, toolCallID string) (*models.ApprovalRequest, error)
	ListPending(ctx context.Context) ([]*models.ApprovalRequest, error)
}

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[string]*models.ApprovalRequest
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: map[string]*models.ApprovalRequest{}}
}

func (m *MemoryStore) Save(ctx context.Context, req *models.ApprovalRequest) error {
	if req == nil || req.ID == "" {
		return errors.New("approval request id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *req
	m.requests[req.ID] = &clone
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *req
	return &clone, nil
}

func (m *MemoryStore) GetByToolCall(ctx context.Context, toolCallID string) (*models.ApprovalRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, req := range m.requests {
		if req.ToolCallID == toolCallID {
			clone := *req
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListPending(ctx context.Context) ([]*models.ApprovalRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.ApprovalRequest
	for _, req := range m.requests {
		if req.Outcome == models.ApprovalPending {
			clone := *req
			out = append(out, &clone)
		}
	}
	return out, nil
}

// SQLiteStore persists approval requests in SQLite. It is designed to
// share the database handle with sessions.SQLiteStore.
type SQLiteStore struct {
	db *sql.DB
}

const approvalSchema = `
CREATE TABLE IF NOT EXISTS approvals (
	id TEXT PRIMARY KEY,
	tool_call_id TEXT NOT NULL,
	tool_name TEXT NOT NULL,
	input TEXT,
	conversation_id TEXT NOT NULL,
	reason TEXT,
	outcome TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	expires_at TIMESTAMP NOT NULL,
	decided_at TIMESTAMP,
	decided_by TEXT
);

CREATE INDEX IF NOT EXISTS idx_approvals_tool_call ON approvals(tool_call_id);
CREATE INDEX IF NOT EXISTS idx_approvals_outcome ON approvals(outcome);
`

// NewSQLiteStore applies the approvals schema on db and returns the store.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(approvalSchema); err != nil {
		return nil, fmt.Errorf("apply approval schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, req *models.ApprovalRequest) error {
	if req == nil || req.ID == "" {
		return errors.New("approval request id is required")
	}
	var input any
	if len(req.Input) > 0 {
		input = string(req.Input)
	}
	var decidedAt any
	if !req.DecidedAt.IsZero() {
		decidedAt = req.DecidedAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approvals (id, tool_call_id, tool_name, input, conversation_id, reason, outcome, created_at, expires_at, decided_at, decided_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			outcome = excluded.outcome,
			decided_at = excluded.decided_at,
			decided_by = excluded.decided_by
	`, req.ID, req.ToolCallID, req.ToolName, input, req.ConversationID, req.Reason,
		string(req.Outcome), req.CreatedAt, req.ExpiresAt, decidedAt, req.DecidedBy)
	if err != nil {
		return fmt.Errorf("save approval request: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	return s.queryOne(ctx, "WHERE id = ?", id)
}

func (s *SQLiteStore) GetByToolCall(ctx context.Context, toolCallID string) (*models.ApprovalRequest, error) {
	return s.queryOne(ctx, "WHERE tool_call_id = ?", toolCallID)
}

func (s *SQLiteStore) queryOne(ctx context.Context, where string, arg any) (*models.ApprovalRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tool_call_id, tool_name, input, conversation_id, reason, outcome, created_at, expires_at, decided_at, decided_by
		FROM approvals `+where, arg)
	req, err := scanApproval(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return req, err
}

func (s *SQLiteStore) ListPending(ctx context.Context) ([]*models.ApprovalRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tool_call_id, tool_name, input, conversation_id, reason, outcome, created_at, expires_at, decided_at, decided_by
		FROM approvals WHERE outcome = ? ORDER BY created_at
	`, string(models.ApprovalPending))
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	defer rows.Close()

	var out []*models.ApprovalRequest
	for rows.Next() {
		req, err := scanApproval(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func scanApproval(scan func(...any) error) (*models.ApprovalRequest, error) {
	var req models.ApprovalRequest
	var outcome string
	var input, reason, decidedBy sql.NullString
	var decidedAt sql.NullTime
	err := scan(&req.ID, &req.ToolCallID, &req.ToolName, &input, &req.ConversationID,
		&reason, &outcome, &req.CreatedAt, &req.ExpiresAt, &decidedAt, &decidedBy)
	if err != nil {
		return nil, err
	}
	req.Outcome = models.ApprovalOutcome(outcome)
	req.Reason = reason.String
	req.DecidedBy = decidedBy.String
	if input.Valid && input.String != "" {
		req.Input = json.RawMessage(input.String)
	}
	if decidedAt.Valid {
		req.DecidedAt = decidedAt.Time
	}
	return &req, nil
}
