package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/adjutant-ai/adjutant/pkg/models"
)

// SQLiteStore persists sessions and history in a local SQLite database.
// It is the durable backend for single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

const sessionSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL UNIQUE,
	channel TEXT NOT NULL,
	status TEXT NOT NULL,
	iterations INTEGER NOT NULL DEFAULT 0,
	last_activity TIMESTAMP NOT NULL,
	metadata TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	conversation_id TEXT NOT NULL,
	event_id TEXT,
	role TEXT NOT NULL,
	content TEXT,
	tool_calls TEXT,
	tool_results TEXT,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation
	ON messages(conversation_id, created_at);

CREATE INDEX IF NOT EXISTS idx_messages_event
	ON messages(event_id);
`

// NewSQLiteStore opens (or creates) the database at path and applies the
// schema. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// The driver serializes writes; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sessionSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply session schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the handle so sibling stores (approvals) can share one file.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) GetOrCreate(ctx context.Context, conversationID string, channel models.ChannelType) (*models.Session, error) {
	if conversationID == "" {
		return nil, errors.New("conversation id is required")
	}
	session, err := s.Get(ctx, conversationID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	session = &models.Session{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Channel:        channel,
		Status:         models.SessionIdle,
		LastActivity:   now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, conversation_id, channel, status, iterations, last_activity, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?)
		ON CONFLICT (conversation_id) DO NOTHING
	`, session.ID, session.ConversationID, string(session.Channel), string(session.Status),
		session.Iterations, session.LastActivity, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	// Re-read in case another writer won the conflict.
	return s.Get(ctx, conversationID)
}

func (s *SQLiteStore) Get(ctx context.Context, conversationID string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, channel, status, iterations, last_activity, metadata, created_at, updated_at
		FROM sessions WHERE conversation_id = ?
	`, conversationID)

	var session models.Session
	var channel, status string
	var metadata sql.NullString
	err := row.Scan(&session.ID, &session.ConversationID, &channel, &status,
		&session.Iterations, &session.LastActivity, &metadata, &session.CreatedAt, &session.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	session.Channel = models.ChannelType(channel)
	session.Status = models.SessionStatus(status)
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &session.Metadata); err != nil {
			return nil, fmt.Errorf("decode session metadata: %w", err)
		}
	}
	return &session, nil
}

func (s *SQLiteStore) Save(ctx context.Context, session *models.Session) error {
	if session == nil {
		return errors.New("session is required")
	}
	var metadata any
	if session.Metadata != nil {
		encoded, err := json.Marshal(session.Metadata)
		if err != nil {
			return fmt.Errorf("encode session metadata: %w", err)
		}
		metadata = string(encoded)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = ?, iterations = ?, last_activity = ?, metadata = ?, updated_at = ?
		WHERE conversation_id = ?
	`, string(session.Status), session.Iterations, session.LastActivity, metadata, time.Now(), session.ConversationID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListActive(ctx context.Context) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, channel, status, iterations, last_activity, metadata, created_at, updated_at
		FROM sessions WHERE status != ?
		ORDER BY last_activity DESC
	`, string(models.SessionIdle))
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		var session models.Session
		var channel, status string
		var metadata sql.NullString
		if err := rows.Scan(&session.ID, &session.ConversationID, &channel, &status,
			&session.Iterations, &session.LastActivity, &metadata, &session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		session.Channel = models.ChannelType(channel)
		session.Status = models.SessionStatus(status)
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &session.Metadata); err != nil {
				return nil, fmt.Errorf("decode session metadata: %w", err)
			}
		}
		out = append(out, &session)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID string, msg *models.Message) error {
	if msg == nil {
		return errors.New("message is required")
	}
	session, err := s.Get(ctx, conversationID)
	if err != nil {
		return err
	}

	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var toolCalls, toolResults any
	if len(msg.ToolCalls) > 0 {
		encoded, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("encode tool calls: %w", err)
		}
		toolCalls = string(encoded)
	}
	if len(msg.ToolResults) > 0 {
		encoded, err := json.Marshal(msg.ToolResults)
		if err != nil {
			return fmt.Errorf("encode tool results: %w", err)
		}
		toolResults = string(encoded)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, conversation_id, event_id, role, content, tool_calls, tool_results, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, session.ID, conversationID, msg.EventID, string(msg.Role), msg.Content, toolCalls, toolResults, createdAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) HasEvent(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM messages WHERE event_id = ? LIMIT 1
	`, eventID)
	var one int
	err := row.Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check event id: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) GetHistory(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	query := `
		SELECT id, session_id, event_id, role, content, tool_calls, tool_results, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC
	`
	args := []any{conversationID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var reversed []*models.Message
	for rows.Next() {
		var msg models.Message
		var role string
		var eventID, content, toolCalls, toolResults sql.NullString
		if err := rows.Scan(&msg.ID, &msg.SessionID, &eventID, &role, &content, &toolCalls, &toolResults, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = models.Role(role)
		msg.EventID = eventID.String
		msg.Content = content.String
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls: %w", err)
			}
		}
		if toolResults.Valid && toolResults.String != "" {
			if err := json.Unmarshal([]byte(toolResults.String), &msg.ToolResults); err != nil {
				return nil, fmt.Errorf("decode tool results: %w", err)
			}
		}
		reversed = append(reversed, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query returns newest first; history is chronological.
	out := make([]*models.Message, len(reversed))
	for i, msg := range reversed {
		out[len(reversed)-1-i] = msg
	}
	return out, nil
}
