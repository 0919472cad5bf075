// Package sessions persists per-conversation state and turn history.
//
// The runtime is the single writer for any given conversation; stores only
// guarantee that concurrent readers observe consistent snapshots, never a
// partially appended history.
package sessions

import (
	"context"
	"errors"

	"github.com/adjutant-ai/adjutant/pkg/models"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// Store is the interface for session persistence.
type Store interface {
	// GetOrCreate returns the session for a conversation id, creating an
	// idle session if none exists.
	GetOrCreate(ctx context.Context, conversationID string, channel models.ChannelType) (*models.Session, error)

	// Get returns a session by conversation id.
	Get(ctx context.Context, conversationID string) (*models.Session, error)

	// Save persists the session's mutable fields (status, iterations,
	// last activity, metadata).
	Save(ctx context.Context, session *models.Session) error

	// ListActive returns sessions whose status is not idle.
	ListActive(ctx context.Context) ([]*models.Session, error)

	// AppendMessage appends one turn to a session's history.
	AppendMessage(ctx context.Context, conversationID string, msg *models.Message) error

	// GetHistory returns the most recent turns in chronological order,
	// capped at limit (0 = all).
	GetHistory(ctx context.Context, conversationID string, limit int) ([]*models.Message, error)

	// HasEvent reports whether an inbound event id is already recorded in
	// history. It backs replay detection across restarts, where the
	// in-memory dedupe cache starts empty.
	HasEvent(ctx context.Context, eventID string) (bool, error)
}
