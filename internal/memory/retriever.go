// Package memory supplies retrieved context snippets for the agent loop.
// Retrieval is always best-effort: a broken retriever degrades the answer,
// it never blocks it.
package memory

import (
	"context"
	"time"

	"github.com/adjutant-ai/adjutant/internal/observability"
	"github.com/adjutant-ai/adjutant/pkg/models"
)

// Retriever looks up context snippets relevant to a query. Implementations
// may back onto vector stores, keyword indexes, or flat files.
type Retriever interface {
	Retrieve(ctx context.Context, query string, conversationID string) ([]models.ContextSnippet, error)
}

// defaultTimeout bounds a single retrieval so a slow backend cannot stall
// the loop iteration it feeds.
const defaultTimeout = 2 * time.Second

// BestEffort wraps a Retriever so failures and timeouts yield an empty
// snippet list instead of an error.
type BestEffort struct {
	inner   Retriever
	logger  *observability.Logger
	timeout time.Duration
}

// NewBestEffort wraps inner. A nil inner yields a retriever that always
// returns no snippets.
func NewBestEffort(inner Retriever, logger *observability.Logger) *BestEffort {
	return &BestEffort{inner: inner, logger: logger, timeout: defaultTimeout}
}

// Retrieve never returns an error. On failure it logs a warning and
// returns nil snippets.
func (b *BestEffort) Retrieve(ctx context.Context, query string, conversationID string) []models.ContextSnippet {
	if b == nil || b.inner == nil || query == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	snippets, err := b.inner.Retrieve(ctx, query, conversationID)
	if err != nil {
		b.logger.Warn(ctx, "memory retrieval failed, continuing without context",
			"conversation_id", conversationID, "error", err)
		return nil
	}
	return snippets
}
