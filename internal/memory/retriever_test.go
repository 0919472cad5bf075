package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adjutant-ai/adjutant/internal/observability"
	"github.com/adjutant-ai/adjutant/pkg/models"
)

type failingRetriever struct{ err error }

func (f *failingRetriever) Retrieve(ctx context.Context, query, conversationID string) ([]models.ContextSnippet, error) {
	return nil, f.err
}

type slowRetriever struct{ delay time.Duration }

func (s *slowRetriever) Retrieve(ctx context.Context, query, conversationID string) ([]models.ContextSnippet, error) {
	select {
	case <-time.After(s.delay):
		return []models.ContextSnippet{{Source: "slow", Content: "late"}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestBestEffortSwallowsErrors(t *testing.T) {
	be := NewBestEffort(&failingRetriever{err: errors.New("index offline")}, observability.Nop())
	snippets := be.Retrieve(context.Background(), "what is the plan", "conv-1")
	if snippets != nil {
		t.Errorf("expected nil snippets on failure, got %v", snippets)
	}
}

func TestBestEffortTimesOut(t *testing.T) {
	be := NewBestEffort(&slowRetriever{delay: time.Minute}, observability.Nop())
	be.timeout = 10 * time.Millisecond

	start := time.Now()
	snippets := be.Retrieve(context.Background(), "anything", "conv-1")
	if snippets != nil {
		t.Errorf("expected nil snippets on timeout, got %v", snippets)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("retrieval was not bounded: took %v", elapsed)
	}
}

func TestBestEffortNilInner(t *testing.T) {
	be := NewBestEffort(nil, observability.Nop())
	if got := be.Retrieve(context.Background(), "query", "conv-1"); got != nil {
		t.Errorf("nil inner retriever should return nil, got %v", got)
	}
}

func TestNoteStoreRetrieve(t *testing.T) {
	store := NewNoteStore(2)
	store.Add("prefs", "The user prefers short answers and metric units")
	store.Add("travel", "Flight to Lisbon booked for next month")
	store.Add("food", "Allergic to peanuts")

	snippets, err := store.Retrieve(context.Background(), "when is the flight to lisbon", "conv-1")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(snippets) != 1 {
		t.Fatalf("expected 1 snippet, got %d", len(snippets))
	}
	if snippets[0].Source != "travel" {
		t.Errorf("top snippet source = %q, want travel", snippets[0].Source)
	}
	if snippets[0].Score <= 0 {
		t.Errorf("expected positive score, got %f", snippets[0].Score)
	}
}

func TestNoteStoreLimit(t *testing.T) {
	store := NewNoteStore(2)
	for i := 0; i < 5; i++ {
		store.Add("note", "project deadline moved to friday")
	}
	snippets, err := store.Retrieve(context.Background(), "project deadline", "conv-1")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(snippets) != 2 {
		t.Errorf("expected limit of 2 snippets, got %d", len(snippets))
	}
}

func TestNoteStoreEmptyQuery(t *testing.T) {
	store := NewNoteStore(3)
	store.Add("n", "something")
	snippets, err := store.Retrieve(context.Background(), "a an", "conv-1")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(snippets) != 0 {
		t.Errorf("short-token query should match nothing, got %v", snippets)
	}
}
