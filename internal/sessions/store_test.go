package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/adjutant-ai/adjutant/pkg/models"
)

func storeImpls(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestGetOrCreate(t *testing.T) {
	for name, store := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			session, err := store.GetOrCreate(ctx, "conv-1", models.ChannelTelegram)
			if err != nil {
				t.Fatalf("GetOrCreate: %v", err)
			}
			if session.Status != models.SessionIdle {
				t.Errorf("new session status = %q, want idle", session.Status)
			}
			if session.Channel != models.ChannelTelegram {
				t.Errorf("channel = %q, want telegram", session.Channel)
			}

			again, err := store.GetOrCreate(ctx, "conv-1", models.ChannelTelegram)
			if err != nil {
				t.Fatalf("second GetOrCreate: %v", err)
			}
			if again.ID != session.ID {
				t.Errorf("GetOrCreate created a second session: %s vs %s", again.ID, session.ID)
			}

			if _, err := store.GetOrCreate(ctx, "", models.ChannelTelegram); err == nil {
				t.Error("expected error for empty conversation id")
			}
		})
	}
}

func TestGetMissing(t *testing.T) {
	for name, store := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Get(context.Background(), "nope"); err != ErrNotFound {
				t.Errorf("Get missing = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for name, store := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			session, err := store.GetOrCreate(ctx, "conv-1", models.ChannelSlack)
			if err != nil {
				t.Fatalf("GetOrCreate: %v", err)
			}

			session.Status = models.SessionAwaitingApproval
			session.Iterations = 4
			session.LastActivity = time.Now()
			session.Metadata = map[string]any{"pending_call": "call-9"}
			if err := store.Save(ctx, session); err != nil {
				t.Fatalf("Save: %v", err)
			}

			got, err := store.Get(ctx, "conv-1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Status != models.SessionAwaitingApproval {
				t.Errorf("status = %q, want awaiting_approval", got.Status)
			}
			if got.Iterations != 4 {
				t.Errorf("iterations = %d, want 4", got.Iterations)
			}
			if got.Metadata["pending_call"] != "call-9" {
				t.Errorf("metadata not persisted: %v", got.Metadata)
			}

			if err := store.Save(ctx, &models.Session{ConversationID: "unknown"}); err != ErrNotFound {
				t.Errorf("Save unknown = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestListActive(t *testing.T) {
	for name, store := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, status := range []models.SessionStatus{
				models.SessionIdle,
				models.SessionRunning,
				models.SessionAwaitingApproval,
				models.SessionFailed,
			} {
				id := fmt.Sprintf("conv-%d", i)
				session, err := store.GetOrCreate(ctx, id, models.ChannelDiscord)
				if err != nil {
					t.Fatalf("GetOrCreate %s: %v", id, err)
				}
				session.Status = status
				if err := store.Save(ctx, session); err != nil {
					t.Fatalf("Save %s: %v", id, err)
				}
			}

			active, err := store.ListActive(ctx)
			if err != nil {
				t.Fatalf("ListActive: %v", err)
			}
			if len(active) != 3 {
				t.Fatalf("ListActive returned %d sessions, want 3", len(active))
			}
			for _, session := range active {
				if session.Status == models.SessionIdle {
					t.Errorf("idle session %s listed as active", session.ConversationID)
				}
			}
		})
	}
}

func TestHistoryAppendAndLimit(t *testing.T) {
	for name, store := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.GetOrCreate(ctx, "conv-1", models.ChannelEmail); err != nil {
				t.Fatalf("GetOrCreate: %v", err)
			}

			base := time.Now().Add(-time.Minute)
			for i := 0; i < 5; i++ {
				msg := &models.Message{
					Role:      models.RoleUser,
					Content:   fmt.Sprintf("turn %d", i),
					CreatedAt: base.Add(time.Duration(i) * time.Second),
				}
				if err := store.AppendMessage(ctx, "conv-1", msg); err != nil {
					t.Fatalf("AppendMessage %d: %v", i, err)
				}
			}

			history, err := store.GetHistory(ctx, "conv-1", 0)
			if err != nil {
				t.Fatalf("GetHistory: %v", err)
			}
			if len(history) != 5 {
				t.Fatalf("history length = %d, want 5", len(history))
			}
			for i, msg := range history {
				want := fmt.Sprintf("turn %d", i)
				if msg.Content != want {
					t.Errorf("history[%d] = %q, want %q", i, msg.Content, want)
				}
			}

			tail, err := store.GetHistory(ctx, "conv-1", 2)
			if err != nil {
				t.Fatalf("GetHistory limited: %v", err)
			}
			if len(tail) != 2 {
				t.Fatalf("limited history length = %d, want 2", len(tail))
			}
			if tail[0].Content != "turn 3" || tail[1].Content != "turn 4" {
				t.Errorf("limited history returned wrong tail: %q, %q", tail[0].Content, tail[1].Content)
			}

			if err := store.AppendMessage(ctx, "unknown", &models.Message{Role: models.RoleUser}); err != ErrNotFound {
				t.Errorf("AppendMessage unknown = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestHistoryPreservesToolData(t *testing.T) {
	for name, store := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.GetOrCreate(ctx, "conv-1", models.ChannelMatrix); err != nil {
				t.Fatalf("GetOrCreate: %v", err)
			}

			msg := &models.Message{
				Role: models.RoleAssistant,
				ToolCalls: []models.ToolCall{{
					ID:    "call-1",
					Name:  "web_search",
					Input: json.RawMessage(`{"query":"weather"}`),
					Risk:  models.RiskSafe,
				}},
				ToolResults: []models.ToolResult{{
					ToolCallID: "call-1",
					Content:    "sunny",
					Elapsed:    250 * time.Millisecond,
				}},
				CreatedAt: time.Now(),
			}
			if err := store.AppendMessage(ctx, "conv-1", msg); err != nil {
				t.Fatalf("AppendMessage: %v", err)
			}

			history, err := store.GetHistory(ctx, "conv-1", 0)
			if err != nil {
				t.Fatalf("GetHistory: %v", err)
			}
			if len(history) != 1 {
				t.Fatalf("history length = %d, want 1", len(history))
			}
			got := history[0]
			if len(got.ToolCalls) != 1 || got.ToolCalls[0].Name != "web_search" {
				t.Errorf("tool calls not preserved: %+v", got.ToolCalls)
			}
			if len(got.ToolResults) != 1 || got.ToolResults[0].Content != "sunny" {
				t.Errorf("tool results not preserved: %+v", got.ToolResults)
			}
		})
	}
}

func TestHasEvent(t *testing.T) {
	for name, store := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.GetOrCreate(ctx, "conv-1", models.ChannelTelegram); err != nil {
				t.Fatalf("GetOrCreate: %v", err)
			}

			seen, err := store.HasEvent(ctx, "evt-1")
			if err != nil {
				t.Fatalf("HasEvent before append: %v", err)
			}
			if seen {
				t.Error("unrecorded event id reported as seen")
			}

			if err := store.AppendMessage(ctx, "conv-1", &models.Message{
				EventID:   "evt-1",
				Role:      models.RoleUser,
				Content:   "hi",
				CreatedAt: time.Now(),
			}); err != nil {
				t.Fatalf("AppendMessage: %v", err)
			}

			seen, err = store.HasEvent(ctx, "evt-1")
			if err != nil {
				t.Fatalf("HasEvent after append: %v", err)
			}
			if !seen {
				t.Error("recorded event id not reported as seen")
			}

			// Turns without an event id never match the empty key.
			if err := store.AppendMessage(ctx, "conv-1", &models.Message{
				Role:      models.RoleAssistant,
				Content:   "hello",
				CreatedAt: time.Now(),
			}); err != nil {
				t.Fatalf("AppendMessage assistant: %v", err)
			}
			seen, err = store.HasEvent(ctx, "")
			if err != nil {
				t.Fatalf("HasEvent empty id: %v", err)
			}
			if seen {
				t.Error("empty event id reported as seen")
			}
		})
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	session, err := store.GetOrCreate(ctx, "conv-1", models.ChannelTelegram)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	session.Status = models.SessionFailed

	fresh, err := store.Get(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fresh.Status != models.SessionIdle {
		t.Errorf("caller mutation leaked into store: status = %q", fresh.Status)
	}
}
