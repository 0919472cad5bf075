package capability

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/adjutant-ai/adjutant/internal/observability"
	"github.com/adjutant-ai/adjutant/pkg/models"
)

func echoHandler() Handler {
	return &Func{
		FuncName:        "echo",
		FuncKind:        KindTool,
		FuncDescription: "Echoes the text argument",
		FuncSchema: map[string]any{
			"type":                 "object",
			"properties":           map[string]any{"text": map[string]any{"type": "string"}},
			"required":             []any{"text"},
			"additionalProperties": false,
		},
		Fn: func(ctx context.Context, input []byte) (string, error) {
			var args struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return "", err
			}
			return args.Text, nil
		},
	}
}

func testDispatcher(t *testing.T, timeout time.Duration, handlers ...Handler) *Dispatcher {
	t.Helper()
	registry := NewRegistry()
	for _, h := range handlers {
		if err := registry.Register(h); err != nil {
			t.Fatalf("Register %s: %v", h.Name(), err)
		}
	}
	return NewDispatcher(registry, observability.Nop(), nil, timeout)
}

func TestDispatchSuccess(t *testing.T) {
	d := testDispatcher(t, time.Second, echoHandler())

	result, err := d.Dispatch(context.Background(), &models.ToolCall{
		ID: "call-1", Name: "echo", Input: json.RawMessage(`{"text":"hello"}`),
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Content)
	}
	if result.Content != "hello" {
		t.Errorf("content = %q, want hello", result.Content)
	}
	if result.ToolCallID != "call-1" {
		t.Errorf("tool call id = %q, want call-1", result.ToolCallID)
	}
}

func TestDispatchUnknownCapability(t *testing.T) {
	d := testDispatcher(t, time.Second)

	result, err := d.Dispatch(context.Background(), &models.ToolCall{ID: "call-1", Name: "ghost"})
	if err != nil {
		t.Fatalf("unknown capability must be a result, not an error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if !strings.Contains(result.Content, "ghost") {
		t.Errorf("result should name the missing capability: %s", result.Content)
	}
}

func TestDispatchRejectsInvalidArguments(t *testing.T) {
	d := testDispatcher(t, time.Second, echoHandler())

	tests := []struct {
		name  string
		input string
	}{
		{"missing required", `{}`},
		{"wrong type", `{"text":42}`},
		{"extra property", `{"text":"hi","bogus":true}`},
		{"not json", `{broken`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := d.Dispatch(context.Background(), &models.ToolCall{
				ID: "call-1", Name: "echo", Input: json.RawMessage(tt.input),
			})
			if err != nil {
				t.Fatalf("validation failure must be a result, not an error: %v", err)
			}
			if !result.IsError {
				t.Errorf("input %s accepted, expected rejection", tt.input)
			}
		})
	}
}

func TestDispatchTimeout(t *testing.T) {
	slow := &Func{
		FuncName: "sleep",
		FuncKind: KindTool,
		Fn: func(ctx context.Context, input []byte) (string, error) {
			select {
			case <-time.After(time.Minute):
				return "woke", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
	}
	d := testDispatcher(t, 20*time.Millisecond, slow)

	start := time.Now()
	result, err := d.Dispatch(context.Background(), &models.ToolCall{ID: "call-1", Name: "sleep"})
	if err != nil {
		t.Fatalf("timeout must be a result, not an error: %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "timed out") {
		t.Errorf("expected timeout result, got %+v", result)
	}
	if time.Since(start) > time.Second {
		t.Error("dispatch did not honor per-call timeout")
	}
}

func TestDispatchPanicIsolation(t *testing.T) {
	boom := &Func{
		FuncName: "boom",
		FuncKind: KindTool,
		Fn: func(ctx context.Context, input []byte) (string, error) {
			panic("handler bug")
		},
	}
	d := testDispatcher(t, time.Second, boom)

	result, err := d.Dispatch(context.Background(), &models.ToolCall{ID: "call-1", Name: "boom"})
	if err != nil {
		t.Fatalf("panic must be a result, not an error: %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "panicked") {
		t.Errorf("expected panic result, got %+v", result)
	}
}

func TestDispatchHandlerError(t *testing.T) {
	failing := &Func{
		FuncName: "fail",
		FuncKind: KindTool,
		Fn: func(ctx context.Context, input []byte) (string, error) {
			return "", errors.New("backend unreachable")
		},
	}
	d := testDispatcher(t, time.Second, failing)

	result, err := d.Dispatch(context.Background(), &models.ToolCall{ID: "call-1", Name: "fail"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !result.IsError || result.Content != "backend unreachable" {
		t.Errorf("expected handler error surfaced in result, got %+v", result)
	}
}

func TestDispatchCancelledContext(t *testing.T) {
	d := testDispatcher(t, time.Second, echoHandler())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Dispatch(ctx, &models.ToolCall{ID: "call-1", Name: "echo", Input: json.RawMessage(`{"text":"x"}`)})
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestRegistryDuplicate(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(echoHandler()); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := registry.Register(echoHandler()); err == nil {
		t.Error("duplicate registration accepted")
	}
}

func TestRegistryResolveNotFound(t *testing.T) {
	registry := NewRegistry()
	_, err := registry.Resolve("missing")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Resolve missing = %v, want *NotFoundError", err)
	}
	if nf.Name != "missing" {
		t.Errorf("NotFoundError.Name = %q", nf.Name)
	}
}

func TestRegistrySpecsSorted(t *testing.T) {
	registry := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		registry.Register(&Func{FuncName: name, FuncKind: KindTool})
	}
	specs := registry.Specs()
	if len(specs) != 3 {
		t.Fatalf("Specs length = %d, want 3", len(specs))
	}
	if specs[0].Name != "alpha" || specs[2].Name != "zeta" {
		t.Errorf("Specs not sorted: %v", []string{specs[0].Name, specs[1].Name, specs[2].Name})
	}
}
