package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/adjutant-ai/adjutant/internal/capability"
	"github.com/adjutant-ai/adjutant/pkg/models"
)

// NoteSink is the slice of the memory layer the note tools need.
type NoteSink interface {
	Add(source, content string)
	Retrieve(ctx context.Context, query string, conversationID string) ([]models.ContextSnippet, error)
}

type rememberArgs struct {
	Content string `json:"content" jsonschema:"required,description=The fact to remember"`
	Topic   string `json:"topic,omitempty" jsonschema:"description=Short label for the fact"`
}

// RememberTool stores a fact in long-term memory.
type RememberTool struct {
	notes  NoteSink
	schema map[string]any
}

func NewRememberTool(notes NoteSink) *RememberTool {
	return &RememberTool{notes: notes, schema: schemaFor(&rememberArgs{})}
}

func (t *RememberTool) Name() string           { return "remember" }
func (t *RememberTool) Kind() capability.Kind  { return capability.KindTool }
func (t *RememberTool) Schema() map[string]any { return t.schema }

func (t *RememberTool) Description() string {
	return "Stores a fact in long-term memory for later conversations"
}

func (t *RememberTool) Invoke(ctx context.Context, input []byte) (string, error) {
	var args rememberArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("decode arguments: %w", err)
	}
	if strings.TrimSpace(args.Content) == "" {
		return "", fmt.Errorf("content is required")
	}
	topic := args.Topic
	if topic == "" {
		topic = "note"
	}
	t.notes.Add(topic, args.Content)
	return "Remembered.", nil
}

type recallArgs struct {
	Query string `json:"query" jsonschema:"required,description=What to look up"`
}

// RecallTool searches long-term memory.
type RecallTool struct {
	notes  NoteSink
	schema map[string]any
}

func NewRecallTool(notes NoteSink) *RecallTool {
	return &RecallTool{notes: notes, schema: schemaFor(&recallArgs{})}
}

func (t *RecallTool) Name() string           { return "recall" }
func (t *RecallTool) Kind() capability.Kind  { return capability.KindTool }
func (t *RecallTool) Schema() map[string]any { return t.schema }

func (t *RecallTool) Description() string {
	return "Searches long-term memory for facts matching a query"
}

func (t *RecallTool) Invoke(ctx context.Context, input []byte) (string, error) {
	var args recallArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("decode arguments: %w", err)
	}
	snippets, err := t.notes.Retrieve(ctx, args.Query, "")
	if err != nil {
		return "", err
	}
	if len(snippets) == 0 {
		return "Nothing relevant in memory.", nil
	}
	var b strings.Builder
	for i, s := range snippets {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%s] %s", s.Source, s.Content)
	}
	return b.String(), nil
}
