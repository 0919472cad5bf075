package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adjutant-ai/adjutant/internal/capability"
)

type timeArgs struct {
	// Timezone is an IANA zone name such as "Europe/Lisbon". Empty means
	// the host's local zone.
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA timezone name; empty for local time"`
}

// TimeTool reports the current date and time.
type TimeTool struct {
	schema map[string]any
	now    func() time.Time
}

func NewTimeTool() *TimeTool {
	return &TimeTool{schema: schemaFor(&timeArgs{}), now: time.Now}
}

func (t *TimeTool) Name() string           { return "current_time" }
func (t *TimeTool) Kind() capability.Kind  { return capability.KindTool }
func (t *TimeTool) Schema() map[string]any { return t.schema }

func (t *TimeTool) Description() string {
	return "Returns the current date and time, optionally in a given timezone"
}

func (t *TimeTool) Invoke(ctx context.Context, input []byte) (string, error) {
	var args timeArgs
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			return "", fmt.Errorf("decode arguments: %w", err)
		}
	}
	now := t.now()
	if args.Timezone != "" {
		loc, err := time.LoadLocation(args.Timezone)
		if err != nil {
			return "", fmt.Errorf("unknown timezone %q", args.Timezone)
		}
		now = now.In(loc)
	}
	return now.Format("Monday, 2 January 2006 15:04:05 MST"), nil
}
