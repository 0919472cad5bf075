package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/adjutant-ai/adjutant/internal/observability"
	"github.com/adjutant-ai/adjutant/pkg/models"
)

// DefaultCallTimeout bounds a single capability invocation.
const DefaultCallTimeout = 60 * time.Second

// Dispatcher resolves and executes tool calls. Operational failures
// (unknown capability, invalid arguments, timeout, panic) come back as
// error ToolResults so the provider can see and react to them; the error
// return is reserved for context cancellation. The Dispatcher never
// retries — retry policy belongs to the caller.
type Dispatcher struct {
	registry *Registry
	logger   *observability.Logger
	metrics  *observability.Metrics
	timeout  time.Duration

	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}

// NewDispatcher builds a Dispatcher over the registry. timeout <= 0 uses
// DefaultCallTimeout.
func NewDispatcher(registry *Registry, logger *observability.Logger, metrics *observability.Metrics, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Dispatcher{
		registry: registry,
		logger:   logger,
		metrics:  metrics,
		timeout:  timeout,
		schemas:  map[string]*jsonschema.Schema{},
	}
}

// Dispatch executes one tool call and returns its result.
func (d *Dispatcher) Dispatch(ctx context.Context, call *models.ToolCall) (models.ToolResult, error) {
	if err := ctx.Err(); err != nil {
		return models.ToolResult{}, err
	}
	start := time.Now()

	handler, err := d.registry.Resolve(call.Name)
	if err != nil {
		d.logger.Warn(ctx, "unknown capability requested", "capability", call.Name)
		d.count("", "not_found")
		return errorResult(call, start, fmt.Sprintf("unknown capability %q", call.Name)), nil
	}

	if verr := d.validate(handler, call.Input); verr != nil {
		d.logger.Warn(ctx, "capability arguments rejected",
			"capability", call.Name, "error", verr)
		d.count(handler.Kind(), "invalid_args")
		return errorResult(call, start, "invalid arguments: "+verr.Error()), nil
	}

	content, invokeErr := d.invoke(ctx, handler, call.Input)
	elapsed := time.Since(start)
	if d.metrics != nil {
		d.metrics.DispatchDuration.WithLabelValues(call.Name).Observe(elapsed.Seconds())
	}

	switch {
	case errors.Is(invokeErr, context.Canceled) && ctx.Err() != nil:
		return models.ToolResult{}, invokeErr
	case errors.Is(invokeErr, context.DeadlineExceeded):
		d.logger.Warn(ctx, "capability timed out",
			"capability", call.Name, "elapsed", elapsed)
		d.count(handler.Kind(), "timeout")
		return errorResult(call, start, fmt.Sprintf("capability %q timed out after %s", call.Name, d.timeout)), nil
	case invokeErr != nil:
		d.logger.Warn(ctx, "capability failed",
			"capability", call.Name, "error", invokeErr)
		d.count(handler.Kind(), "error")
		return errorResult(call, start, invokeErr.Error()), nil
	}

	d.count(handler.Kind(), "success")
	return models.ToolResult{
		ToolCallID: call.ID,
		Content:    content,
		Elapsed:    elapsed,
	}, nil
}

// invoke runs the handler with a per-call deadline and panic isolation.
func (d *Dispatcher) invoke(ctx context.Context, handler Handler, input []byte) (content string, err error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type outcome struct {
		content string
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("capability panicked: %v", r)}
			}
		}()
		content, err := handler.Invoke(ctx, input)
		done <- outcome{content: content, err: err}
	}()

	select {
	case out := <-done:
		return out.content, out.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// validate checks input against the handler's schema. A nil schema skips
// validation. Compiled schemas are cached per capability.
func (d *Dispatcher) validate(handler Handler, input []byte) error {
	raw := handler.Schema()
	if raw == nil {
		return nil
	}
	schema, err := d.compiled(handler.Name(), raw)
	if err != nil {
		return fmt.Errorf("schema for %q does not compile: %w", handler.Name(), err)
	}
	if len(input) == 0 {
		input = []byte(`{}`)
	}
	var value any
	if err := json.Unmarshal(input, &value); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	return schema.Validate(value)
}

func (d *Dispatcher) compiled(name string, raw map[string]any) (*jsonschema.Schema, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if schema, ok := d.schemas[name]; ok {
		return schema, nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	schema, err := jsonschema.CompileString(name+".json", string(encoded))
	if err != nil {
		return nil, err
	}
	d.schemas[name] = schema
	return schema, nil
}

func (d *Dispatcher) count(kind Kind, status string) {
	if d.metrics == nil {
		return
	}
	label := string(kind)
	if label == "" {
		label = "unknown"
	}
	d.metrics.DispatchCounter.WithLabelValues(label, status).Inc()
}

func errorResult(call *models.ToolCall, start time.Time, message string) models.ToolResult {
	return models.ToolResult{
		ToolCallID: call.ID,
		Content:    message,
		IsError:    true,
		Elapsed:    time.Since(start),
	}
}
