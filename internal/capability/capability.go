// Package capability registers and dispatches the tools, skills, and
// integrations the agent can invoke.
package capability

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Kind distinguishes where a handler comes from.
type Kind string

const (
	// KindTool is a built-in, compiled-in capability.
	KindTool Kind = "tool"

	// KindSkill is a user-defined capability loaded from a manifest.
	KindSkill Kind = "skill"

	// KindIntegration is a capability backed by an external service.
	KindIntegration Kind = "integration"
)

// Handler executes one named capability. Implementations must be safe
// for concurrent use.
type Handler interface {
	Name() string
	Kind() Kind
	Description() string

	// Schema returns the JSON Schema for the handler's input, used both
	// for provider tool advertising and dispatch-time validation.
	Schema() map[string]any

	// Invoke runs the capability. Returning an error marks the tool
	// result as failed; it does not abort the loop.
	Invoke(ctx context.Context, input []byte) (string, error)
}

// NotFoundError is returned by Resolve for unregistered names.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("capability %q not registered", e.Name)
}

// Registry holds the capability surface. Registration happens at startup;
// lookups happen on every tool call.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register adds a handler. Names are unique across kinds; registering a
// duplicate is a wiring bug and returns an error.
func (r *Registry) Register(h Handler) error {
	if h == nil || h.Name() == "" {
		return fmt.Errorf("handler must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[h.Name()]; exists {
		return fmt.Errorf("capability %q already registered", h.Name())
	}
	r.handlers[h.Name()] = h
	return nil
}

// Resolve returns the handler for name, or *NotFoundError.
func (r *Registry) Resolve(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return h, nil
}

// List returns all handlers sorted by name.
func (r *Registry) List() []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Handler, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Specs returns the provider-facing tool specifications for all
// registered handlers.
func (r *Registry) Specs() []Spec {
	handlers := r.List()
	out := make([]Spec, 0, len(handlers))
	for _, h := range handlers {
		out = append(out, Spec{
			Name:        h.Name(),
			Description: h.Description(),
			InputSchema: h.Schema(),
		})
	}
	return out
}

// Spec mirrors provider.ToolSpec without importing the provider package.
type Spec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Func adapts plain functions to the Handler interface, used for small
// built-ins and tests.
type Func struct {
	FuncName        string
	FuncKind        Kind
	FuncDescription string
	FuncSchema      map[string]any
	Fn              func(ctx context.Context, input []byte) (string, error)
}

func (f *Func) Name() string           { return f.FuncName }
func (f *Func) Kind() Kind             { return f.FuncKind }
func (f *Func) Description() string    { return f.FuncDescription }
func (f *Func) Schema() map[string]any { return f.FuncSchema }

func (f *Func) Invoke(ctx context.Context, input []byte) (string, error) {
	return f.Fn(ctx, input)
}

var _ Handler = (*Func)(nil)
