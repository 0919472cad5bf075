// Package channels defines the adapter contract for messaging surfaces
// and the fan-in inbox that feeds the runtime.
package channels

import (
	"context"
	"fmt"
	"sync"

	"github.com/adjutant-ai/adjutant/pkg/models"
)

// Adapter is one messaging surface (Telegram, Slack, email, ...). The
// runtime treats all surfaces uniformly through this interface; wire
// protocols stay inside the adapter.
type Adapter interface {
	// Start connects to the upstream service and begins emitting inbound
	// events on Events(). It returns once the adapter is receiving.
	Start(ctx context.Context) error

	// Stop disconnects and closes the Events channel.
	Stop(ctx context.Context) error

	// Send delivers an outbound event to the surface.
	Send(ctx context.Context, event *models.Event) error

	// Events is the stream of inbound events. Closed on Stop.
	Events() <-chan *models.Event

	// Type identifies the surface.
	Type() models.ChannelType
}

// Registry tracks the configured adapters by channel type.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.ChannelType]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: map[models.ChannelType]Adapter{}}
}

// Register adds an adapter. One adapter per channel type.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return fmt.Errorf("adapter is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[a.Type()]; exists {
		return fmt.Errorf("adapter for channel %q already registered", a.Type())
	}
	r.adapters[a.Type()] = a
	return nil
}

// Get returns the adapter for a channel type.
func (r *Registry) Get(t models.ChannelType) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[t]
	return a, ok
}

// All returns every registered adapter.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	return out
}

// StartAll starts every adapter and begins forwarding its events into the
// inbox. Startup is all-or-nothing: a failing adapter stops the ones
// already started.
func (r *Registry) StartAll(ctx context.Context, inbox *Inbox) error {
	started := make([]Adapter, 0)
	for _, a := range r.All() {
		if err := a.Start(ctx); err != nil {
			for _, s := range started {
				s.Stop(ctx)
			}
			return fmt.Errorf("start %s adapter: %w", a.Type(), err)
		}
		started = append(started, a)
		go forward(ctx, a, inbox)
	}
	return nil
}

// StopAll stops every adapter, returning the first error.
func (r *Registry) StopAll(ctx context.Context) error {
	var firstErr error
	for _, a := range r.All() {
		if err := a.Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop %s adapter: %w", a.Type(), err)
		}
	}
	return firstErr
}

func forward(ctx context.Context, a Adapter, inbox *Inbox) {
	for event := range a.Events() {
		if err := inbox.Put(ctx, event); err != nil {
			return
		}
	}
}
