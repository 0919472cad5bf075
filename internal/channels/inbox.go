package channels

import (
	"context"
	"errors"

	"github.com/adjutant-ai/adjutant/pkg/models"
)

// ErrInboxClosed is returned by Put after Close.
var ErrInboxClosed = errors.New("inbox closed")

// DefaultInboxCapacity is the fan-in buffer size when none is configured.
const DefaultInboxCapacity = 256

// Inbox is the bounded fan-in queue between channel adapters and the
// runtime. When full, Put blocks — backpressure propagates to the
// adapters rather than dropping events.
type Inbox struct {
	events chan *models.Event
	closed chan struct{}
}

func NewInbox(capacity int) *Inbox {
	if capacity <= 0 {
		capacity = DefaultInboxCapacity
	}
	return &Inbox{
		events: make(chan *models.Event, capacity),
		closed: make(chan struct{}),
	}
}

// Put enqueues an inbound event, blocking while the inbox is full.
func (i *Inbox) Put(ctx context.Context, event *models.Event) error {
	if event == nil {
		return errors.New("event is required")
	}
	select {
	case <-i.closed:
		return ErrInboxClosed
	default:
	}
	select {
	case i.events <- event:
		return nil
	case <-i.closed:
		return ErrInboxClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Take dequeues the next event, blocking until one arrives, the inbox
// closes (ok=false), or ctx is done.
func (i *Inbox) Take(ctx context.Context) (*models.Event, error) {
	select {
	case event := <-i.events:
		return event, nil
	case <-i.closed:
		// Drain what was enqueued before the close.
		select {
		case event := <-i.events:
			return event, nil
		default:
			return nil, ErrInboxClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports the number of queued events.
func (i *Inbox) Len() int {
	return len(i.events)
}

// Close stops accepting new events. Queued events remain takeable.
func (i *Inbox) Close() {
	select {
	case <-i.closed:
	default:
		close(i.closed)
	}
}
