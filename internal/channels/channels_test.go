package channels

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/adjutant-ai/adjutant/pkg/models"
)

type fakeAdapter struct {
	channelType models.ChannelType
	events      chan *models.Event
	startErr    error

	mu      sync.Mutex
	sent    []*models.Event
	stopped bool
}

func newFakeAdapter(t models.ChannelType) *fakeAdapter {
	return &fakeAdapter{channelType: t, events: make(chan *models.Event, 16)}
}

func (f *fakeAdapter) Start(ctx context.Context) error { return f.startErr }

func (f *fakeAdapter) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.stopped {
		f.stopped = true
		close(f.events)
	}
	return nil
}

func (f *fakeAdapter) Send(ctx context.Context, event *models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, event)
	return nil
}

func (f *fakeAdapter) Events() <-chan *models.Event { return f.events }
func (f *fakeAdapter) Type() models.ChannelType     { return f.channelType }

func TestRegistryOneAdapterPerChannel(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(newFakeAdapter(models.ChannelTelegram)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := registry.Register(newFakeAdapter(models.ChannelTelegram)); err == nil {
		t.Error("duplicate channel registration accepted")
	}
	if _, ok := registry.Get(models.ChannelTelegram); !ok {
		t.Error("registered adapter not found")
	}
	if _, ok := registry.Get(models.ChannelSlack); ok {
		t.Error("unregistered channel returned an adapter")
	}
}

func TestStartAllForwardsIntoInbox(t *testing.T) {
	registry := NewRegistry()
	telegram := newFakeAdapter(models.ChannelTelegram)
	slack := newFakeAdapter(models.ChannelSlack)
	registry.Register(telegram)
	registry.Register(slack)

	inbox := NewInbox(16)
	ctx := context.Background()
	if err := registry.StartAll(ctx, inbox); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	defer registry.StopAll(ctx)

	telegram.events <- &models.Event{ID: "evt-1", Channel: models.ChannelTelegram}
	slack.events <- &models.Event{ID: "evt-2", Channel: models.ChannelSlack}

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		takeCtx, cancel := context.WithTimeout(ctx, time.Second)
		event, err := inbox.Take(takeCtx)
		cancel()
		if err != nil {
			t.Fatalf("Take %d: %v", i, err)
		}
		got[event.ID] = true
	}
	if !got["evt-1"] || !got["evt-2"] {
		t.Errorf("events missing from inbox: %v", got)
	}
}

func TestStartAllRollsBackOnFailure(t *testing.T) {
	registry := NewRegistry()
	good := newFakeAdapter(models.ChannelTelegram)
	bad := newFakeAdapter(models.ChannelSlack)
	bad.startErr = errors.New("auth failed")
	registry.Register(good)
	registry.Register(bad)

	err := registry.StartAll(context.Background(), NewInbox(4))
	if err == nil {
		t.Fatal("expected startup failure")
	}
	// Whichever order startup ran in, nothing should stay half-started:
	// the good adapter is either never started or stopped again.
	good.mu.Lock()
	defer good.mu.Unlock()
	if !good.stopped && len(good.sent) > 0 {
		t.Error("adapter left running after rollback")
	}
}

func TestInboxBackpressure(t *testing.T) {
	inbox := NewInbox(1)
	ctx := context.Background()

	if err := inbox.Put(ctx, &models.Event{ID: "evt-1"}); err != nil {
		t.Fatalf("first Put: %v", err)
	}

	blocked := make(chan error, 1)
	go func() {
		blocked <- inbox.Put(ctx, &models.Event{ID: "evt-2"})
	}()

	select {
	case err := <-blocked:
		t.Fatalf("Put on full inbox returned early: %v", err)
	case <-time.After(30 * time.Millisecond):
	}

	if _, err := inbox.Take(ctx); err != nil {
		t.Fatalf("Take: %v", err)
	}
	select {
	case err := <-blocked:
		if err != nil {
			t.Fatalf("blocked Put: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Put never unblocked after Take")
	}
}

func TestInboxPutHonorsContext(t *testing.T) {
	inbox := NewInbox(1)
	inbox.Put(context.Background(), &models.Event{ID: "evt-1"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := inbox.Put(ctx, &models.Event{ID: "evt-2"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Put = %v, want deadline exceeded", err)
	}
}

func TestInboxCloseDrains(t *testing.T) {
	inbox := NewInbox(4)
	ctx := context.Background()
	inbox.Put(ctx, &models.Event{ID: "evt-1"})
	inbox.Close()

	if err := inbox.Put(ctx, &models.Event{ID: "evt-2"}); !errors.Is(err, ErrInboxClosed) {
		t.Errorf("Put after close = %v, want ErrInboxClosed", err)
	}

	event, err := inbox.Take(ctx)
	if err != nil {
		t.Fatalf("Take after close should drain: %v", err)
	}
	if event.ID != "evt-1" {
		t.Errorf("drained event = %q", event.ID)
	}
	if _, err := inbox.Take(ctx); !errors.Is(err, ErrInboxClosed) {
		t.Errorf("Take on drained closed inbox = %v, want ErrInboxClosed", err)
	}
}
