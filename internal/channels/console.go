package channels

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adjutant-ai/adjutant/pkg/models"
)

// ConsoleAdapter is the local terminal surface: one line in, one event;
// outbound events print to the writer. All input lands in a single
// conversation.
type ConsoleAdapter struct {
	in  io.Reader
	out io.Writer

	events chan *models.Event
	done   chan struct{}

	mu      sync.Mutex
	stopped bool
}

const consoleConversation = "console"

// NewConsoleAdapter reads lines from in and writes replies to out.
func NewConsoleAdapter(in io.Reader, out io.Writer) *ConsoleAdapter {
	return &ConsoleAdapter{
		in:     in,
		out:    out,
		events: make(chan *models.Event, 16),
		done:   make(chan struct{}),
	}
}

func (c *ConsoleAdapter) Type() models.ChannelType     { return models.ChannelConsole }
func (c *ConsoleAdapter) Events() <-chan *models.Event { return c.events }

func (c *ConsoleAdapter) Start(ctx context.Context) error {
	go c.readLoop()
	return nil
}

func (c *ConsoleAdapter) readLoop() {
	defer c.closeEvents()
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		event := &models.Event{
			ID:             uuid.NewString(),
			Channel:        models.ChannelConsole,
			ConversationID: consoleConversation,
			Sender:         "operator",
			Direction:      models.DirectionInbound,
			Content:        line,
			CreatedAt:      time.Now(),
		}
		select {
		case c.events <- event:
		case <-c.done:
			return
		}
	}
}

func (c *ConsoleAdapter) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.stopped {
		c.stopped = true
		close(c.done)
	}
	return nil
}

func (c *ConsoleAdapter) closeEvents() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.stopped {
		c.stopped = true
		close(c.done)
	}
	close(c.events)
}

func (c *ConsoleAdapter) Send(ctx context.Context, event *models.Event) error {
	_, err := fmt.Fprintf(c.out, "adjutant> %s\n", event.Content)
	return err
}
