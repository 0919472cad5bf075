package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/adjutant-ai/adjutant/pkg/models"
)

// EchoGateway is the development backend: it answers with a summary of
// what it was asked, without calling any model API. It lets the daemon
// run end to end before a real Gateway is wired in.
type EchoGateway struct{}

func NewEchoGateway() *EchoGateway { return &EchoGateway{} }

func (e *EchoGateway) Name() string { return "echo" }

func (e *EchoGateway) Complete(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var lastUser string
	for i := len(req.History) - 1; i >= 0; i-- {
		if req.History[i].Role == models.RoleUser {
			lastUser = req.History[i].Content
			break
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "echo backend: received %q", lastUser)
	if len(req.Snippets) > 0 {
		fmt.Fprintf(&b, " (%d context snippets)", len(req.Snippets))
	}
	if len(req.Tools) > 0 {
		fmt.Fprintf(&b, " [%d tools available]", len(req.Tools))
	}
	return &Response{Text: b.String()}, nil
}

var _ Gateway = (*EchoGateway)(nil)
