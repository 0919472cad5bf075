// Package provider abstracts the model backend behind a single completion
// interface. The runtime never talks to a model API directly.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/adjutant-ai/adjutant/pkg/models"
)

// ErrorKind classifies provider failures for retry decisions.
type ErrorKind string

const (
	// KindRateLimited means the backend rejected the request for quota
	// reasons. Retryable with backoff.
	KindRateLimited ErrorKind = "rate_limited"

	// KindTimeout means the request did not complete in time. Retryable.
	KindTimeout ErrorKind = "timeout"

	// KindMalformed means the backend returned a response the gateway could
	// not parse. Not retryable; retrying returns the same garbage.
	KindMalformed ErrorKind = "malformed"

	// KindUnavailable means a transport-level failure. Retryable.
	KindUnavailable ErrorKind = "unavailable"
)

// Error is a classified provider failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("provider %s", e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether a retry can plausibly succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindTimeout, KindUnavailable:
		return true
	default:
		return false
	}
}

// NewError builds a classified provider error wrapping cause.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// IsRetryable reports whether err is a provider error worth retrying.
// Unclassified errors are treated as non-retryable.
func IsRetryable(err error) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Retryable()
	}
	return false
}

// ToolSpec describes one capability offered to the model.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

// Request is one completion call: the assembled context plus the tool
// surface the model may draw from.
type Request struct {
	System   string
	History  []models.Message
	Snippets []models.ContextSnippet
	Tools    []ToolSpec
}

// Response is the model's reply. Exactly one of Text or ToolCalls is
// meaningful: a non-empty ToolCalls slice means the loop continues, an
// empty one means Text is the final answer.
type Response struct {
	Text      string
	ToolCalls []models.ToolCall
}

// Final reports whether the response terminates the loop.
func (r *Response) Final() bool {
	return len(r.ToolCalls) == 0
}

// Gateway is the model backend. Implementations must be safe for
// concurrent use; the runtime calls Complete from many conversation
// workers at once.
type Gateway interface {
	// Complete runs one completion. Failures are reported as *Error so
	// the caller can distinguish retryable kinds from terminal ones.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Name identifies the backend for logs and metrics.
	Name() string
}
