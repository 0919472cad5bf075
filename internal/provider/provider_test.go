package provider

import (
	"errors"
	"fmt"
	"testing"

	"github.com/adjutant-ai/adjutant/pkg/models"
)

func TestErrorRetryable(t *testing.T) {
	tests := []struct {
		kind      ErrorKind
		retryable bool
	}{
		{KindRateLimited, true},
		{KindTimeout, true},
		{KindUnavailable, true},
		{KindMalformed, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := NewError(tt.kind, "boom", nil)
			if got := err.Retryable(); got != tt.retryable {
				t.Errorf("Retryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestIsRetryableUnwraps(t *testing.T) {
	wrapped := fmt.Errorf("complete: %w", NewError(KindRateLimited, "429", nil))
	if !IsRetryable(wrapped) {
		t.Error("wrapped rate_limited error should be retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("unclassified error should not be retryable")
	}
}

func TestResponseFinal(t *testing.T) {
	if !(&Response{Text: "done"}).Final() {
		t.Error("text-only response should be final")
	}
	withCalls := &Response{ToolCalls: []models.ToolCall{{ID: "call-1", Name: "web_search"}}}
	if withCalls.Final() {
		t.Error("response carrying tool calls should not be final")
	}
}
