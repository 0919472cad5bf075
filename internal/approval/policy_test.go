package approval

import (
	"encoding/json"
	"testing"

	"github.com/adjutant-ai/adjutant/pkg/models"
)

func TestPolicyClassify(t *testing.T) {
	policy := NewPolicy(PolicyConfig{
		Sensitive: []string{"send_email", "shell_*", "*_delete"},
		Safe:      []string{"shell_echo"},
	})

	tests := []struct {
		name string
		tool string
		want models.Risk
	}{
		{"exact sensitive", "send_email", models.RiskSensitive},
		{"prefix wildcard", "shell_exec", models.RiskSensitive},
		{"suffix wildcard", "file_delete", models.RiskSensitive},
		{"safe wins over sensitive", "shell_echo", models.RiskSafe},
		{"unlisted defaults safe", "web_search", models.RiskSafe},
		{"case insensitive", "Send_Email", models.RiskSensitive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			risk, reason := policy.Classify(&models.ToolCall{ID: "c", Name: tt.tool})
			if risk != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.tool, risk, tt.want)
			}
			if risk == models.RiskSensitive && reason == "" {
				t.Errorf("sensitive classification for %q has no reason", tt.tool)
			}
		})
	}
}

func TestPolicyDefaultSensitive(t *testing.T) {
	policy := NewPolicy(PolicyConfig{
		Safe:        []string{"web_search"},
		DefaultRisk: models.RiskSensitive,
	})

	if risk, _ := policy.Classify(&models.ToolCall{Name: "web_search"}); risk != models.RiskSafe {
		t.Errorf("safe-listed tool classified %q", risk)
	}
	if risk, _ := policy.Classify(&models.ToolCall{Name: "anything_else"}); risk != models.RiskSensitive {
		t.Errorf("unlisted tool classified %q, want sensitive under sensitive default", risk)
	}
}

func TestPathInspector(t *testing.T) {
	policy := NewPolicy(PolicyConfig{}, PathInspector("/home/agent", "/tmp"))

	tests := []struct {
		name string
		args string
		want models.Risk
	}{
		{"inside root", `{"path":"/home/agent/notes.txt"}`, models.RiskSafe},
		{"root itself", `{"path":"/tmp"}`, models.RiskSafe},
		{"outside roots", `{"path":"/etc/passwd"}`, models.RiskSensitive},
		{"traversal escape", `{"path":"/home/agent/../../etc/passwd"}`, models.RiskSensitive},
		{"sibling prefix", `{"path":"/home/agent2/file"}`, models.RiskSensitive},
		{"no path argument", `{"query":"hello"}`, models.RiskSafe},
		{"empty input", ``, models.RiskSafe},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call := &models.ToolCall{ID: "c", Name: "read_file", Input: json.RawMessage(tt.args)}
			if risk, _ := policy.Classify(call); risk != tt.want {
				t.Errorf("Classify(%s) = %q, want %q", tt.args, risk, tt.want)
			}
		})
	}
}

func TestInspectorCannotDowngrade(t *testing.T) {
	// Pattern-sensitive tools stay sensitive even when inspectors see
	// nothing wrong with the arguments.
	policy := NewPolicy(PolicyConfig{Sensitive: []string{"send_email"}}, PathInspector("/"))
	call := &models.ToolCall{Name: "send_email", Input: json.RawMessage(`{"path":"/ok"}`)}
	if risk, _ := policy.Classify(call); risk != models.RiskSensitive {
		t.Errorf("pattern-sensitive tool downgraded to %q", risk)
	}
}
