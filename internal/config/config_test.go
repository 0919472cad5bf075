package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "adjutant.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Runtime.MaxIterations != 10 {
		t.Errorf("default max_iterations = %d", cfg.Runtime.MaxIterations)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("default backend = %q", cfg.Storage.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
storage:
  backend: memory
runtime:
  max_iterations: 5
  system_prompt: "You are a helpful assistant."
approval:
  ttl: 30s
  sensitive: [send_email]
skills:
  dir: /etc/adjutant/skills
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("backend = %q", cfg.Storage.Backend)
	}
	if cfg.Runtime.MaxIterations != 5 {
		t.Errorf("max_iterations = %d", cfg.Runtime.MaxIterations)
	}
	if cfg.Approval.TTL != 30*time.Second {
		t.Errorf("approval ttl = %v", cfg.Approval.TTL)
	}
	if len(cfg.Approval.Sensitive) != 1 || cfg.Approval.Sensitive[0] != "send_email" {
		t.Errorf("sensitive patterns = %v", cfg.Approval.Sensitive)
	}
	// Unset fields keep their defaults.
	if cfg.Runtime.HistoryLimit != 50 {
		t.Errorf("history_limit = %d, want default 50", cfg.Runtime.HistoryLimit)
	}
	if cfg.Inbox.Capacity != 256 {
		t.Errorf("inbox capacity = %d, want default 256", cfg.Inbox.Capacity)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown backend", "storage:\n  backend: redis", "unknown storage backend"},
		{"sqlite without path", "storage:\n  backend: sqlite\n  path: \"\"", "storage.path"},
		{"zero iterations", "runtime:\n  max_iterations: 0", "max_iterations"},
		{"bad default risk", "approval:\n  default_risk: extreme", "default_risk"},
		{"negative ttl", "approval:\n  ttl: -1s", "approval.ttl"},
		{"not yaml", "::::", "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatalf("config accepted:\n%s", tt.body)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
