// Package config loads and validates the daemon configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adjutant-ai/adjutant/internal/observability"
)

// Config is the full daemon configuration, loaded from one YAML file.
type Config struct {
	Log      observability.LogConfig `yaml:"log"`
	Storage  StorageConfig           `yaml:"storage"`
	Runtime  RuntimeConfig           `yaml:"runtime"`
	Approval ApprovalConfig          `yaml:"approval"`
	Skills   SkillsConfig            `yaml:"skills"`
	Memory   MemoryConfig            `yaml:"memory"`
	Inbox    InboxConfig             `yaml:"inbox"`
	Provider ProviderConfig          `yaml:"provider"`
	Channels ChannelsConfig          `yaml:"channels"`
}

// ProviderConfig selects the model backend.
type ProviderConfig struct {
	// Backend names the gateway implementation. "echo" is the built-in
	// development backend; deployments register their own.
	Backend string `yaml:"backend"`
}

// ChannelsConfig enables the built-in surfaces.
type ChannelsConfig struct {
	// Console attaches the local terminal as a conversation surface.
	Console bool `yaml:"console"`
}

// StorageConfig selects the session/approval backend.
type StorageConfig struct {
	// Backend is "sqlite" or "memory".
	Backend string `yaml:"backend"`

	// Path is the SQLite database file. Ignored for the memory backend.
	Path string `yaml:"path"`
}

// RuntimeConfig holds the loop limits.
type RuntimeConfig struct {
	MaxIterations              int           `yaml:"max_iterations"`
	MaxConsecutiveToolFailures int           `yaml:"max_consecutive_tool_failures"`
	HistoryLimit               int           `yaml:"history_limit"`
	QueueSize                  int           `yaml:"queue_size"`
	DedupeTTL                  time.Duration `yaml:"dedupe_ttl"`
	SystemPrompt               string        `yaml:"system_prompt"`
}

// ApprovalConfig holds risk classification and gate settings.
type ApprovalConfig struct {
	TTL          time.Duration `yaml:"ttl"`
	Sensitive    []string      `yaml:"sensitive"`
	Safe         []string      `yaml:"safe"`
	DefaultRisk  string        `yaml:"default_risk"`
	AllowedRoots []string      `yaml:"allowed_roots"`
}

// SkillsConfig points at the skill manifest directory.
type SkillsConfig struct {
	Dir string `yaml:"dir"`
}

// MemoryConfig tunes context retrieval.
type MemoryConfig struct {
	// SnippetLimit caps retrieved snippets per query.
	SnippetLimit int `yaml:"snippet_limit"`
}

// InboxConfig bounds the channel fan-in queue.
type InboxConfig struct {
	Capacity int `yaml:"capacity"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log: observability.LogConfig{
			Level:  "info",
			Format: "json",
		},
		Storage: StorageConfig{
			Backend: "sqlite",
			Path:    "adjutant.db",
		},
		Runtime: RuntimeConfig{
			MaxIterations:              10,
			MaxConsecutiveToolFailures: 3,
			HistoryLimit:               50,
			QueueSize:                  32,
			DedupeTTL:                  15 * time.Minute,
		},
		Approval: ApprovalConfig{
			TTL: 10 * time.Minute,
			Sensitive: []string{
				"send_*",
				"shell_*",
				"*_delete",
				"*_write",
			},
		},
		Memory:   MemoryConfig{SnippetLimit: 5},
		Inbox:    InboxConfig{Capacity: 256},
		Provider: ProviderConfig{Backend: "echo"},
		Channels: ChannelsConfig{Console: true},
	}
}

// Load reads path, overlaying the file's values on the defaults. An empty
// path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if c.Runtime.MaxIterations < 1 {
		return fmt.Errorf("runtime.max_iterations must be at least 1")
	}
	if c.Runtime.MaxConsecutiveToolFailures < 1 {
		return fmt.Errorf("runtime.max_consecutive_tool_failures must be at least 1")
	}
	if c.Approval.TTL <= 0 {
		return fmt.Errorf("approval.ttl must be positive")
	}
	switch c.Approval.DefaultRisk {
	case "", "safe", "sensitive":
	default:
		return fmt.Errorf("approval.default_risk must be safe or sensitive, got %q", c.Approval.DefaultRisk)
	}
	if c.Inbox.Capacity < 1 {
		return fmt.Errorf("inbox.capacity must be at least 1")
	}
	if c.Provider.Backend == "" {
		return fmt.Errorf("provider.backend is required")
	}
	return nil
}
