// Package approval classifies capability invocations by risk and gates
// sensitive ones behind a human decision.
package approval

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/adjutant-ai/adjutant/pkg/models"
)

// Inspector examines a tool call's arguments and may escalate its risk.
// Returning a non-empty reason marks the call sensitive.
type Inspector func(call *models.ToolCall) (reason string)

// PolicyConfig is the declarative part of a Policy.
type PolicyConfig struct {
	// Sensitive lists patterns for capabilities that always need approval.
	// Supports exact names, prefix* and *suffix wildcards, and a bare *.
	Sensitive []string `yaml:"sensitive"`

	// Safe lists patterns for capabilities that never need approval.
	// Safe wins over Sensitive when both match.
	Safe []string `yaml:"safe"`

	// DefaultRisk applies when neither list matches. Empty means safe.
	DefaultRisk models.Risk `yaml:"default_risk"`
}

// Policy decides whether a tool call needs human approval.
type Policy struct {
	cfg        PolicyConfig
	inspectors []Inspector
}

// NewPolicy builds a Policy from configuration plus optional argument
// inspectors. Inspectors run only on calls the pattern lists leave safe;
// they can escalate, never downgrade.
func NewPolicy(cfg PolicyConfig, inspectors ...Inspector) *Policy {
	if cfg.DefaultRisk == "" {
		cfg.DefaultRisk = models.RiskSafe
	}
	return &Policy{cfg: cfg, inspectors: inspectors}
}

// Classify returns the risk for a tool call and, when sensitive, the
// reason shown to the human approver.
func (p *Policy) Classify(call *models.ToolCall) (models.Risk, string) {
	if call == nil {
		return models.RiskSafe, ""
	}
	if matchAny(p.cfg.Safe, call.Name) {
		return models.RiskSafe, ""
	}
	if matchAny(p.cfg.Sensitive, call.Name) {
		return models.RiskSensitive, "capability " + call.Name + " is marked sensitive"
	}
	for _, inspect := range p.inspectors {
		if reason := inspect(call); reason != "" {
			return models.RiskSensitive, reason
		}
	}
	if p.cfg.DefaultRisk == models.RiskSensitive {
		return models.RiskSensitive, "capability " + call.Name + " is not on the safe list"
	}
	return models.RiskSafe, ""
}

// matchAny checks name against a pattern list. Supports exact match,
// prefix* match, *suffix match, and * (all).
func matchAny(patterns []string, name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, pattern := range patterns {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		if pattern == "*" {
			return true
		}
		if strings.HasSuffix(pattern, "*") {
			if strings.HasPrefix(name, strings.TrimSuffix(pattern, "*")) {
				return true
			}
			continue
		}
		if strings.HasPrefix(pattern, "*") {
			if strings.HasSuffix(name, strings.TrimPrefix(pattern, "*")) {
				return true
			}
			continue
		}
		if pattern == name {
			return true
		}
	}
	return false
}

// PathInspector escalates calls whose "path" argument resolves outside
// the allowed roots. Calls without a path argument are left alone.
func PathInspector(allowedRoots ...string) Inspector {
	cleaned := make([]string, 0, len(allowedRoots))
	for _, root := range allowedRoots {
		cleaned = append(cleaned, filepath.Clean(root))
	}
	return func(call *models.ToolCall) string {
		var args struct {
			Path string `json:"path"`
		}
		if len(call.Input) == 0 || json.Unmarshal(call.Input, &args) != nil || args.Path == "" {
			return ""
		}
		path := filepath.Clean(args.Path)
		for _, root := range cleaned {
			if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
				return ""
			}
		}
		return "path " + args.Path + " is outside allowed roots"
	}
}
