// Package skills loads user-defined capabilities from YAML manifests and
// exposes them as capability handlers.
package skills

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Exec defines how a skill runs.
type Exec string

const (
	// ExecTemplate renders the skill's template with the call arguments
	// and returns the result as the tool output. No side effects.
	ExecTemplate Exec = "template"

	// ExecCommand runs the skill's argv with the call arguments provided
	// as JSON on stdin.
	ExecCommand Exec = "command"
)

// Manifest is one parsed skill definition.
type Manifest struct {
	// Name is the capability name (lowercase, digits, underscores).
	Name string `yaml:"name"`

	// Description tells the model what the skill does and when to use it.
	Description string `yaml:"description"`

	// Parameters is the JSON Schema for the skill's arguments. Optional;
	// a missing schema means any object is accepted.
	Parameters map[string]any `yaml:"parameters"`

	// Exec selects the execution mode. Defaults to template when a
	// template is present, command when argv is present.
	Exec Exec `yaml:"exec"`

	// Template is the Go text/template body for template skills.
	Template string `yaml:"template"`

	// Command is the argv for command skills. The first element is the
	// binary, resolved against PATH.
	Command []string `yaml:"command"`

	// TimeoutSeconds bounds command execution. 0 uses the dispatcher's
	// per-call timeout only.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

var nameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Parse decodes and validates a single manifest.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode skill manifest: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if !nameRe.MatchString(m.Name) {
		return fmt.Errorf("skill name %q must be lowercase alphanumeric with underscores", m.Name)
	}
	if strings.TrimSpace(m.Description) == "" {
		return fmt.Errorf("skill %s: description is required", m.Name)
	}

	hasTemplate := strings.TrimSpace(m.Template) != ""
	hasCommand := len(m.Command) > 0
	switch m.Exec {
	case "":
		switch {
		case hasTemplate && hasCommand:
			return fmt.Errorf("skill %s: ambiguous, set exec to template or command", m.Name)
		case hasTemplate:
			m.Exec = ExecTemplate
		case hasCommand:
			m.Exec = ExecCommand
		default:
			return fmt.Errorf("skill %s: template or command is required", m.Name)
		}
	case ExecTemplate:
		if !hasTemplate {
			return fmt.Errorf("skill %s: exec template requires a template", m.Name)
		}
	case ExecCommand:
		if !hasCommand {
			return fmt.Errorf("skill %s: exec command requires a command", m.Name)
		}
	default:
		return fmt.Errorf("skill %s: unknown exec mode %q", m.Name, m.Exec)
	}

	if m.Parameters != nil {
		if typ, ok := m.Parameters["type"]; ok && typ != "object" {
			return fmt.Errorf("skill %s: parameters schema must describe an object", m.Name)
		}
	}
	return nil
}
