package skills

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"text/template"
	"time"

	"github.com/adjutant-ai/adjutant/internal/capability"
)

// Handler executes one skill manifest.
type Handler struct {
	manifest *Manifest
	tmpl     *template.Template
}

// NewHandler compiles a manifest into a capability handler.
func NewHandler(m *Manifest) (*Handler, error) {
	h := &Handler{manifest: m}
	if m.Exec == ExecTemplate {
		tmpl, err := template.New(m.Name).Option("missingkey=zero").Parse(m.Template)
		if err != nil {
			return nil, fmt.Errorf("skill %s: parse template: %w", m.Name, err)
		}
		h.tmpl = tmpl
	}
	return h, nil
}

func (h *Handler) Name() string          { return h.manifest.Name }
func (h *Handler) Kind() capability.Kind { return capability.KindSkill }
func (h *Handler) Description() string   { return h.manifest.Description }

func (h *Handler) Schema() map[string]any {
	return h.manifest.Parameters
}

func (h *Handler) Invoke(ctx context.Context, input []byte) (string, error) {
	args := map[string]any{}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			return "", fmt.Errorf("decode arguments: %w", err)
		}
	}
	switch h.manifest.Exec {
	case ExecTemplate:
		return h.render(args)
	case ExecCommand:
		return h.run(ctx, input)
	default:
		return "", fmt.Errorf("skill %s: unknown exec mode %q", h.manifest.Name, h.manifest.Exec)
	}
}

func (h *Handler) render(args map[string]any) (string, error) {
	var out bytes.Buffer
	if err := h.tmpl.Execute(&out, args); err != nil {
		return "", fmt.Errorf("render skill %s: %w", h.manifest.Name, err)
	}
	return strings.TrimSpace(out.String()), nil
}

func (h *Handler) run(ctx context.Context, input []byte) (string, error) {
	if h.manifest.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(h.manifest.TimeoutSeconds)*time.Second)
		defer cancel()
	}
	argv := h.manifest.Command
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if len(input) == 0 {
		input = []byte(`{}`)
	}
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return "", fmt.Errorf("skill %s: %s", h.manifest.Name, detail)
	}
	return strings.TrimSpace(stdout.String()), nil
}

var _ capability.Handler = (*Handler)(nil)
