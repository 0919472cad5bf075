package skills

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/adjutant-ai/adjutant/internal/capability"
	"github.com/adjutant-ai/adjutant/internal/observability"
)

// Load walks dir for *.yaml and *.yml manifests and returns a handler per
// valid skill. Invalid manifests are logged and skipped so one broken file
// cannot take down the whole skill set. A missing directory is not an
// error; it just means no skills.
func Load(ctx context.Context, dir string, logger *observability.Logger) ([]*Handler, error) {
	if dir == "" {
		return nil, nil
	}
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat skills directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("skills path %s is not a directory", dir)
	}

	var handlers []*Handler
	seen := map[string]string{} // name -> path
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn(ctx, "skill manifest unreadable", "path", path, "error", err)
			return nil
		}
		manifest, err := Parse(data)
		if err != nil {
			logger.Warn(ctx, "skill manifest invalid", "path", path, "error", err)
			return nil
		}
		if prev, dup := seen[manifest.Name]; dup {
			logger.Warn(ctx, "duplicate skill name, keeping first",
				"name", manifest.Name, "kept", prev, "skipped", path)
			return nil
		}
		handler, err := NewHandler(manifest)
		if err != nil {
			logger.Warn(ctx, "skill does not compile", "path", path, "error", err)
			return nil
		}

		seen[manifest.Name] = path
		handlers = append(handlers, handler)
		logger.Debug(ctx, "skill loaded", "name", manifest.Name, "exec", manifest.Exec, "path", path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk skills directory: %w", err)
	}
	return handlers, nil
}

// Register loads skills from dir and adds them to the registry.
func Register(ctx context.Context, registry *capability.Registry, dir string, logger *observability.Logger) (int, error) {
	handlers, err := Load(ctx, dir, logger)
	if err != nil {
		return 0, err
	}
	registered := 0
	for _, h := range handlers {
		if err := registry.Register(h); err != nil {
			logger.Warn(ctx, "skill name collides with existing capability",
				"name", h.Name(), "error", err)
			continue
		}
		registered++
	}
	return registered, nil
}
