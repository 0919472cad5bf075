// Package builtin provides the compiled-in capability set: small, safe
// tools available in every deployment.
package builtin

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/adjutant-ai/adjutant/internal/capability"
)

// schemaFor derives a JSON Schema from an argument struct. Schemas are
// inlined (no $ref) so they can be shipped to providers as-is.
func schemaFor(args any) map[string]any {
	reflector := jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
	}
	schema := reflector.Reflect(args)
	schema.Version = ""

	encoded, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("builtin schema generation: %v", err))
	}
	var out map[string]any
	if err := json.Unmarshal(encoded, &out); err != nil {
		panic(fmt.Sprintf("builtin schema generation: %v", err))
	}
	return out
}

// RegisterAll adds every builtin tool to the registry.
func RegisterAll(registry *capability.Registry, notes NoteSink) error {
	handlers := []capability.Handler{
		NewTimeTool(),
	}
	if notes != nil {
		handlers = append(handlers, NewRememberTool(notes), NewRecallTool(notes))
	}
	for _, h := range handlers {
		if err := registry.Register(h); err != nil {
			return err
		}
	}
	return nil
}
