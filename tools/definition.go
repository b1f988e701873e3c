package tools

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/petasbytes/toolstream/internal/chat"
)

// ToolDefinition couples a tool's advertised contract with its handler.
// Function receives input already validated against InputSchema; its return
// value becomes the data field of a successful outcome.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
	Function    func(ctx context.Context, input json.RawMessage) (any, error)
}

// Spec returns the vendor-neutral advertisement of d.
func (d ToolDefinition) Spec() chat.ToolSpec {
	return chat.ToolSpec{Name: d.Name, Description: d.Description, Parameters: d.InputSchema}
}

// GenerateSchema reflects T into an inlined JSON Schema object that rejects
// unknown properties.
func GenerateSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		Anonymous:                 true,
	}
	var v T
	schema := reflector.Reflect(v)

	b, err := json.Marshal(schema)
	if err != nil {
		panic("tools: marshal schema: " + err.Error())
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		panic("tools: decode schema: " + err.Error())
	}
	if _, ok := out["properties"]; !ok {
		out["properties"] = map[string]any{}
	}
	return out
}
