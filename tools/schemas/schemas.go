// Package schemas contains tool schema definitions for the memoryd tool
// surface. The schemas describe the input parameters the model sees; they
// are registered with the MCP server at startup.
package schemas

// ToolSchema represents a tool's description and JSON schema.
type ToolSchema struct {
	Description string
	Schema      map[string]any
}

// All returns all tool schemas.
func All() map[string]ToolSchema {
	schemas := make(map[string]ToolSchema)

	for name, schema := range MemorySchemas() {
		schemas[name] = schema
	}

	return schemas
}
