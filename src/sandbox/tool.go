// Package sandbox executes the fixed set of local operations the model may
// request, with resource limits and uniform success/error reporting.
package sandbox

import (
	"context"

	jsonschema "github.com/swaggest/jsonschema-go"

	"github.com/parleyhq/parley/src/chat"
)

// Tool is the interface every sandboxed operation implements.
type Tool interface {
	// GetName returns the tool's name as exposed to the model.
	GetName() string

	// GetDescription returns the tool's description for the schema.
	GetDescription() string

	// GetParameters returns the JSON schema for the tool's input.
	GetParameters() *jsonschema.Schema

	// Execute runs the tool. A returned error is captured by the toolbox
	// and reported as an is_error result; it never propagates further.
	Execute(ctx context.Context, input map[string]any) (string, error)
}

// Result is the uniform outcome of a tool execution.
type Result struct {
	Output  string
	IsError bool
}

// Schema converts a tool into the request-level schema shape.
func Schema(t Tool) chat.ToolSchema {
	return chat.ToolSchema{
		Name:        t.GetName(),
		Description: t.GetDescription(),
		InputSchema: t.GetParameters(),
	}
}
