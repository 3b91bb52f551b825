package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	jsonschema "github.com/swaggest/jsonschema-go"
)

// GenericToolHandler is a type-safe tool handler producing the tool's
// textual output.
type GenericToolHandler[TInput any] func(ctx context.Context, input TInput) (string, error)

// GenericTool adapts a typed handler to the Tool interface, generating the
// input schema from the input struct via reflection.
type GenericTool[TInput any] struct {
	name        string
	description string
	schema      *jsonschema.Schema
	handler     GenericToolHandler[TInput]
}

// NewGenericTool creates a tool from a typed handler. The input type must
// be a struct so a meaningful schema can be reflected from it.
func NewGenericTool[TInput any](name, description string, handler GenericToolHandler[TInput]) (*GenericTool[TInput], error) {
	var input TInput
	inputType := reflect.TypeOf(input)
	if inputType.Kind() == reflect.Ptr {
		inputType = inputType.Elem()
	}
	if inputType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("tool input type must be a struct, got %s", inputType.Kind())
	}

	reflector := jsonschema.Reflector{}
	schema, err := reflector.Reflect(input)
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for %s: %w", name, err)
	}

	return &GenericTool[TInput]{
		name:        name,
		description: description,
		schema:      &schema,
		handler:     handler,
	}, nil
}

// MustGenericTool is NewGenericTool panicking on a malformed definition.
// Tool definitions are static, so a failure here is a programming error.
func MustGenericTool[TInput any](name, description string, handler GenericToolHandler[TInput]) *GenericTool[TInput] {
	tool, err := NewGenericTool(name, description, handler)
	if err != nil {
		panic(fmt.Sprintf("failed to create tool %s: %v", name, err))
	}
	return tool
}

func (gt *GenericTool[TInput]) GetName() string        { return gt.name }
func (gt *GenericTool[TInput]) GetDescription() string { return gt.description }

func (gt *GenericTool[TInput]) GetParameters() *jsonschema.Schema { return gt.schema }

// Execute parses the untyped input map into the handler's input struct and
// runs the handler.
func (gt *GenericTool[TInput]) Execute(ctx context.Context, input map[string]any) (string, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to encode input: %w", err)
	}

	var typed TInput
	if err := json.Unmarshal(raw, &typed); err != nil {
		return "", fmt.Errorf("invalid input for %s: %w", gt.name, err)
	}

	return gt.handler(ctx, typed)
}

var _ Tool = (*GenericTool[struct{}])(nil)
