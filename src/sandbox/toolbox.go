package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/parleyhq/parley/src/chat"
)

// Executor is the function shape middleware wraps.
type Executor func(ctx context.Context, name string, input map[string]any) Result

// Middleware wraps an Executor to add behavior around every execution.
type Middleware func(next Executor) Executor

// Toolbox holds the registered tool set and dispatches executions. All
// failures, including unknown tool names, come back as is_error results so
// the agentic loop can always produce a tool_result block.
type Toolbox struct {
	tools      map[string]Tool
	middleware []Middleware
	logger     *slog.Logger
}

// NewToolbox creates an empty toolbox.
func NewToolbox(logger *slog.Logger) *Toolbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Toolbox{
		tools:  make(map[string]Tool),
		logger: logger.With("component", "sandbox"),
	}
}

// Register adds a tool. Duplicate names are a programming error.
func (tb *Toolbox) Register(tool Tool) error {
	name := tool.GetName()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if _, exists := tb.tools[name]; exists {
		return fmt.Errorf("tool %s is already registered", name)
	}
	tb.tools[name] = tool
	return nil
}

// Use registers middleware applied to all executions, outermost first.
func (tb *Toolbox) Use(mw Middleware) {
	tb.middleware = append(tb.middleware, mw)
}

// Has reports whether a tool is registered.
func (tb *Toolbox) Has(name string) bool {
	_, ok := tb.tools[name]
	return ok
}

// Schemas returns the tool schemas in stable name order, ready to attach
// to a model request.
func (tb *Toolbox) Schemas() []chat.ToolSchema {
	names := make([]string, 0, len(tb.tools))
	for name := range tb.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	schemas := make([]chat.ToolSchema, 0, len(names))
	for _, name := range names {
		schemas = append(schemas, Schema(tb.tools[name]))
	}
	return schemas
}

// Execute runs the named tool. It never returns a Go error: unknown names,
// handler errors and panics all surface as is_error results.
func (tb *Toolbox) Execute(ctx context.Context, name string, input map[string]any) Result {
	exec := tb.dispatch
	for i := len(tb.middleware) - 1; i >= 0; i-- {
		exec = tb.middleware[i](exec)
	}
	return exec(ctx, name, input)
}

func (tb *Toolbox) dispatch(ctx context.Context, name string, input map[string]any) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			tb.logger.Error("tool panicked", "tool", name, "panic", r)
			res = Result{Output: fmt.Sprintf("tool %s panicked: %v", name, r), IsError: true}
		}
	}()

	tool, ok := tb.tools[name]
	if !ok {
		return Result{Output: fmt.Sprintf("Unknown tool: %s", name), IsError: true}
	}

	output, err := tool.Execute(ctx, input)
	if err != nil {
		tb.logger.Warn("tool execution failed", "tool", name, "error", err)
		return Result{Output: err.Error(), IsError: true}
	}
	return Result{Output: output}
}

// LoggingMiddleware logs every tool execution at debug level.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next Executor) Executor {
		return func(ctx context.Context, name string, input map[string]any) Result {
			logger.Debug("executing tool", "tool", name)
			result := next(ctx, name, input)
			logger.Debug("tool finished", "tool", name, "is_error", result.IsError, "output_size", len(result.Output))
			return result
		}
	}
}
