// Package tools provides the black-box tool set available to the
// conversation engine, plus a registry that executes them with timeouts.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hrygo/loom/plugin/ai"
)

// Tool is the interface for agent tools.
type Tool interface {
	// Name returns the tool's identifier.
	Name() string

	// Description returns what the tool does, for the model's benefit.
	Description() string

	// Parameters returns the JSON schema of the tool arguments.
	Parameters() json.RawMessage

	// Run executes the tool with the model-supplied JSON arguments and
	// returns a JSON-serializable result string.
	Run(ctx context.Context, arguments string) (string, error)
}

// BaseTool is a reusable base implementation for tools.
type BaseTool struct {
	name        string
	description string
	parameters  json.RawMessage
	execute     func(ctx context.Context, arguments string) (string, error)
	timeout     time.Duration
}

// ToolOption configures a BaseTool.
type ToolOption func(*BaseTool)

// WithTimeout sets a timeout for tool execution.
func WithTimeout(timeout time.Duration) ToolOption {
	return func(t *BaseTool) {
		t.timeout = timeout
	}
}

// NewBaseTool creates a new BaseTool.
func NewBaseTool(
	name string,
	description string,
	parameters json.RawMessage,
	execute func(ctx context.Context, arguments string) (string, error),
	opts ...ToolOption,
) *BaseTool {
	tool := &BaseTool{
		name:        name,
		description: description,
		parameters:  parameters,
		execute:     execute,
		timeout:     15 * time.Second,
	}
	for _, opt := range opts {
		opt(tool)
	}
	return tool
}

func (t *BaseTool) Name() string                { return t.name }
func (t *BaseTool) Description() string         { return t.description }
func (t *BaseTool) Parameters() json.RawMessage { return t.parameters }

// Run executes the tool under its timeout.
func (t *BaseTool) Run(ctx context.Context, arguments string) (string, error) {
	execCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	return t.execute(execCtx, arguments)
}

// Registry holds the tools available to a turn.
type Registry struct {
	tools  []Tool
	byName map[string]Tool
}

// NewRegistry creates a registry with the given tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{byName: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.tools = append(r.tools, t)
		r.byName[t.Name()] = t
	}
	return r
}

// Definitions returns the provider-level tool definitions.
func (r *Registry) Definitions() []ai.ToolDefinition {
	defs := make([]ai.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, ai.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// Execute runs the named tool. A missing tool or a tool failure is returned
// as an error string result, never as a Go error: the caller feeds it back
// to the model so the conversation can recover.
func (r *Registry) Execute(ctx context.Context, name, arguments string) string {
	tool, ok := r.byName[name]
	if !ok {
		return fmt.Sprintf(`{"error": "unknown tool: %s"}`, name)
	}
	out, err := tool.Run(ctx, arguments)
	if err != nil {
		payload, _ := json.Marshal(map[string]string{"error": err.Error()})
		return string(payload)
	}
	return out
}
