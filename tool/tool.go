// Package tool implements the pre-/post-processing tool subsystem. An LLM
// agent asks its model to pick one of its tools (as JSON `{"tool", "parameters"}`)
// before or after the main completion; the chosen tool runs with schema
// validated arguments and reports whether it produced a usable result.
package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentroom/internal/util"
)

// Result is the outcome of a tool run. Completed reports whether Output is
// usable; incomplete results are discarded by the agent and the selection is retried.
type Result struct {
	Output    string `json:"output"`
	Completed bool   `json:"completed"`
}

// Tool defines the interface for extending agent capabilities with external functions.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Be thread-safe if used concurrently
type Tool interface {
	// Name returns the unique identifier the model uses to select this tool.
	Name() string

	// Description returns a human-readable description of what this tool does.
	// It is rendered into the tool selection prompt.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Call executes the tool with structured arguments decoded from the model's selection.
	Call(ctx context.Context, args map[string]any) (Result, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// Names returns the names of tools in order.
func Names(tools []Tool) []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name()
	}
	return names
}

// Find returns the tool called name.
func Find(tools []Tool, name string) (Tool, bool) {
	for _, t := range tools {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}
