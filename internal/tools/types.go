// Package tools provides the tool registry and declared-contract surface the
// scheduler and sub-agent executor operate on.
//
// Every tool is described by a name, a description, and a parameter schema;
// the components that execute tools are agnostic to tool semantics and work
// purely against this declared contract.
package tools

import (
	"context"
)

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
	// Items describes array element schema (required for type="array")
	Items *PropertyItems `json:"items,omitempty"`
}

// PropertyItems describes the schema for array elements.
type PropertyItems struct {
	Type string `json:"type"`
}

// ToolSchema defines the JSON schema for tool arguments.
// This enables LLM tool calling with proper validation.
type ToolSchema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for tool execution.
// Returns the result string and any error.
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// StreamFunc is the signature for streaming tool execution. emit is called
// with incremental output chunks, strictly ordered, before the final result
// is returned.
type StreamFunc func(ctx context.Context, args map[string]any, emit func(chunk string)) (string, error)

// Tool defines one named capability the model can invoke.
type Tool struct {
	// Name is the unique identifier for the tool.
	Name string

	// Description explains what the tool does.
	// Used for LLM tool calling and documentation.
	Description string

	// Execute runs the tool with the given arguments.
	Execute ExecuteFunc

	// ExecuteStream, when set, is preferred over Execute and receives an
	// emit callback for incremental output (e.g. shell stdout lines).
	ExecuteStream StreamFunc

	// Schema defines the expected arguments.
	Schema ToolSchema

	// RequiresApproval marks tools that must be confirmed by the user or
	// policy layer before execution.
	RequiresApproval bool
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil && t.ExecuteStream == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// Streaming reports whether the tool produces incremental output.
func (t *Tool) Streaming() bool {
	return t.ExecuteStream != nil
}

// ToolResult wraps the result of tool execution with metadata.
type ToolResult struct {
	// ToolName identifies which tool was executed.
	ToolName string

	// Result is the string output from the tool.
	Result string

	// Error is set if the tool failed.
	Error error

	// DurationMs is how long execution took.
	DurationMs int64
}

// IsSuccess returns true if the tool executed without error.
func (r *ToolResult) IsSuccess() bool {
	return r.Error == nil
}
