package types

import (
	"context"
)

// LLMClient defines the interface for LLM interactions.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// CompleteWithTools sends a prompt with tool definitions and returns response with tool calls.
	// This enables agentic behavior where the LLM can invoke tools to complete tasks.
	CompleteWithTools(ctx context.Context, systemPrompt, userPrompt string, tools []ToolDefinition) (*LLMToolResponse, error)
	// CompleteConversation continues a multi-turn tool conversation. Messages
	// carry prior assistant tool calls and their results so the model can
	// resume where it left off.
	CompleteConversation(ctx context.Context, systemPrompt string, messages []ChatMessage, tools []ToolDefinition) (*LLMToolResponse, error)
}

// SchemaProvider is an optional capability for clients that can enforce a
// JSON schema on the response body. Callers type-assert:
//
//	if sp, ok := client.(types.SchemaProvider); ok && sp.SchemaCapable() { ... }
type SchemaProvider interface {
	SchemaCapable() bool
	CompleteWithSchema(ctx context.Context, systemPrompt, userPrompt, jsonSchema string) (string, error)
}

// ModelSwitcher is an optional capability for clients whose model can be
// changed per call site (the router points one client at different tiers).
type ModelSwitcher interface {
	SetModel(model string)
	GetModel() string
}

// ThinkingProvider is an optional capability for clients that expose the
// model's reasoning stream from the last call.
type ThinkingProvider interface {
	GetLastThoughtSummary() string
	GetLastThinkingTokens() int
}

// ToolDefinition describes a tool that the LLM can invoke.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"` // JSON Schema for parameters
}

// ToolCallRequest represents a tool invocation requested by the LLM.
// Immutable once created; one request produces zero or more output chunks
// and exactly one terminal result.
type ToolCallRequest struct {
	ID        string                 `json:"id"`        // Unique ID for this tool use
	Name      string                 `json:"name"`      // Tool name to invoke
	Arguments map[string]interface{} `json:"arguments"` // Tool arguments
}

// UsageMetadata captures token usage metrics from the LLM.
type UsageMetadata struct {
	InputTokens    int `json:"input_tokens"`
	OutputTokens   int `json:"output_tokens"`
	TotalTokens    int `json:"total_tokens"`
	ThinkingTokens int `json:"thinking_tokens,omitempty"` // Subset of OutputTokens used for thinking
}

// LLMToolResponse is the response from a tool-enabled completion.
type LLMToolResponse struct {
	Text       string            `json:"text"`        // Text content of the response
	ToolCalls  []ToolCallRequest `json:"tool_calls"`  // Tools the LLM wants to invoke
	StopReason string            `json:"stop_reason"` // Why generation stopped
	Usage      UsageMetadata     `json:"usage"`

	// ThoughtSummary contains the model's reasoning process, when the
	// provider exposes it.
	ThoughtSummary string `json:"thought_summary,omitempty"`
}

// ToolResult is the outcome of one executed tool call, fed back to the LLM.
// ToolName is carried for providers whose wire format keys results by
// function name rather than use id.
type ToolResult struct {
	ToolUseID string `json:"tool_use_id"`
	ToolName  string `json:"tool_name,omitempty"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error"`
}

// ChatMessage is one message in a tool-enabled conversation.
// Role is "user", "assistant", or "tool". Assistant messages may carry the
// tool calls the model requested; tool messages carry their results.
type ChatMessage struct {
	Role        string            `json:"role"`
	Content     string            `json:"content"`
	ToolCalls   []ToolCallRequest `json:"tool_calls,omitempty"`
	ToolResults []ToolResult      `json:"tool_results,omitempty"`
}
