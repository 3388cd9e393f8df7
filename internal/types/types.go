package types

import (
	"time"
)

// =============================================================================
// CONVERSATION
// =============================================================================

// Turn is one entry in a conversation history.
type Turn struct {
	Role    string `json:"role"` // "user", "assistant", "system", "tool"
	Content string `json:"content"`

	// ToolActivity marks turns that carry tool calls or tool responses.
	// The router's classifier window keeps only conversational turns.
	ToolActivity bool `json:"tool_activity,omitempty"`

	Timestamp time.Time `json:"timestamp,omitempty"`
}

// =============================================================================
// ROUTING
// =============================================================================

// RoutingMetadata explains how a routing decision was reached.
type RoutingMetadata struct {
	Source    string `json:"source"` // "user", "classifier", "default"
	LatencyMs int64  `json:"latency_ms"`
	Reasoning string `json:"reasoning,omitempty"`
}

// RoutingDecision names the model for the next call. A nil *RoutingDecision
// from a strategy means "does not apply, defer to the next strategy".
type RoutingDecision struct {
	Model    string          `json:"model"`
	Metadata RoutingMetadata `json:"metadata"`
}

// =============================================================================
// AGENT DEFINITIONS
// =============================================================================

// ModelConfig selects and tunes the model tier for an agent.
type ModelConfig struct {
	Tier           string  `json:"tier" yaml:"tier"` // model id, e.g. the fast or capable tier
	Temperature    float64 `json:"temperature" yaml:"temperature"`
	TopP           float64 `json:"top_p" yaml:"top_p"`
	ThinkingBudget int     `json:"thinking_budget" yaml:"thinking_budget"` // tokens; 0 disables
}

// ToolConfig whitelists the tools an agent may invoke.
type ToolConfig struct {
	Tools []string `json:"tools" yaml:"tools"`
}

// RunConfig bounds an agent run. Both bounds are enforced concurrently.
type RunConfig struct {
	MaxTimeMinutes int `json:"max_time_minutes" yaml:"max_time_minutes"`
	MaxTurns       int `json:"max_turns" yaml:"max_turns"` // 0 = unbounded
}

// QueryBuilder renders the initial user query from validated inputs.
type QueryBuilder func(inputs map[string]interface{}) string

// PromptConfig carries the system prompt and the query construction rule.
// QueryBuilder wins when set; otherwise QueryTemplate is rendered with
// ${name} substitution from the inputs.
type PromptConfig struct {
	SystemPrompt  string       `json:"system_prompt" yaml:"system_prompt"`
	QueryTemplate string       `json:"query_template" yaml:"query_template"`
	QueryBuilder  QueryBuilder `json:"-" yaml:"-"`
}

// InputSpec declares one named input of an agent.
type InputSpec struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"` // "string", "number", "boolean", "object", "array"
	Required    bool   `json:"required" yaml:"required"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// InputConfig declares the named inputs an agent accepts.
type InputConfig struct {
	Inputs []InputSpec `json:"inputs" yaml:"inputs"`
}

// OutputConfig requests structured output from the agent's final answer.
type OutputConfig struct {
	Schema     map[string]interface{} `json:"schema" yaml:"schema"`
	OutputName string                 `json:"output_name" yaml:"output_name"`
}

// AgentDefinition is the static specification of one agent role.
// Immutable after construction; may be built dynamically (e.g. with a
// generated system prompt) or loaded from a YAML file.
type AgentDefinition struct {
	Name         string        `json:"name" yaml:"name"`
	ModelConfig  ModelConfig   `json:"model_config" yaml:"model"`
	ToolConfig   ToolConfig    `json:"tool_config" yaml:"tools_config"`
	RunConfig    RunConfig     `json:"run_config" yaml:"run"`
	PromptConfig PromptConfig  `json:"prompt_config" yaml:"prompt"`
	InputConfig  InputConfig   `json:"input_config" yaml:"input"`
	OutputConfig *OutputConfig `json:"output_config,omitempty" yaml:"output,omitempty"`
}

// MaxTime returns the wall-clock bound as a duration.
func (d *AgentDefinition) MaxTime() time.Duration {
	if d.RunConfig.MaxTimeMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(d.RunConfig.MaxTimeMinutes) * time.Minute
}

// =============================================================================
// AGENT RUNS
// =============================================================================

// AgentEvent is one entry in the raw event stream of an agent run.
type AgentEvent struct {
	Type    string `json:"type"` // "text", "thought", "tool_use", "tool_result", "done", "error"
	Content string `json:"content,omitempty"`
	Tool    string `json:"tool,omitempty"`
	Input   string `json:"input,omitempty"`
}

// AgentRunResult is produced once per run and never mutated after return.
//
// Structured reports whether Result carries schema-validated output; when a
// schema was requested but validation failed, Result holds the raw text and
// Structured is false. BudgetExceeded marks runs that hit the time or turn
// bound — a normal, reportable outcome, not a failure.
type AgentRunResult struct {
	Result         interface{}   `json:"result"`
	RawEvents      []AgentEvent  `json:"raw_events"`
	Structured     bool          `json:"structured"`
	BudgetExceeded bool          `json:"budget_exceeded"`
	Turns          int           `json:"turns"`
	Elapsed        time.Duration `json:"elapsed"`
}

// Text returns the result as a string when it is one, else "".
func (r *AgentRunResult) Text() string {
	if s, ok := r.Result.(string); ok {
		return s
	}
	return ""
}

// =============================================================================
// DELEGATION
// =============================================================================

// DelegationSnapshot pairs the opaque snapshot identifiers taken around a
// delegated run. Either may be empty when best-effort capture failed; the
// pair is only usable for diffing when both are set.
type DelegationSnapshot struct {
	BeforeID string `json:"before_id"`
	AfterID  string `json:"after_id"`
}

// Usable reports whether both snapshots were captured.
func (s DelegationSnapshot) Usable() bool {
	return s.BeforeID != "" && s.AfterID != ""
}
