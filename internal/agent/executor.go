// Package agent runs bounded sub-agents: given an immutable definition and
// validated inputs, an Executor drives the model/tool loop until the agent
// completes, answers plainly, or hits its time or turn budget.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"conductor/internal/hooks"
	"conductor/internal/logging"
	"conductor/internal/scheduler"
	"conductor/internal/tools"
	"conductor/internal/tools/builtin"
	"conductor/internal/types"

	"github.com/google/uuid"
)

// Recorder persists completed runs. Implementations must never fail a run:
// the executor logs recording errors and moves on.
type Recorder interface {
	RecordRun(ctx context.Context, rec RunRecord) error
}

// RunRecord is the persisted shape of one completed run.
type RunRecord struct {
	ID             string
	Agent          string
	Model          string
	Mode           string
	StartedAt      time.Time
	CompletedAt    time.Time
	Turns          int
	BudgetExceeded bool
	Structured     bool
	Summary        string
	ToolCalls      []ToolCallRecord
}

// ToolCallRecord is one executed tool call within a run.
type ToolCallRecord struct {
	CallID     string
	Tool       string
	Status     string
	DurationMs int64
	Error      string
}

// Deps are the collaborators an Executor needs. LLM and Registry are
// required; Bus, Store and Activity are optional.
type Deps struct {
	LLM      types.LLMClient
	Registry *tools.Registry
	Bus      *hooks.Bus
	Store    Recorder

	// Mode tags recorded runs (e.g. "act", "propose"). Informational only.
	Mode string

	// Activity receives incremental reasoning chunks during the run,
	// strictly before Run returns.
	Activity func(chunk string)
}

// Executor runs one agent definition. Safe to call Run multiple times; each
// run owns its own scheduler and context.
type Executor struct {
	def  types.AgentDefinition
	deps Deps
}

// New validates the definition and dependencies and builds an executor.
func New(def types.AgentDefinition, deps Deps) (*Executor, error) {
	if def.Name == "" {
		return nil, &types.ValidationError{Field: "name", Reason: "agent name is required"}
	}
	if def.PromptConfig.SystemPrompt == "" {
		return nil, &types.ValidationError{Field: "prompt.system_prompt", Reason: "system prompt is required"}
	}
	if deps.LLM == nil {
		return nil, fmt.Errorf("agent %s: LLM client is required", def.Name)
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("agent %s: tool registry is required", def.Name)
	}
	return &Executor{def: def, deps: deps}, nil
}

// Definition returns the executor's immutable definition.
func (e *Executor) Definition() types.AgentDefinition {
	return e.def
}

// Run executes the agent loop. Input validation failures return an error;
// budget exhaustion returns a partial result with BudgetExceeded set and a
// nil error.
func (e *Executor) Run(ctx context.Context, inputs map[string]any) (*types.AgentRunResult, error) {
	if err := ValidateInputs(&e.def, inputs); err != nil {
		return nil, err
	}
	query := RenderQuery(&e.def, inputs)
	if query == "" {
		return nil, &types.ValidationError{Field: "query", Reason: "rendered query is empty"}
	}

	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, e.def.MaxTime())
	defer cancel()

	if sw, ok := e.deps.LLM.(types.ModelSwitcher); ok && e.def.ModelConfig.Tier != "" {
		sw.SetModel(e.def.ModelConfig.Tier)
	}

	subset := e.deps.Registry.Subset(e.def.ToolConfig.Tools)
	toolDefs := subset.Definitions(subset.Names())

	logging.Agent("Run %s: starting (tools=%d, max_time=%v, max_turns=%d)",
		e.def.Name, subset.Count(), e.def.MaxTime(), e.def.RunConfig.MaxTurns)

	var (
		events    []types.AgentEvent
		toolCalls []ToolCallRecord
		messages  = []types.ChatMessage{{Role: "user", Content: query}}
		turns     int
		budget    bool
		completed bool
		finalText string
		lastText  string
	)

	for {
		if runCtx.Err() != nil {
			budget = true
			break
		}
		if e.def.RunConfig.MaxTurns > 0 && turns >= e.def.RunConfig.MaxTurns {
			logging.Agent("Run %s: turn budget (%d) exhausted", e.def.Name, e.def.RunConfig.MaxTurns)
			budget = true
			break
		}
		turns++

		messages = e.applyHooks(runCtx, messages)

		resp, err := e.deps.LLM.CompleteConversation(runCtx, e.def.PromptConfig.SystemPrompt, messages, toolDefs)
		if err != nil {
			if runCtx.Err() != nil {
				budget = true
				break
			}
			events = append(events, types.AgentEvent{Type: "error", Content: err.Error()})
			logging.AgentError("Run %s: model call failed: %v", e.def.Name, err)
			return nil, fmt.Errorf("agent %s: %w", e.def.Name, err)
		}

		if resp.ThoughtSummary != "" {
			events = append(events, types.AgentEvent{Type: "thought", Content: resp.ThoughtSummary})
			e.emitActivity(resp.ThoughtSummary)
		}
		if resp.Text != "" {
			events = append(events, types.AgentEvent{Type: "text", Content: resp.Text})
			lastText = resp.Text
		}

		if len(resp.ToolCalls) == 0 {
			finalText = resp.Text
			completed = true
			break
		}

		results, records, ok := e.runBatch(runCtx, subset, resp.ToolCalls, &events)
		toolCalls = append(toolCalls, records...)
		if !ok {
			budget = true
			break
		}

		messages = append(messages,
			types.ChatMessage{Role: "assistant", Content: resp.Text, ToolCalls: resp.ToolCalls},
			types.ChatMessage{Role: "tool", ToolResults: results},
		)

		if summary, done := completionSummary(resp.ToolCalls, results); done {
			finalText = summary
			completed = true
			break
		}
	}

	result := &types.AgentRunResult{
		RawEvents:      events,
		Turns:          turns,
		Elapsed:        time.Since(start),
		BudgetExceeded: budget,
	}

	if completed {
		result.Result = finalText
		e.applyOutputSchema(result, finalText)
		result.RawEvents = append(result.RawEvents, types.AgentEvent{Type: "done"})
	} else {
		// Best-effort partial: the last visible text the model produced.
		result.Result = lastText
		result.RawEvents = append(result.RawEvents, types.AgentEvent{
			Type:    "error",
			Content: budgetReason(runCtx, e.def.RunConfig.MaxTurns),
		})
	}

	logging.Agent("Run %s: finished (turns=%d, elapsed=%v, budget_exceeded=%v, structured=%v)",
		e.def.Name, result.Turns, result.Elapsed.Round(time.Millisecond), result.BudgetExceeded, result.Structured)

	e.record(ctx, start, result, toolCalls)
	return result, nil
}

// applyHooks passes the outgoing request through the hook bus. The rewritten
// final turn is adopted only when it is a plain user turn, matching the
// injector's contract. Hook failures leave the request untouched.
func (e *Executor) applyHooks(ctx context.Context, messages []types.ChatMessage) []types.ChatMessage {
	if e.deps.Bus == nil || len(messages) == 0 {
		return messages
	}
	last := messages[len(messages)-1]
	if last.Role != "user" || last.Content == "" {
		return messages
	}

	turns := make([]types.Turn, len(messages))
	for i, msg := range messages {
		turns[i] = types.Turn{
			Role:         msg.Role,
			Content:      msg.Content,
			ToolActivity: len(msg.ToolCalls) > 0 || len(msg.ToolResults) > 0,
		}
	}

	rewritten := hooks.TransformRequest(ctx, e.deps.Bus, hooks.ModelRequest{
		System: e.def.PromptConfig.SystemPrompt,
		Turns:  turns,
	})
	if len(rewritten.Turns) != len(messages) {
		return messages
	}

	out := make([]types.ChatMessage, len(messages))
	copy(out, messages)
	out[len(out)-1].Content = rewritten.Turns[len(rewritten.Turns)-1].Content
	return out
}

// runBatch executes one batch of tool calls through a run-owned scheduler
// and blocks until the batch completes. ok=false means the run context
// expired while the batch was in flight.
func (e *Executor) runBatch(ctx context.Context, subset *tools.Registry, requests []types.ToolCallRequest, events *[]types.AgentEvent) ([]types.ToolResult, []ToolCallRecord, bool) {
	for _, req := range requests {
		input, _ := json.Marshal(req.Arguments)
		*events = append(*events, types.AgentEvent{
			Type:  "tool_use",
			Tool:  req.Name,
			Input: string(input),
		})
	}

	done := make(chan []*scheduler.ToolCall, 1)
	sched := scheduler.New(subset, scheduler.Callbacks{
		OnOutputUpdate: func(callID, chunk string) {
			e.emitActivity(chunk)
		},
		OnAllComplete: func(calls []*scheduler.ToolCall) {
			done <- calls
		},
	}, scheduler.WithAutoApprove())

	sched.Schedule(ctx, requests)

	// Always wait for the batch: cancellation drives every in-flight call
	// terminal, and OnAllComplete fires only after all tool goroutines have
	// returned. Draining here guarantees no Activity callback outlives Run.
	calls := <-done

	results := make([]types.ToolResult, 0, len(calls))
	records := make([]ToolCallRecord, 0, len(calls))
	for _, call := range calls {
		resp := call.Response()
		result := types.ToolResult{
			ToolUseID: call.Request.ID,
			ToolName:  call.Request.Name,
		}
		record := ToolCallRecord{
			CallID:     call.Request.ID,
			Tool:       call.Request.Name,
			Status:     call.Status().String(),
			DurationMs: call.DurationMs(),
		}
		if resp != nil {
			result.Content = resp.Content
			if resp.Err != "" {
				result.Content = resp.Err
				result.IsError = true
				record.Error = resp.Err
			}
		}
		*events = append(*events, types.AgentEvent{
			Type:    "tool_result",
			Tool:    call.Request.Name,
			Content: result.Content,
		})
		results = append(results, result)
		records = append(records, record)
	}
	return results, records, ctx.Err() == nil
}

// completionSummary detects a successful terminal-tool call in the batch.
func completionSummary(requests []types.ToolCallRequest, results []types.ToolResult) (string, bool) {
	for i, req := range requests {
		if req.Name != builtin.CompleteToolName {
			continue
		}
		if i < len(results) && !results[i].IsError {
			return results[i].Content, true
		}
	}
	return "", false
}

// applyOutputSchema parses and validates the final answer when the
// definition requests structured output. Failures degrade to raw text.
func (e *Executor) applyOutputSchema(result *types.AgentRunResult, finalText string) {
	if e.def.OutputConfig == nil || e.def.OutputConfig.Schema == nil {
		return
	}

	raw := types.ExtractJSON(finalText)
	if raw == "" {
		logging.AgentWarn("Run %s: structured output requested but no JSON found, degrading to text", e.def.Name)
		return
	}

	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		logging.AgentWarn("Run %s: structured output unparseable (%v), degrading to text", e.def.Name, err)
		return
	}
	if err := ValidateStructured(e.def.OutputConfig.Schema, decoded); err != nil {
		logging.AgentWarn("Run %s: structured output invalid (%v), degrading to text", e.def.Name, err)
		return
	}

	result.Result = decoded
	result.Structured = true
}

func budgetReason(ctx context.Context, maxTurns int) string {
	if ctx.Err() != nil {
		return (&types.BudgetExceededError{Kind: "time", Limit: ctx.Err().Error()}).Error()
	}
	return (&types.BudgetExceededError{Kind: "turns", Limit: fmt.Sprintf("%d", maxTurns)}).Error()
}

func (e *Executor) emitActivity(chunk string) {
	if e.deps.Activity != nil && chunk != "" {
		e.deps.Activity(chunk)
	}
}

// record persists the run, best-effort.
func (e *Executor) record(ctx context.Context, start time.Time, result *types.AgentRunResult, calls []ToolCallRecord) {
	if e.deps.Store == nil {
		return
	}

	summary := result.Text()
	if summary == "" {
		if raw, err := json.Marshal(result.Result); err == nil {
			summary = string(raw)
		}
	}

	rec := RunRecord{
		ID:             uuid.New().String(),
		Agent:          e.def.Name,
		Model:          e.def.ModelConfig.Tier,
		Mode:           e.deps.Mode,
		StartedAt:      start,
		CompletedAt:    time.Now(),
		Turns:          result.Turns,
		BudgetExceeded: result.BudgetExceeded,
		Structured:     result.Structured,
		Summary:        summary,
		ToolCalls:      calls,
	}
	if err := e.deps.Store.RecordRun(ctx, rec); err != nil {
		logging.AgentWarn("Run %s: failed to record run: %v", e.def.Name, err)
	}
}
