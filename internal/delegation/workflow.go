// Package delegation hands a task to a purpose-built sub-agent: it
// synthesizes a specialized system prompt, persists it, snapshots the
// repository around the run, and reports what changed (act mode) or what the
// agent proposes to change (propose mode).
package delegation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"conductor/internal/agent"
	"conductor/internal/hooks"
	"conductor/internal/logging"
	"conductor/internal/snapshot"
	"conductor/internal/tools"
	"conductor/internal/tools/builtin"
	"conductor/internal/types"
)

// Execution modes.
const (
	ModeAct     = "act"     // agent edits the working tree directly
	ModePropose = "propose" // agent is read-only and returns a change list
)

// Request describes one task to delegate.
type Request struct {
	TaskName    string `json:"task_name"`
	Summary     string `json:"summary"`
	UserRequest string `json:"user_request"`
	Mode        string `json:"mode"` // ModeAct or ModePropose; empty defaults to act
}

// ProposedChange is one entry of a propose-mode change list.
type ProposedChange struct {
	FilePath  string `json:"filePath"`
	Action    string `json:"action"` // "create", "modify", "delete"
	Content   string `json:"content,omitempty"`
	Rationale string `json:"rationale,omitempty"`

	// Preview carries line add/remove counts against the working tree.
	Preview *snapshot.PreviewStats `json:"preview,omitempty"`
}

// Result is the outcome of one delegated task.
type Result struct {
	TaskName        string           `json:"task_name"`
	PromptPath      string           `json:"prompt_path"`
	Summary         string           `json:"summary"`
	ModifiedFiles   []string         `json:"modified_files,omitempty"`
	ProposedChanges []ProposedChange `json:"proposed_changes,omitempty"`
	BudgetExceeded  bool             `json:"budget_exceeded,omitempty"`
	Turns           int              `json:"turns"`
}

// Deps are the workflow's collaborators. LLM and Registry are required;
// Bus, Snapshots and Store are optional (their steps degrade gracefully).
type Deps struct {
	LLM       types.LLMClient
	Registry  *tools.Registry
	Bus       *hooks.Bus
	Snapshots snapshot.Provider
	Store     agent.Recorder
}

// Config tunes the workflow.
type Config struct {
	TasksDir     string // where synthesized prompts are persisted
	FastModel    string // prompt synthesis tier
	CapableModel string // task execution tier

	// Run bounds for the delegated agent; zero values use defaults.
	MaxTurns       int
	MaxTimeMinutes int
}

const (
	defaultMaxTurns       = 30
	defaultMaxTimeMinutes = 15
)

// Workflow delegates tasks to dynamically-defined sub-agents.
type Workflow struct {
	deps Deps
	cfg  Config
}

// NewWorkflow validates dependencies and builds a workflow.
func NewWorkflow(deps Deps, cfg Config) (*Workflow, error) {
	if deps.LLM == nil {
		return nil, fmt.Errorf("delegation: LLM client is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("delegation: tool registry is required")
	}
	if cfg.TasksDir == "" {
		cfg.TasksDir = filepath.Join(".conductor", "tasks")
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = defaultMaxTurns
	}
	if cfg.MaxTimeMinutes <= 0 {
		cfg.MaxTimeMinutes = defaultMaxTimeMinutes
	}
	return &Workflow{deps: deps, cfg: cfg}, nil
}

// Delegate runs the full workflow: synthesize, persist, snapshot, execute,
// diff, assemble.
func (w *Workflow) Delegate(ctx context.Context, req Request) (*Result, error) {
	mode := req.Mode
	if mode == "" {
		mode = ModeAct
	}
	if mode != ModeAct && mode != ModePropose {
		return nil, &types.ValidationError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q", req.Mode)}
	}
	if req.UserRequest == "" {
		return nil, &types.ValidationError{Field: "user_request", Reason: "request text is required"}
	}

	slug := Slug(req.TaskName, "task")
	timer := logging.StartTimer(logging.CategoryDelegation, "Delegate")
	defer timer.Stop()
	logging.Delegation("delegating task=%s mode=%s", slug, mode)

	systemPrompt, err := w.synthesizePrompt(ctx, req, mode)
	if err != nil {
		return nil, err
	}

	// Persist the prompt and capture the pre-snapshot concurrently. Only
	// the write failure propagates; the snapshot is best-effort.
	var (
		promptPath string
		beforeID   string
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var werr error
		promptPath, werr = w.persistPrompt(slug, systemPrompt)
		return werr
	})
	g.Go(func() error {
		beforeID = w.capture(gCtx, "before-"+slug)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	runResult, err := w.execute(ctx, slug, systemPrompt, req.UserRequest, mode)
	if err != nil {
		return nil, err
	}

	result := &Result{
		TaskName:       slug,
		PromptPath:     promptPath,
		BudgetExceeded: runResult.BudgetExceeded,
		Turns:          runResult.Turns,
	}

	if mode == ModeAct {
		result.Summary = runResult.Text()
		result.ModifiedFiles = w.changedFiles(ctx, beforeID, slug)
		return result, nil
	}

	w.assembleProposal(ctx, result, runResult)
	return result, nil
}

// synthesizePrompt authors the specialized system prompt for the task.
// An empty model response is a hard failure.
func (w *Workflow) synthesizePrompt(ctx context.Context, req Request, mode string) (string, error) {
	if sw, ok := w.deps.LLM.(types.ModelSwitcher); ok && w.cfg.FastModel != "" {
		sw.SetModel(w.cfg.FastModel)
	}

	user := fmt.Sprintf("Task: %s\n\nSummary: %s\n\nRequest:\n%s\n\nMode: %s",
		req.TaskName, req.Summary, req.UserRequest, mode)

	out, err := w.deps.LLM.CompleteWithSystem(ctx, synthesisInstructions(mode), user)
	if err != nil {
		return "", &types.UpstreamCallError{Op: "delegation.synthesize", Cause: err}
	}
	if out == "" {
		return "", &types.UpstreamCallError{Op: "delegation.synthesize", Cause: fmt.Errorf("model returned empty prompt")}
	}
	logging.DelegationDebug("synthesized prompt (%d bytes) for %s", len(out), req.TaskName)
	return out, nil
}

// persistPrompt writes the synthesized prompt under the tasks directory.
func (w *Workflow) persistPrompt(slug, prompt string) (string, error) {
	dir := filepath.Join(w.cfg.TasksDir, slug)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create task directory: %w", err)
	}
	path := filepath.Join(dir, "prompt.md")
	if err := os.WriteFile(path, []byte(prompt), 0o644); err != nil {
		return "", fmt.Errorf("persist prompt: %w", err)
	}
	return path, nil
}

// capture takes a best-effort snapshot; failures are logged and swallowed.
func (w *Workflow) capture(ctx context.Context, label string) string {
	if w.deps.Snapshots == nil {
		return ""
	}
	id, err := w.deps.Snapshots.Snapshot(ctx, label)
	if err != nil {
		logging.DelegationWarn("snapshot %s failed: %v", label, err)
		return ""
	}
	return id
}

// execute builds the dynamic agent definition and runs it.
func (w *Workflow) execute(ctx context.Context, slug, systemPrompt, userRequest, mode string) (*types.AgentRunResult, error) {
	toolNames := builtin.ReadOnlyToolNames
	if mode == ModeAct {
		toolNames = builtin.ActToolNames
	}

	def := types.AgentDefinition{
		Name: slug,
		ModelConfig: types.ModelConfig{
			Tier: w.cfg.CapableModel,
		},
		ToolConfig: types.ToolConfig{Tools: toolNames},
		RunConfig: types.RunConfig{
			MaxTurns:       w.cfg.MaxTurns,
			MaxTimeMinutes: w.cfg.MaxTimeMinutes,
		},
		PromptConfig: types.PromptConfig{
			SystemPrompt:  systemPrompt,
			QueryTemplate: "${request}",
		},
		InputConfig: types.InputConfig{
			Inputs: []types.InputSpec{{Name: "request", Type: "string", Required: true}},
		},
	}
	if mode == ModePropose {
		def.OutputConfig = &types.OutputConfig{Schema: proposalSchema()}
	}

	exec, err := agent.New(def, agent.Deps{
		LLM:      w.deps.LLM,
		Registry: w.deps.Registry,
		Bus:      w.deps.Bus,
		Store:    w.deps.Store,
		Mode:     mode,
	})
	if err != nil {
		return nil, fmt.Errorf("delegation: %w", err)
	}
	return exec.Run(ctx, map[string]any{"request": userRequest})
}

// changedFiles captures the post-snapshot and diffs against the pre-snapshot.
// All failures collapse to an empty list.
func (w *Workflow) changedFiles(ctx context.Context, beforeID, slug string) []string {
	if w.deps.Snapshots == nil || beforeID == "" {
		return nil
	}
	afterID := w.capture(ctx, "after-"+slug)
	if afterID == "" {
		return nil
	}
	files, err := w.deps.Snapshots.Diff(ctx, beforeID, afterID)
	if err != nil {
		logging.DelegationWarn("diff failed for %s: %v", slug, err)
		return nil
	}
	return files
}

// assembleProposal decodes the structured change list; parse failures keep
// the raw text as the summary with no changes.
func (w *Workflow) assembleProposal(ctx context.Context, result *Result, run *types.AgentRunResult) {
	obj, ok := run.Result.(map[string]any)
	if !run.Structured || !ok {
		result.Summary = run.Text()
		return
	}

	if s, ok := obj["summary"].(string); ok {
		result.Summary = s
	}
	rawChanges, _ := obj["proposedChanges"].([]any)
	changes := make([]ProposedChange, 0, len(rawChanges))
	for _, raw := range rawChanges {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		change := ProposedChange{}
		change.FilePath, _ = m["filePath"].(string)
		change.Action, _ = m["action"].(string)
		change.Content, _ = m["content"].(string)
		change.Rationale, _ = m["rationale"].(string)
		if change.FilePath == "" || change.Action == "" {
			continue
		}
		changes = append(changes, change)
	}

	// Diff previews are independent per change.
	g, _ := errgroup.WithContext(ctx)
	for i := range changes {
		if changes[i].Action == "delete" || changes[i].Content == "" {
			continue
		}
		i := i
		g.Go(func() error {
			stats := snapshot.Preview(changes[i].FilePath, changes[i].Content)
			changes[i].Preview = &stats
			return nil
		})
	}
	g.Wait()

	result.ProposedChanges = changes
}

func proposalSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary": map[string]any{"type": "string"},
			"proposedChanges": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"filePath":  map[string]any{"type": "string"},
						"action":    map[string]any{"type": "string", "enum": []any{"create", "modify", "delete"}},
						"content":   map[string]any{"type": "string"},
						"rationale": map[string]any{"type": "string"},
					},
					"required": []any{"filePath", "action"},
				},
			},
		},
		"required": []any{"summary", "proposedChanges"},
	}
}

func synthesisInstructions(mode string) string {
	base := `You write system prompts for focused coding agents. Given a task
name, summary, and the user's request, author a complete system prompt for an
agent that will carry out exactly that task. The prompt must:
- establish the agent's role and the task's goal in concrete terms
- name the relevant constraints from the request
- instruct the agent to finish every run by calling the "complete" tool with
  a concise summary of what it did`

	if mode == ModePropose {
		return base + `
- forbid any modification of files; the agent only inspects
- require the completion summary to be a JSON object of the form
  {"summary": string, "proposedChanges": [{"filePath": string, "action":
  "create"|"modify"|"delete", "content"?: string, "rationale"?: string}]}

Respond with the system prompt text only.`
	}
	return base + `

Respond with the system prompt text only.`
}
