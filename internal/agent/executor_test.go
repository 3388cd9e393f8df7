package agent

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"conductor/internal/hooks"
	"conductor/internal/tools"
	"conductor/internal/types"
)

func testDefinition() types.AgentDefinition {
	return types.AgentDefinition{
		Name: "tester",
		ModelConfig: types.ModelConfig{
			Tier: "fast-model",
		},
		ToolConfig: types.ToolConfig{
			Tools: []string{"lookup", "complete"},
		},
		RunConfig: types.RunConfig{
			MaxTimeMinutes: 1,
			MaxTurns:       10,
		},
		PromptConfig: types.PromptConfig{
			SystemPrompt:  "You are a test agent.",
			QueryTemplate: "Investigate ${topic}",
		},
		InputConfig: types.InputConfig{
			Inputs: []types.InputSpec{
				{Name: "topic", Type: "string", Required: true},
			},
		},
	}
}

func testAgentRegistry() *tools.Registry {
	r := tools.NewRegistry()
	r.MustRegister(&tools.Tool{
		Name:        "lookup",
		Description: "returns a canned answer",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "lookup says 42", nil
		},
	})
	r.MustRegister(&tools.Tool{
		Name:        "complete",
		Description: "terminal",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			summary, _ := args["summary"].(string)
			return summary, nil
		},
	})
	return r
}

func TestNewValidation(t *testing.T) {
	llm := &scriptedLLM{}
	reg := testAgentRegistry()

	cases := []struct {
		name   string
		mutate func(*types.AgentDefinition, *Deps)
	}{
		{"missing name", func(d *types.AgentDefinition, _ *Deps) { d.Name = "" }},
		{"missing system prompt", func(d *types.AgentDefinition, _ *Deps) { d.PromptConfig.SystemPrompt = "" }},
		{"missing llm", func(_ *types.AgentDefinition, deps *Deps) { deps.LLM = nil }},
		{"missing registry", func(_ *types.AgentDefinition, deps *Deps) { deps.Registry = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			def := testDefinition()
			deps := Deps{LLM: llm, Registry: reg}
			tc.mutate(&def, &deps)
			if _, err := New(def, deps); err == nil {
				t.Fatal("expected constructor error")
			}
		})
	}
}

func TestRunInputValidation(t *testing.T) {
	e, err := New(testDefinition(), Deps{LLM: &scriptedLLM{}, Registry: testAgentRegistry()})
	if err != nil {
		t.Fatal(err)
	}

	_, err = e.Run(context.Background(), map[string]any{})
	if !types.IsValidation(err) {
		t.Fatalf("expected ValidationError for missing input, got %v", err)
	}

	_, err = e.Run(context.Background(), map[string]any{"topic": 7})
	if !types.IsValidation(err) {
		t.Fatalf("expected ValidationError for mistyped input, got %v", err)
	}
}

func TestRunPlainAnswer(t *testing.T) {
	llm := &scriptedLLM{
		script: []*types.LLMToolResponse{
			{Text: "the answer is 42", StopReason: "end_turn"},
		},
	}
	e, err := New(testDefinition(), Deps{LLM: llm, Registry: testAgentRegistry()})
	if err != nil {
		t.Fatal(err)
	}

	result, err := e.Run(context.Background(), map[string]any{"topic": "everything"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Text() != "the answer is 42" {
		t.Errorf("result = %q", result.Text())
	}
	if result.Turns != 1 || result.BudgetExceeded || result.Structured {
		t.Errorf("unexpected result: %+v", result)
	}

	// The rendered query reached the model.
	if !strings.Contains(llm.seen[0][0].Content, "everything") {
		t.Errorf("query not rendered: %q", llm.seen[0][0].Content)
	}
	// The tier was selected.
	if llm.GetModel() != "fast-model" {
		t.Errorf("model = %q, want fast-model", llm.GetModel())
	}
	// Terminal done event recorded.
	last := result.RawEvents[len(result.RawEvents)-1]
	if last.Type != "done" {
		t.Errorf("last event = %+v, want done", last)
	}
}

func TestRunToolLoopThenComplete(t *testing.T) {
	llm := &scriptedLLM{
		script: []*types.LLMToolResponse{
			{
				ToolCalls: []types.ToolCallRequest{
					{ID: "t1", Name: "lookup", Arguments: map[string]any{}},
				},
			},
			{
				ToolCalls: []types.ToolCallRequest{
					{ID: "t2", Name: "complete", Arguments: map[string]any{"summary": "found it"}},
				},
			},
		},
	}
	rec := &memoryRecorder{}
	e, err := New(testDefinition(), Deps{LLM: llm, Registry: testAgentRegistry(), Store: rec})
	if err != nil {
		t.Fatal(err)
	}

	result, err := e.Run(context.Background(), map[string]any{"topic": "x"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Text() != "found it" {
		t.Errorf("result = %q, want found it", result.Text())
	}
	if result.Turns != 2 {
		t.Errorf("turns = %d, want 2", result.Turns)
	}

	// The second model call saw the first tool result.
	second := llm.seen[1]
	var sawResult bool
	for _, msg := range second {
		for _, tr := range msg.ToolResults {
			if tr.Content == "lookup says 42" {
				sawResult = true
			}
		}
	}
	if !sawResult {
		t.Error("tool result not fed back into the conversation")
	}

	// The run was recorded with its tool calls.
	recs := rec.records()
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].Agent != "tester" || recs[0].Turns != 2 || len(recs[0].ToolCalls) != 2 {
		t.Errorf("unexpected record: %+v", recs[0])
	}
}

func TestRunTurnBudget(t *testing.T) {
	// The model asks for the same tool forever.
	loop := &types.LLMToolResponse{
		Text: "still looking",
		ToolCalls: []types.ToolCallRequest{
			{ID: "t", Name: "lookup", Arguments: map[string]any{}},
		},
	}
	llm := &scriptedLLM{script: []*types.LLMToolResponse{loop, loop, loop, loop, loop}}

	def := testDefinition()
	def.RunConfig.MaxTurns = 3
	e, err := New(def, Deps{LLM: llm, Registry: testAgentRegistry()})
	if err != nil {
		t.Fatal(err)
	}

	result, err := e.Run(context.Background(), map[string]any{"topic": "x"})
	if err != nil {
		t.Fatalf("budget exhaustion must not be an error, got %v", err)
	}
	if !result.BudgetExceeded {
		t.Error("BudgetExceeded should be set")
	}
	if result.Turns != 3 {
		t.Errorf("turns = %d, want 3", result.Turns)
	}
	if result.Text() != "still looking" {
		t.Errorf("partial result = %q", result.Text())
	}
}

func TestRunTimeBudget(t *testing.T) {
	llm := &scriptedLLM{blockCtx: true}

	def := testDefinition()
	def.RunConfig.MaxTimeMinutes = 1
	e, err := New(def, Deps{LLM: llm, Registry: testAgentRegistry()})
	if err != nil {
		t.Fatal(err)
	}

	// Parent context expires quickly; the blocked model call returns its
	// error and the run reports budget exhaustion, not failure.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	result, err := e.Run(ctx, map[string]any{"topic": "x"})
	if err != nil {
		t.Fatalf("time budget must not be an error, got %v", err)
	}
	if !result.BudgetExceeded {
		t.Error("BudgetExceeded should be set")
	}
}

func TestRunModelErrorPropagates(t *testing.T) {
	llm := &scriptedLLM{errs: []error{errors.New("rate limited")}}
	e, err := New(testDefinition(), Deps{LLM: llm, Registry: testAgentRegistry()})
	if err != nil {
		t.Fatal(err)
	}

	_, err = e.Run(context.Background(), map[string]any{"topic": "x"})
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected model error, got %v", err)
	}
}

func TestRunStructuredOutput(t *testing.T) {
	def := testDefinition()
	def.OutputConfig = &types.OutputConfig{
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"verdict": map[string]any{"type": "string"},
			},
			"required": []any{"verdict"},
		},
	}

	t.Run("valid json", func(t *testing.T) {
		llm := &scriptedLLM{script: []*types.LLMToolResponse{
			{Text: "```json\n{\"verdict\": \"pass\"}\n```"},
		}}
		e, _ := New(def, Deps{LLM: llm, Registry: testAgentRegistry()})
		result, err := e.Run(context.Background(), map[string]any{"topic": "x"})
		if err != nil {
			t.Fatal(err)
		}
		if !result.Structured {
			t.Fatal("Structured should be true")
		}
		obj, ok := result.Result.(map[string]any)
		if !ok || obj["verdict"] != "pass" {
			t.Errorf("result = %+v", result.Result)
		}
	})

	t.Run("invalid degrades to text", func(t *testing.T) {
		llm := &scriptedLLM{script: []*types.LLMToolResponse{
			{Text: `{"wrong_field": true}`},
		}}
		e, _ := New(def, Deps{LLM: llm, Registry: testAgentRegistry()})
		result, err := e.Run(context.Background(), map[string]any{"topic": "x"})
		if err != nil {
			t.Fatal(err)
		}
		if result.Structured {
			t.Error("Structured should be false after validation failure")
		}
		if result.Text() != `{"wrong_field": true}` {
			t.Errorf("raw text not preserved: %q", result.Text())
		}
	})

	t.Run("no json degrades to text", func(t *testing.T) {
		llm := &scriptedLLM{script: []*types.LLMToolResponse{
			{Text: "just prose, no object"},
		}}
		e, _ := New(def, Deps{LLM: llm, Registry: testAgentRegistry()})
		result, err := e.Run(context.Background(), map[string]any{"topic": "x"})
		if err != nil {
			t.Fatal(err)
		}
		if result.Structured || result.Text() != "just prose, no object" {
			t.Errorf("unexpected result: %+v", result)
		}
	})
}

func TestRunActivityReceivesThoughts(t *testing.T) {
	llm := &scriptedLLM{script: []*types.LLMToolResponse{
		{Text: "done", ThoughtSummary: "first I will check the file"},
	}}

	var chunks []string
	e, _ := New(testDefinition(), Deps{
		LLM:      llm,
		Registry: testAgentRegistry(),
		Activity: func(chunk string) { chunks = append(chunks, chunk) },
	})

	if _, err := e.Run(context.Background(), map[string]any{"topic": "x"}); err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || chunks[0] != "first I will check the file" {
		t.Errorf("activity chunks = %v", chunks)
	}
}

func TestRunActivitySilentAfterReturn(t *testing.T) {
	// A streaming tool that waits out the run context and then emits one
	// more chunk before returning. The run must drain that chunk before Run
	// returns; nothing may reach Activity afterwards.
	reg := testAgentRegistry()
	reg.MustRegister(&tools.Tool{
		Name:        "drip",
		Description: "emits after cancellation",
		ExecuteStream: func(ctx context.Context, args map[string]any, emit func(string)) (string, error) {
			<-ctx.Done()
			time.Sleep(10 * time.Millisecond)
			emit("late chunk")
			return "", ctx.Err()
		},
	})

	llm := &scriptedLLM{script: []*types.LLMToolResponse{
		{ToolCalls: []types.ToolCallRequest{
			{ID: "d1", Name: "drip", Arguments: map[string]any{}},
		}},
	}}

	var returned, late atomic.Bool
	def := testDefinition()
	def.ToolConfig.Tools = []string{"drip"}
	e, err := New(def, Deps{
		LLM:      llm,
		Registry: reg,
		Activity: func(chunk string) {
			if returned.Load() {
				late.Store(true)
			}
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result, err := e.Run(ctx, map[string]any{"topic": "x"})
	returned.Store(true)
	if err != nil {
		t.Fatalf("cancellation must not be an error, got %v", err)
	}
	if !result.BudgetExceeded {
		t.Error("BudgetExceeded should be set")
	}

	// Let any stray goroutine get its chance to misfire.
	time.Sleep(50 * time.Millisecond)
	if late.Load() {
		t.Error("Activity callback fired after Run returned")
	}
}

func TestRunHookRewritesQuery(t *testing.T) {
	bus := hooks.NewBus()
	bus.Subscribe(hooks.TypeExecutionRequest, func(msg hooks.Message) {
		req := msg.Payload.(hooks.ExecutionRequest)
		if req.EventName != hooks.EventBeforeModel {
			return
		}
		mr := req.Input.(hooks.ModelRequest)
		mr.Turns[len(mr.Turns)-1].Content = "REWRITTEN"
		bus.Respond(hooks.ExecutionResponse{
			CorrelationID: req.CorrelationID,
			Success:       true,
			Output:        mr,
		})
	})

	llm := &scriptedLLM{script: []*types.LLMToolResponse{{Text: "ok"}}}
	e, _ := New(testDefinition(), Deps{LLM: llm, Registry: testAgentRegistry(), Bus: bus})

	if _, err := e.Run(context.Background(), map[string]any{"topic": "x"}); err != nil {
		t.Fatal(err)
	}
	if llm.seen[0][0].Content != "REWRITTEN" {
		t.Errorf("hook rewrite not applied: %q", llm.seen[0][0].Content)
	}
}

func TestRunRecorderFailureIsAbsorbed(t *testing.T) {
	llm := &scriptedLLM{script: []*types.LLMToolResponse{{Text: "fine"}}}
	rec := &memoryRecorder{err: errors.New("disk full")}
	e, _ := New(testDefinition(), Deps{LLM: llm, Registry: testAgentRegistry(), Store: rec})

	result, err := e.Run(context.Background(), map[string]any{"topic": "x"})
	if err != nil || result.Text() != "fine" {
		t.Fatalf("recording failure must not affect the run: (%+v, %v)", result, err)
	}
}
