package builtin

import (
	"context"
	"fmt"

	"conductor/internal/logging"
	"conductor/internal/tools"
)

// ThinkTool returns a scratchpad tool. It performs no side effects; the value
// is that the model's reasoning appears in the transcript and the activity
// stream, where the run loop and observers can see it.
func ThinkTool() *tools.Tool {
	return &tools.Tool{
		Name:        "think",
		Description: "Record a reasoning step without taking any action. Use this to plan before acting.",
		Execute:     executeThink,
		Schema: tools.ToolSchema{
			Required: []string{"thought"},
			Properties: map[string]tools.Property{
				"thought": {
					Type:        "string",
					Description: "The reasoning step to record",
				},
			},
		},
	}
}

func executeThink(ctx context.Context, args map[string]any) (string, error) {
	thought, _ := args["thought"].(string)
	if thought == "" {
		return "", fmt.Errorf("thought is required")
	}
	logging.ToolsDebug("think: %d chars", len(thought))
	return "Thought recorded.", nil
}

// CompleteToolName is the terminal tool an agent calls to end its run and
// report the outcome. The run loop treats a call to this tool as the signal
// that the agent is done.
const CompleteToolName = "complete"

// CompleteTool returns the terminal tool. The summary argument becomes the
// agent's final result text.
func CompleteTool() *tools.Tool {
	return &tools.Tool{
		Name:        CompleteToolName,
		Description: "Signal that the task is complete and report the final result. Call this exactly once, when done.",
		Execute:     executeComplete,
		Schema: tools.ToolSchema{
			Required: []string{"summary"},
			Properties: map[string]tools.Property{
				"summary": {
					Type:        "string",
					Description: "Final summary of what was accomplished",
				},
			},
		},
	}
}

func executeComplete(ctx context.Context, args map[string]any) (string, error) {
	summary, _ := args["summary"].(string)
	if summary == "" {
		return "", fmt.Errorf("summary is required")
	}
	logging.Tools("complete: %d chars", len(summary))
	return summary, nil
}
