package delegation

import (
	"context"
	"encoding/json"
	"fmt"

	"conductor/internal/tools"
)

// ToolName is the registry name of the delegation tool.
const ToolName = "delegate_task"

// Tool exposes the workflow as a registrable tool so agents can delegate
// sub-tasks. Delegated agents do not receive this tool themselves (it is
// absent from the built-in whitelists), which bounds the recursion.
func Tool(w *Workflow) *tools.Tool {
	return &tools.Tool{
		Name: ToolName,
		Description: "Delegate a focused task to a specialized sub-agent. " +
			"Use mode \"act\" to let it edit files, or \"propose\" for a read-only change proposal.",
		Schema: tools.ToolSchema{
			Required: []string{"task_name", "request"},
			Properties: map[string]tools.Property{
				"task_name": {Type: "string", Description: "Short name for the task"},
				"summary":   {Type: "string", Description: "One-sentence summary of the goal"},
				"request":   {Type: "string", Description: "Full description of what the sub-agent should do"},
				"mode":      {Type: "string", Description: "Execution mode", Enum: []any{ModeAct, ModePropose}},
			},
		},
		RequiresApproval: true,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			req := Request{}
			req.TaskName, _ = args["task_name"].(string)
			req.Summary, _ = args["summary"].(string)
			req.UserRequest, _ = args["request"].(string)
			req.Mode, _ = args["mode"].(string)

			result, err := w.Delegate(ctx, req)
			if err != nil {
				return "", fmt.Errorf("delegate_task: %w", err)
			}
			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return "", fmt.Errorf("delegate_task: encode result: %w", err)
			}
			return string(out), nil
		},
	}
}
