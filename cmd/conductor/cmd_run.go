package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"conductor/internal/agent"
	"conductor/internal/delegation"
	"conductor/internal/logging"
	"conductor/internal/routing"
	"conductor/internal/tools/builtin"
	"conductor/internal/types"

	"github.com/spf13/cobra"
)

var runAgentFlag string

var runCmd = &cobra.Command{
	Use:   "run [request]",
	Short: "Route a request to the right model tier and run the main agent loop",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRequest,
}

func init() {
	runCmd.Flags().StringVar(&runAgentFlag, "agent", "", "run a named agent definition instead of the main loop")
}

const mainSystemPrompt = `You are conductor, an autonomous coding assistant
operating on the user's working tree. Work through the available tools: read
and search before you edit, keep changes minimal, and verify what you changed.
For a focused sub-task, use delegate_task rather than interleaving it with the
main line of work. When the request is fulfilled, call the "complete" tool
with a concise summary of what you did.`

func runRequest(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	app, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	request := strings.Join(args, " ")

	def, err := resolveDefinition(ctx, app, request)
	if err != nil {
		return err
	}

	exec, err := agent.New(def, agent.Deps{
		LLM:      app.client,
		Registry: app.registry,
		Bus:      app.bus,
		Store:    recorder(app.runs),
		Activity: func(chunk string) {
			fmt.Print(chunk)
		},
	})
	if err != nil {
		return err
	}

	result, err := exec.Run(ctx, map[string]any{"request": request})
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(result.Text())
	if result.BudgetExceeded {
		fmt.Printf("\n(stopped at budget after %d turns, %v)\n",
			result.Turns, result.Elapsed.Round(time.Millisecond))
	}
	return nil
}

// resolveDefinition picks a named definition or synthesizes the main-loop
// definition for the routed model tier.
func resolveDefinition(ctx context.Context, app *app, request string) (types.AgentDefinition, error) {
	if runAgentFlag != "" {
		def, ok := app.defs.Get(runAgentFlag)
		if !ok {
			return types.AgentDefinition{}, fmt.Errorf("unknown agent %q (have: %s)",
				runAgentFlag, strings.Join(app.defs.Names(), ", "))
		}
		return *def, nil
	}

	selector := routing.SelectorAuto
	if modelFlag != "" {
		selector = modelFlag
	}
	decision := app.chain.Route(ctx, &routing.Request{
		Selector:    selector,
		UserMessage: request,
	})
	logging.Session("routed to %s (source=%s)", decision.Model, decision.Metadata.Source)

	return types.AgentDefinition{
		Name:        "main",
		ModelConfig: types.ModelConfig{Tier: decision.Model},
		ToolConfig: types.ToolConfig{
			Tools: append([]string{delegation.ToolName}, builtin.ActToolNames...),
		},
		RunConfig: types.RunConfig{MaxTurns: 50, MaxTimeMinutes: 30},
		PromptConfig: types.PromptConfig{
			SystemPrompt:  mainSystemPrompt,
			QueryTemplate: "${request}",
		},
		InputConfig: types.InputConfig{
			Inputs: []types.InputSpec{{Name: "request", Type: "string", Required: true}},
		},
	}, nil
}
