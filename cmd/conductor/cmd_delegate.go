package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"conductor/internal/delegation"

	"github.com/spf13/cobra"
)

var (
	delegateMode string
	delegateTask string
	delegateYes  bool
)

var delegateCmd = &cobra.Command{
	Use:   "delegate [request]",
	Short: "Delegate a task to a purpose-built sub-agent",
	Long: `Synthesizes a specialized system prompt for the task, snapshots the
repository, runs the sub-agent, and reports what changed.

Modes:
  act      the sub-agent edits the working tree directly (default)
  propose  the sub-agent is read-only and returns a change proposal`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDelegate,
}

func init() {
	delegateCmd.Flags().StringVar(&delegateMode, "mode", delegation.ModeAct, "execution mode: act or propose")
	delegateCmd.Flags().StringVar(&delegateTask, "task", "", "short task name")
	delegateCmd.Flags().BoolVarP(&delegateYes, "yes", "y", false, "skip the act-mode confirmation")
}

func runDelegate(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	app, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	request := strings.Join(args, " ")

	if delegateMode == delegation.ModeAct && !delegateYes && !cfg.Scheduler.AutoApprove {
		if !confirm(fmt.Sprintf("Delegate %q with write access to the working tree?", delegateTask)) {
			fmt.Println("aborted")
			return nil
		}
	}

	result, err := app.workflow.Delegate(ctx, delegation.Request{
		TaskName:    delegateTask,
		UserRequest: request,
		Mode:        delegateMode,
	})
	if err != nil {
		return err
	}

	fmt.Printf("task:   %s\nprompt: %s\nturns:  %d\n\n%s\n",
		result.TaskName, result.PromptPath, result.Turns, result.Summary)

	if len(result.ModifiedFiles) > 0 {
		fmt.Println("\nmodified files:")
		for _, f := range result.ModifiedFiles {
			fmt.Printf("  %s\n", f)
		}
	}
	for _, change := range result.ProposedChanges {
		line := fmt.Sprintf("  %-6s %s", change.Action, change.FilePath)
		if change.Preview != nil {
			line += fmt.Sprintf("  (+%d/-%d)", change.Preview.LinesAdded, change.Preview.LinesRemoved)
		}
		fmt.Println(line)
		if change.Rationale != "" {
			fmt.Printf("         %s\n", change.Rationale)
		}
	}
	if result.BudgetExceeded {
		fmt.Println("\n(sub-agent stopped at its budget; the result may be partial)")
	}
	return nil
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
