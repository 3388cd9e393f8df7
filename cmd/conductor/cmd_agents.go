package main

import (
	"fmt"

	"conductor/internal/agent"

	"github.com/spf13/cobra"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the agent definitions in the workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		defs, err := agent.LoadDefinitions(cfg.Agents.Dir)
		if err != nil {
			return err
		}
		names := defs.Names()
		if len(names) == 0 {
			fmt.Printf("no agent definitions in %s\n", cfg.Agents.Dir)
			return nil
		}
		for _, name := range names {
			def, _ := defs.Get(name)
			tier := def.ModelConfig.Tier
			if tier == "" {
				tier = "(default)"
			}
			fmt.Printf("%-20s tier=%-20s tools=%d max_turns=%d\n",
				name, tier, len(def.ToolConfig.Tools), def.RunConfig.MaxTurns)
		}
		return nil
	},
}
