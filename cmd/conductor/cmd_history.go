package main

import (
	"fmt"
	"time"

	"conductor/internal/agent"
	"conductor/internal/store"

	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyAgent string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs from the run history store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		runs, err := store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer runs.Close()

		var recs []agentRun
		if historyAgent != "" {
			rs, err := runs.RunsByAgent(ctx, historyAgent, historyLimit)
			if err != nil {
				return err
			}
			recs = toRows(rs)
		} else {
			rs, err := runs.RecentRuns(ctx, historyLimit)
			if err != nil {
				return err
			}
			recs = toRows(rs)
		}

		if len(recs) == 0 {
			fmt.Println("no recorded runs")
			return nil
		}
		for _, r := range recs {
			fmt.Println(r.String())
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show")
	historyCmd.Flags().StringVar(&historyAgent, "agent", "", "filter by agent name")
}

func toRows(rs []agent.RunRecord) []agentRun {
	rows := make([]agentRun, 0, len(rs))
	for _, rec := range rs {
		flags := ""
		if rec.BudgetExceeded {
			flags = " [budget]"
		}
		rows = append(rows, agentRun{
			when:    rec.StartedAt,
			agent:   rec.Agent,
			mode:    rec.Mode,
			turns:   rec.Turns,
			flags:   flags,
			summary: rec.Summary,
		})
	}
	return rows
}

type agentRun struct {
	when    time.Time
	agent   string
	mode    string
	turns   int
	flags   string
	summary string
}

func (r agentRun) String() string {
	summary := r.summary
	if len(summary) > 80 {
		summary = summary[:77] + "..."
	}
	mode := r.mode
	if mode == "" {
		mode = "-"
	}
	return fmt.Sprintf("%s  %-16s %-8s %2d turns%s  %s",
		r.when.Local().Format("2006-01-02 15:04"), r.agent, mode, r.turns, r.flags, summary)
}
