package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"context"

	"conductor/internal/config"
	"conductor/internal/logging"

	"github.com/spf13/cobra"
)

// Version is stamped at build time.
var Version = "0.1.0-dev"

var (
	// Global flags
	configPath string
	modelFlag  string
	workspace  string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "conductor - orchestration core for autonomous coding tasks",
	Long: `conductor routes user requests to the right model tier, schedules the
tool calls the model makes, and delegates focused tasks to bounded
sub-agents with snapshot/diff state reconciliation around their edits.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if workspace == "" {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("resolve working directory: %w", err)
			}
			workspace = wd
		}
		if err := logging.Initialize(workspace); err != nil {
			fmt.Fprintf(os.Stderr, "warning: logging disabled: %v\n", err)
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if modelFlag != "" {
			cfg.LLM.Model = modelFlag
			cfg.Routing.DefaultModel = modelFlag
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the conductor version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("conductor %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "config file path")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "override the default model")
	rootCmd.PersistentFlags().StringVar(&workspace, "workspace", "", "workspace directory (default: cwd)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(delegateCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(historyCmd)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
