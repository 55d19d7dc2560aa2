package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"fintrack/internal/config"

	"github.com/spf13/cobra"
)

var (
	flagConfig  string
	flagJSON    bool
	flagNoColor bool
)

// noColor disables ANSI output; set from --no-color or NO_COLOR.
var noColor bool

var rootCmd = &cobra.Command{
	Use:           "fintrack",
	Short:         "Offline-first personal finance tracker",
	Long:          "Track expenses, incomes and budgets. Changes made offline are queued and synced when the server is reachable again.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		noColor = flagNoColor || os.Getenv("NO_COLOR") != ""
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", config.ClientConfigPath(), "config file")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "print machine-readable JSON")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(
		configCmd,
		addCmd,
		updateCmd,
		deleteCmd,
		listCmd,
		queueCmd,
		syncCmd,
		statusCmd,
		autosyncCmd,
		daemonCmd,
		budgetCmd,
		summaryCmd,
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError("%v", err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for configuration problems so scripts can tell them apart.
func exitCode(err error) int {
	if config.IsMissing(err) {
		return 2
	}
	return 1
}
