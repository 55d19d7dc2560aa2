package main

import (
	"strings"

	"fintrack/internal/config"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the client configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the configuration file",
	Long: `Write the configuration file. Flags left empty keep the current value.

Example:
  fintrack config init --server-url https://fintrack.example.com --user-id me --token s3cret`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadClient(flagConfig)
		if err != nil {
			return err
		}
		set := func(dst *string, flag string) {
			if v, _ := cmd.Flags().GetString(flag); v != "" {
				*dst = v
			}
		}
		set(&cfg.Server.URL, "server-url")
		set(&cfg.Server.UserID, "user-id")
		set(&cfg.Server.APIToken, "token")
		if day, _ := cmd.Flags().GetInt("cycle-day"); day > 0 {
			cfg.Budget.CycleDay = day
		}

		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.SaveClient(flagConfig, cfg); err != nil {
			return err
		}
		printSuccess("Configuration written to %s", flagConfig)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadClient(flagConfig)
		if err != nil {
			return err
		}
		cfg.Server.APIToken = maskToken(cfg.Server.APIToken)
		if flagJSON {
			return writeJSON(stdout, cfg)
		}
		printStatus("File", "%s", flagConfig)
		printStatus("Server", "%s", orUnset(cfg.Server.URL))
		printStatus("User", "%s", orUnset(cfg.Server.UserID))
		printStatus("Token", "%s", orUnset(cfg.Server.APIToken))
		printStatus("Database", "%s", cfg.Storage.DBPath)
		printStatus("Max retries", "%d", cfg.Sync.MaxRetries)
		printStatus("Cycle day", "%d", cfg.Budget.CycleDay)
		if err := cfg.Validate(); err != nil {
			printWarning("%v", err)
		}
		return nil
	},
}

func init() {
	configInitCmd.Flags().String("server-url", "", "fintrack-server base URL")
	configInitCmd.Flags().String("user-id", "", "user id records are stored under")
	configInitCmd.Flags().String("token", "", "API token")
	configInitCmd.Flags().Int("cycle-day", 0, "billing cycle anchor day (1-31)")
	configCmd.AddCommand(configInitCmd, configShowCmd)
}

func maskToken(token string) string {
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return strings.Repeat("*", len(token)-4) + token[len(token)-4:]
}

func orUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}
