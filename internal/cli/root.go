// Package cli provides the optengine command-line interface.
package cli

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"options-engine/internal/config"
	"options-engine/internal/engine"
	"options-engine/internal/logging"
	"options-engine/internal/security"
)

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := NewApp(cfg, logger)

	rootCmd := &cobra.Command{
		Use:   "optengine",
		Short: "Options strategy evaluation and risk guardrail engine",
		Long: `optengine evaluates option-chain snapshots against the configured
strategies, ranks the resulting trade proposals and gates them through the
risk guardrails, circuit breaker and heat cap.

Use 'optengine config init' to write a starter configuration.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	// --config is read by main before the tree is built; it is declared here
	// so cobra accepts it.
	rootCmd.PersistentFlags().String("config", "", "config file (default: ~/.config/optengine/optengine.toml)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd(app))
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newGuardCmd(app))
	rootCmd.AddCommand(newTradeCmd(app))
	rootCmd.AddCommand(newSentinelsCmd(app))
	rootCmd.AddCommand(newProposalsCmd(app))
	rootCmd.AddCommand(newSASCmd(app))
	rootCmd.AddCommand(newServeCmd(app))

	return rootCmd
}

func newVersionCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version": app.Config.App.Version,
					"env":     app.Config.App.Env,
				})
			}
			output.Printf("optengine %s\n", app.Config.App.Version)
			output.Dim("env: %s", app.Config.App.Env)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View, validate and initialise the engine configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(security.RedactConfig(app.Config))
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			}
			output.Println(config.DefaultConfigDir())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("Configuration is valid")
			return nil
		},
	})

	var dir string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			path, err := config.WriteTemplate(dir)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": path})
			}
			output.Success("Wrote %s", path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&dir, "dir", config.DefaultConfigDir(), "target directory")
	cmd.AddCommand(initCmd)

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Engine")
	output.Printf("  Env:             %s\n", cfg.App.Env)
	output.Printf("  Version:         %s\n", cfg.App.Version)
	output.Printf("  Mode:            %s\n", cfg.Trading.Mode)
	output.Printf("  Equity:          %s\n", FormatUSD(cfg.Trading.Equity))
	output.Printf("  Phase:           %d\n", cfg.Engine.Phase)
	output.Printf("  Max Results:     %d\n", cfg.Engine.MaxResults)
	output.Printf("  Concurrency:     %d\n", cfg.Engine.Concurrency)
	output.Printf("  IV/RV Edge:      %v\n", cfg.Features.IVRVEdge)
	output.Println()

	output.Bold("Strategies")
	table := NewTable(output, "STRATEGY", "ENABLED", "PHASE", "MIN SCORE", "MAX RISK")
	for _, e := range engine.NewRegistry(cfg).Entries() {
		table.AddRow(string(e.ID), yesNo(e.Config.Enabled), strconv.Itoa(e.Config.Phase),
			strconv.Itoa(e.Config.MinScore), fmt.Sprintf("%.1f%%", e.Config.MaxRiskPct*100))
	}
	table.Render()
	output.Println()

	output.Bold("Guardrails")
	output.Printf("  Max Positions:   %d\n", cfg.Guardrails.MaxPositions)
	output.Printf("  Equity at Risk:  %.1f%%\n", cfg.Guardrails.MaxEquityAtRiskPct)
	output.Printf("  Risk per Trade:  %.1f%%\n", cfg.Guardrails.RiskPerTradePct)
	output.Printf("  Cooldown:        %s\n", FormatDuration(cfg.Guardrails.Cooldown))
	output.Println()

	output.Bold("Sentinels")
	output.Printf("  Circuit Breaker: %v (%d rejects / %s)\n", cfg.CircuitBreakerEnabled(),
		cfg.CircuitBreaker.MaxRejects, FormatDuration(cfg.CircuitBreaker.Window))
	output.Printf("  Heat Cap:        %v (%.0f%% over %s)\n", cfg.HeatCap.Enabled,
		cfg.HeatCap.MaxPct, FormatDuration(cfg.HeatCap.Lookback))
	output.Println()

	output.Bold("Infrastructure")
	output.Printf("  Store:           %s\n", cfg.Store.Driver)
	output.Printf("  Redis:           %s\n", orNone(cfg.Redis.Addr))
	output.Printf("  Kafka:           %v %s\n", cfg.Kafka.Enabled, cfg.Kafka.Topic)
	output.Printf("  HTTP:            %s\n", cfg.Server.Addr)
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Level:           %s\n", cfg.Notifications.Level)
	output.Printf("  Webhook:         %v\n", cfg.Notifications.Webhook.Enabled)
	output.Printf("  Telegram:        %v\n", cfg.Notifications.Telegram.Enabled)
}
