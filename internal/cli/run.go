package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"options-engine/internal/engine"
	"options-engine/internal/models"
	"options-engine/internal/security"
	"options-engine/internal/sentinels"
)

type runFlags struct {
	snapshot string
	symbols  []string
	persist  bool
	publish  bool
	notify   bool
	verbose  bool
}

func newRunCmd(app *App) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate a snapshot file and rank proposals",
		Long: `Evaluate every symbol in a snapshot file against the strategies allowed in
the current phase, rank the proposals by score and print them.

With --persist new proposals are saved to the store, with --publish they are
emitted to Kafka (or the log when Kafka is disabled), and with --notify a
summary is sent to the configured channels.`,
		Example: `  optengine run --snapshot chains.yaml
  optengine run --snapshot chains.yaml --symbols SPY,QQQ --persist --publish`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(cmd, app, f)
		},
	}

	cmd.Flags().StringVarP(&f.snapshot, "snapshot", "s", "", "snapshot file (YAML or JSON)")
	cmd.Flags().StringSliceVar(&f.symbols, "symbols", nil, "limit the run to these symbols")
	cmd.Flags().BoolVar(&f.persist, "persist", false, "save new proposals to the store")
	cmd.Flags().BoolVar(&f.publish, "publish", false, "publish ranked proposals")
	cmd.Flags().BoolVar(&f.notify, "notify", false, "send a run summary to the notification channels")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "print the per-symbol trace")
	_ = cmd.MarkFlagRequired("snapshot")

	return cmd
}

func runEngine(cmd *cobra.Command, app *App, f runFlags) error {
	ctx := cmd.Context()
	output := NewOutput(cmd)

	snaps, err := engine.LoadSnapshots(f.snapshot)
	if err != nil {
		return err
	}
	source := engine.NewSnapshotSource(snaps, app.Config.Trading.Equity)

	symbols := source.Symbols()
	if len(f.symbols) > 0 {
		if symbols, err = security.NormalizeSymbols(f.symbols); err != nil {
			return err
		}
	}

	var heat *sentinels.HeatCap
	if app.Config.HeatCap.Enabled || f.persist {
		st, err := app.Store()
		if err != nil {
			if f.persist {
				return err
			}
			app.Logger.Warn().Err(err).Msg("store unavailable, heat cap skipped")
		} else if app.Config.HeatCap.Enabled {
			heat = app.HeatCap(st)
		}
	}

	result, err := app.NewRunner(source, heat).Run(ctx, symbols)
	if err != nil {
		return err
	}

	if f.persist && len(result.Proposals) > 0 {
		st, _ := app.Store()
		saved, err := engine.Persist(ctx, st, result.Proposals, 0, time.Now())
		if err != nil {
			return err
		}
		app.Logger.Info().Int("saved", len(saved)).Int("ranked", len(result.Proposals)).Msg("proposals persisted")
	}

	if f.publish {
		pub, err := app.Publisher()
		if err != nil {
			return err
		}
		perr := pub.Publish(ctx, result.RunID, result.Proposals)
		if cerr := pub.Close(); perr == nil {
			perr = cerr
		}
		if perr != nil {
			return fmt.Errorf("publish run %s: %w", result.RunID, perr)
		}
	}

	if f.notify {
		if err := app.Notifier().SendProposals(ctx, result.RunID, result.Proposals); err != nil {
			app.Logger.Warn().Err(err).Msg("run notification failed")
		}
	}

	if output.IsJSON() {
		return output.JSON(result)
	}
	printRun(output, result, f.verbose)
	return nil
}

func printRun(output *Output, result *engine.RunResult, verbose bool) {
	output.Bold("Run %s  phase %d  equity %s", result.RunID, result.Phase, FormatUSD(result.Equity))
	output.Dim("%d symbols analyzed, %d proposals, engine %s",
		result.SymbolsAnalyzed, result.Count, result.Version)
	for _, id := range result.Tripped {
		output.Warning("Strategy %s skipped: circuit breaker tripped", id)
	}
	if result.Blocked != "" {
		output.Error("Blocked: %s", result.Blocked)
	}
	output.Println()

	if len(result.Proposals) > 0 {
		printProposals(output, result.Proposals)
	} else {
		output.Warning("No proposals")
	}

	if !verbose {
		return
	}
	output.Println()
	output.Bold("Trace")
	for _, d := range result.Debug {
		switch {
		case d.Error != "":
			output.Printf("  %-6s %s\n", d.Symbol, output.Red("error: "+d.Error))
		case d.Skipped != "":
			output.Printf("  %-6s %s\n", d.Symbol, output.Yellow("skipped: "+d.Skipped))
		default:
			top := "-"
			if d.TopScore != nil {
				top = strconv.Itoa(*d.TopScore)
			}
			run := 0
			if d.StrategiesRun != nil {
				run = *d.StrategiesRun
			}
			output.Printf("  %-6s %d strategies, top score %s\n", d.Symbol, run, top)
		}
	}
}

func printProposals(output *Output, proposals []models.Proposal) {
	table := NewTable(output, "#", "SYMBOL", "STRATEGY", "SCORE", "LEGS", "EXPIRY", "NET", "QTY", "MAX LOSS", "POP")
	for i := range proposals {
		p := &proposals[i]
		table.AddRow(
			strconv.Itoa(i+1),
			p.Symbol,
			string(p.Strategy),
			output.Score(p.Score),
			FormatLegs(p.Legs),
			FormatExpiries(p.Legs),
			netPrice(p),
			strconv.Itoa(p.Qty),
			FormatUSD(p.MaxLoss),
			popString(p.POP),
		)
	}
	table.Render()
}

func netPrice(p *models.Proposal) string {
	switch {
	case p.Credit != nil:
		return fmt.Sprintf("%.2f cr", *p.Credit)
	case p.Debit != nil:
		return fmt.Sprintf("%.2f db", *p.Debit)
	}
	return "-"
}

func popString(pop *float64) string {
	if pop == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", *pop)
}
