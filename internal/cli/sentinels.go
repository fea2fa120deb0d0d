package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"options-engine/internal/guardrails"
	"options-engine/internal/sentinels"
)

type sentinelReport struct {
	Risk    *guardrails.RiskMetrics `json:"risk"`
	Heat    sentinels.HeatResult    `json:"heat_cap"`
	HeatMax float64                 `json:"heat_cap_max_pct"`
	Breaker bool                    `json:"circuit_breaker_enabled"`
}

func newSentinelsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "sentinels",
		Aliases: []string{"risk"},
		Short:   "Show account risk, heat cap and circuit breaker status",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			st, err := app.Store()
			if err != nil {
				return err
			}
			cooldowns, err := app.Cooldowns(cmd.Context())
			if err != nil {
				return err
			}

			risk, err := app.Evaluator(st, cooldowns).RiskMetrics(cmd.Context())
			if err != nil {
				return err
			}
			heat := app.HeatCap(st)
			report := sentinelReport{
				Risk:    risk,
				Heat:    heat.Check(cmd.Context(), app.Config.Trading.Equity),
				HeatMax: heat.MaxPct(),
				Breaker: app.Breaker().Enabled(),
			}

			if output.IsJSON() {
				return output.JSON(report)
			}

			output.Box("Account risk", []string{
				"Equity:          " + FormatUSD(risk.AccountEquity),
				"Open positions:  " + strconv.Itoa(risk.OpenPositions),
				"Equity at risk:  " + FormatUSD(risk.EquityAtRisk) + fmt.Sprintf(" (%.1f%%)", risk.EquityAtRiskPct),
			})
			output.Println()

			state := output.Green("clear")
			if !heat.Enabled() {
				state = output.Yellow("disabled")
			} else if !report.Heat.Allowed {
				state = output.Red("blocking")
			}
			output.Printf("Heat cap:        %s  %.1f%% of %.0f%%\n", state, report.Heat.RiskPct, report.HeatMax)
			if report.Heat.Reason != "" {
				output.Printf("                 %s\n", report.Heat.Reason)
			}

			breaker := output.Yellow("disabled (paper mode)")
			if report.Breaker {
				breaker = output.Green("armed")
			}
			output.Printf("Circuit breaker: %s\n", breaker)
			output.Dim("Breaker state lives in the serving process; query /v1/sentinels for trips.")
			return nil
		},
	}
}

func newProposalsCmd(app *App) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "proposals",
		Short: "List recently persisted proposals",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			st, err := app.Store()
			if err != nil {
				return err
			}
			recs, err := st.RecentProposals(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(recs)
			}
			if len(recs) == 0 {
				output.Warning("No proposals stored")
				return nil
			}
			table := NewTable(output, "CREATED", "SYMBOL", "STRATEGY", "SCORE", "DTE", "MAX LOSS", "ID")
			for _, r := range recs {
				table.AddRow(r.CreatedAt.Format("2006-01-02 15:04"), r.Symbol, r.Strategy,
					output.Score(r.Score), strconv.Itoa(r.DTE), FormatUSD(r.MaxLoss), TruncateString(r.ID, 12))
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of proposals")
	return cmd
}
