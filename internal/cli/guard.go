package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"options-engine/internal/config"
	apperrors "options-engine/internal/errors"
	"options-engine/internal/models"
	"options-engine/internal/security"
	"options-engine/internal/trading"
)

// loadProposal reads a proposal from a YAML or JSON file.
func loadProposal(path string) (*models.Proposal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading proposal file: %w", err)
	}
	var p models.Proposal
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, apperrors.NewValidationError("proposal", path, err.Error())
	}
	if p.Symbol, err = security.NormalizeSymbol(p.Symbol); err != nil {
		return nil, err
	}
	return &p, nil
}

func (a *App) router(cmd *cobra.Command) (*trading.Router, error) {
	st, err := a.Store()
	if err != nil {
		return nil, err
	}
	cooldowns, err := a.Cooldowns(cmd.Context())
	if err != nil {
		return nil, err
	}
	return trading.NewRouter(a.Evaluator(st, cooldowns), st, a.Breaker(), a.Notifier(),
		a.Config.IsPaperMode(), a.Logger), nil
}

func newGuardCmd(app *App) *cobra.Command {
	var (
		file   string
		qty    int
		commit bool
	)

	cmd := &cobra.Command{
		Use:   "guard",
		Short: "Check a proposal against the risk guardrails",
		Long: `Evaluate a proposal against the open-position, per-trade risk, equity at
risk and cooldown limits.

Without --commit the check is a preview and starts no cooldown. With
--commit an allowed proposal starts the symbol cooldown and is recorded as a
trade.`,
		Example: `  optengine guard --proposal spy-bps.yaml --qty 2
  optengine guard --proposal spy-bps.yaml --qty 2 --commit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if qty < 1 {
				return apperrors.NewValidationError("qty", qty, "must be a positive integer")
			}
			p, err := loadProposal(file)
			if err != nil {
				return err
			}

			var res *trading.RouteResult
			if commit {
				r, err := app.router(cmd)
				if err != nil {
					return err
				}
				if res, err = r.Route(cmd.Context(), p, qty); err != nil {
					return err
				}
			} else {
				st, err := app.Store()
				if err != nil {
					return err
				}
				cooldowns, err := app.Cooldowns(cmd.Context())
				if err != nil {
					return err
				}
				res = &trading.RouteResult{GuardrailCheck: app.Evaluator(st, cooldowns).Preview(cmd.Context(), p, qty)}
			}

			if output.IsJSON() {
				return output.JSON(res)
			}
			output.Printf("%s %s x%d: %s\n", p.Symbol, p.Strategy, qty, output.Verdict(res.Allowed))
			if res.Reason != "" {
				output.Printf("  %s\n", res.Reason)
			}
			if res.Trade != nil {
				output.Dim("  trade %s recorded as %s", res.Trade.ID, res.Trade.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "proposal", "p", "", "proposal file (YAML or JSON)")
	cmd.Flags().IntVarP(&qty, "qty", "q", 1, "contracts")
	cmd.Flags().BoolVar(&commit, "commit", false, "start the cooldown and record the trade when allowed")
	_ = cmd.MarkFlagRequired("proposal")

	return cmd
}

func newTradeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Trade lifecycle updates",
	}

	var strategy, reason string
	statusCmd := &cobra.Command{
		Use:   "status <trade-id> <status>",
		Short: "Apply a broker status update to a trade",
		Long: `Move a trade to submitted, acknowledged, filled, cancelled, closed or
rejected. A rejection is recorded against --strategy in the circuit breaker.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			r, err := app.router(cmd)
			if err != nil {
				return err
			}
			id, status := args[0], models.TradeStatus(strings.ToLower(args[1]))
			if err := security.ValidateID("trade_id", id); err != nil {
				return err
			}

			tripped := false
			switch status {
			case models.TradeRejected:
				sid, ok := config.StrategyIDForKey(strings.ToLower(strategy))
				if !ok {
					return fmt.Errorf("%q: %w", strategy, apperrors.ErrUnknownStrategy)
				}
				if tripped, err = r.Reject(cmd.Context(), id, sid, security.SanitizeText(reason)); err != nil {
					return err
				}
			case models.TradeSubmitted, models.TradeAcknowledged, models.TradeFilled,
				models.TradeCancelled, models.TradeClosed:
				if err := r.UpdateStatus(cmd.Context(), id, status); err != nil {
					return err
				}
			default:
				return apperrors.NewValidationError("status", args[1], "unknown trade status")
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"id": id, "status": status, "tripped": tripped})
			}
			output.Success("Trade %s is now %s", id, status)
			if tripped {
				output.Warning("Strategy %s is tripped", strings.ToUpper(strategy))
			}
			return nil
		},
	}
	statusCmd.Flags().StringVar(&strategy, "strategy", "", "strategy of the rejected trade, e.g. bull_put_credit")
	statusCmd.Flags().StringVar(&reason, "reason", "", "broker reject reason")
	cmd.AddCommand(statusCmd)

	return cmd
}
