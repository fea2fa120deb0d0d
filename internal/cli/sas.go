package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"options-engine/internal/engine"
	"options-engine/internal/models"
	"options-engine/internal/sas"
	"options-engine/internal/security"
	"options-engine/internal/server"
	"options-engine/internal/store"
)

func newSASCmd(app *App) *cobra.Command {
	var (
		sig    models.Signal
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "sas",
		Short: "Build a skew-and-spread proposal from a signal",
		Long: `Turn a volatility signal into a vertical debit spread proposal. The signal
must have skew_z <= -2, an IV-RV spread of at least 0.25 and a non-zero
momentum; the momentum sign picks calls or puts.

The proposal is stored and announced unless --dry-run is set.`,
		Example: `  optengine sas --symbol SPY --skew-z -2.4 --iv-rv 0.31 --momentum 1.2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			var err error
			if sig.Symbol, err = security.NormalizeSymbol(sig.Symbol); err != nil {
				return err
			}
			if sig.ID == "" {
				sig.ID = uuid.NewString()
			}
			if sig.AsOf == "" {
				sig.AsOf = time.Now().UTC().Format(time.RFC3339)
			}

			var p *models.SignalProposal
			if dryRun {
				p, err = sas.Build(sig, time.Now())
				if errors.Is(err, sas.ErrRejected) {
					p, err = nil, reportRejection(output, err)
				}
			} else {
				var st *store.SQLStore
				if st, err = app.Store(); err != nil {
					return err
				}
				p, err = sas.NewProcessor(st, app.Notifier(), app.Logger).Process(cmd.Context(), sig)
				if err == nil && p == nil {
					output.Warning("%s: signal rejected", sig.Symbol)
					return nil
				}
			}
			if err != nil || p == nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(p)
			}
			output.Box(fmt.Sprintf("%s %s vertical", p.Symbol, p.Bias), []string{
				fmt.Sprintf("Long:   %s %s (%.2f delta) exp %s", p.LongLeg.Strike, p.LongLeg.Type, p.LongLeg.Delta, p.LongLeg.Expiry),
				fmt.Sprintf("Short:  %s %s (%.2f delta) exp %s", p.ShortLeg.Strike, p.ShortLeg.Type, p.ShortLeg.Delta, p.ShortLeg.Expiry),
				fmt.Sprintf("Debit:  %s  Max profit: %s  RR: %.2f", FormatUSD(p.Debit), FormatUSD(p.MaxProfit), p.RR),
				"ID:     " + p.ID,
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&sig.Symbol, "symbol", "", "underlying symbol")
	cmd.Flags().Float64Var(&sig.SkewZ, "skew-z", 0, "put skew z-score")
	cmd.Flags().Float64Var(&sig.IVRVSpread, "iv-rv", 0, "implied minus realized volatility spread")
	cmd.Flags().Float64Var(&sig.Momentum, "momentum", 0, "momentum; the sign selects the bias")
	cmd.Flags().StringVar(&sig.AsOf, "asof", "", "signal time, RFC 3339 (default: now)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "build without storing or notifying")
	_ = cmd.MarkFlagRequired("symbol")

	return cmd
}

func reportRejection(output *Output, err error) error {
	if output.IsJSON() {
		return output.JSON(map[string]interface{}{"created": false, "reason": err.Error()})
	}
	output.Warning("Rejected: %v", err)
	return nil
}

func newServeCmd(app *App) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the engine over HTTP",
		Long: `Serve runs, guardrail checks, trade routing, sentinel status and SAS
signals over HTTP, with Prometheus metrics on /metrics. The circuit breaker
state is held for the life of the process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := app.Store()
			if err != nil {
				return err
			}
			cooldowns, err := app.Cooldowns(ctx)
			if err != nil {
				return err
			}
			router, err := app.router(cmd)
			if err != nil {
				return err
			}
			heat := app.HeatCap(st)

			srv := server.New(server.Deps{
				Guard:     app.Evaluator(st, cooldowns),
				Breaker:   app.Breaker(),
				Heat:      heat,
				Proposals: st,
				Router:    router,
				Signals:   sas.NewProcessor(st, app.Notifier(), app.Logger),
				NewRunner: func(source engine.InputSource) *engine.Runner { return app.NewRunner(source, heat) },
				Metrics:   app.Metrics,
				Logger:    app.Logger,
				Equity:    app.Config.Trading.Equity,
				Version:   app.Config.App.Version,
			})

			if addr == "" {
				addr = app.Config.Server.Addr
			}
			return srv.ListenAndServe(ctx, addr, app.Config.Server.ReadTimeout, app.Config.Server.WriteTimeout)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
