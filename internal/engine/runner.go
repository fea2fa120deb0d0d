package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"options-engine/internal/config"
	apperrors "options-engine/internal/errors"
	"options-engine/internal/logging"
	"options-engine/internal/metrics"
	"options-engine/internal/models"
	"options-engine/internal/sentinels"
)

// DefaultMaxResults caps the ranked list.
const DefaultMaxResults = 50

// DebugEntry traces what happened to one symbol during a run.
type DebugEntry struct {
	Symbol        string `json:"symbol"`
	StrategiesRun *int   `json:"strategies_run,omitempty"`
	TopScore      *int   `json:"top_score,omitempty"`
	Skipped       string `json:"skipped,omitempty"`
	Error         string `json:"error,omitempty"`
}

// RunResult is the output of one evaluation run.
type RunResult struct {
	RunID           string              `json:"run_id"`
	Timestamp       time.Time           `json:"timestamp"`
	Version         string              `json:"version"`
	Phase           int                 `json:"phase"`
	Equity          float64             `json:"equity"`
	SymbolsAnalyzed int                 `json:"symbols_analyzed"`
	Count           int                 `json:"count"`
	Proposals       []models.Proposal   `json:"candidates"`
	Debug           []DebugEntry        `json:"debug"`
	Blocked         string              `json:"blocked,omitempty"`
	HeatRiskPct     float64             `json:"heat_risk_pct"`
	Tripped         []models.StrategyID `json:"tripped,omitempty"`
}

// Runner evaluates symbols against the registry.
type Runner struct {
	registry    *Registry
	source      InputSource
	phase       int
	maxResults  int
	concurrency int
	equity      float64
	features    models.Features
	version     string

	breaker *sentinels.CircuitBreaker
	heat    *sentinels.HeatCap

	logger  zerolog.Logger
	metrics *metrics.Registry
	now     func() time.Time
	newID   func() string
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithBreaker skips strategies the breaker reports as tripped.
func WithBreaker(cb *sentinels.CircuitBreaker) RunnerOption {
	return func(r *Runner) { r.breaker = cb }
}

// WithHeatCap blocks the run while the heat cap is exceeded.
func WithHeatCap(h *sentinels.HeatCap) RunnerOption {
	return func(r *Runner) { r.heat = h }
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(l zerolog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// WithRunnerMetrics records run metrics on m.
func WithRunnerMetrics(m *metrics.Registry) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithRunnerClock overrides the clock and the proposal ID generator.
func WithRunnerClock(now func() time.Time, newID func() string) RunnerOption {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
		if newID != nil {
			r.newID = newID
		}
	}
}

// NewRunner creates a runner from cfg. The current phase is read from cfg
// once, here.
func NewRunner(cfg *config.Config, registry *Registry, source InputSource, opts ...RunnerOption) *Runner {
	r := &Runner{
		registry:    registry,
		source:      source,
		phase:       cfg.Engine.Phase,
		maxResults:  cfg.Engine.MaxResults,
		concurrency: cfg.Engine.Concurrency,
		equity:      cfg.Trading.Equity,
		features:    models.Features{IVRVEdge: cfg.Features.IVRVEdge},
		version:     cfg.App.Version,
		logger:      zerolog.Nop(),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	if r.maxResults <= 0 {
		r.maxResults = DefaultMaxResults
	}
	if r.concurrency <= 0 {
		r.concurrency = 1
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Phase returns the phase the runner evaluates.
func (r *Runner) Phase() int {
	return r.phase
}

type symbolOutcome struct {
	proposals []models.Proposal
	debug     DebugEntry
}

// Run evaluates symbols and returns the ranked proposals. Per-symbol and
// per-module failures are recorded in the debug trace and never fail the
// run. The returned error is non-nil only when ctx is cancelled.
func (r *Runner) Run(ctx context.Context, symbols []string) (*RunResult, error) {
	start := r.now()
	logger := logging.WithOperation(r.logger, "run")

	result := &RunResult{
		RunID:           r.newID(),
		Timestamp:       start.UTC(),
		Version:         r.version,
		Phase:           r.phase,
		Equity:          r.equity,
		SymbolsAnalyzed: len(symbols),
		Proposals:       []models.Proposal{},
		Debug:           []DebugEntry{},
	}

	if r.heat != nil {
		heat := r.heat.Check(ctx, r.equity)
		result.HeatRiskPct = heat.RiskPct
		if !heat.Allowed {
			result.Blocked = heat.Reason
			logger.Warn().Str("reason", heat.Reason).Msg("run blocked by heat cap")
			r.metrics.ObserveRun(r.now().Sub(start))
			return result, nil
		}
	}

	entries := r.registry.Allowed(r.phase)
	if r.breaker != nil {
		result.Tripped = r.breaker.Tripped()
	}

	outcomes := make([]symbolOutcome, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, symbol := range symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			outcomes[i] = r.evaluateSymbol(gctx, symbol, entries)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run cancelled: %w", err)
	}

	byStrategy := make(map[models.StrategyID]int)
	var all []models.Proposal
	for _, o := range outcomes {
		all = append(all, o.proposals...)
		result.Debug = append(result.Debug, o.debug)
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	if len(all) > r.maxResults {
		all = all[:r.maxResults]
	}

	created := r.now().UTC()
	for i := range all {
		all[i].ID = r.newID()
		all[i].CreatedAt = created
		byStrategy[all[i].Strategy]++
	}
	for id, n := range byStrategy {
		r.metrics.AddProposals(string(id), n)
	}

	result.Proposals = all
	result.Count = len(all)

	elapsed := r.now().Sub(start)
	r.metrics.ObserveRun(elapsed)
	logging.LogRun(logger, logging.RunStats{
		Duration:   elapsed,
		Symbols:    len(symbols),
		Proposals:  len(all),
		ByStrategy: byStrategy,
	})

	return result, nil
}

func (r *Runner) evaluateSymbol(ctx context.Context, symbol string, entries []Entry) symbolOutcome {
	logger := logging.WithSymbol(r.logger, symbol)

	in, err := r.source.Input(ctx, symbol)
	switch {
	case err == nil && in == nil, errors.Is(err, apperrors.ErrNoData):
		r.metrics.ObserveSymbol("skipped")
		logger.Debug().Msg("no data available")
		return symbolOutcome{debug: DebugEntry{Symbol: symbol, Skipped: "No data available"}}
	case errors.Is(err, apperrors.ErrSourceTimeout):
		r.metrics.ObserveSymbol("skipped")
		logger.Warn().Err(err).Msg("source timed out")
		return symbolOutcome{debug: DebugEntry{Symbol: symbol, Skipped: "Source timed out"}}
	case err != nil:
		r.metrics.ObserveSymbol("error")
		logger.Error().Err(err).Msg("failed to build input")
		return symbolOutcome{debug: DebugEntry{Symbol: symbol, Error: err.Error()}}
	}

	in.Features = r.features
	if in.Equity <= 0 {
		in.Equity = r.equity
	}

	var proposals []models.Proposal
	for _, e := range entries {
		sl := logging.WithStrategy(logger, e.ID)
		if r.breaker != nil && r.breaker.IsTripped(e.ID) {
			sl.Debug().Msg("strategy skipped, circuit tripped")
			continue
		}

		out, err := runModule(e, in)
		if err != nil {
			r.metrics.ModuleError(string(e.ID))
			sl.Error().Err(err).Msg("strategy module failed")
			continue
		}
		for _, p := range out {
			if p.Score >= e.Config.MinScore {
				proposals = append(proposals, p)
			}
		}
	}

	top := 0
	for _, p := range proposals {
		if p.Score > top {
			top = p.Score
		}
	}
	n := len(proposals)
	r.metrics.ObserveSymbol("evaluated")
	logger.Debug().Int("proposals", n).Int("top_score", top).Msg("symbol evaluated")

	return symbolOutcome{
		proposals: proposals,
		debug:     DebugEntry{Symbol: symbol, StrategiesRun: &n, TopScore: &top},
	}
}

// runModule isolates a module so a panic costs only its own proposals.
func runModule(e Entry, in *models.StrategyInput) (out []models.Proposal, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = apperrors.NewModuleError(string(e.ID), in.Symbol, fmt.Errorf("panic: %v", rec))
		}
	}()
	return e.Module.Generate(in).Proposals, nil
}
