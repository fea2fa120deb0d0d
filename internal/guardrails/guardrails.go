// Package guardrails decides whether an approved proposal may be routed.
//
// Checks run in order and stop at the first failure:
//
//	1. open positions below the cap
//	2. trade risk within the per-trade budget
//	3. open risk plus trade risk within the equity-at-risk cap
//	4. no cooldown running for the symbol
//
// The cooldown is taken only when every other check passes. Any store
// error denies the trade.
package guardrails

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"options-engine/internal/metrics"
	"options-engine/internal/models"
	"options-engine/internal/store"
)

// DefaultCooldown is the per-symbol cooldown after an approved trade.
const DefaultCooldown = 7 * 24 * time.Hour

// Check names, used as metric labels.
const (
	CheckNone         = "none"
	CheckMaxPositions = "max_positions"
	CheckTradeRisk    = "trade_risk"
	CheckEquityAtRisk = "equity_at_risk"
	CheckCooldown     = "cooldown"
	CheckError        = "error"
)

// PositionStore is the slice of the relational store the evaluator reads.
type PositionStore interface {
	Guardrails(ctx context.Context) (map[string]string, error)
	CountOpenPositions(ctx context.Context) (int, error)
	OpenPositions(ctx context.Context) ([]models.Position, error)
}

// Limits are the guardrail thresholds.
type Limits struct {
	MaxPositions       int     `json:"max_positions"`
	MaxEquityAtRiskPct float64 `json:"max_equity_at_risk_pct"`
	RiskPerTradePct    float64 `json:"risk_per_trade_pct"`
}

// DefaultLimits returns 5 positions, 20% equity at risk, 2.5% per trade.
func DefaultLimits() Limits {
	return Limits{MaxPositions: 5, MaxEquityAtRiskPct: 20, RiskPerTradePct: 2.5}
}

// LimitsFrom overlays stored key/value limits on fallback. Unparsable values
// keep the fallback.
func LimitsFrom(values map[string]string, fallback Limits) Limits {
	l := fallback
	if v, ok := values[store.KeyMaxPositions]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			l.MaxPositions = n
		}
	}
	if v, ok := values[store.KeyMaxEquityAtRiskPct]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			l.MaxEquityAtRiskPct = f
		}
	}
	if v, ok := values[store.KeyRiskPerTradePct]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			l.RiskPerTradePct = f
		}
	}
	return l
}

// RiskMetrics is the account risk snapshot.
type RiskMetrics struct {
	OpenPositions   int     `json:"open_positions"`
	EquityAtRisk    float64 `json:"equity_at_risk"`
	EquityAtRiskPct float64 `json:"equity_at_risk_pct"`
	AccountEquity   float64 `json:"account_equity"`
}

// Evaluator runs the guardrail checks.
type Evaluator struct {
	positions PositionStore
	cooldowns CooldownStore
	equity    float64
	fallback  Limits
	cooldown  time.Duration
	logger    zerolog.Logger
	metrics   *metrics.Registry
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLimits sets the limits used when the store has no value.
func WithLimits(l Limits) Option {
	return func(e *Evaluator) { e.fallback = l }
}

// WithCooldown sets the cooldown length.
func WithCooldown(d time.Duration) Option {
	return func(e *Evaluator) {
		if d > 0 {
			e.cooldown = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Evaluator) { e.logger = l }
}

// WithMetrics records verdicts on m.
func WithMetrics(m *metrics.Registry) Option {
	return func(e *Evaluator) { e.metrics = m }
}

// NewEvaluator creates an evaluator for an account of the given equity.
func NewEvaluator(positions PositionStore, cooldowns CooldownStore, equity float64, opts ...Option) *Evaluator {
	e := &Evaluator{
		positions: positions,
		cooldowns: cooldowns,
		equity:    equity,
		fallback:  DefaultLimits(),
		cooldown:  DefaultCooldown,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Check evaluates p at qty and, when allowed, starts the symbol cooldown.
func (e *Evaluator) Check(ctx context.Context, p *models.Proposal, qty int) models.GuardrailCheck {
	return e.evaluate(ctx, p, qty, true)
}

// Preview evaluates p at qty without starting a cooldown.
func (e *Evaluator) Preview(ctx context.Context, p *models.Proposal, qty int) models.GuardrailCheck {
	return e.evaluate(ctx, p, qty, false)
}

func (e *Evaluator) evaluate(ctx context.Context, p *models.Proposal, qty int, commit bool) models.GuardrailCheck {
	verdict, check, err := e.run(ctx, p, qty, commit)
	if err != nil {
		verdict = deny(fmt.Sprintf("Guardrail check failed: %v", err))
		check = CheckError
		e.logger.Error().Err(err).Str("symbol", p.Symbol).Msg("guardrail check error")
	}

	e.metrics.GuardrailDecision(verdict.Allowed, check)
	var ev *zerolog.Event
	if verdict.Allowed {
		ev = e.logger.Info()
	} else {
		ev = e.logger.Warn().Str("reason", verdict.Reason)
	}
	ev.Str("symbol", p.Symbol).
		Str("strategy", string(p.Strategy)).
		Int("qty", qty).
		Bool("allowed", verdict.Allowed).
		Msg("guardrail verdict")

	return verdict
}

func (e *Evaluator) run(ctx context.Context, p *models.Proposal, qty int, commit bool) (models.GuardrailCheck, string, error) {
	values, err := e.positions.Guardrails(ctx)
	if err != nil {
		return models.GuardrailCheck{}, CheckError, err
	}
	limits := LimitsFrom(values, e.fallback)

	open, err := e.positions.CountOpenPositions(ctx)
	if err != nil {
		return models.GuardrailCheck{}, CheckError, err
	}
	if open >= limits.MaxPositions {
		return deny(fmt.Sprintf("Max open positions reached (%d/%d)", open, limits.MaxPositions)), CheckMaxPositions, nil
	}

	tradeRisk := TradeRisk(p, qty)
	maxTradeRisk := e.equity * limits.RiskPerTradePct / 100
	if tradeRisk > maxTradeRisk {
		return deny(fmt.Sprintf("Trade risk $%.0f exceeds %s%% of equity ($%.0f)",
			tradeRisk, formatPct(limits.RiskPerTradePct), maxTradeRisk)), CheckTradeRisk, nil
	}

	positions, err := e.positions.OpenPositions(ctx)
	if err != nil {
		return models.GuardrailCheck{}, CheckError, err
	}
	total := openRisk(positions) + tradeRisk
	maxAtRisk := e.equity * limits.MaxEquityAtRiskPct / 100
	if total > maxAtRisk {
		return deny(fmt.Sprintf("Total equity at risk $%.0f would exceed %s%% cap ($%.0f)",
			total, formatPct(limits.MaxEquityAtRiskPct), maxAtRisk)), CheckEquityAtRisk, nil
	}

	var free bool
	if commit {
		free, err = e.cooldowns.Acquire(ctx, p.Symbol, e.cooldown)
	} else {
		var active bool
		active, err = e.cooldowns.Active(ctx, p.Symbol)
		free = !active
	}
	if err != nil {
		return models.GuardrailCheck{}, CheckError, err
	}
	if !free {
		return deny(fmt.Sprintf("Ticker %s is in cooldown (%d days since last trade)",
			p.Symbol, int(e.cooldown.Hours()/24))), CheckCooldown, nil
	}

	return models.GuardrailCheck{Allowed: true}, CheckNone, nil
}

// RiskMetrics returns the current account risk snapshot.
func (e *Evaluator) RiskMetrics(ctx context.Context) (*RiskMetrics, error) {
	open, err := e.positions.CountOpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("risk metrics: %w", err)
	}
	positions, err := e.positions.OpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("risk metrics: %w", err)
	}

	atRisk := openRisk(positions)
	m := &RiskMetrics{
		OpenPositions: open,
		EquityAtRisk:  atRisk,
		AccountEquity: e.equity,
	}
	if e.equity > 0 {
		m.EquityAtRiskPct = atRisk / e.equity * 100
	}
	return m, nil
}

// TradeRisk is the dollar risk of p at qty: debit × qty × 100 for debit
// structures, otherwise max loss per unit × qty.
func TradeRisk(p *models.Proposal, qty int) float64 {
	if p.Debit != nil {
		return *p.Debit * float64(qty) * 100
	}
	perUnit := p.MaxLoss
	if p.Qty > 0 {
		perUnit = p.MaxLoss / float64(p.Qty)
	}
	return perUnit * float64(qty)
}

func openRisk(positions []models.Position) float64 {
	var total float64
	for _, pos := range positions {
		total += pos.RiskAtEntry()
	}
	return total
}

func deny(reason string) models.GuardrailCheck {
	return models.GuardrailCheck{Allowed: false, Reason: reason}
}

// formatPct prints 2.5 as "2.5" and 20 as "20".
func formatPct(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
