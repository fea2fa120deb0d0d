package sentinels

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"options-engine/internal/logging"
	"options-engine/internal/metrics"
)

// Heat cap defaults.
const (
	DefaultHeatCapPct   = 10.0
	DefaultHeatLookback = 24 * time.Hour
)

// TradeRiskStore sums the max loss of non-terminal trades.
type TradeRiskStore interface {
	ActiveTradeRisk(ctx context.Context, since time.Time) (float64, error)
}

// HeatResult is a heat cap verdict. RiskPct is the portfolio risk as a
// percent of equity.
type HeatResult struct {
	Allowed bool    `json:"allowed"`
	RiskPct float64 `json:"current_risk"`
	Reason  string  `json:"reason,omitempty"`
}

// HeatCap blocks new proposals while recent open trade risk exceeds a share
// of equity. Query errors fail open.
type HeatCap struct {
	store    TradeRiskStore
	enabled  bool
	maxPct   float64
	lookback time.Duration
	now      func() time.Time
	logger   zerolog.Logger
	metrics  *metrics.Registry
}

// HeatCapConfig configures a HeatCap.
type HeatCapConfig struct {
	Enabled  bool
	MaxPct   float64
	Lookback time.Duration
	Now      func() time.Time
	Logger   *zerolog.Logger
	Metrics  *metrics.Registry
}

// NewHeatCap creates a heat cap over store.
func NewHeatCap(store TradeRiskStore, cfg HeatCapConfig) *HeatCap {
	h := &HeatCap{
		store:    store,
		enabled:  cfg.Enabled,
		maxPct:   cfg.MaxPct,
		lookback: cfg.Lookback,
		now:      cfg.Now,
		logger:   zerolog.Nop(),
		metrics:  cfg.Metrics,
	}
	if h.maxPct <= 0 {
		h.maxPct = DefaultHeatCapPct
	}
	if h.lookback <= 0 {
		h.lookback = DefaultHeatLookback
	}
	if h.now == nil {
		h.now = time.Now
	}
	if cfg.Logger != nil {
		h.logger = *cfg.Logger
	}
	return h
}

// Enabled reports whether the cap is active.
func (h *HeatCap) Enabled() bool {
	return h.enabled
}

// MaxPct returns the cap as a percent of equity.
func (h *HeatCap) MaxPct() float64 {
	return h.maxPct
}

// Check compares recent active trade risk against equity.
func (h *HeatCap) Check(ctx context.Context, equity float64) HeatResult {
	if !h.enabled {
		return HeatResult{Allowed: true}
	}

	total, err := h.store.ActiveTradeRisk(ctx, h.now().UTC().Add(-h.lookback))
	if err != nil {
		h.logger.Error().Err(err).Msg("heat cap query failed, allowing")
		return HeatResult{Allowed: true}
	}
	if equity <= 0 {
		h.logger.Error().Float64("equity", equity).Msg("heat cap with non-positive equity, allowing")
		return HeatResult{Allowed: true}
	}

	riskPct := total / equity * 100
	if riskPct > h.maxPct {
		h.metrics.HeatCheck(riskPct, true)
		logging.LogHeatCapBlock(h.logger, riskPct, h.maxPct)
		return HeatResult{
			Allowed: false,
			RiskPct: riskPct,
			Reason: fmt.Sprintf("Portfolio risk %.1f%% exceeds heat cap %s%%",
				riskPct, strconv.FormatFloat(h.maxPct, 'f', -1, 64)),
		}
	}

	h.metrics.HeatCheck(riskPct, false)
	return HeatResult{Allowed: true, RiskPct: riskPct}
}
