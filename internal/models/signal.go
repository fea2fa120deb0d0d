package models

import "time"

// Bias is the directional lean of a signal proposal.
type Bias string

const (
	BiasBullish Bias = "bullish"
	BiasBearish Bias = "bearish"
)

// Signal is a precomputed skew/volatility/momentum reading for one symbol.
type Signal struct {
	ID         string  `json:"id" yaml:"id"`
	Symbol     string  `json:"symbol" yaml:"symbol"`
	AsOf       string  `json:"asof" yaml:"asof"` // RFC 3339
	SkewZ      float64 `json:"skew_z" yaml:"skew_z"`
	IVRVSpread float64 `json:"iv_rv_spread" yaml:"iv_rv_spread"`
	Momentum   float64 `json:"momentum" yaml:"momentum"`
}

// SignalLeg is a placeholder leg: the strike is a delta label, not a price.
type SignalLeg struct {
	Type   string  `json:"type"` // C or P
	Strike string  `json:"strike"`
	Delta  float64 `json:"delta"`
	Expiry string  `json:"exp"`
}

// SignalFilters records the signal values a proposal passed.
type SignalFilters struct {
	SkewZ      float64  `json:"skew_z"`
	IVRVSpread float64  `json:"iv_rv_spread"`
	Momentum   float64  `json:"momentum"`
	VIX        *float64 `json:"vix,omitempty"`
}

// SignalProposal is a debit vertical built from a Signal.
type SignalProposal struct {
	ID              string        `json:"id"`
	CreatedAt       time.Time     `json:"created_at"`
	Symbol          string        `json:"symbol"`
	Bias            Bias          `json:"bias"`
	DTE             int           `json:"dte"`
	LongLeg         SignalLeg     `json:"long_leg"`
	ShortLeg        SignalLeg     `json:"short_leg"`
	Width           float64       `json:"width"`
	Debit           float64       `json:"debit"`
	MaxProfit       float64       `json:"max_profit"`
	RR              float64       `json:"rr"`
	Filters         SignalFilters `json:"filters"`
	Status          string        `json:"status"`
	StrategyVersion string        `json:"strategy_version"`
}
