package testutil

import (
	"options-engine/internal/models"
)

// InputOption customizes MakeInput.
type InputOption func(*inputParams)

type inputParams struct {
	chain      ChainParams
	ivRank     *float64
	trend      models.Trend
	earnings   *int
	equity     float64
	termSkew   *models.TermSkew
	noTermSkew bool
	ivrv       *models.IVRVMetrics
	ivrvEdge   bool
	symbol     string
}

// WithSymbol sets the symbol.
func WithSymbol(symbol string) InputOption {
	return func(p *inputParams) { p.symbol = symbol }
}

// WithTrend sets the trend classification.
func WithTrend(t models.Trend) InputOption {
	return func(p *inputParams) { p.trend = t }
}

// WithIVRank sets the IV rank.
func WithIVRank(ivr float64) InputOption {
	return func(p *inputParams) { p.ivRank = models.Float(ivr) }
}

// WithoutIVRank marks the IV rank as unknown.
func WithoutIVRank() InputOption {
	return func(p *inputParams) { p.ivRank = nil }
}

// WithEarningsIn places earnings days after today.
func WithEarningsIn(days int) InputOption {
	return func(p *inputParams) { p.earnings = &days }
}

// WithDTE sets the front and back month days to expiry.
func WithDTE(front, back int) InputOption {
	return func(p *inputParams) {
		p.chain.DTEFront = front
		p.chain.DTEBack = back
	}
}

// WithIV sets front and back month implied volatility. The term skew follows
// unless set explicitly.
func WithIV(front, back float64) InputOption {
	return func(p *inputParams) {
		p.chain.IVFront = front
		p.chain.IVBack = back
	}
}

// WithTermSkew sets the term skew independently of the chain IVs.
func WithTermSkew(front, back float64) InputOption {
	return func(p *inputParams) { p.termSkew = &models.TermSkew{FrontIV: front, BackIV: back} }
}

// WithoutTermSkew removes the term skew.
func WithoutTermSkew() InputOption {
	return func(p *inputParams) { p.noTermSkew = true }
}

// WithEquity sets account equity.
func WithEquity(equity float64) InputOption {
	return func(p *inputParams) { p.equity = equity }
}

// WithIVRV attaches an IV/RV analytics bundle.
func WithIVRV(m models.IVRVMetrics) InputOption {
	return func(p *inputParams) { p.ivrv = &m }
}

// WithIVRVEdge enables the IV/RV edge feature flag.
func WithIVRVEdge() InputOption {
	return func(p *inputParams) { p.ivrvEdge = true }
}

// MakeInput builds a strategy input over MakeChain. Defaults: spot 100,
// IV 0.50/0.55, DTE 35/60, IV rank 55, NEUTRAL trend, equity 100000 and a
// term skew mirroring the chain IVs.
func MakeInput(opts ...InputOption) *models.StrategyInput {
	p := &inputParams{
		chain: ChainParams{
			Spot:     100,
			IVFront:  0.50,
			IVBack:   0.55,
			DTEFront: 35,
			DTEBack:  60,
		},
		ivRank: models.Float(55),
		trend:  models.TrendNeutral,
		equity: 100000,
		symbol: "TEST",
	}
	for _, opt := range opts {
		opt(p)
	}
	p.chain.Symbol = p.symbol

	chain, _, _ := MakeChain(p.chain)

	in := &models.StrategyInput{
		Symbol: p.symbol,
		Chain:  chain,
		Spot:   p.chain.Spot,
		IVRank: p.ivRank,
		Trend:  p.trend,
		Today:  Today,
		Equity: p.equity,
		IVRV:   p.ivrv,
		Features: models.Features{
			IVRVEdge: p.ivrvEdge,
		},
	}
	if p.earnings != nil {
		in.EarningsDate = Date(Today, *p.earnings)
	}
	switch {
	case p.noTermSkew:
	case p.termSkew != nil:
		in.TermSkew = p.termSkew
	default:
		in.TermSkew = &models.TermSkew{FrontIV: p.chain.IVFront, BackIV: p.chain.IVBack}
	}
	return in
}
