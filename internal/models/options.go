package models

import (
	"sort"
	"time"
)

// ExpiryLayout is the calendar-date layout used for expiries and earnings dates.
const ExpiryLayout = "2006-01-02"

// OptionQuote is one contract's market snapshot.
type OptionQuote struct {
	Symbol       string     `json:"symbol" yaml:"symbol"`
	Expiry       string     `json:"expiry" yaml:"expiry"` // YYYY-MM-DD
	Strike       float64    `json:"strike" yaml:"strike"`
	Right        OptionType `json:"right" yaml:"right"`
	Bid          *float64   `json:"bid,omitempty" yaml:"bid,omitempty"`
	Ask          *float64   `json:"ask,omitempty" yaml:"ask,omitempty"`
	Mid          *float64   `json:"mid,omitempty" yaml:"mid,omitempty"`
	IV           *float64   `json:"iv,omitempty" yaml:"iv,omitempty"`
	Delta        *float64   `json:"delta,omitempty" yaml:"delta,omitempty"`
	Gamma        *float64   `json:"gamma,omitempty" yaml:"gamma,omitempty"`
	Vega         *float64   `json:"vega,omitempty" yaml:"vega,omitempty"`
	Theta        *float64   `json:"theta,omitempty" yaml:"theta,omitempty"`
	Volume       int64      `json:"volume" yaml:"volume"`
	OpenInterest int64      `json:"open_interest" yaml:"open_interest"`
	Timestamp    time.Time  `json:"timestamp" yaml:"timestamp"`
}

// MidPrice returns (bid+ask)/2 when both sides are present and positive.
// A stored mid is never trusted on its own.
func (q OptionQuote) MidPrice() (float64, bool) {
	if q.Bid == nil || q.Ask == nil || *q.Bid <= 0 || *q.Ask <= 0 {
		return 0, false
	}
	return (*q.Bid + *q.Ask) / 2, true
}

// DeltaValue returns the quote delta and whether it is present.
func (q OptionQuote) DeltaValue() (float64, bool) {
	if q.Delta == nil {
		return 0, false
	}
	return *q.Delta, true
}

// OptionChain is a symbol's full quote set. It is an immutable snapshot:
// callers filter into new slices and never modify Quotes.
type OptionChain struct {
	Symbol   string        `json:"symbol" yaml:"symbol"`
	Quotes   []OptionQuote `json:"quotes" yaml:"quotes"`
	Expiries []string      `json:"expiries" yaml:"expiries"`
}

// NewOptionChain builds a chain and derives the sorted distinct expiry set.
func NewOptionChain(symbol string, quotes []OptionQuote) OptionChain {
	seen := make(map[string]struct{})
	var expiries []string
	for _, q := range quotes {
		if _, ok := seen[q.Expiry]; ok {
			continue
		}
		seen[q.Expiry] = struct{}{}
		expiries = append(expiries, q.Expiry)
	}
	sort.Strings(expiries)
	return OptionChain{Symbol: symbol, Quotes: quotes, Expiries: expiries}
}

// Filter returns the quotes for one expiry and right.
func (c OptionChain) Filter(expiry string, right OptionType) []OptionQuote {
	var out []OptionQuote
	for _, q := range c.Quotes {
		if q.Expiry == expiry && q.Right == right {
			out = append(out, q)
		}
	}
	return out
}

// ForExpiry returns every quote for one expiry.
func (c OptionChain) ForExpiry(expiry string) []OptionQuote {
	var out []OptionQuote
	for _, q := range c.Quotes {
		if q.Expiry == expiry {
			out = append(out, q)
		}
	}
	return out
}

// TermSkew holds front and back month implied volatility as decimals.
type TermSkew struct {
	FrontIV float64 `json:"front_iv" yaml:"front_iv"`
	BackIV  float64 `json:"back_iv" yaml:"back_iv"`
}

// IVRVMetrics is the implied-vs-realized volatility bundle for one symbol.
type IVRVMetrics struct {
	RV20               float64  `json:"rv20" yaml:"rv20"`
	ATMIV              *float64 `json:"atm_iv,omitempty" yaml:"atm_iv,omitempty"`
	ATMIVRVRatio       *float64 `json:"atm_ivrv_ratio,omitempty" yaml:"atm_ivrv_ratio,omitempty"`
	IVPremiumATMPct    *float64 `json:"iv_premium_atm_pct,omitempty" yaml:"iv_premium_atm_pct,omitempty"`
	OTMCallIV          *float64 `json:"otm_call_iv,omitempty" yaml:"otm_call_iv,omitempty"`
	OTMCallIVRVRatio   *float64 `json:"otm_call_ivrv_ratio,omitempty" yaml:"otm_call_ivrv_ratio,omitempty"`
	IVPremiumOTMCall   *float64 `json:"iv_premium_otm_call_pct,omitempty" yaml:"iv_premium_otm_call_pct,omitempty"`
	OTMPutIV           *float64 `json:"otm_put_iv,omitempty" yaml:"otm_put_iv,omitempty"`
	OTMPutIVRVRatio    *float64 `json:"otm_put_ivrv_ratio,omitempty" yaml:"otm_put_ivrv_ratio,omitempty"`
	IVPremiumOTMPut    *float64 `json:"iv_premium_otm_put_pct,omitempty" yaml:"iv_premium_otm_put_pct,omitempty"`
	CallSkewIVRVSpread *float64 `json:"call_skew_ivrv_spread,omitempty" yaml:"call_skew_ivrv_spread,omitempty"`
	PutSkewIVRVSpread  *float64 `json:"put_skew_ivrv_spread,omitempty" yaml:"put_skew_ivrv_spread,omitempty"`
}

// Features toggles optional scoring inputs.
type Features struct {
	IVRVEdge bool `json:"ivrv_edge" yaml:"ivrv_edge"`
}

// StrategyInput is the unit of work for one symbol. Built fresh per run.
type StrategyInput struct {
	Symbol       string       `json:"symbol" yaml:"symbol"`
	Chain        OptionChain  `json:"chain" yaml:"chain"`
	Spot         float64      `json:"spot" yaml:"spot"`
	IVRank       *float64     `json:"iv_rank,omitempty" yaml:"iv_rank,omitempty"`
	Trend        Trend        `json:"trend" yaml:"trend"`
	EarningsDate string       `json:"earnings_date,omitempty" yaml:"earnings_date,omitempty"`
	Today        time.Time    `json:"today" yaml:"today"`
	Equity       float64      `json:"equity" yaml:"equity"`
	TermSkew     *TermSkew    `json:"term_skew,omitempty" yaml:"term_skew,omitempty"`
	IVRV         *IVRVMetrics `json:"ivrv,omitempty" yaml:"ivrv,omitempty"`
	Features     Features     `json:"features" yaml:"features"`
}

// UseIVRVEdge reports whether the IV/RV edge factor should be scored.
// Missing metrics still score, as a neutral edge.
func (in *StrategyInput) UseIVRVEdge() bool {
	return in.Features.IVRVEdge
}

// CallSkewSpread returns the call skew IV/RV spread, nil when unknown.
func (in *StrategyInput) CallSkewSpread() *float64 {
	if in.IVRV == nil {
		return nil
	}
	return in.IVRV.CallSkewIVRVSpread
}

// PutSkewSpread returns the put skew IV/RV spread, nil when unknown.
func (in *StrategyInput) PutSkewSpread() *float64 {
	if in.IVRV == nil {
		return nil
	}
	return in.IVRV.PutSkewIVRVSpread
}
