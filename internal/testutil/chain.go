// Package testutil builds synthetic option chains and strategy inputs for tests.
package testutil

import (
	"math"
	"time"

	"options-engine/internal/models"
	"options-engine/pkg/utils"
)

// Today is the fixed evaluation date used by synthetic inputs.
var Today = time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

// DefaultStrikes spans 70..130 in $5 steps, enough for $5 spreads on both
// sides of a $100 spot.
var DefaultStrikes = []float64{70, 75, 80, 85, 90, 95, 100, 105, 110, 115, 120, 125, 130}

// ChainParams configures MakeChain. Zero values take defaults.
type ChainParams struct {
	Symbol   string
	Spot     float64
	Today    time.Time
	DTEFront int
	DTEBack  int
	Strikes  []float64
	IVFront  float64
	IVBack   float64
}

func (p *ChainParams) defaults() {
	if p.Symbol == "" {
		p.Symbol = "TEST"
	}
	if p.Spot == 0 {
		p.Spot = 100
	}
	if p.Today.IsZero() {
		p.Today = Today
	}
	if p.DTEFront == 0 {
		p.DTEFront = 21
	}
	if p.DTEBack == 0 {
		p.DTEBack = 60
	}
	if len(p.Strikes) == 0 {
		p.Strikes = DefaultStrikes
	}
	if p.IVFront == 0 {
		p.IVFront = 0.25
	}
	if p.IVBack == 0 {
		p.IVBack = 0.30
	}
}

// Date returns today plus offset days in expiry layout.
func Date(today time.Time, offsetDays int) string {
	return today.AddDate(0, 0, offsetDays).Format(models.ExpiryLayout)
}

func round2(v float64) float64 { return utils.Round(v, 2) }

func clamp(v, lo, hi float64) float64 { return utils.Clamp(v, lo, hi) }

// timeValue is a generous synthetic premium: rich in the money, decaying
// exponentially out of the money with a floor.
func timeValue(itm bool, distance, pctOTM float64) float64 {
	if itm {
		return 8 + distance*0.25
	}
	return math.Max(0.80, 12*math.Exp(-pctOTM*5))
}

// MakeChain builds a two-expiry chain around spot. Deltas follow a tanh
// curve in moneyness; back month premiums are 30% richer with wider markets.
func MakeChain(p ChainParams) (chain models.OptionChain, front, back string) {
	p.defaults()

	front = Date(p.Today, p.DTEFront)
	back = Date(p.Today, p.DTEBack)
	ts := p.Today.Add(15 * time.Hour)

	var quotes []models.OptionQuote
	for _, s := range p.Strikes {
		distance := math.Abs(s - p.Spot)
		pctOTM := distance / p.Spot

		callMid := round2(math.Max(0, p.Spot-s) + timeValue(s <= p.Spot, p.Spot-s, pctOTM))
		putMid := round2(math.Max(0, s-p.Spot) + timeValue(s >= p.Spot, s-p.Spot, pctOTM))

		m := (s - p.Spot) / p.Spot
		callDelta := clamp(0.5+0.4*math.Tanh(-m*5), 0.05, 0.95)
		putDelta := clamp(-0.5-0.4*math.Tanh(m*5), -0.95, -0.05)

		quotes = append(quotes,
			Quote(p.Symbol, front, s, models.Call, callMid-0.05, callMid+0.05, round2(callDelta), p.IVFront, 1000, ts),
			Quote(p.Symbol, front, s, models.Put, putMid-0.05, putMid+0.05, round2(putDelta), p.IVFront, 1000, ts),
		)

		backCallMid := round2(callMid * 1.3)
		backPutMid := round2(putMid * 1.3)
		quotes = append(quotes,
			Quote(p.Symbol, back, s, models.Call, backCallMid-0.10, backCallMid+0.10,
				round2(math.Min(0.95, callDelta+0.05)), p.IVBack, 1200, ts),
			Quote(p.Symbol, back, s, models.Put, backPutMid-0.10, backPutMid+0.10,
				round2(math.Max(-0.95, putDelta-0.05)), p.IVBack, 1200, ts),
		)
	}

	return models.NewOptionChain(p.Symbol, quotes), front, back
}

// Quote builds a fully populated quote. Bid and ask are rounded to cents.
func Quote(symbol, expiry string, strike float64, right models.OptionType,
	bid, ask, delta, iv float64, openInterest int64, ts time.Time) models.OptionQuote {
	bid, ask = round2(bid), round2(ask)
	return models.OptionQuote{
		Symbol:       symbol,
		Expiry:       expiry,
		Strike:       strike,
		Right:        right,
		Bid:          models.Float(bid),
		Ask:          models.Float(ask),
		Mid:          models.Float(round2((bid + ask) / 2)),
		IV:           models.Float(iv),
		Delta:        models.Float(delta),
		Gamma:        models.Float(0.02),
		Vega:         models.Float(0.10),
		Theta:        models.Float(-0.02),
		Volume:       500,
		OpenInterest: openInterest,
		Timestamp:    ts,
	}
}
