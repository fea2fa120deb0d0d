// Package scoring provides the factor library and weighted score composition
// used to rank strategy candidates. Every factor returns a value in [0, 100]
// and maps unavailable inputs to a neutral 50.
package scoring

import (
	"math"

	"options-engine/internal/models"
)

// Neutral is the score assigned when an input is unavailable.
const Neutral = 50.0

// DeltaWindow scores how close delta is to target: 100 within tolerance,
// linear decay to 0 at twice the tolerance.
func DeltaWindow(delta, target, tolerance float64) float64 {
	d := math.Abs(delta - target)
	if d <= tolerance {
		return 100
	}
	if d >= 2*tolerance {
		return 0
	}
	return 100 * (1 - (d-tolerance)/tolerance)
}

// IVR scores an IV rank against a strategy's sweet spot [lo, hi].
func IVR(ivRank *float64, lo, hi float64) float64 {
	if ivRank == nil || *ivRank < 0 {
		return Neutral
	}
	ivr := *ivRank

	if ivr < lo {
		return 60 * (ivr / lo)
	}
	if ivr > hi {
		return math.Max(0, 100-math.Min(40, (ivr-hi)*2))
	}

	span := math.Max(1, hi-lo)
	return 80 + 20*((ivr-lo)/span)
}

// TrendBias returns the score matching the trend, or the rounded average
// for a neutral trend.
func TrendBias(bullish, bearish float64, trend models.Trend) float64 {
	switch trend {
	case models.TrendUp:
		return bullish
	case models.TrendDown:
		return bearish
	}
	return math.Round((bullish + bearish) / 2)
}

// Liquidity scores a bid-ask spread in cents and open interest.
// Both penalties are capped at 40; negative inputs mean unknown.
func Liquidity(spreadCents float64, openInterest int64) float64 {
	score := 100.0

	if spreadCents > 10 {
		score -= math.Min(40, (spreadCents-10)*2)
	}

	if openInterest >= 0 && openInterest < 500 {
		score -= math.Min(40, float64(500-openInterest)/10)
	}

	return math.Max(0, score)
}

// POPFromShortDelta approximates probability of profit as 1 - |delta|,
// with |delta| capped at 0.5. Not a pricing model.
func POPFromShortDelta(absShortDelta float64) float64 {
	p := 1 - math.Min(0.5, math.Abs(absShortDelta))
	return math.Round(p * 100)
}

// RR scores a reward/risk ratio: 2+ is 100, 1 is 60, 0.5 is 30, 0 or less is 0.
func RR(rr float64) float64 {
	switch {
	case rr <= 0 || math.IsNaN(rr):
		return 0
	case rr >= 2:
		return 100
	case rr >= 1:
		return 60 + 40*(rr-1)
	case rr >= 0.5:
		return 30 + 30*((rr-0.5)/0.5)
	}
	return 30 * (rr / 0.5)
}

// DTE scores days to expiration against a preferred [min, max] range.
func DTE(dte, min, max float64) float64 {
	if dte < min {
		return math.Max(0, 50*(dte/min))
	}
	if dte > max {
		return math.Max(0, 100-(dte-max))
	}
	return 100
}

// IVRVEdge maps an IV/RV skew spread linearly over [0, 0.25]. Premium
// sellers (preferLow=false) score high spreads well; buyers score low or
// negative spreads well.
func IVRVEdge(spread *float64, preferLow bool) float64 {
	if spread == nil {
		return Neutral
	}
	s := *spread

	if preferLow {
		if s <= 0 {
			return 100
		}
		if s >= 0.25 {
			return 0
		}
		return math.Round(100 * (1 - s/0.25))
	}

	if s <= 0 {
		return 0
	}
	if s >= 0.25 {
		return 100
	}
	return math.Round((s / 0.25) * 100)
}

// IVRVBuyEdge maps a spread over [-0.25, 0.25] to [100, 0] for debit buyers.
func IVRVBuyEdge(spread *float64) float64 {
	if spread == nil {
		return Neutral
	}
	s := *spread

	if s <= -0.25 {
		return 100
	}
	if s >= 0.25 {
		return 0
	}
	return math.Round(100 * (0.25 - s) / 0.5)
}
