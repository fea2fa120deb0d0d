package analytics

import (
	"math"
	"time"

	"options-engine/internal/models"
	"options-engine/internal/trading"
)

// MinIVRankSamples is the history needed before IV rank is meaningful.
const MinIVRankSamples = 5

// IVRank ranks the newest IV sample against the range of the rest, 0-100.
// samples are newest first. It returns nil with too little history and 50
// when the history is flat.
func IVRank(samples []float64) *float64 {
	if len(samples) < MinIVRankSamples {
		return nil
	}

	current := samples[0]
	lo, hi := samples[1], samples[1]
	for _, s := range samples[2:] {
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}
	if hi <= lo {
		return models.Float(50)
	}

	rank := (current - lo) / (hi - lo) * 100
	return models.Float(math.Max(0, math.Min(100, rank)))
}

// PctBidAsk is the bid-ask spread as a percentage of mid, 999 for an
// invalid market.
func PctBidAsk(bid, ask *float64) float64 {
	if bid == nil || ask == nil || *bid <= 0 || *ask <= 0 {
		return 999
	}
	mid := (*bid + *ask) / 2
	return (*ask - *bid) / mid * 100
}

// normCDF is the Abramowitz-Stegun approximation of the standard normal CDF.
func normCDF(x float64) float64 {
	t := 1 / (1 + 0.2316419*math.Abs(x))
	d := 0.3989423 * math.Exp(-x*x/2)
	p := d * t * (0.3193815 + t*(-0.3565638+t*(1.781478+t*(-1.821256+t*1.330274))))
	if x > 0 {
		return 1 - p
	}
	return p
}

// BSDelta is the Black-Scholes delta, used only to fill missing greeks.
// t is in years and iv a decimal.
func BSDelta(spot, strike, t, iv, rate float64, right models.OptionType) float64 {
	if t <= 0 {
		if right == models.Call {
			if spot > strike {
				return 1
			}
			return 0
		}
		if spot < strike {
			return -1
		}
		return 0
	}
	if iv <= 0 || spot <= 0 || strike <= 0 {
		if right == models.Call {
			return 0.5
		}
		return -0.5
	}

	d1 := (math.Log(spot/strike) + (rate+iv*iv/2)*t) / (iv * math.Sqrt(t))
	delta := normCDF(d1)
	if right == models.Call {
		return delta
	}
	return delta - 1
}

// FillMissingDeltas returns a copy of chain where quotes lacking a delta get
// a Black-Scholes estimate from their IV. Quotes without IV are left alone.
func FillMissingDeltas(chain models.OptionChain, spot float64, today time.Time) models.OptionChain {
	quotes := make([]models.OptionQuote, len(chain.Quotes))
	copy(quotes, chain.Quotes)
	for i, q := range quotes {
		if q.Delta != nil || q.IV == nil {
			continue
		}
		dte := trading.DaysToExpiry(q.Expiry, today)
		if dte < 0 {
			continue
		}
		d := BSDelta(spot, q.Strike, float64(dte)/365, *q.IV, 0, q.Right)
		quotes[i].Delta = &d
	}
	return models.NewOptionChain(chain.Symbol, quotes)
}

// Term structure windows for the calendar skew.
const (
	frontMinDTE = 14
	frontMaxDTE = 21
	backMinDTE  = 45
	backMaxDTE  = 75
)

// TermSkew averages ATM implied volatility in the nearest front (14-21 DTE)
// and back (45-75 DTE) expiries. ATM means |delta| in [0.4, 0.6]; with no
// ATM quotes every quote with an IV is used. It returns nil when either
// month is missing.
func TermSkew(chain models.OptionChain, today time.Time) *models.TermSkew {
	fronts := trading.ExpiriesInWindow(chain.Expiries, today, frontMinDTE, frontMaxDTE)
	backs := trading.ExpiriesInWindow(chain.Expiries, today, backMinDTE, backMaxDTE)
	if len(fronts) == 0 || len(backs) == 0 {
		return nil
	}

	frontIV, ok := averageATMIV(chain.ForExpiry(fronts[0].Expiry))
	if !ok {
		return nil
	}
	backIV, ok := averageATMIV(chain.ForExpiry(backs[0].Expiry))
	if !ok {
		return nil
	}
	return &models.TermSkew{FrontIV: frontIV, BackIV: backIV}
}

func averageATMIV(quotes []models.OptionQuote) (float64, bool) {
	var all, atm []float64
	for _, q := range quotes {
		if q.IV == nil {
			continue
		}
		all = append(all, *q.IV)
		if q.Delta != nil {
			if d := math.Abs(*q.Delta); d >= 0.4 && d <= 0.6 {
				atm = append(atm, *q.IV)
			}
		}
	}
	if len(atm) > 0 {
		return average(atm), true
	}
	if len(all) > 0 {
		return average(all), true
	}
	return 0, false
}

func average(values []float64) float64 {
	var s float64
	for _, v := range values {
		s += v
	}
	return s / float64(len(values))
}
