package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: indicator values stay within their mathematical bounds for any
// positive price series.
// - RSI: [0, 100]
// - Historical volatility: >= 0
// - SMA: arithmetic mean of the window

func closesGen(n int) gopter.Gen {
	return gen.SliceOfN(n, gen.Float64Range(50.0, 500.0))
}

func TestProperty_RSIWithinBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("RSI values are always between 0 and 100", prop.ForAll(
		func(closes []float64) bool {
			values, err := NewRSI(14).Calculate(toCandles(closes))
			if err != nil {
				return false
			}
			for i := 14; i < len(values); i++ {
				if values[i] < 0 || values[i] > 100 {
					return false
				}
			}
			return true
		},
		closesGen(40),
	))

	properties.TestingRun(t)
}

func TestProperty_SMAIsAverageOfPrices(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("SMA is the arithmetic mean of closing prices over the period", prop.ForAll(
		func(closes []float64) bool {
			period := 10
			values, err := NewSMA(period).Calculate(toCandles(closes))
			if err != nil {
				return false
			}
			for i := period - 1; i < len(values); i++ {
				if math.Abs(values[i]-mean(closes[i-period+1:i+1])) > 0.0001 {
					return false
				}
			}
			return true
		},
		closesGen(30),
	))

	properties.TestingRun(t)
}

func TestProperty_HistoricalVolatilityNonNegative(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("historical volatility is never negative", prop.ForAll(
		func(closes []float64) bool {
			v, err := LastHistoricalVolatility(closes, 20, 252)
			return err == nil && v >= 0
		},
		closesGen(25),
	))

	properties.TestingRun(t)
}

func TestLastHelpersFallBack(t *testing.T) {
	if got := LastSMA([]float64{10, 11}, 20); got != 11 {
		t.Errorf("LastSMA short series = %v, want last price 11", got)
	}
	if got := LastSMA(nil, 20); got != 0 {
		t.Errorf("LastSMA empty = %v, want 0", got)
	}
	if got := LastRSI([]float64{1, 2, 3}, 14); got != 50 {
		t.Errorf("LastRSI short series = %v, want 50", got)
	}
}

func TestRSIMonotonicSeries(t *testing.T) {
	up := make([]float64, 20)
	down := make([]float64, 20)
	for i := range up {
		up[i] = 100 + float64(i)
		down[i] = 100 - float64(i)
	}
	if got := LastRSI(up, 14); got != 100 {
		t.Errorf("rising series RSI = %v, want 100", got)
	}
	if got := LastRSI(down, 14); got != 0 {
		t.Errorf("falling series RSI = %v, want 0", got)
	}
}
