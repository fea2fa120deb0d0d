// Package analytics derives per-symbol market context for the strategy
// engine: realized volatility, IV/RV ratios and skews, IV rank, term
// structure and trend classification.
package analytics

import (
	"fmt"
	"math"

	"options-engine/internal/analysis/indicators"
)

const (
	tradingDays = 252
	// RVFloor keeps realized volatility away from zero so ratios stay finite.
	RVFloor = 5.0
)

// RV returns the annualized realized volatility in percent over period log
// returns. closes are newest first and must hold at least period+1 values.
func RV(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, indicators.ErrInvalidPeriod
	}
	if len(closes) < period+1 {
		return 0, fmt.Errorf("need at least %d closes for RV%d: %w", period+1, period, indicators.ErrInsufficientData)
	}

	window := make([]float64, period+1)
	for i := range window {
		window[i] = closes[period-i]
	}

	hv, err := indicators.LastHistoricalVolatility(window, period, tradingDays)
	if err != nil {
		return 0, err
	}
	return math.Max(RVFloor, hv), nil
}

// RV20 is RV over 20 returns.
func RV20(closes []float64) (float64, error) {
	return RV(closes, 20)
}

// MultiPeriodRV holds realized volatility over several lookbacks. A nil
// field means there was not enough history.
type MultiPeriodRV struct {
	RV10 *float64 `json:"rv10"`
	RV20 *float64 `json:"rv20"`
	RV30 *float64 `json:"rv30"`
}

// CalcMultiPeriodRV computes RV10, RV20 and RV30 where history allows.
func CalcMultiPeriodRV(closes []float64) MultiPeriodRV {
	at := func(period int) *float64 {
		v, err := RV(closes, period)
		if err != nil {
			return nil
		}
		return &v
	}
	return MultiPeriodRV{RV10: at(10), RV20: at(20), RV30: at(30)}
}
