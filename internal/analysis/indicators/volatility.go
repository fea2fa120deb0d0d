package indicators

import (
	"fmt"
	"math"

	"options-engine/internal/models"
)

// HistoricalVolatility calculates annualized close-to-close volatility in percent.
type HistoricalVolatility struct {
	period      int
	tradingDays int // typically 252 for annual
}

// NewHistoricalVolatility creates a new Historical Volatility indicator.
func NewHistoricalVolatility(period, tradingDays int) *HistoricalVolatility {
	return &HistoricalVolatility{
		period:      period,
		tradingDays: tradingDays,
	}
}

func (h *HistoricalVolatility) Name() string {
	return fmt.Sprintf("HistoricalVolatility_%d", h.period)
}

func (h *HistoricalVolatility) Period() int {
	return h.period
}

func (h *HistoricalVolatility) Calculate(candles []models.Candle) ([]float64, error) {
	if h.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) < h.period+1 {
		return nil, ErrInsufficientData
	}

	n := len(candles)
	result := make([]float64, n)
	closes := closePrices(candles)

	logReturns := make([]float64, n)
	for i := 1; i < n; i++ {
		if closes[i-1] > 0 && closes[i] > 0 {
			logReturns[i] = math.Log(closes[i] / closes[i-1])
		}
	}

	annualizationFactor := math.Sqrt(float64(h.tradingDays))
	for i := h.period; i < n; i++ {
		slice := logReturns[i-h.period+1 : i+1]
		result[i] = stdDev(slice) * annualizationFactor * 100
	}

	return result, nil
}

// LastHistoricalVolatility returns the latest volatility over closes (oldest first).
func LastHistoricalVolatility(closes []float64, period, tradingDays int) (float64, error) {
	values, err := NewHistoricalVolatility(period, tradingDays).Calculate(toCandles(closes))
	if err != nil {
		return 0, err
	}
	return values[len(values)-1], nil
}
