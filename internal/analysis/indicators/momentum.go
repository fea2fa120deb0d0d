package indicators

import (
	"fmt"

	"options-engine/internal/models"
)

// RSI calculates the Relative Strength Index using plain averages of the
// gains and losses inside each window (Cutler's variant).
type RSI struct {
	period int
}

// NewRSI creates a new RSI indicator.
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string {
	return fmt.Sprintf("RSI_%d", r.period)
}

func (r *RSI) Period() int {
	return r.period
}

func (r *RSI) Calculate(candles []models.Candle) ([]float64, error) {
	if r.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) < r.period+1 {
		return nil, ErrInsufficientData
	}

	n := len(candles)
	result := make([]float64, n)
	closes := closePrices(candles)

	gains := make([]float64, n)
	losses := make([]float64, n)

	for i := 1; i < n; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	for i := r.period; i < n; i++ {
		avgGain := mean(gains[i-r.period+1 : i+1])
		avgLoss := mean(losses[i-r.period+1 : i+1])

		switch {
		case avgLoss == 0:
			result[i] = 100
		case avgGain == 0:
			result[i] = 0
		default:
			rs := avgGain / avgLoss
			result[i] = 100 - (100 / (1 + rs))
		}
	}

	return result, nil
}

// LastRSI returns the latest RSI of prices (oldest first), or a neutral 50
// when there is not enough history.
func LastRSI(prices []float64, period int) float64 {
	values, err := NewRSI(period).Calculate(toCandles(prices))
	if err != nil {
		return 50
	}
	return values[len(values)-1]
}
