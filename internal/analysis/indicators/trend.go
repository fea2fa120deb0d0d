package indicators

import (
	"fmt"

	"options-engine/internal/models"
)

// SMA calculates Simple Moving Average.
type SMA struct {
	period int
}

// NewSMA creates a new SMA indicator.
func NewSMA(period int) *SMA {
	return &SMA{period: period}
}

func (s *SMA) Name() string {
	return fmt.Sprintf("SMA_%d", s.period)
}

func (s *SMA) Period() int {
	return s.period
}

func (s *SMA) Calculate(candles []models.Candle) ([]float64, error) {
	if s.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) < s.period {
		return nil, ErrInsufficientData
	}

	result := make([]float64, len(candles))
	closes := closePrices(candles)

	for i := s.period - 1; i < len(candles); i++ {
		result[i] = mean(closes[i-s.period+1 : i+1])
	}

	return result, nil
}

// LastSMA returns the latest SMA of prices (oldest first). With fewer prices
// than the period it falls back to the last price, or 0 for an empty series.
func LastSMA(prices []float64, period int) float64 {
	values, err := NewSMA(period).Calculate(toCandles(prices))
	if err != nil {
		if len(prices) == 0 {
			return 0
		}
		return prices[len(prices)-1]
	}
	return values[len(values)-1]
}
