package analytics

import (
	"options-engine/internal/analysis/indicators"
	"options-engine/internal/models"
)

// MinTrendBars is the history DetectTrend needs for the 50-bar average.
const MinTrendBars = 50

// DetectTrend classifies prices (oldest first) with a 20/50 SMA cross
// confirmed by RSI14, falling back to price-vs-SMA20 with a strong RSI.
func DetectTrend(prices []float64) models.Trend {
	if len(prices) < MinTrendBars {
		return models.TrendNeutral
	}

	price := prices[len(prices)-1]
	sma20 := indicators.LastSMA(prices, 20)
	sma50 := indicators.LastSMA(prices, 50)
	rsi := indicators.LastRSI(prices, 14)

	switch {
	case sma20 > sma50 && price > sma20 && rsi > 50:
		return models.TrendUp
	case sma20 < sma50 && price < sma20 && rsi < 50:
		return models.TrendDown
	case price > sma20 && rsi > 60:
		return models.TrendUp
	case price < sma20 && rsi < 40:
		return models.TrendDown
	}
	return models.TrendNeutral
}
