// Package trading provides exit levels, position sizing and event filters
// for option structures.
package trading

// RiskBudget returns the dollar budget for one trade as a fraction of equity.
func RiskBudget(equity, fraction float64) float64 {
	if equity <= 0 || fraction <= 0 {
		return 0
	}
	return equity * fraction
}
