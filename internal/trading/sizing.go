package trading

import "math"

// DefaultMaxQty is the hard per-leg contract cap.
const DefaultMaxQty = 5

// PositionSize converts a risk budget into a contract count:
// clamp(floor(budget / maxLossPerContract), 1, maxQty). A non-positive
// max loss returns 0, which callers treat as a rejection.
func PositionSize(maxLossPerContract, riskBudget float64, maxQty int) int {
	if maxLossPerContract <= 0 || math.IsNaN(maxLossPerContract) {
		return 0
	}
	if maxQty < 1 {
		maxQty = DefaultMaxQty
	}

	qty := int(math.Floor(riskBudget / maxLossPerContract))
	if qty > maxQty {
		qty = maxQty
	}
	if qty < 1 {
		qty = 1
	}
	return qty
}
