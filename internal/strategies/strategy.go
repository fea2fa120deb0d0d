// Package strategies implements the option strategy modules. Each module is
// a pure function of a StrategyInput: it searches the chain for one
// structure type and emits zero or more scored proposals. A failed gate or
// quality check yields an empty result, never an error.
package strategies

import (
	"fmt"
	"math"
	"sort"

	"options-engine/internal/config"
	"options-engine/internal/models"
	"options-engine/pkg/utils"
)

// Result is a module's output for one symbol.
type Result struct {
	Proposals []models.Proposal
}

// Module generates proposals for one strategy.
type Module interface {
	ID() models.StrategyID
	Generate(in *models.StrategyInput) Result
}

// All returns one instance of every module, in registry order.
func All(th config.Thresholds) []Module {
	return []Module{
		NewLongCall(th),
		NewBullPutCredit(th),
		NewLongPut(th),
		NewBearCallCredit(th),
		NewIronCondor(th),
		NewCalendarCall(th),
		NewCalendarPut(th),
	}
}

// spreadWidth is the fixed strike width of the vertical spreads.
const spreadWidth = 5.0

// strikeTolerance is the match tolerance when locating a leg by strike.
const strikeTolerance = 0.01

// spreadPct is the bid-ask spread as a percentage of the bid. Quotes without
// a usable market return 100 so they fail any spread threshold.
func spreadPct(q models.OptionQuote) float64 {
	if q.Bid == nil || q.Ask == nil || *q.Bid <= 0 {
		return 100
	}
	return (*q.Ask - *q.Bid) / *q.Bid * 100
}

// spreadCents is the widest bid-ask spread across quotes, in cents.
func spreadCents(quotes ...models.OptionQuote) float64 {
	widest := 0.0
	for _, q := range quotes {
		if q.Bid == nil || q.Ask == nil {
			return 100
		}
		widest = math.Max(widest, (*q.Ask-*q.Bid)*100)
	}
	return widest
}

func minOpenInterest(quotes ...models.OptionQuote) int64 {
	if len(quotes) == 0 {
		return 0
	}
	oi := quotes[0].OpenInterest
	for _, q := range quotes[1:] {
		if q.OpenInterest < oi {
			oi = q.OpenInterest
		}
	}
	return oi
}

// withDelta returns the quotes for one expiry and right that carry a delta.
func withDelta(chain models.OptionChain, expiry string, right models.OptionType) []models.OptionQuote {
	var out []models.OptionQuote
	for _, q := range chain.Filter(expiry, right) {
		if q.Delta != nil {
			out = append(out, q)
		}
	}
	return out
}

// closestDelta picks the quote whose delta passes inBand and minimizes
// distance. Ties keep chain order.
func closestDelta(quotes []models.OptionQuote, inBand func(d float64) bool, distance func(d float64) float64) (models.OptionQuote, bool) {
	type candidate struct {
		quote models.OptionQuote
		diff  float64
	}
	var candidates []candidate
	for _, q := range quotes {
		d := *q.Delta
		if inBand(d) {
			candidates = append(candidates, candidate{quote: q, diff: distance(d)})
		}
	}
	if len(candidates) == 0 {
		return models.OptionQuote{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].diff < candidates[j].diff })
	return candidates[0].quote, true
}

// findStrike locates the quote at an exact strike.
func findStrike(quotes []models.OptionQuote, strike float64) (models.OptionQuote, bool) {
	for _, q := range quotes {
		if math.Abs(q.Strike-strike) < strikeTolerance {
			return q, true
		}
	}
	return models.OptionQuote{}, false
}

// closestStrike returns the quote with the strike nearest to strike.
func closestStrike(quotes []models.OptionQuote, strike float64) (models.OptionQuote, bool) {
	if len(quotes) == 0 {
		return models.OptionQuote{}, false
	}
	best := quotes[0]
	for _, q := range quotes[1:] {
		if math.Abs(q.Strike-strike) < math.Abs(best.Strike-strike) {
			best = q
		}
	}
	return best, true
}

func round2(v float64) float64 { return utils.Round(v, 2) }

func round1(v float64) float64 { return utils.Round(v, 1) }

func ivrText(ivr *float64) string {
	if ivr == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.0f", *ivr)
}

func leg(side models.Side, right models.OptionType, q models.OptionQuote, qty int, price float64) models.ProposalLeg {
	return models.ProposalLeg{
		Side:     side,
		Type:     right,
		Strike:   q.Strike,
		Expiry:   q.Expiry,
		Quantity: qty,
		Price:    round2(price),
	}
}

func abs(v float64) float64 {
	return math.Abs(v)
}
