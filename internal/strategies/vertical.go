package strategies

import (
	"math"

	"options-engine/internal/analysis/scoring"
	"options-engine/internal/models"
)

// vertical is a priced short vertical: a short leg and a long leg one width
// further out of the money.
type vertical struct {
	short, long       models.OptionQuote
	shortMid, longMid float64
	credit            float64
	maxSpreadPct      float64
}

func (v vertical) liquidity() float64 {
	return scoring.Liquidity(spreadCents(v.short, v.long), minOpenInterest(v.short, v.long))
}

// priceVertical pairs short with the quote exactly width further out of the
// money and prices the spread. It fails when the long strike is missing, a
// leg has no two-sided market, or the credit is not positive.
func priceVertical(quotes []models.OptionQuote, short models.OptionQuote, right models.OptionType, width float64) (vertical, bool) {
	target := short.Strike + width
	if right == models.Put {
		target = short.Strike - width
	}

	long, ok := findStrike(quotes, target)
	if !ok {
		return vertical{}, false
	}

	shortMid, ok := short.MidPrice()
	if !ok {
		return vertical{}, false
	}
	longMid, ok := long.MidPrice()
	if !ok {
		return vertical{}, false
	}

	credit := shortMid - longMid
	if credit <= 0 {
		return vertical{}, false
	}

	return vertical{
		short:        short,
		long:         long,
		shortMid:     shortMid,
		longMid:      longMid,
		credit:       credit,
		maxSpreadPct: math.Max(spreadPct(short), spreadPct(long)),
	}, true
}
