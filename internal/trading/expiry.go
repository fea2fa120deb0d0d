package trading

import (
	"math"
	"sort"
	"time"
)

// ExpiryDTE pairs an expiry date with its days to expiry.
type ExpiryDTE struct {
	Expiry string
	DTE    int
}

// DaysToExpiry returns the calendar days from today to expiry, rounded to the
// nearest day with halves rounding up. It returns -1 for an unparseable
// expiry.
func DaysToExpiry(expiry string, today time.Time) int {
	exp, ok := parseDate(expiry)
	if !ok {
		return -1
	}
	return dteBetween(exp, today)
}

func dteBetween(exp, today time.Time) int {
	return int(math.Floor(exp.Sub(DateOnly(today)).Hours()/24 + 0.5))
}

// ExpiriesInWindow returns the expiries whose DTE lies in [minDTE, maxDTE],
// nearest first. Unparseable dates are skipped.
func ExpiriesInWindow(expiries []string, today time.Time, minDTE, maxDTE int) []ExpiryDTE {
	var out []ExpiryDTE
	for _, e := range expiries {
		exp, ok := parseDate(e)
		if !ok {
			continue
		}
		dte := dteBetween(exp, today)
		if dte < minDTE || dte > maxDTE {
			continue
		}
		out = append(out, ExpiryDTE{Expiry: e, DTE: dte})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DTE < out[j].DTE
	})
	return out
}

// SortByTargetDTE orders expiries by distance from target. Ties keep their
// input order. The input slice is not modified.
func SortByTargetDTE(expiries []ExpiryDTE, target float64) []ExpiryDTE {
	out := make([]ExpiryDTE, len(expiries))
	copy(out, expiries)
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(float64(out[i].DTE)-target) < math.Abs(float64(out[j].DTE)-target)
	})
	return out
}
