package analytics

import (
	"math"
	"sort"

	"options-engine/internal/models"
)

// Delta anchors for the IV/RV bundle.
const (
	atmDelta     = 0.50
	atmTolerance = 0.10
	otmDelta     = 0.20
	otmTolerance = 0.05
)

// SelectByDelta returns the quote of the given right whose delta is closest
// to target, within tolerance. Quotes without delta or IV are ignored.
func SelectByDelta(quotes []models.OptionQuote, target float64, right models.OptionType, tolerance float64) (models.OptionQuote, bool) {
	var (
		best  models.OptionQuote
		found bool
		diff  = math.Inf(1)
	)
	for _, q := range quotes {
		if q.Right != right || q.Delta == nil || q.IV == nil {
			continue
		}
		d := math.Abs(*q.Delta - target)
		if d <= tolerance && d < diff {
			best, diff, found = q, d, true
		}
	}
	return best, found
}

// IVRV computes the IV/RV bundle from the front expiry of chain. rv20 is in
// percent, chain IVs are decimals; ratios compare like units. Skew spreads
// are the OTM ratio minus the ATM ratio, so a positive call skew spread
// means upside wings are rich relative to the money.
func IVRV(chain models.OptionChain, rv20 float64) models.IVRVMetrics {
	out := models.IVRVMetrics{RV20: rv20}
	if len(chain.Expiries) == 0 || rv20 <= 0 {
		return out
	}

	expiries := append([]string(nil), chain.Expiries...)
	sort.Strings(expiries)
	quotes := chain.ForExpiry(expiries[0])
	rv := rv20 / 100

	atmCall, hasATMCall := SelectByDelta(quotes, atmDelta, models.Call, atmTolerance)
	atmPut, hasATMPut := SelectByDelta(quotes, -atmDelta, models.Put, atmTolerance)

	switch {
	case hasATMCall && hasATMPut:
		out.ATMIV = models.Float((*atmCall.IV + math.Abs(*atmPut.IV)) / 2)
	case hasATMCall:
		out.ATMIV = models.Float(*atmCall.IV)
	case hasATMPut:
		out.ATMIV = models.Float(math.Abs(*atmPut.IV))
	}

	if otmCall, ok := SelectByDelta(quotes, otmDelta, models.Call, otmTolerance); ok {
		out.OTMCallIV = models.Float(*otmCall.IV)
	}
	if otmPut, ok := SelectByDelta(quotes, -otmDelta, models.Put, otmTolerance); ok {
		out.OTMPutIV = models.Float(math.Abs(*otmPut.IV))
	}

	ratio := func(iv *float64) *float64 {
		if iv == nil || *iv <= 0 {
			return nil
		}
		return models.Float(*iv / rv)
	}
	premium := func(iv *float64) *float64 {
		if iv == nil || *iv <= 0 {
			return nil
		}
		return models.Float((*iv - rv) / rv * 100)
	}

	out.ATMIVRVRatio = ratio(out.ATMIV)
	out.OTMCallIVRVRatio = ratio(out.OTMCallIV)
	out.OTMPutIVRVRatio = ratio(out.OTMPutIV)
	out.IVPremiumATMPct = premium(out.ATMIV)
	out.IVPremiumOTMCall = premium(out.OTMCallIV)
	out.IVPremiumOTMPut = premium(out.OTMPutIV)

	if out.ATMIVRVRatio != nil {
		if out.OTMCallIVRVRatio != nil {
			out.CallSkewIVRVSpread = models.Float(*out.OTMCallIVRVRatio - *out.ATMIVRVRatio)
		}
		if out.OTMPutIVRVRatio != nil {
			out.PutSkewIVRVSpread = models.Float(*out.OTMPutIVRVRatio - *out.ATMIVRVRatio)
		}
	}
	return out
}
