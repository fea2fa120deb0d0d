package strategies

import (
	"fmt"

	"options-engine/internal/analysis/scoring"
	"options-engine/internal/config"
	"options-engine/internal/models"
	"options-engine/internal/trading"
)

// BullPutCredit sells an out-of-the-money put spread near 37 DTE.
type BullPutCredit struct {
	th config.Thresholds

	ShortDeltaMin    float64
	ShortDeltaMax    float64
	ShortDeltaTarget float64
	Width            float64
	MinDTE, MaxDTE   int
	TargetDTE        float64
}

// NewBullPutCredit returns the module with its default parameters.
func NewBullPutCredit(th config.Thresholds) *BullPutCredit {
	return &BullPutCredit{
		th:               th,
		ShortDeltaMin:    -0.30,
		ShortDeltaMax:    -0.20,
		ShortDeltaTarget: -0.25,
		Width:            spreadWidth,
		MinDTE:           30,
		MaxDTE:           45,
		TargetDTE:        37.5,
	}
}

func (s *BullPutCredit) ID() models.StrategyID { return models.BullPutCredit }

// Generate evaluates only the expiry closest to the target DTE and emits at
// most one proposal.
func (s *BullPutCredit) Generate(in *models.StrategyInput) Result {
	var res Result

	window := trading.SortByTargetDTE(
		trading.ExpiriesInWindow(in.Chain.Expiries, in.Today, s.MinDTE, s.MaxDTE), s.TargetDTE)
	if len(window) == 0 {
		return res
	}
	exp := window[0]

	puts := withDelta(in.Chain, exp.Expiry, models.Put)
	short, ok := closestDelta(puts,
		func(d float64) bool { return d >= s.ShortDeltaMin && d <= s.ShortDeltaMax },
		func(d float64) float64 { return abs(s.ShortDeltaTarget - d) })
	if !ok {
		return res
	}

	v, ok := priceVertical(puts, short, models.Put, s.Width)
	if !ok {
		return res
	}
	if v.credit < s.th.CreditSpread.MinCreditFrac*s.Width || v.maxSpreadPct > s.th.CreditSpread.MaxSpreadPct {
		return res
	}

	maxLossPer := (s.Width - v.credit) * trading.ContractMultiplier
	qty := trading.PositionSize(maxLossPer, trading.RiskBudget(in.Equity, s.th.Risk.FractionPerTrade), s.th.Risk.MaxQtyPerLeg)
	if qty == 0 || maxLossPer*float64(qty) > s.th.Risk.MaxNotional {
		return res
	}

	exits := trading.CreditSpreadExits(v.credit, s.Width, trading.ExitOptions{})
	rr := v.credit * trading.ContractMultiplier / maxLossPer
	shortDelta := *short.Delta
	pop := (1 - abs(shortDelta)) * 100

	ivrScore := models.Deref(in.IVRank, scoring.Neutral)
	w := scoring.NewWeighted()
	if in.UseIVRVEdge() && in.IVRV != nil {
		w.Add("ivr", ivrScore, 0.40).
			Add("pop", pop, 0.35).
			Add("ivrv_edge", scoring.IVRVEdge(in.PutSkewSpread(), false), 0.25)
	} else {
		w.Add("ivr", ivrScore, 0.50).
			Add("pop", pop, 0.50)
	}

	credit := round2(v.credit)
	res.Proposals = append(res.Proposals, models.Proposal{
		Strategy:    models.BullPutCredit,
		Symbol:      in.Symbol,
		Action:      models.ActionSell,
		EntryType:   models.EntryCreditSpread,
		Score:       w.Compute(),
		Credit:      models.Float(credit),
		EntryPrice:  credit,
		TargetPrice: exits.Target,
		StopPrice:   exits.Stop,
		Width:       s.Width,
		Qty:         qty,
		DTE:         exp.DTE,
		RR:          models.Float(round2(rr)),
		POP:         models.Float(round1(pop)),
		IVR:         in.IVRank,
		MaxLoss:     maxLossPer * float64(qty),
		Legs: []models.ProposalLeg{
			leg(models.SideSell, models.Put, v.short, qty, v.shortMid),
			leg(models.SideBuy, models.Put, v.long, qty, v.longMid),
		},
		Rationale: fmt.Sprintf("Delta≈%.2f | IVR=%s%% | Spread%%<=%.0f%%",
			shortDelta, ivrText(in.IVRank), s.th.CreditSpread.MaxSpreadPct),
		Meta: map[string]interface{}{"short_delta": shortDelta},
	})

	return res
}
