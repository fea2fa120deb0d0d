package strategies

import (
	"fmt"

	"options-engine/internal/analysis/scoring"
	"options-engine/internal/config"
	"options-engine/internal/models"
	"options-engine/internal/trading"
)

// BearCallCredit sells an out-of-the-money call spread in bearish or
// neutral markets with rich IV.
type BearCallCredit struct {
	th config.Thresholds

	ShortDeltaMin    float64
	ShortDeltaMax    float64
	ShortDeltaTarget float64
	DeltaTolerance   float64
	Width            float64
	MinDTE, MaxDTE   int
	IVRLow, IVRHigh  float64
	MaxProposals     int
}

// NewBearCallCredit returns the module with its default parameters.
func NewBearCallCredit(th config.Thresholds) *BearCallCredit {
	return &BearCallCredit{
		th:               th,
		ShortDeltaMin:    0.20,
		ShortDeltaMax:    0.30,
		ShortDeltaTarget: 0.25,
		DeltaTolerance:   0.025,
		Width:            spreadWidth,
		MinDTE:           30,
		MaxDTE:           45,
		IVRLow:           60,
		IVRHigh:          100,
		MaxProposals:     2,
	}
}

func (s *BearCallCredit) ID() models.StrategyID { return models.BearCallCredit }

func (s *BearCallCredit) Generate(in *models.StrategyInput) Result {
	var res Result

	if trading.BlockForEarnings(in.EarningsDate, in.Today, trading.EarningsBlockWindowDays) {
		return res
	}
	if in.Trend == models.TrendUp {
		return res
	}

	minCredit := s.th.CreditSpread.MinCreditFrac * s.Width

	for _, exp := range trading.ExpiriesInWindow(in.Chain.Expiries, in.Today, s.MinDTE, s.MaxDTE) {
		calls := withDelta(in.Chain, exp.Expiry, models.Call)

		short, ok := closestDelta(calls,
			func(d float64) bool { return d >= s.ShortDeltaMin && d <= s.ShortDeltaMax },
			func(d float64) float64 { return abs(d - s.ShortDeltaTarget) })
		if !ok {
			continue
		}

		v, ok := priceVertical(calls, short, models.Call, s.Width)
		if !ok || v.credit < minCredit || v.maxSpreadPct > s.th.CreditSpread.MaxSpreadPct {
			continue
		}

		maxLossPer := (s.Width - v.credit) * trading.ContractMultiplier
		qty := trading.PositionSize(maxLossPer, trading.RiskBudget(in.Equity, s.th.Risk.FractionPerTrade), s.th.Risk.MaxQtyPerLeg)
		if qty == 0 {
			continue
		}

		exits := trading.CreditSpreadExits(v.credit, s.Width, trading.ExitOptions{})
		rr := v.credit * trading.ContractMultiplier / maxLossPer
		shortDelta := *short.Delta
		pop := scoring.POPFromShortDelta(abs(shortDelta))

		w := scoring.NewWeighted()
		if in.UseIVRVEdge() && in.IVRV != nil {
			w.Add("delta", scoring.DeltaWindow(abs(shortDelta), s.ShortDeltaTarget, s.DeltaTolerance), 0.25).
				Add("ivr", scoring.IVR(in.IVRank, s.IVRLow, s.IVRHigh), 0.20).
				Add("ivrv_edge", scoring.IVRVEdge(in.CallSkewSpread(), false), 0.30).
				Add("liquidity", v.liquidity(), 0.10).
				Add("rr", scoring.RR(rr), 0.10).
				Add("trend", scoring.TrendBias(30, 90, in.Trend), 0.05)
		} else {
			w.Add("delta", scoring.DeltaWindow(abs(shortDelta), s.ShortDeltaTarget, s.DeltaTolerance), 0.30).
				Add("ivr", scoring.IVR(in.IVRank, s.IVRLow, s.IVRHigh), 0.25).
				Add("liquidity", v.liquidity(), 0.15).
				Add("rr", scoring.RR(rr), 0.15).
				Add("trend", scoring.TrendBias(30, 90, in.Trend), 0.15)
		}

		credit := round2(v.credit)
		res.Proposals = append(res.Proposals, models.Proposal{
			Strategy:    models.BearCallCredit,
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
			POP:         models.Float(pop),
			IVR:         in.IVRank,
			MaxLoss:     maxLossPer * float64(qty),
			Legs: []models.ProposalLeg{
				leg(models.SideSell, models.Call, v.short, qty, v.shortMid),
				leg(models.SideBuy, models.Call, v.long, qty, v.longMid),
			},
			Rationale: fmt.Sprintf("Bearish bias | Short Δ≈%.2f | IVR=%s%% | Width=$%.0f | Spread≤%.0f%%",
				shortDelta, ivrText(in.IVRank), s.Width, s.th.CreditSpread.MaxSpreadPct),
			Meta: map[string]interface{}{"short_delta": shortDelta},
		})

		if len(res.Proposals) >= s.MaxProposals {
			break
		}
	}

	return res
}
