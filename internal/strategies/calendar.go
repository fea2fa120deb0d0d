package strategies

import (
	"fmt"
	"math"

	"options-engine/internal/analysis/scoring"
	"options-engine/internal/config"
	"options-engine/internal/models"
	"options-engine/internal/trading"
)

// CalendarCall sells a front-month call and buys a back-month call at the
// back month's ATM strike when the term structure is upward sloping.
type CalendarCall struct {
	th config.Thresholds

	TargetDelta        float64
	DeltaTolerance     float64
	FrontMinDTE        int
	FrontMaxDTE        int
	BackMinDTE         int
	BackMaxDTE         int
	IVRLow, IVRHigh    float64
	MinTermSkewPts     float64
	StrikeTolerancePct float64 // of spot
	MaxProposals       int
}

// NewCalendarCall returns the module with its default parameters.
func NewCalendarCall(th config.Thresholds) *CalendarCall {
	return &CalendarCall{
		th:                 th,
		TargetDelta:        0.50,
		DeltaTolerance:     0.10,
		FrontMinDTE:        14,
		FrontMaxDTE:        21,
		BackMinDTE:         45,
		BackMaxDTE:         75,
		IVRLow:             10,
		IVRHigh:            50,
		MinTermSkewPts:     2,
		StrikeTolerancePct: 0.02,
		MaxProposals:       2,
	}
}

func (s *CalendarCall) ID() models.StrategyID { return models.CalendarCall }

// TermSkewPoints returns (back IV - front IV) in volatility points, and
// false when no term structure is available.
func TermSkewPoints(ts *models.TermSkew) (float64, bool) {
	if ts == nil {
		return 0, false
	}
	return (ts.BackIV - ts.FrontIV) * 100, true
}

func (s *CalendarCall) Generate(in *models.StrategyInput) Result {
	var res Result

	if in.Trend == models.TrendDown {
		return res
	}
	termPts, ok := TermSkewPoints(in.TermSkew)
	if !ok || termPts < s.MinTermSkewPts {
		return res
	}

	fronts := trading.ExpiriesInWindow(in.Chain.Expiries, in.Today, s.FrontMinDTE, s.FrontMaxDTE)
	backs := trading.ExpiriesInWindow(in.Chain.Expiries, in.Today, s.BackMinDTE, s.BackMaxDTE)
	if len(fronts) == 0 || len(backs) == 0 {
		return res
	}

	strikeTolerance := s.StrikeTolerancePct * in.Spot

	for _, front := range fronts {
		for _, back := range backs {
			if len(res.Proposals) >= s.MaxProposals {
				return res
			}

			frontCalls := withDelta(in.Chain, front.Expiry, models.Call)
			backCalls := withDelta(in.Chain, back.Expiry, models.Call)

			backCall, ok := closestDelta(backCalls,
				func(float64) bool { return true },
				func(d float64) float64 { return abs(d - s.TargetDelta) })
			if !ok {
				continue
			}
			frontCall, ok := closestStrike(frontCalls, backCall.Strike)
			if !ok || abs(frontCall.Strike-backCall.Strike) > strikeTolerance {
				continue
			}

			frontMid, ok := frontCall.MidPrice()
			if !ok {
				continue
			}
			backMid, ok := backCall.MidPrice()
			if !ok {
				continue
			}
			netDebit := backMid - frontMid
			if netDebit <= 0 {
				continue
			}

			if math.Max(spreadPct(frontCall), spreadPct(backCall)) > s.th.Debit.MaxSpreadPct {
				continue
			}

			perContract := netDebit * trading.ContractMultiplier
			qty := trading.PositionSize(perContract, trading.RiskBudget(in.Equity, s.th.Risk.FractionPerTrade), s.th.Risk.MaxQtyPerLeg)
			if qty == 0 {
				continue
			}
			exits := trading.CalendarExits(netDebit, trading.ExitOptions{})

			trend := scoring.TrendBias(85, 50, in.Trend)
			if in.Trend == models.TrendNeutral {
				trend = 90
			}
			score := scoring.NewWeighted().
				Add("term_structure", math.Min(100, 50+termPts*10), 0.30).
				Add("strike", scoring.DeltaWindow(*backCall.Delta, s.TargetDelta, s.DeltaTolerance), 0.20).
				Add("trend", trend, 0.15).
				Add("ivr", scoring.IVR(in.IVRank, s.IVRLow, s.IVRHigh), 0.15).
				Add("liquidity", scoring.Liquidity(spreadCents(frontCall, backCall), minOpenInterest(frontCall, backCall)), 0.20).
				Compute()

			debit := round2(netDebit)
			res.Proposals = append(res.Proposals, models.Proposal{
				Strategy:    models.CalendarCall,
				Symbol:      in.Symbol,
				Action:      models.ActionBuy,
				EntryType:   models.EntryCalendar,
				Score:       score,
				Debit:       models.Float(debit),
				EntryPrice:  debit,
				TargetPrice: exits.Target,
				StopPrice:   exits.Stop,
				Qty:         qty,
				DTE:         front.DTE,
				IVR:         in.IVRank,
				MaxLoss:     perContract * float64(qty),
				Legs: []models.ProposalLeg{
					leg(models.SideSell, models.Call, frontCall, qty, frontMid),
					leg(models.SideBuy, models.Call, backCall, qty, backMid),
				},
				Rationale: fmt.Sprintf("Vol expansion play | Term skew: +%.1f%% | Front %dd / Back %dd | Strike $%g (ATM)",
					termPts, front.DTE, back.DTE, backCall.Strike),
				Meta: map[string]interface{}{
					"front_dte":     front.DTE,
					"back_dte":      back.DTE,
					"term_skew_pts": round2(termPts),
				},
			})
		}
	}

	return res
}

// CalendarPut is the put-side calendar. It is registered but disabled and
// emits nothing until a put anchor rule is settled.
type CalendarPut struct {
	th config.Thresholds
}

// NewCalendarPut returns the scaffold module.
func NewCalendarPut(th config.Thresholds) *CalendarPut {
	return &CalendarPut{th: th}
}

func (s *CalendarPut) ID() models.StrategyID { return models.CalendarPut }

func (s *CalendarPut) Generate(*models.StrategyInput) Result {
	return Result{}
}
