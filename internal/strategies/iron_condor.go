package strategies

import (
	"fmt"
	"math"

	"options-engine/internal/analysis/scoring"
	"options-engine/internal/config"
	"options-engine/internal/models"
	"options-engine/internal/trading"
)

// IronCondor sells a call spread and a put spread with balanced short
// deltas. Neutral trends score higher but are not required.
type IronCondor struct {
	th config.Thresholds

	ShortDeltaMin    float64
	ShortDeltaMax    float64
	ShortDeltaTarget float64
	Width            float64
	MinDTE, MaxDTE   int
	IVRLow, IVRHigh  float64
}

// NewIronCondor returns the module with its default parameters.
func NewIronCondor(th config.Thresholds) *IronCondor {
	return &IronCondor{
		th:               th,
		ShortDeltaMin:    0.18,
		ShortDeltaMax:    0.28,
		ShortDeltaTarget: 0.22,
		Width:            spreadWidth,
		MinDTE:           30,
		MaxDTE:           45,
		IVRLow:           20,
		IVRHigh:          60,
	}
}

func (s *IronCondor) ID() models.StrategyID { return models.IronCondor }

func (s *IronCondor) side(quotes []models.OptionQuote, right models.OptionType) (vertical, bool) {
	short, ok := closestDelta(quotes,
		func(d float64) bool { return abs(d) >= s.ShortDeltaMin && abs(d) <= s.ShortDeltaMax },
		func(d float64) float64 { return abs(abs(d) - s.ShortDeltaTarget) })
	if !ok {
		return vertical{}, false
	}
	return priceVertical(quotes, short, right, s.Width)
}

// Generate emits at most one condor, from the nearest qualifying expiry.
func (s *IronCondor) Generate(in *models.StrategyInput) Result {
	var res Result
	th := s.th.IronCondor

	if trading.BlockForEarnings(in.EarningsDate, in.Today, th.EarningsBlockWindowDays) {
		return res
	}

	for _, exp := range trading.ExpiriesInWindow(in.Chain.Expiries, in.Today, s.MinDTE, s.MaxDTE) {
		calls := withDelta(in.Chain, exp.Expiry, models.Call)
		puts := withDelta(in.Chain, exp.Expiry, models.Put)
		if len(calls) < 2 || len(puts) < 2 {
			continue
		}

		callSide, ok := s.side(calls, models.Call)
		if !ok {
			continue
		}
		putSide, ok := s.side(puts, models.Put)
		if !ok {
			continue
		}

		callDelta := abs(*callSide.short.Delta)
		putDelta := abs(*putSide.short.Delta)
		imbalance := abs(callDelta - putDelta)
		if imbalance > th.SymmetryTolerance {
			continue
		}

		totalCredit := callSide.credit + putSide.credit
		if totalCredit < th.MinCreditFrac*s.Width*2 {
			continue
		}
		if math.Max(callSide.maxSpreadPct, putSide.maxSpreadPct) > th.MaxSpreadPct {
			continue
		}

		// Only one side can finish in the money, so risk is the worse side.
		maxLossPer := (s.Width - math.Min(callSide.credit, putSide.credit)) * trading.ContractMultiplier
		qty := trading.PositionSize(maxLossPer, trading.RiskBudget(in.Equity, s.th.Risk.FractionPerTrade), s.th.Risk.MaxQtyPerLeg)
		if qty == 0 {
			continue
		}

		exits := trading.CondorExits(totalCredit, s.Width, trading.ExitOptions{})
		rr := totalCredit * trading.ContractMultiplier / maxLossPer
		pop := math.Round((scoring.POPFromShortDelta(callDelta)+scoring.POPFromShortDelta(putDelta))/2) - 10

		symmetry := 100 - imbalance/th.SymmetryTolerance*100
		trend := scoring.TrendBias(70, 70, in.Trend)
		if in.Trend == models.TrendNeutral {
			trend = 95
		}
		liquidity := math.Min(callSide.liquidity(), putSide.liquidity())

		w := scoring.NewWeighted().
			Add("symmetry", symmetry, 0.20).
			Add("liquidity", liquidity, 0.20).
			Add("rr", scoring.RR(rr), 0.15)
		if in.UseIVRVEdge() {
			w.Add("ivr", scoring.IVR(in.IVRank, s.IVRLow, s.IVRHigh), 0.20).
				Add("ivrv_edge", scoring.IVRVEdge(averageSkew(in), false), 0.25)
		} else {
			w.Add("ivr", scoring.IVR(in.IVRank, s.IVRLow, s.IVRHigh), 0.25).
				Add("trend", trend, 0.20)
		}

		credit := round2(totalCredit)
		res.Proposals = append(res.Proposals, models.Proposal{
			Strategy:    models.IronCondor,
			Symbol:      in.Symbol,
			Action:      models.ActionSell,
			EntryType:   models.EntryIronCondor,
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
				leg(models.SideSell, models.Call, callSide.short, qty, callSide.shortMid),
				leg(models.SideBuy, models.Call, callSide.long, qty, callSide.longMid),
				leg(models.SideSell, models.Put, putSide.short, qty, putSide.shortMid),
				leg(models.SideBuy, models.Put, putSide.long, qty, putSide.longMid),
			},
			Rationale: fmt.Sprintf("Neutral range | Δ balance: ±%.2f | IVR=%s%% | Width=$%.0f both sides",
				callDelta, ivrText(in.IVRank), s.Width),
			Meta: map[string]interface{}{
				"call_delta":      callDelta,
				"put_delta":       putDelta,
				"delta_imbalance": round2(imbalance),
			},
		})
		break
	}

	return res
}

// averageSkew is the mean of the call and put skew spreads, nil when no
// analytics are attached. A missing side counts as zero.
func averageSkew(in *models.StrategyInput) *float64 {
	if in.IVRV == nil {
		return nil
	}
	avg := (models.Deref(in.CallSkewSpread(), 0) + models.Deref(in.PutSkewSpread(), 0)) / 2
	return &avg
}
