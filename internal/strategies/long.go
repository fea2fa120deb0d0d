package strategies

import (
	"fmt"

	"options-engine/internal/analysis/scoring"
	"options-engine/internal/config"
	"options-engine/internal/models"
	"options-engine/internal/trading"
)

// LongCall buys an in-the-money call near 45 DTE when IV is cheap.
type LongCall struct {
	th config.Thresholds

	DeltaMin, DeltaMax float64
	DeltaTarget        float64
	MinDTE, MaxDTE     int
	TargetDTE          float64
}

// NewLongCall returns the module with its default parameters.
func NewLongCall(th config.Thresholds) *LongCall {
	return &LongCall{
		th:          th,
		DeltaMin:    0.60,
		DeltaMax:    0.70,
		DeltaTarget: 0.65,
		MinDTE:      30,
		MaxDTE:      60,
		TargetDTE:   45,
	}
}

func (s *LongCall) ID() models.StrategyID { return models.LongCall }

func (s *LongCall) Generate(in *models.StrategyInput) Result {
	var res Result

	if in.IVRank != nil && *in.IVRank > s.th.Debit.MaxIVRForBuying {
		return res
	}

	window := trading.SortByTargetDTE(
		trading.ExpiriesInWindow(in.Chain.Expiries, in.Today, s.MinDTE, s.MaxDTE), s.TargetDTE)
	if len(window) == 0 {
		return res
	}
	exp := window[0]

	call, ok := closestDelta(withDelta(in.Chain, exp.Expiry, models.Call),
		func(d float64) bool { return d >= s.DeltaMin && d <= s.DeltaMax },
		func(d float64) float64 { return abs(s.DeltaTarget - d) })
	if !ok {
		return res
	}

	price, ok := call.MidPrice()
	if !ok {
		return res
	}
	spread := spreadPct(call)
	if spread > s.th.Debit.MaxSpreadPct {
		return res
	}

	perContract := price * trading.ContractMultiplier
	qty := trading.PositionSize(perContract, trading.RiskBudget(in.Equity, s.th.Risk.FractionPerTrade), s.th.Risk.MaxQtyPerLeg)
	if qty == 0 || perContract*float64(qty) > s.th.Risk.MaxNotional {
		return res
	}
	exits := trading.DebitExits(price, trading.ExitOptions{})

	delta := *call.Delta
	momentum := 40.0
	if delta >= s.DeltaTarget {
		momentum = 50
	}
	ivrPenalty := 65.0
	if in.IVRank != nil {
		ivrPenalty = 100 - *in.IVRank
	}
	liquidity := 0.0
	switch {
	case spread <= 10:
		liquidity = 100
	case spread <= 20:
		liquidity = 50
	}

	w := scoring.NewWeighted()
	if in.UseIVRVEdge() {
		w.Add("momentum", momentum, 0.45).
			Add("ivr_penalty", ivrPenalty, 0.25).
			Add("ivrv_buy_edge", scoring.IVRVBuyEdge(in.CallSkewSpread()), 0.20).
			Add("liquidity", liquidity, 0.10)
	} else {
		w.Add("momentum", momentum, 0.50).
			Add("ivr_penalty", ivrPenalty, 0.30).
			Add("liquidity", liquidity, 0.20)
	}

	debit := round2(price)
	res.Proposals = append(res.Proposals, models.Proposal{
		Strategy:    models.LongCall,
		Symbol:      in.Symbol,
		Action:      models.ActionBuy,
		EntryType:   models.EntryDebitCall,
		Score:       w.Compute(),
		Debit:       models.Float(debit),
		EntryPrice:  debit,
		TargetPrice: exits.Target,
		StopPrice:   exits.Stop,
		Qty:         qty,
		DTE:         exp.DTE,
		RR:          models.Float(1.0),
		IVR:         in.IVRank,
		MaxLoss:     perContract * float64(qty),
		Legs:        []models.ProposalLeg{leg(models.SideBuy, models.Call, call, qty, price)},
		Rationale: fmt.Sprintf("Delta≈%.2f | IVR<=%.0f%% | Spread%%<=%.0f%%",
			delta, s.th.Debit.MaxIVRForBuying, s.th.Debit.MaxSpreadPct),
	})

	return res
}

// LongPut buys a put near 0.60 delta in bearish or neutral markets.
type LongPut struct {
	th config.Thresholds

	DeltaTarget     float64 // absolute
	DeltaTolerance  float64
	MinDTE, MaxDTE  int
	IVRLow, IVRHigh float64
	MaxProposals    int
}

// NewLongPut returns the module with its default parameters.
func NewLongPut(th config.Thresholds) *LongPut {
	return &LongPut{
		th:             th,
		DeltaTarget:    0.60,
		DeltaTolerance: 0.05,
		MinDTE:         30,
		MaxDTE:         60,
		IVRLow:         30,
		IVRHigh:        70,
		MaxProposals:   2,
	}
}

func (s *LongPut) ID() models.StrategyID { return models.LongPut }

func (s *LongPut) Generate(in *models.StrategyInput) Result {
	var res Result

	if trading.BlockForEarnings(in.EarningsDate, in.Today, trading.EarningsBlockWindowDays) {
		return res
	}
	if in.Trend == models.TrendUp {
		return res
	}

	for _, exp := range trading.ExpiriesInWindow(in.Chain.Expiries, in.Today, s.MinDTE, s.MaxDTE) {
		put, ok := closestDelta(withDelta(in.Chain, exp.Expiry, models.Put),
			func(d float64) bool { return abs(abs(d)-s.DeltaTarget) <= 2*s.DeltaTolerance },
			func(d float64) float64 { return abs(abs(d) - s.DeltaTarget) })
		if !ok {
			continue
		}

		price, ok := put.MidPrice()
		if !ok {
			continue
		}
		if spreadPct(put) > s.th.Debit.MaxSpreadPct {
			continue
		}

		perContract := price * trading.ContractMultiplier
		qty := trading.PositionSize(perContract, trading.RiskBudget(in.Equity, s.th.Risk.FractionPerTrade), s.th.Risk.MaxQtyPerLeg)
		if qty == 0 {
			continue
		}
		exits := trading.DebitExits(price, trading.ExitOptions{})
		rr := (exits.Target - price) / (price - exits.Stop)

		delta := *put.Delta
		trend := scoring.TrendBias(30, 90, in.Trend)
		liquidity := scoring.Liquidity(spreadCents(put), put.OpenInterest)

		w := scoring.NewWeighted()
		if in.UseIVRVEdge() {
			w.Add("trend", trend, 0.40).
				Add("ivr", scoring.IVR(in.IVRank, s.IVRLow, s.IVRHigh), 0.25).
				Add("ivrv_buy_edge", scoring.IVRVBuyEdge(in.PutSkewSpread()), 0.20).
				Add("liquidity", liquidity, 0.15)
		} else {
			w.Add("delta", scoring.DeltaWindow(abs(delta), s.DeltaTarget, s.DeltaTolerance), 0.35).
				Add("trend", trend, 0.30).
				Add("ivr", scoring.IVR(in.IVRank, s.IVRLow, s.IVRHigh), 0.15).
				Add("liquidity", liquidity, 0.10).
				Add("rr", scoring.RR(rr), 0.10)
		}

		debit := round2(price)
		res.Proposals = append(res.Proposals, models.Proposal{
			Strategy:    models.LongPut,
			Symbol:      in.Symbol,
			Action:      models.ActionBuy,
			EntryType:   models.EntryDebitPut,
			Score:       w.Compute(),
			Debit:       models.Float(debit),
			EntryPrice:  debit,
			TargetPrice: exits.Target,
			StopPrice:   exits.Stop,
			Qty:         qty,
			DTE:         exp.DTE,
			RR:          models.Float(round2(rr)),
			IVR:         in.IVRank,
			MaxLoss:     perContract * float64(qty),
			Legs:        []models.ProposalLeg{leg(models.SideBuy, models.Put, put, qty, price)},
			Rationale: fmt.Sprintf("Bearish momentum | Delta≈%.2f | IVR=%s%% | Spread≤%.0f%%",
				delta, ivrText(in.IVRank), s.th.Debit.MaxSpreadPct),
		})

		if len(res.Proposals) >= s.MaxProposals {
			break
		}
	}

	return res
}
