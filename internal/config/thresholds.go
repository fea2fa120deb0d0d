package config

import "strings"

// Environment tiers.
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
	EnvTest        = "test"
)

// CreditSpreadThresholds applies to bull put and bear call credit spreads.
type CreditSpreadThresholds struct {
	MinCreditFrac float64 // fraction of width
	MaxSpreadPct  float64
}

// IronCondorThresholds applies to iron condors. MinCreditFrac is a fraction
// of the combined width of both sides.
type IronCondorThresholds struct {
	MinCreditFrac           float64
	MaxSpreadPct            float64
	EarningsBlockWindowDays int
	SymmetryTolerance       float64
}

// DebitThresholds applies to long calls, long puts and calendars.
type DebitThresholds struct {
	MaxSpreadPct    float64
	MaxIVRForBuying float64
}

// RiskThresholds bounds sizing inside the strategy modules.
type RiskThresholds struct {
	FractionPerTrade    float64
	MaxNotional         float64
	MaxQtyPerLeg        int
	MaxPortfolioRiskPct float64
}

// Thresholds is the quality and sizing configuration handed to every
// strategy module. It is resolved once at startup.
type Thresholds struct {
	Tier         string
	CreditSpread CreditSpreadThresholds
	IronCondor   IronCondorThresholds
	Debit        DebitThresholds
	Risk         RiskThresholds
}

// IsRelaxedTier reports whether env runs on synthetic data and therefore
// gets the relaxed credit minimums.
func IsRelaxedTier(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case EnvTest, EnvDevelopment:
		return true
	}
	return false
}

// ThresholdsFor returns the threshold tier for env. Anything that is not a
// test or development environment gets the strict production values.
func ThresholdsFor(env string) Thresholds {
	t := Thresholds{
		Tier: EnvProduction,
		CreditSpread: CreditSpreadThresholds{
			MinCreditFrac: 0.30,
			MaxSpreadPct:  20,
		},
		IronCondor: IronCondorThresholds{
			MinCreditFrac:           0.25,
			MaxSpreadPct:            20,
			EarningsBlockWindowDays: 7,
			SymmetryTolerance:       0.05,
		},
		Debit: DebitThresholds{
			MaxSpreadPct:    20,
			MaxIVRForBuying: 40,
		},
		Risk: RiskThresholds{
			FractionPerTrade:    0.005,
			MaxNotional:         10000,
			MaxQtyPerLeg:        5,
			MaxPortfolioRiskPct: 20,
		},
	}
	if IsRelaxedTier(env) {
		t.Tier = EnvTest
		t.CreditSpread.MinCreditFrac = 0.20
		t.IronCondor.MinCreditFrac = 0.15
	}
	return t
}

// WithRisk overrides the runtime risk limits. Zero values keep the defaults.
func (t Thresholds) WithRisk(riskPerTradePct, maxNotional, maxPortfolioRiskPct float64) Thresholds {
	if riskPerTradePct > 0 {
		t.Risk.FractionPerTrade = riskPerTradePct / 100
	}
	if maxNotional > 0 {
		t.Risk.MaxNotional = maxNotional
	}
	if maxPortfolioRiskPct > 0 {
		t.Risk.MaxPortfolioRiskPct = maxPortfolioRiskPct
	}
	return t
}
