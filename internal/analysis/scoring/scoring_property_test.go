package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"options-engine/internal/models"
)

func newProperties() *gopter.Properties {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	return gopter.NewProperties(parameters)
}

// Property: DeltaWindow is 100 at the target, symmetric around it, strictly
// decreasing between tol and 2·tol, and 0 from 2·tol outward.
func TestProperty_DeltaWindowShape(t *testing.T) {
	properties := newProperties()

	properties.Property("100 at target", prop.ForAll(
		func(target, tol float64) bool {
			return DeltaWindow(target, target, tol) == 100
		},
		gen.Float64Range(-1, 1),
		gen.Float64Range(0.01, 0.2),
	))

	properties.Property("symmetric around target", prop.ForAll(
		func(target, tol, off float64) bool {
			return math.Abs(DeltaWindow(target+off, target, tol)-DeltaWindow(target-off, target, tol)) < 1e-9
		},
		gen.Float64Range(-1, 1),
		gen.Float64Range(0.01, 0.2),
		gen.Float64Range(0, 0.5),
	))

	properties.Property("strictly decreasing inside the decay band", prop.ForAll(
		func(tol, a, b float64) bool {
			// a < b, both within (tol, 2·tol)
			lo, hi := math.Min(a, b), math.Max(a, b)
			if hi-lo < 1e-6 {
				return true
			}
			d1 := tol + lo*tol
			d2 := tol + hi*tol
			return DeltaWindow(0.25+d1, 0.25, tol) > DeltaWindow(0.25+d2, 0.25, tol)
		},
		gen.Float64Range(0.01, 0.2),
		gen.Float64Range(0.001, 0.999),
		gen.Float64Range(0.001, 0.999),
	))

	properties.Property("zero at and beyond twice the tolerance", prop.ForAll(
		func(tol, extra float64) bool {
			return DeltaWindow(0.25+2*tol+extra, 0.25, tol) == 0 &&
				DeltaWindow(0.25-2*tol-extra, 0.25, tol) == 0
		},
		gen.Float64Range(0.01, 0.2),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}

// Property: the seller and buyer views of the IV/RV edge are complementary
// on [0, 0.25].
func TestProperty_IVRVEdgeComplementary(t *testing.T) {
	properties := newProperties()

	properties.Property("seller + buyer ≈ 100", prop.ForAll(
		func(s float64) bool {
			sum := IVRVEdge(&s, false) + IVRVEdge(&s, true)
			return math.Abs(sum-100) <= 1
		},
		gen.Float64Range(0, 0.25),
	))

	properties.TestingRun(t)
}

// Property: Compose is invariant to scaling every weight by the same
// positive constant.
func TestProperty_ComposeScaleInvariant(t *testing.T) {
	properties := newProperties()

	properties.Property("uniform weight scaling does not change the score", prop.ForAll(
		func(a, b, c int, wa, wb, wc int, k float64) bool {
			scores := map[string]float64{"a": float64(a), "b": float64(b), "c": float64(c)}
			weights := map[string]float64{"a": float64(wa) / 4, "b": float64(wb) / 4, "c": float64(wc) / 4}
			scaled := map[string]float64{"a": weights["a"] * k, "b": weights["b"] * k, "c": weights["c"] * k}
			return Compose(scores, weights) == Compose(scores, scaled)
		},
		gen.IntRange(0, 100), gen.IntRange(0, 100), gen.IntRange(0, 100),
		gen.IntRange(1, 8), gen.IntRange(1, 8), gen.IntRange(1, 8),
		gen.OneConstOf(0.5, 2.0, 4.0, 16.0),
	))

	properties.TestingRun(t)
}

// Property: every factor stays within [0, 100].
func TestProperty_FactorsBounded(t *testing.T) {
	properties := newProperties()
	inRange := func(v float64) bool { return v >= 0 && v <= 100 }

	properties.Property("factor outputs within [0, 100]", prop.ForAll(
		func(x, ivr, spread float64, oi int64, dte float64) bool {
			return inRange(DeltaWindow(x, 0.25, 0.05)) &&
				inRange(IVR(&ivr, 30, 70)) &&
				inRange(Liquidity(spread, oi)) &&
				inRange(POPFromShortDelta(x)) &&
				inRange(RR(x*4)) &&
				inRange(DTE(dte, 30, 45)) &&
				inRange(IVRVEdge(&x, false)) &&
				inRange(IVRVEdge(&x, true)) &&
				inRange(IVRVBuyEdge(&x))
		},
		gen.Float64Range(-1, 1),
		gen.Float64Range(0, 150),
		gen.Float64Range(0, 500),
		gen.Int64Range(0, 5000),
		gen.Float64Range(0, 400),
	))

	properties.TestingRun(t)
}

func TestIVRVBuyEdge(t *testing.T) {
	f := models.Float
	tests := []struct {
		name   string
		spread *float64
		want   float64
	}{
		{"deeply negative saturates", f(-0.30), 100},
		{"lower bound", f(-0.25), 100},
		{"midpoint negative", f(-0.125), 75},
		{"zero is neutral", f(0), 50},
		{"midpoint positive", f(0.125), 25},
		{"upper bound", f(0.25), 0},
		{"high positive saturates", f(0.30), 0},
		{"unknown", nil, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IVRVBuyEdge(tt.spread); got != tt.want {
				t.Errorf("IVRVBuyEdge = %v, want %v", got, tt.want)
			}
		})
	}

	if got := IVRVBuyEdge(f(0.10)); got <= 0 || got >= 50 {
		t.Errorf("positive spread should be penalized, got %v", got)
	}
}

func TestIVR(t *testing.T) {
	f := models.Float
	tests := []struct {
		name string
		ivr  *float64
		want float64
	}{
		{"unknown", nil, 50},
		{"negative is unknown", f(-1), 50},
		{"below sweet spot", f(30), 30},
		{"at low edge", f(60), 80},
		{"at high edge", f(100), 100},
		{"above sweet spot capped", f(150), 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IVR(tt.ivr, 60, 100); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("IVR = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLiquidityPenalties(t *testing.T) {
	if got := Liquidity(5, 1000); got != 100 {
		t.Errorf("tight and deep = %v, want 100", got)
	}
	if got := Liquidity(20, 1000); got != 80 {
		t.Errorf("20¢ spread = %v, want 80", got)
	}
	if got := Liquidity(100, 0); got != 20 {
		t.Errorf("both penalties capped = %v, want 20", got)
	}
	if got := Liquidity(0, 300); got != 80 {
		t.Errorf("OI 300 = %v, want 80", got)
	}
}

func TestRRPiecewise(t *testing.T) {
	tests := map[float64]float64{-1: 0, 0: 0, 0.25: 15, 0.5: 30, 0.75: 45, 1: 60, 1.5: 80, 2: 100, 5: 100}
	for rr, want := range tests {
		if got := RR(rr); math.Abs(got-want) > 1e-9 {
			t.Errorf("RR(%v) = %v, want %v", rr, got, want)
		}
	}
}

func TestTrendBiasAndPOP(t *testing.T) {
	if got := TrendBias(30, 90, models.TrendNeutral); got != 60 {
		t.Errorf("neutral bias = %v, want 60", got)
	}
	if got := TrendBias(30, 90, models.TrendDown); got != 90 {
		t.Errorf("down bias = %v, want 90", got)
	}
	if got := POPFromShortDelta(0.25); got != 75 {
		t.Errorf("POP(0.25) = %v, want 75", got)
	}
	if got := POPFromShortDelta(-0.8); got != 50 {
		t.Errorf("POP caps |delta| at 0.5, got %v", got)
	}
}

func TestDTE(t *testing.T) {
	if got := DTE(15, 30, 45); got != 25 {
		t.Errorf("DTE below = %v, want 25", got)
	}
	if got := DTE(40, 30, 45); got != 100 {
		t.Errorf("DTE inside = %v, want 100", got)
	}
	if got := DTE(200, 30, 45); got != 0 {
		t.Errorf("DTE far above = %v, want 0", got)
	}
}

func TestWeightedRenormalizes(t *testing.T) {
	base := NewWeighted().
		Add("delta", 100, 0.30).
		Add("ivr", 50, 0.25)
	if got := base.Compute(); got != 77 {
		t.Errorf("Compute = %d, want 77", got)
	}

	withEdge := NewWeighted().
		Add("delta", 100, 0.30).
		AddIf(false, "edge", 0, 0.30).
		Add("ivr", 50, 0.25)
	if got := withEdge.Compute(); got != base.Compute() {
		t.Errorf("excluded factor changed score: %d vs %d", got, base.Compute())
	}

	if got := NewWeighted().Compute(); got != 0 {
		t.Errorf("empty composition = %d, want 0", got)
	}
	if got := Compose(map[string]float64{"a": 80}, map[string]float64{"a": 0}); got != 0 {
		t.Errorf("zero weight = %d, want 0", got)
	}
}
