package sentinels

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-engine/internal/models"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestCircuitBreaker_TripsAtThreshold(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(true, WithClock(clock.Now))

	assert.False(t, cb.RecordReject(models.IronCondor, "insufficient margin"))
	assert.False(t, cb.RecordReject(models.IronCondor, "insufficient margin"))
	assert.False(t, cb.IsTripped(models.IronCondor))
	assert.True(t, cb.RecordReject(models.IronCondor, "price moved"))
	assert.True(t, cb.IsTripped(models.IronCondor))
	assert.False(t, cb.IsTripped(models.LongCall))

	status := cb.Status()
	assert.Equal(t, StrategyStatus{Rejects: 3, Tripped: true, LastReason: "price moved"}, status[models.IronCondor])
	assert.Equal(t, []models.StrategyID{models.IronCondor}, cb.Tripped())
}

func TestCircuitBreaker_WindowExpiry(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(true, WithClock(clock.Now))

	cb.RecordReject(models.LongPut, "r1")
	clock.Advance(6 * time.Minute)
	cb.RecordReject(models.LongPut, "r2")
	clock.Advance(3 * time.Minute)
	assert.True(t, cb.RecordReject(models.LongPut, "r3"))

	// First reject is now exactly 10 minutes old and falls out.
	clock.Advance(time.Minute)
	assert.False(t, cb.IsTripped(models.LongPut))
	assert.Equal(t, 2, cb.Status()[models.LongPut].Rejects)

	clock.Advance(10 * time.Minute)
	assert.Equal(t, StrategyStatus{}, cb.Status()[models.LongPut])
}

func TestCircuitBreaker_Disabled(t *testing.T) {
	cb := NewCircuitBreaker(false)
	for i := 0; i < 10; i++ {
		assert.False(t, cb.RecordReject(models.LongCall, "r"))
	}
	assert.False(t, cb.IsTripped(models.LongCall))
	assert.Empty(t, cb.Status())
}

func TestCircuitBreaker_CustomLimitsAndReset(t *testing.T) {
	cb := NewCircuitBreaker(true, WithLimits(1, time.Minute))
	assert.True(t, cb.RecordReject(models.BullPutCredit, "r"))
	cb.Reset()
	assert.False(t, cb.IsTripped(models.BullPutCredit))
}

func TestCircuitBreaker_Concurrent(t *testing.T) {
	cb := NewCircuitBreaker(true, WithLimits(1000, time.Hour))
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				cb.RecordReject(models.CalendarCall, "r")
				cb.IsTripped(models.CalendarCall)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 500, cb.Status()[models.CalendarCall].Rejects)
}

// Property: a strategy is tripped exactly when the number of rejects recorded
// inside the window reaches the threshold.
func TestProperty_BreakerTripMatchesWindowCount(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	properties.Property("tripped iff recent rejects >= 3", prop.ForAll(
		func(gaps []int) bool {
			clock := newFakeClock()
			cb := NewCircuitBreaker(true, WithClock(clock.Now))
			var times []time.Time
			for _, g := range gaps {
				clock.Advance(time.Duration(g) * time.Minute)
				cb.RecordReject(models.LongCall, "r")
				times = append(times, clock.Now())
			}
			recent := 0
			for _, at := range times {
				if clock.Now().Sub(at) < DefaultRejectWindow {
					recent++
				}
			}
			return cb.IsTripped(models.LongCall) == (recent >= DefaultMaxRejects)
		},
		gen.SliceOf(gen.IntRange(0, 8)),
	))

	properties.TestingRun(t)
}

type fakeRisk struct {
	total float64
	err   error
	since time.Time
}

func (f *fakeRisk) ActiveTradeRisk(_ context.Context, since time.Time) (float64, error) {
	f.since = since
	return f.total, f.err
}

func TestHeatCap(t *testing.T) {
	clock := newFakeClock()

	t.Run("blocks above cap", func(t *testing.T) {
		store := &fakeRisk{total: 12000}
		h := NewHeatCap(store, HeatCapConfig{Enabled: true, MaxPct: 10, Now: clock.Now})
		got := h.Check(context.Background(), 100000)
		assert.False(t, got.Allowed)
		assert.InDelta(t, 12.0, got.RiskPct, 1e-9)
		assert.Equal(t, "Portfolio risk 12.0% exceeds heat cap 10%", got.Reason)
		assert.Equal(t, clock.Now().Add(-24*time.Hour), store.since)
	})

	t.Run("allows at cap", func(t *testing.T) {
		h := NewHeatCap(&fakeRisk{total: 10000}, HeatCapConfig{Enabled: true, MaxPct: 10, Now: clock.Now})
		got := h.Check(context.Background(), 100000)
		assert.True(t, got.Allowed)
		assert.InDelta(t, 10.0, got.RiskPct, 1e-9)
	})

	t.Run("fails open on error", func(t *testing.T) {
		h := NewHeatCap(&fakeRisk{err: errors.New("db down")}, HeatCapConfig{Enabled: true})
		got := h.Check(context.Background(), 100000)
		assert.Equal(t, HeatResult{Allowed: true}, got)
	})

	t.Run("disabled", func(t *testing.T) {
		h := NewHeatCap(&fakeRisk{total: 1e9}, HeatCapConfig{Enabled: false})
		assert.Equal(t, HeatResult{Allowed: true}, h.Check(context.Background(), 100000))
	})

	t.Run("defaults", func(t *testing.T) {
		h := NewHeatCap(&fakeRisk{}, HeatCapConfig{Enabled: true})
		require.True(t, h.Enabled())
		assert.Equal(t, DefaultHeatCapPct, h.MaxPct())
	})
}
