package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-engine/internal/config"
	apperrors "options-engine/internal/errors"
	"options-engine/internal/models"
	"options-engine/internal/sentinels"
	"options-engine/internal/strategies"
	"options-engine/internal/testutil"
	"options-engine/pkg/utils"
)

type stubModule struct {
	id     models.StrategyID
	scores []int
	panics bool
	calls  int32
}

func (m *stubModule) ID() models.StrategyID { return m.id }

func (m *stubModule) Generate(in *models.StrategyInput) strategies.Result {
	atomic.AddInt32(&m.calls, 1)
	if m.panics {
		panic("index out of range")
	}
	var out []models.Proposal
	for _, s := range m.scores {
		out = append(out, models.Proposal{
			Strategy: m.id,
			Symbol:   in.Symbol,
			Score:    s,
			Legs:     []models.ProposalLeg{{Side: models.SideBuy, Type: models.Call, Strike: float64(s), Expiry: "2025-04-18", Quantity: 1}},
		})
	}
	return strategies.Result{Proposals: out}
}

func entry(m *stubModule, phase, minScore int) Entry {
	return Entry{ID: m.id, Module: m, Config: models.StrategyConfig{Enabled: true, Phase: phase, MinScore: minScore}}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Thresholds = config.ThresholdsFor(config.EnvTest)
	cfg.Engine.Phase = 3
	cfg.Engine.MaxResults = 50
	cfg.Engine.Concurrency = 1
	cfg.Trading.Equity = 100000
	cfg.Features.IVRVEdge = false
	return cfg
}

func inputSource() InputSource {
	return SourceFunc(func(_ context.Context, symbol string) (*models.StrategyInput, error) {
		return testutil.MakeInput(testutil.WithSymbol(symbol)), nil
	})
}

func fixedClock() (func() time.Time, func() string) {
	now := time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC)
	var n int32
	return func() time.Time { return now }, func() string {
		return fmt.Sprintf("id-%d", atomic.AddInt32(&n, 1))
	}
}

func TestRegistry(t *testing.T) {
	cfg := testConfig()
	r := NewRegistry(cfg)

	var ids []models.StrategyID
	for _, e := range r.Entries() {
		ids = append(ids, e.ID)
	}
	assert.Len(t, ids, 7)
	assert.Equal(t, models.LongCall, ids[0])

	var phase1 []models.StrategyID
	for _, e := range r.Allowed(1) {
		phase1 = append(phase1, e.ID)
	}
	assert.Equal(t, []models.StrategyID{models.LongCall, models.BullPutCredit}, phase1)

	for _, e := range r.Allowed(3) {
		assert.NotEqual(t, models.CalendarPut, e.ID)
	}
	assert.Len(t, r.Allowed(3), 6)

	e, err := r.Get(models.IronCondor)
	require.NoError(t, err)
	assert.Equal(t, 55, e.Config.MinScore)

	_, err = r.Get("STRADDLE")
	assert.True(t, errors.Is(err, apperrors.ErrUnknownStrategy))
}

func TestRunner_RanksFiltersAndTruncates(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.MaxResults = 4
	a := &stubModule{id: models.LongCall, scores: []int{60, 40, 90}}
	b := &stubModule{id: models.BullPutCredit, scores: []int{70, 90}}
	reg := NewRegistryFromEntries(entry(a, 1, 50), entry(b, 1, 50))
	now, ids := fixedClock()

	r := NewRunner(cfg, reg, inputSource(), WithRunnerClock(now, ids))
	res, err := r.Run(context.Background(), []string{"AAA", "BBB"})
	require.NoError(t, err)

	require.Len(t, res.Proposals, 4)
	assert.Equal(t, 4, res.Count)
	var scores []int
	for _, p := range res.Proposals {
		scores = append(scores, p.Score)
		assert.NotEmpty(t, p.ID)
		assert.Equal(t, now(), p.CreatedAt)
	}
	assert.Equal(t, []int{90, 90, 90, 90}, scores)
	// Stable sort keeps symbol then registry order among equal scores.
	assert.Equal(t, "AAA", res.Proposals[0].Symbol)
	assert.Equal(t, models.LongCall, res.Proposals[0].Strategy)
	assert.Equal(t, models.BullPutCredit, res.Proposals[1].Strategy)
	assert.Equal(t, "BBB", res.Proposals[2].Symbol)

	require.Len(t, res.Debug, 2)
	require.NotNil(t, res.Debug[0].StrategiesRun)
	assert.Equal(t, 4, *res.Debug[0].StrategiesRun)
	assert.Equal(t, 90, *res.Debug[0].TopScore)
	assert.Equal(t, 2, res.SymbolsAnalyzed)
	assert.Equal(t, "id-1", res.RunID)
}

func TestRunner_PhaseAndEnablement(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.Phase = 1
	p1 := &stubModule{id: models.LongCall, scores: []int{80}}
	p2 := &stubModule{id: models.LongPut, scores: []int{80}}
	off := &stubModule{id: models.CalendarPut, scores: []int{80}}
	disabled := entry(off, 1, 0)
	disabled.Config.Enabled = false
	reg := NewRegistryFromEntries(entry(p1, 1, 50), entry(p2, 2, 50), disabled)

	res, err := NewRunner(cfg, reg, inputSource()).Run(context.Background(), []string{"AAA"})
	require.NoError(t, err)
	require.Len(t, res.Proposals, 1)
	assert.Equal(t, models.LongCall, res.Proposals[0].Strategy)
	assert.Zero(t, p2.calls)
	assert.Zero(t, off.calls)
}

func TestRunner_ModulePanicIsIsolated(t *testing.T) {
	bad := &stubModule{id: models.IronCondor, panics: true}
	good := &stubModule{id: models.LongCall, scores: []int{70}}
	reg := NewRegistryFromEntries(entry(bad, 1, 0), entry(good, 1, 0))

	res, err := NewRunner(testConfig(), reg, inputSource()).Run(context.Background(), []string{"AAA", "BBB"})
	require.NoError(t, err)
	assert.Len(t, res.Proposals, 2)
	assert.Equal(t, 1, *res.Debug[0].StrategiesRun)
	assert.EqualValues(t, 2, bad.calls)
}

func TestRunner_ModuleLogsCarryStrategy(t *testing.T) {
	bad := &stubModule{id: models.IronCondor, panics: true}
	skipped := &stubModule{id: models.BullPutCredit, scores: []int{70}}
	reg := NewRegistryFromEntries(entry(bad, 1, 0), entry(skipped, 1, 0))

	breaker := sentinels.NewCircuitBreaker(true)
	for i := 0; i < 3; i++ {
		breaker.RecordReject(models.BullPutCredit, "margin")
	}

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	_, err := NewRunner(testConfig(), reg, inputSource(),
		WithBreaker(breaker), WithRunnerLogger(logger)).Run(context.Background(), []string{"SPY"})
	require.NoError(t, err)

	byMessage := map[string]map[string]interface{}{}
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var e map[string]interface{}
		require.NoError(t, json.Unmarshal(line, &e))
		if msg, ok := e["message"].(string); ok {
			byMessage[msg] = e
		}
	}

	failed := byMessage["strategy module failed"]
	require.NotNil(t, failed)
	assert.Equal(t, "IRON_CONDOR", failed["strategy"])
	assert.Equal(t, "SPY", failed["symbol"])
	assert.Equal(t, "error", failed["level"])

	skip := byMessage["strategy skipped, circuit tripped"]
	require.NotNil(t, skip)
	assert.Equal(t, "BULL_PUT_CREDIT", skip["strategy"])
	assert.Zero(t, skipped.calls)
}

func TestRunner_SourceOutcomes(t *testing.T) {
	mod := &stubModule{id: models.LongCall, scores: []int{70}}
	reg := NewRegistryFromEntries(entry(mod, 1, 0))
	source := SourceFunc(func(_ context.Context, symbol string) (*models.StrategyInput, error) {
		switch symbol {
		case "EMPTY":
			return nil, nil
		case "NODATA":
			return nil, fmt.Errorf("%s: %w", symbol, apperrors.ErrNoData)
		case "BROKEN":
			return nil, errors.New("quotes table missing")
		case "SLOW":
			return nil, apperrors.NewSourceError(symbol, "timed out", apperrors.ErrSourceTimeout)
		}
		return testutil.MakeInput(testutil.WithSymbol(symbol)), nil
	})

	res, err := NewRunner(testConfig(), reg, source).Run(context.Background(), []string{"EMPTY", "NODATA", "BROKEN", "SLOW", "OK"})
	require.NoError(t, err)

	assert.Equal(t, DebugEntry{Symbol: "EMPTY", Skipped: "No data available"}, res.Debug[0])
	assert.Equal(t, DebugEntry{Symbol: "NODATA", Skipped: "No data available"}, res.Debug[1])
	assert.Equal(t, "quotes table missing", res.Debug[2].Error)
	assert.Equal(t, "Source timed out", res.Debug[3].Skipped)
	assert.Equal(t, 1, *res.Debug[4].StrategiesRun)
	require.Len(t, res.Proposals, 1)
	assert.Equal(t, "OK", res.Proposals[0].Symbol)
}

func TestRunner_SkipsTrippedStrategies(t *testing.T) {
	cb := sentinels.NewCircuitBreaker(true, sentinels.WithLimits(1, time.Hour))
	cb.RecordReject(models.BullPutCredit, "rejected by broker")

	a := &stubModule{id: models.LongCall, scores: []int{70}}
	b := &stubModule{id: models.BullPutCredit, scores: []int{80}}
	reg := NewRegistryFromEntries(entry(a, 1, 0), entry(b, 1, 0))

	res, err := NewRunner(testConfig(), reg, inputSource(), WithBreaker(cb)).Run(context.Background(), []string{"AAA"})
	require.NoError(t, err)
	require.Len(t, res.Proposals, 1)
	assert.Equal(t, models.LongCall, res.Proposals[0].Strategy)
	assert.Equal(t, []models.StrategyID{models.BullPutCredit}, res.Tripped)
	assert.Zero(t, b.calls)
}

type fakeRisk struct{ total float64 }

func (f fakeRisk) ActiveTradeRisk(context.Context, time.Time) (float64, error) { return f.total, nil }

func TestRunner_HeatCapBlocks(t *testing.T) {
	mod := &stubModule{id: models.LongCall, scores: []int{70}}
	reg := NewRegistryFromEntries(entry(mod, 1, 0))
	heat := sentinels.NewHeatCap(fakeRisk{total: 15000}, sentinels.HeatCapConfig{Enabled: true, MaxPct: 10})

	res, err := NewRunner(testConfig(), reg, inputSource(), WithHeatCap(heat)).Run(context.Background(), []string{"AAA"})
	require.NoError(t, err)
	assert.Empty(t, res.Proposals)
	assert.Equal(t, "Portfolio risk 15.0% exceeds heat cap 10%", res.Blocked)
	assert.InDelta(t, 15.0, res.HeatRiskPct, 1e-9)
	assert.Zero(t, mod.calls)
}

func TestRunner_ConcurrencyMatchesSerial(t *testing.T) {
	symbols := []string{"A", "B", "C", "D", "E", "F", "G", "H"}
	run := func(concurrency int) []string {
		cfg := testConfig()
		cfg.Engine.Concurrency = concurrency
		res, err := NewRunner(cfg, NewRegistry(cfg), inputSource()).Run(context.Background(), symbols)
		require.NoError(t, err)
		var out []string
		for _, p := range res.Proposals {
			out = append(out, fmt.Sprintf("%s/%s/%d", p.Symbol, p.Strategy, p.Score))
		}
		return out
	}
	assert.Equal(t, run(1), run(4))
}

func TestRunner_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRunner(testConfig(), NewRegistry(testConfig()), inputSource()).Run(ctx, []string{"A"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunner_RealModules(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.Phase = 1
	source := SourceFunc(func(_ context.Context, symbol string) (*models.StrategyInput, error) {
		return testutil.MakeInput(testutil.WithSymbol(symbol), testutil.WithTrend(models.TrendUp), testutil.WithIVRank(70)), nil
	})

	res, err := NewRunner(cfg, NewRegistry(cfg), source).Run(context.Background(), []string{"SPY"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Proposals)

	assert.True(t, sort.SliceIsSorted(res.Proposals, func(i, j int) bool {
		return res.Proposals[i].Score > res.Proposals[j].Score
	}))
	found := false
	for _, p := range res.Proposals {
		assert.Contains(t, []models.StrategyID{models.LongCall, models.BullPutCredit}, p.Strategy)
		assert.GreaterOrEqual(t, p.Score, 50)
		if p.Strategy == models.BullPutCredit {
			found = true
			assert.Equal(t, 73, p.Score)
		}
	}
	assert.True(t, found)
}

func TestResilientSource_Timeout(t *testing.T) {
	blocking := SourceFunc(func(ctx context.Context, _ string) (*models.StrategyInput, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	opts := DefaultSourceOptions()
	opts.Timeout = 20 * time.Millisecond
	opts.Rate = 0

	_, err := NewResilientSource(blocking, opts).Input(context.Background(), "SPY")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrSourceTimeout))
	assert.True(t, apperrors.IsNoData(err))
}

func TestResilientSource_RetriesTransientErrors(t *testing.T) {
	var calls int32
	flaky := SourceFunc(func(_ context.Context, symbol string) (*models.StrategyInput, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, errors.New("connection reset")
		}
		return testutil.MakeInput(testutil.WithSymbol(symbol)), nil
	})
	opts := DefaultSourceOptions()
	opts.Retry = utils.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}

	in, err := NewResilientSource(flaky, opts).Input(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, "SPY", in.Symbol)
	assert.EqualValues(t, 2, calls)
}

func TestResilientSource_BreakerOpens(t *testing.T) {
	var calls int32
	failing := SourceFunc(func(context.Context, string) (*models.StrategyInput, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("upstream 503")
	})
	opts := DefaultSourceOptions()
	opts.Rate = 0
	opts.Retry = utils.RetryConfig{MaxAttempts: 1}
	s := NewResilientSource(failing, opts)

	for i := 0; i < 5; i++ {
		_, err := s.Input(context.Background(), "SPY")
		require.Error(t, err)
	}
	_, err := s.Input(context.Background(), "SPY")
	assert.True(t, errors.Is(err, apperrors.ErrCircuitOpen))
	assert.EqualValues(t, 5, calls)
}

func TestResilientSource_NoDataDoesNotTrip(t *testing.T) {
	empty := SourceFunc(func(context.Context, string) (*models.StrategyInput, error) { return nil, nil })
	opts := DefaultSourceOptions()
	opts.Rate = 0
	s := NewResilientSource(empty, opts)

	for i := 0; i < 10; i++ {
		_, err := s.Input(context.Background(), "SPY")
		assert.True(t, errors.Is(err, apperrors.ErrNoData))
	}
	_, err := s.Input(context.Background(), "SPY")
	assert.False(t, errors.Is(err, apperrors.ErrCircuitOpen))
}

const snapshotYAML = `
snapshots:
  - symbol: spy
    spot: 100
    as_of: "2025-03-10"
    trend: UP
    iv_history: [30, 10, 20, 40, 50]
    quotes:
      - expiry: "2025-04-14"
        strike: 100
        right: CALL
        bid: 3.0
        ask: 3.2
        iv: 0.30
        delta: 0.50
        open_interest: 500
      - expiry: "2025-04-14"
        strike: 100
        right: PUT
        bid: 2.9
        ask: 3.1
        iv: 0.30
        open_interest: 500
  - symbol: qqq
    spot: 400
    quotes: []
`

func TestParseSnapshotsAndBuildInput(t *testing.T) {
	snaps, err := ParseSnapshots([]byte(snapshotYAML))
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "SPY", snaps[0].Symbol)
	assert.Equal(t, "SPY", snaps[0].Quotes[0].Symbol)

	in, err := BuildInput(snaps[0], 50000, time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.TrendUp, in.Trend)
	require.NotNil(t, in.IVRank)
	assert.InDelta(t, 50.0, *in.IVRank, 1e-9)
	assert.Equal(t, testutil.Today, in.Today)
	assert.Equal(t, 50000.0, in.Equity)
	assert.Equal(t, []string{"2025-04-14"}, in.Chain.Expiries)
	require.NotNil(t, in.Chain.Quotes[1].Delta)
	assert.Less(t, *in.Chain.Quotes[1].Delta, 0.0)
	assert.Nil(t, in.IVRV)

	_, err = BuildInput(snaps[1], 50000, time.Now())
	assert.True(t, errors.Is(err, apperrors.ErrNoData))

	src := NewSnapshotSource(snaps, 50000)
	assert.Equal(t, []string{"QQQ", "SPY"}, src.Symbols())
	_, err = src.Input(context.Background(), "IWM")
	assert.True(t, errors.Is(err, apperrors.ErrNoData))
}

func TestParseSnapshotsRejectsBadInput(t *testing.T) {
	_, err := ParseSnapshots([]byte("snapshots: [{spot: 1}]"))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidSnapshot))

	_, err = ParseSnapshots([]byte("symbol: SPY\ntrend: SIDEWAYS\n"))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidSnapshot))

	single, err := ParseSnapshots([]byte("symbol: iwm\nspot: 200\n"))
	require.NoError(t, err)
	assert.Equal(t, "IWM", single[0].Symbol)
}

type memProposals struct {
	saved map[string]bool
	err   error
}

func (m *memProposals) SaveProposal(_ context.Context, _ *models.Proposal, key string) error {
	if m.err != nil {
		return m.err
	}
	m.saved[key] = true
	return nil
}

func (m *memProposals) IsDuplicate(_ context.Context, key string, _ time.Time) (bool, error) {
	return m.saved[key], nil
}

func TestPersistDedupes(t *testing.T) {
	st := &memProposals{saved: map[string]bool{}}
	mod := &stubModule{id: models.LongCall, scores: []int{70, 70, 80}}
	props := mod.Generate(testutil.MakeInput(testutil.WithSymbol("SPY"))).Proposals

	saved, err := Persist(context.Background(), st, props, 0, time.Now())
	require.NoError(t, err)
	assert.Len(t, saved, 2)

	again, err := Persist(context.Background(), st, props, time.Hour, time.Now())
	require.NoError(t, err)
	assert.Empty(t, again)

	failing := &memProposals{saved: map[string]bool{}, err: errors.New("disk full")}
	_, err = Persist(context.Background(), failing, props, time.Hour, time.Now())
	var se *apperrors.StoreError
	assert.True(t, errors.As(err, &se))
}
