package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-engine/internal/models"
)

func TestThresholdTiers(t *testing.T) {
	prod := ThresholdsFor("production")
	assert.Equal(t, 0.30, prod.CreditSpread.MinCreditFrac)
	assert.Equal(t, 0.25, prod.IronCondor.MinCreditFrac)

	for _, env := range []string{"test", "development", " TEST "} {
		relaxed := ThresholdsFor(env)
		assert.Equal(t, 0.20, relaxed.CreditSpread.MinCreditFrac, env)
		assert.Equal(t, 0.15, relaxed.IronCondor.MinCreditFrac, env)
	}

	unknown := ThresholdsFor("staging")
	assert.Equal(t, EnvProduction, unknown.Tier)
	assert.Equal(t, 40.0, unknown.Debit.MaxIVRForBuying)
	assert.Equal(t, 5, unknown.Risk.MaxQtyPerLeg)
	assert.InDelta(t, 0.005, unknown.Risk.FractionPerTrade, 1e-12)
}

func TestThresholdsWithRisk(t *testing.T) {
	th := ThresholdsFor("test").WithRisk(1, 0, 15)
	assert.InDelta(t, 0.01, th.Risk.FractionPerTrade, 1e-12)
	assert.Equal(t, 10000.0, th.Risk.MaxNotional)
	assert.Equal(t, 15.0, th.Risk.MaxPortfolioRiskPct)
}

func TestLoadDefaultsAndEnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("TRADING_MODE", "live")
	t.Setenv("SAS_PHASE", "3")
	t.Setenv("ACCOUNT_EQUITY", "50000")
	t.Setenv("GIT_SHA", "abc123")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/opts?sslmode=disable")

	path := filepath.Join(t.TempDir(), "optengine.toml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Engine.Phase)
	assert.Equal(t, 50000.0, cfg.Trading.Equity)
	assert.True(t, cfg.IsLiveMode())
	assert.True(t, cfg.CircuitBreakerEnabled())
	assert.Equal(t, "abc123", cfg.App.Version)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 0.20, cfg.Thresholds.CreditSpread.MinCreditFrac)
	assert.Equal(t, 10*time.Minute, cfg.CircuitBreaker.Window)
	assert.Equal(t, 7*24*time.Hour, cfg.Guardrails.Cooldown)
	assert.Equal(t, 50, cfg.Engine.MaxResults)
}

func TestLoadFileOverridesStrategy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "optengine.toml")
	body := `
[engine]
phase = 2

[strategies.iron_condor]
enabled = false
phase = 3
min_score = 70
max_risk_pct = 0.01
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	ic := cfg.Strategy(models.IronCondor)
	assert.False(t, ic.Enabled)
	assert.Equal(t, 70, ic.MinScore)

	lc := cfg.Strategy(models.LongCall)
	assert.True(t, lc.Enabled)
	assert.Equal(t, 1, lc.Phase)
	assert.Equal(t, 50, lc.MinScore)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	bad := *cfg
	bad.Trading.Mode = "yolo"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Engine.Phase = 4
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Strategies = map[string]models.StrategyConfig{"straddle": {Enabled: true, Phase: 1}}
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Kafka.Enabled = true
	bad.Kafka.Brokers = nil
	assert.Error(t, bad.Validate())
}

func TestEngineVersion(t *testing.T) {
	t.Setenv("GIT_SHA", "")
	t.Setenv("CF_PAGES_COMMIT_SHA", "")
	assert.Equal(t, "dev", EngineVersion())

	t.Setenv("CF_PAGES_COMMIT_SHA", "pages")
	assert.Equal(t, "pages", EngineVersion())

	t.Setenv("GIT_SHA", "sha")
	assert.Equal(t, "sha", EngineVersion())
}

func TestWriteTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteTemplate(dir)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "paper", cfg.Trading.Mode)

	_, err = WriteTemplate(dir)
	assert.Error(t, err)
}
