package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-engine/internal/config"
	"options-engine/internal/engine"
	"options-engine/internal/models"
	"options-engine/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.App.Version = "test-sha"
	cfg.Thresholds = config.ThresholdsFor(config.EnvTest)
	cfg.Trading.Mode = "paper"
	cfg.Trading.Equity = 100000
	cfg.Engine.Phase = 1
	cfg.Store.Driver = store.DriverSQLite
	cfg.Store.DSN = filepath.Join(t.TempDir(), "cli.db")
	cfg.Redis.Addr = ""
	cfg.Kafka.Enabled = false
	cfg.HeatCap.Enabled = true
	cfg.Notifications.Webhook.Enabled = false
	cfg.Notifications.Telegram.Enabled = false
	return cfg
}

func execute(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(cfg, zerolog.Nop())
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestVersionJSON(t *testing.T) {
	out, err := execute(t, testConfig(t), "version", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"test-sha","env":"`+config.Default().App.Env+`"}`, out)
}

func TestConfigValidateAndShow(t *testing.T) {
	cfg := testConfig(t)
	out, err := execute(t, cfg, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")

	out, err = execute(t, cfg, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "BULL_PUT_CREDIT")
	assert.Contains(t, out, "$100,000.00")
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, testConfig(t), "config", "init", "--dir", dir)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "optengine.toml"))
	assert.NoError(t, err)
}

const proposalYAML = `
strategy: LONG_CALL
symbol: xle
action: BUY
entry_type: DEBIT_CALL
score: 70
debit: 2.0
qty: 1
max_loss: 200
`

func TestGuardPreviewCommitAndTradeStatus(t *testing.T) {
	cfg := testConfig(t)
	file := writeFile(t, "p.yaml", proposalYAML)

	out, err := execute(t, cfg, "guard", "--proposal", file, "--qty", "1", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"allowed":true}`, out)

	out, err = execute(t, cfg, "guard", "--proposal", file, "--qty", "1", "--commit", "--json")
	require.NoError(t, err)
	var res struct {
		Allowed bool          `json:"allowed"`
		Trade   *models.Trade `json:"trade"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.True(t, res.Allowed)
	require.NotNil(t, res.Trade)
	assert.Equal(t, "XLE", res.Trade.Symbol)
	assert.Equal(t, models.TradeFilled, res.Trade.Status)
	assert.True(t, res.Trade.IsPaper)

	out, err = execute(t, cfg, "trade", "status", res.Trade.ID, "closed")
	require.NoError(t, err)
	assert.Contains(t, out, "is now closed")

	_, err = execute(t, cfg, "trade", "status", res.Trade.ID, "rejected", "--strategy", "strangle")
	assert.Error(t, err)

	_, err = execute(t, cfg, "trade", "status", res.Trade.ID, "lost")
	assert.Error(t, err)

	_, err = execute(t, cfg, "guard", "--proposal", file, "--qty", "0")
	assert.Error(t, err)
}

func TestGuardBlocksOversizedTrade(t *testing.T) {
	out, err := execute(t, testConfig(t), "guard", "--proposal", writeFile(t, "p.yaml", proposalYAML), "--qty", "20")
	require.NoError(t, err)
	assert.Contains(t, out, "BLOCKED")
	assert.Contains(t, out, "Trade risk $4000 exceeds 2.5% of equity ($2500)")
}

func TestSASDryRun(t *testing.T) {
	cfg := testConfig(t)
	out, err := execute(t, cfg, "sas", "--dry-run", "--json", "--symbol", "spy",
		"--skew-z", "-2.4", "--iv-rv", "0.31", "--momentum", "1", "--asof", "2025-03-10T14:30:00Z")
	require.NoError(t, err)
	var p models.SignalProposal
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.Equal(t, "prop_SPY_2025-03-10T14_30_00Z", p.ID)
	assert.Equal(t, models.BiasBullish, p.Bias)

	out, err = execute(t, cfg, "sas", "--dry-run", "--json", "--symbol", "spy",
		"--skew-z", "-1", "--iv-rv", "0.31", "--momentum", "1")
	require.NoError(t, err)
	assert.Contains(t, out, `"created": false`)
}

func TestSASStores(t *testing.T) {
	cfg := testConfig(t)
	_, err := execute(t, cfg, "sas", "--symbol", "iwm",
		"--skew-z", "-3", "--iv-rv", "0.4", "--momentum", "-2", "--asof", "2025-03-10T14:30:00Z")
	require.NoError(t, err)

	st, err := store.Open(cfg.Store.Driver, cfg.Store.DSN)
	require.NoError(t, err)
	defer st.Close()
	rec, err := st.SignalProposal(context.Background(), "prop_IWM_2025-03-10T14_30_00Z")
	require.NoError(t, err)
	assert.Equal(t, "bearish", rec.Bias)
}

const snapshotYAML = `
snapshots:
  - symbol: spy
    spot: 100
    as_of: "2025-03-10"
    trend: UP
    quotes:
      - {expiry: "2025-04-14", strike: 100, right: CALL, bid: 3.0, ask: 3.2, iv: 0.3, delta: 0.5, open_interest: 500}
  - symbol: qqq
    spot: 400
    quotes: []
`

func TestRunCommand(t *testing.T) {
	cfg := testConfig(t)
	file := writeFile(t, "snap.yaml", snapshotYAML)

	out, err := execute(t, cfg, "run", "--snapshot", file, "--json", "--persist", "--publish")
	require.NoError(t, err)
	var res engine.RunResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 2, res.SymbolsAnalyzed)
	assert.Equal(t, "test-sha", res.Version)

	out, err = execute(t, cfg, "run", "--snapshot", file, "--symbols", "qqq", "-v")
	require.NoError(t, err)
	assert.Contains(t, out, "No proposals")
	assert.Contains(t, out, "skipped: No data available")

	_, err = execute(t, cfg, "run")
	assert.Error(t, err, "snapshot is required")

	_, err = execute(t, cfg, "proposals", "--json")
	assert.NoError(t, err)
}

func TestSentinelsCommand(t *testing.T) {
	out, err := execute(t, testConfig(t), "sentinels", "--json")
	require.NoError(t, err)
	var report map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, false, report["circuit_breaker_enabled"], "paper mode disables the breaker")
	assert.Equal(t, true, report["heat_cap"].(map[string]interface{})["allowed"])
}
