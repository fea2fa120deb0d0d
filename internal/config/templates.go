package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Options engine configuration

[app]
# Threshold tier: "production" (strict) or "test"/"development" (relaxed)
env = "production"

[trading]
# Trading mode: "live" or "paper". The circuit breaker only runs in live mode.
mode = "paper"
equity = 100000.0

[engine]
# Highest strategy phase allowed to run (1-3)
phase = 1
max_results = 50
concurrency = 4
source_timeout = "10s"

[features]
ivrv_edge = false

[risk]
risk_per_trade_pct = 0.5
max_notional = 10000.0
max_portfolio_risk_pct = 20.0

[guardrails]
# Fallbacks when the guardrails table has no row
max_positions = 5
max_equity_at_risk_pct = 20.0
risk_per_trade_pct = 2.5
cooldown = "168h"

[circuit_breaker]
max_rejects = 3
window = "10m"

[heat_cap]
enabled = true
max_pct = 10.0

[store]
# sqlite3 or postgres
driver = "sqlite3"
dsn = "optengine.db"

[redis]
# Leave empty to keep cooldowns in memory
addr = ""

[kafka]
enabled = false
brokers = []
topic = "options.proposals"

[server]
addr = ":8080"

[notifications]
# all, proposals_only or errors_only
level = "all"

[notifications.webhook]
# Slack-compatible incoming webhook; SLACK_WEBHOOK_URL overrides
enabled = false
url = ""

[notifications.telegram]
enabled = false
bot_token = ""
chat_id = ""

[notifications.terminal]
# Print alerts to stderr; bell rings on risk alerts
enabled = false
bell = false

[logging]
level = "info"
file = ""
console = true

# Per-strategy overrides, e.g.
# [strategies.iron_condor]
# enabled = true
# phase = 3
# min_score = 55
# max_risk_pct = 0.02
`

// WriteTemplate writes a commented optengine.toml into configDir and returns
// its path. An existing file is left untouched.
func WriteTemplate(configDir string) (string, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "optengine.toml")
	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return "", fmt.Errorf("writing config template: %w", err)
	}

	return path, nil
}
