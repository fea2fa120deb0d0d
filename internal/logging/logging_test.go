package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-engine/internal/models"
)

func newBufferLogger(buf *bytes.Buffer) LogConfig {
	return LogConfig{Level: "debug", Out: buf}
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestLogProposalFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithConfig(newBufferLogger(&buf))

	p := &models.Proposal{
		Strategy: models.BearCallCredit,
		Symbol:   "SPY",
		Score:    72,
		DTE:      35,
		Qty:      2,
		POP:      models.Float(75),
		Credit:   models.Float(1.6),
	}
	LogProposal(logger, p)

	entry := lastEntry(t, &buf)
	assert.Equal(t, "proposal", entry["event"])
	assert.Equal(t, "BEAR_CALL_CREDIT", entry["strategy"])
	assert.Equal(t, 72.0, entry["score"])
	assert.Equal(t, 1.6, entry["credit"])
	_, hasDebit := entry["debit"]
	assert.False(t, hasDebit)
}

func TestLogOrderLegSummary(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithConfig(newBufferLogger(&buf))

	p := &models.Proposal{
		Strategy: models.BullPutCredit,
		Symbol:   "QQQ",
		Legs: []models.ProposalLeg{
			{Side: models.SideSell, Type: models.Put, Strike: 95, Expiry: "2025-04-18"},
			{Side: models.SideBuy, Type: models.Put, Strike: 90.5, Expiry: "2025-04-18"},
		},
	}
	LogOrder(logger, "t-1", p, 3)

	entry := lastEntry(t, &buf)
	assert.Equal(t, "SELL PUT 95@04-18 | BUY PUT 90.5@04-18", entry["legs"])
	assert.Equal(t, 3.0, entry["qty"])
}

func TestLogRunBreakdown(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithConfig(newBufferLogger(&buf))

	LogRun(logger, RunStats{
		Duration:   1500 * time.Millisecond,
		Symbols:    3,
		Proposals:  4,
		ByStrategy: map[models.StrategyID]int{models.LongCall: 1, models.IronCondor: 3},
	})

	entry := lastEntry(t, &buf)
	breakdown, ok := entry["by_strategy"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 3.0, breakdown["IRON_CONDOR"])
	assert.Equal(t, 4.0, entry["proposals"])
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := WithSymbol(NewLoggerWithConfig(newBufferLogger(&buf)), "IWM")

	ctx := WithLogger(context.Background(), logger)
	fromCtx := FromContext(ctx)
	fromCtx.Info().Msg("hello")
	assert.Equal(t, "IWM", lastEntry(t, &buf)["symbol"])

	// Without a logger the context yields a no-op logger.
	nop := FromContext(context.Background())
	nop.Info().Msg("dropped")
	assert.Equal(t, "hello", lastEntry(t, &buf)["message"])
}
