// Package store provides the relational store for positions, trades,
// guardrail limits and ranked proposals.
package store

import (
	"context"
	"time"

	"options-engine/internal/models"
)

// DataStore is the persistence contract used by the guardrails, the heat
// cap and the runner.
type DataStore interface {
	// Guardrail limits
	Guardrails(ctx context.Context) (map[string]string, error)
	SetGuardrail(ctx context.Context, key, value string) error

	// Positions
	SavePosition(ctx context.Context, p *models.Position) error
	CountOpenPositions(ctx context.Context) (int, error)
	OpenPositions(ctx context.Context) ([]models.Position, error)

	// Trades
	SaveTrade(ctx context.Context, t *models.Trade) error
	UpdateTradeStatus(ctx context.Context, id string, status models.TradeStatus) error
	ActiveTradeRisk(ctx context.Context, since time.Time) (float64, error)

	// Proposals
	SaveProposal(ctx context.Context, p *models.Proposal, dedupeKey string) error
	IsDuplicate(ctx context.Context, dedupeKey string, since time.Time) (bool, error)
	RecentProposals(ctx context.Context, limit int) ([]ProposalRecord, error)
	SaveSignalProposal(ctx context.Context, p *models.SignalProposal) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// Guardrail table keys.
const (
	KeyMaxPositions       = "max_positions"
	KeyMaxEquityAtRiskPct = "max_equity_at_risk_pct"
	KeyRiskPerTradePct    = "risk_per_trade_pct"
)

// ProposalRecord is a persisted proposal row.
type ProposalRecord struct {
	ID         string    `db:"id" json:"id"`
	Strategy   string    `db:"strategy" json:"strategy"`
	Symbol     string    `db:"symbol" json:"symbol"`
	Action     string    `db:"action" json:"action"`
	EntryType  string    `db:"entry_type" json:"entry_type"`
	Score      int       `db:"score" json:"score"`
	EntryPrice float64   `db:"entry_price" json:"entry_price"`
	Qty        int       `db:"qty" json:"qty"`
	MaxLoss    float64   `db:"max_loss" json:"max_loss"`
	DTE        int       `db:"dte" json:"dte"`
	Legs       string    `db:"legs" json:"legs"` // JSON
	Rationale  string    `db:"rationale" json:"rationale"`
	DedupeKey  string    `db:"dedupe_key" json:"dedupe_key"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// SignalProposalRecord is a persisted signal proposal row. Legs and filters
// are JSON.
type SignalProposalRecord struct {
	ID              string    `db:"id"`
	CreatedAt       time.Time `db:"created_at"`
	Symbol          string    `db:"symbol"`
	Bias            string    `db:"bias"`
	DTE             int       `db:"dte"`
	LongLeg         string    `db:"long_leg"`
	ShortLeg        string    `db:"short_leg"`
	Width           float64   `db:"width"`
	Debit           float64   `db:"debit"`
	MaxProfit       float64   `db:"max_profit"`
	RR              float64   `db:"rr"`
	Filters         string    `db:"filters"`
	Status          string    `db:"status"`
	StrategyVersion string    `db:"strategy_version"`
}
