package models

import "time"

// TradeStatus is the lifecycle status of a routed trade.
type TradeStatus string

const (
	TradePending      TradeStatus = "pending"
	TradeSubmitted    TradeStatus = "submitted"
	TradeAcknowledged TradeStatus = "acknowledged"
	TradeFilled       TradeStatus = "filled"
	TradeCancelled    TradeStatus = "cancelled"
	TradeRejected     TradeStatus = "rejected"
	TradeClosed       TradeStatus = "closed"
)

// ActiveTradeStatuses are the non-terminal statuses counted by the heat cap.
var ActiveTradeStatuses = []TradeStatus{
	TradePending,
	TradeSubmitted,
	TradeAcknowledged,
	TradeFilled,
}

// IsActive reports whether s is non-terminal.
func (s TradeStatus) IsActive() bool {
	for _, a := range ActiveTradeStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// Trade is an order routed from an approved proposal.
type Trade struct {
	ID         string      `json:"id" db:"id"`
	ProposalID string      `json:"proposal_id" db:"proposal_id"`
	Symbol     string      `json:"symbol" db:"symbol"`
	Strategy   StrategyID  `json:"strategy" db:"strategy"`
	Qty        int         `json:"qty" db:"qty"`
	MaxLoss    float64     `json:"max_loss" db:"max_loss"` // per unit of qty
	Status     TradeStatus `json:"status" db:"status"`
	IsPaper    bool        `json:"is_paper" db:"is_paper"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
}

// PositionState is the state of a position.
type PositionState string

const (
	PositionOpen   PositionState = "open"
	PositionClosed PositionState = "closed"
)

// Position is an open or closed position held in the account.
type Position struct {
	ID         string        `json:"id" db:"id"`
	Symbol     string        `json:"symbol" db:"symbol"`
	Strategy   StrategyID    `json:"strategy" db:"strategy"`
	Qty        int           `json:"qty" db:"qty"`
	EntryDebit float64       `json:"entry_debit" db:"entry_debit"`
	State      PositionState `json:"state" db:"state"`
	OpenedAt   time.Time     `json:"opened_at" db:"opened_at"`
}

// RiskAtEntry returns the dollar risk carried by the position.
func (p Position) RiskAtEntry() float64 {
	return float64(p.Qty) * p.EntryDebit * 100
}
