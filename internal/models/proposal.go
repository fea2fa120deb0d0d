package models

import "time"

// StrategyID identifies one of the strategy modules.
type StrategyID string

const (
	LongCall       StrategyID = "LONG_CALL"
	BullPutCredit  StrategyID = "BULL_PUT_CREDIT"
	LongPut        StrategyID = "LONG_PUT"
	BearCallCredit StrategyID = "BEAR_CALL_CREDIT"
	IronCondor     StrategyID = "IRON_CONDOR"
	CalendarCall   StrategyID = "CALENDAR_CALL"
	CalendarPut    StrategyID = "CALENDAR_PUT"
)

// ProposalLeg is one option leg of a proposal.
type ProposalLeg struct {
	Side     Side       `json:"side" yaml:"side"`
	Type     OptionType `json:"type" yaml:"type"`
	Strike   float64    `json:"strike" yaml:"strike"`
	Expiry   string     `json:"expiry" yaml:"expiry"`
	Quantity int        `json:"quantity" yaml:"quantity"`
	Price    float64    `json:"price" yaml:"price"`
}

// Proposal is a scored trade candidate. Immutable once produced.
type Proposal struct {
	ID          string                 `json:"id,omitempty" yaml:"id,omitempty"`
	Strategy    StrategyID             `json:"strategy" yaml:"strategy"`
	Symbol      string                 `json:"symbol" yaml:"symbol"`
	Action      Action                 `json:"action" yaml:"action"`
	EntryType   EntryType              `json:"entry_type" yaml:"entry_type"`
	Score       int                    `json:"score" yaml:"score"`
	POP         *float64               `json:"pop,omitempty" yaml:"pop,omitempty"`
	RR          *float64               `json:"rr,omitempty" yaml:"rr,omitempty"`
	Credit      *float64               `json:"credit,omitempty" yaml:"credit,omitempty"`
	Debit       *float64               `json:"debit,omitempty" yaml:"debit,omitempty"`
	EntryPrice  float64                `json:"entry_price" yaml:"entry_price"`
	TargetPrice float64                `json:"target_price" yaml:"target_price"`
	StopPrice   float64                `json:"stop_price" yaml:"stop_price"`
	Qty         int                    `json:"qty" yaml:"qty"`
	MaxLoss     float64                `json:"max_loss" yaml:"max_loss"`
	DTE         int                    `json:"dte" yaml:"dte"`
	Width       float64                `json:"width,omitempty" yaml:"width,omitempty"`
	IVR         *float64               `json:"ivr,omitempty" yaml:"ivr,omitempty"`
	Legs        []ProposalLeg          `json:"legs" yaml:"legs"`
	Rationale   string                 `json:"rationale" yaml:"rationale"`
	Meta        map[string]interface{} `json:"meta,omitempty" yaml:"meta,omitempty"`
	CreatedAt   time.Time              `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// Expiry returns the expiry of the first leg, or "" for a legless proposal.
func (p *Proposal) Expiry() string {
	if len(p.Legs) == 0 {
		return ""
	}
	return p.Legs[0].Expiry
}

// StrategyConfig is a registry entry's static configuration.
type StrategyConfig struct {
	Enabled    bool    `json:"enabled" mapstructure:"enabled"`
	Phase      int     `json:"phase" mapstructure:"phase"`
	MinScore   int     `json:"min_score" mapstructure:"min_score"`
	MaxRiskPct float64 `json:"max_risk_pct" mapstructure:"max_risk_pct"`
}

// GuardrailCheck is a transient verdict from the guardrail evaluator.
type GuardrailCheck struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}
