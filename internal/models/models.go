// Package models provides domain models for the options strategy engine.
package models

import (
	"time"
)

// OptionType is the right of an option contract.
type OptionType string

const (
	Call OptionType = "CALL"
	Put  OptionType = "PUT"
)

// Side represents the side of a proposal leg.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Action is the net direction of a proposal.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// EntryType tags the structure family of a proposal.
type EntryType string

const (
	EntryDebitCall    EntryType = "DEBIT_CALL"
	EntryDebitPut     EntryType = "DEBIT_PUT"
	EntryCreditSpread EntryType = "CREDIT_SPREAD"
	EntryIronCondor   EntryType = "IRON_CONDOR"
	EntryCalendar     EntryType = "CALENDAR"
)

// Trend represents the trend classification of an underlying.
type Trend string

const (
	TrendUp      Trend = "UP"
	TrendDown    Trend = "DOWN"
	TrendNeutral Trend = "NEUTRAL"
)

// Valid reports whether t is a known trend value.
func (t Trend) Valid() bool {
	switch t {
	case TrendUp, TrendDown, TrendNeutral:
		return true
	}
	return false
}

// Candle represents an OHLCV candle of the underlying.
type Candle struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Open      float64   `json:"open" yaml:"open"`
	High      float64   `json:"high" yaml:"high"`
	Low       float64   `json:"low" yaml:"low"`
	Close     float64   `json:"close" yaml:"close"`
	Volume    int64     `json:"volume" yaml:"volume"`
}

// Closes extracts close prices, oldest first.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Float returns a pointer to v. Used for nullable numeric fields.
func Float(v float64) *float64 {
	return &v
}

// Deref returns the value behind p or def when p is nil.
func Deref(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
