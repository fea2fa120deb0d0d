package analytics

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"options-engine/internal/models"
)

// legKey is a leg reduced to the fields that identify a structure. Field
// order is alphabetical so the encoding is stable.
type legKey struct {
	Expiry   string  `json:"expiry"`
	Quantity int     `json:"quantity"`
	Side     string  `json:"side"`
	Strike   float64 `json:"strike"`
	Type     string  `json:"type"`
}

type legsDigest struct {
	EntryType string   `json:"entryType"`
	Legs      []legKey `json:"legs"`
	Strategy  string   `json:"strategy"`
	Symbol    string   `json:"symbol"`
}

// LegsHash is a SHA-256 hex digest over symbol, strategy, entry type and
// the legs' identifying fields. Prices are excluded so a re-quoted
// structure hashes the same.
func LegsHash(symbol string, strategy models.StrategyID, entryType models.EntryType, legs []models.ProposalLeg) string {
	d := legsDigest{
		EntryType: string(entryType),
		Legs:      make([]legKey, len(legs)),
		Strategy:  string(strategy),
		Symbol:    symbol,
	}
	for i, l := range legs {
		d.Legs[i] = legKey{
			Expiry:   l.Expiry,
			Quantity: l.Quantity,
			Side:     string(l.Side),
			Strike:   l.Strike,
			Type:     string(l.Type),
		}
	}

	// Marshal of plain structs cannot fail.
	b, _ := json.Marshal(d)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// DedupeKey identifies a proposal's structure across runs:
// symbol|strategy|entryType|expiry|legsHash.
func DedupeKey(p *models.Proposal) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", p.Symbol, p.Strategy, p.EntryType, p.Expiry(),
		LegsHash(p.Symbol, p.Strategy, p.EntryType, p.Legs))
}
