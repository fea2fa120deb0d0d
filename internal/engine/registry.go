// Package engine runs the strategy modules across symbols and ranks the
// results.
package engine

import (
	"fmt"

	"options-engine/internal/config"
	apperrors "options-engine/internal/errors"
	"options-engine/internal/models"
	"options-engine/internal/strategies"
)

// Entry binds a strategy module to its registry configuration.
type Entry struct {
	ID     models.StrategyID
	Module strategies.Module
	Config models.StrategyConfig
}

// Allowed reports whether the entry runs in phase.
func (e Entry) Allowed(phase int) bool {
	return e.Config.Enabled && e.Config.Phase <= phase
}

// Registry is the closed set of strategy modules, in evaluation order.
type Registry struct {
	entries []Entry
}

// NewRegistry builds the registry for cfg: every module, configured from
// cfg.Strategies with built-in defaults for missing keys.
func NewRegistry(cfg *config.Config) *Registry {
	modules := strategies.All(cfg.Thresholds)
	entries := make([]Entry, 0, len(modules))
	for _, m := range modules {
		entries = append(entries, Entry{ID: m.ID(), Module: m, Config: cfg.Strategy(m.ID())})
	}
	return &Registry{entries: entries}
}

// NewRegistryFromEntries builds a registry from explicit entries.
func NewRegistryFromEntries(entries ...Entry) *Registry {
	return &Registry{entries: append([]Entry(nil), entries...)}
}

// Entries returns every entry.
func (r *Registry) Entries() []Entry {
	return append([]Entry(nil), r.entries...)
}

// Get returns the entry for id.
func (r *Registry) Get(id models.StrategyID) (Entry, error) {
	for _, e := range r.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%s: %w", id, apperrors.ErrUnknownStrategy)
}

// Allowed returns the enabled entries whose phase is at most phase.
func (r *Registry) Allowed(phase int) []Entry {
	var out []Entry
	for _, e := range r.entries {
		if e.Allowed(phase) {
			out = append(out, e)
		}
	}
	return out
}
