// Package sentinels provides the process-level safety checks that sit beside
// the guardrails: a per-strategy reject-rate circuit breaker and a portfolio
// heat cap.
package sentinels

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"options-engine/internal/logging"
	"options-engine/internal/metrics"
	"options-engine/internal/models"
)

// Breaker defaults.
const (
	DefaultMaxRejects   = 3
	DefaultRejectWindow = 10 * time.Minute
)

type rejectEvent struct {
	at     time.Time
	reason string
}

// StrategyStatus is a strategy's breaker state within the current window.
type StrategyStatus struct {
	Rejects    int    `json:"rejects"`
	Tripped    bool   `json:"tripped"`
	LastReason string `json:"last_reason,omitempty"`
}

// CircuitBreaker trips a strategy after too many broker rejects inside a
// sliding window. Events older than the window are pruned on every read and
// write, so a tripped strategy resets once a full window passes without
// rejects. State is in memory only.
type CircuitBreaker struct {
	enabled    bool
	maxRejects int
	window     time.Duration
	now        func() time.Time
	logger     zerolog.Logger
	metrics    *metrics.Registry

	mu      sync.Mutex
	rejects map[models.StrategyID][]rejectEvent
}

// BreakerOption configures a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithClock overrides the breaker clock.
func WithClock(now func() time.Time) BreakerOption {
	return func(cb *CircuitBreaker) { cb.now = now }
}

// WithLimits sets the trip threshold and window.
func WithLimits(maxRejects int, window time.Duration) BreakerOption {
	return func(cb *CircuitBreaker) {
		if maxRejects > 0 {
			cb.maxRejects = maxRejects
		}
		if window > 0 {
			cb.window = window
		}
	}
}

// WithBreakerLogger sets the logger.
func WithBreakerLogger(l zerolog.Logger) BreakerOption {
	return func(cb *CircuitBreaker) { cb.logger = l }
}

// WithBreakerMetrics records rejects and trips on m.
func WithBreakerMetrics(m *metrics.Registry) BreakerOption {
	return func(cb *CircuitBreaker) { cb.metrics = m }
}

// NewCircuitBreaker creates a breaker. A disabled breaker records nothing
// and never trips.
func NewCircuitBreaker(enabled bool, opts ...BreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		enabled:    enabled,
		maxRejects: DefaultMaxRejects,
		window:     DefaultRejectWindow,
		now:        time.Now,
		logger:     zerolog.Nop(),
		rejects:    make(map[models.StrategyID][]rejectEvent),
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Enabled reports whether the breaker is active.
func (cb *CircuitBreaker) Enabled() bool {
	return cb.enabled
}

// RecordReject records a reject for strategy and reports whether the
// strategy is now tripped.
func (cb *CircuitBreaker) RecordReject(strategy models.StrategyID, reason string) bool {
	if !cb.enabled {
		return false
	}

	cb.mu.Lock()
	now := cb.now()
	events := append(cb.rejects[strategy], rejectEvent{at: now, reason: reason})
	events = cb.prune(events, now)
	cb.rejects[strategy] = events
	n := len(events)
	cb.mu.Unlock()

	tripped := n >= cb.maxRejects
	cb.metrics.Reject(string(strategy), tripped)
	if tripped {
		logging.LogCircuitTrip(cb.logger, strategy, n, cb.window)
	}
	return tripped
}

// IsTripped reports whether strategy has reached the reject threshold within
// the window.
func (cb *CircuitBreaker) IsTripped(strategy models.StrategyID) bool {
	if !cb.enabled {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	events := cb.prune(cb.rejects[strategy], cb.now())
	cb.rejects[strategy] = events
	return len(events) >= cb.maxRejects
}

// Status returns every strategy that has recorded a reject.
func (cb *CircuitBreaker) Status() map[models.StrategyID]StrategyStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	out := make(map[models.StrategyID]StrategyStatus, len(cb.rejects))
	for strategy, events := range cb.rejects {
		events = cb.prune(events, now)
		cb.rejects[strategy] = events
		st := StrategyStatus{
			Rejects: len(events),
			Tripped: len(events) >= cb.maxRejects,
		}
		if len(events) > 0 {
			st.LastReason = events[len(events)-1].reason
		}
		out[strategy] = st
	}
	return out
}

// Tripped returns the tripped strategies in name order.
func (cb *CircuitBreaker) Tripped() []models.StrategyID {
	var out []models.StrategyID
	for strategy, st := range cb.Status() {
		if st.Tripped {
			out = append(out, strategy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Reset clears all recorded rejects.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.rejects = make(map[models.StrategyID][]rejectEvent)
}

// prune keeps events with now - at < window. Caller holds mu.
func (cb *CircuitBreaker) prune(events []rejectEvent, now time.Time) []rejectEvent {
	kept := events[:0]
	for _, e := range events {
		if now.Sub(e.at) < cb.window {
			kept = append(kept, e)
		}
	}
	return kept
}
