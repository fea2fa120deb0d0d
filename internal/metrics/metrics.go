// Package metrics holds the Prometheus collectors for the engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every engine collector. A nil *Registry is valid and
// records nothing, so components can take one optionally.
type Registry struct {
	RunDuration   prometheus.Histogram
	RunsTotal     prometheus.Counter
	SymbolsTotal  *prometheus.CounterVec
	Proposals     *prometheus.CounterVec
	ModuleErrors  *prometheus.CounterVec
	Guardrail     *prometheus.CounterVec
	CircuitTrips  *prometheus.CounterVec
	Rejects       *prometheus.CounterVec
	HeatRiskPct   prometheus.Gauge
	HeatBlocks    prometheus.Counter
	SourceLatency prometheus.Histogram
	Published     *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on reg. A nil reg selects a
// fresh private registry.
func New(reg *prometheus.Registry) *Registry {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Registry{
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "optengine_run_duration_seconds",
			Help:    "Duration of a full evaluation run in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		RunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "optengine_runs_total",
			Help: "Total number of evaluation runs",
		}),
		SymbolsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optengine_symbols_total",
			Help: "Symbols evaluated by outcome",
		}, []string{"outcome"}),
		Proposals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optengine_proposals_total",
			Help: "Ranked proposals emitted by strategy",
		}, []string{"strategy"}),
		ModuleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optengine_module_errors_total",
			Help: "Strategy module failures by strategy",
		}, []string{"strategy"}),
		Guardrail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optengine_guardrail_decisions_total",
			Help: "Guardrail verdicts by result and failing check",
		}, []string{"result", "check"}),
		CircuitTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optengine_circuit_trips_total",
			Help: "Circuit breaker trips by strategy",
		}, []string{"strategy"}),
		Rejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optengine_rejects_total",
			Help: "Broker rejects recorded by strategy",
		}, []string{"strategy"}),
		HeatRiskPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "optengine_heat_risk_pct",
			Help: "Last observed portfolio risk as percent of equity",
		}),
		HeatBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "optengine_heat_blocks_total",
			Help: "Runs blocked by the heat cap",
		}),
		SourceLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "optengine_source_latency_seconds",
			Help:    "Latency of per-symbol input fetches",
			Buckets: prometheus.DefBuckets,
		}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "optengine_published_total",
			Help: "Proposals handed to the publisher by result",
		}, []string{"result"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.RunDuration,
		m.RunsTotal,
		m.SymbolsTotal,
		m.Proposals,
		m.ModuleErrors,
		m.Guardrail,
		m.CircuitTrips,
		m.Rejects,
		m.HeatRiskPct,
		m.HeatBlocks,
		m.SourceLatency,
		m.Published,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Registry) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveRun records one completed run.
func (m *Registry) ObserveRun(d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.Inc()
	m.RunDuration.Observe(d.Seconds())
}

// ObserveSymbol records a symbol outcome: evaluated, skipped or error.
func (m *Registry) ObserveSymbol(outcome string) {
	if m == nil {
		return
	}
	m.SymbolsTotal.WithLabelValues(outcome).Inc()
}

// ObserveSource records the latency of one input fetch.
func (m *Registry) ObserveSource(d time.Duration) {
	if m == nil {
		return
	}
	m.SourceLatency.Observe(d.Seconds())
}

// AddProposals counts emitted proposals for a strategy.
func (m *Registry) AddProposals(strategy string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Proposals.WithLabelValues(strategy).Add(float64(n))
}

// ModuleError counts a failed module invocation.
func (m *Registry) ModuleError(strategy string) {
	if m == nil {
		return
	}
	m.ModuleErrors.WithLabelValues(strategy).Inc()
}

// GuardrailDecision counts a verdict. check is the failing check, or "none".
func (m *Registry) GuardrailDecision(allowed bool, check string) {
	if m == nil {
		return
	}
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.Guardrail.WithLabelValues(result, check).Inc()
}

// Reject counts a broker reject and, when tripped, a breaker trip.
func (m *Registry) Reject(strategy string, tripped bool) {
	if m == nil {
		return
	}
	m.Rejects.WithLabelValues(strategy).Inc()
	if tripped {
		m.CircuitTrips.WithLabelValues(strategy).Inc()
	}
}

// HeatCheck records the observed portfolio risk.
func (m *Registry) HeatCheck(riskPct float64, blocked bool) {
	if m == nil {
		return
	}
	m.HeatRiskPct.Set(riskPct)
	if blocked {
		m.HeatBlocks.Inc()
	}
}

// Publish counts a publish attempt.
func (m *Registry) Publish(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.Published.WithLabelValues("ok").Inc()
	} else {
		m.Published.WithLabelValues("error").Inc()
	}
}
