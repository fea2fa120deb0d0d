// Package server exposes the engine, guardrails and sentinels over HTTP.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"options-engine/internal/engine"
	"options-engine/internal/guardrails"
	"options-engine/internal/metrics"
	"options-engine/internal/models"
	"options-engine/internal/sas"
	"options-engine/internal/sentinels"
	"options-engine/internal/store"
	"options-engine/internal/trading"
)

// ProposalLister lists persisted proposals.
type ProposalLister interface {
	RecentProposals(ctx context.Context, limit int) ([]store.ProposalRecord, error)
}

// SignalProcessor turns a signal into a stored proposal.
type SignalProcessor interface {
	Process(ctx context.Context, sig models.Signal) (*models.SignalProposal, error)
}

// RunnerFactory builds a runner over source.
type RunnerFactory func(source engine.InputSource) *engine.Runner

// Deps are the collaborators served by the API. Nil members disable their
// routes with 503.
type Deps struct {
	Guard     *guardrails.Evaluator
	Breaker   *sentinels.CircuitBreaker
	Heat      *sentinels.HeatCap
	Proposals ProposalLister
	Router    *trading.Router
	Signals   SignalProcessor
	NewRunner RunnerFactory
	Metrics   *metrics.Registry
	Logger    zerolog.Logger
	Equity    float64
	Version   string
}

// Server holds the handlers' state.
type Server struct {
	deps  Deps
	runMu sync.Mutex
	start time.Time
	now   func() time.Time
}

// New creates a Server.
func New(deps Deps) *Server {
	if deps.Version == "" {
		deps.Version = "dev"
	}
	return &Server{deps: deps, start: time.Now(), now: time.Now}
}

// The SAS processor is the production SignalProcessor.
var _ SignalProcessor = (*sas.Processor)(nil)

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)
	r.Use(loggerMiddleware(s.deps.Logger))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.deps.Metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/run", s.handleRun)
		r.Get("/proposals", s.handleProposals)
		r.Post("/signals", s.handleSignal)
		r.Post("/guardrails/check", s.handleGuardrailCheck)
		r.Get("/risk", s.handleRisk)
		r.Get("/sentinels", s.handleSentinels)
		r.Post("/strategies/{id}/rejects", s.handleReject)
		r.Post("/trades", s.handleRoute)
		r.Post("/trades/{id}/status", s.handleTradeStatus)
	})

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.Info().Str("addr", addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.deps.Logger.Info().Msg("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loggerMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		})
	}
}
