package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"options-engine/internal/config"
	"options-engine/internal/engine"
	apperrors "options-engine/internal/errors"
	"options-engine/internal/models"
	"options-engine/internal/security"
	"options-engine/internal/sentinels"
)

const maxBodyBytes = 8 << 20

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := errorResponse{Error: msg}
	if err != nil {
		resp.Message = err.Error()
	}
	writeJSON(w, status, resp)
}

func unavailable(w http.ResponseWriter, what string) {
	writeError(w, http.StatusServiceUnavailable, what+" not configured", nil)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"time":    s.now().UnixMilli(),
		"service": "optengine",
		"version": s.deps.Version,
		"uptime":  s.now().Sub(s.start).Round(time.Second).String(),
	})
}

// handleRun evaluates the snapshots in the request body. Runs are
// serialized.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.NewRunner == nil {
		unavailable(w, "runner")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}
	snaps, err := engine.ParseSnapshots(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid snapshot", err)
		return
	}

	source := engine.NewSnapshotSource(snaps, s.deps.Equity)
	symbols := source.Symbols()
	if q := r.URL.Query().Get("symbols"); q != "" {
		if symbols, err = security.NormalizeSymbols(strings.Split(q, ",")); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request", err)
			return
		}
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	result, err := s.deps.NewRunner(source).Run(r.Context(), symbols)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Run cancelled", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleProposals(w http.ResponseWriter, r *http.Request) {
	if s.deps.Proposals == nil {
		unavailable(w, "store")
		return
	}
	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500", nil)
			return
		}
		limit = n
	}
	recs, err := s.deps.Proposals.RecentProposals(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal error", err)
		return
	}
	if recs == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	if s.deps.Signals == nil {
		unavailable(w, "signal processor")
		return
	}
	var sig models.Signal
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&sig); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}
	var err error
	if sig.Symbol, err = security.NormalizeSymbol(sig.Symbol); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	p, err := s.deps.Signals.Process(r.Context(), sig)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal error", err)
		return
	}
	if p == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "created": false})
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

type guardrailRequest struct {
	Proposal *models.Proposal `json:"proposal"`
	Qty      int              `json:"qty"`
	Commit   bool             `json:"commit"`
}

// handleGuardrailCheck returns the verdict for a proposal. Without commit the
// check is a preview and starts no cooldown.
func (s *Server) handleGuardrailCheck(w http.ResponseWriter, r *http.Request) {
	if s.deps.Guard == nil {
		unavailable(w, "guardrails")
		return
	}
	var req guardrailRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}
	if err := normalizeProposal(req.Proposal); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}
	if req.Qty < 1 {
		writeError(w, http.StatusBadRequest, "Invalid request", errors.New("qty must be a positive integer"))
		return
	}

	var verdict models.GuardrailCheck
	if req.Commit {
		verdict = s.deps.Guard.Check(r.Context(), req.Proposal, req.Qty)
	} else {
		verdict = s.deps.Guard.Preview(r.Context(), req.Proposal, req.Qty)
	}
	writeJSON(w, http.StatusOK, verdict)
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	if s.deps.Guard == nil {
		unavailable(w, "guardrails")
		return
	}
	m, err := s.deps.Guard.RiskMetrics(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal error", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type sentinelsResponse struct {
	Heat    *heatStatus    `json:"heat_cap"`
	Breaker *breakerStatus `json:"circuit_breaker"`
}

type heatStatus struct {
	Enabled bool    `json:"enabled"`
	MaxPct  float64 `json:"max_pct"`
	sentinels.HeatResult
}

type breakerStatus struct {
	Enabled    bool                                           `json:"enabled"`
	Tripped    []models.StrategyID                            `json:"tripped"`
	Strategies map[models.StrategyID]sentinels.StrategyStatus `json:"strategies"`
}

func (s *Server) handleSentinels(w http.ResponseWriter, r *http.Request) {
	var resp sentinelsResponse
	if s.deps.Heat != nil {
		resp.Heat = &heatStatus{
			Enabled:    s.deps.Heat.Enabled(),
			MaxPct:     s.deps.Heat.MaxPct(),
			HeatResult: s.deps.Heat.Check(r.Context(), s.deps.Equity),
		}
	}
	if s.deps.Breaker != nil {
		tripped := s.deps.Breaker.Tripped()
		if tripped == nil {
			tripped = []models.StrategyID{}
		}
		resp.Breaker = &breakerStatus{
			Enabled:    s.deps.Breaker.Enabled(),
			Tripped:    tripped,
			Strategies: s.deps.Breaker.Status(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// handleReject records a broker rejection against a strategy.
func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	if s.deps.Breaker == nil {
		unavailable(w, "circuit breaker")
		return
	}
	id, ok := config.StrategyIDForKey(strings.ToLower(chi.URLParam(r, "id")))
	if !ok {
		writeError(w, http.StatusNotFound, "Not found",
			fmt.Errorf("%s: %w", chi.URLParam(r, "id"), apperrors.ErrUnknownStrategy))
		return
	}
	var req rejectRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	tripped := s.deps.Breaker.RecordReject(id, req.Reason)
	st := s.deps.Breaker.Status()[id]
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"strategy": id,
		"tripped":  tripped || st.Tripped,
		"rejects":  st.Rejects,
	})
}

// handleRoute checks a proposal, starts its cooldown and records the trade
// when allowed.
func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	if s.deps.Router == nil {
		unavailable(w, "router")
		return
	}
	var req guardrailRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}
	if err := normalizeProposal(req.Proposal); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}
	if req.Qty < 1 {
		writeError(w, http.StatusBadRequest, "Invalid request", errors.New("qty must be a positive integer"))
		return
	}

	res, err := s.deps.Router.Route(r.Context(), req.Proposal, req.Qty)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal error", err)
		return
	}
	status := http.StatusOK
	if res.Trade != nil {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

type tradeStatusRequest struct {
	Status   models.TradeStatus `json:"status"`
	Strategy string             `json:"strategy"`
	Reason   string             `json:"reason"`
}

// handleTradeStatus applies a broker update. Rejections feed the strategy
// circuit breaker.
func (s *Server) handleTradeStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Router == nil {
		unavailable(w, "router")
		return
	}
	id := chi.URLParam(r, "id")
	if err := security.ValidateID("trade_id", id); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}
	var req tradeStatusRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	switch req.Status {
	case models.TradeRejected:
		strategy, ok := config.StrategyIDForKey(strings.ToLower(req.Strategy))
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid request",
				fmt.Errorf("%q: %w", req.Strategy, apperrors.ErrUnknownStrategy))
			return
		}
		tripped, err := s.deps.Router.Reject(r.Context(), id, strategy, security.SanitizeText(req.Reason))
		if err != nil {
			writeError(w, http.StatusNotFound, "Not found", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "status": req.Status, "tripped": tripped})
	case models.TradeSubmitted, models.TradeAcknowledged, models.TradeFilled, models.TradeCancelled, models.TradeClosed:
		if err := s.deps.Router.UpdateStatus(r.Context(), id, req.Status); err != nil {
			writeError(w, http.StatusNotFound, "Not found", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "status": req.Status})
	default:
		writeError(w, http.StatusBadRequest, "Invalid request", fmt.Errorf("unknown status %q", req.Status))
	}
}

func normalizeProposal(p *models.Proposal) error {
	if p == nil {
		return errors.New("proposal is required")
	}
	sym, err := security.NormalizeSymbol(p.Symbol)
	if err != nil {
		return err
	}
	p.Symbol = sym
	return nil
}
