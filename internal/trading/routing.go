package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"options-engine/internal/guardrails"
	"options-engine/internal/logging"
	"options-engine/internal/models"
	"options-engine/internal/notify"
	"options-engine/internal/sentinels"
)

// Gate decides whether a proposal may be routed. Check commits the
// decision, starting the symbol cooldown.
type Gate interface {
	Check(ctx context.Context, p *models.Proposal, qty int) models.GuardrailCheck
}

// TradeStore records routed trades.
type TradeStore interface {
	SaveTrade(ctx context.Context, t *models.Trade) error
	UpdateTradeStatus(ctx context.Context, id string, status models.TradeStatus) error
}

// RouteResult is the outcome of routing one proposal.
type RouteResult struct {
	models.GuardrailCheck
	Trade *models.Trade `json:"trade,omitempty"`
}

// Router turns approved proposals into recorded trades and feeds broker
// rejects back into the strategy circuit breaker.
type Router struct {
	gate     Gate
	trades   TradeStore
	breaker  *sentinels.CircuitBreaker
	notifier notify.Notifier
	paper    bool
	logger   zerolog.Logger
	now      func() time.Time
	newID    func() string
}

// NewRouter creates a Router. Paper trades are recorded as filled; live
// trades start pending until the broker reports back.
func NewRouter(gate Gate, trades TradeStore, breaker *sentinels.CircuitBreaker, notifier notify.Notifier, paper bool, logger zerolog.Logger) *Router {
	if notifier == nil {
		notifier = notify.NewNoOpNotifier()
	}
	if breaker == nil {
		breaker = sentinels.NewCircuitBreaker(false)
	}
	return &Router{
		gate:     gate,
		trades:   trades,
		breaker:  breaker,
		notifier: notifier,
		paper:    paper,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Route checks p at qty and records a trade when allowed. A blocked
// proposal is not an error.
func (r *Router) Route(ctx context.Context, p *models.Proposal, qty int) (*RouteResult, error) {
	if qty < 1 {
		return nil, fmt.Errorf("invalid qty %d", qty)
	}
	if r.breaker.IsTripped(p.Strategy) {
		return &RouteResult{GuardrailCheck: models.GuardrailCheck{
			Allowed: false,
			Reason:  fmt.Sprintf("Strategy %s disabled by circuit breaker", p.Strategy),
		}}, nil
	}

	verdict := r.gate.Check(ctx, p, qty)
	if !verdict.Allowed {
		return &RouteResult{GuardrailCheck: verdict}, nil
	}

	status := models.TradePending
	if r.paper {
		status = models.TradeFilled
	}
	t := &models.Trade{
		ID:         r.newID(),
		ProposalID: p.ID,
		Symbol:     p.Symbol,
		Strategy:   p.Strategy,
		Qty:        qty,
		MaxLoss:    guardrails.TradeRisk(p, qty) / float64(qty),
		Status:     status,
		IsPaper:    r.paper,
		CreatedAt:  r.now().UTC(),
	}
	if err := r.trades.SaveTrade(ctx, t); err != nil {
		return nil, fmt.Errorf("record trade for %s: %w", p.Symbol, err)
	}

	logging.LogOrder(r.logger, t.ID, p, qty)
	return &RouteResult{GuardrailCheck: verdict, Trade: t}, nil
}

// UpdateStatus applies a broker status update to a trade.
func (r *Router) UpdateStatus(ctx context.Context, tradeID string, status models.TradeStatus) error {
	if status == models.TradeRejected {
		return fmt.Errorf("use Reject for rejected trades")
	}
	return r.trades.UpdateTradeStatus(ctx, tradeID, status)
}

// Reject marks a trade rejected and records the reject against its
// strategy. It reports whether the strategy is tripped; the first trip sends
// an alert.
func (r *Router) Reject(ctx context.Context, tradeID string, strategy models.StrategyID, reason string) (bool, error) {
	if err := r.trades.UpdateTradeStatus(ctx, tradeID, models.TradeRejected); err != nil {
		return false, err
	}

	wasTripped := r.breaker.IsTripped(strategy)
	tripped := r.breaker.RecordReject(strategy, reason)
	if tripped && !wasTripped {
		rejects := r.breaker.Status()[strategy].Rejects
		if err := r.notifier.SendCircuitTrip(ctx, strategy, rejects, reason); err != nil {
			r.logger.Warn().Err(err).Str("strategy", string(strategy)).Msg("circuit trip alert failed")
		}
	}
	return tripped, nil
}
