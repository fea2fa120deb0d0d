package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"options-engine/internal/models"
)

// ============================================================================
// Guardrails
// ============================================================================

// Guardrails returns the guardrail key/value table.
func (s *SQLStore) Guardrails(ctx context.Context) (map[string]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rows []struct {
		K string `db:"k"`
		V string `db:"v"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT k, v FROM guardrails`); err != nil {
		return nil, fmt.Errorf("failed to query guardrails: %w", err)
	}

	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.K] = r.V
	}
	return out, nil
}

// SetGuardrail upserts one guardrail value.
func (s *SQLStore) SetGuardrail(ctx context.Context, key, value string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO guardrails (k, v) VALUES (?, ?)
		ON CONFLICT (k) DO UPDATE SET v = excluded.v`), key, value)
	if err != nil {
		return fmt.Errorf("failed to set guardrail %s: %w", key, err)
	}
	return nil
}

// ============================================================================
// Positions
// ============================================================================

// SavePosition inserts or replaces a position.
func (s *SQLStore) SavePosition(ctx context.Context, p *models.Position) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.OpenedAt.IsZero() {
		p.OpenedAt = time.Now().UTC()
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO positions (id, symbol, strategy, qty, entry_debit, state, opened_at)
		VALUES (:id, :symbol, :strategy, :qty, :entry_debit, :state, :opened_at)
		ON CONFLICT (id) DO UPDATE SET qty = excluded.qty, entry_debit = excluded.entry_debit, state = excluded.state`, p)
	if err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

// CountOpenPositions returns the number of open positions.
func (s *SQLStore) CountOpenPositions(ctx context.Context) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM positions WHERE state = ?`), models.PositionOpen); err != nil {
		return 0, fmt.Errorf("failed to count open positions: %w", err)
	}
	return n, nil
}

// OpenPositions returns every open position.
func (s *SQLStore) OpenPositions(ctx context.Context) ([]models.Position, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var positions []models.Position
	err := s.db.SelectContext(ctx, &positions, s.db.Rebind(`
		SELECT id, symbol, strategy, qty, entry_debit, state, opened_at
		FROM positions
		WHERE state = ?
		ORDER BY opened_at`), models.PositionOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to query open positions: %w", err)
	}
	return positions, nil
}

// ============================================================================
// Trades
// ============================================================================

// SaveTrade records a routed trade.
func (s *SQLStore) SaveTrade(ctx context.Context, t *models.Trade) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO trades (id, proposal_id, symbol, strategy, qty, max_loss, status, is_paper, created_at)
		VALUES (:id, :proposal_id, :symbol, :strategy, :qty, :max_loss, :status, :is_paper, :created_at)`, t)
	if err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}

// UpdateTradeStatus moves a trade to a new status.
func (s *SQLStore) UpdateTradeStatus(ctx context.Context, id string, status models.TradeStatus) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE trades SET status = ? WHERE id = ?`), status, id)
	if err != nil {
		return fmt.Errorf("failed to update trade status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("trade not found: %s", id)
	}
	return nil
}

// ActiveTradeRisk sums max_loss × qty over non-terminal trades created after
// since.
func (s *SQLStore) ActiveTradeRisk(ctx context.Context, since time.Time) (float64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	statuses := make([]string, len(models.ActiveTradeStatuses))
	for i, st := range models.ActiveTradeStatuses {
		statuses[i] = string(st)
	}

	query, args, err := sqlx.In(`
		SELECT COALESCE(SUM(max_loss * qty), 0)
		FROM trades
		WHERE status IN (?) AND created_at > ?`, statuses, since)
	if err != nil {
		return 0, fmt.Errorf("failed to build trade risk query: %w", err)
	}

	var total float64
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("failed to sum trade risk: %w", err)
	}
	return total, nil
}

// ============================================================================
// Proposals
// ============================================================================

// SaveProposal persists a ranked proposal under its dedupe key.
func (s *SQLStore) SaveProposal(ctx context.Context, p *models.Proposal, dedupeKey string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	legs, err := json.Marshal(p.Legs)
	if err != nil {
		return fmt.Errorf("failed to marshal legs: %w", err)
	}

	rec := ProposalRecord{
		ID:         p.ID,
		Strategy:   string(p.Strategy),
		Symbol:     p.Symbol,
		Action:     string(p.Action),
		EntryType:  string(p.EntryType),
		Score:      p.Score,
		EntryPrice: p.EntryPrice,
		Qty:        p.Qty,
		MaxLoss:    p.MaxLoss,
		DTE:        p.DTE,
		Legs:       string(legs),
		Rationale:  p.Rationale,
		DedupeKey:  dedupeKey,
		CreatedAt:  p.CreatedAt,
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO proposals (id, strategy, symbol, action, entry_type, score, entry_price, qty,
			max_loss, dte, legs, rationale, dedupe_key, created_at)
		VALUES (:id, :strategy, :symbol, :action, :entry_type, :score, :entry_price, :qty,
			:max_loss, :dte, :legs, :rationale, :dedupe_key, :created_at)`, rec)
	if err != nil {
		return fmt.Errorf("failed to save proposal: %w", err)
	}
	return nil
}

// IsDuplicate reports whether a proposal with dedupeKey was saved after since.
func (s *SQLStore) IsDuplicate(ctx context.Context, dedupeKey string, since time.Time) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(`
		SELECT COUNT(*) FROM proposals WHERE dedupe_key = ? AND created_at > ?`), dedupeKey, since)
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate proposal: %w", err)
	}
	return n > 0, nil
}

// RecentProposals returns the newest proposals first.
func (s *SQLStore) RecentProposals(ctx context.Context, limit int) ([]ProposalRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}

	var out []ProposalRecord
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`
		SELECT id, strategy, symbol, action, entry_type, score, entry_price, qty,
			max_loss, dte, legs, rationale, dedupe_key, created_at
		FROM proposals
		ORDER BY created_at DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query proposals: %w", err)
	}
	return out, nil
}

// ============================================================================
// Signal proposals
// ============================================================================

// SaveSignalProposal inserts p, replacing any row with the same id.
func (s *SQLStore) SaveSignalProposal(ctx context.Context, p *models.SignalProposal) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	longLeg, err := json.Marshal(p.LongLeg)
	if err != nil {
		return fmt.Errorf("failed to marshal long leg: %w", err)
	}
	shortLeg, err := json.Marshal(p.ShortLeg)
	if err != nil {
		return fmt.Errorf("failed to marshal short leg: %w", err)
	}
	filters, err := json.Marshal(p.Filters)
	if err != nil {
		return fmt.Errorf("failed to marshal filters: %w", err)
	}

	rec := SignalProposalRecord{
		ID:              p.ID,
		CreatedAt:       p.CreatedAt,
		Symbol:          p.Symbol,
		Bias:            string(p.Bias),
		DTE:             p.DTE,
		LongLeg:         string(longLeg),
		ShortLeg:        string(shortLeg),
		Width:           p.Width,
		Debit:           p.Debit,
		MaxProfit:       p.MaxProfit,
		RR:              p.RR,
		Filters:         string(filters),
		Status:          p.Status,
		StrategyVersion: p.StrategyVersion,
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO signal_proposals (id, created_at, symbol, bias, dte, long_leg, short_leg,
			width, debit, max_profit, rr, filters, status, strategy_version)
		VALUES (:id, :created_at, :symbol, :bias, :dte, :long_leg, :short_leg,
			:width, :debit, :max_profit, :rr, :filters, :status, :strategy_version)
		ON CONFLICT (id) DO UPDATE SET
			created_at = excluded.created_at, bias = excluded.bias, dte = excluded.dte,
			long_leg = excluded.long_leg, short_leg = excluded.short_leg, width = excluded.width,
			debit = excluded.debit, max_profit = excluded.max_profit, rr = excluded.rr,
			filters = excluded.filters, status = excluded.status,
			strategy_version = excluded.strategy_version`, rec)
	if err != nil {
		return fmt.Errorf("failed to save signal proposal: %w", err)
	}
	return nil
}

// SignalProposal returns the signal proposal with id.
func (s *SQLStore) SignalProposal(ctx context.Context, id string) (*SignalProposalRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rec SignalProposalRecord
	err := s.db.GetContext(ctx, &rec, s.db.Rebind(`
		SELECT id, created_at, symbol, bias, dte, long_leg, short_leg, width, debit,
			max_profit, rr, filters, status, strategy_version
		FROM signal_proposals WHERE id = ?`), id)
	if err != nil {
		return nil, fmt.Errorf("failed to get signal proposal: %w", err)
	}
	return &rec, nil
}
