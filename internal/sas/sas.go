// Package sas builds debit-vertical proposals from precomputed skew
// signals. It runs independently of the strategy registry.
package sas

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"options-engine/internal/logging"
	"options-engine/internal/models"
	"options-engine/internal/notify"
)

// Version tags every proposal built here.
const Version = "sas@1.0.0"

// Entry filters.
const (
	MaxSkewZ      = -2.0
	MinIVRVSpread = 0.25
)

// Placeholder structure until strikes come from a live chain.
const (
	placeholderDTE   = 45
	placeholderWidth = 20.0
	placeholderDebit = 7.0
)

// ErrRejected marks a signal that failed a filter.
var ErrRejected = errors.New("signal rejected")

// RejectError carries the reason a signal was rejected.
type RejectError struct {
	Symbol string
	Reason string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("%s: %s", e.Symbol, e.Reason)
}

func (e *RejectError) Unwrap() error {
	return ErrRejected
}

// Build applies the filters to sig and returns the proposal it produces.
func Build(sig models.Signal, now time.Time) (*models.SignalProposal, error) {
	if sig.SkewZ > MaxSkewZ {
		return nil, &RejectError{Symbol: sig.Symbol, Reason: fmt.Sprintf("skew_z %g > %g", sig.SkewZ, MaxSkewZ)}
	}
	if sig.IVRVSpread < MinIVRVSpread {
		return nil, &RejectError{Symbol: sig.Symbol, Reason: fmt.Sprintf("iv_rv_spread %g < %g", sig.IVRVSpread, MinIVRVSpread)}
	}

	var bias models.Bias
	switch {
	case sig.Momentum > 0:
		bias = models.BiasBullish
	case sig.Momentum < 0:
		bias = models.BiasBearish
	default:
		return nil, &RejectError{Symbol: sig.Symbol, Reason: "no clear momentum bias"}
	}

	asOf := now.UTC()
	if sig.AsOf != "" {
		t, err := time.Parse(time.RFC3339, sig.AsOf)
		if err != nil {
			return nil, fmt.Errorf("parsing asof %q: %w", sig.AsOf, err)
		}
		asOf = t.UTC()
	}
	exp := asOf.AddDate(0, 0, placeholderDTE).Format(models.ExpiryLayout)

	right := "C"
	if bias == models.BiasBearish {
		right = "P"
	}

	maxProfit := placeholderWidth - placeholderDebit
	return &models.SignalProposal{
		ID:        ProposalID(sig.Symbol, sig.AsOf, asOf),
		CreatedAt: now.UTC(),
		Symbol:    sig.Symbol,
		Bias:      bias,
		DTE:       placeholderDTE,
		LongLeg:   models.SignalLeg{Type: right, Strike: "ATM50Δ", Delta: 0.5, Expiry: exp},
		ShortLeg:  models.SignalLeg{Type: right, Strike: "OTM20Δ", Delta: 0.2, Expiry: exp},
		Width:     placeholderWidth,
		Debit:     placeholderDebit,
		MaxProfit: maxProfit,
		RR:        maxProfit / placeholderDebit,
		Filters: models.SignalFilters{
			SkewZ:      sig.SkewZ,
			IVRVSpread: sig.IVRVSpread,
			Momentum:   sig.Momentum,
		},
		Status:          "pending",
		StrategyVersion: Version,
	}, nil
}

// ProposalID is prop_SYMBOL_ASOF with ':' and '.' in the timestamp replaced
// by '_'. An empty asof falls back to the unix time of at.
func ProposalID(symbol, asOf string, at time.Time) string {
	ts := asOf
	if ts == "" {
		ts = fmt.Sprintf("%d", at.Unix())
	}
	ts = strings.NewReplacer(":", "_", ".", "_").Replace(ts)
	return fmt.Sprintf("prop_%s_%s", symbol, ts)
}

// Alert renders the operator notification for p.
func Alert(p *models.SignalProposal) notify.Notification {
	return notify.Notification{
		Type:  notify.NotificationProposal,
		Title: fmt.Sprintf("SAS Proposal: %s (%s)", p.Symbol, p.Bias),
		Message: fmt.Sprintf("Skew Z: %.2f | IV-RV: +%.0f%% | DTE: %d\nDebit: $%.2f | RR: %.2f | Max P/L: $%.2f\n\nID: %s",
			p.Filters.SkewZ, p.Filters.IVRVSpread*100, p.DTE, p.Debit, p.RR, p.MaxProfit, p.ID),
		Data: map[string]interface{}{
			"id":      p.ID,
			"symbol":  p.Symbol,
			"bias":    string(p.Bias),
			"version": p.StrategyVersion,
		},
	}
}

// Store persists signal proposals. Saving an existing id replaces it.
type Store interface {
	SaveSignalProposal(ctx context.Context, p *models.SignalProposal) error
}

// Processor builds, saves and announces signal proposals.
type Processor struct {
	store    Store
	notifier notify.Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

// NewProcessor creates a Processor. A nil notifier sends nothing.
func NewProcessor(store Store, notifier notify.Notifier, logger zerolog.Logger) *Processor {
	if notifier == nil {
		notifier = notify.NewNoOpNotifier()
	}
	return &Processor{store: store, notifier: notifier, logger: logger, now: time.Now}
}

// Process builds a proposal from sig. A rejected signal returns (nil, nil).
// Notification failures are logged and do not fail the call.
func (p *Processor) Process(ctx context.Context, sig models.Signal) (*models.SignalProposal, error) {
	logger := logging.WithSymbol(p.logger, sig.Symbol)

	prop, err := Build(sig, p.now())
	if errors.Is(err, ErrRejected) {
		logger.Info().Str("reason", err.Error()).Msg("signal rejected")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if p.store != nil {
		if err := p.store.SaveSignalProposal(ctx, prop); err != nil {
			return nil, fmt.Errorf("saving signal proposal: %w", err)
		}
	}
	if err := p.notifier.Send(ctx, Alert(prop)); err != nil {
		logger.Warn().Err(err).Str("proposal_id", prop.ID).Msg("failed to send proposal alert")
	}

	logger.Info().
		Str("proposal_id", prop.ID).
		Str("bias", string(prop.Bias)).
		Msg("signal proposal created")
	return prop, nil
}
