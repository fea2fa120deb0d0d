package engine

import (
	"context"
	"time"

	"options-engine/internal/analytics"
	apperrors "options-engine/internal/errors"
	"options-engine/internal/models"
)

// DefaultDedupeWindow is how long a saved structure suppresses repeats.
const DefaultDedupeWindow = 24 * time.Hour

// ProposalStore is the slice of the store used to persist proposals.
type ProposalStore interface {
	SaveProposal(ctx context.Context, p *models.Proposal, dedupeKey string) error
	IsDuplicate(ctx context.Context, dedupeKey string, since time.Time) (bool, error)
}

// Persist saves proposals whose structure was not already saved inside
// window and returns the newly saved ones in rank order.
func Persist(ctx context.Context, st ProposalStore, proposals []models.Proposal, window time.Duration, now time.Time) ([]models.Proposal, error) {
	if window <= 0 {
		window = DefaultDedupeWindow
	}
	since := now.UTC().Add(-window)

	var saved []models.Proposal
	seen := make(map[string]struct{}, len(proposals))
	for i := range proposals {
		p := &proposals[i]
		key := analytics.DedupeKey(p)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		dup, err := st.IsDuplicate(ctx, key, since)
		if err != nil {
			return saved, apperrors.NewStoreError("dedupe", err)
		}
		if dup {
			continue
		}
		if err := st.SaveProposal(ctx, p, key); err != nil {
			return saved, apperrors.NewStoreError("save proposal", err)
		}
		saved = append(saved, *p)
	}
	return saved, nil
}
