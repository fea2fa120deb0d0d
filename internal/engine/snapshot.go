package engine

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"options-engine/internal/analytics"
	apperrors "options-engine/internal/errors"
	"options-engine/internal/models"
)

// Snapshot is one symbol's market state as captured by the ingestion side.
// Histories are newest first.
type Snapshot struct {
	Symbol       string               `yaml:"symbol" json:"symbol"`
	Spot         float64              `yaml:"spot" json:"spot"`
	AsOf         string               `yaml:"as_of,omitempty" json:"as_of,omitempty"` // YYYY-MM-DD
	EarningsDate string               `yaml:"earnings_date,omitempty" json:"earnings_date,omitempty"`
	Trend        models.Trend         `yaml:"trend,omitempty" json:"trend,omitempty"`
	IVHistory    []float64            `yaml:"iv_history,omitempty" json:"iv_history,omitempty"`
	Closes       []float64            `yaml:"closes,omitempty" json:"closes,omitempty"`
	Quotes       []models.OptionQuote `yaml:"quotes" json:"quotes"`
}

type snapshotFile struct {
	Snapshots []Snapshot `yaml:"snapshots"`
}

// LoadSnapshots reads a YAML or JSON snapshot file. The file holds either a
// "snapshots" list or a single snapshot.
func LoadSnapshots(path string) ([]Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot file: %w", err)
	}
	return ParseSnapshots(data)
}

// ParseSnapshots decodes snapshot data.
func ParseSnapshots(data []byte) ([]Snapshot, error) {
	var file snapshotFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidSnapshot, err)
	}
	if len(file.Snapshots) == 0 {
		var single Snapshot
		if err := yaml.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidSnapshot, err)
		}
		if single.Symbol == "" {
			return nil, fmt.Errorf("%w: no snapshots", apperrors.ErrInvalidSnapshot)
		}
		file.Snapshots = []Snapshot{single}
	}

	for i := range file.Snapshots {
		s := &file.Snapshots[i]
		s.Symbol = strings.ToUpper(strings.TrimSpace(s.Symbol))
		if s.Symbol == "" {
			return nil, fmt.Errorf("%w: snapshot %d has no symbol", apperrors.ErrInvalidSnapshot, i)
		}
		if s.Trend != "" && !s.Trend.Valid() {
			return nil, fmt.Errorf("%w: %s trend %q", apperrors.ErrInvalidSnapshot, s.Symbol, s.Trend)
		}
		for j := range s.Quotes {
			if s.Quotes[j].Symbol == "" {
				s.Quotes[j].Symbol = s.Symbol
			}
		}
	}
	return file.Snapshots, nil
}

// BuildInput turns a snapshot into a strategy input. Missing deltas are
// filled from implied volatility; trend comes from the close history unless
// the snapshot pins it.
func BuildInput(s Snapshot, equity float64, now time.Time) (*models.StrategyInput, error) {
	if len(s.Quotes) == 0 {
		return nil, fmt.Errorf("%s: %w", s.Symbol, apperrors.ErrNoData)
	}

	today := now.UTC().Truncate(24 * time.Hour)
	if s.AsOf != "" {
		t, err := time.Parse(models.ExpiryLayout, s.AsOf)
		if err != nil {
			return nil, fmt.Errorf("%w: %s as_of %q", apperrors.ErrInvalidSnapshot, s.Symbol, s.AsOf)
		}
		today = t
	}

	chain := analytics.FillMissingDeltas(models.NewOptionChain(s.Symbol, s.Quotes), s.Spot, today)

	in := &models.StrategyInput{
		Symbol:       s.Symbol,
		Chain:        chain,
		Spot:         s.Spot,
		IVRank:       analytics.IVRank(s.IVHistory),
		Trend:        s.Trend,
		EarningsDate: s.EarningsDate,
		Today:        today,
		Equity:       equity,
		TermSkew:     analytics.TermSkew(chain, today),
	}

	if in.Trend == "" {
		oldestFirst := make([]float64, len(s.Closes))
		for i, c := range s.Closes {
			oldestFirst[len(s.Closes)-1-i] = c
		}
		in.Trend = analytics.DetectTrend(oldestFirst)
	}

	if rv20, err := analytics.RV20(s.Closes); err == nil {
		m := analytics.IVRV(chain, rv20)
		in.IVRV = &m
	}

	return in, nil
}

// SnapshotSource serves inputs from loaded snapshots.
type SnapshotSource struct {
	snaps  map[string]Snapshot
	equity float64
	now    func() time.Time
}

// NewSnapshotSource indexes snaps by symbol. Later snapshots for the same
// symbol replace earlier ones.
func NewSnapshotSource(snaps []Snapshot, equity float64) *SnapshotSource {
	s := &SnapshotSource{snaps: make(map[string]Snapshot, len(snaps)), equity: equity, now: time.Now}
	for _, snap := range snaps {
		s.snaps[snap.Symbol] = snap
	}
	return s
}

// Symbols returns the symbols with a snapshot, sorted.
func (s *SnapshotSource) Symbols() []string {
	out := make([]string, 0, len(s.snaps))
	for sym := range s.snaps {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Input builds the input for symbol.
func (s *SnapshotSource) Input(ctx context.Context, symbol string) (*models.StrategyInput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap, ok := s.snaps[strings.ToUpper(symbol)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, apperrors.ErrNoData)
	}
	return BuildInput(snap, s.equity, s.now())
}
