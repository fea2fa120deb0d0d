package scoring

import (
	"math"
	"sort"
)

// Compose returns round(Σ score·weight / Σ weight) over the named factors,
// or 0 when the total weight is zero. Factors without a weight count as 0.
func Compose(scores, weights map[string]float64) int {
	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)

	w := NewWeighted()
	for _, name := range names {
		w.Add(name, scores[name], weights[name])
	}
	return w.Compute()
}

type factor struct {
	name   string
	score  float64
	weight float64
}

// Weighted accumulates named factor scores so a module can include factors
// conditionally and still renormalize by the total weight.
type Weighted struct {
	factors []factor
}

// NewWeighted creates an empty composition.
func NewWeighted() *Weighted {
	return &Weighted{}
}

// Add records a factor. Adding a name twice replaces the earlier entry.
func (w *Weighted) Add(name string, score, weight float64) *Weighted {
	for i := range w.factors {
		if w.factors[i].name == name {
			w.factors[i] = factor{name: name, score: score, weight: weight}
			return w
		}
	}
	w.factors = append(w.factors, factor{name: name, score: score, weight: weight})
	return w
}

// AddIf records a factor only when cond holds.
func (w *Weighted) AddIf(cond bool, name string, score, weight float64) *Weighted {
	if cond {
		w.Add(name, score, weight)
	}
	return w
}

// Compute returns the rounded weighted average.
func (w *Weighted) Compute() int {
	var total, sum float64
	for _, f := range w.factors {
		total += f.weight
		sum += f.score * f.weight
	}
	if total == 0 {
		return 0
	}
	return int(math.Round(sum / total))
}

// Breakdown returns the factor scores keyed by name, for proposal metadata.
func (w *Weighted) Breakdown() map[string]float64 {
	out := make(map[string]float64, len(w.factors))
	for _, f := range w.factors {
		out[f.name] = math.Round(f.score)
	}
	return out
}
