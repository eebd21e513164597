package search

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"sweep/internal/space"
	"sweep/internal/trial"
)

// modelBias is how far a raw draw is pulled toward the good-subset mean.
const modelBias = 0.5

// Model partitions completed history into "good" and "rest" by an objective
// quantile, fits a per-domain proposal bias from the good subset and perturbs
// Random's raw draw toward it. Below minHistory completed trials it behaves
// exactly like Random (cold start). Pending and failed trials are never
// training signal.
type Model struct {
	random     Random
	direction  trial.Direction
	quantile   float64
	minHistory int
}

func (m *Model) Propose(scope *space.Scope, history []trial.Trial, call uint64) (map[string]any, error) {
	entries, err := scope.Build()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: scope has no domains", ErrNoProposal)
	}

	completed := completedOnly(history)
	rng := m.random.rng(call)
	values, err := scope.Sample(rng, nil)
	if err != nil {
		return nil, err
	}
	if len(completed) < m.minHistory || len(completed) == 0 {
		return values, nil
	}

	good := m.goodSubset(completed)
	for _, e := range entries {
		raw, ok := values[e.Path]
		if !ok {
			// gated off in this draw
			continue
		}
		switch d := e.Domain.(type) {
		case *space.Continuous:
			g := floatsAt(good, e.Path)
			if len(g) == 0 {
				continue
			}
			rf, ok := asFloat(raw)
			if !ok {
				continue
			}
			mean := stat.Mean(g, nil)
			values[e.Path] = d.Clamp(rf + modelBias*(mean-rf))
		case *space.Discrete:
			cands := d.Values()
			// Laplace smoothing keeps unseen candidates reachable.
			weights := make([]float64, len(cands))
			for i := range weights {
				weights[i] = 1
			}
			seen := false
			for _, t := range good {
				v, ok := t.Values[e.Path]
				if !ok {
					continue
				}
				if i := d.Index(v); i >= 0 {
					weights[i]++
					seen = true
				}
			}
			if !seen {
				continue
			}
			cat := distuv.NewCategorical(weights, rng)
			values[e.Path] = cands[int(cat.Rand())]
		}
	}
	return values, nil
}

// goodSubset returns the trials at or beyond the configured objective
// quantile, direction-aware. The empirical quantile is always attained by at
// least one trial, so the result is never empty.
func (m *Model) goodSubset(completed []trial.Trial) []trial.Trial {
	objs := make([]float64, len(completed))
	for i, t := range completed {
		objs[i] = *t.Objective
	}
	sort.Float64s(objs)
	var good []trial.Trial
	if m.direction == trial.Maximize {
		thr := stat.Quantile(1-m.quantile, stat.Empirical, objs, nil)
		for _, t := range completed {
			if *t.Objective >= thr {
				good = append(good, t)
			}
		}
	} else {
		thr := stat.Quantile(m.quantile, stat.Empirical, objs, nil)
		for _, t := range completed {
			if *t.Objective <= thr {
				good = append(good, t)
			}
		}
	}
	return good
}

func completedOnly(history []trial.Trial) []trial.Trial {
	out := make([]trial.Trial, 0, len(history))
	for _, t := range history {
		if t.State == trial.Complete && t.Objective != nil {
			out = append(out, t)
		}
	}
	return out
}

func floatsAt(trials []trial.Trial, path string) []float64 {
	var out []float64
	for _, t := range trials {
		v, ok := t.Values[path]
		if !ok {
			continue
		}
		if f, ok := asFloat(v); ok {
			out = append(out, f)
		}
	}
	return out
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
