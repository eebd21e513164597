package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"sweep/internal/trial"
)

// Memory is a mutex-guarded in-memory store for tests and single-process
// runs. It honors the same compare-and-set contract as the SQLite store.
type Memory struct {
	mu          sync.Mutex
	experiments map[string]Experiment
	trials      map[string]trial.Trial
	Now         func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		experiments: make(map[string]Experiment),
		trials:      make(map[string]trial.Trial),
		Now:         time.Now,
	}
}

func (m *Memory) PutExperiment(_ context.Context, exp Experiment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.experiments[exp.Key]; ok {
		return fmt.Errorf("experiment %s: %w", exp.Key, ErrDuplicate)
	}
	if exp.CreatedAt == "" {
		exp.CreatedAt = m.Now().UTC().Format(time.RFC3339)
	}
	m.experiments[exp.Key] = exp
	return nil
}

func (m *Memory) GetExperiment(_ context.Context, key string) (Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.experiments[key]
	if !ok {
		return Experiment{}, fmt.Errorf("experiment %s: %w", key, ErrNotFound)
	}
	return exp, nil
}

func (m *Memory) PutTrial(_ context.Context, t trial.Trial) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trials[t.ID]; ok {
		return "", fmt.Errorf("trial %s: %w", t.ID, ErrDuplicate)
	}
	m.trials[t.ID] = copyTrial(t)
	return t.ID, nil
}

func (m *Memory) GetTrial(_ context.Context, id string) (trial.Trial, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trials[id]
	if !ok {
		return trial.Trial{}, fmt.Errorf("trial %s: %w", id, ErrNotFound)
	}
	return copyTrial(t), nil
}

func (m *Memory) History(_ context.Context, key string, states ...trial.State) ([]trial.Trial, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[trial.State]bool, len(states))
	for _, s := range states {
		want[s] = true
	}
	var out []trial.Trial
	for _, t := range m.trials {
		if t.ExperimentKey != key {
			continue
		}
		if len(want) > 0 && !want[t.State] {
			continue
		}
		out = append(out, copyTrial(t))
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := orderKey(out[i]), orderKey(out[j])
		if ti != tj {
			return ti < tj
		}
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func orderKey(t trial.Trial) string {
	if t.CompletedAt != "" {
		return t.CompletedAt
	}
	return t.CreatedAt
}

func (m *Memory) UpdateTrial(_ context.Context, id string, expect trial.State, upd Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trials[id]
	if !ok {
		return fmt.Errorf("trial %s: %w", id, ErrNotFound)
	}
	if t.State != expect {
		return fmt.Errorf("trial %s is %s, expected %s: %w", id, t.State, expect, ErrConflict)
	}
	t.State = upd.State
	t.Objective = upd.Objective
	t.Reason = upd.Reason
	t.CompletedAt = upd.CompletedAt
	m.trials[id] = t
	return nil
}

func (m *Memory) Optimum(ctx context.Context, key string, dir trial.Direction) (trial.Trial, error) {
	completed, err := m.History(ctx, key, trial.Complete)
	if err != nil {
		return trial.Trial{}, err
	}
	if len(completed) == 0 {
		return trial.Trial{}, fmt.Errorf("experiment %s has no complete trials: %w", key, ErrNotFound)
	}
	best := completed[0]
	for _, t := range completed[1:] {
		if trial.Better(t, best, dir) {
			best = t
		}
	}
	return best, nil
}

func copyTrial(t trial.Trial) trial.Trial {
	if t.Values != nil {
		values := make(map[string]any, len(t.Values))
		for k, v := range t.Values {
			values[k] = v
		}
		t.Values = values
	}
	if t.Objective != nil {
		obj := *t.Objective
		t.Objective = &obj
	}
	return t
}
