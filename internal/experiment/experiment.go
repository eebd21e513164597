// Package experiment is the orchestrator: it owns the create-or-load
// lifecycle of an experiment record, drives the search strategy, and is the
// only writer of trial state transitions.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sweep/internal/search"
	"sweep/internal/space"
	"sweep/internal/store"
	"sweep/internal/trial"
)

// Config selects the experiment identity and search behavior. Seed nil means
// derive one at creation time; the resolved seed is persisted so reloads
// replay the same randomness stream.
type Config struct {
	Key        string
	Direction  string
	Strategy   string
	Seed       *uint64
	Quantile   float64
	MinHistory int
}

// Experiment binds one scope, one store and one strategy under a key. The
// generation counter is derived from stored history, so a reloaded
// experiment continues the stream where the previous process left off.
type Experiment struct {
	Key       string
	Direction trial.Direction
	Scope     *space.Scope
	Store     store.Store

	strategy search.Strategy
	record   store.Experiment

	Now func() time.Time
}

// New creates the experiment record on first use or loads the existing one.
// On reload the persisted direction, strategy and seed win over cfg, and the
// space fingerprint must match the one recorded at creation.
func New(ctx context.Context, st store.Store, scope *space.Scope, cfg Config) (*Experiment, error) {
	if cfg.Key == "" {
		return nil, fmt.Errorf("experiment key is required")
	}
	dir, err := trial.ParseDirection(cfg.Direction)
	if err != nil {
		return nil, err
	}
	fp, err := scope.Fingerprint()
	if err != nil {
		return nil, err
	}

	e := &Experiment{Key: cfg.Key, Scope: scope, Store: st, Now: time.Now}

	rec, err := st.GetExperiment(ctx, cfg.Key)
	if err == nil {
		if rec.Fingerprint != fp {
			return nil, fmt.Errorf("experiment %s: space definition does not match recorded history (fingerprint %s, recorded %s)", cfg.Key, fp, rec.Fingerprint)
		}
	} else {
		if !isNotFound(err) {
			return nil, err
		}
		seed := uint64(time.Now().UnixNano())
		if cfg.Seed != nil {
			seed = *cfg.Seed
		}
		rec = store.Experiment{
			Key:         cfg.Key,
			Direction:   dir,
			Strategy:    strategyName(cfg.Strategy),
			Seed:        seed,
			Fingerprint: fp,
		}
		if err := st.PutExperiment(ctx, rec); err != nil {
			// Lost a create race; the winner's record is authoritative.
			if !isDuplicate(err) {
				return nil, err
			}
			rec, err = st.GetExperiment(ctx, cfg.Key)
			if err != nil {
				return nil, err
			}
			if rec.Fingerprint != fp {
				return nil, fmt.Errorf("experiment %s: space definition does not match recorded history (fingerprint %s, recorded %s)", cfg.Key, fp, rec.Fingerprint)
			}
		}
	}

	e.Direction = rec.Direction
	e.record = rec
	e.strategy, err = search.New(search.Options{
		Strategy:   rec.Strategy,
		Key:        rec.Key,
		Seed:       rec.Seed,
		Direction:  rec.Direction,
		Quantile:   cfg.Quantile,
		MinHistory: cfg.MinHistory,
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Record returns the persisted experiment record.
func (e *Experiment) Record() store.Experiment { return e.record }

func (e *Experiment) now() string {
	return e.Now().UTC().Format(time.RFC3339)
}

// Generate proposes the next assignment and persists it as a pending trial.
// The strategy call counter is the total number of trials ever created for
// the key, which keeps the randomness stream stable across reloads.
func (e *Experiment) Generate(ctx context.Context) (trial.Trial, error) {
	history, err := e.Store.History(ctx, e.Key)
	if err != nil {
		return trial.Trial{}, err
	}
	completed := make([]trial.Trial, 0, len(history))
	for _, t := range history {
		if t.State == trial.Complete {
			completed = append(completed, t)
		}
	}
	values, err := e.strategy.Propose(e.Scope, completed, uint64(len(history)))
	if err != nil {
		return trial.Trial{}, err
	}
	t := trial.Trial{
		ID:            uuid.NewString(),
		ExperimentKey: e.Key,
		Values:        values,
		State:         trial.Pending,
		CreatedAt:     e.now(),
	}
	if _, err := e.Store.PutTrial(ctx, t); err != nil {
		return trial.Trial{}, err
	}
	return t, nil
}

// Complete records an objective for a pending trial. A trial already in a
// terminal state surfaces as store.ErrConflict.
func (e *Experiment) Complete(ctx context.Context, id string, objective float64) error {
	return e.Store.UpdateTrial(ctx, id, trial.Pending, store.Update{
		State:       trial.Complete,
		Objective:   &objective,
		CompletedAt: e.now(),
	})
}

// Fail marks a pending trial failed. Failed trials keep their values for the
// record but never feed the strategy or the optimum.
func (e *Experiment) Fail(ctx context.Context, id, reason string) error {
	return e.Store.UpdateTrial(ctx, id, trial.Pending, store.Update{
		State:       trial.Failed,
		Reason:      reason,
		CompletedAt: e.now(),
	})
}

// Optimum returns the best complete trial under the experiment direction.
func (e *Experiment) Optimum(ctx context.Context) (trial.Trial, error) {
	return e.Store.Optimum(ctx, e.Key, e.Direction)
}

// Trials lists stored trials, optionally filtered by state.
func (e *Experiment) Trials(ctx context.Context, states ...trial.State) ([]trial.Trial, error) {
	return e.Store.History(ctx, e.Key, states...)
}

func strategyName(s string) string {
	if s == "" {
		return search.StrategyRandom
	}
	return s
}

func isNotFound(err error) bool  { return errors.Is(err, store.ErrNotFound) }
func isDuplicate(err error) bool { return errors.Is(err, store.ErrDuplicate) }
