// Package store defines the result-store contract the orchestrator relies
// on. Trial claim/finalize atomicity lives behind this contract: UpdateTrial
// has compare-and-set semantics so that two workers racing to finalize the
// same trial cannot corrupt state, and callers can tell "lost the race"
// (ErrConflict) apart from "no such trial" (ErrNotFound).
package store

import (
	"context"
	"errors"

	"sweep/internal/trial"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("state conflict")
	ErrDuplicate = errors.New("duplicate id")
)

// Update carries the fields applied together with a trial state transition.
type Update struct {
	State       trial.State
	Objective   *float64
	Reason      string
	CompletedAt string
}

// Experiment is the persisted record for one experiment key. The space
// fingerprint lets a reload verify the definition still matches recorded
// history; the resolved seed makes the randomness stream reproducible across
// reloads.
type Experiment struct {
	Key         string          `json:"key"`
	Direction   trial.Direction `json:"direction" enum:"minimize,maximize"`
	Strategy    string          `json:"strategy"`
	Seed        uint64          `json:"seed"`
	Fingerprint string          `json:"fingerprint"`
	CreatedAt   string          `json:"created_at" format:"date-time"`
}

type Store interface {
	// PutExperiment atomically creates the experiment record; ErrDuplicate
	// if the key already exists.
	PutExperiment(ctx context.Context, exp Experiment) error
	GetExperiment(ctx context.Context, key string) (Experiment, error)

	// PutTrial atomically creates a trial; ErrDuplicate on id collision.
	PutTrial(ctx context.Context, t trial.Trial) (string, error)
	GetTrial(ctx context.Context, id string) (trial.Trial, error)

	// History returns the experiment's trials in the given states (all
	// states when none given), ordered by completion-then-creation
	// timestamp ascending.
	History(ctx context.Context, key string, states ...trial.State) ([]trial.Trial, error)

	// UpdateTrial transitions a trial only if its current state equals
	// expect: ErrConflict on a state mismatch, ErrNotFound on unknown id.
	UpdateTrial(ctx context.Context, id string, expect trial.State, upd Update) error

	// Optimum returns the best complete trial under dir, ties broken by
	// earliest completion; ErrNotFound when no complete trial exists.
	Optimum(ctx context.Context, key string, dir trial.Direction) (trial.Trial, error)
}
