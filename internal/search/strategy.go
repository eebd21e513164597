// Package search holds the pluggable trial-generation strategies. A strategy
// proposes the next assignment for a scope given the completed history; it
// never talks to the store directly and never blocks on I/O.
package search

import (
	"errors"
	"fmt"

	"sweep/internal/space"
	"sweep/internal/trial"
)

// ErrNoProposal reports that a strategy cannot produce an assignment, e.g.
// for a degenerate empty scope. It is fatal for the generate call that hit
// it, not retried.
var ErrNoProposal = errors.New("cannot propose")

// Strategy proposes the next assignment. history contains completed trials
// only; call is the 0-based generation counter for the experiment, used to
// derive per-call randomness.
type Strategy interface {
	Propose(scope *space.Scope, history []trial.Trial, call uint64) (map[string]any, error)
}

const (
	StrategyRandom = "random"
	StrategyModel  = "model"
)

// Options selects and parameterizes a strategy. Key and Seed feed the
// deterministic per-call randomness stream; Quantile, MinHistory and
// Direction apply to the model strategy only.
type Options struct {
	Strategy   string
	Key        string
	Seed       uint64
	Direction  trial.Direction
	Quantile   float64
	MinHistory int
}

// New builds the configured strategy. The strategy set is closed; unknown
// names are rejected.
func New(opts Options) (Strategy, error) {
	switch opts.Strategy {
	case "", StrategyRandom:
		return &Random{key: opts.Key, seed: opts.Seed}, nil
	case StrategyModel:
		if opts.Quantile <= 0 || opts.Quantile >= 1 {
			return nil, fmt.Errorf("model strategy: quantile must be in (0,1), got %v", opts.Quantile)
		}
		if opts.MinHistory < 0 {
			return nil, fmt.Errorf("model strategy: min_history must be >= 0, got %d", opts.MinHistory)
		}
		dir, err := trial.ParseDirection(string(opts.Direction))
		if err != nil {
			return nil, fmt.Errorf("model strategy: %w", err)
		}
		return &Model{
			random:     Random{key: opts.Key, seed: opts.Seed},
			direction:  dir,
			quantile:   opts.Quantile,
			minHistory: opts.MinHistory,
		}, nil
	}
	return nil, fmt.Errorf("unknown search strategy %q", opts.Strategy)
}
