package search

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"io"

	"golang.org/x/exp/rand"

	"sweep/internal/space"
	"sweep/internal/trial"
)

// Random draws directly from the scope. Each call owns a fresh randomness
// stream derived from (experiment key, seed, call counter), so replaying the
// same sequence reproduces the same trials.
type Random struct {
	key  string
	seed uint64
}

func (r *Random) rng(call uint64) *rand.Rand {
	h := fnv.New64a()
	io.WriteString(h, r.key)
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], r.seed)
	binary.LittleEndian.PutUint64(buf[8:], call)
	h.Write(buf[:])
	return rand.New(rand.NewSource(h.Sum64()))
}

func (r *Random) Propose(scope *space.Scope, _ []trial.Trial, call uint64) (map[string]any, error) {
	return r.sample(scope, call)
}

func (r *Random) sample(scope *space.Scope, call uint64) (map[string]any, error) {
	entries, err := scope.Build()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: scope has no domains", ErrNoProposal)
	}
	values, err := scope.Sample(r.rng(call), nil)
	if err != nil {
		return nil, err
	}
	return values, nil
}
