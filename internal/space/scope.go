package space

import (
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"strings"

	"golang.org/x/exp/rand"
)

// ErrScope reports a structural conflict in a search space tree.
var ErrScope = errors.New("invalid scope")

// Predicate gates a conditional domain on a value sampled earlier in the
// same traversal.
type Predicate func(value any) bool

// Eq returns a predicate satisfied when the gating value equals want.
// Numeric types are compared by value, so Eq(3) matches a YAML-decoded 3.0.
func Eq(want any) Predicate {
	return func(v any) bool { return equalValue(v, want) }
}

// Condition marks that the domain at Path is only sampled when the value
// already produced for On satisfies When. Paths are relative to the scope
// the condition was declared on.
type Condition struct {
	Path string
	On   string
	When Predicate
}

type scopeEntry struct {
	name  string
	dom   Domain
	child *Scope
}

// Scope is a named ordered container composing domains and nested scopes
// into a strict tree. Entry order is insertion order and is the traversal
// contract every other component relies on.
type Scope struct {
	entries []scopeEntry
	conds   []Condition
}

func New() *Scope { return &Scope{} }

func (s *Scope) checkName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty parameter name", ErrScope)
	}
	if strings.Contains(name, ".") {
		return fmt.Errorf("%w: parameter name %q must not contain '.'", ErrScope, name)
	}
	for _, e := range s.entries {
		if e.name == name {
			return fmt.Errorf("%w: duplicate parameter name %q", ErrScope, name)
		}
	}
	return nil
}

// Add registers a domain under name. Duplicate names within the same
// nesting level are rejected.
func (s *Scope) Add(name string, d Domain) error {
	if err := s.checkName(name); err != nil {
		return err
	}
	if d == nil {
		return fmt.Errorf("%w: nil domain for %q", ErrScope, name)
	}
	s.entries = append(s.entries, scopeEntry{name: name, dom: d})
	return nil
}

// AddScope nests a child scope under name.
func (s *Scope) AddScope(name string, child *Scope) error {
	if err := s.checkName(name); err != nil {
		return err
	}
	if child == nil {
		return fmt.Errorf("%w: nil scope for %q", ErrScope, name)
	}
	s.entries = append(s.entries, scopeEntry{name: name, child: child})
	return nil
}

// When records a conditional edge: the domain at path is sampled only if
// pred holds on the value produced for on. Both paths are relative to this
// scope and are validated by Build.
func (s *Scope) When(path, on string, pred Predicate) {
	s.conds = append(s.conds, Condition{Path: path, On: on, When: pred})
}

// Entry is one leaf of the flattened tree.
type Entry struct {
	Path   string
	Domain Domain
}

// Build flattens the tree depth-first in insertion order into (dotted path,
// domain) pairs and validates conditional edges. The returned order is
// stable across calls as long as the scope is not mutated.
func (s *Scope) Build() ([]Entry, error) {
	entries, conds, err := s.flatten("")
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(entries))
	for i, e := range entries {
		index[e.Path] = i
	}
	for _, c := range conds {
		ci, ok := index[c.Path]
		if !ok {
			return nil, fmt.Errorf("%w: condition on unknown parameter %q", ErrScope, c.Path)
		}
		oi, ok := index[c.On]
		if !ok {
			return nil, fmt.Errorf("%w: condition for %q references unknown parameter %q", ErrScope, c.Path, c.On)
		}
		if oi >= ci {
			return nil, fmt.Errorf("%w: condition for %q must reference an earlier parameter, %q comes after", ErrScope, c.Path, c.On)
		}
	}
	return entries, nil
}

func (s *Scope) flatten(prefix string) ([]Entry, []Condition, error) {
	var entries []Entry
	var conds []Condition
	for _, e := range s.entries {
		path := e.name
		if prefix != "" {
			path = prefix + "." + e.name
		}
		if e.child != nil {
			sub, subConds, err := e.child.flatten(path)
			if err != nil {
				return nil, nil, err
			}
			entries = append(entries, sub...)
			conds = append(conds, subConds...)
			continue
		}
		entries = append(entries, Entry{Path: path, Domain: e.dom})
	}
	for _, c := range s.conds {
		if prefix != "" {
			c = Condition{Path: prefix + "." + c.Path, On: prefix + "." + c.On, When: c.When}
		}
		conds = append(conds, c)
	}
	return entries, conds, nil
}

// Sample draws one assignment, walking the flattened tree in order and
// applying conditional edges against values already produced in the same
// traversal. A domain whose predicate is unmet (or whose gating value was
// itself omitted) contributes no key. Values in prior are treated as
// already sampled.
func (s *Scope) Sample(rng *rand.Rand, prior map[string]any) (map[string]any, error) {
	entries, conds, err := s.flatten("")
	if err != nil {
		return nil, err
	}
	gates := make(map[string][]Condition)
	for _, c := range conds {
		gates[c.Path] = append(gates[c.Path], c)
	}
	values := make(map[string]any, len(entries))
	for k, v := range prior {
		values[k] = v
	}
	for _, e := range entries {
		if _, done := values[e.Path]; done {
			continue
		}
		gated := false
		for _, c := range gates[e.Path] {
			on, ok := values[c.On]
			if !ok || !c.When(on) {
				gated = true
				break
			}
		}
		if gated {
			continue
		}
		v, err := e.Domain.Sample(rng)
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", e.Path, err)
		}
		values[e.Path] = v
	}
	return values, nil
}

// Fingerprint returns a stable hash of the flattened structure, including
// conditional edges. Two structurally identical scopes produce the same
// fingerprint; it is persisted per experiment so reloads can verify the
// space definition still matches recorded history.
func (s *Scope) Fingerprint() (string, error) {
	entries, conds, err := s.flatten("")
	if err != nil {
		return "", err
	}
	h := fnv.New64a()
	for _, e := range entries {
		io.WriteString(h, e.Path)
		io.WriteString(h, "=")
		io.WriteString(h, e.Domain.String())
		io.WriteString(h, ";")
	}
	for _, c := range conds {
		io.WriteString(h, c.Path)
		io.WriteString(h, "<-")
		io.WriteString(h, c.On)
		io.WriteString(h, ";")
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}
