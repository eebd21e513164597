package space

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrDomain reports a malformed domain definition. It is raised at
// construction time; a domain that constructs successfully does not fail
// validation later during sampling.
var ErrDomain = errors.New("invalid domain")

type Kind string

const (
	KindConstant   Kind = "constant"
	KindDiscrete   Kind = "discrete"
	KindContinuous Kind = "continuous"
	KindSequence   Kind = "sequence"
)

// Domain is one atomic sampleable unit of a search space. A domain has no
// identity of its own; its identity is the dotted path assigned by the scope
// that owns it.
type Domain interface {
	Kind() Kind
	// Sample draws one value. Constant domains consume no randomness;
	// discrete and continuous domains consume at least one draw, sequence
	// domains consume one per element in index order.
	Sample(rng *rand.Rand) (any, error)
	// String renders a canonical description used for space fingerprints.
	String() string
}

// Constant always produces the same value.
type Constant struct {
	value any
}

func NewConstant(v any) *Constant { return &Constant{value: v} }

func (c *Constant) Kind() Kind                    { return KindConstant }
func (c *Constant) Value() any                    { return c.value }
func (c *Constant) Sample(*rand.Rand) (any, error) { return c.value, nil }
func (c *Constant) String() string                { return fmt.Sprintf("constant(%v)", c.value) }

// Discrete selects uniformly from a finite ordered candidate set. Candidates
// may be heterogeneous and need not be unique.
type Discrete struct {
	values []any
}

func NewDiscrete(values ...any) (*Discrete, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: discrete domain needs at least one candidate", ErrDomain)
	}
	return &Discrete{values: append([]any(nil), values...)}, nil
}

func (d *Discrete) Kind() Kind { return KindDiscrete }

// Values returns the candidate set in definition order.
func (d *Discrete) Values() []any { return append([]any(nil), d.values...) }

// Index returns the position of v in the candidate set, or -1.
func (d *Discrete) Index(v any) int {
	for i, cand := range d.values {
		if equalValue(cand, v) {
			return i
		}
	}
	return -1
}

func (d *Discrete) Sample(rng *rand.Rand) (any, error) {
	return d.values[rng.Intn(len(d.values))], nil
}

func (d *Discrete) String() string {
	parts := make([]string, len(d.values))
	for i, v := range d.values {
		parts[i] = fmt.Sprintf("%v", v)
	}
	return "discrete(" + strings.Join(parts, ",") + ")"
}

// Continuous draws real values from a named distribution family. The
// probability math is delegated to gonum's distuv; this type only validates
// the family name and its parameters.
type Continuous struct {
	family string
	args   []float64
	lo, hi float64
	draw   func(rng *rand.Rand) float64
}

type familySpec struct {
	arity int
	check func(args []float64) error
	make  func(args []float64) (draw func(rng *rand.Rand) float64, lo, hi float64)
}

var families = map[string]familySpec{
	"uniform": {
		arity: 2,
		check: func(a []float64) error {
			if a[0] >= a[1] {
				return fmt.Errorf("low %v must be less than high %v", a[0], a[1])
			}
			return nil
		},
		make: func(a []float64) (func(rng *rand.Rand) float64, float64, float64) {
			return func(rng *rand.Rand) float64 {
				return distuv.Uniform{Min: a[0], Max: a[1], Src: rng}.Rand()
			}, a[0], a[1]
		},
	},
	"loguniform": {
		arity: 2,
		check: func(a []float64) error {
			if a[0] <= 0 || a[0] >= a[1] {
				return fmt.Errorf("bounds must satisfy 0 < low < high, got (%v, %v)", a[0], a[1])
			}
			return nil
		},
		make: func(a []float64) (func(rng *rand.Rand) float64, float64, float64) {
			lo, hi := math.Log(a[0]), math.Log(a[1])
			return func(rng *rand.Rand) float64 {
				return math.Exp(distuv.Uniform{Min: lo, Max: hi, Src: rng}.Rand())
			}, a[0], a[1]
		},
	},
	"normal": {
		arity: 2,
		check: func(a []float64) error { return positive("sigma", a[1]) },
		make: func(a []float64) (func(rng *rand.Rand) float64, float64, float64) {
			return func(rng *rand.Rand) float64 {
				return distuv.Normal{Mu: a[0], Sigma: a[1], Src: rng}.Rand()
			}, math.Inf(-1), math.Inf(1)
		},
	},
	"lognormal": {
		arity: 2,
		check: func(a []float64) error { return positive("sigma", a[1]) },
		make: func(a []float64) (func(rng *rand.Rand) float64, float64, float64) {
			return func(rng *rand.Rand) float64 {
				return distuv.LogNormal{Mu: a[0], Sigma: a[1], Src: rng}.Rand()
			}, 0, math.Inf(1)
		},
	},
	"exponential": {
		arity: 1,
		check: func(a []float64) error { return positive("rate", a[0]) },
		make: func(a []float64) (func(rng *rand.Rand) float64, float64, float64) {
			return func(rng *rand.Rand) float64 {
				return distuv.Exponential{Rate: a[0], Src: rng}.Rand()
			}, 0, math.Inf(1)
		},
	},
	"gamma": {
		arity: 2,
		check: func(a []float64) error {
			if err := positive("alpha", a[0]); err != nil {
				return err
			}
			return positive("beta", a[1])
		},
		make: func(a []float64) (func(rng *rand.Rand) float64, float64, float64) {
			return func(rng *rand.Rand) float64 {
				return distuv.Gamma{Alpha: a[0], Beta: a[1], Src: rng}.Rand()
			}, 0, math.Inf(1)
		},
	},
	"beta": {
		arity: 2,
		check: func(a []float64) error {
			if err := positive("alpha", a[0]); err != nil {
				return err
			}
			return positive("beta", a[1])
		},
		make: func(a []float64) (func(rng *rand.Rand) float64, float64, float64) {
			return func(rng *rand.Rand) float64 {
				return distuv.Beta{Alpha: a[0], Beta: a[1], Src: rng}.Rand()
			}, 0, 1
		},
	},
}

func positive(name string, v float64) error {
	if v <= 0 {
		return fmt.Errorf("%s must be positive, got %v", name, v)
	}
	return nil
}

// NewContinuous builds a continuous domain from a distribution family name
// and its positional parameters. Unknown families and malformed parameters
// are rejected here, never silently substituted.
func NewContinuous(family string, args ...float64) (*Continuous, error) {
	spec, ok := families[family]
	if !ok {
		return nil, fmt.Errorf("%w: unknown distribution family %q", ErrDomain, family)
	}
	if len(args) != spec.arity {
		return nil, fmt.Errorf("%w: family %q takes %d parameters, got %d", ErrDomain, family, spec.arity, len(args))
	}
	if err := spec.check(args); err != nil {
		return nil, fmt.Errorf("%w: family %q: %v", ErrDomain, family, err)
	}
	args = append([]float64(nil), args...)
	draw, lo, hi := spec.make(args)
	return &Continuous{family: family, args: args, lo: lo, hi: hi, draw: draw}, nil
}

func (c *Continuous) Kind() Kind        { return KindContinuous }
func (c *Continuous) Family() string    { return c.family }
func (c *Continuous) Args() []float64   { return append([]float64(nil), c.args...) }

// Support returns the interval values are drawn from. Unbounded sides are
// reported as ±Inf.
func (c *Continuous) Support() (lo, hi float64) { return c.lo, c.hi }

// Clamp bounds v to the domain's support.
func (c *Continuous) Clamp(v float64) float64 {
	return math.Min(c.hi, math.Max(c.lo, v))
}

func (c *Continuous) Sample(rng *rand.Rand) (any, error) {
	return c.draw(rng), nil
}

func (c *Continuous) String() string {
	parts := make([]string, len(c.args))
	for i, a := range c.args {
		parts[i] = fmt.Sprintf("%v", a)
	}
	return c.family + "(" + strings.Join(parts, ",") + ")"
}

// Sequence samples each element in index order and returns the results as an
// ordered []any.
type Sequence struct {
	elems []Domain
}

func NewSequence(elems ...Domain) (*Sequence, error) {
	if len(elems) == 0 {
		return nil, fmt.Errorf("%w: sequence domain needs at least one element", ErrDomain)
	}
	for i, e := range elems {
		if e == nil {
			return nil, fmt.Errorf("%w: sequence element %d is nil", ErrDomain, i)
		}
	}
	return &Sequence{elems: append([]Domain(nil), elems...)}, nil
}

func (s *Sequence) Kind() Kind { return KindSequence }

// Elements returns the sub-domains in index order.
func (s *Sequence) Elements() []Domain { return append([]Domain(nil), s.elems...) }

func (s *Sequence) Sample(rng *rand.Rand) (any, error) {
	out := make([]any, len(s.elems))
	for i, d := range s.elems {
		v, err := d.Sample(rng)
		if err != nil {
			return nil, fmt.Errorf("sequence element %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (s *Sequence) String() string {
	parts := make([]string, len(s.elems))
	for i, d := range s.elems {
		parts[i] = d.String()
	}
	return "sequence(" + strings.Join(parts, ",") + ")"
}

// equalValue compares candidate values, treating all numeric types as
// float64 so that YAML-decoded ints match programmatic floats.
func equalValue(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
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
