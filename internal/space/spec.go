package space

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Spec is the YAML form of a search space. Params are a list rather than a
// mapping so that definition order, and therefore traversal order, survives
// decoding.
type Spec struct {
	Params []ParamSpec `yaml:"params"`
}

// DomainSpec names exactly one domain variant.
type DomainSpec struct {
	Constant   *any            `yaml:"constant"`
	Discrete   []any           `yaml:"discrete"`
	Continuous *ContinuousSpec `yaml:"continuous"`
	Sequence   []DomainSpec    `yaml:"sequence"`
}

type ContinuousSpec struct {
	Family string    `yaml:"family"`
	Args   []float64 `yaml:"args"`
}

// WhenSpec gates a parameter on an earlier parameter's sampled value.
type WhenSpec struct {
	Param  string `yaml:"param"`
	Equals any    `yaml:"equals"`
}

type ParamSpec struct {
	Name       string `yaml:"name"`
	DomainSpec `yaml:",inline"`
	Scope      *Spec     `yaml:"scope"`
	When       *WhenSpec `yaml:"when"`
}

// ParseYAML decodes a YAML space definition and compiles it into a Scope.
func ParseYAML(data []byte) (*Scope, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("%w: parse space: %v", ErrScope, err)
	}
	return spec.Compile()
}

// Compile builds the Scope tree described by the spec. Structural problems
// surface as ErrScope, malformed domains as ErrDomain.
func (sp *Spec) Compile() (*Scope, error) {
	if len(sp.Params) == 0 {
		return nil, fmt.Errorf("%w: space defines no parameters", ErrScope)
	}
	scope := New()
	for _, p := range sp.Params {
		if p.Name == "" {
			return nil, fmt.Errorf("%w: parameter without a name", ErrScope)
		}
		variants := p.DomainSpec.count()
		if p.Scope != nil {
			variants++
		}
		if variants != 1 {
			return nil, fmt.Errorf("%w: parameter %q must define exactly one of constant, discrete, continuous, sequence or scope", ErrScope, p.Name)
		}
		if p.Scope != nil {
			if p.When != nil {
				return nil, fmt.Errorf("%w: parameter %q: 'when' applies to domains, not nested scopes", ErrScope, p.Name)
			}
			child, err := p.Scope.Compile()
			if err != nil {
				return nil, fmt.Errorf("scope %q: %w", p.Name, err)
			}
			if err := scope.AddScope(p.Name, child); err != nil {
				return nil, err
			}
			continue
		}
		dom, err := p.DomainSpec.compile()
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		if err := scope.Add(p.Name, dom); err != nil {
			return nil, err
		}
		if p.When != nil {
			if p.When.Param == "" {
				return nil, fmt.Errorf("%w: parameter %q: 'when' needs a param", ErrScope, p.Name)
			}
			scope.When(p.Name, p.When.Param, Eq(p.When.Equals))
		}
	}
	return scope, nil
}

func (d *DomainSpec) count() int {
	n := 0
	if d.Constant != nil {
		n++
	}
	if d.Discrete != nil {
		n++
	}
	if d.Continuous != nil {
		n++
	}
	if d.Sequence != nil {
		n++
	}
	return n
}

func (d *DomainSpec) compile() (Domain, error) {
	switch {
	case d.Constant != nil:
		return NewConstant(*d.Constant), nil
	case d.Discrete != nil:
		return NewDiscrete(d.Discrete...)
	case d.Continuous != nil:
		return NewContinuous(d.Continuous.Family, d.Continuous.Args...)
	case d.Sequence != nil:
		elems := make([]Domain, 0, len(d.Sequence))
		for i, es := range d.Sequence {
			if es.count() != 1 {
				return nil, fmt.Errorf("%w: sequence element %d must define exactly one domain variant", ErrDomain, i)
			}
			elem, err := es.compile()
			if err != nil {
				return nil, fmt.Errorf("sequence element %d: %w", i, err)
			}
			elems = append(elems, elem)
		}
		return NewSequence(elems...)
	}
	return nil, fmt.Errorf("%w: no domain variant defined", ErrDomain)
}
