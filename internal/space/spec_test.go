package space

import (
	"errors"
	"testing"
)

const sampleSpace = `
params:
  - name: learning_rate
    continuous:
      family: loguniform
      args: [0.0001, 0.1]
  - name: optimizer
    discrete: [sgd, adam]
  - name: momentum
    continuous:
      family: uniform
      args: [0.0, 0.99]
    when:
      param: optimizer
      equals: sgd
  - name: layers
    scope:
      params:
        - name: width
          discrete: [64, 128]
        - name: activation
          constant: relu
  - name: schedule
    sequence:
      - constant: warmup
      - discrete: [cosine, step]
`

func TestParseYAMLPreservesOrder(t *testing.T) {
	scope, err := ParseYAML([]byte(sampleSpace))
	if err != nil {
		t.Fatal(err)
	}
	entries, err := scope.Build()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"learning_rate", "optimizer", "momentum", "layers.width", "layers.activation", "schedule"}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e.Path != want[i] {
			t.Fatalf("entry %d = %s, want %s", i, e.Path, want[i])
		}
	}
}

func TestParseYAMLGating(t *testing.T) {
	scope, err := ParseYAML([]byte(sampleSpace))
	if err != nil {
		t.Fatal(err)
	}
	values, err := scope.Sample(testRNG(), map[string]any{"optimizer": "adam"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := values["momentum"]; ok {
		t.Fatal("momentum sampled despite optimizer=adam")
	}
	if values["layers.activation"] != "relu" {
		t.Fatalf("layers.activation = %v", values["layers.activation"])
	}
	seq, ok := values["schedule"].([]any)
	if !ok || len(seq) != 2 || seq[0] != "warmup" {
		t.Fatalf("schedule = %v", values["schedule"])
	}
}

func TestCompileRejectsMultipleVariants(t *testing.T) {
	bad := `
params:
  - name: x
    constant: 1
    discrete: [1, 2]
`
	if _, err := ParseYAML([]byte(bad)); !errors.Is(err, ErrScope) {
		t.Fatalf("got %v, want ErrScope", err)
	}
}

func TestCompileRejectsWhenOnScope(t *testing.T) {
	bad := `
params:
  - name: flag
    discrete: [true, false]
  - name: nested
    scope:
      params:
        - name: x
          constant: 1
    when:
      param: flag
      equals: true
`
	if _, err := ParseYAML([]byte(bad)); !errors.Is(err, ErrScope) {
		t.Fatalf("got %v, want ErrScope", err)
	}
}

func TestCompileRejectsUnnamedParam(t *testing.T) {
	bad := `
params:
  - constant: 1
`
	if _, err := ParseYAML([]byte(bad)); !errors.Is(err, ErrScope) {
		t.Fatalf("got %v, want ErrScope", err)
	}
}

func TestCompileRejectsBadDomain(t *testing.T) {
	bad := `
params:
  - name: x
    continuous:
      family: uniform
      args: [5, 1]
`
	if _, err := ParseYAML([]byte(bad)); !errors.Is(err, ErrDomain) {
		t.Fatalf("got %v, want ErrDomain", err)
	}
}
