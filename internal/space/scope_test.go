package space

import (
	"errors"
	"testing"
)

func mustDiscrete(t *testing.T, values ...any) *Discrete {
	t.Helper()
	d, err := NewDiscrete(values...)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestBuildFlattensInInsertionOrder(t *testing.T) {
	inner := New()
	if err := inner.Add("units", NewConstant(64)); err != nil {
		t.Fatal(err)
	}
	if err := inner.Add("dropout", NewConstant(0.1)); err != nil {
		t.Fatal(err)
	}
	s := New()
	if err := s.Add("lr", NewConstant(0.01)); err != nil {
		t.Fatal(err)
	}
	if err := s.AddScope("layer", inner); err != nil {
		t.Fatal(err)
	}
	if err := s.Add("epochs", NewConstant(10)); err != nil {
		t.Fatal(err)
	}
	entries, err := s.Build()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"lr", "layer.units", "layer.dropout", "epochs"}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e.Path != want[i] {
			t.Fatalf("entry %d = %s, want %s", i, e.Path, want[i])
		}
	}
}

func TestAddRejectsDuplicateAndDottedNames(t *testing.T) {
	s := New()
	if err := s.Add("a", NewConstant(1)); err != nil {
		t.Fatal(err)
	}
	if err := s.Add("a", NewConstant(2)); !errors.Is(err, ErrScope) {
		t.Fatalf("duplicate name: got %v, want ErrScope", err)
	}
	if err := s.Add("a.b", NewConstant(3)); !errors.Is(err, ErrScope) {
		t.Fatalf("dotted name: got %v, want ErrScope", err)
	}
	if err := s.Add("", NewConstant(4)); !errors.Is(err, ErrScope) {
		t.Fatalf("empty name: got %v, want ErrScope", err)
	}
}

func TestBuildValidatesConditions(t *testing.T) {
	s := New()
	if err := s.Add("a", NewConstant(1)); err != nil {
		t.Fatal(err)
	}
	if err := s.Add("b", NewConstant(2)); err != nil {
		t.Fatal(err)
	}
	s.When("b", "missing", Eq(1))
	if _, err := s.Build(); !errors.Is(err, ErrScope) {
		t.Fatalf("unknown gate ref: got %v, want ErrScope", err)
	}

	fwd := New()
	if err := fwd.Add("a", NewConstant(1)); err != nil {
		t.Fatal(err)
	}
	if err := fwd.Add("b", NewConstant(2)); err != nil {
		t.Fatal(err)
	}
	fwd.When("a", "b", Eq(2))
	if _, err := fwd.Build(); !errors.Is(err, ErrScope) {
		t.Fatalf("forward gate ref: got %v, want ErrScope", err)
	}
}

func TestSampleAppliesGates(t *testing.T) {
	s := New()
	if err := s.Add("optimizer", mustDiscrete(t, "sgd", "adam")); err != nil {
		t.Fatal(err)
	}
	if err := s.Add("momentum", NewConstant(0.9)); err != nil {
		t.Fatal(err)
	}
	s.When("momentum", "optimizer", Eq("sgd"))

	values, err := s.Sample(testRNG(), map[string]any{"optimizer": "adam"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := values["momentum"]; ok {
		t.Fatal("momentum present despite optimizer=adam")
	}

	values, err = s.Sample(testRNG(), map[string]any{"optimizer": "sgd"})
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := values["momentum"]; !ok || v != 0.9 {
		t.Fatalf("momentum = %v, want 0.9", v)
	}
}

func TestGateOnOmittedValueOmitsDependent(t *testing.T) {
	s := New()
	if err := s.Add("c", NewConstant(0)); err != nil {
		t.Fatal(err)
	}
	if err := s.Add("b", NewConstant(1)); err != nil {
		t.Fatal(err)
	}
	if err := s.Add("a", NewConstant(2)); err != nil {
		t.Fatal(err)
	}
	// b requires c==1 which never holds, so b is absent; a gates on b and
	// must be absent too.
	s.When("b", "c", Eq(1))
	s.When("a", "b", Eq(1))
	values, err := s.Sample(testRNG(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := values["b"]; ok {
		t.Fatal("b should be gated off")
	}
	if _, ok := values["a"]; ok {
		t.Fatal("a should be gated off transitively")
	}
	if values["c"] != 0 {
		t.Fatalf("c = %v, want 0", values["c"])
	}
}

func TestFingerprintStability(t *testing.T) {
	build := func() *Scope {
		s := New()
		s.Add("optimizer", mustDiscrete(t, "sgd", "adam"))
		s.Add("lr", NewConstant(0.01))
		s.When("lr", "optimizer", Eq("sgd"))
		return s
	}
	a, err := build().Fingerprint()
	if err != nil {
		t.Fatal(err)
	}
	b, err := build().Fingerprint()
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("fingerprints differ: %s vs %s", a, b)
	}
	other := New()
	other.Add("lr", NewConstant(0.02))
	c, err := other.Fingerprint()
	if err != nil {
		t.Fatal(err)
	}
	if c == a {
		t.Fatal("structurally different scopes share a fingerprint")
	}
}
