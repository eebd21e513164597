package config

import (
	"os"
	"path/filepath"
	"testing"
)

const minimalYAML = `
experiment:
  key: exp-1
space:
  params:
    - name: lr
      continuous:
        family: uniform
        args: [0.0, 1.0]
`

func TestFromYAMLFillsDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(minimalYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Experiment.Key != "exp-1" {
		t.Fatalf("key = %s", cfg.Experiment.Key)
	}
	if cfg.Search.Quantile != 0.2 {
		t.Fatalf("quantile default = %v, want 0.2", cfg.Search.Quantile)
	}
	if cfg.Search.MinHistory == nil || *cfg.Search.MinHistory != 10 {
		t.Fatalf("min_history default = %v, want 10", cfg.Search.MinHistory)
	}
	if cfg.Experiment.Seed != nil {
		t.Fatal("seed should stay unset when omitted")
	}
	if _, err := cfg.Scope(); err != nil {
		t.Fatalf("scope: %v", err)
	}
}

func TestFromYAMLRejections(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing key", `
space:
  params:
    - name: lr
      constant: 1
`},
		{"bad direction", `
experiment:
  key: exp
  direction: down
space:
  params:
    - name: lr
      constant: 1
`},
		{"unknown strategy", `
experiment:
  key: exp
search:
  strategy: genetic
space:
  params:
    - name: lr
      constant: 1
`},
		{"quantile out of range", `
experiment:
  key: exp
search:
  quantile: 1.5
space:
  params:
    - name: lr
      constant: 1
`},
		{"empty space", `
experiment:
  key: exp
`},
		{"bad domain", `
experiment:
  key: exp
space:
  params:
    - name: lr
      continuous:
        family: uniform
        args: [5, 1]
`},
		{"negative min_history", `
experiment:
  key: exp
search:
  min_history: -1
space:
  params:
    - name: lr
      constant: 1
`},
	}
	for _, tc := range cases {
		if _, err := FromYAML([]byte(tc.yaml)); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestMinHistoryZeroIsKept(t *testing.T) {
	cfg, err := FromYAML([]byte(`
experiment:
  key: exp
search:
  strategy: model
  min_history: 0
space:
  params:
    - name: lr
      continuous:
        family: uniform
        args: [0.0, 1.0]
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Search.MinHistory == nil || *cfg.Search.MinHistory != 0 {
		t.Fatalf("min_history = %v, want explicit 0", cfg.Search.MinHistory)
	}
}

func TestGenerateDefaultParses(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault("demo")))
	if err != nil {
		t.Fatalf("default template invalid: %v", err)
	}
	if cfg.Experiment.Key != "demo" {
		t.Fatalf("key = %s", cfg.Experiment.Key)
	}
	scope, err := cfg.Scope()
	if err != nil {
		t.Fatal(err)
	}
	entries, err := scope.Build()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 4 {
		t.Fatalf("default space has %d params, want 4", len(entries))
	}
}

func TestLoadFromWorkspace(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for missing config")
	}
	if err := os.WriteFile(filepath.Join(dir, "sweep.yml"), []byte(minimalYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Experiment.Key != "exp-1" {
		t.Fatalf("key = %s", cfg.Experiment.Key)
	}
	if _, err := FromFile(Path(dir)); err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	opt, err := LoadOptional(t.TempDir())
	if err != nil || opt != nil {
		t.Fatalf("LoadOptional on empty dir: %v %v", opt, err)
	}
}
