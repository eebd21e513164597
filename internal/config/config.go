package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"sweep/internal/search"
	"sweep/internal/space"
	"sweep/internal/trial"
)

// Config models sweep.yml: the experiment identity, the search strategy and
// its knobs, and the search space itself.
type Config struct {
	Experiment struct {
		Key       string  `yaml:"key"`
		Direction string  `yaml:"direction"`
		Seed      *uint64 `yaml:"seed"`
	} `yaml:"experiment"`
	Search struct {
		Strategy string  `yaml:"strategy"`
		Quantile float64 `yaml:"quantile"`
		// MinHistory is a pointer so an explicit 0 (model engages after the
		// first completion) is distinguishable from the field being absent.
		MinHistory *int `yaml:"min_history"`
	} `yaml:"search"`
	Space space.Spec `yaml:"space"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with sweep init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure and fills defaults
// for the optional search knobs.
func (c *Config) Validate() error {
	if c.Experiment.Key == "" {
		return fmt.Errorf("config.experiment.key is required")
	}
	if _, err := trial.ParseDirection(c.Experiment.Direction); err != nil {
		return fmt.Errorf("config.experiment.direction: %w", err)
	}
	switch c.Search.Strategy {
	case "", search.StrategyRandom, search.StrategyModel:
	default:
		return fmt.Errorf("config.search.strategy must be %q or %q", search.StrategyRandom, search.StrategyModel)
	}
	if c.Search.Quantile == 0 {
		c.Search.Quantile = 0.2
	}
	if c.Search.Quantile <= 0 || c.Search.Quantile >= 1 {
		return fmt.Errorf("config.search.quantile must be in (0,1)")
	}
	if c.Search.MinHistory == nil {
		def := 10
		c.Search.MinHistory = &def
	}
	if *c.Search.MinHistory < 0 {
		return fmt.Errorf("config.search.min_history must be >= 0")
	}
	if len(c.Space.Params) == 0 {
		return fmt.Errorf("config.space.params is required")
	}
	if _, err := c.Space.Compile(); err != nil {
		return fmt.Errorf("config.space: %w", err)
	}
	return nil
}

// Scope compiles the embedded space definition.
func (c *Config) Scope() (*space.Scope, error) {
	return c.Space.Compile()
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "sweep.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(key string) string {
	return fmt.Sprintf(defaultTemplate, key)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `experiment:
  key: %s
  direction: minimize

search:
  strategy: random
  quantile: 0.2
  min_history: 10

space:
  params:
    - name: learning_rate
      continuous:
        family: loguniform
        args: [0.0001, 0.1]

    - name: batch_size
      discrete: [16, 32, 64, 128]

    - name: optimizer
      discrete: [sgd, adam]

    - name: momentum
      continuous:
        family: uniform
        args: [0.0, 0.99]
      when:
        param: optimizer
        equals: sgd
`
