package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Dimension of every node position.
const Dimension = 3

// Config drives one mobility simulation run.
type Config struct {
	// Bounds of the simulation space: [minX, maxX, minY, maxY, minZ, maxZ].
	Bounds []float64     `yaml:"bounds"`
	Tick   time.Duration `yaml:"tick"`
	Steps  int           `yaml:"steps"`
	Nodes  int           `yaml:"nodes"`

	TxRange      float64 `yaml:"tx_range"`
	RebuildEvery int     `yaml:"rebuild_every"`

	Devices         int     `yaml:"devices"`
	LinkFailureProb float64 `yaml:"link_failure_prob"`

	PacketsPerStep     int     `yaml:"packets_per_step"`
	DeflectionSeedProb float64 `yaml:"deflection_seed_prob"`
	TTL                int     `yaml:"ttl"`
	MaxSpeed           float64 `yaml:"max_speed"`

	Seed int64 `yaml:"seed"`

	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a small, fully connected-ish scenario.
func Default() *Config {
	return &Config{
		Bounds:             []float64{-100, 100, -100, 100, 0, 10},
		Tick:               100 * time.Millisecond,
		Steps:              50,
		Nodes:              12,
		TxRange:            60,
		RebuildEvery:       5,
		Devices:            2,
		LinkFailureProb:    0.05,
		PacketsPerStep:     4,
		DeflectionSeedProb: 0.1,
		TTL:                16,
		MaxSpeed:           10,
		Seed:               1,
		Log:                LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads a YAML file on top of Default and validates the result.
func Load(filePath string) (*Config, error) {
	buf, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", filePath, err)
	}
	cfg, err := Parse(buf)
	if err != nil {
		return nil, fmt.Errorf("config file '%s': %w", filePath, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(buf []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges. A zero or negative TxRange is legal and yields a
// disconnected network.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Bounds) != Dimension*2 {
		errs = append(errs, fmt.Errorf("bounds length must be %d, got %d", Dimension*2, len(c.Bounds)))
	} else {
		for i := 0; i < Dimension; i++ {
			if c.Bounds[i*2] > c.Bounds[i*2+1] {
				errs = append(errs, fmt.Errorf("bounds axis %d: min %.2f > max %.2f", i, c.Bounds[i*2], c.Bounds[i*2+1]))
			}
		}
	}
	if c.Tick <= 0 {
		errs = append(errs, fmt.Errorf("tick must be positive, got %s", c.Tick))
	}
	if c.Steps < 0 {
		errs = append(errs, fmt.Errorf("steps must not be negative, got %d", c.Steps))
	}
	if c.Nodes < 0 || c.Nodes > 255 {
		errs = append(errs, fmt.Errorf("nodes must be in [0, 255], got %d", c.Nodes))
	}
	if c.RebuildEvery <= 0 {
		errs = append(errs, fmt.Errorf("rebuild_every must be positive, got %d", c.RebuildEvery))
	}
	if c.Devices <= 0 || c.Devices > 255 {
		errs = append(errs, fmt.Errorf("devices must be in [1, 255], got %d", c.Devices))
	}
	if c.LinkFailureProb < 0 || c.LinkFailureProb > 1 {
		errs = append(errs, fmt.Errorf("link_failure_prob must be in [0, 1], got %.3f", c.LinkFailureProb))
	}
	if c.DeflectionSeedProb < 0 || c.DeflectionSeedProb > 1 {
		errs = append(errs, fmt.Errorf("deflection_seed_prob must be in [0, 1], got %.3f", c.DeflectionSeedProb))
	}
	if c.PacketsPerStep < 0 {
		errs = append(errs, fmt.Errorf("packets_per_step must not be negative, got %d", c.PacketsPerStep))
	}
	if c.TTL <= 0 {
		errs = append(errs, fmt.Errorf("ttl must be positive, got %d", c.TTL))
	}
	if c.MaxSpeed < 0 {
		errs = append(errs, fmt.Errorf("max_speed must not be negative, got %.2f", c.MaxSpeed))
	}
	return errors.Join(errs...)
}
