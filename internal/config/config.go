// Package config loads nefsim settings from YAML files and environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"nefsim/internal/model"
)

// Config contains all nefsim settings.
type Config struct {
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler"`
	Run       RunConfig       `json:"run" yaml:"run"`
	Store     StoreConfig     `json:"store" yaml:"store"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
}

type SchedulerConfig struct {
	// Lanes is the number of CPU lanes; 0 runs serially.
	Lanes          int               `json:"lanes" yaml:"lanes"`
	CollectTimings bool              `json:"collect_timings" yaml:"collect_timings"`
	Accelerator    AcceleratorConfig `json:"accelerator" yaml:"accelerator"`
}

type AcceleratorConfig struct {
	// Enabled adds the in-process accelerator lane. Ensembles opt in with
	// the run's accelerate flag.
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
}

type RunConfig struct {
	Scenario  string  `json:"scenario" yaml:"scenario"`
	StartTime float64 `json:"start_time" yaml:"start_time"`
	EndTime   float64 `json:"end_time" yaml:"end_time"`
	StepSize  float64 `json:"step_size" yaml:"step_size"`
	Seed      int64   `json:"seed" yaml:"seed"`
	Neurons   int     `json:"neurons" yaml:"neurons"`
	// Mode is one of default, constant_rate, rate, direct.
	Mode    string `json:"mode" yaml:"mode"`
	Spiking bool   `json:"spiking" yaml:"spiking"`
	// Probes replace the scenario's suggested probes when set.
	Probes []ProbeConfig `json:"probes,omitempty" yaml:"probes,omitempty"`
}

type ProbeConfig struct {
	Node  string `json:"node" yaml:"node"`
	State string `json:"state" yaml:"state"`
	// Member selects one ensemble member when set.
	Member *int `json:"member,omitempty" yaml:"member,omitempty"`
}

type StoreConfig struct {
	// Kind is memory or sqlite.
	Kind   string `json:"kind" yaml:"kind"`
	DBPath string `json:"db_path" yaml:"db_path"`
}

type LoggingConfig struct {
	// Level is warn, info, debug or trace.
	Level string `json:"level" yaml:"level"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			Lanes:          2,
			CollectTimings: true,
			Accelerator:    AcceleratorConfig{Name: "accel-0"},
		},
		Run: RunConfig{
			Scenario: "communication-channel",
			EndTime:  1,
			StepSize: 0.001,
			Seed:     1,
			Neurons:  50,
			Mode:     "default",
		},
		Store: StoreConfig{
			Kind:   "",
			DBPath: "nefsim.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load returns the defaults, overlaid with path when it is non-empty, then
// with environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileConfig
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Scheduler.Lanes < 0 {
		return fmt.Errorf("lanes must be >= 0, got %d", c.Scheduler.Lanes)
	}
	if c.Scheduler.Accelerator.Enabled && c.Scheduler.Lanes == 0 {
		return fmt.Errorf("accelerator requires at least one lane")
	}
	if c.Run.StepSize <= 0 {
		return fmt.Errorf("step_size must be > 0, got %g", c.Run.StepSize)
	}
	if c.Run.EndTime < c.Run.StartTime {
		return fmt.Errorf("end_time %g is before start_time %g", c.Run.EndTime, c.Run.StartTime)
	}
	if c.Run.Neurons < 1 {
		return fmt.Errorf("neurons must be > 0, got %d", c.Run.Neurons)
	}
	if _, err := model.ParseMode(c.Run.Mode); err != nil {
		return err
	}
	for i, p := range c.Run.Probes {
		if p.Node == "" || p.State == "" {
			return fmt.Errorf("probe %d needs node and state", i)
		}
		if p.Member != nil && *p.Member < 0 {
			return fmt.Errorf("probe %d member must be >= 0", i)
		}
	}
	validStores := map[string]bool{"": true, "memory": true, "sqlite": true}
	if !validStores[c.Store.Kind] {
		return fmt.Errorf("invalid store kind: %s (valid: memory, sqlite, or empty for default)", c.Store.Kind)
	}
	validLevels := map[string]bool{"": true, "warn": true, "info": true, "debug": true, "trace": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: warn, info, debug, trace)", c.Logging.Level)
	}
	return nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NEFSIM_LANES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scheduler.Lanes = n
		}
	}
	if v := os.Getenv("NEFSIM_COLLECT_TIMINGS"); v != "" {
		cfg.Scheduler.CollectTimings = v == "true" || v == "1"
	}
	if v := os.Getenv("NEFSIM_ACCELERATOR"); v != "" {
		cfg.Scheduler.Accelerator.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("NEFSIM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("NEFSIM_STORE"); v != "" {
		cfg.Store.Kind = v
	}
	if v := os.Getenv("NEFSIM_DB_PATH"); v != "" {
		cfg.Store.DBPath = v
	}
}
