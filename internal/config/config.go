// Package config loads the engine settings from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/cluster"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/engine"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/mixture"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/moment"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/replay"
)

// #region config
// Config is the root configuration.
type Config struct {
	DBPath     string           `yaml:"db_path"`
	Timezone   string           `yaml:"timezone"` // zone for timestamps without an offset
	Clustering ClusteringConfig `yaml:"clustering"`
	Moment     MomentConfig     `yaml:"moment"`
	Simulation SimulationConfig `yaml:"simulation"`
	Logging    LoggingConfig    `yaml:"logging"`
	Engine     EngineConfig     `yaml:"engine"`
}

// ClusteringConfig controls EM fitting and component-count selection.
type ClusteringConfig struct {
	MaxComponents int     `yaml:"max_components"`
	MinVariance   float64 `yaml:"min_variance"`
	UseBIC        bool    `yaml:"use_bic"`
	MaxIterations int     `yaml:"max_iterations"`
	Tolerance     float64 `yaml:"tolerance"`
}

// MomentConfig controls deadline analysis.
type MomentConfig struct {
	ConditionLimit float64 `yaml:"condition_limit"`
	DefaultValue   float64 `yaml:"default_value"`
	Scenario       string  `yaml:"scenario"` // default | onlyTime | onlyValue
}

// SimulationConfig controls the held-out replay.
type SimulationConfig struct {
	Runs       int      `yaml:"runs"`
	Seed       uint64   `yaml:"seed"`
	TrainRatio float64  `yaml:"train_ratio"`
	Lookahead  int      `yaml:"lookahead"`   // activities after a deadline that must not repeat it
	MinFuture  int      `yaml:"min_future"`  // activities required after the start point
	MaxValue   int      `yaml:"max_value"`   // random user values are drawn from 0..MaxValue
	Deadlines  []string `yaml:"deadlines"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// EngineConfig tunes the recompute pipeline and the store.
type EngineConfig struct {
	Workers     int           `yaml:"workers"`
	CacheSize   int           `yaml:"cache_size"`
	BusyRetries uint          `yaml:"busy_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
}

// #endregion config

// #region defaults
// Default returns the configuration used when no file is present.
func Default() *Config {
	em := mixture.DefaultConfig()
	return &Config{
		DBPath:   "moments.db",
		Timezone: "Local",
		Clustering: ClusteringConfig{
			MaxComponents: cluster.MaxComponents,
			MinVariance:   em.MinVariance,
			UseBIC:        true,
			MaxIterations: em.MaxIterations,
			Tolerance:     em.Tolerance,
		},
		Moment: MomentConfig{
			ConditionLimit: moment.DefaultConditionLimit,
			DefaultValue:   moment.DefaultValue,
			Scenario:       "default",
		},
		Simulation: SimulationConfig{
			Runs:       100,
			Seed:       1,
			TrainRatio: 0.8,
			Lookahead:  3,
			MinFuture:  4,
			MaxValue:   4,
			Deadlines:  []string{"sleep", "outdoors"},
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Engine: EngineConfig{
			Workers:     4,
			CacheSize:   1024,
			BusyRetries: 5,
			RetryDelay:  50 * time.Millisecond,
		},
	}
}

// #endregion defaults

// #region load
// Load reads path over the defaults. A missing file yields the defaults.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	c.DBPath = envOr("MOMENT_DB", c.DBPath)
	c.Timezone = envOr("MOMENT_TZ", c.Timezone)
	c.Logging.Level = envOr("MOMENT_LOG_LEVEL", c.Logging.Level)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion load

// #region validate
// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is empty")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if k := c.Clustering.MaxComponents; k < 1 || k > cluster.MaxComponents {
		return fmt.Errorf("clustering.max_components %d outside 1..%d", k, cluster.MaxComponents)
	}
	if c.Clustering.MinVariance <= 0 {
		return fmt.Errorf("clustering.min_variance must be positive")
	}
	if c.Clustering.MaxIterations < 1 {
		return fmt.Errorf("clustering.max_iterations must be at least 1")
	}
	if c.Moment.ConditionLimit <= 1 {
		return fmt.Errorf("moment.condition_limit must exceed 1")
	}
	if _, ok := moment.ScenarioByName(c.Moment.Scenario); !ok {
		return fmt.Errorf("moment.scenario %q unknown", c.Moment.Scenario)
	}
	if r := c.Simulation.TrainRatio; r <= 0 || r >= 1 {
		return fmt.Errorf("simulation.train_ratio %v outside (0,1)", r)
	}
	if c.Simulation.Runs < 1 || c.Simulation.MaxValue < 0 || c.Simulation.Lookahead < 0 {
		return fmt.Errorf("simulation: runs, max_value and lookahead must be non-negative and runs at least 1")
	}
	if c.Engine.Workers < 1 {
		return fmt.Errorf("engine.workers must be at least 1")
	}
	return nil
}

// #endregion validate

// #region conversions
// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ClusterConfig converts the clustering section.
func (c *Config) ClusterConfig() cluster.Config {
	return cluster.Config{
		MaxComponents: c.Clustering.MaxComponents,
		MinVariance:   c.Clustering.MinVariance,
		UseBIC:        c.Clustering.UseBIC,
		EM: mixture.Config{
			MaxIterations: c.Clustering.MaxIterations,
			Tolerance:     c.Clustering.Tolerance,
			MinVariance:   c.Clustering.MinVariance,
		},
	}
}

// Scenario returns the configured scoring scenario.
func (c *Config) Scenario() (moment.Scenario, error) {
	sc, ok := moment.ScenarioByName(c.Moment.Scenario)
	if !ok {
		return moment.Scenario{}, fmt.Errorf("moment.scenario %q unknown", c.Moment.Scenario)
	}
	return sc, nil
}

// EngineConfig converts the sections the recompute pipeline reads.
func (c *Config) EngineConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.Cluster = c.ClusterConfig()
	cfg.Workers = c.Engine.Workers
	cfg.DefaultValue = c.Moment.DefaultValue
	cfg.ConditionLimit = c.Moment.ConditionLimit
	cfg.Eval.MinVariance = c.Clustering.MinVariance
	return cfg
}

// SimConfig converts the simulation section. All scenarios are replayed.
func (c *Config) SimConfig() replay.SimConfig {
	return replay.SimConfig{
		TrainRatio:     c.Simulation.TrainRatio,
		Runs:           c.Simulation.Runs,
		Lookahead:      c.Simulation.Lookahead,
		MinFuture:      c.Simulation.MinFuture,
		MaxValue:       c.Simulation.MaxValue,
		Seed:           c.Simulation.Seed,
		Deadlines:      c.Simulation.Deadlines,
		Scenarios:      moment.Scenarios(),
		Cluster:        c.ClusterConfig(),
		ConditionLimit: c.Moment.ConditionLimit,
	}
}

// #endregion conversions
