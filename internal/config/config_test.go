package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"MOMENT_DB", "MOMENT_TZ", "MOMENT_LOG_LEVEL"} {
		t.Setenv(key, "")
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 9, cfg.Clustering.MaxComponents)
	assert.Equal(t, 3.0, cfg.Moment.DefaultValue)
	assert.Equal(t, []string{"sleep", "outdoors"}, cfg.Simulation.Deadlines)

	cc := cfg.ClusterConfig()
	assert.True(t, cc.UseBIC)
	assert.Equal(t, 1e-6, cc.EM.MinVariance)
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "moment.yaml")
	body := `
db_path: /var/lib/moments.db
clustering:
  max_components: 4
  use_bic: false
moment:
  scenario: onlyValue
engine:
  retry_delay: 250ms
simulation:
  deadlines: [gym]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/moments.db", cfg.DBPath)
	assert.Equal(t, 4, cfg.Clustering.MaxComponents)
	assert.False(t, cfg.Clustering.UseBIC)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.RetryDelay)
	assert.Equal(t, []string{"gym"}, cfg.Simulation.Deadlines)
	// untouched keys keep their defaults
	assert.Equal(t, 500, cfg.Clustering.MaxIterations)
	assert.Equal(t, 100, cfg.Simulation.Runs)

	sc, err := cfg.Scenario()
	require.NoError(t, err)
	assert.Equal(t, 1.0, sc.M)
	assert.Equal(t, 0.0, sc.N)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("clustering: [1, 2"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MOMENT_DB", "/tmp/env.db")
	t.Setenv("MOMENT_TZ", "Europe/Amsterdam")
	t.Setenv("MOMENT_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env.db", cfg.DBPath)
	assert.Equal(t, "Europe/Amsterdam", cfg.Timezone)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "moment.yaml")
	cfg := Default()
	cfg.Simulation.Seed = 42
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"too many components", func(c *Config) { c.Clustering.MaxComponents = 10 }},
		{"zero components", func(c *Config) { c.Clustering.MaxComponents = 0 }},
		{"zero variance floor", func(c *Config) { c.Clustering.MinVariance = 0 }},
		{"unknown scenario", func(c *Config) { c.Moment.Scenario = "loudest" }},
		{"train ratio", func(c *Config) { c.Simulation.TrainRatio = 1 }},
		{"bad zone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
		{"no workers", func(c *Config) { c.Engine.Workers = 0 }},
		{"condition limit", func(c *Config) { c.Moment.ConditionLimit = 1 }},
		{"empty db", func(c *Config) { c.DBPath = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Clustering.MaxComponents = 3
	cfg.Engine.Workers = 2
	cfg.Moment.DefaultValue = 5
	cfg.Simulation.Runs = 7

	ec := cfg.EngineConfig()
	assert.Equal(t, 3, ec.Cluster.MaxComponents)
	assert.Equal(t, 2, ec.Workers)
	assert.Equal(t, 5.0, ec.DefaultValue)
	assert.Equal(t, cfg.Clustering.MinVariance, ec.Eval.MinVariance)

	sc := cfg.SimConfig()
	assert.Equal(t, 7, sc.Runs)
	assert.Equal(t, []string{"sleep", "outdoors"}, sc.Deadlines)
	assert.Len(t, sc.Scenarios, 3)
	assert.Equal(t, 3, sc.Cluster.MaxComponents)
}
