/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: config_test.go
Description: Tests for configuration loading, precedence and validation.
*/

package config

import (
	"testing"
	"time"

	"github.com/kleascm/akaylee-parser/pkg/monitoring"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/guregu/null.v3"
)

func TestDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 5, cfg.MaxResolutionAttempts)
	assert.Equal(t, 30*time.Second, cfg.Oracle.Timeout)
	assert.Equal(t, 1024, cfg.Cache.Capacity)
	assert.False(t, cfg.ProactiveThreshold.Valid)
	assert.False(t, cfg.Profile.Enabled())

	core := cfg.Core()
	assert.Equal(t, 5, core.MaxResolutionAttempts)
	assert.Equal(t, 512, core.Parser.MaxDepth)
	assert.Equal(t, 2, cfg.Gateway().OracleCalls)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/akaylee/parser.yaml", []byte(`
grammar: grammars/number.yaml
max_resolution_attempts: 3
proactive_inference_threshold: 0.75
oracle:
  kind: scripted
  script: oracle.yaml
  timeout: 5s
  openai:
    model: gpt-4o
    requests_per_second: 2
cache:
  capacity: 64
  file: rules.zst
logging:
  level: debug
  format: json
`), 0644))

	v := viper.New()
	v.SetFs(fs)
	v.Set("config", "/etc/akaylee/parser.yaml")
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "grammars/number.yaml", cfg.Grammar)
	assert.Equal(t, 3, cfg.MaxResolutionAttempts)
	assert.Equal(t, null.FloatFrom(0.75), cfg.ProactiveThreshold)
	assert.Equal(t, OracleScripted, cfg.Oracle.Kind)
	assert.Equal(t, "oracle.yaml", cfg.Oracle.Script)
	assert.Equal(t, 5*time.Second, cfg.Oracle.Timeout)
	assert.Equal(t, "gpt-4o", cfg.Oracle.OpenAI.Model)
	assert.Equal(t, 2.0, cfg.Oracle.OpenAI.RequestsPerSecond)
	assert.Equal(t, 64, cfg.Cache.Capacity)
	assert.Equal(t, "rules.zst", cfg.Cache.File)
	assert.EqualValues(t, "debug", cfg.Logging.Level)
	assert.EqualValues(t, "json", cfg.Logging.Format)
	assert.Equal(t, 512, cfg.Parser.MaxDepth)
	assert.Equal(t, null.FloatFrom(0.75), cfg.Core().ProactiveInferenceThreshold)
	assert.Equal(t, 5*time.Second, cfg.Gateway().OracleTimeout)

	v = viper.New()
	v.SetFs(fs)
	v.Set("config", "/etc/akaylee/missing.yaml")
	_, err = Load(v)
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestEnvironment(t *testing.T) {
	t.Setenv("AKAYLEE_PARSER_MAX_RESOLUTION_ATTEMPTS", "7")
	t.Setenv("AKAYLEE_PARSER_ORACLE_TIMEOUT", "250ms")
	t.Setenv("AKAYLEE_PARSER_PROACTIVE_INFERENCE_THRESHOLD", "0.5")

	cfg, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxResolutionAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Oracle.Timeout)
	assert.Equal(t, null.FloatFrom(0.5), cfg.ProactiveThreshold)

	// explicit settings win over the environment
	v := viper.New()
	v.Set("max_resolution_attempts", 2)
	cfg, err = Load(v)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.MaxResolutionAttempts)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(c *Config)
		err    string
	}{
		{"attempts", func(c *Config) { c.MaxResolutionAttempts = 0 }, "max_resolution_attempts"},
		{"threshold", func(c *Config) { c.ProactiveThreshold = null.FloatFrom(1.5) }, "proactive_inference_threshold"},
		{"workers", func(c *Config) { c.Workers = -1 }, "workers"},
		{"depth", func(c *Config) { c.Parser.MaxDepth = 0 }, "max_depth"},
		{"capacity", func(c *Config) { c.Cache.Capacity = 0 }, "cache.capacity"},
		{"kind", func(c *Config) { c.Oracle.Kind = "psychic" }, "unknown oracle kind"},
		{"script", func(c *Config) { c.Oracle.Kind = OracleScripted }, "oracle.script"},
		{"timeout", func(c *Config) { c.Oracle.Timeout = 0 }, "oracle.timeout"},
		{"calls", func(c *Config) { c.Oracle.Calls = 0 }, "oracle.calls"},
		{"min confidence", func(c *Config) { c.Oracle.MinConfidence = -0.1 }, "min_confidence"},
		{"logging", func(c *Config) { c.Logging.Format = "xml" }, "logging: unsupported log format"},
		{"profile", func(c *Config) { c.Profile = monitoring.ProfilerConfig{CPUProfile: true} }, "profile.output_dir"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.err)
		})
	}

	require.NoError(t, Default().Validate())
	v := viper.New()
	v.Set("proactive_inference_threshold", "high")
	_, err := Load(v)
	assert.ErrorContains(t, err, "expected a number")
}
