/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: config.go
Description: Configuration for the Akaylee Parser. Settings come from defaults, an optional
config file, AKAYLEE_PARSER_* environment variables and command-line flags, merged by viper
and decoded into Config. Config also maps itself onto the options of each component.
*/

package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/kleascm/akaylee-parser/pkg/cache"
	"github.com/kleascm/akaylee-parser/pkg/core"
	"github.com/kleascm/akaylee-parser/pkg/inference"
	"github.com/kleascm/akaylee-parser/pkg/logging"
	"github.com/kleascm/akaylee-parser/pkg/monitoring"
	"github.com/kleascm/akaylee-parser/pkg/oracle/openai"
	"github.com/kleascm/akaylee-parser/pkg/parser"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"gopkg.in/guregu/null.v3"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "AKAYLEE_PARSER"

// Oracle kinds
const (
	OracleNone     = "none"
	OracleScripted = "scripted"
	OracleOpenAI   = "openai"
)

// Config is the complete parser configuration
type Config struct {
	Grammar               string     `mapstructure:"grammar"`
	MaxResolutionAttempts int        `mapstructure:"max_resolution_attempts"`
	ProactiveThreshold    null.Float `mapstructure:"proactive_inference_threshold"`
	Workers               int        `mapstructure:"workers"`
	HTMLSelector          string     `mapstructure:"html_selector"`
	ReportDir             string     `mapstructure:"report_dir"`
	DashboardDir          string     `mapstructure:"dashboard_dir"`

	Parser  ParserConfig         `mapstructure:"parser"`
	Oracle  OracleConfig         `mapstructure:"oracle"`
	Cache   CacheConfig          `mapstructure:"cache"`
	Logging logging.LoggerConfig `mapstructure:"logging"`

	Profile monitoring.ProfilerConfig `mapstructure:"profile"`
}

// ParserConfig bounds each parse call
type ParserConfig struct {
	MaxDepth     int `mapstructure:"max_depth"`
	WindowTokens int `mapstructure:"window_tokens"`
	SnippetBytes int `mapstructure:"snippet_bytes"`
}

// OracleConfig selects and tunes the inference oracle
type OracleConfig struct {
	Kind          string         `mapstructure:"kind"`
	Timeout       time.Duration  `mapstructure:"timeout"`
	Calls         int            `mapstructure:"calls"`
	MinConfidence float64        `mapstructure:"min_confidence"`
	Script        string         `mapstructure:"script"`
	OpenAI        openai.Options `mapstructure:"openai"`
}

// CacheConfig sizes the rule cache and names its persistence file
type CacheConfig struct {
	Capacity int    `mapstructure:"capacity"`
	File     string `mapstructure:"file"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		MaxResolutionAttempts: core.DefaultMaxResolutionAttempts,
		Parser: ParserConfig{
			MaxDepth:     parser.DefaultMaxDepth,
			WindowTokens: parser.DefaultWindowTokens,
			SnippetBytes: parser.DefaultSnippetBytes,
		},
		Oracle: OracleConfig{
			Kind:    OracleNone,
			Timeout: inference.DefaultOracleTimeout,
			Calls:   inference.DefaultOracleCalls,
		},
		Cache:   CacheConfig{Capacity: cache.DefaultCapacity},
		Logging: *logging.DefaultLoggerConfig(),
		Profile: monitoring.ProfilerConfig{OutputDir: "profiles"},
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.MaxResolutionAttempts < 1 {
		return fmt.Errorf("max_resolution_attempts must be at least 1, got %d", c.MaxResolutionAttempts)
	}
	if c.ProactiveThreshold.Valid && (c.ProactiveThreshold.Float64 < 0 || c.ProactiveThreshold.Float64 > 1) {
		return fmt.Errorf("proactive_inference_threshold must be within [0, 1], got %g", c.ProactiveThreshold.Float64)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	if c.Parser.MaxDepth < 1 {
		return fmt.Errorf("parser.max_depth must be positive")
	}
	if c.Cache.Capacity < 1 {
		return fmt.Errorf("cache.capacity must be positive")
	}

	switch c.Oracle.Kind {
	case OracleNone, OracleOpenAI:
	case OracleScripted:
		if c.Oracle.Script == "" {
			return fmt.Errorf("oracle.script is required for the scripted oracle")
		}
	default:
		return fmt.Errorf("unknown oracle kind %q (want none, scripted or openai)", c.Oracle.Kind)
	}
	if c.Oracle.Timeout <= 0 {
		return fmt.Errorf("oracle.timeout must be positive")
	}
	if c.Oracle.Calls < 1 {
		return fmt.Errorf("oracle.calls must be at least 1")
	}
	if c.Oracle.MinConfidence < 0 || c.Oracle.MinConfidence > 1 {
		return fmt.Errorf("oracle.min_confidence must be within [0, 1]")
	}

	if c.Profile.Enabled() && c.Profile.OutputDir == "" {
		return fmt.Errorf("profile.output_dir is required when profiling")
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

// Core returns the coordinator configuration
func (c *Config) Core() core.Config {
	return core.Config{
		MaxResolutionAttempts:       c.MaxResolutionAttempts,
		ProactiveInferenceThreshold: c.ProactiveThreshold,
		Parser: parser.Options{
			MaxDepth:     c.Parser.MaxDepth,
			WindowTokens: c.Parser.WindowTokens,
			SnippetBytes: c.Parser.SnippetBytes,
		},
	}
}

// Gateway returns the inference gateway options
func (c *Config) Gateway() inference.Options {
	return inference.Options{
		OracleTimeout:   c.Oracle.Timeout,
		MinConfidence:   c.Oracle.MinConfidence,
		OracleCalls:     c.Oracle.Calls,
		MaxGrammarLines: inference.DefaultMaxGrammarLines,
		MaxNotes:        inference.DefaultMaxNotes,
	}
}

// Load builds a Config from v. The config file named by the "config" key is
// read first, then environment variables, then whatever v already holds
// (typically bound flags).
func Load(v *viper.Viper) (*Config, error) {
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := Default()
	registerKeys(v, cfg)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		nullFloatHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// registerKeys makes every key known to v so AutomaticEnv covers keys
// that appear in neither the config file nor the flags
func registerKeys(v *viper.Viper, cfg *Config) {
	defaults := map[string]interface{}{
		"grammar":                       cfg.Grammar,
		"max_resolution_attempts":       cfg.MaxResolutionAttempts,
		"proactive_inference_threshold": "",
		"workers":                       cfg.Workers,
		"html_selector":                 cfg.HTMLSelector,
		"report_dir":                    cfg.ReportDir,
		"dashboard_dir":                 cfg.DashboardDir,
		"parser.max_depth":              cfg.Parser.MaxDepth,
		"parser.window_tokens":          cfg.Parser.WindowTokens,
		"parser.snippet_bytes":          cfg.Parser.SnippetBytes,
		"oracle.kind":                   cfg.Oracle.Kind,
		"oracle.timeout":                cfg.Oracle.Timeout,
		"oracle.calls":                  cfg.Oracle.Calls,
		"oracle.min_confidence":         cfg.Oracle.MinConfidence,
		"oracle.script":                 cfg.Oracle.Script,
		"oracle.openai.base_url":        "",
		"oracle.openai.model":           "",
		"oracle.openai.api_key_env":     "",
		"cache.capacity":                cfg.Cache.Capacity,
		"cache.file":                    cfg.Cache.File,
		"logging.level":                 cfg.Logging.Level,
		"logging.format":                cfg.Logging.Format,
		"logging.output_dir":            cfg.Logging.OutputDir,
		"logging.max_files":             cfg.Logging.MaxFiles,
		"logging.compress":              cfg.Logging.Compress,
		"profile.output_dir":            cfg.Profile.OutputDir,
		"profile.cpu":                   cfg.Profile.CPUProfile,
		"profile.memory":                cfg.Profile.MemoryProfile,
		"profile.goroutine":             cfg.Profile.GoroutineProfile,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

var nullFloatType = reflect.TypeOf(null.Float{})

// nullFloatHook decodes numbers and numeric strings into null.Float.
// Empty strings and nil leave it unset.
func nullFloatHook(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != nullFloatType {
		return data, nil
	}
	switch d := data.(type) {
	case nil:
		return null.Float{}, nil
	case null.Float:
		return d, nil
	case string:
		if strings.TrimSpace(d) == "" {
			return null.Float{}, nil
		}
	}
	f, err := cast.ToFloat64E(data)
	if err != nil {
		return nil, fmt.Errorf("expected a number: %w", err)
	}
	return null.FloatFrom(f), nil
}
