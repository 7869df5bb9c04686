package logging

import (
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration.
type Config struct {
	Level      zapcore.Level     `koanf:"level"`
	Format     string            `koanf:"format"`
	Output     OutputConfig      `koanf:"output"`
	Sampling   SamplingConfig    `koanf:"sampling"`
	Caller     CallerConfig      `koanf:"caller"`
	Stacktrace StacktraceConfig  `koanf:"stacktrace"`
	Fields     map[string]string `koanf:"fields"`
}

// OutputConfig controls where logs are written. Stdout carries command
// output, so console logs go to stderr.
type OutputConfig struct {
	Stderr bool `koanf:"stderr"`
	OTEL   bool `koanf:"otel"`
}

// SamplingConfig controls log volume reduction. Levels are keyed by level
// name ("trace", "debug", "info", "warn"); levels without an entry are not
// sampled. Error and above are never sampled.
type SamplingConfig struct {
	Enabled bool                           `koanf:"enabled"`
	Tick    time.Duration                  `koanf:"tick"`
	Levels  map[string]LevelSamplingConfig `koanf:"levels"`
}

// LevelSamplingConfig defines the sampling rate of one level per tick.
type LevelSamplingConfig struct {
	Initial    int `koanf:"initial"`
	Thereafter int `koanf:"thereafter"`
}

// CallerConfig controls caller information in logs.
type CallerConfig struct {
	Enabled bool `koanf:"enabled"`
	Skip    int  `koanf:"skip"`
}

// StacktraceConfig controls stacktrace inclusion.
type StacktraceConfig struct {
	Level zapcore.Level `koanf:"level"`
}

// NewDefaultConfig returns config with production-ready defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Output: OutputConfig{
			Stderr: true,
		},
		Sampling: SamplingConfig{
			Enabled: true,
			Tick:    time.Second,
			Levels:  DefaultLevelSamplingConfig(),
		},
		Caller: CallerConfig{
			Enabled: true,
			Skip:    1,
		},
		Stacktrace: StacktraceConfig{
			Level: zapcore.ErrorLevel,
		},
		Fields: map[string]string{
			"service": "phrasegroup",
		},
	}
}

// DefaultLevelSamplingConfig returns default sampling config by level.
// Per-sentence debug logs dominate volume in batch runs.
func DefaultLevelSamplingConfig() map[string]LevelSamplingConfig {
	return map[string]LevelSamplingConfig{
		"trace": {Initial: 1, Thereafter: 0},
		"debug": {Initial: 100, Thereafter: 100},
		"info":  {Initial: 100, Thereafter: 10},
	}
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	}
	if !c.Output.Stderr && !c.Output.OTEL {
		return fmt.Errorf("at least one output must be enabled (stderr or otel)")
	}
	if c.Sampling.Enabled {
		if c.Sampling.Tick <= 0 {
			return fmt.Errorf("sampling tick must be > 0 when sampling enabled")
		}
		for name, rate := range c.Sampling.Levels {
			lvl, err := LevelFromString(name)
			if err != nil {
				return fmt.Errorf("sampling level %q: %w", name, err)
			}
			if lvl >= zapcore.ErrorLevel {
				return fmt.Errorf("sampling level %q: error and above are never sampled", name)
			}
			if rate.Initial < 0 || rate.Thereafter < 0 {
				return fmt.Errorf("sampling level %q: rates must be >= 0", name)
			}
		}
	}
	if c.Caller.Enabled && c.Caller.Skip < 0 {
		return fmt.Errorf("caller skip must be >= 0, got %d", c.Caller.Skip)
	}
	for k, v := range c.Fields {
		if k == "" {
			return fmt.Errorf("field key cannot be empty")
		}
		if v == "" {
			return fmt.Errorf("field %q has empty value", k)
		}
	}
	return nil
}
