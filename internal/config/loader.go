// Package config provides configuration loading for phrasegroup.
package config

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/phrasegroup/internal/logging"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "PHRASEGROUP_"
)

// Load reads configuration from a YAML file, then overrides with environment
// variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (PHRASEGROUP_ENGINE_THREADS, ...)
//  2. YAML config file
//  3. Defaults
//
// An empty path skips the file. Files larger than 1MB are rejected.
//
// # Environment Variable Mapping
//
// The prefix is stripped, the first underscore separates the section and the
// remaining underscores become hyphens:
//
//	PHRASEGROUP_ENGINE_THREADS           -> engine.threads
//	PHRASEGROUP_ENGINE_MAX_PHRASE_LENGTH -> engine.max-phrase-length
//	PHRASEGROUP_SERVER_HTTP_PORT         -> server.http-port
//
// Dictionaries can only be configured in the file.
func Load(path string) (*Config, error) {
	var content []byte
	if path != "" {
		// Open once and check the descriptor to avoid a TOCTOU race.
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("config path %s is a directory", path)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
		}

		content, err = io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg, err := LoadBytes(content)
	if err != nil {
		if path != "" {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return nil, err
	}
	return cfg, nil
}

// LoadBytes parses YAML content, applies environment overrides, defaults and
// validation.
func LoadBytes(content []byte) (*Config, error) {
	if len(content) > maxConfigFileSize {
		return nil, fmt.Errorf("config too large: %d bytes (max %d)", len(content), maxConfigFileSize)
	}

	k := koanf.New(".")
	if len(content) > 0 {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := NewDefaultConfig()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			TagName:          "koanf",
			Result:           cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				levelHook,
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.TextUnmarshallerHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// envKey maps PHRASEGROUP_SERVER_HTTP_PORT to server.http-port.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + strings.ReplaceAll(parts[1], "_", "-")
}

// levelHook accepts the custom "trace" level name for zapcore.Level fields.
func levelHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(zapcore.Level(0)) {
		return data, nil
	}
	return logging.LevelFromString(strings.ToLower(reflect.ValueOf(data).String()))
}
