package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/phrasegroup/internal/logging"
	"github.com/fyrsmithlabs/phrasegroup/internal/scoring"
	"github.com/fyrsmithlabs/phrasegroup/internal/telemetry"
)

// Dictionary types.
const (
	TypeMemory      = "memory"
	TypeSuffixArray = "suffixarray"
	TypeOnDisk      = "ondisk"
	TypeGroup       = "group"
)

// DefaultTableLimit is the number of targets kept per source phrase when a
// dictionary does not set table-limit.
const DefaultTableLimit = 20

// typeAliases maps the feature names used by decoder ini files onto the
// dictionary types.
var typeAliases = map[string]string{
	"phrasedictionarymemory":        TypeMemory,
	"phrasedictionaryalsuffixarray": TypeSuffixArray,
	"phrasedictionaryondisk":        TypeOnDisk,
	"phrasedictionarygroup":         TypeGroup,
}

// Config holds the complete phrasegroup configuration.
//
// Dictionaries are built in declared order: a group may only name members
// declared before it.
type Config struct {
	Engine       EngineConfig       `koanf:"engine"`
	Dictionaries []DictionaryConfig `koanf:"dictionaries"`
	Weights      map[string]Floats  `koanf:"weights"`
	Server       ServerConfig       `koanf:"server"`
	Logging      *logging.Config    `koanf:"logging"`
	Telemetry    *telemetry.Config  `koanf:"telemetry"`
}

// EngineConfig holds sentence processing settings.
type EngineConfig struct {
	// Threads is the number of sentences translated concurrently.
	Threads int `koanf:"threads"`

	// MaxPhraseLength bounds the source spans looked up per sentence.
	MaxPhraseLength int `koanf:"max-phrase-length"`

	// OutputLimit is the number of options kept per span in results.
	// Zero keeps all.
	OutputLimit int `koanf:"output-limit"`

	// Decode names the dictionaries queried directly. Empty means every
	// dictionary that is not a member of some group.
	Decode CSV `koanf:"decode"`

	// GrammarCredentials is a service account file for gs:// grammar stores.
	GrammarCredentials string `koanf:"grammar-credentials"`
}

// DictionaryConfig configures one phrase dictionary.
type DictionaryConfig struct {
	Name        string `koanf:"name"`
	Type        string `koanf:"type"`
	NumFeatures int    `koanf:"num-features"`

	// Path is the rule table (memory), the database directory (ondisk) or
	// the grammar store location (suffixarray, local dir or gs://bucket/prefix).
	Path string `koanf:"path"`

	// TableLimit keeps the best N targets per source. Nil means
	// DefaultTableLimit, zero means unlimited.
	TableLimit *int `koanf:"table-limit"`

	// Group only.
	Members       CSV    `koanf:"members"`
	Restrict      bool   `koanf:"restrict"`
	DefaultScores Floats `koanf:"default-scores"`

	// Ondisk only.
	CacheSize int `koanf:"cache-size"`
}

// Limit returns the effective table limit.
func (d DictionaryConfig) Limit() int {
	if d.TableLimit == nil {
		return DefaultTableLimit
	}
	return *d.TableLimit
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"http-port"`
	ShutdownTimeout Duration `koanf:"shutdown-timeout"`
}

// NewDefaultConfig returns a configuration with defaults and no dictionaries.
func NewDefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Threads:         1,
			MaxPhraseLength: 20,
			OutputLimit:     20,
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            9090,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Logging:   logging.NewDefaultConfig(),
		Telemetry: telemetry.NewDefaultConfig(),
	}
}

// applyDefaults fills values that zero-valued YAML entries leave unset.
func applyDefaults(cfg *Config) {
	if cfg.Engine.Threads == 0 {
		cfg.Engine.Threads = 1
	}
	if cfg.Engine.MaxPhraseLength == 0 {
		cfg.Engine.MaxPhraseLength = 20
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Logging == nil {
		cfg.Logging = logging.NewDefaultConfig()
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = telemetry.NewDefaultConfig()
	}
	for i := range cfg.Dictionaries {
		d := &cfg.Dictionaries[i]
		d.Type = normalizeType(d.Type)
		if d.Type == TypeOnDisk && d.CacheSize == 0 {
			d.CacheSize = 1000
		}
	}
}

func normalizeType(t string) string {
	lower := strings.ToLower(strings.TrimSpace(t))
	if alias, ok := typeAliases[lower]; ok {
		return alias
	}
	return lower
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	if c.Engine.Threads < 1 {
		errs = append(errs, fmt.Errorf("engine.threads must be at least 1, got %d", c.Engine.Threads))
	}
	if c.Engine.MaxPhraseLength < 1 {
		errs = append(errs, fmt.Errorf("engine.max-phrase-length must be at least 1, got %d", c.Engine.MaxPhraseLength))
	}
	if c.Engine.OutputLimit < 0 {
		errs = append(errs, fmt.Errorf("engine.output-limit cannot be negative"))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.http-port must be between 1 and 65535, got %d", c.Server.Port))
	}

	errs = append(errs, c.validateDictionaries()...)

	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("logging: %w", err))
		}
	}
	if c.Telemetry != nil {
		if err := c.Telemetry.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) validateDictionaries() []error {
	var errs []error
	if len(c.Dictionaries) == 0 {
		return []error{errors.New("at least one dictionary is required")}
	}

	declared := make(map[string]DictionaryConfig, len(c.Dictionaries))
	for i, d := range c.Dictionaries {
		if d.Name == "" {
			errs = append(errs, fmt.Errorf("dictionaries[%d]: name is required", i))
			continue
		}
		if _, dup := declared[d.Name]; dup {
			errs = append(errs, fmt.Errorf("dictionary %s: duplicate name", d.Name))
		}
		if d.NumFeatures < 1 {
			errs = append(errs, fmt.Errorf("dictionary %s: num-features must be at least 1", d.Name))
		}
		if d.TableLimit != nil && *d.TableLimit < 0 {
			errs = append(errs, fmt.Errorf("dictionary %s: table-limit cannot be negative", d.Name))
		}

		switch d.Type {
		case TypeMemory, TypeSuffixArray, TypeOnDisk:
			if d.Path == "" {
				errs = append(errs, fmt.Errorf("dictionary %s: path is required for type %s", d.Name, d.Type))
			}
			if len(d.Members) > 0 {
				errs = append(errs, fmt.Errorf("dictionary %s: members are only valid for groups", d.Name))
			}
		case TypeGroup:
			if len(d.Members) == 0 {
				errs = append(errs, fmt.Errorf("dictionary %s: group needs at least one member", d.Name))
			}
			for _, m := range d.Members {
				if _, ok := declared[m]; !ok {
					errs = append(errs, fmt.Errorf("dictionary %s: member %s must be declared before the group", d.Name, m))
				}
			}
			if len(d.DefaultScores) > 0 && len(d.DefaultScores) != d.NumFeatures {
				errs = append(errs, fmt.Errorf("dictionary %s: default-scores has %d values, expected %d",
					d.Name, len(d.DefaultScores), d.NumFeatures))
			}
		case "":
			errs = append(errs, fmt.Errorf("dictionary %s: type is required", d.Name))
		default:
			errs = append(errs, fmt.Errorf("dictionary %s: unknown type %q", d.Name, d.Type))
		}
		if d.CacheSize < 0 {
			errs = append(errs, fmt.Errorf("dictionary %s: cache-size cannot be negative", d.Name))
		}

		declared[d.Name] = d
	}

	for _, name := range c.Engine.Decode {
		if _, ok := declared[name]; !ok {
			errs = append(errs, fmt.Errorf("engine.decode: unknown dictionary %s", name))
		}
	}
	for name, w := range c.Weights {
		d, ok := declared[name]
		if !ok {
			errs = append(errs, fmt.Errorf("weights: unknown dictionary %s", name))
			continue
		}
		if len(w) != d.NumFeatures {
			errs = append(errs, fmt.Errorf("weights: %s has %d values, expected %d", name, len(w), d.NumFeatures))
		}
	}
	return errs
}

// DecodingTables returns the names of dictionaries queried directly.
func (c *Config) DecodingTables() []string {
	if len(c.Engine.Decode) > 0 {
		return append([]string(nil), c.Engine.Decode...)
	}
	members := make(map[string]bool)
	for _, d := range c.Dictionaries {
		for _, m := range d.Members {
			members[m] = true
		}
	}
	var names []string
	for _, d := range c.Dictionaries {
		if !members[d.Name] {
			names = append(names, d.Name)
		}
	}
	return names
}

// ScoringWeights converts the configured weights.
func (c *Config) ScoringWeights() scoring.Weights {
	out := make(scoring.Weights, len(c.Weights))
	for name, w := range c.Weights {
		out[name] = append([]float32(nil), w...)
	}
	return out
}
