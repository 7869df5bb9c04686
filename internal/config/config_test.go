package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/phrasegroup/internal/logging"
)

const groupYAML = `
engine:
  threads: 2
  max-phrase-length: 5
  output-limit: 10
dictionaries:
  - name: TM0
    type: PhraseDictionaryMemory
    num-features: 2
    path: tm0.txt
  - name: TM1
    type: memory
    num-features: 1
    path: tm1.txt.gz
    table-limit: 0
  - name: G
    type: group
    num-features: 3
    members: TM0,TM1
    restrict: true
    default-scores: "0 0 -100"
weights:
  G: [1, 0.5, 0.25]
logging:
  level: trace
server:
  http-port: 8088
  shutdown-timeout: 3s
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_GroupConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, groupYAML))
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Engine.Threads)
	assert.Equal(t, 5, cfg.Engine.MaxPhraseLength)
	assert.Equal(t, 10, cfg.Engine.OutputLimit)

	require.Len(t, cfg.Dictionaries, 3)
	tm0, tm1, g := cfg.Dictionaries[0], cfg.Dictionaries[1], cfg.Dictionaries[2]
	assert.Equal(t, TypeMemory, tm0.Type, "decoder feature names are accepted")
	assert.Equal(t, DefaultTableLimit, tm0.Limit())
	assert.Equal(t, 0, tm1.Limit(), "explicit zero means unlimited")

	assert.Equal(t, TypeGroup, g.Type)
	assert.Equal(t, CSV{"TM0", "TM1"}, g.Members)
	assert.True(t, g.Restrict)
	assert.Equal(t, Floats{0, 0, -100}, g.DefaultScores)

	assert.Equal(t, []float32{1, 0.5, 0.25}, cfg.ScoringWeights().For("G"))
	assert.Equal(t, logging.TraceLevel, cfg.Logging.Level)
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout.Duration())

	assert.Equal(t, []string{"G"}, cfg.DecodingTables(), "group members are not decoded directly")
}

func TestLoad_KeepsDefaults(t *testing.T) {
	cfg, err := LoadBytes([]byte(`
dictionaries:
  - {name: PT, type: ondisk, num-features: 4, path: /data/pt}
`))
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Engine.Threads)
	assert.Equal(t, 20, cfg.Engine.MaxPhraseLength)
	assert.Equal(t, 20, cfg.Engine.OutputLimit)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, zapcore.InfoLevel, cfg.Logging.Level)
	assert.Equal(t, "phrasegroup", cfg.Logging.Fields["service"])
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 1000, cfg.Dictionaries[0].CacheSize)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PHRASEGROUP_ENGINE_THREADS", "4")
	t.Setenv("PHRASEGROUP_ENGINE_MAX_PHRASE_LENGTH", "7")
	t.Setenv("PHRASEGROUP_ENGINE_DECODE", "TM0,G")
	t.Setenv("PHRASEGROUP_SERVER_HTTP_PORT", "7000")
	t.Setenv("PHRASEGROUP_LOGGING_FORMAT", "console")

	cfg, err := Load(writeConfig(t, groupYAML))
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Engine.Threads)
	assert.Equal(t, 7, cfg.Engine.MaxPhraseLength)
	assert.Equal(t, CSV{"TM0", "G"}, cfg.Engine.Decode)
	assert.Equal(t, []string{"TM0", "G"}, cfg.DecodingTables())
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"PHRASEGROUP_ENGINE_THREADS":             "engine.threads",
		"PHRASEGROUP_ENGINE_MAX_PHRASE_LENGTH":   "engine.max-phrase-length",
		"PHRASEGROUP_SERVER_HTTP_PORT":           "server.http-port",
		"PHRASEGROUP_TELEMETRY_SERVICE_NAME":     "telemetry.service-name",
		"PHRASEGROUP_ENGINE_GRAMMAR_CREDENTIALS": "engine.grammar-credentials",
		"PHRASEGROUP_DEBUG":                      "debug",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}

func TestLoad_FileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to open config file")

	_, err = Load(t.TempDir())
	assert.ErrorContains(t, err, "is a directory")

	big := writeConfig(t, "# "+strings.Repeat("x", maxConfigFileSize))
	_, err = Load(big)
	assert.ErrorContains(t, err, "too large")

	_, err = Load(writeConfig(t, "engine: [unclosed"))
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestValidate(t *testing.T) {
	limit := -1
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "threads", mutate: func(c *Config) { c.Engine.Threads = 0 }, wantErr: "engine.threads"},
		{name: "phrase length", mutate: func(c *Config) { c.Engine.MaxPhraseLength = 0 }, wantErr: "max-phrase-length"},
		{name: "port", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: "http-port"},
		{name: "no dictionaries", mutate: func(c *Config) { c.Dictionaries = nil }, wantErr: "at least one dictionary"},
		{name: "duplicate", mutate: func(c *Config) {
			c.Dictionaries = append(c.Dictionaries, c.Dictionaries[0])
		}, wantErr: "duplicate name"},
		{name: "unknown type", mutate: func(c *Config) { c.Dictionaries[0].Type = "hash" }, wantErr: `unknown type "hash"`},
		{name: "missing path", mutate: func(c *Config) { c.Dictionaries[0].Path = "" }, wantErr: "path is required"},
		{name: "features", mutate: func(c *Config) { c.Dictionaries[0].NumFeatures = 0 }, wantErr: "num-features"},
		{name: "table limit", mutate: func(c *Config) { c.Dictionaries[0].TableLimit = &limit }, wantErr: "table-limit"},
		{name: "empty group", mutate: func(c *Config) { c.Dictionaries[2].Members = nil }, wantErr: "at least one member"},
		{name: "forward member", mutate: func(c *Config) {
			c.Dictionaries[2].Members = CSV{"TM0", "TM9"}
		}, wantErr: "member TM9 must be declared before the group"},
		{name: "default scores", mutate: func(c *Config) {
			c.Dictionaries[2].DefaultScores = Floats{0}
		}, wantErr: "default-scores has 1 values, expected 3"},
		{name: "decode", mutate: func(c *Config) { c.Engine.Decode = CSV{"X"} }, wantErr: "unknown dictionary X"},
		{name: "weights width", mutate: func(c *Config) {
			c.Weights = map[string]Floats{"TM0": {1}}
		}, wantErr: "weights: TM0 has 1 values, expected 2"},
		{name: "logging", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "logging"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadBytes([]byte(groupYAML))
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestFloats_UnmarshalText(t *testing.T) {
	var f Floats
	require.NoError(t, f.UnmarshalText([]byte("0.5, -1  2")))
	assert.Equal(t, Floats{0.5, -1, 2}, f)

	assert.ErrorContains(t, f.UnmarshalText([]byte("1,x")), `invalid score "x"`)
}

func TestCSV_UnmarshalText(t *testing.T) {
	var c CSV
	require.NoError(t, c.UnmarshalText([]byte(" TM0, ,TM1 ")))
	assert.Equal(t, CSV{"TM0", "TM1"}, c)
	assert.Equal(t, "TM0,TM1", c.String())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("250ms")))
	assert.Equal(t, 250*time.Millisecond, d.Duration())
	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
