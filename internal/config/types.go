package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration wraps time.Duration for text unmarshaling (YAML, env vars).
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// CSV is a list of names written either as a YAML list or as one
// comma-separated string ("TM0,TM1").
type CSV []string

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *CSV) UnmarshalText(text []byte) error {
	var out CSV
	for _, part := range strings.Split(string(text), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*c = out
	return nil
}

func (c CSV) String() string {
	return strings.Join(c, ",")
}

// Floats is a score vector written either as a YAML list or as one string
// separated by commas or spaces ("0 -1" or "0,-1").
type Floats []float32

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Floats) UnmarshalText(text []byte) error {
	fields := strings.FieldsFunc(string(text), func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	out := make(Floats, 0, len(fields))
	for _, field := range fields {
		v, err := strconv.ParseFloat(field, 32)
		if err != nil {
			return fmt.Errorf("invalid score %q: %w", field, err)
		}
		out = append(out, float32(v))
	}
	*f = out
	return nil
}
