// Package ruletable reads text rule tables:
//
//	source ||| target ||| scores [||| alignment [||| counts]]
//
// Scores are space separated floats, alignment is a list of "s-t" pairs.
// Hierarchical grammars mark the left-hand side with a trailing bracketed
// label ("[X]") on both sides; it is stripped. Files ending in .gz are
// decompressed transparently.
package ruletable

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/fyrsmithlabs/phrasegroup/internal/phrase"
)

const (
	fieldSep      = "|||"
	maxLineLength = 1024 * 1024
)

// Rule is one parsed line.
type Rule struct {
	Source    phrase.Phrase
	Target    phrase.Phrase
	Scores    []float32
	Alignment []phrase.AlignPoint
	Counts    []float32
}

// Parse reads every rule from r. Each rule must carry exactly numScores scores.
func Parse(r io.Reader, numScores int) ([]Rule, error) {
	var rules []Rule
	err := Scan(r, numScores, func(rule Rule) error {
		rules = append(rules, rule)
		return nil
	})
	return rules, err
}

// Scan calls fn for every rule in r, in file order. Blank lines are skipped.
func Scan(r io.Reader, numScores int, fn func(Rule) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineLength)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		rule, err := ParseLine(text, numScores)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(rule); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading rule table: %w", err)
	}
	return nil
}

// ParseLine parses a single rule.
func ParseLine(text string, numScores int) (Rule, error) {
	fields := strings.Split(text, fieldSep)
	if len(fields) < 3 {
		return Rule{}, fmt.Errorf("expected at least 3 fields, got %d", len(fields))
	}

	rule := Rule{
		Source: stripLHS(phrase.Parse(fields[0])),
		Target: stripLHS(phrase.Parse(fields[1])),
	}
	if len(rule.Source) == 0 {
		return Rule{}, fmt.Errorf("empty source phrase")
	}

	scores, err := parseFloats(fields[2])
	if err != nil {
		return Rule{}, fmt.Errorf("scores: %w", err)
	}
	if len(scores) != numScores {
		return Rule{}, fmt.Errorf("got %d scores, expected %d", len(scores), numScores)
	}
	rule.Scores = scores

	if len(fields) > 3 {
		rule.Alignment, err = parseAlignment(fields[3])
		if err != nil {
			return Rule{}, fmt.Errorf("alignment: %w", err)
		}
	}
	if len(fields) > 4 {
		rule.Counts, err = parseFloats(fields[4])
		if err != nil {
			return Rule{}, fmt.Errorf("counts: %w", err)
		}
	}
	return rule, nil
}

// TargetPhrase builds a candidate carrying the rule's scores under producer.
func (r Rule) TargetPhrase(producer string) *phrase.TargetPhrase {
	tp := phrase.NewTargetPhrase(r.Target, r.Alignment)
	tp.Scores.Assign(producer, r.Scores)
	return tp
}

// Open opens path for reading, decompressing it when it ends in .gz.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	rc, err := Decompress(path, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return rc, nil
}

// Decompress wraps rc in a gzip reader when name ends in .gz. Closing the
// result closes rc.
func Decompress(name string, rc io.ReadCloser) (io.ReadCloser, error) {
	if !strings.HasSuffix(name, ".gz") {
		return rc, nil
	}
	zr, err := gzip.NewReader(rc)
	if err != nil {
		return nil, fmt.Errorf("opening gzip stream %s: %w", name, err)
	}
	return &gzipReadCloser{Reader: zr, under: rc}, nil
}

// LoadFile parses the whole rule table at path.
func LoadFile(path string, numScores int) ([]Rule, error) {
	rc, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening rule table: %w", err)
	}
	defer rc.Close()

	rules, err := Parse(rc, numScores)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

type gzipReadCloser struct {
	*gzip.Reader
	under io.Closer
}

func (g *gzipReadCloser) Close() error {
	zerr := g.Reader.Close()
	if err := g.under.Close(); err != nil {
		return err
	}
	return zerr
}

func stripLHS(p phrase.Phrase) phrase.Phrase {
	if n := len(p); n > 0 && isLabel(p[n-1]) {
		return p[:n-1]
	}
	return p
}

func isLabel(word string) bool {
	return len(word) > 2 && word[0] == '[' && word[len(word)-1] == ']' && !strings.Contains(word[1:len(word)-1], "][")
}

func parseFloats(field string) ([]float32, error) {
	parts := strings.Fields(field)
	out := make([]float32, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", p)
		}
		out[i] = float32(v)
	}
	return out, nil
}

func parseAlignment(field string) ([]phrase.AlignPoint, error) {
	parts := strings.Fields(field)
	out := make([]phrase.AlignPoint, 0, len(parts))
	for _, p := range parts {
		s, t, ok := strings.Cut(p, "-")
		if !ok {
			return nil, fmt.Errorf("invalid alignment point %q", p)
		}
		si, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("invalid alignment point %q", p)
		}
		ti, err := strconv.Atoi(t)
		if err != nil {
			return nil, fmt.Errorf("invalid alignment point %q", p)
		}
		out = append(out, phrase.AlignPoint{Source: si, Target: ti})
	}
	return out, nil
}
