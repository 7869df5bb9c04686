// Package memory provides a phrase table held entirely in memory, loaded
// from a text rule table.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/phrasegroup/internal/dictionary"
	"github.com/fyrsmithlabs/phrasegroup/internal/phrase"
	"github.com/fyrsmithlabs/phrasegroup/internal/ruletable"
	"github.com/fyrsmithlabs/phrasegroup/internal/scoring"
)

// Config configures a memory table.
type Config struct {
	Name       string
	NumScores  int
	TableLimit int
	// Path is the rule table to read at Load. Empty means the table is
	// filled with SetRules.
	Path string
}

// Table maps source phrases to pruned, scored candidate collections.
type Table struct {
	dictionary.Base

	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[string]*phrase.Collection
}

// New creates an empty table.
func New(cfg Config, w scoring.Weights, logger *zap.Logger) (*Table, error) {
	base, err := dictionary.NewBase(cfg.Name, cfg.NumScores, cfg.TableLimit, w)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Table{
		Base:    base,
		path:    cfg.Path,
		logger:  logger,
		entries: make(map[string]*phrase.Collection),
	}, nil
}

// Load reads the configured rule table, if any.
func (t *Table) Load(ctx context.Context) error {
	if t.path == "" {
		return nil
	}
	start := time.Now()
	rules, err := ruletable.LoadFile(t.path, t.NumScoreComponents())
	if err != nil {
		return fmt.Errorf("%s: %w", t.Name(), err)
	}
	t.SetRules(rules)

	t.logger.Info("loaded phrase table",
		zap.String("table", t.Name()),
		zap.String("path", t.path),
		zap.Int("rules", len(rules)),
		zap.Int("sources", t.Len()),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// SetRules replaces the table content with rules.
func (t *Table) SetRules(rules []ruletable.Rule) {
	entries := t.index(rules)
	t.mu.Lock()
	t.entries = entries
	t.mu.Unlock()
}

// Clear drops every entry.
func (t *Table) Clear() {
	t.mu.Lock()
	t.entries = make(map[string]*phrase.Collection)
	t.mu.Unlock()
}

// Len returns the number of distinct source phrases.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Lookup returns the shared collection for src, or nil.
func (t *Table) Lookup(_ context.Context, src phrase.Phrase) (*phrase.Collection, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.entries[src.String()], nil
}

// index scores every rule with this table's own feature and keeps the best
// TableLimit targets per source.
func (t *Table) index(rules []ruletable.Rule) map[string]*phrase.Collection {
	entries := make(map[string]*phrase.Collection)
	features := t.Features(t)
	for _, rule := range rules {
		tp := rule.TargetPhrase(t.Name())
		tp.EvaluateInIsolation(rule.Source, features, t.Weights())

		key := rule.Source.String()
		coll, ok := entries[key]
		if !ok {
			coll = phrase.NewCollection()
			entries[key] = coll
		}
		coll.Add(tp)
	}
	for _, coll := range entries {
		coll.Prune(t.TableLimit())
	}
	return entries
}
