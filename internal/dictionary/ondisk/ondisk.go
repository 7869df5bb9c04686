// Package ondisk provides a phrase table stored in a badger database, with
// an LRU cache of recently scored source phrases in front of it.
package ondisk

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/phrasegroup/internal/dictionary"
	"github.com/fyrsmithlabs/phrasegroup/internal/phrase"
	"github.com/fyrsmithlabs/phrasegroup/internal/scoring"
)

// DefaultCacheSize is the number of source phrases kept in the cache.
const DefaultCacheSize = 1000

// Config configures an on-disk table.
type Config struct {
	Name       string
	NumScores  int
	TableLimit int
	// Path is the database directory written by Write.
	Path string
	// CacheSize bounds the lookup cache. Zero means DefaultCacheSize.
	CacheSize int
}

// Table serves candidates from a badger database.
type Table struct {
	dictionary.Base

	path      string
	cacheSize int
	logger    *zap.Logger

	mu    sync.RWMutex
	db    *badger.DB
	owned bool
	cache *lru.Cache[string, *phrase.Collection]
}

// New creates a table for the database at cfg.Path. The database is opened
// at Load.
func New(cfg Config, w scoring.Weights, logger *zap.Logger) (*Table, error) {
	base, err := dictionary.NewBase(cfg.Name, cfg.NumScores, cfg.TableLimit, w)
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize < 0 {
		return nil, fmt.Errorf("%w: %s: cache-size must not be negative", dictionary.ErrConfiguration, cfg.Name)
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Table{
		Base:      base,
		path:      cfg.Path,
		cacheSize: cfg.CacheSize,
		logger:    logger.With(zap.String("table", cfg.Name)),
	}, nil
}

// NewWithDB creates a table over an already open database. Close leaves db
// open.
func NewWithDB(cfg Config, db *badger.DB, w scoring.Weights, logger *zap.Logger) (*Table, error) {
	t, err := New(cfg, w, logger)
	if err != nil {
		return nil, err
	}
	t.db = db
	return t, nil
}

// Load opens the database read-only and checks its score width.
func (t *Table) Load(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.db == nil {
		if t.path == "" {
			return fmt.Errorf("%w: %s: path is required", dictionary.ErrConfiguration, t.Name())
		}
		db, err := OpenStore(StoreConfig{Path: t.path, ReadOnly: true, Logger: t.logger})
		if err != nil {
			return fmt.Errorf("%s: %w", t.Name(), err)
		}
		t.db = db
		t.owned = true
	}

	width, err := readNumScores(t.db)
	if err != nil {
		return fmt.Errorf("%s: %w", t.Name(), err)
	}
	if width != t.NumScoreComponents() {
		return fmt.Errorf("%w: %s: database has %d scores per candidate, configured %d",
			dictionary.ErrConfiguration, t.Name(), width, t.NumScoreComponents())
	}

	cache, err := lru.New[string, *phrase.Collection](t.cacheSize)
	if err != nil {
		return fmt.Errorf("%s: create cache: %w", t.Name(), err)
	}
	t.cache = cache

	t.logger.Info("opened phrase table database",
		zap.String("path", t.path),
		zap.Int("cache_size", t.cacheSize),
	)
	return nil
}

// Lookup returns the scored, pruned candidates for src, or nil.
func (t *Table) Lookup(_ context.Context, src phrase.Phrase) (*phrase.Collection, error) {
	t.mu.RLock()
	db, cache := t.db, t.cache
	t.mu.RUnlock()
	if db == nil || cache == nil {
		return nil, fmt.Errorf("%w: %s: lookup before load", dictionary.ErrConfiguration, t.Name())
	}

	key := src.String()
	if coll, ok := cache.Get(key); ok {
		return coll, nil
	}

	targets, err := readTargets(db, src)
	if err != nil {
		return nil, fmt.Errorf("%s: reading %q: %w", t.Name(), key, err)
	}

	var coll *phrase.Collection
	if len(targets) > 0 {
		coll = t.collection(src, targets)
	}
	cache.Add(key, coll)
	return coll, nil
}

// PrefixExists warms the cache for src.
func (t *Table) PrefixExists(ctx context.Context, src phrase.Phrase) {
	if _, err := t.Lookup(ctx, src); err != nil {
		t.logger.Debug("prefix probe failed", zap.String("source", src.String()), zap.Error(err))
	}
}

func (t *Table) collection(src phrase.Phrase, targets []storedTarget) *phrase.Collection {
	features := t.Features(t)
	coll := phrase.NewCollection()
	for _, st := range targets {
		tp := phrase.NewTargetPhrase(phrase.Parse(st.Words), st.Alignment)
		tp.Scores.Assign(t.Name(), st.Scores)
		tp.EvaluateInIsolation(src, features, t.Weights())
		coll.Add(tp)
	}
	coll.Prune(t.TableLimit())
	return coll
}

// Cached returns the number of source phrases in the cache.
func (t *Table) Cached() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.cache == nil {
		return 0
	}
	return t.cache.Len()
}

// Close closes the database if the table opened it.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.db == nil || !t.owned {
		return nil
	}
	err := t.db.Close()
	t.db = nil
	t.cache = nil
	if err != nil {
		return fmt.Errorf("%s: close: %w", t.Name(), err)
	}
	return nil
}
