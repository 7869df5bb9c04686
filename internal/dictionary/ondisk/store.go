package ondisk

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/phrasegroup/internal/phrase"
	"github.com/fyrsmithlabs/phrasegroup/internal/ruletable"
)

var (
	sourcePrefix  = []byte("src/")
	numScoresKey  = []byte("meta/num-scores")
	errNoMetadata = errors.New("missing table metadata")
)

// StoreConfig configures the badger database behind a table.
type StoreConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps the database in memory, for tests.
	InMemory bool
	// ReadOnly opens an existing database without write access.
	ReadOnly bool
	Logger   *zap.Logger
}

// badgerLogger routes badger's own logging through zap.
type badgerLogger struct {
	logger *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warnf(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

// OpenStore opens the database described by cfg.
func OpenStore(cfg StoreConfig) (*badger.DB, error) {
	var opts badger.Options
	switch {
	case cfg.InMemory:
		opts = badger.DefaultOptions("").WithInMemory(true)
	case cfg.Path == "":
		return nil, errors.New("path is required for persistent database")
	case cfg.ReadOnly:
		if _, err := os.Stat(cfg.Path); err != nil {
			return nil, fmt.Errorf("open phrase table database: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithReadOnly(true)
	default:
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger.Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return db, nil
}

// storedTarget is the persisted form of one candidate.
type storedTarget struct {
	Words     string              `json:"w"`
	Alignment []phrase.AlignPoint `json:"a,omitempty"`
	Scores    []float32           `json:"s"`
}

func sourceKey(src phrase.Phrase) []byte {
	return append(append([]byte(nil), sourcePrefix...), src.String()...)
}

// Write stores rules in db, grouped by source phrase, and records the score
// width. Existing entries for the same sources are replaced.
func Write(db *badger.DB, rules []ruletable.Rule, numScores int) (int, error) {
	bySource := make(map[string][]storedTarget)
	var order []string
	for _, r := range rules {
		if len(r.Scores) != numScores {
			return 0, fmt.Errorf("rule %q ||| %q: got %d scores, expected %d", r.Source, r.Target, len(r.Scores), numScores)
		}
		key := r.Source.String()
		if _, ok := bySource[key]; !ok {
			order = append(order, key)
		}
		bySource[key] = append(bySource[key], storedTarget{
			Words:     r.Target.String(),
			Alignment: r.Alignment,
			Scores:    r.Scores,
		})
	}

	wb := db.NewWriteBatch()
	defer wb.Cancel()

	for _, key := range order {
		value, err := json.Marshal(bySource[key])
		if err != nil {
			return 0, fmt.Errorf("encode %q: %w", key, err)
		}
		if err := wb.Set(sourceKey(phrase.Parse(key)), value); err != nil {
			return 0, fmt.Errorf("write %q: %w", key, err)
		}
	}

	var width [8]byte
	binary.LittleEndian.PutUint64(width[:], uint64(numScores))
	if err := wb.Set(numScoresKey, width[:]); err != nil {
		return 0, fmt.Errorf("write metadata: %w", err)
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush: %w", err)
	}
	return len(order), nil
}

// readNumScores returns the score width recorded by Write.
func readNumScores(db *badger.DB) (int, error) {
	var n int
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(numScoresKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errNoMetadata
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("corrupt metadata: %d bytes", len(val))
			}
			n = int(binary.LittleEndian.Uint64(val))
			return nil
		})
	})
	return n, err
}

// readTargets returns the stored candidates for src, or nil.
func readTargets(db *badger.DB, src phrase.Phrase) ([]storedTarget, error) {
	var targets []storedTarget
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sourceKey(src))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &targets)
		})
	})
	return targets, err
}
