package dictionary

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/phrasegroup/internal/phrase"
	"github.com/fyrsmithlabs/phrasegroup/internal/task"
)

var (
	// ErrConfiguration marks fatal configuration problems found at load or
	// construction time.
	ErrConfiguration = errors.New("configuration error")

	// ErrNoTask is returned when a lookup that needs the sentence context
	// is called without one. It indicates a bug in the caller.
	ErrNoTask = errors.New("lookup called without a translation task")

	// ErrGrammarLoad is returned when a per-sentence grammar cannot be
	// loaded. It aborts the current sentence only.
	ErrGrammarLoad = errors.New("grammar load failed")

	// ErrChartNotSupported is returned by dictionaries that cannot serve
	// hierarchical (chart) decoding.
	ErrChartNotSupported = errors.New("phrase table used in chart decoder")
)

// PhraseDictionary is a member model: a named score producer that maps a
// source phrase to scored target phrase candidates.
type PhraseDictionary interface {
	phrase.FeatureFunction

	// Load prepares the dictionary. It runs once, in declaration order.
	Load(ctx context.Context) error

	// InitializeForInput is called before a sentence is processed.
	InitializeForInput(ctx context.Context, t *task.Task) error

	// Lookup returns the candidates for src. The sentence task, when
	// required, is taken from ctx (see task.WithTask). A dictionary with no
	// entry for src returns an empty or nil collection and no error.
	Lookup(ctx context.Context, src phrase.Phrase) (*phrase.Collection, error)

	// CleanUpAfterSentence releases per-sentence state. It must be safe to
	// call more than once for the same task.
	CleanUpAfterSentence(ctx context.Context, t *task.Task)

	// CreateRuleLookupManager returns a chart rule lookup manager.
	CreateRuleLookupManager() (RuleLookupManager, error)

	// TableLimit is the maximum number of candidates kept per source
	// phrase; 0 means unlimited.
	TableLimit() int
}

// PrefixProber is implemented by dictionaries that can warm up for a source
// phrase before lookups. Probing is advisory and its outcome is ignored.
type PrefixProber interface {
	PrefixExists(ctx context.Context, src phrase.Phrase)
}

// RuleLookupManager serves rule lookups for chart decoding. No dictionary in
// this module implements it; chart decoding lives outside.
type RuleLookupManager interface {
	Close() error
}
