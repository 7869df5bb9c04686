package dictionary

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/phrasegroup/internal/phrase"
	"github.com/fyrsmithlabs/phrasegroup/internal/scoring"
	"github.com/fyrsmithlabs/phrasegroup/internal/task"
)

// Base implements the parts of PhraseDictionary every table shares.
// Embed it and override what differs.
type Base struct {
	name       string
	numScores  int
	tableLimit int
	weights    scoring.Weights
}

// NewBase validates and returns the shared state of a dictionary.
func NewBase(name string, numScores, tableLimit int, w scoring.Weights) (Base, error) {
	if name == "" {
		return Base{}, fmt.Errorf("%w: dictionary name is required", ErrConfiguration)
	}
	if numScores <= 0 {
		return Base{}, fmt.Errorf("%w: %s: num-features must be > 0, got %d", ErrConfiguration, name, numScores)
	}
	if tableLimit < 0 {
		return Base{}, fmt.Errorf("%w: %s: table-limit must be >= 0, got %d", ErrConfiguration, name, tableLimit)
	}
	if err := w.Check(name, numScores); err != nil {
		return Base{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return Base{name: name, numScores: numScores, tableLimit: tableLimit, weights: w}, nil
}

func (b *Base) Name() string { return b.name }

func (b *Base) NumScoreComponents() int { return b.numScores }

func (b *Base) TableLimit() int { return b.tableLimit }

// Weights returns the weights shared by all features.
func (b *Base) Weights() scoring.Weights { return b.weights }

// Features returns the feature list a table applies to its own candidates.
func (b *Base) Features(self phrase.FeatureFunction) []phrase.FeatureFunction {
	return []phrase.FeatureFunction{self}
}

// EvaluateInIsolation is a no-op: a table's dense scores are assigned when
// its candidates are created, not derived from the phrase.
func (b *Base) EvaluateInIsolation(phrase.Phrase, *phrase.TargetPhrase, *scoring.Breakdown, *scoring.Breakdown) {
}

func (b *Base) Load(context.Context) error { return nil }

func (b *Base) InitializeForInput(context.Context, *task.Task) error { return nil }

func (b *Base) CleanUpAfterSentence(context.Context, *task.Task) {}

func (b *Base) CreateRuleLookupManager() (RuleLookupManager, error) {
	return nil, fmt.Errorf("%s: %w", b.name, ErrChartNotSupported)
}

// CheckScores verifies a candidate carries exactly NumScoreComponents
// scores for this producer.
func (b *Base) CheckScores(scores []float32) error {
	if len(scores) != b.numScores {
		return fmt.Errorf("%s: got %d scores, expected %d", b.name, len(scores), b.numScores)
	}
	return nil
}
