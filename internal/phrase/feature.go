package phrase

import "github.com/fyrsmithlabs/phrasegroup/internal/scoring"

// FeatureFunction is a named score producer with a fixed number of dense
// score components.
type FeatureFunction interface {
	// Name identifies the producer in breakdowns and weights.
	Name() string

	// NumScoreComponents is fixed for the lifetime of the feature.
	NumScoreComponents() int

	// EvaluateInIsolation scores tp independently of any context. Dense
	// scores go into scores, estimates of context-dependent scores go
	// into estimated.
	EvaluateInIsolation(src Phrase, tp *TargetPhrase, scores, estimated *scoring.Breakdown)
}
