package engine

import (
	"github.com/fyrsmithlabs/phrasegroup/internal/phrase"
)

// Sentence is one input line.
type Sentence struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// TranslationOption is a snapshot of one candidate, detached from the
// dictionaries' per-sentence state.
type TranslationOption struct {
	Table       string               `json:"table"`
	Target      string               `json:"target"`
	Alignment   []phrase.AlignPoint  `json:"alignment,omitempty"`
	Scores      map[string][]float32 `json:"scores"`
	FutureScore float32              `json:"future_score"`
	FullScore   float32              `json:"full_score"`
}

// SpanOptions holds the options of the source span [Start, End).
type SpanOptions struct {
	Start   int                 `json:"start"`
	End     int                 `json:"end"`
	Source  string              `json:"source"`
	Options []TranslationOption `json:"options"`
}

// Result is the outcome of one sentence.
type Result struct {
	ID     int64         `json:"id"`
	TaskID string        `json:"task_id,omitempty"`
	Source string        `json:"source"`
	Spans  []SpanOptions `json:"spans"`

	// Err is set when the sentence failed; Error carries its text.
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// NumOptions returns the total number of options over all spans.
func (r *Result) NumOptions() int {
	n := 0
	for _, s := range r.Spans {
		n += len(s.Options)
	}
	return n
}

func snapshot(table string, tp *phrase.TargetPhrase) TranslationOption {
	opt := TranslationOption{
		Table:       table,
		Target:      tp.Words.String(),
		Scores:      make(map[string][]float32),
		FutureScore: tp.FutureScore,
		FullScore:   tp.FullScore,
	}
	if len(tp.Alignment) > 0 {
		opt.Alignment = append([]phrase.AlignPoint(nil), tp.Alignment...)
	}
	if tp.Scores != nil {
		for _, producer := range tp.Scores.Producers() {
			opt.Scores[producer] = append([]float32(nil), tp.Scores.ScoresFor(producer)...)
		}
	}
	return opt
}
