package phrase

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/fyrsmithlabs/phrasegroup/internal/scoring"
)

// AlignPoint links a source word position to a target word position.
type AlignPoint struct {
	Source int `json:"s"`
	Target int `json:"t"`
}

// TargetPhrase is one translation candidate for a source phrase.
type TargetPhrase struct {
	Words     Phrase
	Alignment []AlignPoint

	// Scores holds dense scores keyed by producer name.
	Scores *scoring.Breakdown

	// Extra holds opaque, non-dense score caches keyed by producer.
	Extra map[string]any

	// FutureScore accumulates estimated scores of stateful features.
	FutureScore float32
	// FullScore is the weighted score plus FutureScore.
	FullScore float32
}

// NewTargetPhrase returns a candidate with an empty breakdown. The alignment
// is a set: it is copied, sorted and stripped of duplicate points.
func NewTargetPhrase(words Phrase, alignment []AlignPoint) *TargetPhrase {
	return &TargetPhrase{
		Words:     words,
		Alignment: normalizeAlignment(alignment),
		Scores:    scoring.NewBreakdown(),
	}
}

func normalizeAlignment(alignment []AlignPoint) []AlignPoint {
	if len(alignment) == 0 {
		return nil
	}
	out := slices.Clone(alignment)
	slices.SortFunc(out, func(a, b AlignPoint) int {
		if c := cmp.Compare(a.Source, b.Source); c != 0 {
			return c
		}
		return cmp.Compare(a.Target, b.Target)
	})
	return slices.Compact(out)
}

// Clone returns a deep copy that shares nothing mutable with tp.
func (tp *TargetPhrase) Clone() *TargetPhrase {
	out := &TargetPhrase{
		Words:       append(Phrase(nil), tp.Words...),
		Alignment:   append([]AlignPoint(nil), tp.Alignment...),
		Scores:      tp.Scores.Clone(),
		FutureScore: tp.FutureScore,
		FullScore:   tp.FullScore,
	}
	if len(tp.Extra) > 0 {
		out.Extra = make(map[string]any, len(tp.Extra))
		for k, v := range tp.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// SetExtra stores an extra score cache entry, replacing any previous value.
func (tp *TargetPhrase) SetExtra(producer string, value any) {
	if tp.Extra == nil {
		tp.Extra = make(map[string]any)
	}
	tp.Extra[producer] = value
}

// Hash is a structural hash of the surface content: words plus alignment.
// Candidates with equal Hash may still differ; confirm with SameSurface.
func (tp *TargetPhrase) Hash() uint64 {
	d := xxhash.New()
	var buf [8]byte
	for _, w := range tp.Words {
		_, _ = d.WriteString(w)
		_, _ = d.Write([]byte{0})
	}
	_, _ = d.Write([]byte{1})
	for _, a := range tp.Alignment {
		binary.LittleEndian.PutUint32(buf[:4], uint32(a.Source))
		binary.LittleEndian.PutUint32(buf[4:], uint32(a.Target))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

// SameSurface reports whether both candidates have the same words and alignment.
func (tp *TargetPhrase) SameSurface(other *TargetPhrase) bool {
	if !tp.Words.Equal(other.Words) || len(tp.Alignment) != len(other.Alignment) {
		return false
	}
	for i := range tp.Alignment {
		if tp.Alignment[i] != other.Alignment[i] {
			return false
		}
	}
	return true
}

// EvaluateInIsolation runs the given features over tp and recomputes its
// future and full scores.
func (tp *TargetPhrase) EvaluateInIsolation(src Phrase, ffs []FeatureFunction, w scoring.Weights) {
	if len(ffs) == 0 {
		return
	}
	estimated := scoring.NewBreakdown()
	for _, ff := range ffs {
		ff.EvaluateInIsolation(src, tp, tp.Scores, estimated)
	}
	tp.FutureScore += estimated.WeightedScore(w)
	tp.FullScore = tp.Scores.WeightedScore(w) + tp.FutureScore
}

func (tp *TargetPhrase) String() string {
	align := make([]string, len(tp.Alignment))
	for i, a := range tp.Alignment {
		align[i] = fmt.Sprintf("%d-%d", a.Source, a.Target)
	}
	return fmt.Sprintf("%s [%s] %.4f", tp.Words, strings.Join(align, " "), tp.FullScore)
}
