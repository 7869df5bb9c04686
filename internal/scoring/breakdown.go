// Package scoring holds dense per-producer score vectors and the weights used
// to collapse them into a single model score.
package scoring

import (
	"fmt"
	"sort"
)

// Breakdown maps a score producer (a feature function name) to its dense
// score components. A producer absent from the map scores zero everywhere.
type Breakdown struct {
	dense map[string][]float32
}

// NewBreakdown returns an empty breakdown.
func NewBreakdown() *Breakdown {
	return &Breakdown{dense: make(map[string][]float32)}
}

// Clone returns a deep copy. Clone of nil returns an empty breakdown.
func (b *Breakdown) Clone() *Breakdown {
	out := NewBreakdown()
	if b == nil {
		return out
	}
	for name, scores := range b.dense {
		out.dense[name] = append([]float32(nil), scores...)
	}
	return out
}

// Assign replaces the scores of producer with a copy of scores.
func (b *Breakdown) Assign(producer string, scores []float32) {
	b.dense[producer] = append([]float32(nil), scores...)
}

// PlusEquals adds scores component-wise to the producer's current scores.
func (b *Breakdown) PlusEquals(producer string, scores []float32) {
	cur := b.dense[producer]
	if len(cur) < len(scores) {
		grown := make([]float32, len(scores))
		copy(grown, cur)
		cur = grown
	}
	for i, s := range scores {
		cur[i] += s
	}
	b.dense[producer] = cur
}

// ScoresFor returns a copy of the producer's scores, or nil if it has none.
func (b *Breakdown) ScoresFor(producer string) []float32 {
	scores, ok := b.dense[producer]
	if !ok {
		return nil
	}
	return append([]float32(nil), scores...)
}

// Has reports whether the producer has assigned scores.
func (b *Breakdown) Has(producer string) bool {
	_, ok := b.dense[producer]
	return ok
}

// Invert negates every dense score of producer.
func (b *Breakdown) Invert(producer string) {
	for i := range b.dense[producer] {
		b.dense[producer][i] = -b.dense[producer][i]
	}
}

// Zero sets every dense score of producer to 0, keeping its width.
func (b *Breakdown) Zero(producer string) {
	for i := range b.dense[producer] {
		b.dense[producer][i] = 0
	}
}

// Producers returns the producer names in sorted order.
func (b *Breakdown) Producers() []string {
	names := make([]string, 0, len(b.dense))
	for name := range b.dense {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WeightedScore is the dot product of every producer's scores with its weights.
// Producers without weights contribute nothing.
func (b *Breakdown) WeightedScore(w Weights) float32 {
	var total float32
	for name, scores := range b.dense {
		weights := w.For(name)
		for i := 0; i < len(scores) && i < len(weights); i++ {
			total += scores[i] * weights[i]
		}
	}
	return total
}

func (b *Breakdown) String() string {
	return fmt.Sprintf("%v", b.dense)
}
