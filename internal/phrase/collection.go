package phrase

import (
	"cmp"
	"slices"
)

// Collection is the candidate list returned for one source phrase.
type Collection struct {
	phrases []*TargetPhrase
}

// NewCollection returns a collection holding phrases.
func NewCollection(phrases ...*TargetPhrase) *Collection {
	return &Collection{phrases: phrases}
}

// Add appends tp.
func (c *Collection) Add(tp *TargetPhrase) {
	c.phrases = append(c.phrases, tp)
}

// Len returns the number of candidates; nil collections are empty.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.phrases)
}

// Phrases returns the candidates in their current order. Callers must not
// mutate the returned phrases: collections may be shared.
func (c *Collection) Phrases() []*TargetPhrase {
	if c == nil {
		return nil
	}
	return c.phrases
}

// Top returns at most n candidates from the front of the collection.
func (c *Collection) Top(n int) []*TargetPhrase {
	if c == nil {
		return nil
	}
	if n <= 0 || n > len(c.phrases) {
		n = len(c.phrases)
	}
	return c.phrases[:n]
}

// Sort orders all candidates by descending full score.
func (c *Collection) Sort() {
	slices.SortStableFunc(c.phrases, byScoreDesc)
}

// NthElement partially orders the collection so that the best limit
// candidates come first, in descending full score. The order of the rest is
// unspecified. A limit of 0 or one covering the whole collection sorts
// everything.
func (c *Collection) NthElement(limit int) {
	if limit <= 0 || limit >= len(c.phrases) {
		c.Sort()
		return
	}
	selectTop(c.phrases, limit)
	slices.SortStableFunc(c.phrases[:limit], byScoreDesc)
}

// Prune keeps only the best limit candidates. A limit of 0 keeps everything.
func (c *Collection) Prune(limit int) {
	c.NthElement(limit)
	if limit > 0 && limit < len(c.phrases) {
		clear(c.phrases[limit:])
		c.phrases = c.phrases[:limit]
	}
}

func byScoreDesc(a, b *TargetPhrase) int {
	return cmp.Compare(b.FullScore, a.FullScore)
}

// selectTop moves the k best candidates into ps[:k] using quickselect.
func selectTop(ps []*TargetPhrase, k int) {
	lo, hi := 0, len(ps)-1
	for lo < hi {
		p := partition(ps, lo, hi)
		switch {
		case p == k || p == k-1:
			return
		case p < k:
			lo = p + 1
		default:
			hi = p - 1
		}
	}
}

// partition uses the middle element as pivot and puts everything scoring
// strictly higher before it.
func partition(ps []*TargetPhrase, lo, hi int) int {
	mid := lo + (hi-lo)/2
	ps[mid], ps[hi] = ps[hi], ps[mid]
	pivot := ps[hi].FullScore
	store := lo
	for i := lo; i < hi; i++ {
		if ps[i].FullScore > pivot {
			ps[i], ps[store] = ps[store], ps[i]
			store++
		}
	}
	ps[store], ps[hi] = ps[hi], ps[store]
	return store
}
