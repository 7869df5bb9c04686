package group

import "github.com/fyrsmithlabs/phrasegroup/internal/phrase"

// entry is one merged candidate: a private copy of the first member's
// phrase plus the group-wide score vector being assembled for it.
type entry struct {
	tp     *phrase.TargetPhrase
	scores []float32
}

// pendingSet deduplicates candidates of one lookup by surface content.
// Entries live in an arena; the index maps a structural hash to the arena
// positions sharing it.
type pendingSet struct {
	entries []entry
	index   map[uint64][]int
}

func newPendingSet() *pendingSet {
	return &pendingSet{index: make(map[uint64][]int)}
}

// find returns the arena position of the entry with the same surface as tp.
func (p *pendingSet) find(hash uint64, tp *phrase.TargetPhrase) (int, bool) {
	for _, i := range p.index[hash] {
		if p.entries[i].tp.SameSurface(tp) {
			return i, true
		}
	}
	return 0, false
}

// add stores a new entry and returns its arena position.
func (p *pendingSet) add(hash uint64, tp *phrase.TargetPhrase, scores []float32) int {
	i := len(p.entries)
	p.entries = append(p.entries, entry{tp: tp, scores: scores})
	p.index[hash] = append(p.index[hash], i)
	return i
}

func (p *pendingSet) len() int {
	return len(p.entries)
}
