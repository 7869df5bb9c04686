// Package phrase defines source phrases, target phrase candidates and the
// ranked collections member models return for a source phrase.
package phrase

import "strings"

// Phrase is an ordered sequence of words.
type Phrase []string

// Parse splits text on whitespace.
func Parse(text string) Phrase {
	return Phrase(strings.Fields(text))
}

// String joins the words with single spaces.
func (p Phrase) String() string {
	return strings.Join(p, " ")
}

// Sub returns words [start, end).
func (p Phrase) Sub(start, end int) Phrase {
	return p[start:end]
}

// Equal reports word-by-word equality.
func (p Phrase) Equal(other Phrase) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}
