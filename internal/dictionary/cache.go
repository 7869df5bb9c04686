package dictionary

import (
	"sync"

	"github.com/fyrsmithlabs/phrasegroup/internal/phrase"
	"github.com/fyrsmithlabs/phrasegroup/internal/task"
)

// SentenceCache keeps the collections a table produced for a sentence alive
// until that sentence ends. The cache is one holder of each collection;
// callers that still reference a collection after Clear keep it alive.
//
// Entries are scoped per task, so one table may serve several sentences at
// once without them seeing each other's entries.
type SentenceCache struct {
	mu      sync.Mutex
	entries map[string][]*phrase.Collection
}

// NewSentenceCache returns an empty cache.
func NewSentenceCache() *SentenceCache {
	return &SentenceCache{entries: make(map[string][]*phrase.Collection)}
}

// Register adds c to the entries of t.
func (c *SentenceCache) Register(t *task.Task, coll *phrase.Collection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[t.ID] = append(c.entries[t.ID], coll)
}

// Clear drops every entry of t and returns how many were dropped. Clearing
// an empty or already cleared sentence is a no-op.
func (c *SentenceCache) Clear(t *task.Task) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries[t.ID])
	delete(c.entries, t.ID)
	return n
}

// Len returns the number of entries held for t.
func (c *SentenceCache) Len(t *task.Task) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries[t.ID])
}
