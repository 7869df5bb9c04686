// Package task carries the per-sentence processing context that lookups
// require.
package task

import (
	"context"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/phrasegroup/internal/phrase"
)

// Task is one sentence being processed end to end by one worker.
type Task struct {
	// ID is unique per task and used for log correlation and cache scoping.
	ID string
	// TranslationID is the caller-assigned sentence number. Per-sentence
	// grammars are addressed by it.
	TranslationID int64
	// Source is the full input sentence.
	Source phrase.Phrase
}

// New creates a task with a fresh ID.
func New(translationID int64, source phrase.Phrase) *Task {
	return &Task{
		ID:            uuid.New().String(),
		TranslationID: translationID,
		Source:        source,
	}
}

type taskCtxKey struct{}

// WithTask stores t in ctx.
// Panics if t is nil.
func WithTask(ctx context.Context, t *Task) context.Context {
	if t == nil {
		panic("task: task cannot be nil")
	}
	return context.WithValue(ctx, taskCtxKey{}, t)
}

// FromContext returns the task stored in ctx, or nil.
func FromContext(ctx context.Context) *Task {
	if ctx == nil {
		return nil
	}
	if t, ok := ctx.Value(taskCtxKey{}).(*Task); ok {
		return t
	}
	return nil
}
