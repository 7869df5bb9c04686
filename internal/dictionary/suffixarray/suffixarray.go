// Package suffixarray provides a phrase table whose rules are extracted per
// sentence ahead of time. Each sentence's grammar is loaded on demand from
// grammar.<translation id>.gz and dropped when the sentence is done.
package suffixarray

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/phrasegroup/internal/dictionary"
	"github.com/fyrsmithlabs/phrasegroup/internal/dictionary/memory"
	"github.com/fyrsmithlabs/phrasegroup/internal/logging"
	"github.com/fyrsmithlabs/phrasegroup/internal/ruletable"
	"github.com/fyrsmithlabs/phrasegroup/internal/scoring"
	"github.com/fyrsmithlabs/phrasegroup/internal/task"
)

const instrumentationName = "github.com/fyrsmithlabs/phrasegroup/internal/dictionary/suffixarray"

// Config configures a suffix array table.
type Config struct {
	Name       string
	NumScores  int
	TableLimit int
}

// Table holds exactly one sentence's grammar at a time.
type Table struct {
	*memory.Table

	store  Store
	logger *zap.Logger
	tracer trace.Tracer
}

// Option customizes a Table.
type Option func(*Table)

// WithTracer overrides the global tracer.
func WithTracer(tr trace.Tracer) Option {
	return func(t *Table) { t.tracer = tr }
}

// GrammarName returns the grammar file name for a sentence.
func GrammarName(translationID int64) string {
	return fmt.Sprintf("grammar.%d.gz", translationID)
}

// New creates a table reading grammars from store. The table keeps a single
// grammar, so it refuses to run with more than one worker thread.
func New(cfg Config, threads int, store Store, w scoring.Weights, logger *zap.Logger, opts ...Option) (*Table, error) {
	if threads > 1 {
		return nil, fmt.Errorf("%w: %s: suffix array tables are not thread safe, got %d threads",
			dictionary.ErrConfiguration, cfg.Name, threads)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: %s: path is required", dictionary.ErrConfiguration, cfg.Name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	inner, err := memory.New(memory.Config{Name: cfg.Name, NumScores: cfg.NumScores, TableLimit: cfg.TableLimit}, w, logger)
	if err != nil {
		return nil, err
	}

	t := &Table{
		Table:  inner,
		store:  store,
		logger: logger.With(zap.String("table", cfg.Name)),
		tracer: otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Load does nothing; grammars arrive per sentence.
func (t *Table) Load(context.Context) error { return nil }

// InitializeForInput replaces the held grammar with the one for tk. On
// failure the table is left empty.
func (t *Table) InitializeForInput(ctx context.Context, tk *task.Task) error {
	ctx, span := t.tracer.Start(ctx, "suffixarray.load")
	defer span.End()

	name := GrammarName(tk.TranslationID)
	span.SetAttributes(
		attribute.String("table", t.Name()),
		attribute.String("grammar", name),
		attribute.Int64("translation_id", tk.TranslationID),
	)

	start := time.Now()
	rules, err := t.read(ctx, name)
	if err != nil {
		t.Clear()
		err = fmt.Errorf("%w: %s: %s: %w", dictionary.ErrGrammarLoad, t.Name(), name, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	t.SetRules(rules)

	span.SetAttributes(attribute.Int("rules", len(rules)))
	t.logger.Debug("loaded sentence grammar", append(logging.ContextFields(ctx),
		zap.String("grammar", name),
		zap.Int("rules", len(rules)),
		zap.Duration("duration", time.Since(start)),
	)...)
	return nil
}

func (t *Table) read(ctx context.Context, name string) ([]ruletable.Rule, error) {
	rc, err := t.store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	r, err := ruletable.Decompress(name, rc)
	if err != nil {
		rc.Close()
		return nil, err
	}
	defer r.Close()
	return ruletable.Parse(r, t.NumScoreComponents())
}

// CleanUpAfterSentence drops the held grammar.
func (t *Table) CleanUpAfterSentence(ctx context.Context, tk *task.Task) {
	t.Clear()
	t.logger.Debug("released sentence grammar", append(logging.ContextFields(ctx),
		zap.Int64("translation_id", tk.TranslationID),
	)...)
}
