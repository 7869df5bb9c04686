// Package engine drives dictionaries through the sentence lifecycle:
// initialize every dictionary for the input, look up every source span in
// the decoding tables, snapshot the options and clean up.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/fyrsmithlabs/phrasegroup/internal/config"
	"github.com/fyrsmithlabs/phrasegroup/internal/dictionary"
	"github.com/fyrsmithlabs/phrasegroup/internal/dictionary/group"
	"github.com/fyrsmithlabs/phrasegroup/internal/dictionary/memory"
	"github.com/fyrsmithlabs/phrasegroup/internal/dictionary/ondisk"
	"github.com/fyrsmithlabs/phrasegroup/internal/dictionary/suffixarray"
	"github.com/fyrsmithlabs/phrasegroup/internal/logging"
	"github.com/fyrsmithlabs/phrasegroup/internal/phrase"
	"github.com/fyrsmithlabs/phrasegroup/internal/scoring"
	"github.com/fyrsmithlabs/phrasegroup/internal/task"
)

const instrumentationName = "github.com/fyrsmithlabs/phrasegroup/internal/engine"

// Engine owns the dictionaries built from config.
type Engine struct {
	dicts    *dictionary.Set
	decoding []dictionary.PhraseDictionary
	closers  []io.Closer
	// roots are the dictionaries no group owns; groups clean up their members.
	roots []dictionary.PhraseDictionary

	// sentences bounds concurrent Translate calls to threads, whoever the
	// caller is. Per-sentence grammars hold one sentence at a time.
	sentences *semaphore.Weighted

	threads         int
	maxPhraseLength int
	outputLimit     int

	logger   *zap.Logger
	tracer   trace.Tracer
	meter    metric.Meter
	registry *prometheus.Registry
	metrics  *metrics
}

// Option customizes an Engine.
type Option func(*Engine)

// WithTracer overrides the global tracer. It is passed on to dictionaries.
func WithTracer(tr trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tr }
}

// WithMeter overrides the global meter. It is passed on to dictionaries.
func WithMeter(m metric.Meter) Option {
	return func(e *Engine) { e.meter = m }
}

// WithRegistry registers the engine's prometheus metrics on reg.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(e *Engine) { e.registry = reg }
}

// New builds and loads every configured dictionary in declared order.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		threads:         cfg.Engine.Threads,
		maxPhraseLength: cfg.Engine.MaxPhraseLength,
		outputLimit:     cfg.Engine.OutputLimit,
		logger:          logger,
		tracer:          otel.Tracer(instrumentationName),
		meter:           otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = prometheus.NewRegistry()
	}
	e.sentences = semaphore.NewWeighted(int64(max(e.threads, 1)))
	e.metrics = newMetrics(e.registry)

	set, err := dictionary.NewSet()
	if err != nil {
		return nil, err
	}
	e.dicts = set

	weights := cfg.ScoringWeights()
	for _, dc := range cfg.Dictionaries {
		d, err := e.build(ctx, cfg, dc, weights)
		if err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("dictionary %s: %w", dc.Name, err)
		}
		if err := set.Add(d); err != nil {
			_ = e.Close()
			return nil, err
		}
		if err := d.Load(ctx); err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("loading dictionary %s: %w", dc.Name, err)
		}
	}

	e.roots = cleanupRoots(set)

	for _, name := range cfg.DecodingTables() {
		d, ok := set.Get(name)
		if !ok {
			_ = e.Close()
			return nil, fmt.Errorf("%w: unknown decoding table %s", dictionary.ErrConfiguration, name)
		}
		e.decoding = append(e.decoding, d)
	}

	logger.Info("engine ready",
		zap.Int("dictionaries", set.Len()),
		zap.Int("decoding_tables", len(e.decoding)),
		zap.Int("threads", e.threads),
	)
	return e, nil
}

func (e *Engine) build(ctx context.Context, cfg *config.Config, dc config.DictionaryConfig, w scoring.Weights) (dictionary.PhraseDictionary, error) {
	logger := e.logger.With(zap.String("table", dc.Name))

	switch dc.Type {
	case config.TypeMemory:
		return memory.New(memory.Config{
			Name:       dc.Name,
			NumScores:  dc.NumFeatures,
			TableLimit: dc.Limit(),
			Path:       dc.Path,
		}, w, logger)

	case config.TypeSuffixArray:
		store, err := suffixarray.OpenStore(ctx, dc.Path, cfg.Engine.GrammarCredentials)
		if err != nil {
			return nil, err
		}
		if c, ok := store.(io.Closer); ok {
			e.closers = append(e.closers, c)
		}
		return suffixarray.New(suffixarray.Config{
			Name:       dc.Name,
			NumScores:  dc.NumFeatures,
			TableLimit: dc.Limit(),
		}, e.threads, store, w, logger, suffixarray.WithTracer(e.tracer))

	case config.TypeOnDisk:
		t, err := ondisk.New(ondisk.Config{
			Name:       dc.Name,
			NumScores:  dc.NumFeatures,
			TableLimit: dc.Limit(),
			Path:       dc.Path,
			CacheSize:  dc.CacheSize,
		}, w, logger)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, t)
		return t, nil

	case config.TypeGroup:
		return group.New(group.Config{
			Name:          dc.Name,
			NumScores:     dc.NumFeatures,
			TableLimit:    dc.Limit(),
			Members:       dc.Members,
			Restrict:      dc.Restrict,
			DefaultScores: dc.DefaultScores,
		}, e.dicts, w, logger, group.WithTracer(e.tracer), group.WithMeter(e.meter))
	}
	return nil, fmt.Errorf("%w: unknown dictionary type %q", dictionary.ErrConfiguration, dc.Type)
}

// cleanupRoots returns the dictionaries that are not a member of any group,
// so each member is cleaned up by its group and not a second time here.
func cleanupRoots(set *dictionary.Set) []dictionary.PhraseDictionary {
	owned := make(map[string]bool)
	for _, d := range set.All() {
		if g, ok := d.(*group.Group); ok {
			for _, m := range g.Members() {
				owned[m.Name()] = true
			}
		}
	}
	var roots []dictionary.PhraseDictionary
	for _, d := range set.All() {
		if !owned[d.Name()] {
			roots = append(roots, d)
		}
	}
	return roots
}

// Dictionaries returns every dictionary in declared order.
func (e *Engine) Dictionaries() *dictionary.Set {
	return e.dicts
}

// Gatherer exposes the engine's prometheus metrics.
func (e *Engine) Gatherer() prometheus.Gatherer {
	return e.registry
}

// Translate collects the translation options of one sentence.
//
// A grammar that fails to load is reported as an error wrapping
// dictionary.ErrGrammarLoad; every dictionary is still cleaned up. At most
// threads sentences are in flight; further callers wait for a slot.
func (e *Engine) Translate(ctx context.Context, s Sentence) (*Result, error) {
	if err := e.sentences.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sentences.Release(1)

	start := time.Now()
	e.metrics.active.Inc()
	defer e.metrics.active.Dec()

	src := phrase.Parse(s.Text)
	tk := task.New(s.ID, src)
	ctx = task.WithTask(ctx, tk)

	ctx, span := e.tracer.Start(ctx, "engine.translate",
		trace.WithAttributes(
			attribute.Int64("sentence.id", s.ID),
			attribute.String("task.id", tk.ID),
			attribute.Int("sentence.words", len(src)),
		),
	)
	defer span.End()

	defer e.cleanup(ctx, tk)

	res := &Result{ID: s.ID, TaskID: tk.ID, Source: src.String()}
	err := e.translate(ctx, tk, res)
	e.metrics.duration.Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "translation failed")
		if errors.Is(err, dictionary.ErrGrammarLoad) {
			e.metrics.sentences.WithLabelValues("grammar_error").Inc()
		} else {
			e.metrics.sentences.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	e.metrics.sentences.WithLabelValues("ok").Inc()
	span.SetAttributes(attribute.Int("options", res.NumOptions()))
	e.logger.Debug("sentence translated", append(logging.ContextFields(ctx),
		zap.Int("spans", len(res.Spans)),
		zap.Int("options", res.NumOptions()),
	)...)
	return res, nil
}

func (e *Engine) translate(ctx context.Context, tk *task.Task, res *Result) error {
	for _, d := range e.dicts.All() {
		if err := d.InitializeForInput(ctx, tk); err != nil {
			return fmt.Errorf("initializing %s: %w", d.Name(), err)
		}
	}

	src := tk.Source
	for start := 0; start < len(src); start++ {
		for end := start + 1; end <= len(src) && end-start <= e.maxPhraseLength; end++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			sub := src.Sub(start, end)
			span := SpanOptions{Start: start, End: end, Source: sub.String()}
			for _, d := range e.decoding {
				if p, ok := d.(dictionary.PrefixProber); ok {
					p.PrefixExists(ctx, sub)
				}
				coll, err := d.Lookup(ctx, sub)
				if err != nil {
					return fmt.Errorf("lookup in %s: %w", d.Name(), err)
				}
				e.metrics.lookups.WithLabelValues(d.Name()).Inc()
				if coll.Len() == 0 {
					continue
				}
				top := coll.Top(e.outputLimit)
				e.metrics.options.WithLabelValues(d.Name()).Observe(float64(len(top)))
				for _, tp := range top {
					span.Options = append(span.Options, snapshot(d.Name(), tp))
				}
			}
			if len(span.Options) > 0 {
				res.Spans = append(res.Spans, span)
			}
		}
	}
	return nil
}

func (e *Engine) cleanup(ctx context.Context, tk *task.Task) {
	for _, d := range e.roots {
		d.CleanUpAfterSentence(ctx, tk)
	}
}

// Run translates sentences on the configured number of workers. Results are
// returned in input order. A sentence whose grammar fails to load gets a
// Result with Err set and does not stop the batch; any other error aborts.
func (e *Engine) Run(ctx context.Context, sentences []Sentence) ([]*Result, error) {
	results := make([]*Result, len(sentences))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.threads)
	for i, s := range sentences {
		g.Go(func() error {
			res, err := e.Translate(gCtx, s)
			if err != nil {
				if !errors.Is(err, dictionary.ErrGrammarLoad) {
					return fmt.Errorf("sentence %d: %w", s.ID, err)
				}
				e.logger.Warn("sentence skipped",
					zap.Int64("sentence.id", s.ID),
					zap.Error(err),
				)
				res = &Result{ID: s.ID, Source: phrase.Parse(s.Text).String(), Err: err, Error: err.Error()}
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Close releases database handles and grammar stores.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}
