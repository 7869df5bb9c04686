package group

import (
	"context"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/phrasegroup/internal/dictionary"
	"github.com/fyrsmithlabs/phrasegroup/internal/logging"
	"github.com/fyrsmithlabs/phrasegroup/internal/phrase"
	"github.com/fyrsmithlabs/phrasegroup/internal/scoring"
	"github.com/fyrsmithlabs/phrasegroup/internal/task"
)

const instrumentationName = "github.com/fyrsmithlabs/phrasegroup/internal/dictionary/group"

// Config configures a group.
type Config struct {
	Name string
	// NumScores is the expected total width: the sum of the members'
	// score component counts.
	NumScores  int
	TableLimit int
	// Members are dictionary names, in the order their scores are laid out.
	Members []string
	// Restrict only lets the first member introduce new candidates.
	Restrict bool
	// DefaultScores fill the segments of members that did not produce a
	// candidate. Nil means all zero.
	DefaultScores []float32
}

// Group merges the candidates of several member tables into one collection
// with a single score vector per candidate.
type Group struct {
	dictionary.Base

	memberNames   []string
	restrict      bool
	defaultScores []float32
	set           *dictionary.Set

	// resolved at Load, read-only afterwards
	members []dictionary.PhraseDictionary
	loaded  bool

	cache  *dictionary.SentenceCache
	logger *zap.Logger

	tracer           trace.Tracer
	meter            metric.Meter
	lookupCounter    metric.Int64Counter
	candidateHistory metric.Int64Histogram
}

// Option customizes a Group.
type Option func(*Group)

// WithTracer overrides the global tracer.
func WithTracer(tr trace.Tracer) Option {
	return func(g *Group) { g.tracer = tr }
}

// WithMeter overrides the global meter.
func WithMeter(m metric.Meter) Option {
	return func(g *Group) { g.meter = m }
}

// New creates a group whose members are resolved from set at Load.
func New(cfg Config, set *dictionary.Set, w scoring.Weights, logger *zap.Logger, opts ...Option) (*Group, error) {
	base, err := dictionary.NewBase(cfg.Name, cfg.NumScores, cfg.TableLimit, w)
	if err != nil {
		return nil, err
	}
	if len(cfg.Members) == 0 {
		return nil, fmt.Errorf("%w: %s: members is required", dictionary.ErrConfiguration, cfg.Name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Group{
		Base:        base,
		memberNames: slices.Clone(cfg.Members),
		restrict:    cfg.Restrict,
		set:         set,
		cache:       dictionary.NewSentenceCache(),
		logger:      logger.With(zap.String("table", cfg.Name)),
		tracer:      otel.Tracer(instrumentationName),
		meter:       otel.Meter(instrumentationName),
	}
	if cfg.DefaultScores != nil {
		g.defaultScores = slices.Clone(cfg.DefaultScores)
	}
	for _, opt := range opts {
		opt(g)
	}
	g.initMetrics()
	return g, nil
}

func (g *Group) initMetrics() {
	var err error

	g.lookupCounter, err = g.meter.Int64Counter(
		"phrasegroup.group.lookups_total",
		metric.WithDescription("Total number of group lookups"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		g.logger.Warn("failed to create lookup counter", zap.Error(err))
	}

	g.candidateHistory, err = g.meter.Int64Histogram(
		"phrasegroup.group.candidates",
		metric.WithDescription("Merged candidates per group lookup before pruning"),
		metric.WithUnit("{candidate}"),
	)
	if err != nil {
		g.logger.Warn("failed to create candidate histogram", zap.Error(err))
	}
}

// Load resolves the members by exact name, checks that their widths add up
// to NumScoreComponents and fixes the default score vector.
func (g *Group) Load(context.Context) error {
	members := make([]dictionary.PhraseDictionary, 0, len(g.memberNames))
	width := 0
	for _, name := range g.memberNames {
		pd, ok := g.set.Get(name)
		if !ok {
			return fmt.Errorf("%w: %s: could not find member phrase table %q", dictionary.ErrConfiguration, g.Name(), name)
		}
		members = append(members, pd)
		width += pd.NumScoreComponents()
	}
	if width != g.NumScoreComponents() {
		return fmt.Errorf("%w: %s: members have %d scores in total, expected %d",
			dictionary.ErrConfiguration, g.Name(), width, g.NumScoreComponents())
	}

	if g.defaultScores != nil {
		if len(g.defaultScores) != g.NumScoreComponents() {
			return fmt.Errorf("%w: %s: %d default scores given, expected %d",
				dictionary.ErrConfiguration, g.Name(), len(g.defaultScores), g.NumScoreComponents())
		}
	} else {
		// zero rather than a log(0) approximation
		g.defaultScores = make([]float32, g.NumScoreComponents())
	}

	g.members = members
	g.loaded = true

	g.logger.Info("loaded phrase table group",
		zap.Strings("members", g.memberNames),
		zap.Int("num_scores", width),
		zap.Bool("restrict", g.restrict),
	)
	return nil
}

// Members returns the resolved members in layout order.
func (g *Group) Members() []dictionary.PhraseDictionary {
	return g.members
}

// DefaultScores returns a copy of the default score vector.
func (g *Group) DefaultScores() []float32 {
	return slices.Clone(g.defaultScores)
}

// PrefixExists forwards the probe to every member that supports it.
func (g *Group) PrefixExists(ctx context.Context, src phrase.Phrase) {
	for _, pd := range g.members {
		if p, ok := pd.(dictionary.PrefixProber); ok {
			p.PrefixExists(ctx, src)
		}
	}
}

// LookupLegacy is the lookup without a sentence context. Groups cannot
// serve it.
func (g *Group) LookupLegacy(phrase.Phrase) (*phrase.Collection, error) {
	return nil, fmt.Errorf("%s: %w", g.Name(), dictionary.ErrNoTask)
}

// Lookup merges the members' candidates for src. The returned collection is
// ordered so that the first TableLimit candidates are the best, and is kept
// alive in the sentence cache until CleanUpAfterSentence.
func (g *Group) Lookup(ctx context.Context, src phrase.Phrase) (*phrase.Collection, error) {
	t := task.FromContext(ctx)
	if t == nil {
		return nil, fmt.Errorf("%s: %w", g.Name(), dictionary.ErrNoTask)
	}
	if !g.loaded {
		return nil, fmt.Errorf("%w: %s: lookup before load", dictionary.ErrConfiguration, g.Name())
	}

	ctx, span := g.tracer.Start(ctx, "group.lookup")
	defer span.End()
	span.SetAttributes(
		attribute.String("table", g.Name()),
		attribute.String("task_id", t.ID),
		attribute.Int("source_length", len(src)),
	)

	coll, err := g.merge(ctx, src)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	merged := coll.Len()

	coll.NthElement(g.TableLimit())
	g.cache.Register(t, coll)

	if g.lookupCounter != nil {
		g.lookupCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("table", g.Name())))
	}
	if g.candidateHistory != nil {
		g.candidateHistory.Record(ctx, int64(merged), metric.WithAttributes(attribute.String("table", g.Name())))
	}
	span.SetAttributes(attribute.Int("candidates", merged))
	return coll, nil
}

// merge builds the candidate collection for src, consulting members in
// order. The first member to produce a surface form owns the copy that
// ends up in the result; every member overwrites its own score segment.
func (g *Group) merge(ctx context.Context, src phrase.Phrase) (*phrase.Collection, error) {
	pending := newPendingSet()

	offset := 0
	for i, pd := range g.members {
		k := pd.NumScoreComponents()

		raw, err := pd.Lookup(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("%s: member %s: %w", g.Name(), pd.Name(), err)
		}

		for _, cand := range raw.Phrases() {
			rawScores := cand.Scores.ScoresFor(pd.Name())
			if len(rawScores) != k {
				return nil, fmt.Errorf("%w: %s: member %s returned %d scores, expected %d",
					dictionary.ErrConfiguration, g.Name(), pd.Name(), len(rawScores), k)
			}

			hash := cand.Hash()
			idx, found := pending.find(hash, cand)
			if !found {
				if g.restrict && i > 0 {
					continue
				}
				idx = pending.add(hash, g.adopt(src, pd, cand), slices.Clone(g.defaultScores))
			} else {
				existing := pending.entries[idx].tp
				for producer, extra := range cand.Extra {
					existing.SetExtra(producer, extra)
				}
			}

			copy(pending.entries[idx].scores[offset:offset+k], rawScores)
		}
		offset += k
	}

	features := g.Features(g)
	coll := phrase.NewCollection()
	for _, e := range pending.entries {
		e.tp.Scores.Assign(g.Name(), e.scores)
		e.tp.EvaluateInIsolation(src, features, g.Weights())
		coll.Add(e.tp)
	}

	g.logger.Debug("merged member candidates", append(logging.ContextFields(ctx),
		zap.String("source", src.String()),
		zap.Int("candidates", pending.len()),
	)...)
	return coll, nil
}

// adopt copies a member's candidate and strips the member's own dense
// scores from it, so only the group vector counts once it is assigned.
func (g *Group) adopt(src phrase.Phrase, pd dictionary.PhraseDictionary, cand *phrase.TargetPhrase) *phrase.TargetPhrase {
	tp := cand.Clone()
	tp.Scores.Invert(pd.Name())
	tp.EvaluateInIsolation(src, []phrase.FeatureFunction{pd}, g.Weights())
	tp.Scores.Zero(pd.Name())
	return tp
}

// CleanUpAfterSentence drops the sentence's cached collections and cleans
// up every member.
func (g *Group) CleanUpAfterSentence(ctx context.Context, t *task.Task) {
	released := g.cache.Clear(t)
	for _, pd := range g.members {
		pd.CleanUpAfterSentence(ctx, t)
	}
	g.logger.Debug("cleaned up after sentence", append(logging.ContextFields(ctx),
		zap.Int("released", released),
	)...)
}

// Cached returns the number of collections held for t.
func (g *Group) Cached(t *task.Task) int {
	return g.cache.Len(t)
}
