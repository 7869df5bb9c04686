package group

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/fyrsmithlabs/phrasegroup/internal/dictionary"
	"github.com/fyrsmithlabs/phrasegroup/internal/dictionary/memory"
	"github.com/fyrsmithlabs/phrasegroup/internal/phrase"
	"github.com/fyrsmithlabs/phrasegroup/internal/ruletable"
	"github.com/fyrsmithlabs/phrasegroup/internal/scoring"
	"github.com/fyrsmithlabs/phrasegroup/internal/task"
)

var (
	_ dictionary.PhraseDictionary = (*Group)(nil)
	_ dictionary.PrefixProber     = (*Group)(nil)
)

func newMember(t *testing.T, name string, k int, rules string, w scoring.Weights) *memory.Table {
	t.Helper()
	tm, err := memory.New(memory.Config{Name: name, NumScores: k}, w, nil)
	require.NoError(t, err)
	parsed, err := ruletable.Parse(strings.NewReader(rules), k)
	require.NoError(t, err)
	tm.SetRules(parsed)
	return tm
}

func newGroup(t *testing.T, cfg Config, w scoring.Weights, members ...dictionary.PhraseDictionary) *Group {
	t.Helper()
	set, err := dictionary.NewSet(members...)
	require.NoError(t, err)
	g, err := New(cfg, set, w, nil)
	require.NoError(t, err)
	require.NoError(t, g.Load(context.Background()))
	return g
}

func sentence(text string) (context.Context, *task.Task) {
	tk := task.New(1, phrase.Parse(text))
	return task.WithTask(context.Background(), tk), tk
}

func surfaces(coll *phrase.Collection) []string {
	var out []string
	for _, tp := range coll.Phrases() {
		out = append(out, tp.Words.String())
	}
	return out
}

func findCandidate(t *testing.T, coll *phrase.Collection, words string) *phrase.TargetPhrase {
	t.Helper()
	for _, tp := range coll.Phrases() {
		if tp.Words.String() == words {
			return tp
		}
	}
	t.Fatalf("candidate %q not found in %v", words, surfaces(coll))
	return nil
}

// stubMember serves a fixed collection and counts calls.
type stubMember struct {
	dictionary.Base

	coll *phrase.Collection
	err  error

	mu       sync.Mutex
	lookups  int
	probes   int
	cleanups int
}

func newStubMember(t *testing.T, name string, k int, phrases ...*phrase.TargetPhrase) *stubMember {
	t.Helper()
	base, err := dictionary.NewBase(name, k, 0, nil)
	require.NoError(t, err)
	return &stubMember{Base: base, coll: phrase.NewCollection(phrases...)}
}

func (s *stubMember) Lookup(context.Context, phrase.Phrase) (*phrase.Collection, error) {
	s.mu.Lock()
	s.lookups++
	s.mu.Unlock()
	return s.coll, s.err
}

func (s *stubMember) PrefixExists(context.Context, phrase.Phrase) {
	s.mu.Lock()
	s.probes++
	s.mu.Unlock()
}

func (s *stubMember) CleanUpAfterSentence(context.Context, *task.Task) {
	s.mu.Lock()
	s.cleanups++
	s.mu.Unlock()
}

func candidate(producer, words string, scores ...float32) *phrase.TargetPhrase {
	tp := phrase.NewTargetPhrase(phrase.Parse(words), nil)
	tp.Scores.Assign(producer, scores)
	return tp
}

func TestNew_Validates(t *testing.T) {
	set, err := dictionary.NewSet()
	require.NoError(t, err)

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing name", cfg: Config{NumScores: 2, Members: []string{"TM0"}}},
		{name: "zero width", cfg: Config{Name: "G", Members: []string{"TM0"}}},
		{name: "no members", cfg: Config{Name: "G", NumScores: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, set, nil, nil)
			assert.ErrorIs(t, err, dictionary.ErrConfiguration)
		})
	}
}

func TestLoad(t *testing.T) {
	m1 := newMember(t, "TM0", 2, "x ||| a ||| 0.1 0.2\n", nil)
	m2 := newMember(t, "TM1", 1, "x ||| a ||| 0.3\n", nil)
	set, err := dictionary.NewSet(m1, m2)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("resolves members in order", func(t *testing.T) {
		g, err := New(Config{Name: "G", NumScores: 3, Members: []string{"TM1", "TM0"}}, set, nil, nil)
		require.NoError(t, err)
		require.NoError(t, g.Load(ctx))
		require.Len(t, g.Members(), 2)
		assert.Equal(t, "TM1", g.Members()[0].Name())
		assert.Equal(t, "TM0", g.Members()[1].Name())
		assert.Equal(t, []float32{0, 0, 0}, g.DefaultScores())
	})

	t.Run("unknown member", func(t *testing.T) {
		g, err := New(Config{Name: "G", NumScores: 3, Members: []string{"TM0", "TM9"}}, set, nil, nil)
		require.NoError(t, err)
		err = g.Load(ctx)
		assert.ErrorIs(t, err, dictionary.ErrConfiguration)
		assert.Contains(t, err.Error(), "TM9")
	})

	t.Run("names match exactly", func(t *testing.T) {
		g, err := New(Config{Name: "G", NumScores: 3, Members: []string{"tm0", "TM1"}}, set, nil, nil)
		require.NoError(t, err)
		assert.ErrorIs(t, g.Load(ctx), dictionary.ErrConfiguration)
	})

	t.Run("width mismatch", func(t *testing.T) {
		g, err := New(Config{Name: "G", NumScores: 4, Members: []string{"TM0", "TM1"}}, set, nil, nil)
		require.NoError(t, err)
		err = g.Load(ctx)
		assert.ErrorIs(t, err, dictionary.ErrConfiguration)
		assert.Contains(t, err.Error(), "expected 4")
	})

	t.Run("default score length", func(t *testing.T) {
		g, err := New(Config{Name: "G", NumScores: 3, Members: []string{"TM0", "TM1"}, DefaultScores: []float32{-1, -1}}, set, nil, nil)
		require.NoError(t, err)
		assert.ErrorIs(t, g.Load(ctx), dictionary.ErrConfiguration)
	})

	t.Run("explicit defaults", func(t *testing.T) {
		g, err := New(Config{Name: "G", NumScores: 3, Members: []string{"TM0", "TM1"}, DefaultScores: []float32{-1, -2, -3}}, set, nil, nil)
		require.NoError(t, err)
		require.NoError(t, g.Load(ctx))
		assert.Equal(t, []float32{-1, -2, -3}, g.DefaultScores())
	})
}

func TestLookup_ConcatenatesMemberSegments(t *testing.T) {
	m1 := newMember(t, "TM0", 2, "x ||| t1 ||| 0.1 0.2\n", nil)
	m2 := newMember(t, "TM1", 1, "x ||| t1 ||| 0.3\n", nil)
	g := newGroup(t, Config{Name: "G", NumScores: 3, Members: []string{"TM0", "TM1"}}, nil, m1, m2)

	ctx, _ := sentence("x")
	coll, err := g.Lookup(ctx, phrase.Parse("x"))
	require.NoError(t, err)
	require.Equal(t, 1, coll.Len())

	tp := coll.Phrases()[0]
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, tp.Scores.ScoresFor("G"))
	assert.Equal(t, []float32{0, 0}, tp.Scores.ScoresFor("TM0"), "member's own scores are zeroed")
}

func TestLookup_DefaultsFillMissingSegments(t *testing.T) {
	w := scoring.Weights{"G": {1, 1}}
	m1 := newMember(t, "TM0", 1, "x ||| a ||| 0.5\n", w)
	m2 := newMember(t, "TM1", 1, "x ||| a ||| 0.9\nx ||| b ||| 0.3\n", w)

	t.Run("zero defaults", func(t *testing.T) {
		g := newGroup(t, Config{Name: "G", NumScores: 2, Members: []string{"TM0", "TM1"}}, w, m1, m2)
		ctx, _ := sentence("x")
		coll, err := g.Lookup(ctx, phrase.Parse("x"))
		require.NoError(t, err)

		assert.Equal(t, []string{"a", "b"}, surfaces(coll))
		assert.Equal(t, []float32{0.5, 0.9}, findCandidate(t, coll, "a").Scores.ScoresFor("G"))
		assert.Equal(t, []float32{0, 0.3}, findCandidate(t, coll, "b").Scores.ScoresFor("G"))
		assert.InDelta(t, 1.4, findCandidate(t, coll, "a").FullScore, 1e-6)
	})

	t.Run("explicit defaults", func(t *testing.T) {
		g := newGroup(t, Config{Name: "G", NumScores: 2, Members: []string{"TM0", "TM1"}, DefaultScores: []float32{-1, -1}}, w, m1, m2)
		ctx, _ := sentence("x")
		coll, err := g.Lookup(ctx, phrase.Parse("x"))
		require.NoError(t, err)

		assert.Equal(t, []float32{-1, 0.3}, findCandidate(t, coll, "b").Scores.ScoresFor("G"))
		assert.InDelta(t, -0.7, findCandidate(t, coll, "b").FullScore, 1e-6)
	})

	t.Run("restrict", func(t *testing.T) {
		g := newGroup(t, Config{Name: "G", NumScores: 2, Members: []string{"TM0", "TM1"}, Restrict: true}, w, m1, m2)
		ctx, _ := sentence("x")
		coll, err := g.Lookup(ctx, phrase.Parse("x"))
		require.NoError(t, err)

		assert.Equal(t, []string{"a"}, surfaces(coll))
		assert.Equal(t, []float32{0.5, 0.9}, coll.Phrases()[0].Scores.ScoresFor("G"))
	})
}

func TestLookup_RestrictDropsExtrasOfRejected(t *testing.T) {
	a1 := candidate("TM0", "a", 0.5)
	b2 := candidate("TM1", "b", 0.3)
	b2.SetExtra("lex", "only-b")
	m1 := newStubMember(t, "TM0", 1, a1)
	m2 := newStubMember(t, "TM1", 1, b2)

	g := newGroup(t, Config{Name: "G", NumScores: 2, Members: []string{"TM0", "TM1"}, Restrict: true}, nil, m1, m2)
	ctx, _ := sentence("x")
	coll, err := g.Lookup(ctx, phrase.Parse("x"))
	require.NoError(t, err)
	require.Equal(t, 1, coll.Len())
	assert.Empty(t, coll.Phrases()[0].Extra)
}

func TestLookup_MergesExtraScores(t *testing.T) {
	a1 := candidate("TM0", "a", 0.5)
	a1.SetExtra("lex", "first")
	a2 := candidate("TM1", "a", 0.9)
	a2.SetExtra("lex", "second")
	a2.SetExtra("sparse", 42)
	m1 := newStubMember(t, "TM0", 1, a1)
	m2 := newStubMember(t, "TM1", 1, a2)

	g := newGroup(t, Config{Name: "G", NumScores: 2, Members: []string{"TM0", "TM1"}}, nil, m1, m2)
	ctx, _ := sentence("x")
	coll, err := g.Lookup(ctx, phrase.Parse("x"))
	require.NoError(t, err)
	require.Equal(t, 1, coll.Len())

	merged := coll.Phrases()[0]
	assert.Equal(t, map[string]any{"lex": "second", "sparse": 42}, merged.Extra)
	assert.Equal(t, "first", a1.Extra["lex"], "member candidate is left untouched")
	assert.Equal(t, []float32{0.5}, a1.Scores.ScoresFor("TM0"))
}

func TestLookup_AlignmentDistinguishesCandidates(t *testing.T) {
	m1 := newMember(t, "TM0", 1, "x y ||| a b ||| 0.5 ||| 0-0 1-1\n", nil)
	m2 := newMember(t, "TM1", 1, "x y ||| a b ||| 0.9 ||| 0-1 1-0\n", nil)
	g := newGroup(t, Config{Name: "G", NumScores: 2, Members: []string{"TM0", "TM1"}}, nil, m1, m2)

	ctx, _ := sentence("x y")
	coll, err := g.Lookup(ctx, phrase.Parse("x y"))
	require.NoError(t, err)
	assert.Equal(t, 2, coll.Len())
}

func TestLookup_AlignmentOrderIgnored(t *testing.T) {
	m1 := newMember(t, "TM0", 1, "x y ||| a b ||| 0.5 ||| 0-0 1-1\n", nil)
	m2 := newMember(t, "TM1", 1, "x y ||| a b ||| 0.9 ||| 1-1 0-0\n", nil)
	g := newGroup(t, Config{Name: "G", NumScores: 2, Members: []string{"TM0", "TM1"}}, nil, m1, m2)

	ctx, _ := sentence("x y")
	coll, err := g.Lookup(ctx, phrase.Parse("x y"))
	require.NoError(t, err)
	require.Equal(t, 1, coll.Len())
	assert.Equal(t, []float32{0.5, 0.9}, coll.Phrases()[0].Scores.ScoresFor("G"))
}

func TestLookup_TableLimit(t *testing.T) {
	w := scoring.Weights{"G": {1}}
	m1 := newMember(t, "TM0", 1, "x ||| a ||| 0.1\nx ||| b ||| 0.9\nx ||| c ||| 0.5\nx ||| d ||| 0.7\n", w)
	g := newGroup(t, Config{Name: "G", NumScores: 1, TableLimit: 2, Members: []string{"TM0"}}, w, m1)

	ctx, _ := sentence("x")
	coll, err := g.Lookup(ctx, phrase.Parse("x"))
	require.NoError(t, err)
	require.Equal(t, 4, coll.Len(), "candidates beyond the limit are kept, only ordered after it")
	assert.Equal(t, []string{"b", "d"}, surfaces(coll)[:2])
}

func TestLookup_Deterministic(t *testing.T) {
	w := scoring.Weights{"G": {1, 1}}
	m1 := newMember(t, "TM0", 1, "x ||| a ||| 0.5\nx ||| c ||| 0.5\n", w)
	m2 := newMember(t, "TM1", 1, "x ||| b ||| 0.5\nx ||| a ||| 0.1\n", w)
	g := newGroup(t, Config{Name: "G", NumScores: 2, Members: []string{"TM0", "TM1"}}, w, m1, m2)

	var first []string
	for i := 0; i < 5; i++ {
		ctx, tk := sentence("x")
		coll, err := g.Lookup(ctx, phrase.Parse("x"))
		require.NoError(t, err)
		got := surfaces(coll)
		if first == nil {
			first = got
		}
		assert.Equal(t, first, got)
		g.CleanUpAfterSentence(ctx, tk)
	}
	assert.Equal(t, []string{"a", "c", "b"}, first, "ties keep first-member order")
}

func TestLookup_EmptyMembers(t *testing.T) {
	m1 := newMember(t, "TM0", 1, "y ||| a ||| 0.5\n", nil)
	g := newGroup(t, Config{Name: "G", NumScores: 1, Members: []string{"TM0"}}, nil, m1)

	ctx, tk := sentence("x")
	coll, err := g.Lookup(ctx, phrase.Parse("x"))
	require.NoError(t, err)
	require.NotNil(t, coll)
	assert.Zero(t, coll.Len())
	assert.Equal(t, 1, g.Cached(tk), "empty collections are cached too")
}

func TestLookup_Errors(t *testing.T) {
	m1 := newMember(t, "TM0", 1, "x ||| a ||| 0.5\n", nil)

	t.Run("no task", func(t *testing.T) {
		g := newGroup(t, Config{Name: "G", NumScores: 1, Members: []string{"TM0"}}, nil, m1)
		_, err := g.Lookup(context.Background(), phrase.Parse("x"))
		assert.ErrorIs(t, err, dictionary.ErrNoTask)
	})

	t.Run("legacy lookup", func(t *testing.T) {
		g := newGroup(t, Config{Name: "G", NumScores: 1, Members: []string{"TM0"}}, nil, m1)
		_, err := g.LookupLegacy(phrase.Parse("x"))
		assert.ErrorIs(t, err, dictionary.ErrNoTask)
	})

	t.Run("not loaded", func(t *testing.T) {
		set, err := dictionary.NewSet(m1)
		require.NoError(t, err)
		g, err := New(Config{Name: "G", NumScores: 1, Members: []string{"TM0"}}, set, nil, nil)
		require.NoError(t, err)
		ctx, _ := sentence("x")
		_, err = g.Lookup(ctx, phrase.Parse("x"))
		assert.ErrorIs(t, err, dictionary.ErrConfiguration)
	})

	t.Run("member score width", func(t *testing.T) {
		bad := newStubMember(t, "TM1", 2, candidate("TM1", "a", 0.5))
		g := newGroup(t, Config{Name: "G", NumScores: 2, Members: []string{"TM1"}}, nil, bad)
		ctx, _ := sentence("x")
		_, err := g.Lookup(ctx, phrase.Parse("x"))
		assert.ErrorIs(t, err, dictionary.ErrConfiguration)
		assert.Contains(t, err.Error(), "returned 1 scores, expected 2")
	})

	t.Run("member failure", func(t *testing.T) {
		bad := newStubMember(t, "TM1", 1)
		bad.err = dictionary.ErrGrammarLoad
		g := newGroup(t, Config{Name: "G", NumScores: 1, Members: []string{"TM1"}}, nil, bad)
		ctx, _ := sentence("x")
		_, err := g.Lookup(ctx, phrase.Parse("x"))
		assert.ErrorIs(t, err, dictionary.ErrGrammarLoad)
	})

	t.Run("chart decoding", func(t *testing.T) {
		g := newGroup(t, Config{Name: "G", NumScores: 1, Members: []string{"TM0"}}, nil, m1)
		_, err := g.CreateRuleLookupManager()
		assert.ErrorIs(t, err, dictionary.ErrChartNotSupported)
	})
}

func TestPrefixExists_ForwardsToMembers(t *testing.T) {
	m1 := newStubMember(t, "TM0", 1)
	m2 := newMember(t, "TM1", 1, "x ||| a ||| 0.5\n", nil)
	g := newGroup(t, Config{Name: "G", NumScores: 2, Members: []string{"TM0", "TM1"}}, nil, m1, m2)

	ctx, _ := sentence("x")
	g.PrefixExists(ctx, phrase.Parse("x"))
	assert.Equal(t, 1, m1.probes)
}

func TestCleanUpAfterSentence(t *testing.T) {
	m1 := newStubMember(t, "TM0", 1, candidate("TM0", "a", 0.5))
	m2 := newStubMember(t, "TM1", 1, candidate("TM1", "a", 0.7))
	g := newGroup(t, Config{Name: "G", NumScores: 2, Members: []string{"TM0", "TM1"}}, nil, m1, m2)

	ctx, tk := sentence("x")
	for i := 0; i < 3; i++ {
		_, err := g.Lookup(ctx, phrase.Parse("x"))
		require.NoError(t, err)
	}
	other, otherTask := sentence("x")
	_, err := g.Lookup(other, phrase.Parse("x"))
	require.NoError(t, err)

	assert.Equal(t, 3, g.Cached(tk))
	g.CleanUpAfterSentence(ctx, tk)
	assert.Zero(t, g.Cached(tk))
	assert.Equal(t, 1, g.Cached(otherTask), "other sentences keep their collections")
	assert.Equal(t, 1, m1.cleanups)
	assert.Equal(t, 1, m2.cleanups)

	g.CleanUpAfterSentence(ctx, tk)
	assert.Zero(t, g.Cached(tk))
	assert.Equal(t, 2, m1.cleanups)
}

func TestLookup_Concurrent(t *testing.T) {
	w := scoring.Weights{"G": {1, 1}}
	m1 := newMember(t, "TM0", 1, "x ||| a ||| 0.5\nx ||| b ||| 0.2\n", w)
	m2 := newMember(t, "TM1", 1, "x ||| a ||| 0.9\nx ||| c ||| 0.3\n", w)
	g := newGroup(t, Config{Name: "G", NumScores: 2, Members: []string{"TM0", "TM1"}}, w, m1, m2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, tk := sentence("x")
			coll, err := g.Lookup(ctx, phrase.Parse("x"))
			assert.NoError(t, err)
			assert.Equal(t, []string{"a", "c", "b"}, surfaces(coll))
			g.CleanUpAfterSentence(ctx, tk)
		}()
	}
	wg.Wait()
}

func TestLookup_RecordsSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	m1 := newMember(t, "TM0", 1, "x ||| a ||| 0.5\n", nil)
	set, err := dictionary.NewSet(m1)
	require.NoError(t, err)
	g, err := New(Config{Name: "G", NumScores: 1, Members: []string{"TM0"}}, set, nil, nil, WithTracer(tp.Tracer("test")))
	require.NoError(t, err)
	require.NoError(t, g.Load(context.Background()))

	ctx, _ := sentence("x")
	_, err = g.Lookup(ctx, phrase.Parse("x"))
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "group.lookup", spans[0].Name())
}
