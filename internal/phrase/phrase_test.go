package phrase

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/phrasegroup/internal/scoring"
)

func scored(words string, score float32) *TargetPhrase {
	tp := NewTargetPhrase(Parse(words), nil)
	tp.FullScore = score
	return tp
}

func TestParse(t *testing.T) {
	p := Parse("  das  haus ")
	assert.Equal(t, Phrase{"das", "haus"}, p)
	assert.Equal(t, "das haus", p.String())
	assert.Equal(t, Phrase{"haus"}, p.Sub(1, 2))
	assert.True(t, p.Equal(Phrase{"das", "haus"}))
	assert.False(t, p.Equal(Phrase{"das"}))
}

func TestTargetPhrase_StructuralKey(t *testing.T) {
	a := NewTargetPhrase(Parse("the house"), []AlignPoint{{0, 0}, {1, 1}})
	b := NewTargetPhrase(Parse("the house"), []AlignPoint{{0, 0}, {1, 1}})
	b.Scores.Assign("tm", []float32{1})
	c := NewTargetPhrase(Parse("the house"), []AlignPoint{{0, 1}, {1, 0}})
	d := NewTargetPhrase(Parse("thehouse"), []AlignPoint{{0, 0}, {1, 1}})

	assert.Equal(t, a.Hash(), b.Hash(), "scores must not affect the key")
	assert.True(t, a.SameSurface(b))
	assert.NotEqual(t, a.Hash(), c.Hash())
	assert.False(t, a.SameSurface(c))
	assert.NotEqual(t, a.Hash(), d.Hash(), "word boundaries are part of the key")
	assert.False(t, a.SameSurface(d))
}

func TestTargetPhrase_AlignmentIsASet(t *testing.T) {
	a := NewTargetPhrase(Parse("the house"), []AlignPoint{{0, 0}, {1, 1}})
	b := NewTargetPhrase(Parse("the house"), []AlignPoint{{1, 1}, {0, 0}, {1, 1}})

	assert.Equal(t, []AlignPoint{{0, 0}, {1, 1}}, b.Alignment)
	assert.Equal(t, a.Hash(), b.Hash())
	assert.True(t, a.SameSurface(b))

	in := []AlignPoint{{1, 1}, {0, 0}}
	NewTargetPhrase(Parse("x y"), in)
	assert.Equal(t, []AlignPoint{{1, 1}, {0, 0}}, in, "caller's slice is left alone")
}

func TestTargetPhrase_Clone(t *testing.T) {
	orig := NewTargetPhrase(Parse("a b"), []AlignPoint{{0, 0}})
	orig.Scores.Assign("tm", []float32{0.5})
	orig.SetExtra("lr", "blob")

	cp := orig.Clone()
	cp.Words[0] = "x"
	cp.Alignment[0].Target = 3
	cp.Scores.Zero("tm")
	cp.SetExtra("other", 1)

	assert.Equal(t, Phrase{"a", "b"}, orig.Words)
	assert.Equal(t, 0, orig.Alignment[0].Target)
	assert.Equal(t, []float32{0.5}, orig.Scores.ScoresFor("tm"))
	assert.Len(t, orig.Extra, 1)
}

type constFeature struct {
	name     string
	estimate float32
}

func (f constFeature) Name() string            { return f.name }
func (f constFeature) NumScoreComponents() int { return 1 }
func (f constFeature) EvaluateInIsolation(_ Phrase, _ *TargetPhrase, scores, estimated *scoring.Breakdown) {
	scores.Assign(f.name, []float32{1})
	estimated.Assign(f.name, []float32{f.estimate})
}

func TestTargetPhrase_EvaluateInIsolation(t *testing.T) {
	tp := NewTargetPhrase(Parse("x"), nil)
	tp.Scores.Assign("tm", []float32{2})
	w := scoring.Weights{"tm": {0.5}, "wp": {-1}}

	tp.EvaluateInIsolation(Parse("a"), nil, w)
	assert.Zero(t, tp.FullScore, "no features leaves scores untouched")

	tp.EvaluateInIsolation(Parse("a"), []FeatureFunction{constFeature{name: "wp", estimate: 3}}, w)
	assert.InDelta(t, -3, tp.FutureScore, 1e-6)
	// 2*0.5 + 1*-1 + future(-3)
	assert.InDelta(t, -3, tp.FullScore, 1e-6)
}

func TestCollection_NthElement(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, limit := range []int{0, 1, 3, 5, 9, 10, 50} {
		t.Run(fmt.Sprintf("limit=%d", limit), func(t *testing.T) {
			c := NewCollection()
			for i := 0; i < 10; i++ {
				c.Add(scored(fmt.Sprintf("w%d", i), float32(rng.Intn(6))))
			}
			all := append([]*TargetPhrase(nil), c.Phrases()...)

			c.NthElement(limit)
			require.Equal(t, 10, c.Len())

			n := limit
			if n <= 0 || n > 10 {
				n = 10
			}
			for i := 1; i < n; i++ {
				assert.GreaterOrEqual(t, c.Phrases()[i-1].FullScore, c.Phrases()[i].FullScore)
			}
			for _, head := range c.Phrases()[:n] {
				for _, tail := range c.Phrases()[n:] {
					assert.GreaterOrEqual(t, head.FullScore, tail.FullScore)
				}
			}
			assert.ElementsMatch(t, all, c.Phrases())
		})
	}
}

func TestCollection_Prune(t *testing.T) {
	c := NewCollection(scored("a", 1), scored("b", 3), scored("c", 2))
	c.Prune(2)

	require.Equal(t, 2, c.Len())
	assert.Equal(t, "b", c.Phrases()[0].Words.String())
	assert.Equal(t, "c", c.Phrases()[1].Words.String())

	c.Prune(0)
	assert.Equal(t, 2, c.Len())
	assert.Len(t, c.Top(1), 1)
	assert.Len(t, c.Top(0), 2)
}

func TestCollection_Nil(t *testing.T) {
	var c *Collection
	assert.Zero(t, c.Len())
	assert.Nil(t, c.Phrases())
	assert.Nil(t, c.Top(3))
}
