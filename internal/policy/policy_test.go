package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedRand returns scripted values, cycling when exhausted.
type fixedRand struct {
	floats []float64
	ints   []int
	fi, ii int
}

func (f *fixedRand) Float64() float64 {
	v := f.floats[f.fi%len(f.floats)]
	f.fi++
	return v
}

func (f *fixedRand) IntN(n int) int {
	v := f.ints[f.ii%len(f.ints)] % n
	f.ii++
	return v
}

func TestDecide_Boundaries(t *testing.T) {
	w := Weights{React: 0.2, Reply: 0.5}
	assert.Equal(t, ActionReact, Decide(w, 0))
	assert.Equal(t, ActionReact, Decide(w, 0.1999))
	assert.Equal(t, ActionReply, Decide(w, 0.2))
	assert.Equal(t, ActionReply, Decide(w, 0.6999))
	assert.Equal(t, ActionIgnore, Decide(w, 0.7))
	assert.Equal(t, ActionIgnore, Decide(w, 0.9999))

	assert.Equal(t, ActionIgnore, Decide(Weights{}, 0))
	assert.Equal(t, ActionReply, Decide(Weights{Reply: 1}, 0.9999))
}

func TestNextAction_FrequenciesMatchWeights(t *testing.T) {
	weights := []Weights{
		{React: 0.25, Reply: 0.6},
		{React: 0.5, Reply: 0.5},
		{React: 0.1, Reply: 0.1},
		{React: 0, Reply: 1},
	}
	const trials = 200000
	for _, w := range weights {
		p, err := New(Config{Weights: w, Emojis: []string{"👍"}}, NewRand(42))
		require.NoError(t, err)

		counts := map[Action]int{}
		for i := 0; i < trials; i++ {
			counts[p.NextAction()]++
		}
		assert.InDelta(t, w.React, float64(counts[ActionReact])/trials, 0.01, "react for %+v", w)
		assert.InDelta(t, w.Reply, float64(counts[ActionReply])/trials, 0.01, "reply for %+v", w)
		assert.InDelta(t, 1-w.React-w.Reply, float64(counts[ActionIgnore])/trials, 0.01, "ignore for %+v", w)
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	_, err := New(Config{Weights: Weights{React: 0.6, Reply: 0.6}}, nil)
	assert.Error(t, err)

	_, err = New(Config{Weights: Weights{React: 0.3}}, nil)
	assert.Error(t, err, "reactions need emojis")

	_, err = New(Config{Weights: Weights{Reply: 1}}, nil)
	assert.NoError(t, err)
}

func TestEmoji_UniformOverSet(t *testing.T) {
	set := []string{"a", "b", "c", "d"}
	p, err := New(Config{Weights: Weights{React: 1}, Emojis: set}, NewRand(7))
	require.NoError(t, err)

	counts := map[string]int{}
	const trials = 40000
	for i := 0; i < trials; i++ {
		counts[p.Emoji()]++
	}
	require.Len(t, counts, len(set))
	for _, e := range set {
		assert.InDelta(t, 0.25, float64(counts[e])/trials, 0.02)
	}
}

func TestCanReact(t *testing.T) {
	with, err := New(Config{Emojis: []string{"👍"}}, NewRand(1))
	require.NoError(t, err)
	assert.True(t, with.CanReact())

	without, err := New(Config{Weights: Weights{Reply: 1}}, NewRand(1))
	require.NoError(t, err)
	assert.False(t, without.CanReact())
	assert.Empty(t, without.Emoji())
}

func TestShouldTag(t *testing.T) {
	forced, err := New(Config{TagProbability: 0, ForceTagInGroups: true}, &fixedRand{floats: []float64{0.99}})
	require.NoError(t, err)
	assert.True(t, forced.ShouldTag(true))
	assert.False(t, forced.ShouldTag(false))

	prob, err := New(Config{TagProbability: 0.5}, &fixedRand{floats: []float64{0.4, 0.6}})
	require.NoError(t, err)
	assert.True(t, prob.ShouldTag(true))
	assert.False(t, prob.ShouldTag(true))
}

func TestTypingDelay(t *testing.T) {
	p, err := New(Config{
		TypingBase:    time.Second,
		TypingJitter:  time.Second,
		TypingPerChar: 10 * time.Millisecond,
		TypingMax:     5 * time.Second,
	}, &fixedRand{floats: []float64{0.5}})
	require.NoError(t, err)

	assert.Equal(t, time.Second+100*time.Millisecond+500*time.Millisecond, p.TypingDelay(10))
	assert.Equal(t, 5*time.Second, p.TypingDelay(10000), "capped")
}

func TestReactDelay_WithinRange(t *testing.T) {
	p, err := New(Config{ReactBase: 100 * time.Millisecond, ReactJitter: 200 * time.Millisecond}, NewRand(3))
	require.NoError(t, err)
	for i := 0; i < 1000; i++ {
		d := p.ReactDelay()
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 300*time.Millisecond)
	}
}

func TestUniform(t *testing.T) {
	r := NewRand(11)
	for i := 0; i < 1000; i++ {
		d := Uniform(r, time.Second, 3*time.Second)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 3*time.Second)
	}
	assert.Equal(t, time.Second, Uniform(r, time.Second, time.Second))
	assert.Equal(t, time.Second, Uniform(r, time.Second, 0))
}

func TestAddressed(t *testing.T) {
	assert.True(t, Addressed("hey MIRA what's up", false, "Mira"))
	assert.True(t, Addressed("ping @mira_bot", false, "Mira", "@mira_bot"))
	assert.True(t, Addressed("", true, "Mira"))
	assert.False(t, Addressed("hello everyone", false, "Mira", " "))
	assert.False(t, Addressed("hello", false))
}

func TestParseVerdict(t *testing.T) {
	tests := map[string]Verdict{
		"YES":               VerdictYes,
		"yes.":              VerdictYes,
		"  **Yes** because": VerdictYes,
		"NO":                VerdictNo,
		"no, not needed":    VerdictNo,
		"maybe":             VerdictUnknown,
		"":                  VerdictUnknown,
		"Nope":              VerdictUnknown,
		"YESTERDAY":         VerdictUnknown,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseVerdict(in), "input %q", in)
	}
}

func TestParseActionVerdict(t *testing.T) {
	a, ok := ParseActionVerdict("MESSAGE")
	assert.True(t, ok)
	assert.Equal(t, ActionReply, a)

	a, ok = ParseActionVerdict("reaction!")
	assert.True(t, ok)
	assert.Equal(t, ActionReact, a)

	a, ok = ParseActionVerdict("Ignore")
	assert.True(t, ok)
	assert.Equal(t, ActionIgnore, a)

	_, ok = ParseActionVerdict("send a gif")
	assert.False(t, ok)
}
