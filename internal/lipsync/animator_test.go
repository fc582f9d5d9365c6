package lipsync

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cortexportrait/internal/random"
	"github.com/normanking/cortexportrait/internal/rendertree"
	"github.com/normanking/cortexportrait/internal/viseme"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestAnimator(t *testing.T) *Animator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Noise = 0
	return NewAnimator(cfg, rendertree.NewRegistry(zerolog.Nop()), random.New(1), zerolog.Nop())
}

func TestPhonemeMode_DequeuesAtCadence(t *testing.T) {
	a := newTestAnimator(t)
	a.PushVisemeSequenceAt("alice", []viseme.Code{viseme.Large, viseme.OShape, viseme.Closed}, t0)
	assert.Equal(t, ModePhoneme, a.Mode("alice"))

	out := a.Update("alice", t0, true, 0)
	require.True(t, out.Override)
	assert.True(t, out.Changed)
	assert.Equal(t, viseme.Large, out.To)
	assert.Equal(t, "larger_mouth", out.Texture)
	assert.Equal(t, 0.0, out.Progress)

	out = a.Update("alice", t0.Add(25*time.Millisecond), true, 0)
	assert.Equal(t, viseme.Large, out.To)
	assert.InDelta(t, 0.5, out.Progress, 1e-9)
	assert.False(t, out.Changed)

	out = a.Update("alice", t0.Add(50*time.Millisecond), true, 0)
	assert.Equal(t, viseme.Large, out.From)
	assert.Equal(t, viseme.OShape, out.To)
	assert.Equal(t, "O_mouth", out.Texture)
	assert.Equal(t, 1, a.QueueLen("alice"))

	out = a.Update("alice", t0.Add(100*time.Millisecond), true, 0)
	assert.Equal(t, viseme.Closed, out.To)
	assert.Equal(t, 0, a.QueueLen("alice"))
}

func TestStop_ClearsQueueAndOverride(t *testing.T) {
	a := newTestAnimator(t)
	a.PushVisemeSequenceAt("bob", []viseme.Code{viseme.Large, viseme.Large, viseme.Large}, t0)
	a.Update("bob", t0, true, 0)

	out := a.Update("bob", t0.Add(16*time.Millisecond), false, 0)
	assert.False(t, out.Override)
	assert.Equal(t, viseme.Closed, out.To)
	assert.Equal(t, 0, a.QueueLen("bob"))
	assert.Equal(t, ModeNone, a.Mode("bob"))
	assert.False(t, a.IsSpeaking("bob"))
}

func TestPendingQueue(t *testing.T) {
	a := newTestAnimator(t)
	a.PushVisemeSequenceAt("c", []viseme.Code{viseme.Smile}, t0)

	// queued before playback starts
	a.Update("c", t0.Add(100*time.Millisecond), false, 0)
	assert.Equal(t, 1, a.QueueLen("c"))
	out := a.Update("c", t0.Add(116*time.Millisecond), true, 0)
	assert.Equal(t, viseme.Smile, out.To)

	a.Stop("c")
	a.PushVisemeSequenceAt("c", []viseme.Code{viseme.Smile}, t0)
	a.Update("c", t0.Add(3*time.Second), false, 0)
	assert.Equal(t, ModeNone, a.Mode("c"))
}

func TestLatePushAfterStopIsDropped(t *testing.T) {
	a := newTestAnimator(t)
	a.PushVisemeSequenceAt("e", []viseme.Code{viseme.Large}, t0)
	a.Update("e", t0, true, 0)
	a.Update("e", t0.Add(100*time.Millisecond), false, 0)

	// trailing phonemes of the finished utterance
	a.PushVisemeSequenceAt("e", []viseme.Code{viseme.OShape, viseme.OShape}, t0.Add(150*time.Millisecond))
	a.PushVisemeSequenceAt("e", []viseme.Code{viseme.OShape}, t0.Add(50*time.Millisecond))
	assert.Equal(t, 0, a.QueueLen("e"))
	assert.Equal(t, ModeNone, a.Mode("e"))

	out := a.Update("e", t0.Add(1100*time.Millisecond), true, 0)
	assert.NotEqual(t, viseme.OShape, out.To)
	assert.Equal(t, viseme.Closed, out.To)

	// a push well after the stop is buffered for the next utterance
	a.Update("e", t0.Add(1200*time.Millisecond), false, 0)
	a.PushVisemeSequenceAt("e", []viseme.Code{viseme.Smile}, t0.Add(2*time.Second))
	assert.Equal(t, 1, a.QueueLen("e"))
	out = a.Update("e", t0.Add(2100*time.Millisecond), true, 0)
	assert.Equal(t, viseme.Smile, out.To)
}

func TestInvalidCodesBecomeClosed(t *testing.T) {
	a := newTestAnimator(t)
	a.PushVisemeSequenceAt("d", []viseme.Code{viseme.Code(77)}, t0)
	a.Update("d", t0, true, 0)
	out := a.Update("d", t0.Add(10*time.Millisecond), true, 0)
	assert.Equal(t, viseme.Closed, out.To)
}

func TestAmplitudeMode_PushedOpennessFreshness(t *testing.T) {
	a := newTestAnimator(t)
	a.PushOpennessAt("e", 0.9, t0)
	assert.Equal(t, ModeAmplitude, a.Mode("e"))

	a.Update("e", t0, true, 0)
	out := a.Update("e", t0.Add(20*time.Millisecond), true, 0)
	assert.Greater(t, out.Openness, 0.3)

	// stale push: silence from the amplitude input wins and the mouth closes
	now := t0.Add(300 * time.Millisecond)
	for i := 0; i < 50; i++ {
		now = now.Add(20 * time.Millisecond)
		out = a.Update("e", now, true, 0)
	}
	assert.Equal(t, 0.0, out.Openness)
	assert.Equal(t, viseme.Closed, out.To)
}

func TestAmplitudeMode_SilenceGate(t *testing.T) {
	a := newTestAnimator(t)
	now := t0
	var out Output
	for i := 0; i < 30; i++ {
		out = a.Update("f", now, true, 0.01)
		now = now.Add(16 * time.Millisecond)
	}
	assert.Equal(t, 0.0, out.Openness)
	assert.Equal(t, viseme.Closed, out.To)
	assert.Equal(t, ModeAmplitude, a.Mode("f"))
}

func TestAmplitudeMode_DerivedFromAmplitude(t *testing.T) {
	a := newTestAnimator(t)
	now := t0
	var out Output
	for i := 0; i < 100; i++ {
		out = a.Update("g", now, true, 0.2)
		now = now.Add(16 * time.Millisecond)
	}
	assert.InDelta(t, 0.6, out.Openness, 0.01)
	assert.Equal(t, viseme.Large, out.To)
}

func TestAmplitudeMode_Debounce(t *testing.T) {
	a := newTestAnimator(t)
	step := 10 * time.Millisecond
	now := t0

	for i := 0; i < 100; i++ {
		a.PushOpennessAt("h", 0.32, now)
		a.Update("h", now, true, 0)
		now = now.Add(step)
	}

	var changes []time.Time
	for i := 0; i < 100; i++ {
		target := 0.26
		if i%2 == 1 {
			target = 0.34
		}
		a.PushOpennessAt("h", target, now)
		if out := a.Update("h", now, true, 0); out.Changed {
			changes = append(changes, now)
		}
		now = now.Add(step)
	}

	for i := 1; i < len(changes); i++ {
		assert.GreaterOrEqual(t, changes[i].Sub(changes[i-1]), DefaultConfig().MinHoldTime)
	}
}

func TestAmplitudeMode_SuddenBypassesHold(t *testing.T) {
	a := newTestAnimator(t)
	step := 10 * time.Millisecond
	now := t0

	for i := 0; i < 100; i++ {
		a.PushOpennessAt("i", 0.35, now)
		a.Update("i", now, true, 0)
		now = now.Add(step)
	}

	a.PushOpennessAt("i", 0, now)
	out := a.Update("i", now, true, 0)
	require.True(t, out.Changed)
	assert.Equal(t, viseme.Small, out.To)

	now = now.Add(step)
	a.PushOpennessAt("i", 0.95, now)
	out = a.Update("i", now, true, 0)
	assert.True(t, out.Changed, "sudden change must not wait for the hold time")
	assert.Equal(t, viseme.Medium, out.To)
}

func TestModeSwitchIsAtomic(t *testing.T) {
	a := newTestAnimator(t)
	a.PushVisemeSequenceAt("j", []viseme.Code{viseme.Large, viseme.Large}, t0)
	a.PushOpennessAt("j", 0.5, t0)
	assert.Equal(t, ModeAmplitude, a.Mode("j"))
	assert.Equal(t, 0, a.QueueLen("j"))

	a.PushVisemeSequenceAt("j", []viseme.Code{viseme.Smile}, t0)
	assert.Equal(t, ModePhoneme, a.Mode("j"))
	assert.Equal(t, 1, a.QueueLen("j"))
}

func TestResetAll(t *testing.T) {
	a := newTestAnimator(t)
	a.PushOpennessAt("k", 0.5, t0)
	a.PushOpennessAt("l", 0.5, t0)
	assert.Equal(t, []string{"k", "l"}, a.Characters())

	a.ResetAll()
	assert.Empty(t, a.Characters())
}
