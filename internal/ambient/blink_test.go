package ambient

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cortexportrait/internal/random"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) time.Time { return t0.Add(d) }

func newBlinker(rolls ...float64) *Blinker {
	return NewBlinker(DefaultBlinkConfig(), &random.Sequence{Floats: rolls}, zerolog.Nop())
}

func TestBlink_Cycle(t *testing.T) {
	b := newBlinker(0)

	st := b.Update("a", t0)
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.False(t, st.EyesClosed)

	st = b.Update("a", at(2999*time.Millisecond))
	assert.False(t, st.EyesClosed)

	st = b.Update("a", at(3*time.Second))
	assert.Equal(t, PhaseBlinking, st.Phase)
	assert.True(t, st.EyesClosed)

	st = b.Update("a", at(3100*time.Millisecond))
	assert.True(t, st.EyesClosed)

	// no rest condition installed: straight back to idle
	st = b.Update("a", at(3150*time.Millisecond))
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.False(t, st.RestStarted)

	st = b.Update("a", at(6150*time.Millisecond))
	assert.Equal(t, PhaseBlinking, st.Phase)
}

func TestBlink_RestingGatedByConditionAndCooldown(t *testing.T) {
	b := newBlinker(0)
	b.SetRestCondition(func(id string) bool { return id == "a" })

	b.Update("a", t0)
	b.Update("a", at(3*time.Second))
	st := b.Update("a", at(3150*time.Millisecond))
	require.True(t, st.RestStarted)
	assert.Equal(t, PhaseResting, st.Phase)
	assert.True(t, st.EyesClosed)

	st = b.Update("a", at(5100*time.Millisecond))
	assert.Equal(t, PhaseResting, st.Phase)

	st = b.Update("a", at(5150*time.Millisecond))
	assert.True(t, st.RestEnded)
	assert.Equal(t, PhaseIdle, st.Phase)

	// next blink is inside the cooldown, so no second rest
	b.Update("a", at(8150*time.Millisecond))
	st = b.Update("a", at(8300*time.Millisecond))
	assert.False(t, st.RestStarted)
	assert.Equal(t, PhaseIdle, st.Phase)

	// a character failing the condition never rests
	b.Update("b", t0)
	b.Update("b", at(3*time.Second))
	st = b.Update("b", at(3150*time.Millisecond))
	assert.False(t, st.RestStarted)
}

func TestBlink_RestingChance(t *testing.T) {
	b := newBlinker(0.5)
	b.SetRestCondition(func(string) bool { return true })

	b.Update("a", t0)
	b.Update("a", at(4500*time.Millisecond))
	st := b.Update("a", at(4650*time.Millisecond))
	assert.False(t, st.RestStarted)
	assert.Equal(t, PhaseIdle, st.Phase)
}

func TestBlink_Drowsy(t *testing.T) {
	b := newBlinker(0)
	b.SetDrowsy("a", true)

	st := b.Update("a", t0)
	assert.True(t, st.EyesClosed)
	st = b.Update("a", at(10*time.Second))
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.True(t, st.EyesClosed)

	b.ForceOpenEyes("a", at(10*time.Second))
	st = b.Update("a", at(10*time.Second))
	assert.False(t, st.EyesClosed)
}

func TestBlink_ForceOps(t *testing.T) {
	b := newBlinker(0)
	b.Update("a", t0)

	b.ForceResting("a", at(time.Second), 500*time.Millisecond)
	assert.Equal(t, PhaseResting, b.Phase("a"))
	st := b.Update("a", at(1500*time.Millisecond))
	assert.True(t, st.RestEnded)

	b.TriggerBlink("a", at(2*time.Second))
	assert.Equal(t, PhaseBlinking, b.Phase("a"))

	b.ForceOpenEyes("a", at(2050*time.Millisecond))
	assert.Equal(t, PhaseIdle, b.Phase("a"))
}

func TestBlink_SetBlinkInterval(t *testing.T) {
	b := newBlinker(0)
	b.Update("a", t0)
	b.SetBlinkInterval("a", time.Second, time.Second)

	b.Update("a", at(3*time.Second))
	b.Update("a", at(3150*time.Millisecond))
	st := b.Update("a", at(4150*time.Millisecond))
	assert.Equal(t, PhaseBlinking, st.Phase)

	b.ResetAll()
	assert.Empty(t, b.Characters())
}

func TestContentment(t *testing.T) {
	c := NewContentment(DefaultContentmentConfig(), &random.Sequence{Floats: []float64{0.1}}, zerolog.Nop())

	assert.False(t, c.Update("a", t0, true, 50).Active, "below the affinity threshold")
	assert.False(t, c.Update("a", t0, false, 90).Active, "not idle")

	st := c.Update("a", t0, true, 90)
	require.True(t, st.Started)
	assert.True(t, c.Active("a"))

	assert.True(t, c.Update("a", at(2*time.Second), true, 90).Active)
	st = c.Update("a", at(2300*time.Millisecond), true, 90)
	assert.True(t, st.Ended)

	// waits for the next check
	assert.False(t, c.Update("a", at(3*time.Second), true, 90).Active)
	assert.True(t, c.Update("a", at(13*time.Second), true, 90).Started)

	// speech ends it early
	st = c.Update("a", at(13500*time.Millisecond), false, 90)
	assert.True(t, st.Ended)
	assert.False(t, c.End("a", at(14*time.Second)))
}

func TestContentment_End(t *testing.T) {
	c := NewContentment(DefaultContentmentConfig(), &random.Sequence{Floats: []float64{0.1}}, zerolog.Nop())
	c.Update("a", t0, true, 90)
	assert.True(t, c.End("a", at(time.Second)))
	assert.False(t, c.Active("a"))
}

func TestContentment_ChanceFails(t *testing.T) {
	c := NewContentment(DefaultContentmentConfig(), &random.Sequence{Floats: []float64{0.9}}, zerolog.Nop())
	assert.False(t, c.Update("a", t0, true, 90).Active)
}
