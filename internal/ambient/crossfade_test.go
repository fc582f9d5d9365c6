package ambient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/normanking/cortexportrait/internal/expression"
	"github.com/normanking/cortexportrait/internal/random"
	"github.com/normanking/cortexportrait/internal/rendertree"
)

func TestFader_Blend(t *testing.T) {
	f := NewFader("a")
	assert.False(t, f.Blending())

	assert.True(t, f.SetTarget("b", 5))
	assert.Equal(t, []Layer{{"a", 1}, {"b", 0}}, f.Layers())

	f.Update(100 * time.Millisecond)
	layers := f.Layers()
	assert.InDelta(t, 0.5, layers[0].Weight, 1e-9)
	assert.InDelta(t, 0.5, layers[1].Weight, 1e-9)

	assert.False(t, f.SetTarget("b", 5), "same target is a no-op")

	f.Update(100 * time.Millisecond)
	assert.Equal(t, []Layer{{"b", 1}}, f.Layers())
	assert.False(t, f.Blending())
}

func TestFader_RetargetMidBlend(t *testing.T) {
	f := NewFader("b")
	f.SetTarget("c", 5)
	f.Update(60 * time.Millisecond)

	// b still dominates
	f.SetTarget("d", 5)
	assert.Equal(t, []Layer{{"b", 1}, {"d", 0}}, f.Layers())

	f.Update(140 * time.Millisecond)
	// d dominates now
	f.SetTarget("e", 5)
	assert.Equal(t, []Layer{{"d", 1}, {"e", 0}}, f.Layers())

	f.SetTarget("d", 5)
	assert.Equal(t, []Layer{{"d", 1}}, f.Layers())
}

func TestFader_InstantAndImmediate(t *testing.T) {
	f := NewFader("a")
	f.SetTarget("b", DefaultCrossfadeConfig().InstantSpeed)
	f.Update(16 * time.Millisecond)
	assert.Equal(t, "b", f.Layers()[0].Texture)

	f.SetImmediate("z")
	assert.Equal(t, []Layer{{"z", 1}}, f.Layers())
	assert.Equal(t, 1.0, f.Progress())
}

func TestCrossfades_PerCharacterChannels(t *testing.T) {
	c := NewCrossfades(CrossfadeConfig{})
	assert.Equal(t, 5.0, c.Config().DefaultSpeed)

	assert.Nil(t, c.Layers("a", rendertree.ChannelMouth))

	c.SetTarget("a", rendertree.ChannelMouth, "opened_mouth", 5)
	assert.Equal(t, []Layer{{"opened_mouth", 1}}, c.Layers("a", rendertree.ChannelMouth))

	c.SetTarget("a", rendertree.ChannelMouth, "larger_mouth", 5)
	c.SetTarget("b", rendertree.ChannelMouth, "sad_mouth", 5)
	c.SetTarget("b", rendertree.ChannelMouth, "angry_mouth", 5)

	c.Update("a", time.Second)
	assert.Equal(t, []Layer{{"larger_mouth", 1}}, c.Layers("a", rendertree.ChannelMouth))
	assert.Len(t, c.Layers("b", rendertree.ChannelMouth), 2)

	tex, ok := c.Target("b", rendertree.ChannelMouth)
	assert.True(t, ok)
	assert.Equal(t, "angry_mouth", tex)

	c.ResetAll()
	_, ok = c.Target("b", rendertree.ChannelMouth)
	assert.False(t, ok)
}

func TestBreathing(t *testing.T) {
	b := NewBreathing(DefaultBreathingConfig(), &random.Sequence{Floats: []float64{0.5}})

	speed, amp := b.Rhythm("a")
	assert.InDelta(t, 0.5, speed, 1e-9)
	assert.InDelta(t, 2.0, amp, 1e-9)

	// a quarter cycle puts the chest at its peak
	br := b.Update("a", 500*time.Millisecond)
	assert.InDelta(t, 2.0, float64(br.Offset.Y()), 1e-5)
	assert.InDelta(t, 0.0, float64(br.Offset.X()), 1e-9)
	assert.InDelta(t, 1.005, float64(br.Scale), 1e-5)
	assert.Less(t, float64(br.HeadOffset.Y()), float64(br.Offset.Y()))

	b.SetExpression("angry", expression.Angry)
	b.SetExpression("sad", expression.Sad)
	angrySpeed, angryAmp := b.Rhythm("angry")
	sadSpeed, _ := b.Rhythm("sad")
	assert.Greater(t, angrySpeed, sadSpeed)
	assert.InDelta(t, 3.5*1.1, angryAmp, 1e-9)
}
