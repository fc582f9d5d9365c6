package audio

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cortexportrait/internal/bus"
)

func pcm16(value int16, samples int) []byte {
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(value))
	}
	return out
}

func TestCalculateRMS(t *testing.T) {
	assert.InDelta(t, 0.5, calculateRMS(pcm16(16384, 64), Signed16), 1e-9)
	assert.InDelta(t, 0.5, calculateRMS(pcm16(-16384, 64), Signed16), 1e-9)
	assert.Equal(t, 0.0, calculateRMS(nil, Signed16))

	silence := make([]byte, 32)
	for i := range silence {
		silence[i] = 128
	}
	assert.Equal(t, 0.0, calculateRMS(silence, Unsigned8))

	f := make([]byte, 16)
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint32(f[i*4:], math.Float32bits(0.25))
	}
	assert.InDelta(t, 0.25, calculateRMS(f, Float32), 1e-6)
}

func TestMeter_Smoothing(t *testing.T) {
	m := NewMeter(Signed16, 2)
	assert.InDelta(t, 0.5, m.Process(pcm16(16384, 32)), 1e-9)
	assert.InDelta(t, 0.25, m.Process(pcm16(0, 32)), 1e-9)
	assert.InDelta(t, 0.0, m.Process(pcm16(0, 32)), 1e-9)

	m.Reset()
	assert.InDelta(t, 0.5, m.Process(pcm16(16384, 32)), 1e-9)
}

func TestPlayback_Lifecycle(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewPlayback(PlaybackConfig{SmoothingFrames: 1}, nil, zerolog.Nop())
	p.SetClock(func() time.Time { return now })

	assert.False(t, p.IsPlaying("a"))
	assert.Equal(t, 0.0, p.Amplitude("a"))

	level, err := p.Feed("a", pcm16(16384, 64))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, level, 1e-9)
	assert.True(t, p.IsPlaying("a"))
	assert.InDelta(t, 0.5, p.Amplitude("a"), 1e-9)
	assert.Equal(t, []string{"a"}, p.Playing())

	// chunks stopped arriving
	now = now.Add(300 * time.Millisecond)
	assert.True(t, p.IsPlaying("a"))
	assert.Equal(t, 0.0, p.Amplitude("a"))

	p.Stop("a")
	assert.False(t, p.IsPlaying("a"))
	assert.Empty(t, p.Playing())
}

func TestPlayback_PublishesSpeakingEvents(t *testing.T) {
	b := bus.NewEventBus()
	got := make(chan bus.Event, 4)
	b.SubscribeMultiple([]bus.EventType{bus.EventTypeSpeakingStarted, bus.EventTypeSpeakingStopped}, func(e bus.Event) {
		got <- e
	})

	p := NewPlayback(DefaultPlaybackConfig(), b, zerolog.Nop())
	p.Start("a")
	p.Start("a")
	p.Stop("a")

	first := <-got
	second := <-got
	types := []bus.EventType{first.Type, second.Type}
	assert.ElementsMatch(t, []bus.EventType{bus.EventTypeSpeakingStarted, bus.EventTypeSpeakingStopped}, types)
	assert.Equal(t, "a", first.CharacterID)
}

func TestPlayback_FeedErrors(t *testing.T) {
	p := NewPlayback(DefaultPlaybackConfig(), nil, zerolog.Nop())

	_, err := p.Feed("a", nil)
	assert.ErrorIs(t, err, ErrEmptyChunk)

	_, err = p.FeedBase64("a", "not base64!")
	assert.ErrorIs(t, err, ErrInvalidFormat)

	level, err := p.FeedBase64("a", base64.StdEncoding.EncodeToString(pcm16(16384, 16)))
	require.NoError(t, err)
	assert.Greater(t, level, 0.0)
}
