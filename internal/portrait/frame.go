package portrait

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/normanking/cortexportrait/internal/ambient"
	"github.com/normanking/cortexportrait/internal/expression"
	"github.com/normanking/cortexportrait/internal/rendertree"
	"github.com/normanking/cortexportrait/internal/viseme"
)

// Source names the subsystem that owns a channel on a given tick.
type Source string

const (
	SourceEmotion     Source = "emotion"
	SourceSpeech      Source = "speech"
	SourceBlink       Source = "blink"
	SourceResting     Source = "resting"
	SourceContentment Source = "contentment"
)

// CacheKey identifies a composited portrait. It changes exactly when the
// expression or its variant does.
type CacheKey struct {
	Expression expression.Expression
	Variant    int
}

func (k CacheKey) String() string {
	if k.Variant <= 0 {
		return k.Expression.Key()
	}
	return k.Expression.Key() + "#" + strconv.Itoa(k.Variant)
}

// ChannelSelection is what a compositor draws for one channel.
type ChannelSelection struct {
	Channel rendertree.Channel
	Source  Source
	// Texture is the channel's current target, possibly rendertree.UseBase.
	Texture string
	// Layers holds one entry when settled and two while crossfading.
	Layers []ambient.Layer
}

// UseBase reports whether the settled texture is the base art.
func (c ChannelSelection) UseBase() bool {
	return c.Texture == rendertree.UseBase
}

// Frame is one character's complete visual state for a tick.
type Frame struct {
	ID          uuid.UUID
	Session     uuid.UUID
	CharacterID string
	Tick        int64
	Time        time.Time

	Expression expression.Expression
	Variant    int
	Previous   expression.Expression
	Transition float64
	CacheKey   CacheKey

	Speaking bool
	Viseme   viseme.Code
	Openness float64

	Blink       ambient.BlinkPhase
	EyesClosed  bool
	Contentment bool
	Breath      ambient.Breath

	// Channels is in compositing order.
	Channels []ChannelSelection
}

// Channel returns the selection for ch.
func (f Frame) Channel(ch rendertree.Channel) (ChannelSelection, bool) {
	for _, c := range f.Channels {
		if c.Channel == ch {
			return c, true
		}
	}
	return ChannelSelection{}, false
}
