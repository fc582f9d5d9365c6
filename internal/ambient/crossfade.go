package ambient

import (
	"sync"
	"time"

	"github.com/normanking/cortexportrait/internal/rendertree"
)

type CrossfadeConfig struct {
	DefaultSpeed float64 `mapstructure:"default_speed"`
	SlowSpeed    float64 `mapstructure:"slow_speed"`
	InstantSpeed float64 `mapstructure:"instant_speed"`
}

func DefaultCrossfadeConfig() CrossfadeConfig {
	return CrossfadeConfig{
		DefaultSpeed: 5,
		SlowSpeed:    2,
		InstantSpeed: 999,
	}
}

// Layer is one texture with its compositing weight.
type Layer struct {
	Texture string
	Weight  float64
}

// Fader blends one visual channel between two textures. A Fader is not
// safe for concurrent use; Crossfades guards its faders.
type Fader struct {
	from     string
	to       string
	progress float64
	speed    float64
}

// NewFader starts fully showing tex.
func NewFader(tex string) *Fader {
	return &Fader{from: tex, to: tex, progress: 1}
}

// SetTarget starts blending towards tex at speed (progress per second).
// Mid-blend, the blend restarts from whichever texture dominates the
// screen. Re-targeting the current target is a no-op.
func (f *Fader) SetTarget(tex string, speed float64) bool {
	if tex == f.to {
		return false
	}
	if f.progress >= 0.5 {
		f.from = f.to
	}
	if tex == f.from {
		// reverting to what dominates: no blend needed
		f.to = tex
		f.progress = 1
		return true
	}
	f.to = tex
	f.progress = 0
	f.speed = speed
	if speed <= 0 {
		f.progress = 1
		f.from = tex
	}
	return true
}

// SetImmediate shows tex with no blend.
func (f *Fader) SetImmediate(tex string) {
	f.from, f.to = tex, tex
	f.progress = 1
}

// Update advances the blend by dt.
func (f *Fader) Update(dt time.Duration) {
	if f.progress >= 1 {
		return
	}
	f.progress += dt.Seconds() * f.speed
	if f.progress >= 1 {
		f.progress = 1
		f.from = f.to
	}
}

func (f *Fader) Blending() bool { return f.progress < 1 }

func (f *Fader) Target() string { return f.to }

func (f *Fader) Progress() float64 { return f.progress }

// Layers returns the outgoing and incoming layers. Once the blend has
// finished only the target remains.
func (f *Fader) Layers() []Layer {
	if f.progress >= 1 {
		return []Layer{{Texture: f.to, Weight: 1}}
	}
	return []Layer{
		{Texture: f.from, Weight: 1 - f.progress},
		{Texture: f.to, Weight: f.progress},
	}
}

type faderKey struct {
	id string
	ch rendertree.Channel
}

// Crossfades owns a Fader per character and channel.
type Crossfades struct {
	cfg CrossfadeConfig

	mu     sync.Mutex
	faders map[faderKey]*Fader
}

func NewCrossfades(cfg CrossfadeConfig) *Crossfades {
	d := DefaultCrossfadeConfig()
	if cfg.DefaultSpeed <= 0 {
		cfg.DefaultSpeed = d.DefaultSpeed
	}
	if cfg.SlowSpeed <= 0 {
		cfg.SlowSpeed = d.SlowSpeed
	}
	if cfg.InstantSpeed <= 0 {
		cfg.InstantSpeed = d.InstantSpeed
	}
	return &Crossfades{cfg: cfg, faders: make(map[faderKey]*Fader)}
}

func (c *Crossfades) Config() CrossfadeConfig { return c.cfg }

// caller holds c.mu
func (c *Crossfades) fader(id string, ch rendertree.Channel, initial string) *Fader {
	k := faderKey{id, ch}
	f, ok := c.faders[k]
	if !ok {
		f = NewFader(initial)
		c.faders[k] = f
	}
	return f
}

// SetTarget blends id's channel towards tex. The first target for a
// channel is shown immediately.
func (c *Crossfades) SetTarget(id string, ch rendertree.Channel, tex string, speed float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.faders[faderKey{id, ch}]; !ok {
		c.fader(id, ch, tex)
		return true
	}
	return c.fader(id, ch, tex).SetTarget(tex, speed)
}

func (c *Crossfades) SetImmediate(id string, ch rendertree.Channel, tex string) {
	c.mu.Lock()
	c.fader(id, ch, tex).SetImmediate(tex)
	c.mu.Unlock()
}

// Update advances every channel of id.
func (c *Crossfades) Update(id string, dt time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, f := range c.faders {
		if k.id == id {
			f.Update(dt)
		}
	}
}

// Layers returns the current layers of id's channel, or nil if the channel
// was never targeted.
func (c *Crossfades) Layers(id string, ch rendertree.Channel) []Layer {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.faders[faderKey{id, ch}]
	if !ok {
		return nil
	}
	return f.Layers()
}

func (c *Crossfades) Target(id string, ch rendertree.Channel) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.faders[faderKey{id, ch}]
	if !ok {
		return "", false
	}
	return f.Target(), true
}

// Reset drops every channel of id.
func (c *Crossfades) Reset(id string) {
	c.mu.Lock()
	for k := range c.faders {
		if k.id == id {
			delete(c.faders, k)
		}
	}
	c.mu.Unlock()
}

func (c *Crossfades) ResetAll() {
	c.mu.Lock()
	c.faders = make(map[faderKey]*Fader)
	c.mu.Unlock()
}
