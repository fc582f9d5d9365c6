// Package portrait composes the expression, lip-sync and ambient
// subsystems into one update pass per tick and decides, per character and
// channel, which texture a compositor should draw.
package portrait

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/cortexportrait/internal/ambient"
	"github.com/normanking/cortexportrait/internal/bus"
	"github.com/normanking/cortexportrait/internal/expression"
	"github.com/normanking/cortexportrait/internal/lipsync"
	"github.com/normanking/cortexportrait/internal/random"
	"github.com/normanking/cortexportrait/internal/rendertree"
	"github.com/normanking/cortexportrait/internal/viseme"
)

// AudioSource reports voice playback per character. audio.Playback
// satisfies it.
type AudioSource interface {
	IsPlaying(id string) bool
	Amplitude(id string) float64
}

// Config bundles every subsystem's settings.
type Config struct {
	Expression expression.Config
	LipSync    lipsync.Config
	Blink      ambient.BlinkConfig
	Idle       ambient.ContentmentConfig
	Crossfade  ambient.CrossfadeConfig
	Breathing  ambient.BreathingConfig
}

func DefaultConfig() Config {
	return Config{
		Expression: expression.DefaultConfig(),
		LipSync:    lipsync.DefaultConfig(),
		Blink:      ambient.DefaultBlinkConfig(),
		Idle:       ambient.DefaultContentmentConfig(),
		Crossfade:  ambient.DefaultCrossfadeConfig(),
		Breathing:  ambient.DefaultBreathingConfig(),
	}
}

const maxFrameStep = 100 * time.Millisecond

type character struct {
	mu         sync.Mutex
	affinity   float64
	lastUpdate time.Time
	speaking   bool
	sources    map[rendertree.Channel]Source
}

// Director owns one portrait session.
type Director struct {
	cfg      Config
	session  uuid.UUID
	clock    *expression.TickCounter
	audio    AudioSource
	eventBus *bus.EventBus
	logger   zerolog.Logger

	machine *expression.Machine
	trees   *rendertree.Registry
	lips    *lipsync.Animator
	blink   *ambient.Blinker
	content *ambient.Contentment
	breath  *ambient.Breathing
	fades   *ambient.Crossfades

	mu    sync.RWMutex
	chars map[string]*character
}

// New wires a Director. trees may be nil for the built-in render tree,
// src nil for a silent session, eventBus nil to publish nothing.
func New(cfg Config, trees *rendertree.Registry, src AudioSource, eventBus *bus.EventBus, rng random.Source, logger zerolog.Logger) *Director {
	if rng == nil {
		rng = random.NewTimeSeeded()
	}
	if trees == nil {
		trees = rendertree.NewRegistry(logger.With().Str("subsystem", "rendertree").Logger())
	}
	clock := &expression.TickCounter{}

	d := &Director{
		cfg:      cfg,
		session:  uuid.New(),
		clock:    clock,
		audio:    src,
		eventBus: eventBus,
		logger:   logger,
		trees:    trees,
		chars:    make(map[string]*character),
	}
	d.machine = expression.NewMachine(cfg.Expression, clock, rng, logger.With().Str("subsystem", "expression").Logger())
	d.lips = lipsync.NewAnimator(cfg.LipSync, trees, rng, logger.With().Str("subsystem", "lipsync").Logger())
	d.blink = ambient.NewBlinker(cfg.Blink, rng, logger.With().Str("subsystem", "blink").Logger())
	d.content = ambient.NewContentment(cfg.Idle, rng, logger.With().Str("subsystem", "contentment").Logger())
	d.breath = ambient.NewBreathing(cfg.Breathing, rng)
	d.fades = ambient.NewCrossfades(cfg.Crossfade)

	d.blink.SetRestCondition(d.canRest)
	d.machine.OnChange(d.onExpressionChange)

	logger.Info().Str("session", d.session.String()).Msg("portrait session started")
	return d
}

// SetClock replaces the wall clock used to timestamp pushes, for tests.
func (d *Director) SetClock(now func() time.Time) {
	d.lips.SetClock(now)
}

func (d *Director) Session() uuid.UUID { return d.session }

// Tick is the current tick count.
func (d *Director) Tick() int64 { return d.clock.Now() }

func (d *Director) Trees() *rendertree.Registry { return d.trees }

func (d *Director) Machine() *expression.Machine { return d.machine }

func (d *Director) character(id string) *character {
	d.mu.RLock()
	c, ok := d.chars[id]
	d.mu.RUnlock()
	if ok {
		return c
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok = d.chars[id]; ok {
		return c
	}
	c = &character{sources: make(map[rendertree.Channel]Source)}
	d.chars[id] = c
	return c
}

// Add registers id so Update includes it. Any push registers implicitly.
func (d *Director) Add(id string) {
	d.character(id)
}

// Remove forgets id in every subsystem.
func (d *Director) Remove(id string) {
	d.mu.Lock()
	delete(d.chars, id)
	d.mu.Unlock()

	d.machine.Reset(id)
	d.lips.Reset(id)
	d.blink.Reset(id)
	d.content.Reset(id)
	d.breath.Reset(id)
	d.fades.Reset(id)
}

// ResetAll clears every character; the session id is kept.
func (d *Director) ResetAll() {
	d.mu.Lock()
	d.chars = make(map[string]*character)
	d.mu.Unlock()

	d.machine.ResetAll()
	d.lips.ResetAll()
	d.blink.ResetAll()
	d.content.ResetAll()
	d.breath.ResetAll()
	d.fades.ResetAll()
}

func (d *Director) Characters() []string {
	d.mu.RLock()
	ids := make([]string, 0, len(d.chars))
	for id := range d.chars {
		ids = append(ids, id)
	}
	d.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (d *Director) affinity(id string) float64 {
	c := d.character(id)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.affinity
}

func (d *Director) playing(id string) bool {
	return d.audio != nil && d.audio.IsPlaying(id)
}

// canRest gates the resting blink: silent, fond of the player and not
// already content.
func (d *Director) canRest(id string) bool {
	return !d.playing(id) &&
		d.affinity(id) >= d.cfg.Idle.AffinityThreshold &&
		!d.content.Active(id)
}

func (d *Director) onExpressionChange(c expression.Change) {
	d.blink.SetBlinkInterval(c.CharacterID, c.Params.BlinkIntervalMin, c.Params.BlinkIntervalMax)
	d.breath.SetExpression(c.CharacterID, c.To)

	d.publish(bus.EventTypeExpressionChanged, c.CharacterID, map[string]any{
		"from":    c.From.String(),
		"to":      c.To.String(),
		"variant": c.Variant,
		"trigger": c.Trigger.String(),
		"reason":  c.Reason,
		"tick":    c.Tick,
	})
	d.publish(bus.EventTypeCacheInvalidated, c.CharacterID, map[string]any{
		"old": c.From.Key(),
		"new": c.To.Key(),
	})
}

func (d *Director) publish(t bus.EventType, id string, data map[string]any) {
	if d.eventBus == nil {
		return
	}
	d.eventBus.Publish(bus.Event{Type: t, CharacterID: id, Data: data})
}

// Update advances the session by one tick and returns a frame per
// registered character.
func (d *Director) Update(now time.Time) []Frame {
	tick := d.clock.Advance(1)
	ids := d.Characters()
	frames := make([]Frame, 0, len(ids))
	for _, id := range ids {
		frames = append(frames, d.update(id, tick, now))
	}
	return frames
}

func (d *Director) update(id string, tick int64, now time.Time) Frame {
	c := d.character(id)
	c.mu.Lock()
	var dt time.Duration
	if !c.lastUpdate.IsZero() {
		dt = now.Sub(c.lastUpdate)
	}
	dt = min(max(dt, 0), maxFrameStep)
	c.lastUpdate = now
	affinity := c.affinity
	wasSpeaking := c.speaking
	sources := make(map[rendertree.Channel]Source, len(c.sources))
	for ch, s := range c.sources {
		sources[ch] = s
	}
	c.mu.Unlock()

	d.machine.UpdateTransition(id)
	st := d.machine.State(id)

	speaking := d.playing(id)
	var amplitude float64
	if speaking {
		amplitude = d.audio.Amplitude(id)
	}
	lip := d.lips.Update(id, now, speaking, amplitude)
	if lip.Changed {
		d.publish(bus.EventTypeVisemeChanged, id, map[string]any{
			"from":    lip.From.String(),
			"to":      lip.To.String(),
			"texture": lip.Texture,
		})
	}

	cs := d.content.Update(id, now, !speaking, affinity)
	switch {
	case cs.Started:
		d.publish(bus.EventTypeContentmentStarted, id, nil)
	case cs.Ended:
		d.publish(bus.EventTypeContentmentEnded, id, nil)
	}

	bs := d.blink.Update(id, now)
	switch {
	case bs.RestStarted:
		d.publish(bus.EventTypeRestingStarted, id, nil)
	case bs.RestEnded:
		d.publish(bus.EventTypeRestingEnded, id, nil)
	}

	frame := Frame{
		ID:          uuid.New(),
		Session:     d.session,
		CharacterID: id,
		Tick:        tick,
		Time:        now,
		Expression:  st.Current,
		Variant:     st.Variant,
		Previous:    st.Previous,
		Transition:  st.TransitionProgress,
		CacheKey:    CacheKey{Expression: st.Current, Variant: st.Variant},
		Speaking:    lip.Override,
		Viseme:      lip.To,
		Openness:    lip.Openness,
		Blink:       bs.Phase,
		EyesClosed:  bs.EyesClosed || cs.Active,
		Contentment: cs.Active,
		Breath:      d.breath.Update(id, dt),
	}

	fc := d.fades.Config()
	for _, ch := range rendertree.Channels() {
		tex, _ := d.trees.ResolveTexture(id, st.Current, st.Variant, ch)
		src, speed := d.arbitrate(ch, lip, bs, cs)
		switch src {
		case SourceSpeech:
			tex = lip.Texture
		case SourceBlink, SourceResting, SourceContentment:
			if ch == rendertree.ChannelEyes {
				tex = ambient.ClosedEyesTexture
			} else {
				tex = ambient.ContentmentMouthTexture
			}
		case SourceEmotion:
			// returning from an overlay uses the overlay's speed, except
			// speech which fades back at the default
			switch sources[ch] {
			case SourceBlink:
				speed = fc.InstantSpeed
			case SourceResting, SourceContentment:
				speed = fc.SlowSpeed
			}
		}
		d.fades.SetTarget(id, ch, tex, speed)
		sources[ch] = src
		frame.Channels = append(frame.Channels, ChannelSelection{Channel: ch, Source: src, Texture: tex})
	}

	d.fades.Update(id, dt)
	for i := range frame.Channels {
		frame.Channels[i].Layers = d.fades.Layers(id, frame.Channels[i].Channel)
	}

	c.mu.Lock()
	c.speaking = lip.Override
	c.sources = sources
	c.mu.Unlock()

	if lip.Override != wasSpeaking {
		d.logger.Debug().Str("character", id).Bool("speaking", lip.Override).Int64("tick", tick).Msg("mouth owner changed")
	}
	return frame
}

// arbitrate picks the owner of ch and the crossfade speed towards its
// texture. Speech owns the mouth while speaking; blink, rest and
// contentment own the eyes while active; emotion owns everything else.
func (d *Director) arbitrate(ch rendertree.Channel, lip lipsync.Output, bs ambient.BlinkStatus, cs ambient.ContentmentStatus) (Source, float64) {
	fc := d.fades.Config()
	switch ch {
	case rendertree.ChannelMouth:
		if lip.Override {
			return SourceSpeech, fc.InstantSpeed
		}
		if cs.Active {
			return SourceContentment, fc.SlowSpeed
		}
	case rendertree.ChannelEyes:
		switch {
		case bs.Phase == ambient.PhaseResting:
			return SourceResting, fc.SlowSpeed
		case bs.EyesClosed:
			return SourceBlink, fc.InstantSpeed
		case cs.Active:
			return SourceContentment, fc.SlowSpeed
		}
	}
	return SourceEmotion, fc.DefaultSpeed
}

// State returns id's expression snapshot.
func (d *Director) State(id string) expression.State {
	d.character(id)
	return d.machine.State(id)
}

// SetExpression sets id's expression with the default hold time.
func (d *Director) SetExpression(id string, expr expression.Expression, trigger expression.Trigger) bool {
	d.character(id)
	return d.machine.Set(id, expr, trigger)
}

// SetExpressionFor sets id's expression for durationTicks with a reason
// kept for diagnostics.
func (d *Director) SetExpressionFor(id string, expr expression.Expression, trigger expression.Trigger, durationTicks int64, reason string) bool {
	d.character(id)
	_, ok := d.machine.SetExpression(id, expr, trigger, durationTicks, reason)
	return ok
}

// ApplyLabel sets id's expression from a free-form emotion label such as
// "joy" or "angry(2)".
func (d *Director) ApplyLabel(id, label string) bool {
	d.character(id)
	return d.machine.ApplyLabel(id, label, expression.TriggerManual)
}

func (d *Director) ApplyDialogue(id, text string) bool {
	d.character(id)
	return d.machine.ApplyDialogue(id, text)
}

func (d *Director) ApplyEvent(id, kind string, positive bool) bool {
	d.character(id)
	return d.machine.ApplyEvent(id, kind, positive)
}

// SetThinking shows the thinking face until the next explicit change.
func (d *Director) SetThinking(id string) bool {
	d.character(id)
	return d.machine.SetThinkingExpression(id)
}

func (d *Director) Lock(id string) {
	d.character(id)
	d.machine.Lock(id)
}

func (d *Director) Unlock(id string) {
	d.character(id)
	d.machine.Unlock(id)
}

// SetAffinity records id's affinity in [-100, 100] and lets it drive the
// expression.
func (d *Director) SetAffinity(id string, affinity float64) bool {
	affinity = min(max(affinity, -100), 100)
	c := d.character(id)
	c.mu.Lock()
	c.affinity = affinity
	c.mu.Unlock()
	return d.machine.ApplyAffinity(id, affinity)
}

// PushVisemes queues mouth shapes for id's next playback.
func (d *Director) PushVisemes(id string, codes []viseme.Code) {
	d.character(id)
	d.lips.PushVisemeSequence(id, codes)
}

// PushPhonemes converts phoneme symbols and queues them.
func (d *Director) PushPhonemes(id string, alphabet viseme.Alphabet, symbols []string) {
	d.PushVisemes(id, viseme.SequenceFromPhonemes(alphabet, symbols))
}

// PushAzureVisemes converts Azure viseme ids and queues them.
func (d *Director) PushAzureVisemes(id string, ids []int) {
	codes := make([]viseme.Code, len(ids))
	for i, v := range ids {
		codes[i] = viseme.FromAzureID(v)
	}
	d.PushVisemes(id, codes)
}

// Speak queues visemes derived from text and applies its dialogue tone.
func (d *Director) Speak(id, text string) {
	d.PushVisemes(id, viseme.SequenceFromText(text, viseme.DefaultGroupMapping()))
	d.machine.ApplyDialogue(id, text)
}

// PushOpenness supplies a direct mouth openness in [0,1].
func (d *Director) PushOpenness(id string, value float64) {
	d.character(id)
	d.lips.PushOpenness(id, value)
}

func (d *Director) SetDrowsy(id string, drowsy bool) {
	d.character(id)
	d.blink.SetDrowsy(id, drowsy)
}

func (d *Director) TriggerBlink(id string, now time.Time) {
	d.character(id)
	d.blink.TriggerBlink(id, now)
}

func (d *Director) ForceOpenEyes(id string, now time.Time) {
	d.character(id)
	d.blink.ForceOpenEyes(id, now)
}

func (d *Director) ForceResting(id string, now time.Time, dur time.Duration) {
	d.character(id)
	d.blink.ForceResting(id, now, dur)
}
