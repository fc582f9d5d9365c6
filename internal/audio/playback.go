package audio

import (
	"encoding/base64"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexportrait/internal/bus"
)

type voice struct {
	mu        sync.Mutex
	playing   bool
	meter     *Meter
	rms       float64
	lastChunk time.Time
	started   time.Time
}

// Playback tracks which characters are speaking and how loudly. It is the
// audio source the portrait director polls once per tick.
type Playback struct {
	cfg      PlaybackConfig
	eventBus *bus.EventBus
	logger   zerolog.Logger
	now      func() time.Time

	mu     sync.RWMutex
	voices map[string]*voice
}

// NewPlayback creates a new playback tracker. eventBus may be nil.
func NewPlayback(cfg PlaybackConfig, eventBus *bus.EventBus, logger zerolog.Logger) *Playback {
	d := DefaultPlaybackConfig()
	if !cfg.BitDepth.Valid() {
		cfg.BitDepth = d.BitDepth
	}
	if cfg.SmoothingFrames < 1 {
		cfg.SmoothingFrames = d.SmoothingFrames
	}
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = d.SilenceTimeout
	}
	return &Playback{
		cfg:      cfg,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "audio").Logger(),
		now:      time.Now,
		voices:   make(map[string]*voice),
	}
}

// SetClock replaces the wall clock, for tests.
func (p *Playback) SetClock(now func() time.Time) {
	p.now = now
}

func (p *Playback) get(id string) *voice {
	p.mu.RLock()
	v, ok := p.voices[id]
	p.mu.RUnlock()
	if ok {
		return v
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok = p.voices[id]; ok {
		return v
	}
	v = &voice{meter: NewMeter(p.cfg.BitDepth, p.cfg.SmoothingFrames)}
	p.voices[id] = v
	return v
}

// Start marks id's voice as playing.
func (p *Playback) Start(id string) {
	v := p.get(id)
	v.mu.Lock()
	if v.playing {
		v.mu.Unlock()
		return
	}
	now := p.now()
	v.playing = true
	v.started = now
	v.meter.Reset()
	v.rms = 0
	v.mu.Unlock()

	p.logger.Debug().Str("character", id).Msg("Playback started")
	p.publish(bus.EventTypeSpeakingStarted, id, map[string]any{"timestamp": now})
}

// Stop marks id's voice as silent. Lip-sync reverts on the next tick.
func (p *Playback) Stop(id string) {
	v := p.get(id)
	v.mu.Lock()
	if !v.playing {
		v.mu.Unlock()
		return
	}
	duration := p.now().Sub(v.started)
	v.playing = false
	v.rms = 0
	v.mu.Unlock()

	p.logger.Debug().Str("character", id).Dur("duration", duration).Msg("Playback stopped")
	p.publish(bus.EventTypeSpeakingStopped, id, map[string]any{"duration": duration})
}

// Feed meters a chunk of id's playing audio and returns the smoothed
// level. Feeding a silent voice starts it.
func (p *Playback) Feed(id string, audioData []byte) (float64, error) {
	if len(audioData) == 0 {
		return 0, ErrEmptyChunk
	}
	p.Start(id)

	v := p.get(id)
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rms = v.meter.Process(audioData)
	v.lastChunk = p.now()
	return v.rms, nil
}

// FeedBase64 handles base64-encoded PCM from a browser or IPC peer.
func (p *Playback) FeedBase64(id, audioBase64 string) (float64, error) {
	audioData, err := base64.StdEncoding.DecodeString(audioBase64)
	if err != nil {
		return 0, fmt.Errorf("decode audio chunk: %w", ErrInvalidFormat)
	}
	return p.Feed(id, audioData)
}

// IsPlaying reports whether id's voice is playing.
func (p *Playback) IsPlaying(id string) bool {
	v := p.get(id)
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.playing
}

// Amplitude returns id's current level, or 0 once chunks stop arriving for
// longer than the silence timeout.
func (p *Playback) Amplitude(id string) float64 {
	return p.Level(id).RMS
}

func (p *Playback) Level(id string) Level {
	v := p.get(id)
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.playing {
		return Level{}
	}
	if v.lastChunk.IsZero() || p.now().Sub(v.lastChunk) > p.cfg.SilenceTimeout {
		return Level{Playing: true, UpdatedAt: v.lastChunk}
	}
	return Level{Playing: true, RMS: v.rms, UpdatedAt: v.lastChunk}
}

// Playing lists the characters currently speaking.
func (p *Playback) Playing() []string {
	p.mu.RLock()
	ids := make([]string, 0, len(p.voices))
	for id := range p.voices {
		ids = append(ids, id)
	}
	p.mu.RUnlock()

	out := ids[:0]
	for _, id := range ids {
		if p.IsPlaying(id) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (p *Playback) publish(t bus.EventType, id string, data map[string]any) {
	if p.eventBus == nil {
		return
	}
	p.eventBus.Publish(bus.Event{Type: t, CharacterID: id, Data: data})
}
