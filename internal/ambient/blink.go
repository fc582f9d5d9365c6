// Package ambient holds the idle animation controllers that run alongside
// expressions and lip-sync: blinking and resting, idle contentment,
// breathing and per-channel texture crossfades.
package ambient

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexportrait/internal/random"
)

// BlinkPhase is where a character is in its blink cycle.
type BlinkPhase int

const (
	PhaseIdle BlinkPhase = iota
	PhaseBlinking
	PhaseResting
)

func (p BlinkPhase) String() string {
	switch p {
	case PhaseBlinking:
		return "blinking"
	case PhaseResting:
		return "resting"
	}
	return "idle"
}

type BlinkConfig struct {
	Duration        time.Duration `mapstructure:"duration"`
	IntervalMin     time.Duration `mapstructure:"interval_min"`
	IntervalMax     time.Duration `mapstructure:"interval_max"`
	RestingMin      time.Duration `mapstructure:"resting_min"`
	RestingMax      time.Duration `mapstructure:"resting_max"`
	RestingChance   float64       `mapstructure:"resting_chance"`
	RestingCooldown time.Duration `mapstructure:"resting_cooldown"`
}

func DefaultBlinkConfig() BlinkConfig {
	return BlinkConfig{
		Duration:        150 * time.Millisecond,
		IntervalMin:     3 * time.Second,
		IntervalMax:     6 * time.Second,
		RestingMin:      2 * time.Second,
		RestingMax:      5 * time.Second,
		RestingChance:   0.05,
		RestingCooldown: 30 * time.Second,
	}
}

// BlinkStatus is the per-tick result for one character.
type BlinkStatus struct {
	Phase       BlinkPhase
	EyesClosed  bool
	RestStarted bool
	RestEnded   bool
}

type blinkRecord struct {
	mu sync.Mutex

	phase       BlinkPhase
	nextBlink   time.Time
	blinkEnd    time.Time
	restEnd     time.Time
	lastRestEnd time.Time
	intervalMin time.Duration
	intervalMax time.Duration
	drowsy      bool
}

// Blinker runs the blink and resting cycle for every character.
type Blinker struct {
	cfg    BlinkConfig
	rng    random.Source
	logger zerolog.Logger

	mu      sync.RWMutex
	records map[string]*blinkRecord

	condMu  sync.RWMutex
	canRest func(id string) bool
}

func NewBlinker(cfg BlinkConfig, rng random.Source, logger zerolog.Logger) *Blinker {
	d := DefaultBlinkConfig()
	if cfg.Duration <= 0 {
		cfg.Duration = d.Duration
	}
	if cfg.IntervalMin <= 0 || cfg.IntervalMax <= 0 {
		cfg.IntervalMin, cfg.IntervalMax = d.IntervalMin, d.IntervalMax
	}
	if cfg.RestingMin <= 0 || cfg.RestingMax <= 0 {
		cfg.RestingMin, cfg.RestingMax = d.RestingMin, d.RestingMax
	}
	if rng == nil {
		rng = random.NewTimeSeeded()
	}
	return &Blinker{
		cfg:     cfg,
		rng:     rng,
		logger:  logger,
		records: make(map[string]*blinkRecord),
	}
}

// SetRestCondition installs the external gate for entering the resting
// state, e.g. "idle, silent and fond of the player". Without one, resting
// never starts on its own.
func (b *Blinker) SetRestCondition(fn func(id string) bool) {
	b.condMu.Lock()
	b.canRest = fn
	b.condMu.Unlock()
}

func (b *Blinker) restAllowed(id string) bool {
	b.condMu.RLock()
	fn := b.canRest
	b.condMu.RUnlock()
	return fn != nil && fn(id)
}

func (b *Blinker) get(id string) *blinkRecord {
	b.mu.RLock()
	r, ok := b.records[id]
	b.mu.RUnlock()
	if ok {
		return r
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok = b.records[id]; ok {
		return r
	}
	r = &blinkRecord{intervalMin: b.cfg.IntervalMin, intervalMax: b.cfg.IntervalMax}
	b.records[id] = r
	return r
}

func (b *Blinker) interval(r *blinkRecord) time.Duration {
	return random.Duration(b.rng, r.intervalMin, r.intervalMax)
}

// Update advances id's blink cycle to now.
func (b *Blinker) Update(id string, now time.Time) BlinkStatus {
	// the condition may call into other registries; evaluate it unlocked
	allowRest := b.restAllowed(id)

	r := b.get(id)
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.nextBlink.IsZero() {
		r.nextBlink = now.Add(b.interval(r))
	}

	var st BlinkStatus
	switch r.phase {
	case PhaseIdle:
		if !r.drowsy && !now.Before(r.nextBlink) {
			r.phase = PhaseBlinking
			r.blinkEnd = now.Add(b.cfg.Duration)
		}

	case PhaseBlinking:
		if now.Before(r.blinkEnd) {
			break
		}
		cooled := r.lastRestEnd.IsZero() || now.Sub(r.lastRestEnd) >= b.cfg.RestingCooldown
		if allowRest && cooled && random.Chance(b.rng, b.cfg.RestingChance) {
			r.phase = PhaseResting
			r.restEnd = now.Add(random.Duration(b.rng, b.cfg.RestingMin, b.cfg.RestingMax))
			st.RestStarted = true
			b.logger.Debug().Str("character", id).Time("until", r.restEnd).Msg("resting started")
			break
		}
		r.phase = PhaseIdle
		r.nextBlink = now.Add(b.interval(r))

	case PhaseResting:
		if now.Before(r.restEnd) {
			break
		}
		b.endRest(r, now)
		st.RestEnded = true
	}

	st.Phase = r.phase
	st.EyesClosed = r.phase != PhaseIdle || r.drowsy
	return st
}

// caller holds r.mu
func (b *Blinker) endRest(r *blinkRecord, now time.Time) {
	r.phase = PhaseIdle
	r.lastRestEnd = now
	r.nextBlink = now.Add(b.interval(r))
}

// SetBlinkInterval changes the interval bounds for id, typically when its
// expression changes. The next scheduled blink is kept.
func (b *Blinker) SetBlinkInterval(id string, min, max time.Duration) {
	if min <= 0 || max <= 0 {
		return
	}
	if max < min {
		min, max = max, min
	}
	r := b.get(id)
	r.mu.Lock()
	r.intervalMin, r.intervalMax = min, max
	r.mu.Unlock()
}

// TriggerBlink starts a blink now unless the eyes are already closed.
func (b *Blinker) TriggerBlink(id string, now time.Time) {
	r := b.get(id)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase == PhaseIdle {
		r.phase = PhaseBlinking
		r.blinkEnd = now.Add(b.cfg.Duration)
	}
}

// ForceOpenEyes ends any blink or rest and clears drowsiness.
func (b *Blinker) ForceOpenEyes(id string, now time.Time) {
	r := b.get(id)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drowsy = false
	if r.phase == PhaseResting {
		b.endRest(r, now)
		return
	}
	r.phase = PhaseIdle
	r.nextBlink = now.Add(b.interval(r))
}

// ForceResting closes id's eyes for d, or a random resting duration when
// d <= 0. Cooldown and condition are bypassed.
func (b *Blinker) ForceResting(id string, now time.Time, d time.Duration) {
	if d <= 0 {
		d = random.Duration(b.rng, b.cfg.RestingMin, b.cfg.RestingMax)
	}
	r := b.get(id)
	r.mu.Lock()
	r.phase = PhaseResting
	r.restEnd = now.Add(d)
	r.mu.Unlock()
}

// SetDrowsy keeps id's eyes closed until cleared.
func (b *Blinker) SetDrowsy(id string, drowsy bool) {
	r := b.get(id)
	r.mu.Lock()
	r.drowsy = drowsy
	r.mu.Unlock()
}

// Phase reports id's current blink phase without advancing it.
func (b *Blinker) Phase(id string) BlinkPhase {
	r := b.get(id)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

func (b *Blinker) Characters() []string {
	b.mu.RLock()
	ids := make([]string, 0, len(b.records))
	for id := range b.records {
		ids = append(ids, id)
	}
	b.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (b *Blinker) Reset(id string) {
	b.mu.Lock()
	delete(b.records, id)
	b.mu.Unlock()
}

func (b *Blinker) ResetAll() {
	b.mu.Lock()
	b.records = make(map[string]*blinkRecord)
	b.mu.Unlock()
}
