package lipsync

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexportrait/internal/random"
	"github.com/normanking/cortexportrait/internal/viseme"
)

// Quantizer maps smoothed openness onto a viseme and a viseme onto a mouth
// texture for a character. *rendertree.Registry satisfies it.
type Quantizer interface {
	VisemeFromOpenness(characterID string, openness float64) viseme.Code
	VisemeTexture(characterID string, code viseme.Code) string
}

// mode is the producer-selected input mode. Exactly one is active per
// character.
type mode interface {
	isMode()
}

type phonemeMode struct {
	queue       []viseme.Code
	pushedAt    time.Time
	nextDequeue time.Time
}

type amplitudeMode struct {
	pushed    float64
	pushedAt  time.Time
	hasPushed bool
	target    float64
}

func (*phonemeMode) isMode()   {}
func (*amplitudeMode) isMode() {}

// Mode names the active input mode for diagnostics.
type Mode string

const (
	ModeNone      Mode = "none"
	ModePhoneme   Mode = "phoneme"
	ModeAmplitude Mode = "amplitude"
)

// Output is the lip-sync result for one tick. When Override is false the
// caller shows the expression's static mouth.
type Output struct {
	Override bool
	From     viseme.Code
	To       viseme.Code
	Progress float64
	Openness float64
	Texture  string
	Changed  bool
}

type record struct {
	mu sync.Mutex

	speaking   bool
	mode       mode
	current    viseme.Code
	target     viseme.Code
	progress   float64
	openness   float64
	locked     string
	lastChange time.Time
	lastUpdate time.Time
	// when Update last saw playback end; zero after a forced Stop
	stoppedAt time.Time
}

func (r *record) stop() {
	r.speaking = false
	r.mode = nil
	r.current = viseme.Closed
	r.target = viseme.Closed
	r.progress = 1
	r.openness = 0
	r.locked = ""
}

// Animator owns the speaking state of every character.
type Animator struct {
	cfg    Config
	quant  Quantizer
	rng    random.Source
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	records map[string]*record
}

func NewAnimator(cfg Config, quant Quantizer, rng random.Source, logger zerolog.Logger) *Animator {
	if rng == nil {
		rng = random.NewTimeSeeded()
	}
	return &Animator{
		cfg:     cfg.withDefaults(),
		quant:   quant,
		rng:     rng,
		logger:  logger,
		now:     time.Now,
		records: make(map[string]*record),
	}
}

// SetClock replaces the clock used to timestamp pushes.
func (a *Animator) SetClock(now func() time.Time) {
	a.now = now
}

func (a *Animator) get(id string) *record {
	a.mu.RLock()
	r, ok := a.records[id]
	a.mu.RUnlock()
	if ok {
		return r
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if r, ok = a.records[id]; ok {
		return r
	}
	r = &record{current: viseme.Closed, target: viseme.Closed, progress: 1}
	a.records[id] = r
	return r
}

// PushVisemeSequence queues phoneme-derived visemes and switches id to
// phoneme mode. Invalid codes are treated as Closed. While id is silent, a
// push stamped before or within StopGrace of the last playback stop
// belongs to the finished utterance and is dropped.
func (a *Animator) PushVisemeSequence(id string, codes []viseme.Code) {
	a.PushVisemeSequenceAt(id, codes, a.now())
}

func (a *Animator) PushVisemeSequenceAt(id string, codes []viseme.Code, at time.Time) {
	if len(codes) == 0 {
		return
	}
	r := a.get(id)
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.speaking && !r.stoppedAt.IsZero() && !at.After(r.stoppedAt.Add(a.cfg.StopGrace)) {
		a.logger.Debug().Str("character", id).Int("visemes", len(codes)).
			Msg("dropped phonemes pushed after playback stopped")
		return
	}

	pm, ok := r.mode.(*phonemeMode)
	if !ok {
		pm = &phonemeMode{}
		r.mode = pm
	}
	for _, c := range codes {
		if !c.Valid() {
			c = viseme.Closed
		}
		pm.queue = append(pm.queue, c)
	}
	pm.pushedAt = at
}

// PushOpenness supplies a direct [0,1] mouth openness and switches id to
// amplitude mode. The value is honoured for OpennessFreshness.
func (a *Animator) PushOpenness(id string, value float64) {
	a.PushOpennessAt(id, value, a.now())
}

func (a *Animator) PushOpennessAt(id string, value float64, at time.Time) {
	r := a.get(id)
	r.mu.Lock()
	defer r.mu.Unlock()

	am, ok := r.mode.(*amplitudeMode)
	if !ok {
		am = &amplitudeMode{}
		r.mode = am
	}
	am.pushed = clamp01(value)
	am.pushedAt = at
	am.hasPushed = true
}

// Update advances id by one tick. speaking and amplitude come from the
// audio subsystem.
func (a *Animator) Update(id string, now time.Time, speaking bool, amplitude float64) Output {
	r := a.get(id)
	r.mu.Lock()
	defer r.mu.Unlock()

	dt := time.Duration(0)
	if !r.lastUpdate.IsZero() {
		dt = now.Sub(r.lastUpdate)
	}
	if dt < 0 {
		dt = 0
	}
	if dt > 100*time.Millisecond {
		dt = 100 * time.Millisecond
	}
	r.lastUpdate = now

	if !speaking {
		if r.speaking {
			a.logger.Debug().Str("character", id).Msg("playback stopped")
			r.stop()
			r.stoppedAt = now
		} else if pm, ok := r.mode.(*phonemeMode); ok && now.Sub(pm.pushedAt) > a.cfg.PendingTimeout {
			r.mode = nil
		}
		return Output{From: viseme.Closed, To: viseme.Closed, Progress: 1}
	}
	r.speaking = true

	if r.mode == nil {
		r.mode = &amplitudeMode{}
	}

	var changed bool
	switch m := r.mode.(type) {
	case *phonemeMode:
		changed = a.updatePhoneme(id, r, m, now, dt)
	case *amplitudeMode:
		changed = a.updateAmplitude(id, r, m, now, dt, amplitude)
	}
	if r.locked == "" {
		r.locked = a.texture(id, r.target)
	}
	return Output{
		Override: true,
		From:     r.current,
		To:       r.target,
		Progress: r.progress,
		Openness: r.openness,
		Texture:  r.locked,
		Changed:  changed,
	}
}

func (a *Animator) updatePhoneme(id string, r *record, m *phonemeMode, now time.Time, dt time.Duration) bool {
	changed := false
	if !now.Before(m.nextDequeue) {
		next := viseme.Closed
		if len(m.queue) > 0 {
			next = m.queue[0]
			m.queue = m.queue[1:]
		}
		m.nextDequeue = now.Add(a.cfg.PhonemeInterval)
		if next != r.target {
			changed = a.retarget(id, r, next, now)
		}
	}
	a.advance(r, dt)
	r.openness = r.target.Openness()
	return changed
}

func (a *Animator) updateAmplitude(id string, r *record, m *amplitudeMode, now time.Time, dt time.Duration, amplitude float64) bool {
	if m.hasPushed && now.Sub(m.pushedAt) <= a.cfg.OpennessFreshness {
		m.target = m.pushed
	} else {
		raw := clamp01(amplitude * a.cfg.Gain)
		if raw > a.cfg.SilenceGate && a.cfg.Noise > 0 {
			raw = clamp01(raw + (a.rng.Float64()*2-1)*a.cfg.Noise)
		}
		m.target = raw
	}

	delta := m.target - r.openness
	sudden := math.Abs(delta) > a.cfg.SuddenChange
	rate := a.cfg.SlowRate
	if sudden {
		rate = a.cfg.FastRate
	}
	r.openness += delta * (1 - math.Exp(-rate*dt.Seconds()))
	if r.openness < a.cfg.SilenceGate {
		r.openness = 0
	}

	var code viseme.Code
	if a.quant != nil {
		code = a.quant.VisemeFromOpenness(id, r.openness)
	} else {
		code = viseme.FromLegacyOpenness(r.openness)
	}

	changed := false
	if code != r.target && (sudden || now.Sub(r.lastChange) >= a.cfg.MinHoldTime) {
		changed = a.retarget(id, r, code, now)
	}
	a.advance(r, dt)
	return changed
}

// caller holds r.mu
func (a *Animator) retarget(id string, r *record, code viseme.Code, now time.Time) bool {
	r.current = r.target
	r.target = code
	r.progress = 0
	r.lastChange = now
	r.locked = a.texture(id, code)
	return true
}

func (a *Animator) advance(r *record, dt time.Duration) {
	if r.progress >= 1 {
		r.current = r.target
		return
	}
	r.progress += float64(dt) / float64(a.cfg.VisemeCrossfade)
	if r.progress >= 1 {
		r.progress = 1
		r.current = r.target
	}
}

func (a *Animator) texture(id string, code viseme.Code) string {
	if a.quant == nil {
		return code.String()
	}
	return a.quant.VisemeTexture(id, code)
}

// Stop forces id back to Closed with no override.
func (a *Animator) Stop(id string) {
	r := a.get(id)
	r.mu.Lock()
	r.stop()
	r.stoppedAt = time.Time{}
	r.mu.Unlock()
}

// Mode reports id's active input mode.
func (a *Animator) Mode(id string) Mode {
	r := a.get(id)
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.mode.(type) {
	case *phonemeMode:
		return ModePhoneme
	case *amplitudeMode:
		return ModeAmplitude
	}
	return ModeNone
}

// QueueLen is the number of visemes waiting in phoneme mode.
func (a *Animator) QueueLen(id string) int {
	r := a.get(id)
	r.mu.Lock()
	defer r.mu.Unlock()
	if pm, ok := r.mode.(*phonemeMode); ok {
		return len(pm.queue)
	}
	return 0
}

// IsSpeaking reports whether the last update saw audio for id.
func (a *Animator) IsSpeaking(id string) bool {
	r := a.get(id)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.speaking
}

func (a *Animator) Characters() []string {
	a.mu.RLock()
	ids := make([]string, 0, len(a.records))
	for id := range a.records {
		ids = append(ids, id)
	}
	a.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (a *Animator) Reset(id string) {
	a.mu.Lock()
	delete(a.records, id)
	a.mu.Unlock()
}

func (a *Animator) ResetAll() {
	a.mu.Lock()
	a.records = make(map[string]*record)
	a.mu.Unlock()
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
