package ambient

import (
	"math"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/normanking/cortexportrait/internal/expression"
	"github.com/normanking/cortexportrait/internal/random"
)

// Breath is the per-tick breathing transform for a portrait.
type Breath struct {
	// Offset is the vertical bob in pixels (Y grows downward).
	Offset mgl32.Vec2
	// Scale is a uniform chest scale around 1.
	Scale float32
	// HeadOffset trails Offset by the configured lag.
	HeadOffset mgl32.Vec2
}

type BreathingConfig struct {
	ScaleIntensity float64       `mapstructure:"scale_intensity"`
	HeadLag        time.Duration `mapstructure:"head_lag"`
}

func DefaultBreathingConfig() BreathingConfig {
	return BreathingConfig{
		ScaleIntensity: 0.005,
		HeadLag:        50 * time.Millisecond,
	}
}

type breathRecord struct {
	mu        sync.Mutex
	phase     float64
	speed     float64 // cycles per second
	amplitude float64 // pixels
}

// Breathing keeps a phase per character and shapes it by expression.
type Breathing struct {
	cfg BreathingConfig
	rng random.Source

	mu      sync.RWMutex
	records map[string]*breathRecord
}

func NewBreathing(cfg BreathingConfig, rng random.Source) *Breathing {
	if cfg.ScaleIntensity < 0 || cfg.ScaleIntensity > 0.1 {
		cfg.ScaleIntensity = DefaultBreathingConfig().ScaleIntensity
	}
	if rng == nil {
		rng = random.NewTimeSeeded()
	}
	return &Breathing{
		cfg:     cfg,
		rng:     rng,
		records: make(map[string]*breathRecord),
	}
}

func (b *Breathing) get(id string) *breathRecord {
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
	r = &breathRecord{}
	b.roll(r, expression.Neutral)
	b.records[id] = r
	return r
}

// caller holds r.mu or owns r exclusively
func (b *Breathing) roll(r *breathRecord, expr expression.Expression) {
	rng := expression.BreathingRangeFor(expr)
	p := expression.ParamsFor(expr)
	r.speed = random.Range(b.rng, rng.SpeedMin, rng.SpeedMax) * p.BreathingSpeed
	r.amplitude = random.Range(b.rng, rng.AmplitudeMin, rng.AmplitudeMax) * p.BreathingAmplitude
}

// SetExpression redraws id's breathing rhythm for expr. The phase carries
// over so the portrait does not jump.
func (b *Breathing) SetExpression(id string, expr expression.Expression) {
	r := b.get(id)
	r.mu.Lock()
	b.roll(r, expr)
	r.mu.Unlock()
}

// Rhythm returns id's current speed (cycles/s) and amplitude (px).
func (b *Breathing) Rhythm(id string) (speed, amplitude float64) {
	r := b.get(id)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.speed, r.amplitude
}

// Update advances id's phase by dt and returns the resulting transform.
func (b *Breathing) Update(id string, dt time.Duration) Breath {
	if dt < 0 {
		dt = 0
	}
	r := b.get(id)
	r.mu.Lock()
	defer r.mu.Unlock()

	r.phase = math.Mod(r.phase+dt.Seconds()*r.speed*2*math.Pi, 2*math.Pi)
	lagPhase := r.phase - b.cfg.HeadLag.Seconds()*r.speed*2*math.Pi

	s := math.Sin(r.phase)
	return Breath{
		Offset:     mgl32.Vec2{0, float32(s * r.amplitude)},
		Scale:      float32(1 + s*b.cfg.ScaleIntensity),
		HeadOffset: mgl32.Vec2{0, float32(math.Sin(lagPhase) * r.amplitude)},
	}
}

func (b *Breathing) Reset(id string) {
	b.mu.Lock()
	delete(b.records, id)
	b.mu.Unlock()
}

func (b *Breathing) ResetAll() {
	b.mu.Lock()
	b.records = make(map[string]*breathRecord)
	b.mu.Unlock()
}
