package ambient

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexportrait/internal/random"
)

// Textures shown while a character is content or resting.
const (
	ClosedEyesTexture       = "closed_eyes"
	ContentmentMouthTexture = "Smile_mouth"
)

type ContentmentConfig struct {
	AffinityThreshold float64       `mapstructure:"affinity_threshold"`
	Chance            float64       `mapstructure:"contentment_chance"`
	DurationMin       time.Duration `mapstructure:"duration_min"`
	DurationMax       time.Duration `mapstructure:"duration_max"`
	CheckInterval     time.Duration `mapstructure:"check_interval"`
}

func DefaultContentmentConfig() ContentmentConfig {
	return ContentmentConfig{
		AffinityThreshold: 60,
		Chance:            0.4,
		DurationMin:       2 * time.Second,
		DurationMax:       5 * time.Second,
		CheckInterval:     10 * time.Second,
	}
}

type ContentmentStatus struct {
	Active  bool
	Started bool
	Ended   bool
}

type contentRecord struct {
	mu        sync.Mutex
	active    bool
	end       time.Time
	nextCheck time.Time
}

// Contentment is the idle "content" overlay: closed eyes and a soft smile
// that a well-liked, idle character shows now and then.
type Contentment struct {
	cfg    ContentmentConfig
	rng    random.Source
	logger zerolog.Logger

	mu      sync.RWMutex
	records map[string]*contentRecord
}

func NewContentment(cfg ContentmentConfig, rng random.Source, logger zerolog.Logger) *Contentment {
	d := DefaultContentmentConfig()
	if cfg.DurationMin <= 0 || cfg.DurationMax <= 0 {
		cfg.DurationMin, cfg.DurationMax = d.DurationMin, d.DurationMax
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = d.CheckInterval
	}
	if rng == nil {
		rng = random.NewTimeSeeded()
	}
	return &Contentment{
		cfg:     cfg,
		rng:     rng,
		logger:  logger,
		records: make(map[string]*contentRecord),
	}
}

func (c *Contentment) get(id string) *contentRecord {
	c.mu.RLock()
	r, ok := c.records[id]
	c.mu.RUnlock()
	if ok {
		return r
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok = c.records[id]; ok {
		return r
	}
	r = &contentRecord{}
	c.records[id] = r
	return r
}

// Update advances id's overlay. idle means not speaking and not otherwise
// busy; the overlay ends at once when idle turns false.
func (c *Contentment) Update(id string, now time.Time, idle bool, affinity float64) ContentmentStatus {
	r := c.get(id)
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active {
		if idle && now.Before(r.end) {
			return ContentmentStatus{Active: true}
		}
		r.active = false
		r.nextCheck = now.Add(c.cfg.CheckInterval)
		return ContentmentStatus{Ended: true}
	}

	if !idle || affinity < c.cfg.AffinityThreshold || now.Before(r.nextCheck) {
		return ContentmentStatus{}
	}
	r.nextCheck = now.Add(c.cfg.CheckInterval)
	if !random.Chance(c.rng, c.cfg.Chance) {
		return ContentmentStatus{}
	}

	r.active = true
	r.end = now.Add(random.Duration(c.rng, c.cfg.DurationMin, c.cfg.DurationMax))
	c.logger.Debug().Str("character", id).Time("until", r.end).Msg("contentment started")
	return ContentmentStatus{Active: true, Started: true}
}

// End stops the overlay early, e.g. when speech starts. It reports whether
// the overlay was active.
func (c *Contentment) End(id string, now time.Time) bool {
	r := c.get(id)
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return false
	}
	r.active = false
	r.nextCheck = now.Add(c.cfg.CheckInterval)
	return true
}

func (c *Contentment) Active(id string) bool {
	r := c.get(id)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (c *Contentment) Reset(id string) {
	c.mu.Lock()
	delete(c.records, id)
	c.mu.Unlock()
}

func (c *Contentment) ResetAll() {
	c.mu.Lock()
	c.records = make(map[string]*contentRecord)
	c.mu.Unlock()
}
