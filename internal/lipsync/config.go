// Package lipsync turns phoneme streams and audio amplitude into a
// debounced mouth viseme per character.
package lipsync

import "time"

// Config holds the lip-sync timing and signal parameters. The debounce
// values (SuddenChange, MinHoldTime) are empirical; tune per voice.
type Config struct {
	// PhonemeInterval is how often a queued viseme is consumed.
	PhonemeInterval time.Duration `mapstructure:"phoneme_interval"`
	// VisemeCrossfade is the blend time between two mouth shapes.
	VisemeCrossfade time.Duration `mapstructure:"viseme_crossfade"`
	// OpennessFreshness is how long a pushed openness value stays valid.
	OpennessFreshness time.Duration `mapstructure:"openness_freshness"`
	// PendingTimeout drops a phoneme queue pushed while nothing is playing.
	PendingTimeout time.Duration `mapstructure:"pending_timeout"`
	// StopGrace drops phoneme pushes that trail a detected playback stop.
	StopGrace time.Duration `mapstructure:"stop_grace"`

	Gain         float64       `mapstructure:"gain"`
	Noise        float64       `mapstructure:"noise"`
	SilenceGate  float64       `mapstructure:"silence_gate"`
	SuddenChange float64       `mapstructure:"sudden_change"`
	FastRate     float64       `mapstructure:"fast_rate"`
	SlowRate     float64       `mapstructure:"slow_rate"`
	MinHoldTime  time.Duration `mapstructure:"min_hold_time"`
}

func DefaultConfig() Config {
	return Config{
		PhonemeInterval:   50 * time.Millisecond,
		VisemeCrossfade:   50 * time.Millisecond,
		OpennessFreshness: 200 * time.Millisecond,
		PendingTimeout:    2 * time.Second,
		StopGrace:         300 * time.Millisecond,
		Gain:              3.0,
		Noise:             0.05,
		SilenceGate:       0.05,
		SuddenChange:      0.2,
		FastRate:          25,
		SlowRate:          8,
		MinHoldTime:       60 * time.Millisecond,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PhonemeInterval <= 0 {
		c.PhonemeInterval = d.PhonemeInterval
	}
	if c.VisemeCrossfade <= 0 {
		c.VisemeCrossfade = d.VisemeCrossfade
	}
	if c.OpennessFreshness <= 0 {
		c.OpennessFreshness = d.OpennessFreshness
	}
	if c.PendingTimeout <= 0 {
		c.PendingTimeout = d.PendingTimeout
	}
	if c.StopGrace < 0 {
		c.StopGrace = 0
	}
	if c.Gain <= 0 {
		c.Gain = d.Gain
	}
	if c.Noise < 0 {
		c.Noise = 0
	}
	if c.SilenceGate <= 0 {
		c.SilenceGate = d.SilenceGate
	}
	if c.SuddenChange <= 0 {
		c.SuddenChange = d.SuddenChange
	}
	if c.FastRate <= 0 {
		c.FastRate = d.FastRate
	}
	if c.SlowRate <= 0 {
		c.SlowRate = d.SlowRate
	}
	if c.MinHoldTime < 0 {
		c.MinHoldTime = 0
	}
	return c
}
