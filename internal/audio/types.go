// Package audio measures playback loudness per character for lip-sync.
// Playback itself happens in the host; this package tracks which voices
// are playing and how loud they are.
package audio

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrInvalidFormat = errors.New("invalid audio format")
	ErrEmptyChunk    = errors.New("empty audio chunk")
)

// BitDepth is the PCM sample encoding of fed chunks.
type BitDepth int

const (
	Unsigned8 BitDepth = 8
	Signed16  BitDepth = 16
	Float32   BitDepth = 32
)

func (b BitDepth) Valid() bool {
	return b == Unsigned8 || b == Signed16 || b == Float32
}

// PlaybackConfig holds playback tracking configuration
type PlaybackConfig struct {
	BitDepth        BitDepth      `mapstructure:"bit_depth"`        // Default: 16
	SmoothingFrames int           `mapstructure:"smoothing_frames"` // Default: 3
	SilenceTimeout  time.Duration `mapstructure:"silence_timeout"`  // Level decays to 0 after this, default 250ms
}

// DefaultPlaybackConfig returns sensible defaults
func DefaultPlaybackConfig() PlaybackConfig {
	return PlaybackConfig{
		BitDepth:        Signed16,
		SmoothingFrames: 3,
		SilenceTimeout:  250 * time.Millisecond,
	}
}

// Level is the loudness reading of one voice.
type Level struct {
	Playing   bool      `json:"playing"`
	RMS       float64   `json:"rms"`
	UpdatedAt time.Time `json:"updated_at"`
}
