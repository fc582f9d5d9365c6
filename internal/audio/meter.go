package audio

import (
	"math"
	"sync"
)

// Meter computes the smoothed RMS energy of successive PCM chunks.
type Meter struct {
	mu       sync.Mutex
	bitDepth BitDepth

	// Smoothing
	energyHistory []float64
	historyIndex  int
	filled        int
}

// NewMeter creates a meter averaging over frames chunks.
func NewMeter(bitDepth BitDepth, frames int) *Meter {
	if !bitDepth.Valid() {
		bitDepth = Signed16
	}
	if frames < 1 {
		frames = 1
	}
	return &Meter{
		bitDepth:      bitDepth,
		energyHistory: make([]float64, frames),
	}
}

// Process adds a chunk and returns the smoothed RMS in [0,1].
func (m *Meter) Process(audioData []byte) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	rms := calculateRMS(audioData, m.bitDepth)

	m.energyHistory[m.historyIndex] = rms
	m.historyIndex = (m.historyIndex + 1) % len(m.energyHistory)
	if m.filled < len(m.energyHistory) {
		m.filled++
	}
	return m.smoothed()
}

// caller holds m.mu
func (m *Meter) smoothed() float64 {
	if m.filled == 0 {
		return 0
	}
	var sum float64
	for _, e := range m.energyHistory {
		sum += e
	}
	return sum / float64(m.filled)
}

// Reset clears meter state
func (m *Meter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historyIndex = 0
	m.filled = 0
	for i := range m.energyHistory {
		m.energyHistory[i] = 0
	}
}

// calculateRMS computes Root Mean Square energy
func calculateRMS(audioData []byte, bitDepth BitDepth) float64 {
	if len(audioData) == 0 {
		return 0
	}

	var sum float64
	var count int

	switch bitDepth {
	case Signed16:
		// little-endian signed PCM
		for i := 0; i+1 < len(audioData); i += 2 {
			sample := int16(audioData[i]) | int16(audioData[i+1])<<8
			normalized := float64(sample) / 32768.0
			sum += normalized * normalized
			count++
		}
	case Float32:
		for i := 0; i+3 < len(audioData); i += 4 {
			bits := uint32(audioData[i]) | uint32(audioData[i+1])<<8 | uint32(audioData[i+2])<<16 | uint32(audioData[i+3])<<24
			sample := float64(math.Float32frombits(bits))
			if math.IsNaN(sample) || math.IsInf(sample, 0) {
				continue
			}
			sum += sample * sample
			count++
		}
	default:
		for _, b := range audioData {
			normalized := (float64(b) - 128.0) / 128.0
			sum += normalized * normalized
			count++
		}
	}

	if count == 0 {
		return 0
	}

	return math.Min(1, math.Sqrt(sum/float64(count)))
}
