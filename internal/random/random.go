// Package random provides the injectable random source shared by the
// animation subsystems so tests can run them deterministically.
package random

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Source is the subset of *rand.Rand the animation code relies on.
type Source interface {
	IntN(n int) int
	Float64() float64
}

// New returns a PCG-backed source. The same seed always yields the same sequence.
func New(seed uint64) Source {
	return &lockedSource{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewTimeSeeded is the production source.
func NewTimeSeeded() Source {
	return New(uint64(time.Now().UnixNano()))
}

// lockedSource lets external producers and the update pass share one source.
type lockedSource struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (s *lockedSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IntN(n)
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

// Range draws uniformly from [min, max). A reversed range is swapped.
func Range(src Source, min, max float64) float64 {
	if max < min {
		min, max = max, min
	}
	return min + src.Float64()*(max-min)
}

// Duration draws uniformly from [min, max).
func Duration(src Source, min, max time.Duration) time.Duration {
	if max < min {
		min, max = max, min
	}
	return min + time.Duration(src.Float64()*float64(max-min))
}

// Chance reports true with probability p.
func Chance(src Source, p float64) bool {
	return src.Float64() < p
}

// Sequence replays fixed values; tests use it to script rolls.
// Float64 cycles through Floats, IntN through Ints (taken modulo n).
type Sequence struct {
	Floats []float64
	Ints   []int

	fi, ii int
}

func (s *Sequence) Float64() float64 {
	if len(s.Floats) == 0 {
		return 0
	}
	v := s.Floats[s.fi%len(s.Floats)]
	s.fi++
	return v
}

func (s *Sequence) IntN(n int) int {
	if len(s.Ints) == 0 || n <= 0 {
		return 0
	}
	v := s.Ints[s.ii%len(s.Ints)]
	s.ii++
	if v < 0 {
		v = -v
	}
	return v % n
}
