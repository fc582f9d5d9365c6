// Package viseme defines the closed set of mouth-shape categories used by the
// portrait and the tables that map phonemes, Azure viseme ids and openness
// values onto them.
package viseme

import (
	"strconv"
	"strings"
)

// Code is a discrete mouth-shape category, independent of any phonetic alphabet.
type Code int

const (
	Closed Code = iota // silence, bilabials
	Small              // i, u, most consonants
	Medium             // e, schwa
	Large              // a
	Smile              // sibilants, laughter
	OShape             // rounded vowels
	codeCount
)

var codeNames = [codeCount]string{
	"Closed",
	"Small",
	"Medium",
	"Large",
	"Smile",
	"OShape",
}

func (c Code) String() string {
	if c < 0 || c >= codeCount {
		return "Closed"
	}
	return codeNames[c]
}

// Valid reports whether c is one of the six known categories.
func (c Code) Valid() bool {
	return c >= 0 && c < codeCount
}

// All returns every category in declaration order.
func All() []Code {
	out := make([]Code, 0, codeCount)
	for c := Closed; c < codeCount; c++ {
		out = append(out, c)
	}
	return out
}

// Lookup resolves a category by name, case-insensitively.
func Lookup(name string) (Code, bool) {
	name = strings.TrimSpace(name)
	for i, n := range codeNames {
		if strings.EqualFold(n, name) {
			return Code(i), true
		}
	}
	return Closed, false
}

// Parse accepts a category name or, for older data, a numeric openness in [0,1].
// Anything else is Closed.
func Parse(s string) Code {
	s = strings.TrimSpace(s)
	if s == "" {
		return Closed
	}
	if c, ok := Lookup(s); ok {
		return c
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return FromLegacyOpenness(f)
	}
	return Closed
}

// FromLegacyOpenness is the coarse four-bucket quantizer used by older
// phrase data. Render-tree thresholds supersede it for live lip-sync.
func FromLegacyOpenness(openness float64) Code {
	switch {
	case openness < 0.2:
		return Closed
	case openness < 0.5:
		return Small
	case openness < 0.8:
		return Medium
	default:
		return Large
	}
}

// Openness is the representative mouth openness of a category, used when a
// phoneme-driven viseme has to be blended as a continuous value.
func (c Code) Openness() float64 {
	switch c {
	case Small:
		return 0.25
	case Medium:
		return 0.5
	case Large:
		return 0.75
	case Smile:
		return 0.3
	case OShape:
		return 0.6
	default:
		return 0
	}
}
