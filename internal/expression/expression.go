// Package expression implements the per-character emotion state machine that
// drives which expression art (and which numbered variant of it) a portrait
// shows.
package expression

import "strings"

// Expression is one of the thirteen canonical emotional categories.
type Expression int

const (
	Neutral Expression = iota
	Happy
	Sad
	Angry
	Surprised
	Worried
	Smug
	Disappointed
	Thoughtful
	Annoyed
	Playful
	Shy
	Confused
	expressionCount
)

var expressionNames = [expressionCount]string{
	"Neutral",
	"Happy",
	"Sad",
	"Angry",
	"Surprised",
	"Worried",
	"Smug",
	"Disappointed",
	"Thoughtful",
	"Annoyed",
	"Playful",
	"Shy",
	"Confused",
}

func (e Expression) String() string {
	if !e.Valid() {
		return "Neutral"
	}
	return expressionNames[e]
}

func (e Expression) Valid() bool {
	return e >= 0 && e < expressionCount
}

// Key is the lower-case name used in texture file names ("happy", "sad").
func (e Expression) Key() string {
	return strings.ToLower(e.String())
}

// Suffix is the texture suffix of the base art for e: "" for Neutral,
// "_happy" for Happy and so on.
func (e Expression) Suffix() string {
	if e == Neutral || !e.Valid() {
		return ""
	}
	return "_" + e.Key()
}

// VariantSuffix appends the variant number to the base suffix. Variant 0 and
// Neutral return the bare suffix.
func (e Expression) VariantSuffix(variant int) string {
	base := e.Suffix()
	if variant <= 0 || base == "" {
		return base
	}
	return base + itoa(variant)
}

// AllExpressions lists every expression in declaration order.
func AllExpressions() []Expression {
	out := make([]Expression, 0, expressionCount)
	for e := Neutral; e < expressionCount; e++ {
		out = append(out, e)
	}
	return out
}

// Lookup resolves a canonical name, case-insensitively. It does not consult
// the alias table; use ParseLabel for free text.
func Lookup(name string) (Expression, bool) {
	name = strings.TrimSpace(name)
	for i, n := range expressionNames {
		if strings.EqualFold(n, name) {
			return Expression(i), true
		}
	}
	return Neutral, false
}

// Trigger records what caused the latest expression change.
type Trigger int

const (
	TriggerManual Trigger = iota
	TriggerAffinity
	TriggerDialogueTone
	TriggerGameEvent
	TriggerRandomVariation
	TriggerProcessing
)

func (t Trigger) String() string {
	switch t {
	case TriggerAffinity:
		return "Affinity"
	case TriggerDialogueTone:
		return "DialogueTone"
	case TriggerGameEvent:
		return "GameEvent"
	case TriggerRandomVariation:
		return "RandomVariation"
	case TriggerProcessing:
		return "Processing"
	default:
		return "Manual"
	}
}

const maxVariant = 5

// MaxVariant is the highest alternate art number an expression can carry.
func MaxVariant() int { return maxVariant }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
