package rendertree

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/normanking/cortexportrait/internal/expression"
	"github.com/normanking/cortexportrait/internal/viseme"
)

// Strategy is one level of texture resolution. A miss lets the next level
// try.
type Strategy func(expr expression.Expression, variant int, ch Channel) (string, bool)

// FirstSuccess tries strategies in order and returns the first hit. Nil
// strategies are skipped.
func FirstSuccess(strategies ...Strategy) Strategy {
	return func(expr expression.Expression, variant int, ch Channel) (string, bool) {
		for _, s := range strategies {
			if s == nil {
				continue
			}
			if tex, ok := s(expr, variant, ch); ok {
				return tex, true
			}
		}
		return "", false
	}
}

func first[T any](steps ...func() (T, bool)) (T, bool) {
	for _, step := range steps {
		if v, ok := step(); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

var builtin = MustCompile(DefaultConfig())

// Builtin is the tree used when neither a character config nor a shared
// default exists.
func Builtin() *Tree { return builtin }

// Strategy exposes t as one resolution level. A nil tree yields a nil
// strategy, which FirstSuccess skips.
func (t *Tree) Strategy() Strategy {
	if t == nil {
		return nil
	}
	return t.lookup
}

func (t *Tree) lookup(expr expression.Expression, variant int, ch Channel) (string, bool) {
	m, ok := t.mappings[expr]
	if !ok || ch < ChannelEyes || ch > ChannelBody {
		return "", false
	}

	derived := m.suffix
	if variant > 0 && m.suffix != "" {
		derived = m.suffix + strconv.Itoa(variant)
	}
	if v, ok := m.variants[variant]; ok && variant > 0 {
		if tex := v.texture(ch); tex != "" {
			return tex, true
		}
		if v.Suffix != "" {
			derived = v.Suffix
		}
		if derivesPerVariant(ch) {
			return deriveTexture(ch, textureStem(derived)), true
		}
	}

	// generic level: the variant's derived name without its number
	if tex := m.generic[ch]; tex != "" {
		return tex, true
	}
	stem := strings.TrimRightFunc(textureStem(derived), unicode.IsDigit)
	return deriveTexture(ch, stem), true
}

func (v Variant) texture(ch Channel) string {
	switch ch {
	case ChannelEyes:
		return v.Eyes
	case ChannelMouth:
		return v.Mouth
	case ChannelBrow:
		return v.Brow
	}
	return ""
}

// Mouths follow visemes or the expression's static mouth, so only eyes and
// brows get a texture per variant by default.
func derivesPerVariant(ch Channel) bool {
	return ch == ChannelEyes || ch == ChannelBrow
}

func deriveTexture(ch Channel, stem string) string {
	if stem == "" || ch == ChannelBody {
		return UseBase
	}
	return stem + "_" + ch.String()
}

func (t *Tree) visemeTexture(code viseme.Code) (string, bool) {
	if t == nil {
		return "", false
	}
	tex, ok := t.visemes[code]
	return tex, ok && tex != ""
}

func (t *Tree) visemeFromOpenness(x float64) (viseme.Code, bool) {
	if t == nil || len(t.thresholds) == 0 {
		return viseme.Closed, false
	}
	for _, th := range t.thresholds {
		if x < th.limit {
			return th.code, true
		}
	}
	return t.thresholds[len(t.thresholds)-1].code, true
}

func (t *Tree) azureTexture(id int) (string, bool) {
	if t == nil {
		return "", false
	}
	tex, ok := t.azure[id]
	return tex, ok && tex != ""
}

func (t *Tree) variantCount(expr expression.Expression) (int, bool) {
	if t == nil {
		return 0, false
	}
	m, ok := t.mappings[expr]
	if !ok {
		return 0, false
	}
	return m.count, true
}

// chain is an ordered list of trees consulted most specific first.
type chain []*Tree

func (c chain) resolve(expr expression.Expression, variant int, ch Channel) (string, bool) {
	strategies := make([]Strategy, 0, len(c))
	for _, t := range c {
		strategies = append(strategies, t.Strategy())
	}
	return FirstSuccess(strategies...)(expr, variant, ch)
}

func (c chain) visemeTexture(code viseme.Code) string {
	steps := make([]func() (string, bool), 0, len(c)+1)
	for _, t := range c {
		steps = append(steps, func() (string, bool) { return t.visemeTexture(code) })
	}
	steps = append(steps, func() (string, bool) { return defaultVisemeTexture(code), true })
	tex, _ := first(steps...)
	return tex
}

func (c chain) visemeFromOpenness(x float64) viseme.Code {
	x = clamp01(x)
	steps := make([]func() (viseme.Code, bool), 0, len(c)+1)
	for _, t := range c {
		steps = append(steps, func() (viseme.Code, bool) { return t.visemeFromOpenness(x) })
	}
	steps = append(steps, func() (viseme.Code, bool) { return defaultVisemeFromOpenness(x), true })
	code, _ := first(steps...)
	return code
}

func (c chain) azureTexture(id int) string {
	steps := make([]func() (string, bool), 0, len(c)+1)
	for _, t := range c {
		steps = append(steps, func() (string, bool) { return t.azureTexture(id) })
	}
	steps = append(steps, func() (string, bool) { return defaultAzureTexture(id), true })
	tex, _ := first(steps...)
	return tex
}

func (c chain) variantCount(expr expression.Expression) int {
	steps := make([]func() (int, bool), 0, len(c)+1)
	for _, t := range c {
		steps = append(steps, func() (int, bool) { return t.variantCount(expr) })
	}
	steps = append(steps, func() (int, bool) {
		if expr == expression.Neutral {
			return 0, true
		}
		return expression.MaxVariant(), true
	})
	n, _ := first(steps...)
	return n
}

// ResolveTexture resolves a channel texture from t, then the built-in
// tree. The result is either a texture name or UseBase; ok is false only
// when no level maps the expression.
func ResolveTexture(t *Tree, expr expression.Expression, variant int, ch Channel) (string, bool) {
	return chain{t, builtin}.resolve(expr, variant, ch)
}

// GetVisemeTextureName maps a viseme to its mouth texture.
func GetVisemeTextureName(t *Tree, code viseme.Code) string {
	return chain{t}.visemeTexture(code)
}

// GetVisemeFromOpenness quantizes a [0,1] openness value. The first
// threshold above x wins; values past every threshold get the last bucket.
func GetVisemeFromOpenness(t *Tree, x float64) viseme.Code {
	return chain{t}.visemeFromOpenness(x)
}

// GetTextureFromAzureID maps an Azure viseme id to a mouth texture.
func GetTextureFromAzureID(t *Tree, id int) string {
	return chain{t}.azureTexture(id)
}

// GetVariantCount reports how many variants t offers for expr.
func GetVariantCount(t *Tree, expr expression.Expression) int {
	return chain{t}.variantCount(expr)
}

func clamp01(x float64) float64 {
	if x != x || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
