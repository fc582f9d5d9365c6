// Package rendertree resolves (expression, variant, viseme) selections into
// concrete portrait texture names using per-character configuration with a
// shared default and a built-in table behind it.
package rendertree

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/normanking/cortexportrait/internal/expression"
	"github.com/normanking/cortexportrait/internal/viseme"
)

// UseBase tells the compositor to show the unexpressive base art for the
// channel instead of an overlay texture.
const UseBase = "USE_BASE"

var (
	ErrConfigNotFound = errors.New("render tree config not found")
	ErrInvalidConfig  = errors.New("invalid render tree config")
)

// Channel is a visual layer of the portrait.
type Channel int

const (
	ChannelEyes Channel = iota
	ChannelMouth
	ChannelBrow
	ChannelBody
)

func (c Channel) String() string {
	switch c {
	case ChannelEyes:
		return "eyes"
	case ChannelMouth:
		return "mouth"
	case ChannelBrow:
		return "brow"
	case ChannelBody:
		return "body"
	}
	return "unknown"
}

// Channels lists every channel in compositing order.
func Channels() []Channel {
	return []Channel{ChannelBody, ChannelEyes, ChannelBrow, ChannelMouth}
}

// Variant is one numbered alternate of an expression. Empty texture names
// mean "derive from the suffix".
type Variant struct {
	Variant int    `yaml:"variant"`
	Suffix  string `yaml:"suffix,omitempty"`
	Eyes    string `yaml:"eyes,omitempty"`
	Mouth   string `yaml:"mouth,omitempty"`
	Brow    string `yaml:"brow,omitempty"`
}

// ExpressionMapping configures one expression's art.
type ExpressionMapping struct {
	Expression string    `yaml:"expression"`
	Suffix     string    `yaml:"suffix"`
	Eyes       string    `yaml:"eyes,omitempty"`
	Mouth      string    `yaml:"mouth,omitempty"`
	Brow       string    `yaml:"brow,omitempty"`
	Body       string    `yaml:"body,omitempty"`
	Variants   []Variant `yaml:"variants,omitempty"`
}

type VisemeTexture struct {
	Viseme  string `yaml:"viseme"`
	Texture string `yaml:"texture"`
}

// Threshold selects Viseme for openness values below Threshold.
type Threshold struct {
	Threshold float64 `yaml:"threshold"`
	Viseme    string  `yaml:"viseme"`
}

type AzureTexture struct {
	ID      int    `yaml:"id"`
	Texture string `yaml:"texture"`
}

// Speaking holds the mouth tables used while a character talks.
type Speaking struct {
	VisemeMap          []VisemeTexture `yaml:"viseme_map,omitempty"`
	OpennessThresholds []Threshold     `yaml:"openness_thresholds,omitempty"`
	AzureVisemeMap     []AzureTexture  `yaml:"azure_viseme_map,omitempty"`
}

// Config is the on-disk form of a character's render tree.
type Config struct {
	Name        string              `yaml:"name"`
	Expressions []ExpressionMapping `yaml:"expressions"`
	Speaking    Speaking            `yaml:"speaking"`
}

type compiledMapping struct {
	expr     expression.Expression
	suffix   string
	generic  [4]string
	variants map[int]Variant
	count    int
}

type compiledThreshold struct {
	limit float64
	code  viseme.Code
}

// Tree is a validated, immutable render tree. Build one with Compile.
type Tree struct {
	name       string
	mappings   map[expression.Expression]*compiledMapping
	visemes    map[viseme.Code]string
	thresholds []compiledThreshold
	azure      map[int]string
	source     Config
}

// Compile validates cfg and indexes it for lookups.
func Compile(cfg Config) (*Tree, error) {
	t := &Tree{
		name:     cfg.Name,
		mappings: make(map[expression.Expression]*compiledMapping, len(cfg.Expressions)),
		visemes:  make(map[viseme.Code]string, len(cfg.Speaking.VisemeMap)),
		azure:    make(map[int]string, len(cfg.Speaking.AzureVisemeMap)),
		source:   cfg,
	}

	for i, m := range cfg.Expressions {
		expr, ok := expression.Lookup(m.Expression)
		if !ok {
			return nil, fmt.Errorf("%w: expressions[%d]: unknown expression %q", ErrInvalidConfig, i, m.Expression)
		}
		if _, dup := t.mappings[expr]; dup {
			return nil, fmt.Errorf("%w: expression %s mapped twice", ErrInvalidConfig, expr)
		}
		cm := &compiledMapping{
			expr:     expr,
			suffix:   m.Suffix,
			generic:  [4]string{m.Eyes, m.Mouth, m.Brow, m.Body},
			variants: make(map[int]Variant, len(m.Variants)),
			count:    len(m.Variants),
		}
		for _, v := range m.Variants {
			if v.Variant < 1 || v.Variant > expression.MaxVariant() {
				return nil, fmt.Errorf("%w: %s variant %d out of range", ErrInvalidConfig, expr, v.Variant)
			}
			cm.variants[v.Variant] = v
		}
		t.mappings[expr] = cm
	}

	for _, vt := range cfg.Speaking.VisemeMap {
		code, ok := viseme.Lookup(vt.Viseme)
		if !ok {
			return nil, fmt.Errorf("%w: unknown viseme %q", ErrInvalidConfig, vt.Viseme)
		}
		t.visemes[code] = vt.Texture
	}

	t.thresholds = lo.FilterMap(cfg.Speaking.OpennessThresholds, func(th Threshold, _ int) (compiledThreshold, bool) {
		code, ok := viseme.Lookup(th.Viseme)
		return compiledThreshold{limit: th.Threshold, code: code}, ok
	})
	if len(t.thresholds) != len(cfg.Speaking.OpennessThresholds) {
		return nil, fmt.Errorf("%w: openness thresholds reference unknown visemes", ErrInvalidConfig)
	}
	sort.SliceStable(t.thresholds, func(i, j int) bool {
		return t.thresholds[i].limit < t.thresholds[j].limit
	})

	for _, az := range cfg.Speaking.AzureVisemeMap {
		t.azure[az.ID] = az.Texture
	}
	return t, nil
}

// MustCompile is Compile for configs known to be valid.
func MustCompile(cfg Config) *Tree {
	t, err := Compile(cfg)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Tree) Name() string { return t.name }

// Config returns the configuration t was compiled from.
func (t *Tree) Config() Config { return t.source }

// HasExpression reports whether t maps expr itself.
func (t *Tree) HasExpression(expr expression.Expression) bool {
	_, ok := t.mappings[expr]
	return ok
}

// Expressions lists the mapped expressions in declaration order.
func (t *Tree) Expressions() []expression.Expression {
	keys := lo.Keys(t.mappings)
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// DefaultConfig is the stock layout: "_<name>" suffixes with five numbered
// variants per expression, static mouths from the expression parameter
// table and the standard speaking tables.
func DefaultConfig() Config {
	cfg := Config{Name: "runtime-default"}

	for _, expr := range expression.AllExpressions() {
		if expr == expression.Neutral {
			cfg.Expressions = append(cfg.Expressions, ExpressionMapping{Expression: expr.String()})
			continue
		}
		m := ExpressionMapping{
			Expression: expr.String(),
			Suffix:     expr.Suffix(),
			Mouth:      expression.ParamsFor(expr).DefaultMouth,
		}
		for i := 1; i <= expression.MaxVariant(); i++ {
			m.Variants = append(m.Variants, Variant{Variant: i, Suffix: expr.VariantSuffix(i)})
		}
		cfg.Expressions = append(cfg.Expressions, m)
	}

	for _, code := range viseme.All() {
		cfg.Speaking.VisemeMap = append(cfg.Speaking.VisemeMap, VisemeTexture{
			Viseme:  code.String(),
			Texture: defaultVisemeTexture(code),
		})
	}
	cfg.Speaking.OpennessThresholds = []Threshold{
		{0.10, viseme.Closed.String()},
		{0.30, viseme.Small.String()},
		{0.55, viseme.Medium.String()},
		{0.80, viseme.Large.String()},
		{1.00, viseme.OShape.String()},
	}
	for _, id := range []int{0, 21, 1, 2, 9, 11, 6, 7, 8, 3, 13, 14, 4, 5, 10, 15, 16} {
		cfg.Speaking.AzureVisemeMap = append(cfg.Speaking.AzureVisemeMap, AzureTexture{ID: id, Texture: defaultAzureTexture(id)})
	}
	return cfg
}

func defaultVisemeTexture(code viseme.Code) string {
	switch code {
	case viseme.Small:
		return UseBase
	case viseme.Medium:
		return "medium_mouth"
	case viseme.Large:
		return "larger_mouth"
	case viseme.Smile:
		return "happy_mouth"
	case viseme.OShape:
		return "O_mouth"
	default:
		return "Closed_mouth"
	}
}

func defaultVisemeFromOpenness(x float64) viseme.Code {
	switch {
	case x < 0.10:
		return viseme.Closed
	case x < 0.30:
		return viseme.Small
	case x < 0.55:
		return viseme.Medium
	case x < 0.80:
		return viseme.Large
	default:
		return viseme.OShape
	}
}

func defaultAzureTexture(id int) string {
	switch id {
	case 0, 21:
		return "Closed_mouth"
	case 1, 2, 9, 11:
		return "larger_mouth"
	case 6, 7, 8:
		return "happy_mouth"
	case 3, 13, 14:
		return "O_mouth"
	case 4, 5, 10, 15, 16:
		return "medium_mouth"
	default:
		return UseBase
	}
}

// textureStem turns "_happy3" into "happy3".
func textureStem(suffix string) string {
	return strings.TrimPrefix(strings.TrimSpace(suffix), "_")
}
