package rendertree

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/cortexportrait/internal/expression"
	"github.com/normanking/cortexportrait/internal/viseme"
)

func happyTree(t *testing.T, variants ...Variant) *Tree {
	t.Helper()
	tree, err := Compile(Config{
		Name: "sideria",
		Expressions: []ExpressionMapping{
			{Expression: "Neutral"},
			{Expression: "Happy", Suffix: "_happy", Variants: variants},
		},
	})
	require.NoError(t, err)
	return tree
}

func TestResolveTexture_Deterministic(t *testing.T) {
	tree := happyTree(t,
		Variant{Variant: 1, Suffix: "_happy1"},
		Variant{Variant: 3, Suffix: "_happy3", Eyes: "happy_sparkle_eyes"},
	)

	first, ok := ResolveTexture(tree, expression.Happy, 3, ChannelEyes)
	require.True(t, ok)
	for i := 0; i < 10; i++ {
		again, _ := ResolveTexture(tree, expression.Happy, 3, ChannelEyes)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, "happy_sparkle_eyes", first)
}

func TestResolveTexture_MissingVariantFallsBackToGeneric(t *testing.T) {
	tree := happyTree(t, Variant{Variant: 1, Suffix: "_happy1"})

	tex, ok := ResolveTexture(tree, expression.Happy, 3, ChannelEyes)
	require.True(t, ok)
	assert.Equal(t, "happy_eyes", tex)

	tex, ok = ResolveTexture(tree, expression.Happy, 1, ChannelEyes)
	require.True(t, ok)
	assert.Equal(t, "happy1_eyes", tex)
}

func TestResolveTexture_GenericOverride(t *testing.T) {
	tree, err := Compile(Config{Expressions: []ExpressionMapping{
		{Expression: "Happy", Suffix: "_happy", Eyes: "grin_eyes", Mouth: "grin_mouth"},
	}})
	require.NoError(t, err)

	tex, _ := ResolveTexture(tree, expression.Happy, 4, ChannelEyes)
	assert.Equal(t, "grin_eyes", tex)
	tex, _ = ResolveTexture(tree, expression.Happy, 4, ChannelMouth)
	assert.Equal(t, "grin_mouth", tex)
}

func TestResolveTexture_MouthUsesTemplate(t *testing.T) {
	tree := happyTree(t, Variant{Variant: 2, Suffix: "_happy2", Mouth: "tongue_mouth"}, Variant{Variant: 3})

	tex, _ := ResolveTexture(tree, expression.Happy, 2, ChannelMouth)
	assert.Equal(t, "tongue_mouth", tex)

	tex, _ = ResolveTexture(tree, expression.Happy, 3, ChannelMouth)
	assert.Equal(t, "happy_mouth", tex)
}

func TestResolveTexture_NeutralAndBody(t *testing.T) {
	tree := happyTree(t)

	tex, ok := ResolveTexture(tree, expression.Neutral, 0, ChannelEyes)
	require.True(t, ok)
	assert.Equal(t, UseBase, tex)

	tex, ok = ResolveTexture(tree, expression.Happy, 0, ChannelBody)
	require.True(t, ok)
	assert.Equal(t, UseBase, tex)
}

func TestResolveTexture_BuiltinFallback(t *testing.T) {
	tree := happyTree(t)

	tex, ok := ResolveTexture(tree, expression.Sad, 2, ChannelEyes)
	require.True(t, ok)
	assert.Equal(t, "sad2_eyes", tex)

	tex, ok = ResolveTexture(nil, expression.Surprised, 5, ChannelMouth)
	require.True(t, ok)
	assert.Equal(t, "larger_mouth", tex)

	tex, ok = ResolveTexture(nil, expression.Confused, 1, ChannelBrow)
	require.True(t, ok)
	assert.Equal(t, "confused1_brow", tex)
}

func TestFirstSuccess(t *testing.T) {
	miss := func(expression.Expression, int, Channel) (string, bool) { return "", false }
	hit := func(string) Strategy {
		return func(expression.Expression, int, Channel) (string, bool) { return "x", true }
	}

	tex, ok := FirstSuccess(nil, miss, hit("x"), miss)(expression.Happy, 1, ChannelEyes)
	assert.True(t, ok)
	assert.Equal(t, "x", tex)

	_, ok = FirstSuccess(miss, nil)(expression.Happy, 1, ChannelEyes)
	assert.False(t, ok)
}

func TestRegistry_Chain(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	reg.Set("alice", happyTree(t))
	reg.SetDefault(MustCompile(Config{Expressions: []ExpressionMapping{
		{Expression: "Sad", Suffix: "_sad", Eyes: "shared_sad_eyes"},
	}}))

	tex, _ := reg.ResolveTexture("alice", expression.Happy, 0, ChannelEyes)
	assert.Equal(t, "happy_eyes", tex)

	tex, _ = reg.ResolveTexture("alice", expression.Sad, 2, ChannelEyes)
	assert.Equal(t, "shared_sad_eyes", tex)

	tex, _ = reg.ResolveTexture("alice", expression.Angry, 2, ChannelEyes)
	assert.Equal(t, "angry2_eyes", tex)

	tex, _ = reg.ResolveTexture("unknown", expression.Sad, 0, ChannelEyes)
	assert.Equal(t, "shared_sad_eyes", tex)

	reg.Clear()
	assert.Empty(t, reg.Characters())
	tex, _ = reg.ResolveTexture("alice", expression.Sad, 0, ChannelEyes)
	assert.Equal(t, "sad_eyes", tex)
}

func TestGetVisemeFromOpenness_Monotonic(t *testing.T) {
	tree := MustCompile(Config{Speaking: Speaking{OpennessThresholds: []Threshold{
		{0.80, "Large"},
		{0.10, "Closed"},
		{0.55, "Medium"},
		{0.30, "Small"},
	}}})

	tests := []struct {
		x    float64
		want viseme.Code
	}{
		{0.05, viseme.Closed},
		{0.25, viseme.Small},
		{0.5, viseme.Medium},
		{0.75, viseme.Large},
		{0.95, viseme.Large},
		{-3, viseme.Closed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GetVisemeFromOpenness(tree, tt.x), "x=%v", tt.x)
	}
}

func TestGetVisemeFromOpenness_Defaults(t *testing.T) {
	empty := MustCompile(Config{})
	assert.Equal(t, viseme.Closed, GetVisemeFromOpenness(empty, 0.05))
	assert.Equal(t, viseme.Medium, GetVisemeFromOpenness(empty, 0.4))
	assert.Equal(t, viseme.OShape, GetVisemeFromOpenness(nil, 0.95))
	assert.Equal(t, viseme.OShape, GetVisemeFromOpenness(nil, 7))
}

func TestGetVisemeTextureName(t *testing.T) {
	tree := MustCompile(Config{Speaking: Speaking{VisemeMap: []VisemeTexture{
		{Viseme: "Large", Texture: "big_mouth"},
	}}})

	assert.Equal(t, "big_mouth", GetVisemeTextureName(tree, viseme.Large))
	assert.Equal(t, UseBase, GetVisemeTextureName(tree, viseme.Small))
	assert.Equal(t, "O_mouth", GetVisemeTextureName(nil, viseme.OShape))
	assert.Equal(t, "Closed_mouth", GetVisemeTextureName(nil, viseme.Closed))
}

func TestGetTextureFromAzureID(t *testing.T) {
	tree := MustCompile(Config{Speaking: Speaking{AzureVisemeMap: []AzureTexture{{ID: 2, Texture: "custom_mouth"}}}})

	assert.Equal(t, "custom_mouth", GetTextureFromAzureID(tree, 2))
	assert.Equal(t, "happy_mouth", GetTextureFromAzureID(tree, 7))
	assert.Equal(t, "Closed_mouth", GetTextureFromAzureID(nil, 21))
	assert.Equal(t, UseBase, GetTextureFromAzureID(nil, 99))
}

func TestGetVariantCount(t *testing.T) {
	tree := happyTree(t, Variant{Variant: 1}, Variant{Variant: 2}, Variant{Variant: 3})

	assert.Equal(t, 3, GetVariantCount(tree, expression.Happy))
	assert.Equal(t, 0, GetVariantCount(tree, expression.Neutral))
	assert.Equal(t, 5, GetVariantCount(tree, expression.Sad))
	assert.Equal(t, 0, GetVariantCount(nil, expression.Neutral))
	assert.Equal(t, 5, GetVariantCount(Builtin(), expression.Shy))
}

func TestCompile_Rejects(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"unknown expression", Config{Expressions: []ExpressionMapping{{Expression: "Hungry"}}}},
		{"duplicate expression", Config{Expressions: []ExpressionMapping{{Expression: "Sad"}, {Expression: "sad"}}}},
		{"variant out of range", Config{Expressions: []ExpressionMapping{{Expression: "Sad", Variants: []Variant{{Variant: 6}}}}}},
		{"unknown viseme", Config{Speaking: Speaking{VisemeMap: []VisemeTexture{{Viseme: "Pucker"}}}}},
		{"unknown threshold viseme", Config{Speaking: Speaking{OpennessThresholds: []Threshold{{0.5, "Pucker"}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestDefaultConfig_CoversEveryExpression(t *testing.T) {
	tree := MustCompile(DefaultConfig())
	assert.Len(t, tree.Expressions(), len(expression.AllExpressions()))
	for _, e := range expression.AllExpressions() {
		assert.True(t, tree.HasExpression(e), e.String())
	}
}
