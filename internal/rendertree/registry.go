package rendertree

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexportrait/internal/expression"
	"github.com/normanking/cortexportrait/internal/viseme"
)

// Registry owns the loaded render trees: one per character plus an optional
// shared default. Trees are immutable, so lookups only hold the lock long
// enough to pick the chain.
type Registry struct {
	mu       sync.RWMutex
	trees    map[string]*Tree
	fallback *Tree
	logger   zerolog.Logger
}

func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		trees:  make(map[string]*Tree),
		logger: logger,
	}
}

// Set installs the tree for a character, replacing any previous one.
func (r *Registry) Set(characterID string, t *Tree) {
	r.mu.Lock()
	r.trees[characterID] = t
	r.mu.Unlock()
	r.logger.Debug().Str("character", characterID).Str("tree", t.Name()).Msg("render tree installed")
}

// SetDefault installs the shared default. A nil tree removes it.
func (r *Registry) SetDefault(t *Tree) {
	r.mu.Lock()
	r.fallback = t
	r.mu.Unlock()
}

func (r *Registry) Get(characterID string) (*Tree, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.trees[characterID]
	return t, ok
}

func (r *Registry) Default() *Tree {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback
}

func (r *Registry) Remove(characterID string) {
	r.mu.Lock()
	delete(r.trees, characterID)
	r.mu.Unlock()
}

// Clear drops every tree including the shared default.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.trees = make(map[string]*Tree)
	r.fallback = nil
	r.mu.Unlock()
}

// Characters lists ids with their own tree.
func (r *Registry) Characters() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.trees))
	for id := range r.trees {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (r *Registry) chain(characterID string) chain {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return chain{r.trees[characterID], r.fallback, builtin}
}

// ResolveTexture walks character tree, shared default, then built-in table.
func (r *Registry) ResolveTexture(characterID string, expr expression.Expression, variant int, ch Channel) (string, bool) {
	tex, ok := r.chain(characterID).resolve(expr, variant, ch)
	if !ok {
		r.logger.Trace().
			Str("character", characterID).
			Stringer("expression", expr).
			Int("variant", variant).
			Stringer("channel", ch).
			Msg("no texture mapping")
	}
	return tex, ok
}

func (r *Registry) VisemeTexture(characterID string, code viseme.Code) string {
	return r.chain(characterID).visemeTexture(code)
}

func (r *Registry) VisemeFromOpenness(characterID string, x float64) viseme.Code {
	return r.chain(characterID).visemeFromOpenness(x)
}

func (r *Registry) TextureFromAzureID(characterID string, id int) string {
	return r.chain(characterID).azureTexture(id)
}

func (r *Registry) VariantCount(characterID string, expr expression.Expression) int {
	return r.chain(characterID).variantCount(expr)
}
