package expression

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexportrait/internal/random"
)

// Clock reports the current game tick.
type Clock interface {
	Now() int64
}

// TickCounter is a manually advanced Clock. The Director advances it once
// per update pass.
type TickCounter struct {
	mu  sync.RWMutex
	now int64
}

func (c *TickCounter) Now() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Advance moves the clock forward by n ticks and returns the new tick.
func (c *TickCounter) Advance(n int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += n
	return c.now
}

// Set jumps the clock to tick.
func (c *TickCounter) Set(tick int64) {
	c.mu.Lock()
	c.now = tick
	c.mu.Unlock()
}

// Config tunes the state machine.
type Config struct {
	TransitionTicks int64 `mapstructure:"transition_ticks"`
	DurationTicks   int64 `mapstructure:"duration_ticks"`
}

// DefaultConfig is a half second blend and a thirty second hold at 60 ticks/s.
func DefaultConfig() Config {
	return Config{
		TransitionTicks: 30,
		DurationTicks:   1800,
	}
}

// State is a snapshot of one character's expression.
type State struct {
	Current            Expression
	Previous           Expression
	Variant            int
	TransitionProgress float64
	TransitionElapsed  int64
	LastTrigger        Trigger
	Reason             string
	DurationTicks      int64
	StartTick          int64
	Locked             bool
}

// Change describes a committed expression switch. Consumers holding a
// composited portrait for From must drop it.
type Change struct {
	CharacterID string
	From        Expression
	To          Expression
	Variant     int
	Trigger     Trigger
	Reason      string
	Tick        int64
	Params      AnimationParams
}

type record struct {
	mu    sync.Mutex
	state State
}

// Machine holds the expression state of every character in the session.
type Machine struct {
	cfg    Config
	clock  Clock
	rng    random.Source
	logger zerolog.Logger

	mu     sync.RWMutex
	states map[string]*record

	handlerMu sync.RWMutex
	handlers  []func(Change)
}

func NewMachine(cfg Config, clock Clock, rng random.Source, logger zerolog.Logger) *Machine {
	def := DefaultConfig()
	if cfg.TransitionTicks <= 0 {
		cfg.TransitionTicks = def.TransitionTicks
	}
	if cfg.DurationTicks <= 0 {
		cfg.DurationTicks = def.DurationTicks
	}
	if clock == nil {
		clock = &TickCounter{}
	}
	if rng == nil {
		rng = random.NewTimeSeeded()
	}
	return &Machine{
		cfg:    cfg,
		clock:  clock,
		rng:    rng,
		logger: logger,
		states: make(map[string]*record),
	}
}

// OnChange registers fn to run after every committed change, outside any
// lock.
func (m *Machine) OnChange(fn func(Change)) {
	m.handlerMu.Lock()
	m.handlers = append(m.handlers, fn)
	m.handlerMu.Unlock()
}

func (m *Machine) emit(c Change) {
	m.handlerMu.RLock()
	handlers := append([]func(Change){}, m.handlers...)
	m.handlerMu.RUnlock()
	for _, h := range handlers {
		h(c)
	}
}

func (m *Machine) get(id string) *record {
	m.mu.RLock()
	r, ok := m.states[id]
	m.mu.RUnlock()
	if ok {
		return r
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok = m.states[id]; ok {
		return r
	}
	r = &record{state: State{
		Current:            Neutral,
		Previous:           Neutral,
		TransitionProgress: 1,
		DurationTicks:      m.cfg.DurationTicks,
		StartTick:          m.clock.Now(),
	}}
	m.states[id] = r
	return r
}

// SetExpression switches id to expr. It is a no-op while the character is
// locked or already shows expr. durationTicks <= 0 selects the configured
// hold time.
func (m *Machine) SetExpression(id string, expr Expression, trigger Trigger, durationTicks int64, reason string) (Change, bool) {
	if !expr.Valid() {
		expr = Neutral
	}
	r := m.get(id)

	r.mu.Lock()
	if r.state.Locked || r.state.Current == expr {
		r.mu.Unlock()
		return Change{}, false
	}
	c := m.apply(id, &r.state, expr, trigger, durationTicks, reason)
	r.mu.Unlock()

	m.logger.Debug().
		Str("character", id).
		Stringer("from", c.From).
		Stringer("to", c.To).
		Int("variant", c.Variant).
		Stringer("trigger", c.Trigger).
		Str("reason", c.Reason).
		Msg("expression changed")
	m.emit(c)
	return c, true
}

// Set is SetExpression with the default hold and no reason.
func (m *Machine) Set(id string, expr Expression, trigger Trigger) bool {
	_, ok := m.SetExpression(id, expr, trigger, 0, "")
	return ok
}

// SetThinkingExpression shows the processing face. It does not expire on
// its own.
func (m *Machine) SetThinkingExpression(id string) bool {
	_, ok := m.SetExpression(id, Thoughtful, TriggerProcessing, 0, "processing")
	return ok
}

// caller holds the record lock
func (m *Machine) apply(id string, s *State, expr Expression, trigger Trigger, durationTicks int64, reason string) Change {
	if durationTicks <= 0 {
		durationTicks = m.cfg.DurationTicks
	}
	variant := 0
	if expr != Neutral {
		variant = 1 + m.rng.IntN(maxVariant)
	}
	now := m.clock.Now()

	c := Change{
		CharacterID: id,
		From:        s.Current,
		To:          expr,
		Variant:     variant,
		Trigger:     trigger,
		Reason:      reason,
		Tick:        now,
		Params:      ParamsFor(expr),
	}

	s.Previous = s.Current
	s.Current = expr
	s.Variant = variant
	s.LastTrigger = trigger
	s.Reason = reason
	s.TransitionProgress = 0
	s.TransitionElapsed = 0
	s.DurationTicks = durationTicks
	s.StartTick = now
	return c
}

// UpdateTransition advances id's blend by one tick and reverts an expired
// expression to Neutral. The revert, if any, is returned. A locked
// character is frozen: neither the blend nor the expiry moves.
func (m *Machine) UpdateTransition(id string) (Change, bool) {
	r := m.get(id)

	r.mu.Lock()
	s := &r.state
	if s.Locked {
		r.mu.Unlock()
		return Change{}, false
	}
	if s.TransitionProgress < 1 {
		s.TransitionElapsed++
		s.TransitionProgress = float64(s.TransitionElapsed) / float64(m.cfg.TransitionTicks)
		if s.TransitionProgress > 1 {
			s.TransitionProgress = 1
		}
	}
	if s.TransitionProgress < 1 || !m.expired(s) {
		r.mu.Unlock()
		return Change{}, false
	}
	c := m.apply(id, s, Neutral, TriggerRandomVariation, 0, "expired")
	r.mu.Unlock()

	m.logger.Debug().
		Str("character", id).
		Stringer("from", c.From).
		Msg("expression expired")
	m.emit(c)
	return c, true
}

func (m *Machine) expired(s *State) bool {
	if s.Locked || s.LastTrigger == TriggerProcessing || s.Current == Neutral {
		return false
	}
	return m.clock.Now()-s.StartTick > s.DurationTicks
}

// UpdateAll runs UpdateTransition for every known character.
func (m *Machine) UpdateAll() []Change {
	var out []Change
	for _, id := range m.Characters() {
		if c, ok := m.UpdateTransition(id); ok {
			out = append(out, c)
		}
	}
	return out
}

func (m *Machine) Lock(id string) {
	r := m.get(id)
	r.mu.Lock()
	r.state.Locked = true
	r.mu.Unlock()
}

func (m *Machine) Unlock(id string) {
	r := m.get(id)
	r.mu.Lock()
	r.state.Locked = false
	r.mu.Unlock()
}

// State returns a copy of id's state, creating a Neutral record if needed.
func (m *Machine) State(id string) State {
	r := m.get(id)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Current returns the expression and variant id is showing.
func (m *Machine) Current(id string) (Expression, int) {
	s := m.State(id)
	return s.Current, s.Variant
}

// Suffix is the texture suffix for id's current expression and variant.
func (m *Machine) Suffix(id string) string {
	s := m.State(id)
	return s.Current.VariantSuffix(s.Variant)
}

// Characters lists known character ids in sorted order.
func (m *Machine) Characters() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.states))
	for id := range m.states {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Reset forgets id.
func (m *Machine) Reset(id string) {
	m.mu.Lock()
	delete(m.states, id)
	m.mu.Unlock()
}

// ResetAll forgets every character, as on session load.
func (m *Machine) ResetAll() {
	m.mu.Lock()
	m.states = make(map[string]*record)
	m.mu.Unlock()
	m.logger.Debug().Msg("expression states cleared")
}

// ApplyAffinity sets the mood implied by an affinity score.
func (m *Machine) ApplyAffinity(id string, affinity float64) bool {
	return m.Set(id, ExpressionForAffinity(affinity), TriggerAffinity)
}

// ApplyDialogue sets the tone detected in a line of dialogue. Lines without
// a recognisable tone leave the expression alone.
func (m *Machine) ApplyDialogue(id, text string) bool {
	expr, ok := ExpressionForDialogue(text)
	if !ok {
		return false
	}
	return m.Set(id, expr, TriggerDialogueTone)
}

// ApplyEvent reacts to a game event.
func (m *Machine) ApplyEvent(id, kind string, positive bool) bool {
	_, ok := m.SetExpression(id, ExpressionForEvent(kind, positive), TriggerGameEvent, 0, kind)
	return ok
}

// ApplyLabel sets the expression named by a free-text label such as an
// LLM's "[emotion: happy(2)]" tag.
func (m *Machine) ApplyLabel(id, label string, trigger Trigger) bool {
	expr, _ := ParseLabel(label)
	return m.Set(id, expr, trigger)
}
