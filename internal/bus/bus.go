// Package bus provides an internal event bus between the animation core and
// its consumers (compositor cache, frame feed, CLI).
package bus

import (
	"sync"
)

// EventType identifies different event types
type EventType string

// Event types published by the portrait engine
const (
	// Expression events
	EventTypeExpressionChanged EventType = "expression.changed"
	EventTypeCacheInvalidated  EventType = "expression.cache_invalidated"

	// Lip-sync events
	EventTypeSpeakingStarted EventType = "lipsync.speaking_started"
	EventTypeSpeakingStopped EventType = "lipsync.speaking_stopped"
	EventTypeVisemeChanged   EventType = "lipsync.viseme_changed"

	// Ambient events
	EventTypeRestingStarted     EventType = "ambient.resting_started"
	EventTypeRestingEnded       EventType = "ambient.resting_ended"
	EventTypeContentmentStarted EventType = "ambient.contentment_started"
	EventTypeContentmentEnded   EventType = "ambient.contentment_ended"

	// Configuration events
	EventTypeRenderTreeReloaded EventType = "config.render_tree_reloaded"
	EventTypeRenderTreeRemoved  EventType = "config.render_tree_removed"
)

// Event represents a bus event
type Event struct {
	Type        EventType
	CharacterID string
	Data        map[string]any
}

// Handler is a function that handles events
type Handler func(Event)

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for an event type
func (b *EventBus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeMultiple adds a handler for multiple event types
func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) {
	for _, et := range eventTypes {
		b.Subscribe(et, handler)
	}
}

func (b *EventBus) snapshot(t EventType) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	handlers := make([]Handler, len(b.handlers[t]))
	copy(handlers, b.handlers[t])
	return handlers
}

// Publish sends an event to all subscribed handlers without waiting for
// them.
func (b *EventBus) Publish(event Event) {
	for _, handler := range b.snapshot(event.Type) {
		go handler(event)
	}
}

// PublishSync sends an event and waits for all handlers to complete
func (b *EventBus) PublishSync(event Event) {
	var wg sync.WaitGroup
	for _, handler := range b.snapshot(event.Type) {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			h(event)
		}(handler)
	}
	wg.Wait()
}

// HasSubscribers reports whether anything listens for eventType.
func (b *EventBus) HasSubscribers(eventType EventType) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType]) > 0
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]Handler)
}
