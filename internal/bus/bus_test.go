package bus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventBus_PublishSync(t *testing.T) {
	b := NewEventBus()

	var mu sync.Mutex
	var got []Event
	b.SubscribeMultiple([]EventType{EventTypeExpressionChanged, EventTypeCacheInvalidated}, func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})

	assert.True(t, b.HasSubscribers(EventTypeCacheInvalidated))
	assert.False(t, b.HasSubscribers(EventTypeVisemeChanged))

	b.PublishSync(Event{Type: EventTypeExpressionChanged, CharacterID: "a"})
	b.PublishSync(Event{Type: EventTypeVisemeChanged, CharacterID: "a"})
	b.PublishSync(Event{Type: EventTypeCacheInvalidated, CharacterID: "b"})

	mu.Lock()
	assert.Len(t, got, 2)
	mu.Unlock()

	b.Clear()
	assert.False(t, b.HasSubscribers(EventTypeExpressionChanged))
}

func TestEventBus_PublishAsync(t *testing.T) {
	b := NewEventBus()
	done := make(chan Event, 1)
	b.Subscribe(EventTypeRestingStarted, func(e Event) { done <- e })

	b.Publish(Event{Type: EventTypeRestingStarted, CharacterID: "a"})
	e := <-done
	assert.Equal(t, "a", e.CharacterID)
}
