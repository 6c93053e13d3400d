package channel

import (
	"log"
	"sync"

	"storepulse/api/models"
)

// DefaultTopic is the name producers publish tracking events under.
const DefaultTopic = "storepulse:track"

type Handler func(models.TrackingEvent)

// Channel carries tracking events from producers to consumers.
type Channel interface {
	Publish(evt models.TrackingEvent)
	Subscribe(handler Handler) (unsubscribe func())
}

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is an in-process publish/subscribe channel for one topic. Publish
// delivers synchronously, in subscription order, on the caller's goroutine.
type Bus struct {
	topic string

	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
}

func NewBus(topic string) *Bus {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Bus{topic: topic}
}

func (b *Bus) Topic() string { return b.topic }

func (b *Bus) Subscribe(handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

func (b *Bus) Publish(evt models.TrackingEvent) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(s, evt)
	}
}

func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) deliver(s subscription, evt models.TrackingEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Subscriber %d on %s panicked handling %s: %v", s.id, b.topic, evt.EventType, r)
		}
	}()
	s.handler(evt)
}
