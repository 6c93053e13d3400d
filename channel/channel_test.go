package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storepulse/api/models"
)

func TestBus_DefaultTopic(t *testing.T) {
	assert.Equal(t, DefaultTopic, NewBus("").Topic())
	assert.Equal(t, "custom:topic", NewBus("custom:topic").Topic())
}

func TestBus_DeliversInSubscriptionOrder(t *testing.T) {
	bus := NewBus("")
	var order []string
	bus.Subscribe(func(models.TrackingEvent) { order = append(order, "first") })
	bus.Subscribe(func(models.TrackingEvent) { order = append(order, "second") })

	bus.Publish(models.TrackingEvent{EventType: models.EventPageView})

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestBus_PublishWithoutSubscribers(t *testing.T) {
	bus := NewBus("")
	assert.NotPanics(t, func() {
		bus.Publish(models.TrackingEvent{EventType: models.EventPageView})
	})
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus("")
	var a, b int
	unsubA := bus.Subscribe(func(models.TrackingEvent) { a++ })
	bus.Subscribe(func(models.TrackingEvent) { b++ })
	require.Equal(t, 2, bus.Subscribers())

	bus.Publish(models.TrackingEvent{})
	unsubA()
	unsubA()
	bus.Publish(models.TrackingEvent{})

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
	assert.Equal(t, 1, bus.Subscribers())
}

func TestBus_UnsubscribeDuringPublish(t *testing.T) {
	bus := NewBus("")
	var calls int
	var unsub func()
	unsub = bus.Subscribe(func(models.TrackingEvent) {
		calls++
		unsub()
	})
	var later int
	bus.Subscribe(func(models.TrackingEvent) { later++ })

	bus.Publish(models.TrackingEvent{})
	bus.Publish(models.TrackingEvent{})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, later)
}

func TestBus_PanickingSubscriberIsIsolated(t *testing.T) {
	bus := NewBus("")
	var got []models.EventType
	bus.Subscribe(func(models.TrackingEvent) { panic("boom") })
	bus.Subscribe(func(evt models.TrackingEvent) { got = append(got, evt.EventType) })

	assert.NotPanics(t, func() {
		bus.Publish(models.TrackingEvent{EventType: models.EventPurchase})
	})
	assert.Equal(t, []models.EventType{models.EventPurchase}, got)
}
