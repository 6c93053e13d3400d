// api/models/event.go
package models

import (
	"encoding/json"
	"maps"
	"time"
)

// EventType names one kind of storefront observation.
type EventType string

const (
	EventVisitorInfo        EventType = "visitor_info"
	EventPageView           EventType = "page_view"
	EventAddToCart          EventType = "add_to_cart"
	EventBeginCheckout      EventType = "begin_checkout"
	EventPurchase           EventType = "purchase"
	EventApplyPromo         EventType = "apply_promo"
	EventProductImpressions EventType = "product_impressions"
	EventUserInteraction    EventType = "user_interaction"
	EventFormSubmission     EventType = "form_submission"
	EventCartAbandonment    EventType = "cart_abandonment"
	EventPageExit           EventType = "page_exit"

	// EventClick is a legacy alias some producers still send. It is not part
	// of the closed set but the aggregator counts it as an interaction.
	EventClick EventType = "click"
)

// EventTypes is the closed set of types emitted by the capture layer.
var EventTypes = []EventType{
	EventVisitorInfo,
	EventPageView,
	EventAddToCart,
	EventBeginCheckout,
	EventPurchase,
	EventApplyPromo,
	EventProductImpressions,
	EventUserInteraction,
	EventFormSubmission,
	EventCartAbandonment,
	EventPageExit,
}

func (t EventType) Valid() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Payload is the event-type-specific data attached to a TrackingEvent.
type Payload map[string]any

// Clone returns a shallow copy so a dispatched event can't be mutated by its producer.
func (p Payload) Clone() Payload {
	if p == nil {
		return Payload{}
	}
	return maps.Clone(p)
}

// String returns the value under key if it is a string, "" otherwise.
func (p Payload) String(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

// TrackingEvent is the unit of observation.
type TrackingEvent struct {
	StoreID   string    `json:"storeId"`
	EventType EventType `json:"eventType"`
	Payload   Payload   `json:"payload"`
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
}

// Envelope is the wire form posted by the tracker script and the HTTP sink.
type Envelope struct {
	StoreID   string          `json:"storeId"`
	Platform  string          `json:"platform"`
	Event     EventType       `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	SessionID string          `json:"sessionId"`
	Timestamp int64           `json:"timestamp,omitempty"` // unix millis
}

func NewEnvelope(storeID, platform, sessionID string, eventType EventType, data Payload, at time.Time) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		StoreID:   storeID,
		Platform:  platform,
		Event:     eventType,
		Data:      raw,
		SessionID: sessionID,
		Timestamp: at.UnixMilli(),
	}, nil
}

// TrackingEvent decodes the envelope. A data blob that isn't a JSON object
// degrades to an empty payload; a missing timestamp falls back to now.
func (e Envelope) TrackingEvent(now time.Time) TrackingEvent {
	payload := Payload{}
	if len(e.Data) > 0 {
		if err := json.Unmarshal(e.Data, &payload); err != nil || payload == nil {
			payload = Payload{}
		}
	}
	ts := now
	if e.Timestamp > 0 {
		ts = time.UnixMilli(e.Timestamp)
	}
	return TrackingEvent{
		StoreID:   e.StoreID,
		EventType: e.Event,
		Payload:   payload,
		SessionID: e.SessionID,
		Timestamp: ts,
	}
}
