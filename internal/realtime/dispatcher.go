package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"statescape/internal/observability"
)

// Event is the wire envelope delivered to websocket clients.
type Event struct {
	Type    string      `json:"type"`
	Topic   string      `json:"topic,omitempty"`
	Payload interface{} `json:"payload"`
}

// Broadcaster delivers an encoded event to a topic's subscribers.
type Broadcaster interface {
	Broadcast(t Topic, message []byte)
}

// Dispatcher routes committed engagement events to topic subscribers. When
// Redis is available events go through pub/sub so every instance (including
// this one) delivers exactly once; without Redis it degrades to the local hub.
type Dispatcher struct {
	hub      *Hub
	notifier *Notifier
}

// NewDispatcher creates a Dispatcher over the hub and an optional notifier.
func NewDispatcher(hub *Hub, notifier *Notifier) *Dispatcher {
	return &Dispatcher{hub: hub, notifier: notifier}
}

// StartWiring forwards Redis topic messages to the local hub. Must be called
// once at startup when Redis is in play; otherwise published events would
// never reach this instance's own subscribers.
func (d *Dispatcher) StartWiring(ctx context.Context) error {
	if !d.notifier.Ready() {
		return nil
	}
	return d.notifier.StartSubscriber(ctx, func(t Topic, payload []byte) {
		d.hub.Broadcast(t, payload)
	})
}

// Publish encodes the event and delivers it to the topic's subscribers.
// Callers must publish only after the underlying state change is committed,
// so subscribers never observe an event for state that was rolled back.
func (d *Dispatcher) Publish(ctx context.Context, t Topic, eventType string, payload interface{}) error {
	if !t.Valid() {
		return fmt.Errorf("invalid topic %v", t)
	}

	ctx, span := observability.TraceWebSocket(ctx, d.hub.Name(), eventType)
	defer span.End()

	data, err := json.Marshal(Event{Type: eventType, Topic: t.String(), Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	observability.EventThroughput.WithLabelValues(eventType).Inc()

	if d.notifier.Ready() {
		if err := d.notifier.Publish(ctx, t, data); err == nil {
			// The wiring subscriber delivers locally; done.
			return nil
		} else {
			observability.RecordErrorInContext(ctx, err)
			log.Printf("redis publish failed for %s, delivering locally: %v", t, err)
		}
	}

	d.hub.Broadcast(t, data)
	return nil
}

// Hub exposes the local hub for connection handling.
func (d *Dispatcher) Hub() *Hub {
	return d.hub
}
