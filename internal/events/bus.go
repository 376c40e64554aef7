// Package events provides a publish/subscribe event bus for trip
// lifecycle observability. Events flow from components (planner,
// dispatcher, climate advisor) to subscribers (WebSocket handler, MQTT
// publisher). The bus is nil-safe: calling Publish on a nil *Bus is a
// no-op, so components do not need guard checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourcePlanner identifies events from the trip planner.
	SourcePlanner = "planner"
	// SourceDispatch identifies events from vehicle dispatch.
	SourceDispatch = "dispatch"
	// SourceClimate identifies events from the climate advisor.
	SourceClimate = "climate"
)

// Kind constants describe the type of event within a source.
const (
	// KindPromptReceived signals a new trip prompt has arrived.
	// Data: prompt_len.
	KindPromptReceived = "prompt_received"
	// KindItineraryParsed signals the prompt was interpreted.
	// Data: stops, origin.
	KindItineraryParsed = "itinerary_parsed"
	// KindParseFailed signals interpretation failed.
	// Data: error.
	KindParseFailed = "parse_failed"
	// KindRouteResolved signals the resolution pass finished.
	// Data: stops, total_minutes, total_km.
	KindRouteResolved = "route_resolved"
	// KindResolveFailed signals the resolution pass failed.
	// Data: error.
	KindResolveFailed = "resolve_failed"
	// KindOrderOptimized signals a stop-order optimization finished.
	// Data: stops.
	KindOrderOptimized = "order_optimized"
	// KindRangeWarning signals the route may exceed a vehicle's range.
	// Data: warning.
	KindRangeWarning = "range_warning"

	// KindDispatchStart signals a route send has begun.
	// Data: vehicles, stops.
	KindDispatchStart = "dispatch_start"
	// KindVehicleSent signals one vehicle accepted the route.
	// Data: vehicle_id.
	KindVehicleSent = "vehicle_sent"
	// KindVehicleFailed signals one vehicle's send failed.
	// Data: vehicle_id, message.
	KindVehicleFailed = "vehicle_failed"
	// KindDispatchComplete signals all targeted vehicles were attempted.
	// Data: vehicles, succeeded.
	KindDispatchComplete = "dispatch_complete"

	// KindClimateSet signals a climate command was issued.
	// Data: vehicle_id, message.
	KindClimateSet = "climate_set"
	// KindClimateFailed signals a climate attempt failed for a vehicle.
	// Data: vehicle_id, message.
	KindClimateFailed = "climate_failed"
)

// Event represents a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs. This allows
	// Unsubscribe to accept <-chan Event (the caller's view) without
	// an illegal type conversion.
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that
// subscriber. Safe to call on a nil receiver (no-op).
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full; drop the event rather than block.
		}
	}
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid resource leaks.
// bufSize controls the channel buffer; 64 is a reasonable default for
// WebSocket consumers.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
