package events

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	EventBookingCommitted = "booking_committed"
	EventBookingConflict  = "booking_conflict"
)

// CommittedPayload describes a successful commit for event consumers.
type CommittedPayload struct {
	Holder      string    `json:"holder"`
	Version     int64     `json:"version"`
	Slots       int       `json:"slots"`
	Tables      []int     `json:"tables"`
	CommittedAt time.Time `json:"committed_at"`
}

// ConflictPayload describes a rejected batch.
type ConflictPayload struct {
	Holder    string    `json:"holder"`
	Table     int       `json:"table"`
	Date      string    `json:"date"`
	Interval  int       `json:"interval"`
	Requested int       `json:"requested"`
	At        time.Time `json:"at"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the event payload into v.
func (e *Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs every subscriber of the event type synchronously and joins
// their errors. A failing handler does not stop the rest.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload any) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&event)
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}

// AuditLog returns a handler that writes every event to logger.
func AuditLog(logger *zerolog.Logger) EventHandler {
	return func(event *Event) error {
		logger.Info().
			Str("event", event.Type).
			RawJSON("payload", event.Payload).
			Time("created_at", event.CreatedAt).
			Msg("booking event")
		return nil
	}
}
