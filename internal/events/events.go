package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventAppointmentCreated       = "appointment_created"
	EventAppointmentStatusChanged = "appointment_status_changed"
	EventServiceChanged           = "service_changed"
	EventClientCreated            = "client_created"
	EventProfileUpdated           = "profile_updated"
)

// AllEventTypes lists every domain event published by the services.
var AllEventTypes = []string{
	EventAppointmentCreated,
	EventAppointmentStatusChanged,
	EventServiceChanged,
	EventClientCreated,
	EventProfileUpdated,
}

// AppointmentEventPayload describes the minimal appointment snapshot for event consumers.
type AppointmentEventPayload struct {
	AppointmentID int64     `json:"appointment_id"`
	BusinessID    int64     `json:"business_id"`
	ClientName    string    `json:"client_name"`
	ServiceName   string    `json:"service_name"`
	Date          time.Time `json:"date"`
	Time          string    `json:"time"`
	Status        string    `json:"status"`
	Source        string    `json:"source,omitempty"`
}

// BusinessEventPayload is carried by catalog and profile events.
type BusinessEventPayload struct {
	BusinessID int64  `json:"business_id"`
	EntityID   int64  `json:"entity_id,omitempty"`
	Name       string `json:"name,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the JSON payload into v.
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

type subscriber struct {
	id      uint64
	handler EventHandler
}

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]subscriber
	nextID      uint64
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]subscriber)}
}

// Subscribe registers a handler for a given event type. The returned
// function removes it; calling it more than once is a no-op.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(eventType, id) })
	}
}

func (b *EventBus) unsubscribe(eventType string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[eventType]
	for i, s := range subs {
		if s.id == id {
			b.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscribers[eventType]) == 0 {
		delete(b.subscribers, eventType)
	}
}

// SubscriberCount reports how many handlers are registered for eventType.
func (b *EventBus) SubscriberCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[eventType])
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	subs := append([]subscriber(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, s := range subs {
		// Handlers run synchronously; caller decides concurrency model.
		_ = s.handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}

	b.Publish(&event)
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
