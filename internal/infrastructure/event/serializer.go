package event

import (
	"encoding/json"
	"fmt"

	"github.com/shopmargin/backend/internal/domain/shared"
	"github.com/shopmargin/backend/internal/domain/sync"
)

// EventSerializer converts domain events to and from JSON payloads for the
// outbox and the broker
type EventSerializer struct {
	factories map[string]func() shared.DomainEvent
}

// NewEventSerializer creates a serializer with all known event types registered
func NewEventSerializer() *EventSerializer {
	s := &EventSerializer{
		factories: make(map[string]func() shared.DomainEvent),
	}
	s.Register(sync.EventTypeRunCompleted, func() shared.DomainEvent {
		return &sync.RunCompletedEvent{}
	})
	s.Register(sync.EventTypeMarginComputed, func() shared.DomainEvent {
		return &sync.MarginComputedEvent{}
	})
	return s
}

// Register adds an event type factory
func (s *EventSerializer) Register(eventType string, factory func() shared.DomainEvent) {
	s.factories[eventType] = factory
}

// Serialize converts a domain event to its JSON payload
func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize event %s: %w", event.EventType(), err)
	}
	return payload, nil
}

// Deserialize reconstructs a domain event from its type and payload
func (s *EventSerializer) Deserialize(eventType string, payload []byte) (shared.DomainEvent, error) {
	factory, ok := s.factories[eventType]
	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
	event := factory()
	if err := json.Unmarshal(payload, event); err != nil {
		return nil, fmt.Errorf("failed to deserialize event %s: %w", eventType, err)
	}
	return event, nil
}
