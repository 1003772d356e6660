// Package bus publishes grid progress events.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Publisher sends events to a topic.
type Publisher interface {
	// Publish publishes an event to a topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Bus is a Publisher that also delivers events to local subscribers.
type Bus interface {
	Publisher

	// Subscribe subscribes to events on a topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error
}

// AsBus walks the Unwrap chain of p and returns the first publisher that also
// delivers to local subscribers.
func AsBus(p Publisher) (Bus, bool) {
	for p != nil {
		if b, ok := p.(Bus); ok {
			return b, true
		}
		u, ok := p.(interface{ Unwrap() Publisher })
		if !ok {
			return nil, false
		}
		p = u.Unwrap()
	}
	return nil, false
}

// Event represents a bus event.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Type is the event type (e.g., "grid.cell.completed").
	Type string `json:"type"`

	// Source is the component that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created, in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// Payload contains the event data.
	Payload any `json:"payload"`
}

// NewEvent creates an event with a fresh ID and the current time.
func NewEvent(eventType, source string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
}

// Topics for grid events.
const (
	TopicCellCompleted = "grid.cell.completed"
	TopicGridCompleted = "grid.completed"
)
