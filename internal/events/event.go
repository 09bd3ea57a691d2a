package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is one row of the scheduling event log.
type Event struct {
	ID          int64
	Type        string
	AggregateID *uuid.UUID
	Payload     []byte
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// Recorder appends to the event log. When ctx carries a transaction the
// event commits or rolls back with it.
type Recorder interface {
	Record(ctx context.Context, eventType string, aggregateID uuid.UUID, payload any) error
}

// Publisher ships one event to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Store is the relay's view of the event log.
type Store interface {
	ClaimUnpublished(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, ids []int64, at time.Time) error
}
