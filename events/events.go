// Package events carries entity change notifications from repositories to
// whoever needs them: cache invalidation, metrics or remote subscribers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// Kind names the mutation an event reports.
type Kind string

const (
	KindInserted Kind = "inserted"
	KindUpdated  Kind = "updated"
	KindDeleted  Kind = "deleted"
)

// Event reports that an entity was inserted, updated or deleted.
type Event struct {
	ID         uuid.UUID
	Kind       Kind
	EntityType string
	EntityID   int64
	Entity     any
	OccurredAt time.Time
}

// NewEvent stamps a new event with a random id and the current time.
func NewEvent(kind Kind, entityType string, entityID int64, entity any) Event {
	return Event{
		ID:         uuid.New(),
		Kind:       kind,
		EntityType: entityType,
		EntityID:   entityID,
		Entity:     entity,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, evt Event) error

func (f PublisherFunc) Publish(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// Handler reacts to a delivered event.
type Handler interface {
	Handle(ctx context.Context, evt Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, evt Event) error

func (f HandlerFunc) Handle(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// Nop discards every event.
var Nop Publisher = PublisherFunc(func(context.Context, Event) error { return nil })

// Multi publishes each event to every publisher in order. All publishers are
// attempted; failures are aggregated.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, evt Event) error {
	var result *multierror.Error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, evt); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
