package events

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// AllEntities subscribes a handler to events of every entity type.
const AllEntities = ""

// Dispatcher is an in-process Publisher that fans events out to handlers
// subscribed by entity type. Subscribing is safe while publishing.
type Dispatcher struct {
	handlers *xsync.MapOf[string, []Handler]
	logger   *zap.Logger
}

var _ Publisher = (*Dispatcher)(nil)

// NewDispatcher returns an empty dispatcher. A nil logger disables logging.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		handlers: xsync.NewMapOf[string, []Handler](),
		logger:   logger.Named("events"),
	}
}

// Subscribe registers h for events of entityType, or of every type when
// entityType is AllEntities.
func (d *Dispatcher) Subscribe(entityType string, h Handler) {
	if h == nil {
		return
	}
	d.handlers.Compute(entityType, func(old []Handler, _ bool) ([]Handler, bool) {
		return append(old[:len(old):len(old)], h), false
	})
}

// Publish runs the handlers subscribed to the event's entity type followed
// by the catch-all handlers. Every handler runs; errors are aggregated.
func (d *Dispatcher) Publish(ctx context.Context, evt Event) error {
	var result *multierror.Error

	run := func(handlers []Handler) {
		for _, h := range handlers {
			if err := h.Handle(ctx, evt); err != nil {
				d.logger.Debug("event handler failed",
					zap.String("entity_type", evt.EntityType),
					zap.String("kind", string(evt.Kind)),
					zap.Int64("entity_id", evt.EntityID),
					zap.Error(err),
				)
				result = multierror.Append(result, err)
			}
		}
	}

	if evt.EntityType != AllEntities {
		if handlers, ok := d.handlers.Load(evt.EntityType); ok {
			run(handlers)
		}
	}
	if handlers, ok := d.handlers.Load(AllEntities); ok {
		run(handlers)
	}

	return result.ErrorOrNil()
}

// Handlers reports how many handlers are subscribed to entityType, not
// counting catch-all handlers.
func (d *Dispatcher) Handlers(entityType string) int {
	handlers, _ := d.handlers.Load(entityType)
	return len(handlers)
}
