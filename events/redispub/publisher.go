// Package redispub publishes entity events over Redis pub/sub so that other
// processes can react to them, typically by dropping their own cache entries.
package redispub

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/goliatone/go-repository-entity/events"
)

// DefaultPrefix is the channel prefix used when none is configured.
const DefaultPrefix = "entities"

// Envelope is the msgpack payload published for each event. Entity is
// decoded generically on the receiving side.
type Envelope struct {
	ID         string    `msgpack:"id"`
	Kind       string    `msgpack:"kind"`
	EntityType string    `msgpack:"entity_type"`
	EntityID   int64     `msgpack:"entity_id"`
	OccurredAt time.Time `msgpack:"occurred_at"`
	Entity     any       `msgpack:"entity,omitempty"`
}

// Encode serializes evt.
func Encode(evt events.Event) ([]byte, error) {
	return msgpack.Marshal(Envelope{
		ID:         evt.ID.String(),
		Kind:       string(evt.Kind),
		EntityType: evt.EntityType,
		EntityID:   evt.EntityID,
		OccurredAt: evt.OccurredAt,
		Entity:     evt.Entity,
	})
}

// Decode parses a payload produced by Encode back into an event.
func Decode(data []byte) (events.Event, error) {
	var env Envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return events.Event{}, err
	}

	id, err := uuid.Parse(env.ID)
	if err != nil {
		return events.Event{}, fmt.Errorf("redispub: event id: %w", err)
	}

	return events.Event{
		ID:         id,
		Kind:       events.Kind(env.Kind),
		EntityType: env.EntityType,
		EntityID:   env.EntityID,
		Entity:     env.Entity,
		OccurredAt: env.OccurredAt,
	}, nil
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithPrefix sets the channel prefix.
func WithPrefix(prefix string) Option {
	return func(p *Publisher) {
		if prefix != "" {
			p.prefix = prefix
		}
	}
}

// WithLogger sets the logger used by Listen.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Publisher publishes events to <prefix>:<entity type>:<kind>.
type Publisher struct {
	client redis.UniversalClient
	prefix string
	logger *zap.Logger
}

var _ events.Publisher = (*Publisher)(nil)

func New(client redis.UniversalClient, opts ...Option) *Publisher {
	p := &Publisher{
		client: client,
		prefix: DefaultPrefix,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("redispub")
	return p
}

// Channel returns the channel evt is published on.
func (p *Publisher) Channel(evt events.Event) string {
	return strings.Join([]string{p.prefix, evt.EntityType, string(evt.Kind)}, ":")
}

// Pattern returns the channel pattern matching every event of entityType,
// or of every entity type when entityType is empty.
func (p *Publisher) Pattern(entityType string) string {
	if entityType == "" {
		return p.prefix + ":*"
	}
	return p.prefix + ":" + entityType + ":*"
}

func (p *Publisher) Publish(ctx context.Context, evt events.Event) error {
	payload, err := Encode(evt)
	if err != nil {
		return fmt.Errorf("redispub: encode %s event: %w", evt.EntityType, err)
	}
	return p.client.Publish(ctx, p.Channel(evt), payload).Err()
}

// Listen subscribes to events of the given entity types (all when none are
// given) and hands each decoded event to h until ctx is done. Undecodable
// payloads and handler errors are logged and skipped.
func (p *Publisher) Listen(ctx context.Context, h events.Handler, entityTypes ...string) error {
	patterns := []string{p.Pattern("")}
	if len(entityTypes) > 0 {
		patterns = patterns[:0]
		for _, et := range entityTypes {
			patterns = append(patterns, p.Pattern(et))
		}
	}

	sub := p.client.PSubscribe(ctx, patterns...)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redispub: subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			evt, err := Decode([]byte(msg.Payload))
			if err != nil {
				p.logger.Warn("dropping undecodable event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if err := h.Handle(ctx, evt); err != nil {
				p.logger.Warn("event handler failed",
					zap.String("channel", msg.Channel),
					zap.Int64("entity_id", evt.EntityID),
					zap.Error(err),
				)
			}
		}
	}
}
