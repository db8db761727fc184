// Package metrics instruments the cache and event publishing paths of
// entity repositories with Prometheus counters.
package metrics

import (
	"context"
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/goliatone/go-repository-entity/cache"
	"github.com/goliatone/go-repository-entity/events"
	"github.com/goliatone/go-repository-entity/internal/cacheinfra"
)

const subsystem = "entityrepo"

// Lookup results.
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

// Metrics holds the collectors shared by every instrumented component.
type Metrics struct {
	CacheLookups       *prometheus.CounterVec
	CacheInvalidations *prometheus.CounterVec
	EventsPublished    *prometheus.CounterVec
	EventFailures      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. Collectors already
// registered by an earlier call are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by key namespace and result.",
		}, []string{"namespace", "result"}),
		CacheInvalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "cache_invalidations_total",
			Help:      "Cache invalidation requests by operation.",
		}, []string{"operation"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "events_published_total",
			Help:      "Entity events published by entity type and kind.",
		}, []string{"entity", "kind"}),
		EventFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "event_failures_total",
			Help:      "Entity events whose publication failed.",
		}, []string{"entity", "kind"}),
	}

	if reg == nil {
		return m, nil
	}

	var err error
	if m.CacheLookups, err = register(reg, m.CacheLookups); err != nil {
		return nil, err
	}
	if m.CacheInvalidations, err = register(reg, m.CacheInvalidations); err != nil {
		return nil, err
	}
	if m.EventsPublished, err = register(reg, m.EventsPublished); err != nil {
		return nil, err
	}
	if m.EventFailures, err = register(reg, m.EventFailures); err != nil {
		return nil, err
	}
	return m, nil
}

func register(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}

// Cache wraps next so that lookups and invalidations are counted.
func (m *Metrics) Cache(next cache.CacheService) cache.CacheService {
	return &instrumentedCache{next: next, m: m}
}

// Publisher wraps next so that published and failed events are counted.
func (m *Metrics) Publisher(next events.Publisher) events.Publisher {
	return &instrumentedPublisher{next: next, m: m}
}

type instrumentedCache struct {
	next cache.CacheService
	m    *Metrics
}

func (c *instrumentedCache) GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error) {
	if err := cacheinfra.ValidateFetchFn(fetchFn); err != nil {
		return nil, err
	}

	missed := false
	result, err := c.next.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		missed = true
		return cacheinfra.CallFetch(ctx, fetchFn)
	})

	outcome := ResultHit
	switch {
	case err != nil:
		outcome = ResultError
	case missed:
		outcome = ResultMiss
	}
	c.m.CacheLookups.WithLabelValues(keyNamespace(key), outcome).Inc()

	return result, err
}

func (c *instrumentedCache) Delete(ctx context.Context, key string) error {
	c.m.CacheInvalidations.WithLabelValues("key").Inc()
	return c.next.Delete(ctx, key)
}

func (c *instrumentedCache) DeleteByPrefix(ctx context.Context, prefix string) error {
	c.m.CacheInvalidations.WithLabelValues("prefix").Inc()
	return c.next.DeleteByPrefix(ctx, prefix)
}

func (c *instrumentedCache) InvalidateKeys(ctx context.Context, keys []string) error {
	c.m.CacheInvalidations.WithLabelValues("keys").Inc()
	return c.next.InvalidateKeys(ctx, keys)
}

// keyNamespace keeps the label set bounded: only the first key segment,
// the entity namespace for default keys, is used.
func keyNamespace(key string) string {
	ns, _, _ := strings.Cut(key, cache.KeySeparator)
	return ns
}

type instrumentedPublisher struct {
	next events.Publisher
	m    *Metrics
}

func (p *instrumentedPublisher) Publish(ctx context.Context, evt events.Event) error {
	err := p.next.Publish(ctx, evt)
	if err != nil {
		p.m.EventFailures.WithLabelValues(evt.EntityType, string(evt.Kind)).Inc()
		return err
	}
	p.m.EventsPublished.WithLabelValues(evt.EntityType, string(evt.Kind)).Inc()
	return nil
}
