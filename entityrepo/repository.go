package entityrepo

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/goliatone/go-repository-entity/cache"
	"github.com/goliatone/go-repository-entity/entity"
	"github.com/goliatone/go-repository-entity/events"
	"github.com/goliatone/go-repository-entity/table"
)

// ErrInvalidArgument is returned, wrapped, when a required argument is
// missing. Nothing is read or written in that case.
var ErrInvalidArgument = errors.New("entityrepo: invalid argument")

var softDeletableType = reflect.TypeOf((*entity.SoftDeletable)(nil)).Elem()

// Repository is a cache aware, soft delete aware access surface over the
// rows of one entity type. It is meant to be scoped to a unit of work and is
// not synchronized beyond the lazy table handle.
type Repository[T entity.Entity] struct {
	open    table.Opener[T]
	once    sync.Once
	tbl     table.Table[T]
	openErr error

	cache         cache.CacheService
	serializer    cache.KeySerializer
	publisher     events.Publisher
	logger        *zap.Logger
	namespace     string
	deletedColumn string
	softDelete    bool
}

// New returns a repository reading and writing through the table returned by
// open. open is called once, on first use.
func New[T entity.Entity](open table.Opener[T], opts ...Option) *Repository[T] {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	rt := reflect.TypeOf((*T)(nil)).Elem()
	if cfg.namespace == "" {
		cfg.namespace = namespaceOf(rt)
	}
	if cfg.cache != nil && cfg.serializer == nil {
		cfg.serializer = cache.NewDefaultKeySerializer()
	}

	return &Repository[T]{
		open:          open,
		cache:         cfg.cache,
		serializer:    cfg.serializer,
		publisher:     cfg.publisher,
		logger:        cfg.logger.With(zap.String("entity", cfg.namespace)),
		namespace:     cfg.namespace,
		deletedColumn: cfg.deletedColumn,
		softDelete:    rt.Implements(softDeletableType),
	}
}

// Namespace returns the name cache keys and events of this repository are
// scoped to.
func (r *Repository[T]) Namespace() string {
	return r.namespace
}

// SoftDeletes reports whether T is flagged instead of removed on delete.
func (r *Repository[T]) SoftDeletes() bool {
	return r.softDelete
}

func (r *Repository[T]) table() (table.Table[T], error) {
	r.once.Do(func() {
		if r.open == nil {
			r.openErr = errors.New("entityrepo: no table opener")
			return
		}
		r.tbl, r.openErr = r.open()
		if r.openErr == nil && r.tbl == nil {
			r.openErr = errors.New("entityrepo: table opener returned nil")
		}
	})
	return r.tbl, r.openErr
}

// GetByID returns the entity with the given id, or the zero T when there is
// none. id 0 never reaches the store. Soft deleted rows are returned.
func (r *Repository[T]) GetByID(ctx context.Context, id int64, cacheKey CacheKeyFunc) (T, error) {
	var zero T
	if id == 0 {
		return zero, nil
	}

	tbl, err := r.table()
	if err != nil {
		return zero, err
	}

	fetch := func(ctx context.Context) (T, error) {
		return r.fetchByID(ctx, tbl, id)
	}

	if cacheKey == nil || r.cache == nil {
		return fetch(ctx)
	}
	return cache.GetOrFetch(ctx, r.cache, r.resolveKey(cacheKey, r.ByIDKey(id)), fetch)
}

// GetByIDs returns the entities with the given ids in the order of ids.
// Missing and soft deleted rows are skipped.
func (r *Repository[T]) GetByIDs(ctx context.Context, ids []int64, cacheKey CacheKeyFunc, opts ...QueryOption) ([]T, error) {
	if len(ids) == 0 {
		return []T{}, nil
	}

	tbl, err := r.table()
	if err != nil {
		return nil, err
	}

	qo := applyQueryOptions(opts)
	fetch := func(ctx context.Context) ([]T, error) {
		criteria := append(r.filters(qo), whereIDs(ids))
		records, err := tbl.Select(ctx, criteria...)
		if err != nil {
			return nil, err
		}
		return orderByIDs(records, ids), nil
	}

	if cacheKey == nil || r.cache == nil {
		return fetch(ctx)
	}
	return cache.GetOrFetch(ctx, r.cache, r.resolveKey(cacheKey, r.ByIDsKey(ids, opts...)), fetch)
}

// GetAll returns every row matching shaper. A nil shaper returns all rows in
// store order. The default cache key does not account for shaper.
func (r *Repository[T]) GetAll(ctx context.Context, shaper repository.SelectCriteria, cacheKey CacheKeyFunc, opts ...QueryOption) ([]T, error) {
	tbl, err := r.table()
	if err != nil {
		return nil, err
	}

	qo := applyQueryOptions(opts)
	fetch := func(ctx context.Context) ([]T, error) {
		return tbl.Select(ctx, append(r.filters(qo), shaper)...)
	}

	if cacheKey == nil || r.cache == nil {
		return fetch(ctx)
	}
	return cache.GetOrFetch(ctx, r.cache, r.resolveKey(cacheKey, r.AllKey(opts...)), fetch)
}

// GetAllPaged returns the zero based page pageIndex of the rows matching
// shaper together with the total count. pageSize <= 0 puts every row on page
// zero. With countOnly set only the total is computed. Pages are not cached.
func (r *Repository[T]) GetAllPaged(ctx context.Context, shaper repository.SelectCriteria, pageIndex, pageSize int, countOnly bool, opts ...QueryOption) (*Page[T], error) {
	if pageIndex < 0 {
		return nil, fmt.Errorf("%w: negative page index %d", ErrInvalidArgument, pageIndex)
	}

	tbl, err := r.table()
	if err != nil {
		return nil, err
	}

	criteria := append(r.filters(applyQueryOptions(opts)), shaper)

	// beyond the single unbounded page only the count is meaningful
	if countOnly || (pageSize <= 0 && pageIndex > 0) {
		total, err := tbl.Count(ctx, criteria...)
		if err != nil {
			return nil, err
		}
		return NewPage[T](nil, total, pageIndex, pageSize), nil
	}

	offset := 0
	if pageSize > 0 {
		offset = pageIndex * pageSize
	}

	items, total, err := tbl.SelectAndCount(ctx, offset, pageSize, criteria...)
	if err != nil {
		return nil, err
	}
	return NewPage(items, total, pageIndex, pageSize), nil
}

// Insert persists e, which receives its store assigned id.
func (r *Repository[T]) Insert(ctx context.Context, e T, notify bool) error {
	if isNil(e) {
		return fmt.Errorf("%w: nil entity", ErrInvalidArgument)
	}

	tbl, err := r.table()
	if err != nil {
		return err
	}

	if err := tbl.InsertOne(ctx, e); err != nil {
		return err
	}

	if notify {
		r.publish(ctx, events.KindInserted, e)
	}
	return nil
}

// InsertMany persists es in a single transaction: either every entity is
// stored or none is. Events follow the commit, in the order of es. On failure
// entities implementing entity.IdentitySetter get their previous ids back.
func (r *Repository[T]) InsertMany(ctx context.Context, es []T, notify bool) error {
	if err := checkSequence(es); err != nil {
		return err
	}
	if len(es) == 0 {
		return nil
	}

	tbl, err := r.table()
	if err != nil {
		return err
	}

	prev := make([]int64, len(es))
	for i, e := range es {
		prev[i] = e.GetID()
	}

	err = tbl.RunInTx(ctx, func(ctx context.Context, tx table.Table[T]) error {
		return tx.BulkInsert(ctx, es)
	})
	if err != nil {
		// ids assigned inside the rolled back transaction do not exist
		for i, e := range es {
			if s, ok := any(e).(entity.IdentitySetter); ok {
				s.SetID(prev[i])
			}
		}
		return err
	}

	if notify {
		for _, e := range es {
			r.publish(ctx, events.KindInserted, e)
		}
	}
	return nil
}

// Update persists the current state of e.
func (r *Repository[T]) Update(ctx context.Context, e T, notify bool) error {
	if isNil(e) {
		return fmt.Errorf("%w: nil entity", ErrInvalidArgument)
	}

	tbl, err := r.table()
	if err != nil {
		return err
	}

	if err := tbl.UpdateOne(ctx, e); err != nil {
		return err
	}

	if notify {
		r.publish(ctx, events.KindUpdated, e)
	}
	return nil
}

// UpdateMany updates es one at a time. It is not atomic: on failure the
// entities before the failing one stay updated.
func (r *Repository[T]) UpdateMany(ctx context.Context, es []T, notify bool) error {
	if err := checkSequence(es); err != nil {
		return err
	}

	for _, e := range es {
		if err := r.Update(ctx, e, notify); err != nil {
			return err
		}
	}
	return nil
}

// Delete flags e as deleted when it is soft deletable and removes its row
// otherwise. The event is published either way.
func (r *Repository[T]) Delete(ctx context.Context, e T, notify bool) error {
	if isNil(e) {
		return fmt.Errorf("%w: nil entity", ErrInvalidArgument)
	}

	tbl, err := r.table()
	if err != nil {
		return err
	}

	if sd, ok := any(e).(entity.SoftDeletable); ok {
		err = flagDeleted(ctx, tbl, e, sd)
	} else {
		err = tbl.DeleteOne(ctx, e)
	}
	if err != nil {
		return err
	}

	if notify {
		r.publish(ctx, events.KindDeleted, e)
	}
	return nil
}

// DeleteMany deletes es. When any entity is soft deletable, each soft
// deletable entity is flagged and updated on its own and the others are left
// as they are. Otherwise all rows are removed with one statement.
func (r *Repository[T]) DeleteMany(ctx context.Context, es []T, notify bool) error {
	if err := checkSequence(es); err != nil {
		return err
	}
	if len(es) == 0 {
		return nil
	}

	tbl, err := r.table()
	if err != nil {
		return err
	}

	anySoft := false
	for _, e := range es {
		if entity.IsSoftDeletable(e) {
			anySoft = true
			break
		}
	}

	if anySoft {
		for _, e := range es {
			sd, ok := any(e).(entity.SoftDeletable)
			if !ok {
				continue
			}
			if err := flagDeleted(ctx, tbl, e, sd); err != nil {
				return err
			}
		}
	} else if err := tbl.BulkDelete(ctx, es); err != nil {
		return err
	}

	if notify {
		for _, e := range es {
			r.publish(ctx, events.KindDeleted, e)
		}
	}
	return nil
}

// DeleteWhere physically removes every row matching predicate, soft
// deletable or not, and returns how many rows went. No events are published.
func (r *Repository[T]) DeleteWhere(ctx context.Context, predicate repository.DeleteCriteria) (int64, error) {
	if predicate == nil {
		return 0, fmt.Errorf("%w: nil predicate", ErrInvalidArgument)
	}

	tbl, err := r.table()
	if err != nil {
		return 0, err
	}
	return tbl.DeleteWhere(ctx, predicate)
}

// LoadOriginalCopy reads a fresh copy of the row behind e, bypassing the
// cache, so callers can compare it against pending changes.
func (r *Repository[T]) LoadOriginalCopy(ctx context.Context, e T) (T, error) {
	var zero T
	if isNil(e) {
		return zero, fmt.Errorf("%w: nil entity", ErrInvalidArgument)
	}

	id := e.GetID()
	if id == 0 {
		return zero, nil
	}

	tbl, err := r.table()
	if err != nil {
		return zero, err
	}
	return r.fetchByID(ctx, tbl, id)
}

// ExecuteStoredProcedure runs the named procedure and maps its rows to T.
func (r *Repository[T]) ExecuteStoredProcedure(ctx context.Context, name string, params ...any) ([]T, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty procedure name", ErrInvalidArgument)
	}

	tbl, err := r.table()
	if err != nil {
		return nil, err
	}
	return tbl.CallProcedure(ctx, name, params...)
}

// Truncate removes every row, restarting the id sequence when resetIdentity
// is set.
func (r *Repository[T]) Truncate(ctx context.Context, resetIdentity bool) error {
	tbl, err := r.table()
	if err != nil {
		return err
	}
	return tbl.Truncate(ctx, resetIdentity)
}

// InvalidateCache drops every cache entry under the repository namespace.
func (r *Repository[T]) InvalidateCache(ctx context.Context) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.DeleteByPrefix(ctx, cache.Prefix(r.namespace))
}

func (r *Repository[T]) fetchByID(ctx context.Context, tbl table.Table[T], id int64) (T, error) {
	var zero T
	records, err := tbl.Select(ctx, whereID(id))
	if err != nil {
		return zero, err
	}
	if len(records) == 0 {
		return zero, nil
	}
	return records[0], nil
}

// filters returns the criteria every listing starts from.
func (r *Repository[T]) filters(qo queryOptions) []repository.SelectCriteria {
	if !r.softDelete || qo.includeDeleted {
		return nil
	}
	column := r.deletedColumn
	return []repository.SelectCriteria{func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.? = ?", bun.Ident(column), false)
	}}
}

func (r *Repository[T]) publish(ctx context.Context, kind events.Kind, e T) {
	if r.publisher == nil {
		return
	}

	evt := events.NewEvent(kind, r.namespace, e.GetID(), e)
	if err := r.publisher.Publish(ctx, evt); err != nil {
		r.logger.Warn("event publish failed",
			zap.String("kind", string(kind)),
			zap.Int64("entity_id", evt.EntityID),
			zap.Error(err),
		)
	}
}

// flagDeleted flags e and persists it. The flag is restored when the update
// fails, since e may be the instance held by the cache.
func flagDeleted[T entity.Entity](ctx context.Context, tbl table.Table[T], e T, sd entity.SoftDeletable) error {
	prev := sd.IsDeleted()
	sd.SetDeleted(true)
	if err := tbl.UpdateOne(ctx, e); err != nil {
		sd.SetDeleted(prev)
		return err
	}
	return nil
}

func whereID(id int64) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.id = ?", id).Limit(1)
	}
}

func whereIDs(ids []int64) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.id IN (?)", bun.In(ids))
	}
}

// orderByIDs arranges records in the order of ids, skipping ids without a
// record. A repeated id yields its record again.
func orderByIDs[T entity.Entity](records []T, ids []int64) []T {
	byID := make(map[int64]T, len(records))
	for _, rec := range records {
		byID[rec.GetID()] = rec
	}

	ordered := make([]T, 0, len(records))
	for _, id := range ids {
		if rec, ok := byID[id]; ok {
			ordered = append(ordered, rec)
		}
	}
	return ordered
}

func checkSequence[T any](es []T) error {
	if es == nil {
		return fmt.Errorf("%w: nil sequence", ErrInvalidArgument)
	}
	for i, e := range es {
		if isNil(e) {
			return fmt.Errorf("%w: nil entity at index %d", ErrInvalidArgument, i)
		}
	}
	return nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
