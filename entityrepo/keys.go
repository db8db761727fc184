package entityrepo

import (
	"github.com/goliatone/go-repository-entity/cache"
)

// Operation segments of the default cache namespaces.
const (
	ByIDSegment  = "by_id"
	ByIDsSegment = "by_ids"
	AllSegment   = "all"
)

const withDeletedArg = "with_deleted"

// CacheKeyFunc chooses the cache key of a read. Returning nil selects the
// default key of the operation.
type CacheKeyFunc func(svc cache.CacheService) *cache.Key

// DefaultCacheKey caches reads under their default keys.
func DefaultCacheKey(cache.CacheService) *cache.Key {
	return nil
}

// StaticKey caches reads under key.
func StaticKey(key *cache.Key) CacheKeyFunc {
	return func(cache.CacheService) *cache.Key {
		return key
	}
}

// ByIDKey is the default key of GetByID.
func (r *Repository[T]) ByIDKey(id int64) *cache.Key {
	return cache.NewKey(cache.Namespace(r.namespace, ByIDSegment), id)
}

// ByIDsKey is the default key of GetByIDs. It is sensitive to the order of ids.
func (r *Repository[T]) ByIDsKey(ids []int64, opts ...QueryOption) *cache.Key {
	args := []any{ids}
	if applyQueryOptions(opts).includeDeleted {
		args = append(args, withDeletedArg)
	}
	return cache.NewKey(cache.Namespace(r.namespace, ByIDsSegment), args...)
}

// AllKey is the default key of GetAll.
func (r *Repository[T]) AllKey(opts ...QueryOption) *cache.Key {
	var args []any
	if applyQueryOptions(opts).includeDeleted {
		args = append(args, withDeletedArg)
	}
	return cache.NewKey(cache.Namespace(r.namespace, AllSegment), args...)
}

func (r *Repository[T]) resolveKey(fn CacheKeyFunc, fallback *cache.Key) string {
	key := fn(r.cache)
	if key == nil {
		key = fallback
	}
	return key.Serialize(r.serializer)
}
