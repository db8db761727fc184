// Package cache provides the read-through cache contract used by entity
// repositories, cache keys and their serialization.
//
// # Overview
//
// The package exports:
//
//   - CacheService: get-or-compute by key plus key and prefix invalidation
//   - Key: a namespace and the arguments that distinguish a request
//   - KeySerializer: renders keys as namespace::arg::arg strings
//   - Config: sturdyc backed cache configuration
//
// # Basic Usage
//
//	svc, err := cache.NewCacheService(cache.DefaultConfig())
//	serializer := cache.NewDefaultKeySerializer()
//
//	key := cache.NewKey("news::by_ids", []int64{3, 1, 2}).Serialize(serializer)
//	items, err := cache.GetOrFetch(ctx, svc, key, func(ctx context.Context) ([]*News, error) {
//		return loadNews(ctx, 3, 1, 2)
//	})
//
// # Key Layout
//
// Keys start with their namespace, and entity repositories use
// "<entity>::<operation>" namespaces. Everything cached for an entity type
// can therefore be dropped with DeleteByPrefix(ctx, cache.Prefix("news")).
//
// Slices serialize in element order, so [1 2] and [2 1] are distinct keys.
// With WithMaxKeyLength the argument part of an oversized key is replaced by
// an xxhash digest; the namespace is never hashed.
//
// Function arguments serialize by pointer and are only stable within a
// process. Use explicit keys for distributed caches.
package cache
