package entityrepo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-repository-entity/cache"
	"github.com/goliatone/go-repository-entity/events"
)

func TestGetAll_CachedUntilNamespaceInvalidated(t *testing.T) {
	f := newFixture(t)
	f.seed(t, &News{Title: "a"}, &News{Title: "b"})

	svc := newCache(t)
	dispatcher := events.NewDispatcher(nil)
	dispatcher.Subscribe(events.AllEntities, NewCacheInvalidator(svc, nil))
	repo := f.repo(WithCache(svc, nil), WithPublisher(dispatcher))
	ctx := context.Background()

	first, err := repo.GetAll(ctx, nil, DefaultCacheKey)
	require.NoError(t, err)
	second, err := repo.GetAll(ctx, nil, DefaultCacheKey)
	require.NoError(t, err)

	assert.Equal(t, idsOf(first), idsOf(second))
	assert.Equal(t, 1, f.news.log.count("Select"))

	require.NoError(t, repo.Insert(ctx, &News{Title: "c"}, true))

	third, err := repo.GetAll(ctx, nil, DefaultCacheKey)
	require.NoError(t, err)
	assert.Len(t, third, 3)
	assert.Equal(t, 2, f.news.log.count("Select"))
}

func TestGetAll_SilentInsertNeedsExplicitInvalidation(t *testing.T) {
	f := newFixture(t)
	f.seed(t, &News{Title: "a"})
	repo := f.repo(WithCache(newCache(t), nil))
	ctx := context.Background()

	_, err := repo.GetAll(ctx, nil, DefaultCacheKey)
	require.NoError(t, err)
	require.NoError(t, repo.Insert(ctx, &News{Title: "b"}, false))

	stale, err := repo.GetAll(ctx, nil, DefaultCacheKey)
	require.NoError(t, err)
	assert.Len(t, stale, 1)

	require.NoError(t, repo.InvalidateCache(ctx))
	fresh, err := repo.GetAll(ctx, nil, DefaultCacheKey)
	require.NoError(t, err)
	assert.Len(t, fresh, 2)
}

func TestGetAll_IncludeDeletedUsesItsOwnKey(t *testing.T) {
	f := newFixture(t)
	f.seed(t, &News{Title: "a"}, &News{Title: "b", SoftDelete: softDeleted()})
	repo := f.repo(WithCache(newCache(t), nil))
	ctx := context.Background()

	live, err := repo.GetAll(ctx, nil, DefaultCacheKey)
	require.NoError(t, err)
	all, err := repo.GetAll(ctx, nil, DefaultCacheKey, IncludeDeleted())
	require.NoError(t, err)

	assert.Len(t, live, 1)
	assert.Len(t, all, 2)
	assert.Equal(t, 2, f.news.log.count("Select"))
}

func TestNilCacheKeyBypassesCache(t *testing.T) {
	f := newFixture(t)
	f.seed(t, &News{Title: "a"})
	repo := f.repo(WithCache(newCache(t), nil))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := repo.GetByID(ctx, 1, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, f.news.log.count("Select"))
}

func TestGetByID_Cached(t *testing.T) {
	f := newFixture(t)
	f.seed(t, &News{Title: "a"}, &News{Title: "b"})
	repo := f.repo(WithCache(newCache(t), nil))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		n, err := repo.GetByID(ctx, 1, DefaultCacheKey)
		require.NoError(t, err)
		assert.Equal(t, "a", n.Title)
	}
	n, err := repo.GetByID(ctx, 2, DefaultCacheKey)
	require.NoError(t, err)
	assert.Equal(t, "b", n.Title)

	assert.Equal(t, 2, f.news.log.count("Select"))
}

func TestGetByIDs_CacheKeyIsOrderSensitive(t *testing.T) {
	f := newFixture(t)
	f.seed(t, &News{Title: "a"}, &News{Title: "b"})
	repo := f.repo(WithCache(newCache(t), nil))
	ctx := context.Background()

	forward, err := repo.GetByIDs(ctx, []int64{1, 2}, DefaultCacheKey)
	require.NoError(t, err)
	backward, err := repo.GetByIDs(ctx, []int64{2, 1}, DefaultCacheKey)
	require.NoError(t, err)
	again, err := repo.GetByIDs(ctx, []int64{2, 1}, DefaultCacheKey)
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2}, idsOf(forward))
	assert.Equal(t, []int64{2, 1}, idsOf(backward))
	assert.Equal(t, []int64{2, 1}, idsOf(again))
	assert.Equal(t, 2, f.news.log.count("Select"))
}

func TestCustomCacheKey(t *testing.T) {
	f := newFixture(t)
	f.seed(t, &News{Title: "a"}, &News{Title: "b"})
	svc := newCache(t)
	repo := f.repo(WithCache(svc, nil))
	ctx := context.Background()

	var seen cache.CacheService
	featured := func(s cache.CacheService) *cache.Key {
		seen = s
		return cache.NewKey("homepage::featured")
	}

	first, err := repo.GetByID(ctx, 1, featured)
	require.NoError(t, err)
	// same key, different id: served from cache
	second, err := repo.GetByID(ctx, 2, featured)
	require.NoError(t, err)

	assert.Same(t, svc, seen)
	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(1), second.ID)
	assert.Equal(t, 1, f.news.log.count("Select"))

	// invalidating the entity namespace leaves custom namespaces alone
	require.NoError(t, repo.InvalidateCache(ctx))
	third, err := repo.GetByID(ctx, 2, StaticKey(cache.NewKey("homepage::featured")))
	require.NoError(t, err)
	assert.Equal(t, int64(1), third.ID)
	assert.Equal(t, 1, f.news.log.count("Select"))
}

func TestDefaultKeys(t *testing.T) {
	repo := New[*News](nil, WithCache(newCache(t), nil))
	s := cache.NewDefaultKeySerializer()

	assert.Equal(t, "news::by_id::7", repo.ByIDKey(7).Serialize(s))
	assert.Equal(t, "news::all", repo.AllKey().Serialize(s))
	assert.Equal(t, "news::all::with_deleted", repo.AllKey(IncludeDeleted()).Serialize(s))
	assert.NotEqual(t,
		repo.ByIDsKey([]int64{1, 2}).Serialize(s),
		repo.ByIDsKey([]int64{2, 1}).Serialize(s),
	)
	assert.Contains(t, repo.ByIDsKey([]int64{1, 2}).Serialize(s), "news::by_ids::")
}

type failingCache struct {
	cache.CacheService
	err error
}

func (c failingCache) DeleteByPrefix(context.Context, string) error {
	return c.err
}

func TestCacheInvalidator(t *testing.T) {
	svc := newCache(t)
	ctx := context.Background()

	load := func(key string) {
		_, err := cache.GetOrFetch(ctx, svc, key, func(context.Context) (string, error) { return key, nil })
		require.NoError(t, err)
	}
	load("news::all")
	load("news::by_id::1")
	load("news_items::all")

	inv := NewCacheInvalidator(svc, nil)
	require.NoError(t, inv.Handle(ctx, events.NewEvent(events.KindUpdated, "news", 1, nil)))
	require.NoError(t, inv.Handle(ctx, events.NewEvent(events.KindUpdated, "", 1, nil)))

	calls := 0
	refetch := func(key string) {
		_, err := cache.GetOrFetch(ctx, svc, key, func(context.Context) (string, error) {
			calls++
			return key, nil
		})
		require.NoError(t, err)
	}
	refetch("news::all")
	refetch("news::by_id::1")
	refetch("news_items::all")
	assert.Equal(t, 2, calls)

	broken := NewCacheInvalidator(failingCache{CacheService: svc, err: assert.AnError}, nil)
	assert.ErrorIs(t, broken.Handle(ctx, events.NewEvent(events.KindDeleted, "news", 1, nil)), assert.AnError)
}
