/*
Package entityrepo provides a generic repository over one entity type.

A Repository reads and mutates rows through a table.Table, optionally serves
reads from a cache.CacheService and optionally announces every mutation
through an events.Publisher.

	repo := entityrepo.New(table.Bun[*News](db),
		entityrepo.WithCache(cacheService, keySerializer),
		entityrepo.WithPublisher(dispatcher),
	)

	news, err := repo.GetByIDs(ctx, []int64{2, 1, 3}, entityrepo.DefaultCacheKey)

# Soft delete

Entities implementing entity.SoftDeletable are flagged instead of removed by
Delete and DeleteMany. GetByIDs, GetAll and GetAllPaged skip flagged rows
unless called with IncludeDeleted. GetByID and LoadOriginalCopy never filter.

# Caching

Reads take a CacheKeyFunc. A nil function skips the cache. A function that
returns nil selects the default key for the operation:

	<namespace>::by_id::<id>
	<namespace>::by_ids::<ids>
	<namespace>::all

where namespace is the plural snake case name of the entity type, for example
"blog_posts" for *BlogPost. The default "all" key ignores the query shaper;
callers narrowing GetAll per call should return their own key.

Nothing is invalidated by the repository itself. Subscribe a CacheInvalidator
to the publisher, or call InvalidateCache, to drop the entries of a namespace.

# Events

Insert, Update and Delete, single and bulk, publish one event per entity when
notify is true. Bulk insert publishes after its transaction commits. Publish
failures are logged and do not fail the mutation.
*/
package entityrepo
