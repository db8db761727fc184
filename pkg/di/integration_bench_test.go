package di

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/goliatone/go-repository-entity/cache"
	"github.com/goliatone/go-repository-entity/entityrepo"
	"github.com/goliatone/go-repository-entity/pkg/config"
	"github.com/goliatone/go-repository-entity/pkg/metrics"
)

// TestConcurrentAccess tests concurrent reads through one shared cache while
// another goroutine publishes updates.
func TestConcurrentAccess(t *testing.T) {
	container := newTestContainer(t, nil)
	ctx := context.Background()

	names := make([]string, 20)
	for i := range names {
		names[i] = fmt.Sprintf("user-%d", i)
	}
	repo := setupUsers(t, container, names...)

	const numGoroutines = 20
	const operationsPerGoroutine = 25

	var wg sync.WaitGroup
	errs := make(chan error, numGoroutines*operationsPerGoroutine+operationsPerGoroutine)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := 0; j < operationsPerGoroutine; j++ {
				id := int64((workerID+j)%len(names)) + 1
				switch j % 3 {
				case 0:
					user, err := repo.GetByID(ctx, id, entityrepo.DefaultCacheKey)
					if err != nil {
						errs <- err
					} else if user == nil || user.ID != id {
						errs <- fmt.Errorf("worker %d: expected user %d, got %+v", workerID, id, user)
					}
				case 1:
					users, err := repo.GetByIDs(ctx, []int64{id, 1}, entityrepo.DefaultCacheKey)
					if err != nil {
						errs <- err
					} else if len(users) != 2 || users[0].ID != id {
						errs <- fmt.Errorf("worker %d: unexpected batch %+v", workerID, users)
					}
				default:
					if _, err := repo.GetAll(ctx, nil, entityrepo.DefaultCacheKey); err != nil {
						errs <- err
					}
				}
			}
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		writer := NewRepository[*User](container)
		for j := 0; j < operationsPerGoroutine; j++ {
			user := &User{Name: fmt.Sprintf("renamed-%d", j)}
			user.ID = int64(j%len(names)) + 1
			if err := writer.Update(ctx, user, true); err != nil {
				errs <- err
			}
		}
	}()

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}

	m := container.Metrics()
	lookups := counterValue(t, m.CacheLookups, "users", metrics.ResultHit) +
		counterValue(t, m.CacheLookups, "users", metrics.ResultMiss)
	if lookups != numGoroutines*operationsPerGoroutine {
		t.Errorf("Expected %d lookups, got %v", numGoroutines*operationsPerGoroutine, lookups)
	}
	if got := counterValue(t, m.CacheInvalidations, "prefix"); got != operationsPerGoroutine {
		t.Errorf("Expected %d invalidations, got %v", operationsPerGoroutine, got)
	}
}

// TestBatchOperationsIntegration verifies a batch read is cached as one entry.
func TestBatchOperationsIntegration(t *testing.T) {
	container := newTestContainer(t, nil)
	ctx := context.Background()
	repo := setupUsers(t, container, "a", "b", "c", "d")
	m := container.Metrics()

	ids := []int64{4, 2, 9, 1}
	for i := 0; i < 3; i++ {
		users, err := repo.GetByIDs(ctx, ids, entityrepo.DefaultCacheKey)
		if err != nil {
			t.Fatalf("GetByIDs() failed: %v", err)
		}
		if len(users) != 3 || users[0].ID != 4 || users[1].ID != 2 || users[2].ID != 1 {
			t.Fatalf("Expected users 4,2,1 in order, got %+v", users)
		}
	}

	if got := counterValue(t, m.CacheLookups, "users", metrics.ResultMiss); got != 1 {
		t.Errorf("Expected a single miss for the batch, got %v", got)
	}
	if got := counterValue(t, m.CacheLookups, "users", metrics.ResultHit); got != 2 {
		t.Errorf("Expected 2 hits for the batch, got %v", got)
	}

	// same members, different order
	if _, err := repo.GetByIDs(ctx, []int64{1, 2, 4, 9}, entityrepo.DefaultCacheKey); err != nil {
		t.Fatalf("GetByIDs() failed: %v", err)
	}
	if got := counterValue(t, m.CacheLookups, "users", metrics.ResultMiss); got != 2 {
		t.Errorf("A reordered batch should use its own key, got %v misses", got)
	}
}

func newBenchContainer(b *testing.B, users int) (*Container, *entityrepo.Repository[*User]) {
	b.Helper()
	cfg := config.Default()
	cfg.Metrics.Enabled = false

	container, err := NewContainer(cfg, WithRegisterer(prometheus.NewRegistry()))
	if err != nil {
		b.Fatalf("Failed to create DI container: %v", err)
	}
	b.Cleanup(func() { _ = container.Close() })

	ctx := context.Background()
	if err := container.CreateTables(ctx, (*User)(nil)); err != nil {
		b.Fatalf("CreateTables() failed: %v", err)
	}

	repo := NewRepository[*User](container)
	batch := make([]*User, users)
	for i := range batch {
		batch[i] = &User{Name: fmt.Sprintf("User %d", i), Email: fmt.Sprintf("user%d@example.com", i)}
	}
	if err := repo.InsertMany(ctx, batch, false); err != nil {
		b.Fatalf("InsertMany() failed: %v", err)
	}
	return container, repo
}

// BenchmarkKeySerializationPerformance benchmarks key serialization performance
func BenchmarkKeySerializationPerformance(b *testing.B) {
	serializer := cache.NewDefaultKeySerializer(cache.WithMaxKeyLength(250))

	ids := make([]int64, 500)
	for i := range ids {
		ids[i] = int64(i)
	}

	testCases := []struct {
		name      string
		namespace string
		args      []any
	}{
		{name: "by_id", namespace: "users::by_id", args: []any{int64(42)}},
		{name: "by_ids", namespace: "users::by_ids", args: []any{[]int64{3, 1, 2}}},
		{name: "by_ids_digest", namespace: "users::by_ids", args: []any{ids}},
		{name: "all", namespace: "users::all"},
		{name: "all_with_deleted", namespace: "users::all", args: []any{"with_deleted"}},
		{
			name:      "custom_struct",
			namespace: "users::search",
			args:      []any{User{Name: "bench", Email: "bench@example.com"}, map[string]int{"limit": 10}},
		},
	}

	for _, tc := range testCases {
		b.Run(tc.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = serializer.SerializeKey(tc.namespace, tc.args...)
			}
		})
	}
}

// BenchmarkCachedVsUncachedGetByID compares cache hits with store reads.
func BenchmarkCachedVsUncachedGetByID(b *testing.B) {
	_, repo := newBenchContainer(b, 1000)
	ctx := context.Background()

	b.Run("uncached", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			if _, err := repo.GetByID(ctx, int64(i%1000)+1, nil); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("cached", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			if _, err := repo.GetByID(ctx, int64(i%1000)+1, entityrepo.DefaultCacheKey); err != nil {
				b.Fatal(err)
			}
		}
	})
}

// BenchmarkConcurrentCacheAccess benchmarks parallel cached reads.
func BenchmarkConcurrentCacheAccess(b *testing.B) {
	_, repo := newBenchContainer(b, 100)
	ctx := context.Background()

	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if _, err := repo.GetByID(ctx, int64(i%100)+1, entityrepo.DefaultCacheKey); err != nil {
				b.Error(err)
				return
			}
			i++
		}
	})
}
