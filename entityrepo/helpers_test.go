package entityrepo

import (
	"context"
	"errors"
	"sync"
	"testing"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-entity/cache"
	"github.com/goliatone/go-repository-entity/entity"
	"github.com/goliatone/go-repository-entity/events"
	"github.com/goliatone/go-repository-entity/pkg/testsupport"
	"github.com/goliatone/go-repository-entity/table"
)

type News struct {
	bun.BaseModel `bun:"table:news"`
	entity.Base
	entity.SoftDelete
	Title string `bun:"title,notnull"`
}

type Comment struct {
	bun.BaseModel `bun:"table:comments"`
	entity.Base
	Body string `bun:"body,notnull"`
}

type BlogPost struct {
	entity.Base
}

var errInjected = errors.New("injected failure")

// callLog counts table calls across a spy and the transactional spies it
// hands out.
type callLog struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *callLog) record(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[method]++
}

func (c *callLog) count(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

func (c *callLog) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

// spyTable records calls and injects failures on top of a real table.
type spyTable[T any] struct {
	table.Table[T]
	log *callLog

	// failUpdateAt makes the nth UpdateOne call fail, counting from 1.
	failUpdateAt int
	// failBulkInsert stores the first record and then fails.
	failBulkInsert bool
}

func (s *spyTable[T]) Select(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, error) {
	s.log.record("Select")
	return s.Table.Select(ctx, criteria...)
}

func (s *spyTable[T]) SelectAndCount(ctx context.Context, offset, limit int, criteria ...repository.SelectCriteria) ([]T, int, error) {
	s.log.record("SelectAndCount")
	return s.Table.SelectAndCount(ctx, offset, limit, criteria...)
}

func (s *spyTable[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	s.log.record("Count")
	return s.Table.Count(ctx, criteria...)
}

func (s *spyTable[T]) InsertOne(ctx context.Context, record T) error {
	s.log.record("InsertOne")
	return s.Table.InsertOne(ctx, record)
}

func (s *spyTable[T]) BulkInsert(ctx context.Context, records []T) error {
	s.log.record("BulkInsert")
	if s.failBulkInsert && len(records) > 0 {
		if err := s.Table.BulkInsert(ctx, records[:1]); err != nil {
			return err
		}
		return errInjected
	}
	return s.Table.BulkInsert(ctx, records)
}

func (s *spyTable[T]) UpdateOne(ctx context.Context, record T) error {
	s.log.record("UpdateOne")
	if s.failUpdateAt > 0 && s.log.count("UpdateOne") == s.failUpdateAt {
		return errInjected
	}
	return s.Table.UpdateOne(ctx, record)
}

func (s *spyTable[T]) DeleteOne(ctx context.Context, record T) error {
	s.log.record("DeleteOne")
	return s.Table.DeleteOne(ctx, record)
}

func (s *spyTable[T]) BulkDelete(ctx context.Context, records []T) error {
	s.log.record("BulkDelete")
	return s.Table.BulkDelete(ctx, records)
}

func (s *spyTable[T]) RunInTx(ctx context.Context, fn func(ctx context.Context, tx table.Table[T]) error) error {
	s.log.record("RunInTx")
	return s.Table.RunInTx(ctx, func(ctx context.Context, tx table.Table[T]) error {
		return fn(ctx, &spyTable[T]{
			Table:          tx,
			log:            s.log,
			failUpdateAt:   s.failUpdateAt,
			failBulkInsert: s.failBulkInsert,
		})
	})
}

// fixture bundles a SQLite database with a spied news table.
type fixture struct {
	db     *bun.DB
	news   *spyTable[*News]
	opened int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testsupport.OpenSQLite(t, (*News)(nil), (*Comment)(nil))
	tbl, err := table.NewBunTable[*News](db)
	require.NoError(t, err)
	return &fixture{db: db, news: &spyTable[*News]{Table: tbl, log: &callLog{}}}
}

func (f *fixture) opener() table.Opener[*News] {
	return func() (table.Table[*News], error) {
		f.opened++
		return f.news, nil
	}
}

func (f *fixture) repo(opts ...Option) *Repository[*News] {
	return New(f.opener(), opts...)
}

// seed inserts news rows directly, bypassing the repository.
func (f *fixture) seed(t *testing.T, rows ...*News) {
	t.Helper()
	_, err := f.db.NewInsert().Model(&rows).Exec(context.Background())
	require.NoError(t, err)
}

func (f *fixture) countNews(t *testing.T, includeDeleted bool) int {
	t.Helper()
	q := f.db.NewSelect().Model((*News)(nil))
	if !includeDeleted {
		q = q.Where("deleted = ?", false)
	}
	n, err := q.Count(context.Background())
	require.NoError(t, err)
	return n
}

// eventLog is a publisher keeping every event it receives.
type eventLog struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (l *eventLog) Publish(_ context.Context, evt events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, evt)
	return l.err
}

func (l *eventLog) summary() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, string(e.Kind)+":"+e.EntityType)
	}
	return out
}

func (l *eventLog) ids() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]int64, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.EntityID)
	}
	return out
}

func idsOf[T entity.Entity](records []T) []int64 {
	out := make([]int64, 0, len(records))
	for _, r := range records {
		out = append(out, r.GetID())
	}
	return out
}

func softDeleted() entity.SoftDelete {
	return entity.SoftDelete{Deleted: true}
}

func entityBase(id int64) entity.Base {
	return entity.Base{ID: id}
}

func newCache(t *testing.T) cache.CacheService {
	t.Helper()
	svc, err := cache.NewCacheService(cache.DefaultConfig())
	require.NoError(t, err)
	return svc
}
