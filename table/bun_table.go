package table

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// BunTable implements Table over a bun connection, transaction or DB.
// T must be a pointer to a bun model struct.
type BunTable[T any] struct {
	db bun.IDB
}

var _ Table[any] = (*BunTable[any])(nil)

// NewBunTable binds T to db.
func NewBunTable[T any](db bun.IDB) (*BunTable[T], error) {
	if db == nil {
		return nil, fmt.Errorf("table: nil bun.IDB")
	}

	var zero T
	rt := reflect.TypeOf(zero)
	if rt == nil || rt.Kind() != reflect.Ptr || rt.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("table: model type %v must be a pointer to struct", rt)
	}

	return &BunTable[T]{db: db}, nil
}

// Bun returns an Opener that binds T to db on first use.
func Bun[T any](db bun.IDB) Opener[T] {
	return func() (Table[T], error) {
		t, err := NewBunTable[T](db)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}

// model returns a typed nil pointer, enough for bun to resolve the table.
func (t *BunTable[T]) model() any {
	var zero T
	return zero
}

func (t *BunTable[T]) Select(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, error) {
	var records []T
	q := applySelect(t.db.NewSelect().Model(&records), criteria)
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return records, nil
}

func (t *BunTable[T]) SelectAndCount(ctx context.Context, offset, limit int, criteria ...repository.SelectCriteria) ([]T, int, error) {
	var records []T
	q := applySelect(t.db.NewSelect().Model(&records), criteria)
	if limit > 0 {
		q = q.Limit(limit)
		if offset > 0 {
			q = q.Offset(offset)
		}
	}

	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (t *BunTable[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	return applySelect(t.db.NewSelect().Model(t.model()), criteria).Count(ctx)
}

func (t *BunTable[T]) InsertOne(ctx context.Context, record T) error {
	_, err := t.db.NewInsert().Model(record).Exec(ctx)
	return err
}

func (t *BunTable[T]) BulkInsert(ctx context.Context, records []T) error {
	if len(records) == 0 {
		return nil
	}
	_, err := t.db.NewInsert().Model(&records).Exec(ctx)
	return err
}

func (t *BunTable[T]) UpdateOne(ctx context.Context, record T) error {
	_, err := t.db.NewUpdate().Model(record).WherePK().Exec(ctx)
	return err
}

func (t *BunTable[T]) DeleteOne(ctx context.Context, record T) error {
	_, err := t.db.NewDelete().Model(record).WherePK().Exec(ctx)
	return err
}

func (t *BunTable[T]) BulkDelete(ctx context.Context, records []T) error {
	if len(records) == 0 {
		return nil
	}
	_, err := t.db.NewDelete().Model(&records).WherePK().Exec(ctx)
	return err
}

func (t *BunTable[T]) DeleteWhere(ctx context.Context, criteria repository.DeleteCriteria) (int64, error) {
	q := t.db.NewDelete().Model(t.model())
	if criteria != nil {
		q = criteria(q)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Truncate empties the table. PostgreSQL issues TRUNCATE with RESTART or
// CONTINUE IDENTITY; SQLite falls back to DELETE and clears sqlite_sequence
// when asked to reset.
func (t *BunTable[T]) Truncate(ctx context.Context, resetIdentity bool) error {
	q := t.db.NewTruncateTable().Model(t.model())
	if !resetIdentity {
		q = q.ContinueIdentity()
	}
	if _, err := q.Exec(ctx); err != nil {
		return err
	}

	if resetIdentity && t.db.Dialect().Name() == dialect.SQLite {
		return t.resetSQLiteSequence(ctx)
	}
	return nil
}

func (t *BunTable[T]) resetSQLiteSequence(ctx context.Context) error {
	var exists int
	err := t.db.NewRaw(
		"SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'sqlite_sequence'",
	).Scan(ctx, &exists)
	if err != nil || exists == 0 {
		return err
	}

	_, err = t.db.NewRaw("DELETE FROM sqlite_sequence WHERE name = ?", t.tableName()).Exec(ctx)
	return err
}

func (t *BunTable[T]) tableName() string {
	var zero T
	return t.db.Dialect().Tables().Get(reflect.TypeOf(zero).Elem()).Name
}

// CallProcedure calls a PostgreSQL set-returning function and scans its rows.
func (t *BunTable[T]) CallProcedure(ctx context.Context, name string, params ...any) ([]T, error) {
	if t.db.Dialect().Name() != dialect.PG {
		return nil, fmt.Errorf("%w: %s", ErrProceduresUnsupported, t.db.Dialect().Name())
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(params)), ", ")
	args := append([]any{bun.Ident(name)}, params...)

	var records []T
	if err := t.db.NewRaw("SELECT * FROM ?("+placeholders+")", args...).Scan(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (t *BunTable[T]) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Table[T]) error) error {
	return t.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &BunTable[T]{db: tx})
	})
}

func applySelect(q *bun.SelectQuery, criteria []repository.SelectCriteria) *bun.SelectQuery {
	for _, c := range criteria {
		if c != nil {
			q = c(q)
		}
	}
	return q
}
