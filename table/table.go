// Package table defines the storage contract entity repositories delegate to,
// together with its bun implementation.
package table

import (
	"context"
	"errors"

	repository "github.com/goliatone/go-repository-bun"
)

// ErrProceduresUnsupported is returned by CallProcedure on dialects without
// stored procedures.
var ErrProceduresUnsupported = errors.New("table: stored procedures are not supported by this dialect")

// Table is a query-able, mutate-able handle on the rows of one entity type.
type Table[T any] interface {
	// Select returns every row matching criteria, in the order criteria define.
	Select(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, error)
	// SelectAndCount returns the rows of the page selected by offset and limit
	// together with the count of all matching rows. limit <= 0 means no limit.
	SelectAndCount(ctx context.Context, offset, limit int, criteria ...repository.SelectCriteria) ([]T, int, error)
	// Count returns the number of matching rows.
	Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error)

	InsertOne(ctx context.Context, record T) error
	BulkInsert(ctx context.Context, records []T) error
	UpdateOne(ctx context.Context, record T) error
	DeleteOne(ctx context.Context, record T) error
	BulkDelete(ctx context.Context, records []T) error
	// DeleteWhere physically removes rows matching criteria and reports how many.
	DeleteWhere(ctx context.Context, criteria repository.DeleteCriteria) (int64, error)
	// Truncate empties the table, optionally restarting the identity sequence.
	Truncate(ctx context.Context, resetIdentity bool) error
	// CallProcedure runs a named procedure and maps its rows to T.
	CallProcedure(ctx context.Context, name string, params ...any) ([]T, error)

	// RunInTx runs fn with a table bound to a transaction. The transaction
	// commits when fn returns nil and rolls back on error or panic.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Table[T]) error) error
}

// Opener hands out the table handle for an entity type.
type Opener[T any] func() (Table[T], error)
