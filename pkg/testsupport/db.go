package testsupport

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-repository-entity/table"
)

// OpenSQLite returns a bun DB over a private in-memory SQLite database with a
// table created for each model. The database is closed when the test ends.
func OpenSQLite(t testing.TB, models ...any) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open("sqlite3", "file::memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	// every connection to :memory: is a separate database
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	if err := table.CreateTables(context.Background(), db, models...); err != nil {
		t.Fatalf("failed to create tables: %v", err)
	}

	return db
}
