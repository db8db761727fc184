package table

import (
	"context"

	"github.com/uptrace/bun"
)

// CreateTables creates a table for each bun model unless it already exists.
func CreateTables(ctx context.Context, db bun.IDB, models ...any) error {
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}
