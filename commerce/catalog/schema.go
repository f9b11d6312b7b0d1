package catalog

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func CreateSchema(ctx context.Context, db bun.IDB) error {
	if _, err := db.NewCreateTable().Model((*Product)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create products table: %w", err)
	}
	_, err := db.NewCreateIndex().
		Model((*Product)(nil)).
		Index("products_external_id_idx").
		Column("external_id").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create products index: %w", err)
	}
	return nil
}
