package cart

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// CreateSchema creates the cart tables. The products table must exist first.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	if _, err := db.NewCreateTable().Model((*Cart)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create carts table: %w", err)
	}

	_, err := db.NewCreateTable().Model((*Line)(nil)).
		IfNotExists().
		ForeignKey(`("cart_id") REFERENCES "carts" ("id") ON DELETE CASCADE`).
		ForeignKey(`("product_id") REFERENCES "products" ("id") ON DELETE RESTRICT`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create cart_lines table: %w", err)
	}

	_, err = db.NewCreateIndex().Model((*Line)(nil)).
		Index("cart_lines_product_id_idx").
		Column("product_id").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create cart_lines index: %w", err)
	}
	return nil
}
