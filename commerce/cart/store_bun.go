package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/tanpawarit/Chative-Conversational-Commerce/commerce/catalog"
)

var _ Store = (*BunStore)(nil)

// BunStore keeps carts in a SQL database through bun. On Postgres, locked
// reads use SELECT ... FOR UPDATE; SQLite serialises writers on its own.
type BunStore struct {
	db       *bun.DB
	rowLocks bool
}

func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{
		db:       db,
		rowLocks: db.Dialect().Name() == dialect.PG,
	}
}

func (s *BunStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &bunTx{tx: tx, rowLocks: s.rowLocks})
	})
}

type bunTx struct {
	tx       bun.Tx
	rowLocks bool
}

func (t *bunTx) forUpdate(q *bun.SelectQuery, lock bool) *bun.SelectQuery {
	if lock && t.rowLocks {
		return q.For("UPDATE")
	}
	return q
}

func (t *bunTx) Products(ctx context.Context, ids []int64, lock bool) ([]catalog.Product, error) {
	products := make([]catalog.Product, 0, len(ids))
	if len(ids) == 0 {
		return products, nil
	}
	q := t.tx.NewSelect().Model(&products).
		Where("p.id IN (?)", bun.In(ids)).
		OrderExpr("p.id ASC")
	if err := t.forUpdate(q, lock).Scan(ctx); err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	return products, nil
}

func (t *bunTx) CartByID(ctx context.Context, id int64, lock bool) (*Cart, error) {
	return t.findCart(ctx, lock, "c.id = ?", id)
}

func (t *bunTx) CartBySession(ctx context.Context, sessionKey string, lock bool) (*Cart, error) {
	return t.findCart(ctx, lock, "c.session_key = ?", sessionKey)
}

func (t *bunTx) findCart(ctx context.Context, lock bool, where string, arg any) (*Cart, error) {
	var c Cart
	q := t.tx.NewSelect().Model(&c).Where(where, arg).Limit(1)
	err := t.forUpdate(q, lock).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	return &c, nil
}

// InsertCart relies on the unique session_key index: a losing concurrent
// insert does nothing and the winner's row is read back.
func (t *bunTx) InsertCart(ctx context.Context, sessionKey string, now time.Time) (*Cart, error) {
	c := &Cart{SessionKey: sessionKey, CreatedAt: now, UpdatedAt: now}
	_, err := t.tx.NewInsert().Model(c).
		On("CONFLICT (session_key) DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("insert cart: %w", err)
	}

	existing, err := t.CartBySession(ctx, sessionKey, true)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: cart for session %q vanished after insert", ErrInvariant, sessionKey)
	}
	return existing, nil
}

func (t *bunTx) Lines(ctx context.Context, cartID int64) ([]Line, error) {
	lines := make([]Line, 0)
	err := t.tx.NewSelect().Model(&lines).
		Where("l.cart_id = ?", cartID).
		OrderExpr("l.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cart lines: %w", err)
	}
	return lines, nil
}

func (t *bunTx) InsertLine(ctx context.Context, line *Line) error {
	if _, err := t.tx.NewInsert().Model(line).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("insert cart line: %w", err)
	}
	return nil
}

func (t *bunTx) SetLineQuantity(ctx context.Context, lineID int64, quantity int) error {
	_, err := t.tx.NewUpdate().Model((*Line)(nil)).
		Set("quantity = ?", quantity).
		Where("id = ?", lineID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update cart line: %w", err)
	}
	return nil
}

func (t *bunTx) DeleteLine(ctx context.Context, lineID int64) error {
	if _, err := t.tx.NewDelete().Model((*Line)(nil)).Where("id = ?", lineID).Exec(ctx); err != nil {
		return fmt.Errorf("delete cart line: %w", err)
	}
	return nil
}

func (t *bunTx) TouchCart(ctx context.Context, cartID int64, at time.Time) error {
	_, err := t.tx.NewUpdate().Model((*Cart)(nil)).
		Set("updated_at = ?", at).
		Where("id = ?", cartID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}

func (t *bunTx) DeleteCart(ctx context.Context, cartID int64) error {
	if _, err := t.tx.NewDelete().Model((*Line)(nil)).Where("cart_id = ?", cartID).Exec(ctx); err != nil {
		return fmt.Errorf("delete cart lines: %w", err)
	}
	if _, err := t.tx.NewDelete().Model((*Cart)(nil)).Where("id = ?", cartID).Exec(ctx); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}
