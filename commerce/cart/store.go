package cart

import (
	"context"
	"time"

	"github.com/tanpawarit/Chative-Conversational-Commerce/commerce/catalog"
)

// Store runs cart work atomically. Everything fn does through tx commits
// together or not at all.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the unit of work handed to RunInTx. Finders return (nil, nil) when
// nothing matches. lock asks the store to hold the rows until commit.
type Tx interface {
	Products(ctx context.Context, ids []int64, lock bool) ([]catalog.Product, error)
	CartByID(ctx context.Context, id int64, lock bool) (*Cart, error)
	CartBySession(ctx context.Context, sessionKey string, lock bool) (*Cart, error)
	// InsertCart creates the cart for sessionKey, or returns the cart a
	// concurrent writer created first.
	InsertCart(ctx context.Context, sessionKey string, now time.Time) (*Cart, error)
	Lines(ctx context.Context, cartID int64) ([]Line, error)
	InsertLine(ctx context.Context, line *Line) error
	SetLineQuantity(ctx context.Context, lineID int64, quantity int) error
	DeleteLine(ctx context.Context, lineID int64) error
	TouchCart(ctx context.Context, cartID int64, at time.Time) error
	DeleteCart(ctx context.Context, cartID int64) error
}
