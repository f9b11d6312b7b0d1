package cart

import (
	"time"

	"github.com/uptrace/bun"
)

type Cart struct {
	bun.BaseModel `bun:"table:carts,alias:c"`

	ID         int64     `bun:"id,pk,autoincrement"`
	SessionKey string    `bun:"session_key,notnull,unique"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
	UpdatedAt  time.Time `bun:"updated_at,notnull"`
}

// Line is one product in a cart. A stored line always has Quantity > 0 and is
// unique per (CartID, ProductID).
type Line struct {
	bun.BaseModel `bun:"table:cart_lines,alias:l"`

	ID        int64 `bun:"id,pk,autoincrement"`
	CartID    int64 `bun:"cart_id,notnull,unique:cart_lines_cart_product"`
	ProductID int64 `bun:"product_id,notnull,unique:cart_lines_cart_product"`
	Quantity  int   `bun:"quantity,notnull"`
}

type LineRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"qty"`
}

// LineUpdate sets a line to Quantity. Zero removes the line.
type LineUpdate struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"qty"`
}

type ItemView struct {
	ID          int64   `json:"id"`
	ProductID   int64   `json:"product_id"`
	ProductName string  `json:"product_name"`
	Size        string  `json:"size"`
	Color       string  `json:"color"`
	Quantity    int     `json:"qty"`
	UnitPrice   float64 `json:"unit_price"`
	Subtotal    float64 `json:"subtotal"`
}

// View is a cart priced at read time with current product prices.
type View struct {
	ID         int64      `json:"id"`
	SessionKey string     `json:"sessionId"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	Items      []ItemView `json:"items"`
	Total      float64    `json:"total"`
}
