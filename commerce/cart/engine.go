package cart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/Chative-Conversational-Commerce/commerce/catalog"
)

type Options struct {
	// EnforceStockOnUpdate applies the creation-time stock check to every
	// positive quantity passed to ApplyUpdates.
	EnforceStockOnUpdate bool `envconfig:"ENFORCE_STOCK_ON_UPDATE" split_words:"true" default:"false"`
}

type Engine struct {
	store  Store
	opts   Options
	now    func() time.Time
	newKey func(now time.Time) string
}

type EngineOption func(*Engine)

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithSessionKeyGenerator(gen func(now time.Time) string) EngineOption {
	return func(e *Engine) {
		if gen != nil {
			e.newKey = gen
		}
	}
}

func NewEngine(store Store, opts Options, options ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, errors.New("cart engine: store is required")
	}
	e := &Engine{
		store:  store,
		opts:   opts,
		now:    time.Now,
		newKey: GenerateSessionKey,
	}
	for _, opt := range options {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// GenerateSessionKey returns a key of the form session_<unix-ms>_<7 chars>.
func GenerateSessionKey(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:7]
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), suffix)
}

// CreateOrMerge adds lines to the session's cart, creating the cart when it
// does not exist. Quantities for a product already in the cart are added.
func (e *Engine) CreateOrMerge(ctx context.Context, sessionKey string, lines []LineRequest) (View, error) {
	merged, err := mergeRequests(lines)
	if err != nil {
		return View{}, err
	}

	now := e.clock()
	sessionKey = strings.TrimSpace(sessionKey)
	if sessionKey == "" {
		sessionKey = e.newKey(now)
	}

	var view View
	err = e.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		ids := make([]int64, len(merged))
		for i, l := range merged {
			ids[i] = l.ProductID
		}
		products, err := lockProducts(ctx, tx, ids)
		if err != nil {
			return err
		}
		if missing := missingIDs(ids, products); len(missing) > 0 {
			return &NotFoundError{ProductIDs: missing}
		}
		for _, l := range merged {
			if err := checkStock(products[l.ProductID], l.Quantity); err != nil {
				return err
			}
		}

		c, err := tx.CartBySession(ctx, sessionKey, true)
		if err != nil {
			return err
		}
		if c == nil {
			if c, err = tx.InsertCart(ctx, sessionKey, now); err != nil {
				return err
			}
		}

		existing, err := linesByProduct(ctx, tx, c.ID)
		if err != nil {
			return err
		}
		for _, l := range merged {
			if cur, ok := existing[l.ProductID]; ok {
				if err := tx.SetLineQuantity(ctx, cur.ID, cur.Quantity+l.Quantity); err != nil {
					return err
				}
				continue
			}
			if err := tx.InsertLine(ctx, &Line{CartID: c.ID, ProductID: l.ProductID, Quantity: l.Quantity}); err != nil {
				return err
			}
		}

		if err := tx.TouchCart(ctx, c.ID, now); err != nil {
			return err
		}
		c.UpdatedAt = now

		view, err = buildView(ctx, tx, c)
		return err
	})
	if err != nil {
		return View{}, err
	}

	log.Ctx(ctx).Debug().
		Int64("cart_id", view.ID).
		Str("session_key", view.SessionKey).
		Int("lines", len(view.Items)).
		Msg("cart merged")
	return view, nil
}

// Fetch resolves a cart by numeric id or session key.
func (e *Engine) Fetch(ctx context.Context, sessionOrID string) (View, error) {
	var view View
	err := e.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		c, err := resolve(ctx, tx, sessionOrID, false)
		if err != nil {
			return err
		}
		view, err = buildView(ctx, tx, c)
		return err
	})
	if err != nil {
		return View{}, err
	}
	return view, nil
}

// ApplyUpdates sets line quantities. Zero removes a line and is a no-op when
// the line is absent; a positive quantity overwrites the current one.
func (e *Engine) ApplyUpdates(ctx context.Context, sessionOrID string, updates []LineUpdate) (View, error) {
	if updates == nil {
		return View{}, invalid("items", "items array is required")
	}
	for i, u := range updates {
		if u.ProductID <= 0 {
			return View{}, invalid(fmt.Sprintf("items[%d].product_id", i), "must be a positive integer")
		}
		if u.Quantity < 0 {
			return View{}, invalid(fmt.Sprintf("items[%d].qty", i), "must not be negative")
		}
	}

	now := e.clock()
	var view View
	err := e.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		c, err := resolve(ctx, tx, sessionOrID, true)
		if err != nil {
			return err
		}

		ids := make([]int64, 0, len(updates))
		for _, u := range updates {
			if u.Quantity > 0 {
				ids = append(ids, u.ProductID)
			}
		}
		products, err := lockProducts(ctx, tx, ids)
		if err != nil {
			return err
		}

		existing, err := linesByProduct(ctx, tx, c.ID)
		if err != nil {
			return err
		}

		for _, u := range updates {
			cur, has := existing[u.ProductID]

			if u.Quantity == 0 {
				if has {
					if err := tx.DeleteLine(ctx, cur.ID); err != nil {
						return err
					}
					delete(existing, u.ProductID)
				}
				continue
			}

			p, found := products[u.ProductID]
			if !has && !found {
				return &NotFoundError{ProductIDs: []int64{u.ProductID}}
			}
			if e.opts.EnforceStockOnUpdate {
				if !found {
					return fmt.Errorf("%w: cart %d references missing product %d", ErrInvariant, c.ID, u.ProductID)
				}
				if err := checkStock(p, u.Quantity); err != nil {
					return err
				}
			}

			if has {
				if err := tx.SetLineQuantity(ctx, cur.ID, u.Quantity); err != nil {
					return err
				}
				cur.Quantity = u.Quantity
				existing[u.ProductID] = cur
				continue
			}

			line := &Line{CartID: c.ID, ProductID: u.ProductID, Quantity: u.Quantity}
			if err := tx.InsertLine(ctx, line); err != nil {
				return err
			}
			existing[u.ProductID] = *line
		}

		if err := tx.TouchCart(ctx, c.ID, now); err != nil {
			return err
		}
		c.UpdatedAt = now

		view, err = buildView(ctx, tx, c)
		return err
	})
	if err != nil {
		return View{}, err
	}

	log.Ctx(ctx).Debug().
		Int64("cart_id", view.ID).
		Int("updates", len(updates)).
		Msg("cart updated")
	return view, nil
}

// Clear deletes the cart and all of its lines.
func (e *Engine) Clear(ctx context.Context, sessionOrID string) error {
	return e.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		c, err := resolve(ctx, tx, sessionOrID, true)
		if err != nil {
			return err
		}
		if err := tx.DeleteCart(ctx, c.ID); err != nil {
			return err
		}
		log.Ctx(ctx).Debug().Int64("cart_id", c.ID).Msg("cart cleared")
		return nil
	})
}

func (e *Engine) clock() time.Time {
	return e.now().UTC().Truncate(time.Microsecond)
}

// mergeRequests validates lines and sums duplicate products, keeping the order
// in which each product first appears.
func mergeRequests(lines []LineRequest) ([]LineRequest, error) {
	if len(lines) == 0 {
		return nil, invalid("items", "items array is required")
	}

	merged := make([]LineRequest, 0, len(lines))
	index := make(map[int64]int, len(lines))
	for i, l := range lines {
		if l.ProductID <= 0 {
			return nil, invalid(fmt.Sprintf("items[%d].product_id", i), "must be a positive integer")
		}
		if l.Quantity <= 0 {
			return nil, invalid(fmt.Sprintf("items[%d].qty", i), "must be greater than zero")
		}
		if at, ok := index[l.ProductID]; ok {
			merged[at].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(merged)
		merged = append(merged, l)
	}
	return merged, nil
}

// resolve tries a purely numeric identifier as a cart id first and falls back
// to the session key.
func resolve(ctx context.Context, tx Tx, sessionOrID string, lock bool) (*Cart, error) {
	key := strings.TrimSpace(sessionOrID)
	if key == "" {
		return nil, invalid("id", "cart id or session key is required")
	}

	if id, err := strconv.ParseInt(key, 10, 64); err == nil && id > 0 {
		c, err := tx.CartByID(ctx, id, lock)
		if err != nil {
			return nil, err
		}
		if c != nil {
			return c, nil
		}
	}

	c, err := tx.CartBySession(ctx, key, lock)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, &NotFoundError{Cart: key}
	}
	return c, nil
}

func lockProducts(ctx context.Context, tx Tx, ids []int64) (map[int64]catalog.Product, error) {
	out := make(map[int64]catalog.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	products, err := tx.Products(ctx, ids, true)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

func missingIDs(ids []int64, found map[int64]catalog.Product) []int64 {
	var missing []int64
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}

func checkStock(p catalog.Product, requested int) error {
	if p.Stock < requested {
		return &InsufficientStockError{
			ProductID:   p.ID,
			ProductName: p.Name,
			Available:   p.Stock,
			Requested:   requested,
		}
	}
	return nil
}

func linesByProduct(ctx context.Context, tx Tx, cartID int64) (map[int64]Line, error) {
	lines, err := tx.Lines(ctx, cartID)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]Line, len(lines))
	for _, l := range lines {
		out[l.ProductID] = l
	}
	return out, nil
}

func buildView(ctx context.Context, tx Tx, c *Cart) (View, error) {
	lines, err := tx.Lines(ctx, c.ID)
	if err != nil {
		return View{}, err
	}

	ids := make([]int64, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	products := make(map[int64]catalog.Product, len(ids))
	if len(ids) > 0 {
		found, err := tx.Products(ctx, ids, false)
		if err != nil {
			return View{}, err
		}
		for _, p := range found {
			products[p.ID] = p
		}
	}

	view := View{
		ID:         c.ID,
		SessionKey: c.SessionKey,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
		Items:      make([]ItemView, 0, len(lines)),
	}
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			return View{}, fmt.Errorf("%w: cart %d line %d references missing product %d", ErrInvariant, c.ID, l.ID, l.ProductID)
		}
		subtotal := p.Price * float64(l.Quantity)
		view.Items = append(view.Items, ItemView{
			ID:          l.ID,
			ProductID:   l.ProductID,
			ProductName: p.Name,
			Size:        p.Size,
			Color:       p.Color,
			Quantity:    l.Quantity,
			UnitPrice:   p.Price,
			Subtotal:    subtotal,
		})
		view.Total += subtotal
	}
	return view, nil
}
