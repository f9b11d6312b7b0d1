package cart

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/tanpawarit/Chative-Conversational-Commerce/commerce/catalog"
)

var _ Store = (*MemoryStore)(nil)

// ProductLookup is the slice of the catalog a MemoryStore reads.
type ProductLookup interface {
	ByIDs(ctx context.Context, ids []int64) ([]catalog.Product, error)
}

// MemoryStore runs one transaction at a time and restores its snapshot when
// the transaction returns an error.
type MemoryStore struct {
	mu       sync.Mutex
	products ProductLookup

	carts    map[int64]Cart
	lines    map[int64]Line
	nextCart int64
	nextLine int64
}

func NewMemoryStore(products ProductLookup) (*MemoryStore, error) {
	if products == nil {
		return nil, errors.New("cart memory store: product lookup is required")
	}
	return &MemoryStore{
		products: products,
		carts:    make(map[int64]Cart),
		lines:    make(map[int64]Line),
	}, nil
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	carts := maps.Clone(s.carts)
	lines := maps.Clone(s.lines)
	nextCart, nextLine := s.nextCart, s.nextLine

	if err := fn(ctx, memoryTx{s}); err != nil {
		s.carts, s.lines = carts, lines
		s.nextCart, s.nextLine = nextCart, nextLine
		return err
	}
	return nil
}

// memoryTx is only used while RunInTx holds s.mu.
type memoryTx struct {
	s *MemoryStore
}

func (t memoryTx) Products(ctx context.Context, ids []int64, _ bool) ([]catalog.Product, error) {
	return t.s.products.ByIDs(ctx, ids)
}

func (t memoryTx) CartByID(_ context.Context, id int64, _ bool) (*Cart, error) {
	c, ok := t.s.carts[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (t memoryTx) CartBySession(_ context.Context, sessionKey string, _ bool) (*Cart, error) {
	for _, c := range t.s.carts {
		if c.SessionKey == sessionKey {
			return &c, nil
		}
	}
	return nil, nil
}

func (t memoryTx) InsertCart(ctx context.Context, sessionKey string, now time.Time) (*Cart, error) {
	if existing, _ := t.CartBySession(ctx, sessionKey, true); existing != nil {
		return existing, nil
	}
	t.s.nextCart++
	c := Cart{ID: t.s.nextCart, SessionKey: sessionKey, CreatedAt: now, UpdatedAt: now}
	t.s.carts[c.ID] = c
	return &c, nil
}

func (t memoryTx) Lines(_ context.Context, cartID int64) ([]Line, error) {
	out := make([]Line, 0)
	for _, l := range t.s.lines {
		if l.CartID == cartID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t memoryTx) InsertLine(_ context.Context, line *Line) error {
	if _, ok := t.s.carts[line.CartID]; !ok {
		return fmt.Errorf("insert cart line: cart %d does not exist", line.CartID)
	}
	for _, l := range t.s.lines {
		if l.CartID == line.CartID && l.ProductID == line.ProductID {
			return fmt.Errorf("insert cart line: product %d already in cart %d", line.ProductID, line.CartID)
		}
	}
	t.s.nextLine++
	line.ID = t.s.nextLine
	t.s.lines[line.ID] = *line
	return nil
}

func (t memoryTx) SetLineQuantity(_ context.Context, lineID int64, quantity int) error {
	l, ok := t.s.lines[lineID]
	if !ok {
		return fmt.Errorf("update cart line: line %d does not exist", lineID)
	}
	l.Quantity = quantity
	t.s.lines[lineID] = l
	return nil
}

func (t memoryTx) DeleteLine(_ context.Context, lineID int64) error {
	delete(t.s.lines, lineID)
	return nil
}

func (t memoryTx) TouchCart(_ context.Context, cartID int64, at time.Time) error {
	c, ok := t.s.carts[cartID]
	if !ok {
		return fmt.Errorf("touch cart: cart %d does not exist", cartID)
	}
	c.UpdatedAt = at
	t.s.carts[cartID] = c
	return nil
}

func (t memoryTx) DeleteCart(_ context.Context, cartID int64) error {
	for id, l := range t.s.lines {
		if l.CartID == cartID {
			delete(t.s.lines, id)
		}
	}
	delete(t.s.carts, cartID)
	return nil
}
