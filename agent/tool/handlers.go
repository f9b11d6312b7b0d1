package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	contractx "github.com/tanpawarit/Chative-Conversational-Commerce/agent/contract"
	"github.com/tanpawarit/Chative-Conversational-Commerce/commerce/cart"
	"github.com/tanpawarit/Chative-Conversational-Commerce/commerce/catalog"
)

const searchLimit = 10

type SearchArgs struct {
	Query    string `json:"query"`
	Category string `json:"category"`
	Size     string `json:"size"`
	Color    string `json:"color"`
}

type SearchItem struct {
	ID          int64  `json:"id"`
	Name        string `json:"nombre"`
	Price       string `json:"precio"`
	Stock       int    `json:"stock"`
	Category    string `json:"categoria"`
	Description string `json:"descripcion"`
}

type SearchResult struct {
	Message  string       `json:"message"`
	Count    int          `json:"count"`
	Products []SearchItem `json:"products"`
}

// ProductRef accepts the id as a JSON number or a string.
type ProductRef string

func (r *ProductRef) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*r = ProductRef(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("productId must be a number or string")
	}
	*r = ProductRef(strings.TrimSpace(s))
	return nil
}

type DetailArgs struct {
	ProductID ProductRef `json:"productId"`
}

type ProductDetail struct {
	ID          int64  `json:"id"`
	Name        string `json:"nombre"`
	Size        string `json:"talla"`
	Color       string `json:"color"`
	UnitPrice   string `json:"precio_unitario"`
	Price100    string `json:"precio_100_unidades"`
	Price200    string `json:"precio_200_unidades"`
	Stock       int    `json:"stock_disponible"`
	Category    string `json:"categoria"`
	Description string `json:"descripcion"`
	Available   string `json:"disponible"`
}

type CartItemsArgs struct {
	Items []cart.LineRequest `json:"items"`
}

type CartLine struct {
	Product   string `json:"producto"`
	Size      string `json:"talla,omitempty"`
	Color     string `json:"color,omitempty"`
	Quantity  int    `json:"cantidad"`
	UnitPrice string `json:"precio_unitario,omitempty"`
	Subtotal  string `json:"subtotal"`
}

type CartResult struct {
	Message string     `json:"message,omitempty"`
	CartID  int64      `json:"cart_id,omitempty"`
	Items   []CartLine `json:"items,omitempty"`
	Total   string     `json:"total,omitempty"`
}

type NoArgs struct{}

func (r *Registry) searchProducts(ctx context.Context, _ string, args SearchArgs) (SearchResult, error) {
	available := true
	found, err := r.products.Search(ctx, catalog.Filter{
		Query:     args.Query,
		Category:  args.Category,
		Size:      args.Size,
		Color:     args.Color,
		Available: &available,
	})
	if err != nil {
		return SearchResult{}, err
	}
	if len(found) == 0 {
		return SearchResult{
			Message:  "No se encontraron productos con esos criterios.",
			Products: []SearchItem{},
		}, nil
	}

	shown := found
	if len(shown) > searchLimit {
		shown = shown[:searchLimit]
	}
	items := make([]SearchItem, 0, len(shown))
	for _, p := range shown {
		items = append(items, SearchItem{
			ID:          p.ID,
			Name:        displayName(p),
			Price:       money(p.Price),
			Stock:       p.Stock,
			Category:    p.Category,
			Description: p.Description,
		})
	}

	msg := fmt.Sprintf("Encontré %d productos", len(found))
	if len(found) > searchLimit {
		msg += fmt.Sprintf(" (mostrando los primeros %d)", searchLimit)
	}
	return SearchResult{Message: msg + ".", Count: len(found), Products: items}, nil
}

func (r *Registry) getProductDetails(ctx context.Context, _ string, args DetailArgs) (ProductDetail, error) {
	if args.ProductID == "" {
		return ProductDetail{}, fmt.Errorf("%w: productId es requerido", contractx.ErrValidation)
	}
	p, err := r.products.Get(ctx, string(args.ProductID))
	if err != nil {
		return ProductDetail{}, err
	}
	available := "No"
	if p.Available {
		available = "Sí"
	}
	return ProductDetail{
		ID:          p.ID,
		Name:        displayName(p),
		Size:        p.Size,
		Color:       p.Color,
		UnitPrice:   money(p.Price),
		Price100:    money(p.Price100),
		Price200:    money(p.Price200),
		Stock:       p.Stock,
		Category:    p.Category,
		Description: p.Description,
		Available:   available,
	}, nil
}

func (r *Registry) createCart(ctx context.Context, sessionID string, args CartItemsArgs) (CartResult, error) {
	view, err := r.carts.CreateOrMerge(ctx, r.cartKeyFor(sessionID), args.Items)
	if err != nil {
		return CartResult{}, err
	}
	res := cartResult(view, true)
	res.Message = "¡Carrito creado exitosamente!"
	return res, nil
}

func (r *Registry) getCart(ctx context.Context, sessionID string, _ NoArgs) (CartResult, error) {
	view, err := r.carts.Fetch(ctx, r.cartKeyFor(sessionID))
	if errors.Is(err, cart.ErrNotFound) {
		return CartResult{Message: "No tienes un carrito activo. ¿Te gustaría ver nuestros productos?"}, nil
	}
	if err != nil {
		return CartResult{}, err
	}
	if len(view.Items) == 0 {
		return CartResult{Message: "Tu carrito está vacío."}, nil
	}
	return cartResult(view, true), nil
}

func (r *Registry) updateCart(ctx context.Context, sessionID string, args CartItemsArgs) (CartResult, error) {
	if len(args.Items) == 0 {
		return CartResult{}, fmt.Errorf("%w: items es requerido", contractx.ErrValidation)
	}
	updates := make([]cart.LineUpdate, 0, len(args.Items))
	for _, it := range args.Items {
		updates = append(updates, cart.LineUpdate(it))
	}
	view, err := r.carts.ApplyUpdates(ctx, r.cartKeyFor(sessionID), updates)
	if err != nil {
		return CartResult{}, err
	}
	res := cartResult(view, false)
	res.Message = "¡Carrito actualizado!"
	return res, nil
}

func (r *Registry) clearCart(ctx context.Context, sessionID string, _ NoArgs) (CartResult, error) {
	err := r.carts.Clear(ctx, r.cartKeyFor(sessionID))
	if errors.Is(err, cart.ErrNotFound) {
		return CartResult{Message: "No tenías un carrito activo."}, nil
	}
	if err != nil {
		return CartResult{}, err
	}
	return CartResult{Message: "¡Carrito eliminado! Puedes empezar una nueva compra cuando quieras."}, nil
}

func cartResult(v cart.View, detailed bool) CartResult {
	lines := make([]CartLine, 0, len(v.Items))
	for _, it := range v.Items {
		line := CartLine{
			Product:  it.ProductName,
			Quantity: it.Quantity,
			Subtotal: money(it.Subtotal),
		}
		if detailed {
			line.Size = it.Size
			line.Color = it.Color
			line.UnitPrice = money(it.UnitPrice)
		}
		lines = append(lines, line)
	}
	return CartResult{CartID: v.ID, Items: lines, Total: money(v.Total)}
}

func displayName(p catalog.Product) string {
	return strings.Join([]string{p.Name, p.Size, p.Color}, " ")
}

func money(v float64) string {
	return "$" + strconv.FormatFloat(v, 'f', -1, 64)
}
