package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/tanpawarit/Chative-Conversational-Commerce/commerce/cart"
	"github.com/tanpawarit/Chative-Conversational-Commerce/commerce/catalog"
)

const maxBodyBytes = 1 << 20

type Carts interface {
	CreateOrMerge(ctx context.Context, sessionKey string, lines []cart.LineRequest) (cart.View, error)
	Fetch(ctx context.Context, sessionOrID string) (cart.View, error)
	ApplyUpdates(ctx context.Context, sessionOrID string, updates []cart.LineUpdate) (cart.View, error)
	Clear(ctx context.Context, sessionOrID string) error
}

type Handler struct {
	products catalog.Repository
	carts    Carts
	version  string
}

func NewHandler(products catalog.Repository, carts Carts, version string) *Handler {
	if version == "" {
		version = "1.0.0"
	}
	return &Handler{products: products, carts: carts, version: version}
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"message": "Chative WhatsApp commerce agent API",
		"version": h.version,
		"endpoints": map[string]string{
			"products": "/products",
			"carts":    "/carts",
			"webhook":  "/webhook",
			"metrics":  "/metrics",
		},
	})
}

type productSummary struct {
	ID          int64   `json:"id"`
	ExternalID  string  `json:"externalId"`
	Name        string  `json:"name"`
	Size        string  `json:"size"`
	Color       string  `json:"color"`
	Stock       int     `json:"stock"`
	Price       float64 `json:"price"`
	Available   bool    `json:"available"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := catalog.Filter{
		Query:    q.Get("q"),
		Category: q.Get("category"),
		Size:     q.Get("size"),
		Color:    q.Get("color"),
	}
	if q.Has("available") {
		available := q.Get("available") == "true"
		f.Available = &available
	}

	products, err := h.products.Search(r.Context(), f)
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("search products")
		writeError(w, http.StatusInternalServerError, "Error al obtener productos")
		return
	}

	out := make([]productSummary, len(products))
	for i, p := range products {
		out[i] = productSummary{
			ID: p.ID, ExternalID: p.ExternalID, Name: p.Name, Size: p.Size, Color: p.Color,
			Stock: p.Stock, Price: p.Price, Available: p.Available, Category: p.Category,
			Description: p.Description,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "products": out})
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Producto no encontrado")
		return
	}
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("get product")
		writeError(w, http.StatusInternalServerError, "Error al obtener producto")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type createCartRequest struct {
	SessionID string             `json:"sessionId"`
	Items     []cart.LineRequest `json:"items"`
}

type updateCartRequest struct {
	Items []cart.LineUpdate `json:"items"`
}

func (h *Handler) CreateCart(w http.ResponseWriter, r *http.Request) {
	var req createCartRequest
	if !decodeValid(w, r, createCartSchema, &req) {
		return
	}
	view, err := h.carts.CreateOrMerge(r.Context(), req.SessionID, req.Items)
	if err != nil {
		writeCartError(r.Context(), w, err, "Failed to create cart")
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.carts.Fetch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeCartError(r.Context(), w, err, "Failed to fetch cart")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) UpdateCart(w http.ResponseWriter, r *http.Request) {
	var req updateCartRequest
	if !decodeValid(w, r, updateCartSchema, &req) {
		return
	}
	if req.Items == nil {
		req.Items = []cart.LineUpdate{}
	}
	view, err := h.carts.ApplyUpdates(r.Context(), chi.URLParam(r, "id"), req.Items)
	if err != nil {
		writeCartError(r.Context(), w, err, "Failed to update cart")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) DeleteCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeCartError(r.Context(), w, err, "Failed to delete cart")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Cart deleted successfully"})
}

func decodeValid(w http.ResponseWriter, r *http.Request, schema *gojsonschema.Schema, dst any) bool {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read request body")
		return false
	}
	if err := validateBody(schema, raw); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error, fallback string) {
	var (
		nf *cart.NotFoundError
		se *cart.InsufficientStockError
		ve *cart.ValidationError
	)
	switch {
	case errors.As(err, &nf):
		if len(nf.ProductIDs) > 0 {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error":       "Some products do not exist",
				"notFoundIds": nf.ProductIDs,
			})
			return
		}
		writeError(w, http.StatusNotFound, "Cart not found")
	case errors.As(err, &se):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":           "Insufficient stock for " + se.ProductName,
			"product_id":      se.ProductID,
			"available_stock": se.Available,
			"requested":       se.Requested,
		})
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	default:
		log.Ctx(ctx).Error().Err(err).Msg(fallback)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
