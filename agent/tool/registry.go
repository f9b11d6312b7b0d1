package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Conversational-Commerce/agent/contract"
	"github.com/tanpawarit/Chative-Conversational-Commerce/commerce/cart"
	"github.com/tanpawarit/Chative-Conversational-Commerce/commerce/catalog"
	metricsx "github.com/tanpawarit/Chative-Conversational-Commerce/pkg/metrics"
)

const DefaultCartKeyPrefix = "whatsapp_"

var _ contractx.ToolGateway = (*Registry)(nil)

type ProductFinder interface {
	Search(ctx context.Context, f catalog.Filter) ([]catalog.Product, error)
	Get(ctx context.Context, idOrExternal string) (catalog.Product, error)
}

type CartEngine interface {
	CreateOrMerge(ctx context.Context, sessionKey string, lines []cart.LineRequest) (cart.View, error)
	Fetch(ctx context.Context, sessionOrID string) (cart.View, error)
	ApplyUpdates(ctx context.Context, sessionOrID string, updates []cart.LineUpdate) (cart.View, error)
	Clear(ctx context.Context, sessionOrID string) error
}

// Registry binds every Kind to its schema and handler. Carts are scoped to
// the conversation: the cart key is the configured prefix plus the session id.
type Registry struct {
	products  ProductFinder
	carts     CartEngine
	cartKey   string
	metrics   *metricsx.Metrics
	bindings  map[Kind]binding
	toolInfos []*schema.ToolInfo
}

type Option func(*Registry)

func WithCartKeyPrefix(prefix string) Option {
	return func(r *Registry) {
		if prefix = strings.TrimSpace(prefix); prefix != "" {
			r.cartKey = prefix
		}
	}
}

func WithMetrics(m *metricsx.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

type binding struct {
	info *schema.ToolInfo
	run  func(ctx context.Context, sessionID, arguments string) (any, error)
}

// bind decodes the model's JSON arguments into A before calling h.
func bind[A, R any](kind Kind, h func(ctx context.Context, sessionID string, args A) (R, error)) binding {
	return binding{
		info: toolInfo(kind),
		run: func(ctx context.Context, sessionID, arguments string) (any, error) {
			var args A
			if raw := strings.TrimSpace(arguments); raw != "" && raw != "null" {
				if err := json.Unmarshal([]byte(raw), &args); err != nil {
					return nil, fmt.Errorf("%w: argumentos inválidos: %v", contractx.ErrValidation, err)
				}
			}
			return h(ctx, sessionID, args)
		},
	}
}

func NewRegistry(products ProductFinder, carts CartEngine, opts ...Option) (*Registry, error) {
	if products == nil {
		return nil, errors.New("tool registry: product finder is required")
	}
	if carts == nil {
		return nil, errors.New("tool registry: cart engine is required")
	}

	r := &Registry{
		products: products,
		carts:    carts,
		cartKey:  DefaultCartKeyPrefix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	r.bindings = map[Kind]binding{
		KindSearchProducts:    bind(KindSearchProducts, r.searchProducts),
		KindGetProductDetails: bind(KindGetProductDetails, r.getProductDetails),
		KindCreateCart:        bind(KindCreateCart, r.createCart),
		KindGetCart:           bind(KindGetCart, r.getCart),
		KindUpdateCart:        bind(KindUpdateCart, r.updateCart),
		KindClearCart:         bind(KindClearCart, r.clearCart),
	}
	r.toolInfos = make([]*schema.ToolInfo, 0, len(Kinds))
	for _, k := range Kinds {
		r.toolInfos = append(r.toolInfos, r.bindings[k].info)
	}
	return r, nil
}

func (r *Registry) Infos() []*schema.ToolInfo {
	return append([]*schema.ToolInfo(nil), r.toolInfos...)
}

func (r *Registry) Execute(ctx context.Context, sessionID string, reqs []contractx.ToolRequest) []contractx.ToolResult {
	results := make([]contractx.ToolResult, 0, len(reqs))
	for _, req := range reqs {
		results = append(results, r.executeOne(ctx, sessionID, req))
	}
	return results
}

func (r *Registry) executeOne(ctx context.Context, sessionID string, req contractx.ToolRequest) (res contractx.ToolResult) {
	res.Tool = req.Tool
	logger := log.Ctx(ctx).With().Str("tool", req.Tool).Str("session_id", sessionID).Logger()
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			logger.Error().Interface("panic", p).Msg("tool panicked")
			res.Result = nil
			res.Error = fmt.Sprintf("error interno ejecutando %s", req.Tool)
		}
		r.metrics.RecordTool(req.Tool, time.Since(start), !res.Failed())
	}()

	b, ok := r.bindings[Kind(req.Tool)]
	if !ok {
		res.Error = fmt.Sprintf("Función desconocida: %s", req.Tool)
		logger.Warn().Msg("unknown tool requested")
		return res
	}

	out, err := b.run(ctx, sessionID, req.Arguments)
	if err != nil {
		res.Error = describeError(err)
		logger.Info().Err(err).Msg("tool failed")
		return res
	}
	res.Result = out
	logger.Debug().Dur("took", time.Since(start)).Msg("tool executed")
	return res
}

func (r *Registry) cartKeyFor(sessionID string) string {
	return r.cartKey + sessionID
}

// describeError turns domain errors into messages the model can narrate.
func describeError(err error) string {
	var (
		nf *cart.NotFoundError
		se *cart.InsufficientStockError
	)
	switch {
	case errors.As(err, &se):
		return fmt.Sprintf("Stock insuficiente para %s: disponible %d, solicitado %d", se.ProductName, se.Available, se.Requested)
	case errors.As(err, &nf):
		if len(nf.ProductIDs) > 0 {
			ids := make([]string, len(nf.ProductIDs))
			for i, id := range nf.ProductIDs {
				ids[i] = fmt.Sprint(id)
			}
			return "Algunos productos no existen: " + strings.Join(ids, ", ")
		}
		return "Carrito no encontrado"
	case errors.Is(err, catalog.ErrNotFound):
		return "Producto no encontrado"
	default:
		return err.Error()
	}
}
