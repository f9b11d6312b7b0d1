package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	metricsx "github.com/tanpawarit/Chative-Conversational-Commerce/pkg/metrics"
)

type RouterOption func(*routerConfig)

type routerConfig struct {
	metrics *metricsx.Metrics
	extra   []func(chi.Router)
}

// WithMetrics records request metrics and serves them at /metrics.
func WithMetrics(m *metricsx.Metrics) RouterOption {
	return func(c *routerConfig) { c.metrics = m }
}

// WithRoutes lets other packages, such as the channel webhook, register
// routes on the same router.
func WithRoutes(fn func(r chi.Router)) RouterOption {
	return func(c *routerConfig) {
		if fn != nil {
			c.extra = append(c.extra, fn)
		}
	}
}

func NewRouter(h *Handler, opts ...RouterOption) http.Handler {
	var cfg routerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(cfg.metrics))
	r.Use(middleware.Recoverer)

	r.Get("/", h.Health)

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Get("/{id}", h.GetProduct)
	})

	r.Route("/carts", func(r chi.Router) {
		r.Post("/", h.CreateCart)
		r.Get("/{id}", h.GetCart)
		r.Patch("/{id}", h.UpdateCart)
		r.Delete("/{id}", h.DeleteCart)
	})

	if cfg.metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.metrics.Handler())
	}
	for _, fn := range cfg.extra {
		fn(r)
	}

	return r
}

// accessLog puts a request-scoped zerolog logger on the context and logs one
// line per request.
func accessLog(m *metricsx.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			logger := log.Logger.With().
				Str("request_id", middleware.GetReqID(r.Context())).
				Logger()
			r = r.WithContext(logger.WithContext(r.Context()))

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			took := time.Since(start)
			m.RecordHTTP(r.Method, route, status, took)

			logger.Info().
				Str("method", r.Method).
				Str("route", route).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("took", took).
				Msg("http request")
		})
	}
}
