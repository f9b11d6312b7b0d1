package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"github.com/tanpawarit/Chative-Conversational-Commerce/agent/agents/orchestrator"
	"github.com/tanpawarit/Chative-Conversational-Commerce/agent/llm"
	"github.com/tanpawarit/Chative-Conversational-Commerce/agent/loop"
	"github.com/tanpawarit/Chative-Conversational-Commerce/agent/prompt"
	statex "github.com/tanpawarit/Chative-Conversational-Commerce/agent/state"
	"github.com/tanpawarit/Chative-Conversational-Commerce/agent/tool"
	"github.com/tanpawarit/Chative-Conversational-Commerce/channel/webhook"
	"github.com/tanpawarit/Chative-Conversational-Commerce/commerce/cart"
	"github.com/tanpawarit/Chative-Conversational-Commerce/commerce/catalog"
	dbx "github.com/tanpawarit/Chative-Conversational-Commerce/commerce/db"
	"github.com/tanpawarit/Chative-Conversational-Commerce/commerce/httpapi"
	configx "github.com/tanpawarit/Chative-Conversational-Commerce/pkg/config"
	_ "github.com/tanpawarit/Chative-Conversational-Commerce/pkg/logger/autoload"
	metricsx "github.com/tanpawarit/Chative-Conversational-Commerce/pkg/metrics"
	twiliox "github.com/tanpawarit/Chative-Conversational-Commerce/pkg/twilio"
)

const version = "1.0.0"

const (
	storeSQL    = "sql"
	storeMemory = "memory"
)

type AppConfig struct {
	HTTPAddr         string        `envconfig:"HTTP_ADDR" default:":3000"`
	StoreBackend     string        `envconfig:"STORE_BACKEND" default:"sql"`
	CartKeyPrefix    string        `envconfig:"CART_KEY_PREFIX" default:"whatsapp_"`
	SeedProductsFile string        `envconfig:"SEED_PRODUCTS_FILE"`
	ShutdownTimeout  time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func (c *AppConfig) Validate() error {
	switch c.StoreBackend {
	case storeSQL, storeMemory:
		return nil
	default:
		return errors.New("STORE_BACKEND must be sql or memory")
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Msg("chative commerce exited")
	}
}

func run(ctx context.Context) error {
	appCfg := configx.MustNew[AppConfig]("")
	llmCfg := configx.MustNew[llm.Config]("LLM")
	sessionCfg := configx.MustNew[statex.Config]("SESSION")
	cartOpts := configx.MustNew[cart.Options]("CART")

	metrics := metricsx.New()

	products, cartStore, closeDB, err := openCommerce(ctx, appCfg)
	if err != nil {
		return err
	}
	defer closeDB()

	if appCfg.SeedProductsFile != "" {
		n, err := catalog.SeedFromFile(ctx, products, appCfg.SeedProductsFile)
		if err != nil {
			return err
		}
		log.Info().Int("products", n).Str("file", appCfg.SeedProductsFile).Msg("catalog seeded")
	}

	engine, err := cart.NewEngine(cartStore, *cartOpts)
	if err != nil {
		return err
	}

	registry, err := tool.NewRegistry(products, engine,
		tool.WithCartKeyPrefix(appCfg.CartKeyPrefix),
		tool.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	chatModel, err := llm.NewChatModel(ctx, *llmCfg, tool.JSONSchema)
	if err != nil {
		return err
	}
	toolModel, err := chatModel.WithTools(registry.Infos())
	if err != nil {
		return err
	}
	runner, err := loop.New(toolModel, registry, loop.WithMaxRounds(llmCfg.Rounds()))
	if err != nil {
		return err
	}

	prompts, err := prompt.NewSystemRenderer(prompt.LoadPromptSet())
	if err != nil {
		return err
	}

	sessions, err := statex.NewStore(*sessionCfg)
	if err != nil {
		return err
	}
	sweeper, err := statex.NewSweeper(sessions, sessionCfg.SweepInterval, statex.OnSweep(metrics.RecordSweep))
	if err != nil {
		return err
	}
	sweeper.Start()

	orch, err := orchestrator.New(sessions, prompts, runner, orchestrator.WithMetrics(metrics))
	if err != nil {
		return err
	}

	routerOpts := []httpapi.RouterOption{httpapi.WithMetrics(metrics)}
	twilioCfg := configx.MustNew[twiliox.Config]("TWILIO")
	if sender, err := twiliox.NewClient(*twilioCfg); err != nil {
		log.Warn().Err(err).Msg("twilio not configured, inbound webhook disabled")
		routerOpts = append(routerOpts, httpapi.WithRoutes(webhook.HealthRoutes))
	} else {
		hook, err := webhook.New(orch, sender, webhook.WithMetrics(metrics))
		if err != nil {
			return err
		}
		routerOpts = append(routerOpts, httpapi.WithRoutes(func(r chi.Router) { hook.Routes(r) }))
	}

	srv := &http.Server{
		Addr:              appCfg.HTTPAddr,
		Handler:           httpapi.NewRouter(httpapi.NewHandler(products, engine, version), routerOpts...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", appCfg.HTTPAddr).Str("version", version).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), appCfg.ShutdownTimeout)
	defer cancel()
	if err := sweeper.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("sweeper stop")
	}
	log.Info().Msg("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// openCommerce returns the catalog repository and the cart store for the
// configured backend, plus a cleanup func.
func openCommerce(ctx context.Context, appCfg *AppConfig) (catalog.Repository, cart.Store, func(), error) {
	if appCfg.StoreBackend == storeMemory {
		repo := catalog.NewMemoryRepository()
		store, err := cart.NewMemoryStore(repo)
		if err != nil {
			return nil, nil, nil, err
		}
		return repo, store, func() {}, nil
	}

	dbCfg := configx.MustNew[dbx.Config]("DB")
	db, err := dbx.Open(ctx, *dbCfg)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := dbx.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	return catalog.NewBunRepository(db), cart.NewBunStore(db), closer(db), nil
}

func closer(db *bun.DB) func() {
	return func() {
		if err := db.Close(); err != nil {
			log.Warn().Err(err).Msg("close database")
		}
	}
}
