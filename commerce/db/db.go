package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/tanpawarit/Chative-Conversational-Commerce/commerce/cart"
	"github.com/tanpawarit/Chative-Conversational-Commerce/commerce/catalog"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Driver       string        `envconfig:"DRIVER" default:"postgres"`
	URL          string        `envconfig:"URL"`
	MaxOpenConns int           `envconfig:"MAX_OPEN_CONNS" split_words:"true" default:"10"`
	Timeout      time.Duration `envconfig:"TIMEOUT" default:"5s"`
	LogQueries   bool          `envconfig:"LOG_QUERIES" split_words:"true" default:"false"`
}

func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Driver)) {
	case DriverPostgres:
		if strings.TrimSpace(c.URL) == "" {
			return errors.New("db url is required for the postgres driver")
		}
	case DriverSQLite:
		if strings.TrimSpace(c.URL) == "" {
			c.URL = "file:chative.db?cache=shared&_fk=1"
		}
	default:
		return fmt.Errorf("unsupported db driver %q", c.Driver)
	}
	return nil
}

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg Config) (*bun.DB, error) {
	var db *bun.DB
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverSQLite:
		sqldb, err := sql.Open("sqlite3", cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// One connection keeps in-memory databases shared and writes serialised.
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	default:
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.URL)}
		if cfg.Timeout > 0 {
			opts = append(opts, pgdriver.WithTimeout(cfg.Timeout))
		}
		sqldb := sql.OpenDB(pgdriver.NewConnector(opts...))
		if cfg.MaxOpenConns > 0 {
			sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	}

	if cfg.LogQueries {
		db.AddQueryHook(queryLogger{})
	}

	pingCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", db.Dialect().Name(), err)
	}
	return db, nil
}

// Migrate creates the catalog and cart tables when they are missing.
func Migrate(ctx context.Context, db *bun.DB) error {
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := catalog.CreateSchema(ctx, tx); err != nil {
			return err
		}
		return cart.CreateSchema(ctx, tx)
	})
}

type queryLogger struct{}

func (queryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (queryLogger) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	ev := log.Ctx(ctx).Debug()
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		ev = log.Ctx(ctx).Warn().Err(event.Err)
	}
	ev.Str("operation", event.Operation()).
		Dur("took", time.Since(event.StartTime)).
		Str("query", event.Query).
		Msg("sql query")
}
