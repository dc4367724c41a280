package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/shipping-api/internal/config"
	"github.com/phrazzld/shipping-api/internal/events"
	"github.com/phrazzld/shipping-api/internal/platform/memory"
	"github.com/phrazzld/shipping-api/internal/platform/metrics"
	"github.com/phrazzld/shipping-api/internal/platform/postgres"
	"github.com/phrazzld/shipping-api/internal/query"
	"github.com/phrazzld/shipping-api/internal/service"
	"github.com/phrazzld/shipping-api/internal/store"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// db is nil for the memory driver.
	db    *sql.DB
	store store.Store

	emitter  *events.InMemoryEventEmitter
	metrics  *metrics.Metrics
	shipping *service.Shipping
}

// newApplication opens the configured store and creates the services on it.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		app.db = db
		app.store = postgres.NewStore(db, logger)
	case config.DriverMemory:
		logger.Warn("using the in-memory store, data is lost on shutdown")
		app.store = memory.NewStore(logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	app.emitter = events.NewInMemoryEventEmitter(logger)
	app.emitter.RegisterHandler(events.NewAuditLogHandler(logger))
	if cfg.Metrics.Enabled {
		app.metrics = metrics.New()
		app.emitter.RegisterHandler(app.metrics)
	}

	var err error
	app.shipping, err = service.NewShipping(app.store, service.Options{
		Limits: query.Limits{
			MaxTake:     cfg.Query.MaxTake,
			DefaultTake: cfg.Query.DefaultTake,
		},
		Events: app.emitter,
		Logger: logger,
	})
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create shipping services: %w", err)
	}

	logger.Info("application initialized successfully")
	return app, nil
}

// migrate runs a migration command. It requires the postgres driver.
func (app *application) migrate(ctx context.Context, command string) error {
	if app.db == nil {
		return fmt.Errorf("migrations require the %s driver", config.DriverPostgres)
	}
	return postgres.Migrate(ctx, app.db, command, app.logger)
}

// Run serves HTTP until ctx is cancelled.
func (app *application) Run(ctx context.Context) error {
	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup releases the store. The postgres store closes its *sql.DB.
func (app *application) cleanup() {
	if app.store != nil {
		if err := app.store.Close(); err != nil {
			app.logger.Error("error closing store", slog.String("error", err.Error()))
		}
		app.store = nil
	}
	app.logger.Info("application shutdown completed")
}
