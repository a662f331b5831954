package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/plutoniumship/BugenceEditorConsole-sub002/migrations"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/catalog"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/config"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/database"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/dialect"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/handlers"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/logging"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/middleware"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Engine stopped", zap.String("error", logging.SanitizeError(err)))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := dialect.New(cfg.Database.Dialect)
	if err != nil {
		return err
	}
	dsn := cfg.Database.DSN()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("dialect", d.Name()),
		zap.String("dsn", logging.SanitizeConnectionString(dsn)))

	if cfg.Catalog.MigrateOnStart {
		fsys, err := migrations.ForDialect(d.Name())
		if err != nil {
			return err
		}
		if err := database.RunMigrations(d.Name(), d.DriverName(), dsn, fsys, logger); err != nil {
			return err
		}
	}

	db, err := database.NewConnection(ctx, &database.Config{
		Driver:           d.DriverName(),
		DSN:              dsn,
		MaxOpenConns:     cfg.Database.MaxOpenConns,
		InitStatements:   d.InitStatements(),
		SingleConnection: d.Name() == dialect.NameSQLite,
	}, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	registry, err := catalog.DefaultRegistry()
	if err != nil {
		return fmt.Errorf("load system table registry: %w", err)
	}

	engine := services.NewEngine(db, d, registry, services.EngineOptions{
		Introspection: services.IntrospectionConfig{
			MaxRetries: cfg.Introspection.MaxRetries,
			RetryDelay: cfg.Introspection.RetryDelay(),
		},
		DefaultAuditLimit: cfg.Audit.DefaultLimit,
	}, logger)

	if err := engine.Maintain(ctx); err != nil {
		logger.Warn("Startup catalog maintenance failed", zap.String("error", logging.SanitizeError(err)))
	}

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, db, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting table engine", zap.String("addr", server.Addr), zap.String("version", cfg.Version))
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
