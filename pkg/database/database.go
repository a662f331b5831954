package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/logging"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/retry"
)

// DB wraps the catalog database handle.
type DB struct {
	*sql.DB
	Driver string
}

// Config holds database connection configuration.
type Config struct {
	Driver          string // database/sql driver name
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// InitStatements run once after the pool opens (SQLite pragmas).
	InitStatements []string
	// SingleConnection pins the pool to one connection so InitStatements stick
	// and SQLite sees a single writer.
	SingleConnection bool
}

// NewConnection opens the pool, applies init statements and pings, retrying
// connection-level failures while the server comes up.
func NewConnection(ctx context.Context, cfg *Config, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.SingleConnection {
		db.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		lifetime := cfg.ConnMaxLifetime
		if lifetime == 0 {
			lifetime = time.Hour
		}
		db.SetConnMaxLifetime(lifetime)
	}

	err = retry.DoIf(ctx, retry.DefaultConfig(), retry.IsRetryable, func() error {
		return db.PingContext(ctx)
	})
	if err != nil {
		db.Close()
		logger.Error("Database ping failed",
			zap.String("driver", cfg.Driver),
			zap.String("dsn", logging.SanitizeConnectionString(cfg.DSN)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, stmt := range cfg.InitStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init statement %q: %w", stmt, err)
		}
	}

	return &DB{DB: db, Driver: cfg.Driver}, nil
}
