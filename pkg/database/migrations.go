package database

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/database/sqlserver"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// RunMigrations applies the catalog migrations found in fsys (one directory of
// NNN_name.up.sql files for the given dialect).
// It is idempotent and safe to call multiple times - only pending migrations will be executed.
//
// The migrate driver closes the handle it is given, so a dedicated connection
// is opened here rather than borrowing the service pool.
func RunMigrations(dialectName, driverName, dsn string, fsys fs.FS, logger *zap.Logger) error {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}

	var driver migratedb.Driver
	switch dialectName {
	case "sqlite":
		driver, err = sqlite.WithInstance(db, &sqlite.Config{})
	case "sqlserver":
		driver, err = sqlserver.WithInstance(db, &sqlserver.Config{})
	default:
		err = fmt.Errorf("no migration driver for dialect %q", dialectName)
	}
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(fsys, ".")
	if err != nil {
		driver.Close()
		return fmt.Errorf("failed to open migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, dialectName, driver)
	if err != nil {
		source.Close()
		driver.Close()
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Warn("Failed to close migration source", zap.Error(srcErr))
		}
		if dbErr != nil {
			logger.Warn("Failed to close migration database", zap.Error(dbErr))
		}
	}()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("No migrations to apply (database up-to-date)", zap.String("dialect", dialectName))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	newVersion, _, _ := m.Version()
	logger.Info("Applied migrations successfully",
		zap.String("dialect", dialectName),
		zap.Uint("version", newVersion))
	return nil
}
