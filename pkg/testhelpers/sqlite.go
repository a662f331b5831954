package testhelpers

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/plutoniumship/BugenceEditorConsole-sub002/migrations"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/database"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/dialect"
)

// CatalogDB is a catalog database with migrations applied, plus the dialect
// it was opened with.
type CatalogDB struct {
	DB      *database.DB
	Dialect dialect.Dialect
	DSN     string
}

// NewSQLiteDB creates a fresh file-backed SQLite catalog in t.TempDir().
// Each call returns an isolated database; it is closed when the test ends.
func NewSQLiteDB(t *testing.T) *CatalogDB {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()
	d := &dialect.SQLiteDialect{}

	dsn := "file:" + filepath.Join(t.TempDir(), "catalog.db") + "?_pragma=busy_timeout(5000)"

	fsys, err := migrations.ForDialect(d.Name())
	if err != nil {
		t.Fatalf("failed to load migrations: %v", err)
	}
	if err := database.RunMigrations(d.Name(), d.DriverName(), dsn, fsys, logger); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	db, err := database.NewConnection(ctx, &database.Config{
		Driver:           d.DriverName(),
		DSN:              dsn,
		InitStatements:   d.InitStatements(),
		SingleConnection: true,
	}, logger)
	if err != nil {
		t.Fatalf("failed to open catalog database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return &CatalogDB{DB: db, Dialect: d, DSN: dsn}
}
