package testhelpers

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/plutoniumship/BugenceEditorConsole-sub002/migrations"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/database"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/dialect"
)

// SQLServerImage is the container image used for client/server dialect tests.
const SQLServerImage = "mcr.microsoft.com/mssql/server:2022-latest"

const (
	sqlServerPassword = "Catalog_Test_Pw1!"
	sqlServerDatabase = "catalog_test"
)

var (
	sharedSQLServer     *CatalogDB
	sharedSQLServerOnce sync.Once
	sharedSQLServerErr  error
)

// GetSQLServerDB returns a shared SQL Server catalog for integration tests.
// The container is created once and reused across all tests in the run, so
// tests must use their own owner scopes and table names.
func GetSQLServerDB(t *testing.T) *CatalogDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedSQLServerOnce.Do(func() {
		sharedSQLServer, sharedSQLServerErr = setupSQLServer()
	})

	if sharedSQLServerErr != nil {
		t.Fatalf("Failed to setup SQL Server: %v", sharedSQLServerErr)
	}

	return sharedSQLServer
}

func setupSQLServer() (*CatalogDB, error) {
	ctx := context.Background()
	logger := zap.NewNop()

	req := testcontainers.ContainerRequest{
		Image:        SQLServerImage,
		ExposedPorts: []string{"1433/tcp"},
		Env: map[string]string{
			"ACCEPT_EULA":       "Y",
			"MSSQL_SA_PASSWORD": sqlServerPassword,
		},
		WaitingFor: wait.ForLog("SQL Server is now ready for client connections").
			WithStartupTimeout(120 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "1433")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	dsnFor := func(db string) string {
		query := url.Values{}
		query.Add("database", db)
		query.Add("encrypt", "disable")
		return (&url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword("sa", sqlServerPassword),
			Host:     fmt.Sprintf("%s:%s", host, port.Port()),
			RawQuery: query.Encode(),
		}).String()
	}

	master, err := database.NewConnection(ctx, &database.Config{Driver: "sqlserver", DSN: dsnFor("master")}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to master: %w", err)
	}
	_, err = master.ExecContext(ctx, fmt.Sprintf("IF DB_ID(N'%s') IS NULL CREATE DATABASE [%s]", sqlServerDatabase, sqlServerDatabase))
	master.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to create test database: %w", err)
	}

	d := &dialect.SQLServerDialect{}
	dsn := dsnFor(sqlServerDatabase)

	fsys, err := migrations.ForDialect(d.Name())
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(d.Name(), d.DriverName(), dsn, fsys, logger); err != nil {
		return nil, err
	}

	db, err := database.NewConnection(ctx, &database.Config{Driver: d.DriverName(), DSN: dsn, MaxOpenConns: 10}, logger)
	if err != nil {
		return nil, err
	}
	return &CatalogDB{DB: db, Dialect: d, DSN: dsn}, nil
}

