package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/catalog"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/models"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/repositories"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/testhelpers"
)

const (
	ownerID  = "owner-1"
	adminID  = "user-admin"
	viewerID = "user-viewer"
	editorID = "user-editor"
	outsider = "user-outsider"
)

// engine wires every service against one catalog database.
type engine struct {
	t         *testing.T
	cdb       *testhelpers.CatalogDB
	registry  *catalog.Registry
	tableRepo repositories.TableRepository
	records   repositories.RecordRepository
	grants    repositories.PermissionRepository
	audit     repositories.PermissionAuditRepository
	roster    repositories.TeamMemberRepository
	built     *Engine
	tables    TableService
	sync      SchemaSyncService
	perms     PermissionService
	forms     FormService
}

// newEngine builds an engine on a fresh SQLite catalog.
func newEngine(t *testing.T) *engine {
	t.Helper()
	return newEngineOn(t, testhelpers.NewSQLiteDB(t))
}

func newEngineOn(t *testing.T, cdb *testhelpers.CatalogDB) *engine {
	t.Helper()
	logger := zap.NewNop()

	registry, err := catalog.DefaultRegistry()
	require.NoError(t, err)

	db := cdb.DB
	built := NewEngine(db, cdb.Dialect, registry, EngineOptions{
		Introspection:     IntrospectionConfig{MaxRetries: 3, RetryDelay: 0},
		DefaultAuditLimit: 100,
	}, logger)

	e := &engine{
		t:         t,
		cdb:       cdb,
		registry:  registry,
		tableRepo: repositories.NewTableRepository(db.DB, cdb.Dialect),
		records:   repositories.NewRecordRepository(db.DB, cdb.Dialect),
		grants:    repositories.NewPermissionRepository(db.DB, cdb.Dialect),
		audit:     repositories.NewPermissionAuditRepository(db.DB, cdb.Dialect),
		roster:    repositories.NewTeamMemberRepository(db.DB, cdb.Dialect),
		built:     built,
		tables:    built.Tables,
		sync:      built.Sync,
		perms:     built.Permissions,
		forms:     built.Forms,
	}

	e.addMember(adminID, "Ada Admin", models.TeamRoleAdmin)
	e.addMember(viewerID, "Vic Viewer", models.TeamRoleViewer)
	e.addMember(editorID, "Eve Editor", models.TeamRoleEditor)
	return e
}

func (e *engine) addMember(userID, name, role string) {
	e.t.Helper()
	require.NoError(e.t, e.roster.Upsert(context.Background(), &models.RosterMember{
		OwnerScope:  ownerID,
		UserID:      userID,
		DisplayName: name,
		Email:       userID + "@example.com",
		Role:        role,
		Active:      true,
	}))
}

func (e *engine) exec(query string, args ...any) {
	e.t.Helper()
	_, err := e.cdb.DB.ExecContext(context.Background(), query, args...)
	require.NoError(e.t, err)
}

// recordDGUIDs lists the registered DGUIDs of a table in insertion order.
func (e *engine) recordDGUIDs(tableID uuid.UUID) []string {
	e.t.Helper()
	rows, err := e.cdb.DB.QueryContext(context.Background(), e.cdb.Dialect.Rebind(
		`SELECT DGUID FROM ApplicationRecord WHERE OwnerScope = ? AND TableId = ? ORDER BY RecordId`),
		ownerID, tableID.String())
	require.NoError(e.t, err)
	defer rows.Close()
	var dguids []string
	for rows.Next() {
		var dguid string
		require.NoError(e.t, rows.Scan(&dguid))
		dguids = append(dguids, dguid)
	}
	require.NoError(e.t, rows.Err())
	return dguids
}

func asOwner() context.Context {
	return models.WithActor(context.Background(), models.Actor{UserID: ownerID, DisplayName: "Olivia Owner", OwnerScope: ownerID, IsOwner: true})
}

func asUser(id string) context.Context {
	return models.WithActor(context.Background(), models.Actor{UserID: id, DisplayName: id})
}

func nvarchar(name string, length int) models.ColumnSpec {
	return models.ColumnSpec{Name: name, DataType: models.ColumnTypeNVarChar, Length: models.IntPtr(length), Nullable: true}
}

func intColumn(name string) models.ColumnSpec {
	return models.ColumnSpec{Name: name, DataType: models.ColumnTypeInt, Nullable: true}
}

func existing(col models.ApplicationTableColumn) models.ColumnSpec {
	return models.ColumnSpec{
		OriginalName: col.Name,
		Name:         col.Name,
		DataType:     col.DataType,
		Length:       col.Length,
		Precision:    col.Precision,
		Scale:        col.Scale,
		Nullable:     col.Nullable,
	}
}

// createWidgets creates Widgets(Sku nvarchar(50)) as the owner.
func (e *engine) createWidgets() *models.ApplicationTable {
	e.t.Helper()
	table, err := e.tables.CreateTable(asOwner(), ownerID, "Widgets", []models.ColumnSpec{nvarchar("Sku", 50)})
	require.NoError(e.t, err)
	return table
}

func columnNames(cols []models.ApplicationTableColumn) []string {
	names := make([]string, 0, len(cols))
	for _, c := range cols {
		names = append(names, c.Name)
	}
	return names
}
