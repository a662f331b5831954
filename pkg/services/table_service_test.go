package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/apperrors"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/models"
)

func TestTableService_CreateTable(t *testing.T) {
	e := newEngine(t)
	table := e.createWidgets()

	assert.Equal(t, "Widgets", table.Name)
	assert.Equal(t, ownerID, table.OwnerScope)
	require.Len(t, table.Columns, 1)
	assert.Equal(t, table.CreatedAt, table.Columns[0].CreatedAt, "one timestamp per operation")

	exists, err := e.tables.TableExists(context.Background(), "Widgets")
	require.NoError(t, err)
	assert.True(t, exists)

	live, err := e.cdb.Dialect.IntrospectColumns(context.Background(), e.cdb.DB, "Widgets")
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, models.IdentityColumnName, live[0].Name, "DGUID is prepended")
	assert.Equal(t, "Sku", live[1].Name)
}

func TestTableService_CreateTable_Validation(t *testing.T) {
	e := newEngine(t)
	ctx := asOwner()

	tests := []struct {
		name    string
		table   string
		columns []models.ColumnSpec
		kind    apperrors.Kind
	}{
		{"bad table name", "1table", []models.ColumnSpec{nvarchar("Sku", 50)}, apperrors.KindValidation},
		{"table named DGUID", "dguid", []models.ColumnSpec{nvarchar("Sku", 50)}, apperrors.KindValidation},
		{"no columns", "Widgets", nil, apperrors.KindValidation},
		{"only deleted columns", "Widgets", []models.ColumnSpec{{Name: "Sku", DataType: models.ColumnTypeInt, Deleted: true}}, apperrors.KindValidation},
		{"duplicate column ignoring case", "Widgets", []models.ColumnSpec{nvarchar("Sku", 50), intColumn("SKU")}, apperrors.KindValidation},
		{"column named DGUID", "Widgets", []models.ColumnSpec{intColumn("DGUID")}, apperrors.KindValidation},
		{"nvarchar length out of range", "Widgets", []models.ColumnSpec{nvarchar("Sku", 4001)}, apperrors.KindValidation},
		{"decimal scale above precision", "Widgets", []models.ColumnSpec{{Name: "Price", DataType: models.ColumnTypeDecimal, Precision: models.IntPtr(10), Scale: models.IntPtr(11)}}, apperrors.KindValidation},
		{"reserved system name", "Pages", []models.ColumnSpec{nvarchar("Title", 50)}, apperrors.KindConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.tables.CreateTable(ctx, ownerID, tt.table, tt.columns)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperrors.KindOf(err))
		})
	}

	exists, err := e.tables.TableExists(context.Background(), "Widgets")
	require.NoError(t, err)
	assert.False(t, exists, "validation failures issue no DDL")
}

func TestTableService_CreateTable_Conflict(t *testing.T) {
	e := newEngine(t)
	e.createWidgets()

	_, err := e.tables.CreateTable(asOwner(), ownerID, "widgets", []models.ColumnSpec{intColumn("Qty")})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	tables, err := e.tables.ListTables(asOwner(), ownerID)
	require.NoError(t, err)
	assert.Len(t, tables, 1)
}

func TestTableService_CreateTable_Authorization(t *testing.T) {
	e := newEngine(t)

	_, err := e.tables.CreateTable(context.Background(), ownerID, "Widgets", []models.ColumnSpec{nvarchar("Sku", 50)})
	assert.ErrorIs(t, err, apperrors.ErrForbidden, "no actor")

	_, err = e.tables.CreateTable(asUser(viewerID), ownerID, "Widgets", []models.ColumnSpec{nvarchar("Sku", 50)})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	table, err := e.tables.CreateTable(asUser(adminID), ownerID, "Widgets", []models.ColumnSpec{nvarchar("Sku", 50)})
	require.NoError(t, err)
	assert.Equal(t, ownerID, table.OwnerScope)
}

func TestTableService_AlterTable_AddColumns(t *testing.T) {
	e := newEngine(t)
	table := e.createWidgets()
	e.exec(`INSERT INTO "Widgets" ("Sku") VALUES ('A-1')`)

	required := models.ColumnSpec{Name: "Qty", DataType: models.ColumnTypeInt}
	altered, err := e.tables.AlterTable(asOwner(), ownerID, table.ID, "", []models.ColumnSpec{
		existing(table.Columns[0]),
		required,
		nvarchar("Notes", 200),
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Sku", "Qty", "Notes"}, columnNames(altered.Columns))

	var qty int
	require.NoError(t, e.cdb.DB.QueryRowContext(context.Background(), `SELECT "Qty" FROM "Widgets"`).Scan(&qty))
	assert.Zero(t, qty, "existing rows receive the zero default")
}

func TestTableService_AlterTable_RenameTable(t *testing.T) {
	e := newEngine(t)
	table := e.createWidgets()

	altered, err := e.tables.AlterTable(asOwner(), ownerID, table.ID, "Gadgets", []models.ColumnSpec{existing(table.Columns[0])})
	require.NoError(t, err)
	assert.Equal(t, "Gadgets", altered.Name)
	assert.Equal(t, table.ID, altered.ID)

	ctx := context.Background()
	oldExists, err := e.tables.TableExists(ctx, "Widgets")
	require.NoError(t, err)
	newExists, err := e.tables.TableExists(ctx, "Gadgets")
	require.NoError(t, err)
	assert.False(t, oldExists)
	assert.True(t, newExists)

	other, err := e.tables.CreateTable(asOwner(), ownerID, "Widgets", []models.ColumnSpec{intColumn("Qty")})
	require.NoError(t, err)
	_, err = e.tables.AlterTable(asOwner(), ownerID, other.ID, "Gadgets", nil)
	assert.ErrorIs(t, err, apperrors.ErrConflict, "rename target occupied")
}

func TestTableService_AlterTable_Rejections(t *testing.T) {
	e := newEngine(t)
	table := e.createWidgets()
	sku := table.Columns[0]

	typeChange := existing(sku)
	typeChange.DataType = models.ColumnTypeInt
	typeChange.Length = nil

	sizeChange := existing(sku)
	sizeChange.Length = models.IntPtr(80)

	deleted := existing(sku)
	deleted.Deleted = true

	renamed := existing(sku)
	renamed.Name = "StockCode"

	tests := []struct {
		name    string
		newName string
		columns []models.ColumnSpec
		kind    apperrors.Kind
	}{
		{"type change", "", []models.ColumnSpec{typeChange}, apperrors.KindValidation},
		{"length change", "", []models.ColumnSpec{sizeChange}, apperrors.KindValidation},
		{"drop on sqlite", "Gadgets", []models.ColumnSpec{deleted}, apperrors.KindUnsupported},
		{"rename column on sqlite", "", []models.ColumnSpec{renamed}, apperrors.KindUnsupported},
		{"unknown original column", "", []models.ColumnSpec{{OriginalName: "Nope", Name: "Nope", DataType: models.ColumnTypeInt}}, apperrors.KindNotFound},
		{"new column collides", "", []models.ColumnSpec{intColumn("sku")}, apperrors.KindValidation},
		{"bad new table name", "9lives", nil, apperrors.KindValidation},
		{"reserved new table name", "Templates", nil, apperrors.KindConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.tables.AlterTable(asOwner(), ownerID, table.ID, tt.newName, tt.columns)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperrors.KindOf(err))
		})
	}

	got, err := e.tables.GetTable(asOwner(), ownerID, table.ID)
	require.NoError(t, err)
	assert.Equal(t, "Widgets", got.Name, "a rejected alter leaves the table untouched")
	assert.Equal(t, []string{"Sku"}, columnNames(got.Columns))
}

func TestTableService_AlterTable_SkipsDiscardedNewColumns(t *testing.T) {
	e := newEngine(t)
	table := e.createWidgets()
	ghost := intColumn("Ghost")
	ghost.Deleted = true

	altered, err := e.tables.AlterTable(asOwner(), ownerID, table.ID, "", []models.ColumnSpec{existing(table.Columns[0]), ghost})
	require.NoError(t, err)
	assert.Equal(t, []string{"Sku"}, columnNames(altered.Columns))

	live, err := e.cdb.Dialect.IntrospectColumns(context.Background(), e.cdb.DB.DB, "Widgets")
	require.NoError(t, err)
	for _, c := range live {
		assert.NotEqual(t, "Ghost", c.Name, "a discarded column never reaches the physical table")
	}
}

func TestTableService_AlterTable_CaseOnlyChangesAreNoOps(t *testing.T) {
	e := newEngine(t)
	table := e.createWidgets()

	spec := existing(table.Columns[0])
	spec.Name = "SKU"
	altered, err := e.tables.AlterTable(asOwner(), ownerID, table.ID, "WIDGETS", []models.ColumnSpec{spec})
	require.NoError(t, err)
	assert.Equal(t, "Widgets", altered.Name)
	assert.Equal(t, []string{"Sku"}, columnNames(altered.Columns))
}

func TestTableService_AlterTable_RequiresManage(t *testing.T) {
	e := newEngine(t)
	table := e.createWidgets()

	_, err := e.tables.AlterTable(asUser(viewerID), ownerID, table.ID, "", []models.ColumnSpec{intColumn("Qty")})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	// Team admins default to Manage.
	_, err = e.tables.AlterTable(asUser(adminID), ownerID, table.ID, "", []models.ColumnSpec{intColumn("Qty")})
	assert.NoError(t, err)
}

func TestTableService_OwnerFlagIsBoundToScope(t *testing.T) {
	e := newEngine(t)
	table := e.createWidgets()

	foreign := models.WithActor(context.Background(), models.Actor{UserID: "owner-2", OwnerScope: "owner-2", IsOwner: true})
	_, err := e.tables.GetTable(foreign, ownerID, table.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	err = e.tables.DeleteTable(foreign, ownerID, table.ID)
	assert.Error(t, err)

	delegate := models.WithActor(context.Background(), models.Actor{UserID: "owner-delegate", OwnerScope: ownerID, IsOwner: true})
	got, err := e.tables.GetTable(delegate, ownerID, table.ID)
	require.NoError(t, err)
	assert.Equal(t, table.ID, got.ID)
}

func TestTableService_DeleteTable_Cascade(t *testing.T) {
	e := newEngine(t)
	table := e.createWidgets()
	e.exec(`INSERT INTO "Widgets" ("Sku") VALUES ('A-1'), ('A-2')`)

	_, err := e.sync.SyncColumns(asOwner(), ownerID, table.ID)
	require.NoError(t, err)
	_, err = e.perms.SavePermissions(asOwner(), ownerID, table.ID, []models.PermissionWrite{{SubjectID: viewerID, Level: models.AccessManage}})
	require.NoError(t, err)

	ctx := context.Background()
	n, err := e.records.CountByTable(ctx, ownerID, table.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	require.NoError(t, e.tables.DeleteTable(asOwner(), ownerID, table.ID))

	_, err = e.tables.GetTable(asOwner(), ownerID, table.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	cols, err := e.tableRepo.ListColumns(ctx, ownerID, table.ID)
	require.NoError(t, err)
	assert.Empty(t, cols)

	n, err = e.records.CountByTable(ctx, ownerID, table.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	grants, err := e.grants.ListByTable(ctx, ownerID, table.ID)
	require.NoError(t, err)
	assert.Empty(t, grants)

	exists, err := e.tables.TableExists(ctx, "Widgets")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestTableService_Visibility(t *testing.T) {
	e := newEngine(t)
	table := e.createWidgets()

	for _, id := range []string{ownerID, adminID, viewerID} {
		tables, err := e.tables.ListTables(asUser(id), ownerID)
		require.NoError(t, err)
		assert.Len(t, tables, 1, "roster members and the owner see the table")
	}

	tables, err := e.tables.ListTables(asUser(outsider), ownerID)
	require.NoError(t, err)
	assert.Empty(t, tables)

	_, err = e.tables.GetTable(asUser(outsider), ownerID, table.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = e.tables.GetTable(asOwner(), "owner-2", table.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound, "other scopes cannot see the table")

	_, err = e.tables.GetTable(asOwner(), ownerID, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestTableService_SystemTables(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	all, err := e.tables.LoadAllTables(ctx, ownerID)
	require.NoError(t, err)
	assert.Empty(t, all, "unprovisioned system tables are absent, not errors")

	e.exec(`CREATE TABLE "Pages" ("DGUID" TEXT, "Title" TEXT)`)
	pagesID := e.registry.DeriveID("Pages")

	all, err = e.tables.LoadAllTables(ctx, ownerID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, pagesID, all[0].ID)
	assert.True(t, all[0].IsSystem)
	assert.Equal(t, "Page", all[0].RecordNoun())

	_, err = e.tables.AlterTable(asOwner(), ownerID, pagesID, "", []models.ColumnSpec{intColumn("Qty")})
	assert.ErrorIs(t, err, apperrors.ErrSystemTableReadOnly)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	err = e.tables.DeleteTable(asOwner(), ownerID, pagesID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}
