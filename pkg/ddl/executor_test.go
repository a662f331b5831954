package ddl

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/apperrors"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/database"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/dialect"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/models"
)

func newSQLiteExecutor(t *testing.T) (*Executor, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "ddl.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return NewExecutor(db, &dialect.SQLiteDialect{}, zap.NewNop()), db
}

func TestColumnDefinition(t *testing.T) {
	sqlite := NewExecutor(nil, &dialect.SQLiteDialect{}, zap.NewNop())
	mssql := NewExecutor(nil, &dialect.SQLServerDialect{}, zap.NewNop())

	col := models.ColumnSpec{Name: "Sku", DataType: models.ColumnTypeNVarChar, Length: models.IntPtr(50), Nullable: true}
	def, err := sqlite.ColumnDefinition(col, true)
	require.NoError(t, err)
	assert.Equal(t, `"Sku" NVARCHAR(50)`, def)

	def, err = mssql.ColumnDefinition(col, true)
	require.NoError(t, err)
	assert.Equal(t, `[Sku] NVARCHAR(50) NULL`, def)

	qty := models.ColumnSpec{Name: "Qty", DataType: models.ColumnTypeInt}
	def, err = mssql.ColumnDefinition(qty, true)
	require.NoError(t, err)
	assert.Equal(t, `[Qty] INT NOT NULL DEFAULT 0`, def)

	def, err = sqlite.ColumnDefinition(qty, false)
	require.NoError(t, err)
	assert.Equal(t, `"Qty" INTEGER NOT NULL`, def)

	_, err = sqlite.ColumnDefinition(models.ColumnSpec{Name: "Bad", DataType: models.ColumnTypeNVarChar}, false)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestCreateAddAndDrop_SQLite(t *testing.T) {
	ctx := context.Background()
	e, db := newSQLiteExecutor(t)

	require.NoError(t, e.CreateTable(ctx, "Widgets", []models.ColumnSpec{
		{Name: "Sku", DataType: models.ColumnTypeNVarChar, Length: models.IntPtr(50), Nullable: true},
	}))

	exists, err := e.TableExists(ctx, "Widgets")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = db.ExecContext(ctx, `INSERT INTO "Widgets" ("Sku") VALUES ('A')`)
	require.NoError(t, err)

	// NOT NULL column on a populated table gets a constant default.
	require.NoError(t, e.AddColumn(ctx, "Widgets", models.ColumnSpec{Name: "Qty", DataType: models.ColumnTypeInt}))
	var qty int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT "Qty" FROM "Widgets"`).Scan(&qty))
	assert.Zero(t, qty)

	err = e.CreateTable(ctx, "widgets", []models.ColumnSpec{{Name: "X", DataType: models.ColumnTypeInt, Nullable: true}})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	require.NoError(t, e.RenameTable(ctx, "Widgets", "Gadgets"))
	exists, err = e.TableExists(ctx, "Gadgets")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, e.DropTable(ctx, "Gadgets"))
	require.NoError(t, e.DropTable(ctx, "Gadgets"), "dropping a missing table is not an error")
}

func TestUnsupportedOnSQLite(t *testing.T) {
	ctx := context.Background()
	e, _ := newSQLiteExecutor(t)
	require.NoError(t, e.CreateTable(ctx, "Widgets", []models.ColumnSpec{
		{Name: "Sku", DataType: models.ColumnTypeNVarChar, Length: models.IntPtr(50), Nullable: true},
	}))

	assert.ErrorIs(t, e.DropColumn(ctx, "Widgets", "Sku"), apperrors.ErrUnsupported)
	assert.ErrorIs(t, e.RenameColumn(ctx, "Widgets", "Sku", "Code"), apperrors.ErrUnsupported)
}

func TestDDLJoinsTransaction(t *testing.T) {
	ctx := context.Background()
	e, db := newSQLiteExecutor(t)
	wrapped := &database.DB{DB: db, Driver: "sqlite"}

	err := wrapped.InTx(ctx, func(ctx context.Context) error {
		if err := e.CreateTable(ctx, "Temp", []models.ColumnSpec{{Name: "A", DataType: models.ColumnTypeInt, Nullable: true}}); err != nil {
			return err
		}
		return apperrors.Conflictf("abort")
	})
	require.ErrorIs(t, err, apperrors.ErrConflict)

	exists, err := e.TableExists(ctx, "Temp")
	require.NoError(t, err)
	assert.False(t, exists, "rolled back DDL must not leave a table behind")
}
