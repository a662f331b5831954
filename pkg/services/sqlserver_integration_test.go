//go:build integration

package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/models"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/testhelpers"
)

// uniqueName keeps physical tables apart inside the shared container.
func uniqueName(prefix string) string {
	return prefix + "_" + uuid.NewString()[:8]
}

func TestSQLServer_AlterRenamesAndDropsColumns(t *testing.T) {
	e := newEngineOn(t, testhelpers.GetSQLServerDB(t))
	name := uniqueName("Widgets")

	table, err := e.tables.CreateTable(asOwner(), ownerID, name, []models.ColumnSpec{
		nvarchar("Sku", 50),
		intColumn("Qty"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.tables.DeleteTable(asOwner(), ownerID, table.ID) })

	sku, _ := table.Column("Sku")
	qty, _ := table.Column("Qty")
	renamed := existing(*sku)
	renamed.Name = "StockCode"
	dropped := existing(*qty)
	dropped.Deleted = true

	newName := uniqueName("Gadgets")
	altered, err := e.tables.AlterTable(asOwner(), ownerID, table.ID, newName, []models.ColumnSpec{
		renamed,
		dropped,
		{Name: "Price", DataType: models.ColumnTypeDecimal, Precision: models.IntPtr(10), Scale: models.IntPtr(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, newName, altered.Name)
	assert.ElementsMatch(t, []string{"StockCode", "Price"}, columnNames(altered.Columns))

	code, ok := altered.Column("StockCode")
	require.True(t, ok)
	assert.Equal(t, sku.ID, code.ID, "a renamed column keeps its identity")

	live, err := e.cdb.Dialect.IntrospectColumns(context.Background(), e.cdb.DB, newName)
	require.NoError(t, err)
	liveNames := make([]string, 0, len(live))
	for _, c := range live {
		liveNames = append(liveNames, c.Name)
	}
	assert.ElementsMatch(t, []string{models.IdentityColumnName, "StockCode", "Price"}, liveNames)
}

func TestSQLServer_SyncIsIdempotent(t *testing.T) {
	e := newEngineOn(t, testhelpers.GetSQLServerDB(t))
	name := uniqueName("Orders")

	table, err := e.tables.CreateTable(asOwner(), ownerID, name, []models.ColumnSpec{nvarchar("Ref", 20)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.tables.DeleteTable(asOwner(), ownerID, table.ID) })

	e.exec(fmt.Sprintf("INSERT INTO [%s] ([Ref]) VALUES ('a'), ('b')", name))
	e.exec(fmt.Sprintf("ALTER TABLE [%s] ADD [Placed] DATETIME2 NULL", name))

	first, err := e.sync.SyncColumns(asOwner(), ownerID, table.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Ref", "Placed"}, columnNames(first))

	second, err := e.sync.SyncColumns(asOwner(), ownerID, table.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	n, err := e.records.CountByTable(context.Background(), ownerID, table.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
