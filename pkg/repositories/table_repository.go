package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/apperrors"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/database"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/dialect"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/models"
)

// TableRepository provides data access for the table and column catalog.
// Every method is scoped to one owner; rows of other tenants are invisible.
type TableRepository interface {
	// Create inserts the table row and one row per column.
	Create(ctx context.Context, table *models.ApplicationTable) error

	// GetByID returns the table with its columns, or an ErrNotFound error.
	GetByID(ctx context.Context, ownerScope string, id uuid.UUID) (*models.ApplicationTable, error)

	// ListByScope returns every catalog table of the owner with columns, ordered by name.
	ListByScope(ctx context.Context, ownerScope string) ([]*models.ApplicationTable, error)

	// ListByName returns the catalog rows carrying name (case-insensitive).
	ListByName(ctx context.Context, ownerScope, name string) ([]*models.ApplicationTable, error)

	// Rename updates the recorded physical name.
	Rename(ctx context.Context, ownerScope string, id uuid.UUID, name string) error

	// Delete removes the table row together with its column rows.
	Delete(ctx context.Context, ownerScope string, id uuid.UUID) error

	ListColumns(ctx context.Context, ownerScope string, tableID uuid.UUID) ([]models.ApplicationTableColumn, error)
	CreateColumn(ctx context.Context, ownerScope string, col *models.ApplicationTableColumn) error
	UpdateColumn(ctx context.Context, ownerScope string, col *models.ApplicationTableColumn) error
	DeleteColumn(ctx context.Context, ownerScope string, columnID uuid.UUID) error

	// ListOwnerScopes returns every scope holding catalog tables or grants.
	ListOwnerScopes(ctx context.Context) ([]string, error)
}

type tableRepository struct {
	db      *sql.DB
	dialect dialect.Dialect
}

// NewTableRepository creates a TableRepository.
func NewTableRepository(db *sql.DB, d dialect.Dialect) TableRepository {
	return &tableRepository{db: db, dialect: d}
}

var _ TableRepository = (*tableRepository)(nil)

func (r *tableRepository) q(ctx context.Context) database.Querier {
	return database.QuerierFrom(ctx, r.db)
}

func (r *tableRepository) Create(ctx context.Context, table *models.ApplicationTable) error {
	if table.ID == uuid.Nil {
		table.ID = uuid.New()
	}
	if table.CreatedAt.IsZero() {
		table.CreatedAt = now()
	}

	query := r.dialect.Rebind(`
		INSERT INTO ApplicationTable (Id, OwnerScope, Name, DisplayName, IsSystem, CreatedAt)
		VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := r.q(ctx).ExecContext(ctx, query,
		table.ID.String(),
		table.OwnerScope,
		table.Name,
		toNullString(table.DisplayName),
		table.IsSystem,
		table.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create catalog table: %w", r.dialect.MapError(err))
	}

	for i := range table.Columns {
		col := &table.Columns[i]
		col.TableID = table.ID
		if col.CreatedAt.IsZero() {
			col.CreatedAt = table.CreatedAt
		}
		if err := r.CreateColumn(ctx, table.OwnerScope, col); err != nil {
			return err
		}
	}
	return nil
}

const tableColumns = `Id, OwnerScope, Name, DisplayName, IsSystem, CreatedAt`

func (r *tableRepository) GetByID(ctx context.Context, ownerScope string, id uuid.UUID) (*models.ApplicationTable, error) {
	query := r.dialect.Rebind(`SELECT ` + tableColumns + ` FROM ApplicationTable WHERE OwnerScope = ? AND Id = ?`)
	table, err := scanTable(r.q(ctx).QueryRowContext(ctx, query, ownerScope, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundf("table %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog table: %w", err)
	}

	table.Columns, err = r.ListColumns(ctx, ownerScope, table.ID)
	if err != nil {
		return nil, err
	}
	return table, nil
}

func (r *tableRepository) ListByScope(ctx context.Context, ownerScope string) ([]*models.ApplicationTable, error) {
	query := r.dialect.Rebind(`SELECT ` + tableColumns + ` FROM ApplicationTable WHERE OwnerScope = ? ORDER BY Name`)
	return r.listTables(ctx, query, ownerScope)
}

func (r *tableRepository) ListByName(ctx context.Context, ownerScope, name string) ([]*models.ApplicationTable, error) {
	query := r.dialect.Rebind(`SELECT ` + tableColumns + ` FROM ApplicationTable WHERE OwnerScope = ? AND LOWER(Name) = LOWER(?)`)
	return r.listTables(ctx, query, ownerScope, name)
}

func (r *tableRepository) ListOwnerScopes(ctx context.Context) ([]string, error) {
	rows, err := r.q(ctx).QueryContext(ctx, `
		SELECT OwnerScope FROM ApplicationTable
		UNION
		SELECT OwnerScope FROM PermissionGrant
		ORDER BY OwnerScope`)
	if err != nil {
		return nil, fmt.Errorf("failed to list owner scopes: %w", err)
	}
	defer rows.Close()

	var scopes []string
	for rows.Next() {
		var scope string
		if err := rows.Scan(&scope); err != nil {
			return nil, fmt.Errorf("failed to scan owner scope: %w", err)
		}
		scopes = append(scopes, scope)
	}
	return scopes, rows.Err()
}

func (r *tableRepository) listTables(ctx context.Context, query string, args ...any) ([]*models.ApplicationTable, error) {
	rows, err := r.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog tables: %w", err)
	}

	var tables []*models.ApplicationTable
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan catalog table: %w", err)
		}
		tables = append(tables, t)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("error iterating catalog tables: %w", err)
	}

	// Columns are loaded after the cursor is closed; a single-connection pool
	// cannot hold two open result sets.
	for _, t := range tables {
		if t.Columns, err = r.ListColumns(ctx, t.OwnerScope, t.ID); err != nil {
			return nil, err
		}
	}
	return tables, nil
}

func (r *tableRepository) Rename(ctx context.Context, ownerScope string, id uuid.UUID, name string) error {
	query := r.dialect.Rebind(`UPDATE ApplicationTable SET Name = ? WHERE OwnerScope = ? AND Id = ?`)
	res, err := r.q(ctx).ExecContext(ctx, query, name, ownerScope, id.String())
	if err != nil {
		return fmt.Errorf("failed to rename catalog table: %w", r.dialect.MapError(err))
	}
	return requireAffected(res, "table %s not found", id)
}

func (r *tableRepository) Delete(ctx context.Context, ownerScope string, id uuid.UUID) error {
	statements := []string{
		`DELETE FROM ApplicationTableColumn WHERE OwnerScope = ? AND TableId = ?`,
		`DELETE FROM ApplicationTable WHERE OwnerScope = ? AND Id = ?`,
	}
	for _, stmt := range statements {
		if _, err := r.q(ctx).ExecContext(ctx, r.dialect.Rebind(stmt), ownerScope, id.String()); err != nil {
			return fmt.Errorf("failed to delete catalog table: %w", err)
		}
	}
	return nil
}

const columnColumns = `Id, TableId, Name, DataType, ColumnLength, ColumnPrecision, ColumnScale, IsNullable, CreatedAt`

func (r *tableRepository) ListColumns(ctx context.Context, ownerScope string, tableID uuid.UUID) ([]models.ApplicationTableColumn, error) {
	query := r.dialect.Rebind(`SELECT ` + columnColumns + ` FROM ApplicationTableColumn
		WHERE OwnerScope = ? AND TableId = ? ORDER BY CreatedAt, Name`)
	rows, err := r.q(ctx).QueryContext(ctx, query, ownerScope, tableID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog columns: %w", err)
	}
	defer rows.Close()

	var cols []models.ApplicationTableColumn
	for rows.Next() {
		col, err := scanColumn(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan catalog column: %w", err)
		}
		cols = append(cols, *col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating catalog columns: %w", err)
	}
	return cols, nil
}

func (r *tableRepository) CreateColumn(ctx context.Context, ownerScope string, col *models.ApplicationTableColumn) error {
	if col.ID == uuid.Nil {
		col.ID = uuid.New()
	}
	if col.CreatedAt.IsZero() {
		col.CreatedAt = now()
	}
	query := r.dialect.Rebind(`
		INSERT INTO ApplicationTableColumn (Id, OwnerScope, TableId, Name, DataType, ColumnLength, ColumnPrecision, ColumnScale, IsNullable, CreatedAt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.q(ctx).ExecContext(ctx, query,
		col.ID.String(),
		ownerScope,
		col.TableID.String(),
		col.Name,
		string(col.DataType),
		toNullInt(col.Length),
		toNullInt(col.Precision),
		toNullInt(col.Scale),
		col.Nullable,
		col.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create catalog column %q: %w", col.Name, err)
	}
	return nil
}

func (r *tableRepository) UpdateColumn(ctx context.Context, ownerScope string, col *models.ApplicationTableColumn) error {
	query := r.dialect.Rebind(`
		UPDATE ApplicationTableColumn
		SET Name = ?, DataType = ?, ColumnLength = ?, ColumnPrecision = ?, ColumnScale = ?, IsNullable = ?
		WHERE OwnerScope = ? AND Id = ?`)
	res, err := r.q(ctx).ExecContext(ctx, query,
		col.Name,
		string(col.DataType),
		toNullInt(col.Length),
		toNullInt(col.Precision),
		toNullInt(col.Scale),
		col.Nullable,
		ownerScope,
		col.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update catalog column %q: %w", col.Name, err)
	}
	return requireAffected(res, "column %s not found", col.ID)
}

func (r *tableRepository) DeleteColumn(ctx context.Context, ownerScope string, columnID uuid.UUID) error {
	query := r.dialect.Rebind(`DELETE FROM ApplicationTableColumn WHERE OwnerScope = ? AND Id = ?`)
	if _, err := r.q(ctx).ExecContext(ctx, query, ownerScope, columnID.String()); err != nil {
		return fmt.Errorf("failed to delete catalog column: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTable(row rowScanner) (*models.ApplicationTable, error) {
	var (
		t           models.ApplicationTable
		id          string
		displayName sql.NullString
		createdAt   any
	)
	if err := row.Scan(&id, &t.OwnerScope, &t.Name, &displayName, &t.IsSystem, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if t.ID, err = parseID(id); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	t.DisplayName = displayName.String
	return &t, nil
}

func scanColumn(row rowScanner) (*models.ApplicationTableColumn, error) {
	var (
		c                        models.ApplicationTableColumn
		id, tableID, dataType    string
		length, precision, scale sql.NullInt64
		createdAt                any
	)
	if err := row.Scan(&id, &tableID, &c.Name, &dataType, &length, &precision, &scale, &c.Nullable, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if c.ID, err = parseID(id); err != nil {
		return nil, err
	}
	if c.TableID, err = parseID(tableID); err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	c.DataType = models.ColumnType(dataType)
	c.Length = fromNullInt(length)
	c.Precision = fromNullInt(precision)
	c.Scale = fromNullInt(scale)
	return &c, nil
}

func requireAffected(res sql.Result, format string, args ...any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperrors.NotFoundf(format, args...)
	}
	return nil
}
