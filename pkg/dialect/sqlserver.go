package dialect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/apperrors"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/coltype"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/database"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/identifier"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/models"
)

// SQL Server error numbers that mean the target name is taken.
const (
	mssqlObjectExists    = 2714  // There is already an object named ... in the database
	mssqlDuplicateColumn = 2705  // Column names in each table must be unique
	mssqlRenameInUse     = 15335 // sp_rename: the new name is already in use
	mssqlUniqueIndex     = 2601
	mssqlUniqueKey       = 2627
)

// SQLServerDialect targets Microsoft SQL Server through go-mssqldb. Objects are
// resolved in the login's default schema.
type SQLServerDialect struct{}

var _ Dialect = (*SQLServerDialect)(nil)

func (d *SQLServerDialect) Name() string       { return NameSQLServer }
func (d *SQLServerDialect) DriverName() string { return "sqlserver" }

func (d *SQLServerDialect) QuoteIdentifier(name string) string {
	return identifier.Quote(name, identifier.Bracket)
}

func (d *SQLServerDialect) Placeholder(index int) string { return fmt.Sprintf("@p%d", index) }

func (d *SQLServerDialect) Rebind(query string) string {
	return rebind(query, d.Placeholder)
}

func (d *SQLServerDialect) Paginate(n int) string {
	return fmt.Sprintf("OFFSET 0 ROWS FETCH NEXT %d ROWS ONLY", n)
}

func (d *SQLServerDialect) ColumnType(t models.ColumnType, length, precision, scale *int) string {
	switch t {
	case models.ColumnTypeInt:
		return "INT"
	case models.ColumnTypeBigInt:
		return "BIGINT"
	case models.ColumnTypeBit:
		return "BIT"
	case models.ColumnTypeFloat:
		return "FLOAT"
	case models.ColumnTypeDateTime:
		return "DATETIME2"
	case models.ColumnTypeImage:
		return "NVARCHAR(MAX)"
	case models.ColumnTypeNVarChar, models.ColumnTypeVarChar:
		if length == nil {
			return strings.ToUpper(string(t)) + "(MAX)"
		}
		return renderBounded(strings.ToUpper(string(t)), length, nil)
	case models.ColumnTypeChar:
		return renderBounded("CHAR", length, nil)
	case models.ColumnTypeDecimal, models.ColumnTypeNumeric:
		return renderBounded(strings.ToUpper(string(t)), precision, scale)
	default:
		return fmt.Sprintf("NVARCHAR(%d)", coltype.FallbackLength)
	}
}

func (d *SQLServerDialect) AbstractType(native string) models.ColumnType {
	switch t := models.ParseColumnType(native); t {
	case "datetime2", "smalldatetime":
		return models.ColumnTypeDateTime
	case "real":
		return models.ColumnTypeFloat
	default:
		return t
	}
}

func (d *SQLServerDialect) NullClause(nullable bool) string {
	if nullable {
		return "NULL"
	}
	return "NOT NULL"
}

func (d *SQLServerDialect) ZeroDefault(t models.ColumnType) string {
	switch {
	case coltype.IsNumeric(t):
		return "0"
	case coltype.IsTextual(t):
		return "N''"
	default:
		return "'1900-01-01'"
	}
}

func (d *SQLServerDialect) IdentityColumnDefinition() string {
	return d.QuoteIdentifier(models.IdentityColumnName) + " UNIQUEIDENTIFIER NOT NULL DEFAULT " + d.GenerateIdentityDefault()
}

func (d *SQLServerDialect) GenerateIdentityDefault() string { return "NEWID()" }

// AddIdentityColumnSQL adds DGUID as NOT NULL with a NEWID() default, which
// SQL Server applies to the rows already present.
func (d *SQLServerDialect) AddIdentityColumnSQL(table string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD %s", d.QuoteIdentifier(table), d.IdentityColumnDefinition())
}

func (d *SQLServerDialect) BackfillIdentitySQL(table string) string {
	col := d.QuoteIdentifier(models.IdentityColumnName)
	return fmt.Sprintf("UPDATE %s SET %s = NEWID() WHERE %s IS NULL OR %s = '%s'",
		d.QuoteIdentifier(table), col, col, col, ZeroIdentity)
}

func (d *SQLServerDialect) IdentityText(expr string) string {
	return "LOWER(CONVERT(NVARCHAR(36), " + expr + "))"
}

func (d *SQLServerDialect) SupportsColumnDrop() bool   { return true }
func (d *SQLServerDialect) SupportsColumnRename() bool { return true }

func (d *SQLServerDialect) CreateTableSQL(table string, columnDefs []string) string {
	return fmt.Sprintf("CREATE TABLE %s (%s)", d.QuoteIdentifier(table), strings.Join(columnDefs, ", "))
}

func (d *SQLServerDialect) AddColumnSQL(table, columnDef string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD %s", d.QuoteIdentifier(table), columnDef)
}

// DropColumnSQL drops the column together with any default constraint bound
// to it (columns added as NOT NULL carry a system-named one).
func (d *SQLServerDialect) DropColumnSQL(table, column string) string {
	qt := d.QuoteIdentifier(table)
	return fmt.Sprintf(`DECLARE @df sysname;
SELECT @df = dc.name FROM sys.default_constraints dc
JOIN sys.columns c ON c.object_id = dc.parent_object_id AND c.column_id = dc.parent_column_id
WHERE dc.parent_object_id = OBJECT_ID(N'%s') AND c.name = N'%s';
IF @df IS NOT NULL EXEC(N'ALTER TABLE %s DROP CONSTRAINT ' + QUOTENAME(@df));
ALTER TABLE %s DROP COLUMN %s;`, qt, column, qt, qt, d.QuoteIdentifier(column))
}

func (d *SQLServerDialect) RenameColumnSQL(table, from, to string) string {
	return fmt.Sprintf("EXEC sp_rename N'%s.%s', N'%s', N'COLUMN'", d.QuoteIdentifier(table), d.QuoteIdentifier(from), to)
}

func (d *SQLServerDialect) RenameTableSQL(from, to string) string {
	return fmt.Sprintf("EXEC sp_rename N'%s', N'%s'", d.QuoteIdentifier(from), to)
}

func (d *SQLServerDialect) DropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + d.QuoteIdentifier(table)
}

func (d *SQLServerDialect) TableExists(ctx context.Context, q database.Querier, table string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_TYPE = 'BASE TABLE' AND TABLE_SCHEMA = SCHEMA_NAME() AND TABLE_NAME = @table`,
		sql.Named("table", table),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check table exists: %w", err)
	}
	return count > 0, nil
}

func (d *SQLServerDialect) IntrospectColumns(ctx context.Context, q database.Querier, table string) ([]models.LiveColumn, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT COLUMN_NAME, DATA_TYPE, CHARACTER_MAXIMUM_LENGTH, NUMERIC_PRECISION, NUMERIC_SCALE, IS_NULLABLE
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = SCHEMA_NAME() AND TABLE_NAME = @table
		ORDER BY ORDINAL_POSITION`,
		sql.Named("table", table),
	)
	if err != nil {
		return nil, fmt.Errorf("read columns for %s: %w", table, err)
	}
	defer rows.Close()

	var cols []models.LiveColumn
	for rows.Next() {
		var (
			name, dataType, isNullable string
			length, precision, scale   sql.NullInt64
		)
		if err := rows.Scan(&name, &dataType, &length, &precision, &scale, &isNullable); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		col := models.LiveColumn{
			Name:       name,
			NativeType: dataType,
			DataType:   d.AbstractType(dataType),
			Nullable:   strings.EqualFold(isNullable, "YES"),
		}
		// -1 is the MAX length marker; it is stored as NULL (unbounded).
		if length.Valid && length.Int64 > 0 {
			col.Length = intPtr(length.Int64)
		}
		if precision.Valid {
			col.Precision = intPtr(precision.Int64)
		}
		if scale.Valid {
			col.Scale = intPtr(scale.Int64)
		}
		col.Length, col.Precision, col.Scale = coltype.Normalize(col.DataType, col.Length, col.Precision, col.Scale)
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return cols, nil
}

func (d *SQLServerDialect) InitStatements() []string { return nil }

// IsTransient is false: only the embedded engine's lock errors are retried.
func (d *SQLServerDialect) IsTransient(err error) bool { return false }

func (d *SQLServerDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		switch msErr.Number {
		case mssqlObjectExists, mssqlDuplicateColumn, mssqlRenameInUse, mssqlUniqueIndex, mssqlUniqueKey:
			return fmt.Errorf("%w: %s", apperrors.ErrConflict, msErr.Message)
		}
	}
	return err
}

func intPtr(v int64) *int {
	i := int(v)
	return &i
}
