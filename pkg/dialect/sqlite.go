package dialect

import (
	"context"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/apperrors"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/coltype"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/database"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/identifier"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/models"
)

// SQLiteDialect targets the embedded-file engine through modernc.org/sqlite.
type SQLiteDialect struct{}

var _ Dialect = (*SQLiteDialect)(nil)

// sqliteUUIDExpr builds a random version-4 UUID string in pure SQL.
const sqliteUUIDExpr = `(lower(hex(randomblob(4))) || '-' || lower(hex(randomblob(2))) || '-4' || ` +
	`substr(lower(hex(randomblob(2))), 2) || '-' || substr('89ab', 1 + (abs(random()) % 4), 1) || ` +
	`substr(lower(hex(randomblob(2))), 2) || '-' || lower(hex(randomblob(6))))`

func (d *SQLiteDialect) Name() string       { return NameSQLite }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) QuoteIdentifier(name string) string {
	return identifier.Quote(name, identifier.DoubleQuote)
}

func (d *SQLiteDialect) Placeholder(index int) string { return "?" }
func (d *SQLiteDialect) Rebind(query string) string  { return query }
func (d *SQLiteDialect) Paginate(n int) string       { return fmt.Sprintf("LIMIT %d", n) }

func (d *SQLiteDialect) ColumnType(t models.ColumnType, length, precision, scale *int) string {
	switch t {
	case models.ColumnTypeInt, models.ColumnTypeBit:
		return "INTEGER"
	case models.ColumnTypeBigInt:
		return "BIGINT"
	case models.ColumnTypeFloat:
		return "REAL"
	case models.ColumnTypeDateTime, models.ColumnTypeImage:
		return "TEXT"
	case models.ColumnTypeNVarChar, models.ColumnTypeVarChar, models.ColumnTypeChar:
		// The declared name is kept so the length can be read back from PRAGMA table_info.
		if length == nil {
			return "TEXT"
		}
		return renderBounded(strings.ToUpper(string(t)), length, nil)
	case models.ColumnTypeDecimal, models.ColumnTypeNumeric:
		return renderBounded(strings.ToUpper(string(t)), precision, scale)
	default:
		return fmt.Sprintf("NVARCHAR(%d)", coltype.FallbackLength)
	}
}

func (d *SQLiteDialect) AbstractType(native string) models.ColumnType {
	switch strings.ToUpper(strings.TrimSpace(native)) {
	case "INTEGER", "INT":
		return models.ColumnTypeInt
	case "BIGINT":
		return models.ColumnTypeBigInt
	case "BIT", "BOOLEAN":
		return models.ColumnTypeBit
	case "REAL", "FLOAT", "DOUBLE":
		return models.ColumnTypeFloat
	case "TEXT", "NVARCHAR":
		// Unbounded text reads back as nvarchar with a NULL length.
		return models.ColumnTypeNVarChar
	case "VARCHAR":
		return models.ColumnTypeVarChar
	case "CHAR":
		return models.ColumnTypeChar
	case "DECIMAL":
		return models.ColumnTypeDecimal
	case "NUMERIC":
		return models.ColumnTypeNumeric
	case "DATETIME", "TIMESTAMP":
		return models.ColumnTypeDateTime
	case "IMAGE":
		return models.ColumnTypeImage
	case "":
		return "blob"
	default:
		return models.ParseColumnType(native)
	}
}

func (d *SQLiteDialect) NullClause(nullable bool) string {
	if nullable {
		return ""
	}
	return "NOT NULL"
}

func (d *SQLiteDialect) ZeroDefault(t models.ColumnType) string {
	switch {
	case coltype.IsNumeric(t):
		return "0"
	case coltype.IsTextual(t):
		return "''"
	default:
		return "'1970-01-01 00:00:00'"
	}
}

func (d *SQLiteDialect) IdentityColumnDefinition() string {
	return d.QuoteIdentifier(models.IdentityColumnName) + " TEXT NOT NULL DEFAULT " + sqliteUUIDExpr
}

func (d *SQLiteDialect) GenerateIdentityDefault() string { return sqliteUUIDExpr }

// AddIdentityColumnSQL adds DGUID without a default: SQLite refuses a
// non-constant default on ADD COLUMN, so existing rows get their value from
// the backfill that follows.
func (d *SQLiteDialect) AddIdentityColumnSQL(table string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT", d.QuoteIdentifier(table), d.QuoteIdentifier(models.IdentityColumnName))
}

func (d *SQLiteDialect) BackfillIdentitySQL(table string) string {
	col := d.QuoteIdentifier(models.IdentityColumnName)
	return fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s IS NULL OR %s = '' OR %s = '%s'",
		d.QuoteIdentifier(table), col, sqliteUUIDExpr, col, col, col, ZeroIdentity)
}

func (d *SQLiteDialect) IdentityText(expr string) string { return "lower(" + expr + ")" }

func (d *SQLiteDialect) SupportsColumnDrop() bool   { return false }
func (d *SQLiteDialect) SupportsColumnRename() bool { return false }

func (d *SQLiteDialect) CreateTableSQL(table string, columnDefs []string) string {
	return fmt.Sprintf("CREATE TABLE %s (%s)", d.QuoteIdentifier(table), strings.Join(columnDefs, ", "))
}

func (d *SQLiteDialect) AddColumnSQL(table, columnDef string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.QuoteIdentifier(table), columnDef)
}

func (d *SQLiteDialect) DropColumnSQL(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.QuoteIdentifier(table), d.QuoteIdentifier(column))
}

func (d *SQLiteDialect) RenameColumnSQL(table, from, to string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", d.QuoteIdentifier(table), d.QuoteIdentifier(from), d.QuoteIdentifier(to))
}

func (d *SQLiteDialect) RenameTableSQL(from, to string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.QuoteIdentifier(from), d.QuoteIdentifier(to))
}

func (d *SQLiteDialect) DropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + d.QuoteIdentifier(table)
}

func (d *SQLiteDialect) TableExists(ctx context.Context, q database.Querier, table string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ? COLLATE NOCASE",
		table,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check table exists: %w", err)
	}
	return count > 0, nil
}

func (d *SQLiteDialect) IntrospectColumns(ctx context.Context, q database.Querier, table string) ([]models.LiveColumn, error) {
	rows, err := q.QueryContext(ctx, `SELECT name, type, "notnull" FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, fmt.Errorf("read table_info for %s: %w", table, err)
	}
	defer rows.Close()

	var cols []models.LiveColumn
	for rows.Next() {
		var (
			name, native string
			notNull      int
		)
		if err := rows.Scan(&name, &native, &notNull); err != nil {
			return nil, fmt.Errorf("scan table_info: %w", err)
		}
		base, args := splitNativeType(native)
		col := models.LiveColumn{
			Name:       name,
			NativeType: native,
			DataType:   d.AbstractType(base),
			Nullable:   notNull == 0,
		}
		switch col.DataType {
		case models.ColumnTypeNVarChar, models.ColumnTypeVarChar, models.ColumnTypeChar:
			if len(args) > 0 {
				col.Length = &args[0]
			}
		case models.ColumnTypeDecimal, models.ColumnTypeNumeric:
			if len(args) > 0 {
				col.Precision = &args[0]
			}
			if len(args) > 1 {
				col.Scale = &args[1]
			}
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table_info: %w", err)
	}
	return cols, nil
}

func (d *SQLiteDialect) InitStatements() []string {
	return []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"}
}

func (d *SQLiteDialect) IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "sqlite_locked")
}

func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "already exists"),
		strings.Contains(msg, "duplicate column name"),
		strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %s", apperrors.ErrConflict, msg)
	}
	return err
}
