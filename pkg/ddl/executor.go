// Package ddl issues the physical schema statements for application tables.
package ddl

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/apperrors"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/coltype"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/database"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/dialect"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/logging"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/models"
)

// Executor runs DDL through the transaction carried by the context when there
// is one, so a caller can pair each statement with its catalog write.
type Executor struct {
	db      *sql.DB
	dialect dialect.Dialect
	logger  *zap.Logger
}

// NewExecutor creates an Executor for one dialect.
func NewExecutor(db *sql.DB, d dialect.Dialect, logger *zap.Logger) *Executor {
	return &Executor{db: db, dialect: d, logger: logger.Named("ddl")}
}

// Dialect returns the dialect statements are generated for.
func (e *Executor) Dialect() dialect.Dialect { return e.dialect }

// ColumnDefinition renders one column clause. Names and types must already be
// validated; an invalid type is still reported rather than rendered. When the
// column is NOT NULL and withDefault is set, a constant zero default is
// attached so the column can be added to a populated table.
func (e *Executor) ColumnDefinition(col models.ColumnSpec, withDefault bool) (string, error) {
	typ, err := coltype.MapType(col.DataType, col.Length, col.Precision, col.Scale, e.dialect)
	if err != nil {
		return "", fmt.Errorf("column %q: %w", col.Name, err)
	}
	parts := []string{e.dialect.QuoteIdentifier(col.Name), typ}
	if clause := e.dialect.NullClause(col.Nullable); clause != "" {
		parts = append(parts, clause)
	}
	if withDefault && !col.Nullable {
		parts = append(parts, "DEFAULT "+e.dialect.ZeroDefault(col.DataType))
	}
	return strings.Join(parts, " "), nil
}

// CreateTable creates the physical table with DGUID prepended.
func (e *Executor) CreateTable(ctx context.Context, table string, cols []models.ColumnSpec) error {
	defs := make([]string, 0, len(cols)+1)
	defs = append(defs, e.dialect.IdentityColumnDefinition())
	for _, col := range cols {
		def, err := e.ColumnDefinition(col, false)
		if err != nil {
			return err
		}
		defs = append(defs, def)
	}
	_, err := e.exec(ctx, e.dialect.CreateTableSQL(table, defs))
	return err
}

// AddColumn appends a column to an existing table.
func (e *Executor) AddColumn(ctx context.Context, table string, col models.ColumnSpec) error {
	def, err := e.ColumnDefinition(col, true)
	if err != nil {
		return err
	}
	_, err = e.exec(ctx, e.dialect.AddColumnSQL(table, def))
	return err
}

// DropColumn removes a column. Unsupported on dialects without column drop.
func (e *Executor) DropColumn(ctx context.Context, table, column string) error {
	if !e.dialect.SupportsColumnDrop() {
		return apperrors.Unsupportedf("dropping column %q is not supported on %s", column, e.dialect.Name())
	}
	_, err := e.exec(ctx, e.dialect.DropColumnSQL(table, column))
	return err
}

// RenameColumn renames a column. Unsupported on dialects without column rename.
func (e *Executor) RenameColumn(ctx context.Context, table, from, to string) error {
	if !e.dialect.SupportsColumnRename() {
		return apperrors.Unsupportedf("renaming column %q is not supported on %s", from, e.dialect.Name())
	}
	_, err := e.exec(ctx, e.dialect.RenameColumnSQL(table, from, to))
	return err
}

// RenameTable renames the physical table.
func (e *Executor) RenameTable(ctx context.Context, from, to string) error {
	_, err := e.exec(ctx, e.dialect.RenameTableSQL(from, to))
	return err
}

// DropTable drops the physical table if it exists.
func (e *Executor) DropTable(ctx context.Context, table string) error {
	_, err := e.exec(ctx, e.dialect.DropTableSQL(table))
	return err
}

// AddIdentityColumn adds DGUID to a table created without it.
func (e *Executor) AddIdentityColumn(ctx context.Context, table string) error {
	_, err := e.exec(ctx, e.dialect.AddIdentityColumnSQL(table))
	return err
}

// BackfillIdentity fills missing DGUID values and returns how many rows changed.
func (e *Executor) BackfillIdentity(ctx context.Context, table string) (int64, error) {
	res, err := e.exec(ctx, e.dialect.BackfillIdentitySQL(table))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("backfill rows affected: %w", err)
	}
	return n, nil
}

// TableExists looks up a physical table by name.
func (e *Executor) TableExists(ctx context.Context, table string) (bool, error) {
	return e.dialect.TableExists(ctx, database.QuerierFrom(ctx, e.db), table)
}

func (e *Executor) exec(ctx context.Context, stmt string) (sql.Result, error) {
	e.logger.Debug("Executing DDL", zap.String("statement", logging.SanitizeStatement(stmt)))
	res, err := database.QuerierFrom(ctx, e.db).ExecContext(ctx, stmt)
	if err != nil {
		mapped := e.dialect.MapError(err)
		e.logger.Error("DDL statement failed",
			zap.String("statement", logging.SanitizeStatement(stmt)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("ddl: %w", mapped)
	}
	return res, nil
}
