// Package dialect isolates everything that differs between the embedded-file
// engine (SQLite) and the client/server engine (SQL Server): quoting, type
// rendering, identity-column handling, DDL syntax, introspection and error
// classification. Callers receive one Dialect at construction time.
package dialect

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/database"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/models"
)

const (
	NameSQLite    = "sqlite"
	NameSQLServer = "sqlserver"
)

// ZeroIdentity is the all-zero DGUID sentinel treated as "missing" by backfill.
const ZeroIdentity = "00000000-0000-0000-0000-000000000000"

// Dialect abstracts database-specific SQL generation and behavior.
type Dialect interface {
	// Name returns "sqlite" or "sqlserver".
	Name() string

	// DriverName returns the database/sql driver name.
	DriverName() string

	// QuoteIdentifier delimits an already-validated name.
	QuoteIdentifier(name string) string

	// Placeholder returns the parameter placeholder for the given 1-based index.
	Placeholder(index int) string

	// Rebind rewrites ? placeholders into the dialect's positional form.
	Rebind(query string) string

	// Paginate returns the clause limiting an ordered result to n rows.
	Paginate(n int) string

	// ColumnType renders an abstract type with already-normalized bounds.
	// Labels outside the enumeration render as a bounded text fallback.
	ColumnType(t models.ColumnType, length, precision, scale *int) string

	// AbstractType maps a native type name (without bounds) to an abstract label.
	AbstractType(native string) models.ColumnType

	// NullClause returns the nullability suffix of a column definition.
	NullClause(nullable bool) string

	// ZeroDefault returns a constant default literal for a NOT NULL column added
	// to a table that may already hold rows.
	ZeroDefault(t models.ColumnType) string

	// IdentityColumnDefinition is the DGUID column as it appears in CREATE TABLE.
	IdentityColumnDefinition() string

	// GenerateIdentityDefault is the expression producing a fresh DGUID value.
	GenerateIdentityDefault() string

	// AddIdentityColumnSQL adds DGUID to an existing table.
	AddIdentityColumnSQL(table string) string

	// BackfillIdentitySQL assigns DGUID values to rows where it is null or the zero sentinel.
	BackfillIdentitySQL(table string) string

	// IdentityText renders a DGUID expression as lowercase canonical text.
	IdentityText(expr string) string

	SupportsColumnDrop() bool
	SupportsColumnRename() bool

	CreateTableSQL(table string, columnDefs []string) string
	AddColumnSQL(table, columnDef string) string
	DropColumnSQL(table, column string) string
	RenameColumnSQL(table, from, to string) string
	RenameTableSQL(from, to string) string
	DropTableSQL(table string) string

	// TableExists checks the database's own catalog for a base table.
	TableExists(ctx context.Context, q database.Querier, table string) (bool, error)

	// IntrospectColumns reads the live column list of a table in ordinal order.
	IntrospectColumns(ctx context.Context, q database.Querier, table string) ([]models.LiveColumn, error)

	// InitStatements run once when the pool opens.
	InitStatements() []string

	// IsTransient reports lock/availability errors worth retrying during introspection.
	IsTransient(err error) bool

	// MapError translates driver errors into the application error taxonomy
	// where the class is recognizable, and returns err unchanged otherwise.
	MapError(err error) error
}

// New returns the Dialect registered under name.
func New(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameSQLite, "sqlite3":
		return &SQLiteDialect{}, nil
	case NameSQLServer, "mssql":
		return &SQLServerDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported dialect %q", name)
	}
}

// rebind replaces each ? outside string literals using placeholder(n).
func rebind(query string, placeholder func(int) string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inString := false
	for _, ch := range query {
		switch {
		case ch == '\'':
			inString = !inString
			b.WriteRune(ch)
		case ch == '?' && !inString:
			n++
			b.WriteString(placeholder(n))
		default:
			b.WriteRune(ch)
		}
	}
	return b.String()
}

// splitNativeType splits "NVARCHAR(50)" into "NVARCHAR" and [50]. Non-numeric
// arguments such as MAX are dropped.
func splitNativeType(native string) (string, []int) {
	native = strings.TrimSpace(native)
	open := strings.IndexByte(native, '(')
	if open < 0 {
		return native, nil
	}
	base := strings.TrimSpace(native[:open])
	inner := native[open+1:]
	if end := strings.IndexByte(inner, ')'); end >= 0 {
		inner = inner[:end]
	}
	var args []int
	for _, part := range strings.Split(inner, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		args = append(args, v)
	}
	return base, args
}

// renderBounded produces NAME, NAME(a) or NAME(a,b).
func renderBounded(name string, first, second *int) string {
	switch {
	case first == nil:
		return name
	case second == nil:
		return fmt.Sprintf("%s(%d)", name, *first)
	default:
		return fmt.Sprintf("%s(%d,%d)", name, *first, *second)
	}
}

