// Package migrations embeds the catalog schema for each supported dialect.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed sqlite/*.sql sqlserver/*.sql
var files embed.FS

// ForDialect returns the migration directory for dialect ("sqlite" or "sqlserver").
func ForDialect(dialect string) (fs.FS, error) {
	switch dialect {
	case "sqlite", "sqlserver":
		return fs.Sub(files, dialect)
	default:
		return nil, fmt.Errorf("no migrations for dialect %q", dialect)
	}
}
