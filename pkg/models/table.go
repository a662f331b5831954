// Package models contains domain types for the dynamic table engine.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"
)

// IdentityColumnName is the system-managed correlation column present on every
// application table. It never appears in the column catalog.
const IdentityColumnName = "DGUID"

// ColumnType is the abstract data type recorded for a catalog column.
type ColumnType string

const (
	ColumnTypeInt      ColumnType = "int"
	ColumnTypeBigInt   ColumnType = "bigint"
	ColumnTypeBit      ColumnType = "bit"
	ColumnTypeDateTime ColumnType = "datetime"
	ColumnTypeFloat    ColumnType = "float"
	ColumnTypeNVarChar ColumnType = "nvarchar"
	ColumnTypeVarChar  ColumnType = "varchar"
	ColumnTypeChar     ColumnType = "char"
	ColumnTypeDecimal  ColumnType = "decimal"
	ColumnTypeNumeric  ColumnType = "numeric"
	ColumnTypeImage    ColumnType = "image"
)

// KnownColumnTypes lists every abstract type in the enumeration.
var KnownColumnTypes = []ColumnType{
	ColumnTypeInt, ColumnTypeBigInt, ColumnTypeBit, ColumnTypeDateTime, ColumnTypeFloat,
	ColumnTypeNVarChar, ColumnTypeVarChar, ColumnTypeChar, ColumnTypeDecimal, ColumnTypeNumeric,
	ColumnTypeImage,
}

// ParseColumnType lowercases and trims a type token. The result may be outside
// KnownColumnTypes; legacy labels are carried as-is.
func ParseColumnType(s string) ColumnType {
	return ColumnType(strings.ToLower(strings.TrimSpace(s)))
}

// IsKnown reports whether t is part of the enumeration.
func (t ColumnType) IsKnown() bool {
	for _, k := range KnownColumnTypes {
		if t == k {
			return true
		}
	}
	return false
}

// ApplicationTable is a catalog entry for one user-defined or system table.
type ApplicationTable struct {
	ID          uuid.UUID                `json:"id"`
	OwnerScope  string                   `json:"owner_scope"`
	Name        string                   `json:"name"`
	DisplayName string                   `json:"display_name,omitempty"` // system tables only
	IsSystem    bool                     `json:"is_system"`
	CreatedAt   time.Time                `json:"created_at"`
	Columns     []ApplicationTableColumn `json:"columns,omitempty"`
}

// Label returns the display name when set, otherwise the physical name.
func (t *ApplicationTable) Label() string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	return t.Name
}

// RecordNoun is the singular noun used for one row of the table ("Widgets" -> "Widget").
func (t *ApplicationTable) RecordNoun() string {
	return inflection.Singular(t.Label())
}

// Column returns the catalog column matching name case-insensitively.
func (t *ApplicationTable) Column(name string) (*ApplicationTableColumn, bool) {
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// ApplicationTableColumn is one catalog column. Nil bounds mean unknown or unbounded.
type ApplicationTableColumn struct {
	ID        uuid.UUID  `json:"id"`
	TableID   uuid.UUID  `json:"table_id"`
	Name      string     `json:"name"`
	DataType  ColumnType `json:"data_type"`
	Length    *int       `json:"length,omitempty"`
	Precision *int       `json:"precision,omitempty"`
	Scale     *int       `json:"scale,omitempty"`
	Nullable  bool       `json:"nullable"`
	CreatedAt time.Time  `json:"created_at"`
}

// SameShape reports whether two columns record the same type and bounds.
func (c *ApplicationTableColumn) SameShape(other *ApplicationTableColumn) bool {
	return c.DataType == other.DataType &&
		EqualBound(c.Length, other.Length) &&
		EqualBound(c.Precision, other.Precision) &&
		EqualBound(c.Scale, other.Scale)
}

// EqualBound compares two optional bounds; nil equals only nil.
func EqualBound(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
