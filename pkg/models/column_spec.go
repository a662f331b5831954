package models

import "strings"

// ColumnSpec is one entry of a create or alter submission.
//
// OriginalName is empty for a new column. For an existing column it names the
// column as currently recorded; a Name that differs (ignoring case) is a rename.
type ColumnSpec struct {
	OriginalName string     `json:"original_name,omitempty"`
	Name         string     `json:"name"`
	DataType     ColumnType `json:"data_type"`
	Length       *int       `json:"length,omitempty"`
	Precision    *int       `json:"precision,omitempty"`
	Scale        *int       `json:"scale,omitempty"`
	Nullable     bool       `json:"nullable"`
	Deleted      bool       `json:"deleted,omitempty"`
}

// ColumnChangeKind classifies an alter submission entry.
type ColumnChangeKind string

const (
	ColumnChangeNew       ColumnChangeKind = "new"
	ColumnChangeExisting  ColumnChangeKind = "existing"
	ColumnChangeRenamed   ColumnChangeKind = "renamed"
	ColumnChangeDeleted   ColumnChangeKind = "deleted"
	// ColumnChangeDiscarded is a column added and removed before saving.
	ColumnChangeDiscarded ColumnChangeKind = "discarded"
)

// Kind classifies the entry. A case-only name change is not a rename.
func (c ColumnSpec) Kind() ColumnChangeKind {
	switch {
	case c.OriginalName == "" && c.Deleted:
		return ColumnChangeDiscarded
	case c.OriginalName == "":
		return ColumnChangeNew
	case c.Deleted:
		return ColumnChangeDeleted
	case !strings.EqualFold(c.OriginalName, c.Name):
		return ColumnChangeRenamed
	default:
		return ColumnChangeExisting
	}
}

// LiveColumn is a column as reported by the database's own catalog.
type LiveColumn struct {
	Name       string
	NativeType string
	DataType   ColumnType
	Length     *int
	Precision  *int
	Scale      *int
	Nullable   bool
}
