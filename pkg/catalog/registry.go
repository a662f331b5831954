// Package catalog holds the static registry of system tables.
package catalog

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/models"
)

//go:embed system_tables.yaml
var defaultDefinition []byte

// SystemTable is one registry entry.
type SystemTable struct {
	ID          uuid.UUID
	Name        string
	DisplayName string
}

type definition struct {
	Namespace string `yaml:"namespace"`
	Tables    []struct {
		Name        string `yaml:"name"`
		DisplayName string `yaml:"display_name"`
	} `yaml:"tables"`
}

// Registry maps reserved system table names to their derived IDs. It is
// immutable after construction and safe for concurrent use.
type Registry struct {
	namespace uuid.UUID
	ordered   []SystemTable
	byName    map[string]SystemTable
	byID      map[uuid.UUID]SystemTable
}

// DefaultRegistry parses the embedded system table list.
func DefaultRegistry() (*Registry, error) {
	return ParseRegistry(defaultDefinition)
}

// ParseRegistry builds a registry from a YAML definition.
func ParseRegistry(data []byte) (*Registry, error) {
	var def definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse system table registry: %w", err)
	}
	ns, err := uuid.Parse(def.Namespace)
	if err != nil {
		return nil, fmt.Errorf("registry namespace: %w", err)
	}

	r := &Registry{
		namespace: ns,
		byName:    make(map[string]SystemTable, len(def.Tables)),
		byID:      make(map[uuid.UUID]SystemTable, len(def.Tables)),
	}
	for _, t := range def.Tables {
		if t.Name == "" {
			return nil, fmt.Errorf("registry entry without a name")
		}
		key := strings.ToLower(t.Name)
		if _, dup := r.byName[key]; dup {
			return nil, fmt.Errorf("duplicate system table %q", t.Name)
		}
		st := SystemTable{ID: r.DeriveID(t.Name), Name: t.Name, DisplayName: t.DisplayName}
		r.ordered = append(r.ordered, st)
		r.byName[key] = st
		r.byID[st.ID] = st
	}
	return r, nil
}

// DeriveID hashes a table name into its stable ID. Case does not matter.
func (r *Registry) DeriveID(name string) uuid.UUID {
	return uuid.NewSHA1(r.namespace, []byte(strings.ToLower(name)))
}

// All returns the entries in definition order.
func (r *Registry) All() []SystemTable {
	out := make([]SystemTable, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// ByName looks up a reserved name case-insensitively.
func (r *Registry) ByName(name string) (SystemTable, bool) {
	st, ok := r.byName[strings.ToLower(name)]
	return st, ok
}

// ByID looks up a derived ID.
func (r *Registry) ByID(id uuid.UUID) (SystemTable, bool) {
	st, ok := r.byID[id]
	return st, ok
}

// IsReserved reports whether name belongs to a system table.
func (r *Registry) IsReserved(name string) bool {
	_, ok := r.ByName(name)
	return ok
}

// IsShadow reports whether a catalog row uses a reserved name under an ID
// other than the derived one.
func (r *Registry) IsShadow(t *models.ApplicationTable) bool {
	st, ok := r.ByName(t.Name)
	return ok && st.ID != t.ID
}

// VirtualEntry returns the catalog entry of a system table that has no stored row.
func (st SystemTable) VirtualEntry(ownerScope string) *models.ApplicationTable {
	return &models.ApplicationTable{
		ID:          st.ID,
		OwnerScope:  ownerScope,
		Name:        st.Name,
		DisplayName: st.DisplayName,
		IsSystem:    true,
	}
}
