package models

import (
	"time"

	"github.com/google/uuid"
)

// PermissionGrant is an explicit per-subject override. The absence of a row means None.
type PermissionGrant struct {
	OwnerScope  string      `json:"owner_scope"`
	TableID     uuid.UUID   `json:"table_id"`
	SubjectID   string      `json:"subject_id"`
	AccessLevel AccessLevel `json:"access_level"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// PermissionWrite is one requested change. An empty Level clears the override.
type PermissionWrite struct {
	SubjectID string      `json:"subject_id"`
	Level     AccessLevel `json:"level"`
}

// PermissionChange describes one subject's before/after state for auditing.
type PermissionChange struct {
	SubjectID        string
	SubjectName      string
	PreviousExplicit AccessLevel
	NewExplicit      AccessLevel
	PreviousLevel    AccessLevel
	NewLevel         AccessLevel
}

// Changed reports whether either the effective level or the explicit override moved.
func (c PermissionChange) Changed() bool {
	return c.PreviousLevel != c.NewLevel || c.PreviousExplicit != c.NewExplicit
}

// PermissionAuditEntry is an immutable record of one permission change.
type PermissionAuditEntry struct {
	ID             uuid.UUID   `json:"id"`
	OwnerScope     string      `json:"owner_scope"`
	TableID        uuid.UUID   `json:"table_id"`
	TableName      string      `json:"table_name"`
	SubjectID      string      `json:"subject_id"`
	SubjectName    string      `json:"subject_name,omitempty"`
	PreviousLevel  AccessLevel `json:"previous_level"`
	NewLevel       AccessLevel `json:"new_level"`
	ActingUserID   string      `json:"acting_user_id"`
	ActingUserName string      `json:"acting_user_name,omitempty"`
	ChangedAt      time.Time   `json:"changed_at"`
}

// SubjectAccess is one row of a table's permission matrix.
type SubjectAccess struct {
	SubjectID      string      `json:"subject_id"`
	DisplayName    string      `json:"display_name"`
	Email          string      `json:"email,omitempty"`
	TeamRole       string      `json:"team_role,omitempty"`
	IsOwner        bool        `json:"is_owner"`
	ExplicitLevel  AccessLevel `json:"explicit_level,omitempty"`
	EffectiveLevel AccessLevel `json:"effective_level"`
}

// TablePermissions is the permission matrix for one table.
type TablePermissions struct {
	TableID   uuid.UUID       `json:"table_id"`
	TableName string          `json:"table_name"`
	Subjects  []SubjectAccess `json:"subjects"`
}
