// Package access resolves a subject's effective access level to an
// application table from the owner, explicit override and team role layers.
package access

import (
	"strings"

	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/models"
)

// Subject carries the inputs of one resolution.
type Subject struct {
	SubjectID     string
	OwnerID       string
	TeamRole      string
	IsMember      bool               // subject is on the active roster
	ExplicitLevel models.AccessLevel // empty when no override exists
}

// ResolveEffectiveAccess applies the precedence owner > explicit override > team role.
// A subject that is neither owner, overridden, nor on the roster gets None.
func ResolveEffectiveAccess(s Subject) models.AccessLevel {
	if s.SubjectID != "" && s.SubjectID == s.OwnerID {
		return models.AccessAdmin
	}
	if strings.TrimSpace(string(s.ExplicitLevel)) != "" {
		return NormalizeAccess(string(s.ExplicitLevel))
	}
	if !s.IsMember {
		return models.AccessNone
	}
	if models.IsTeamAdmin(s.TeamRole) {
		return models.AccessManage
	}
	return models.AccessViewOnly
}

// ParseAccessLevel is the strict parser: it matches ViewOnly, Manage or Admin
// case-insensitively and reports whether the token was recognized.
func ParseAccessLevel(token string) (models.AccessLevel, bool) {
	t := strings.TrimSpace(token)
	for _, l := range []models.AccessLevel{models.AccessViewOnly, models.AccessManage, models.AccessAdmin} {
		if strings.EqualFold(t, string(l)) {
			return l, true
		}
	}
	return "", false
}

// ParseAccessLevelOrDefault is the permissive policy used for stored and
// submitted override tokens: anything unrecognized becomes ViewOnly. A typo in
// a grant therefore degrades the subject to read access instead of failing the
// save or locking them out.
func ParseAccessLevelOrDefault(token string) models.AccessLevel {
	if l, ok := ParseAccessLevel(token); ok {
		return l
	}
	return models.AccessViewOnly
}

// NormalizeAccess canonicalizes an override token under the permissive policy.
func NormalizeAccess(token string) models.AccessLevel {
	return ParseAccessLevelOrDefault(token)
}

// CanView is true for any level except None.
func CanView(l models.AccessLevel) bool { return l.CanView() }

// CanManage is true only for Manage and Admin.
func CanManage(l models.AccessLevel) bool { return l.CanManage() }
