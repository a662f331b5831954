package models

import (
	"context"
	"strings"
	"time"
)

// Team role constants. Only Admin carries elevated default table access.
const (
	TeamRoleAdmin  = "Admin"
	TeamRoleEditor = "Editor"
	TeamRoleViewer = "Viewer"
)

// IsTeamAdmin matches the Admin role case-insensitively.
func IsTeamAdmin(role string) bool {
	return strings.EqualFold(strings.TrimSpace(role), TeamRoleAdmin)
}

// RosterMember is an active subject eligible to receive permissions.
type RosterMember struct {
	OwnerScope  string    `json:"owner_scope"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email,omitempty"`
	Role        string    `json:"role"`
	Active      bool      `json:"active"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Actor is the authenticated user performing an operation. IsOwner marks
// the actor as owner of OwnerScope only; a user whose ID is the scope owns
// it regardless.
type Actor struct {
	UserID      string
	DisplayName string
	OwnerScope  string
	IsOwner     bool
}

type actorKey struct{}

// WithActor returns a new context carrying the acting user.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// GetActor retrieves the acting user from the context.
func GetActor(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
