package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/access"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/apperrors"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/audit"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/catalog"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/ddl"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/models"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/repositories"
)

// RosterProvider supplies the active team members of an owner scope.
type RosterProvider interface {
	ListActiveMembers(ctx context.Context, ownerScope string) ([]models.RosterMember, error)
}

// catalogNow is the single timestamp stamped on every row an operation writes.
func catalogNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// tableResolver loads catalog entries, merging stored rows with the system
// table registry.
type tableResolver struct {
	tables   repositories.TableRepository
	registry *catalog.Registry
	ddl      *ddl.Executor
}

// load returns the table with its columns. A system table without a stored
// row resolves to its virtual entry while the physical table exists.
func (r *tableResolver) load(ctx context.Context, ownerScope string, id uuid.UUID) (*models.ApplicationTable, error) {
	t, err := r.tables.GetByID(ctx, ownerScope, id)
	if err == nil {
		if st, ok := r.registry.ByID(id); ok {
			t.IsSystem = true
			if t.DisplayName == "" {
				t.DisplayName = st.DisplayName
			}
		}
		return t, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	st, ok := r.registry.ByID(id)
	if !ok {
		return nil, err
	}
	exists, xerr := r.ddl.TableExists(ctx, st.Name)
	if xerr != nil {
		return nil, xerr
	}
	if !exists {
		return nil, apperrors.NotFoundf("table %s not found", id)
	}
	v := st.VirtualEntry(ownerScope)
	if v.Columns, err = r.tables.ListColumns(ctx, ownerScope, st.ID); err != nil {
		return nil, err
	}
	return v, nil
}

// loadAll returns stored tables (shadow rows excluded) followed by system
// tables that physically exist but have no stored row.
func (r *tableResolver) loadAll(ctx context.Context, ownerScope string) ([]*models.ApplicationTable, error) {
	stored, err := r.tables.ListByScope(ctx, ownerScope)
	if err != nil {
		return nil, err
	}

	out := make([]*models.ApplicationTable, 0, len(stored))
	have := make(map[uuid.UUID]struct{}, len(stored))
	for _, t := range stored {
		if r.registry.IsShadow(t) {
			continue
		}
		if st, ok := r.registry.ByID(t.ID); ok {
			t.IsSystem = true
			if t.DisplayName == "" {
				t.DisplayName = st.DisplayName
			}
		}
		have[t.ID] = struct{}{}
		out = append(out, t)
	}

	for _, st := range r.registry.All() {
		if _, ok := have[st.ID]; ok {
			continue
		}
		exists, err := r.ddl.TableExists(ctx, st.Name)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}
		v := st.VirtualEntry(ownerScope)
		if v.Columns, err = r.tables.ListColumns(ctx, ownerScope, st.ID); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// authorizer resolves the acting user's access from the context actor, the
// roster and explicit grants.
type authorizer struct {
	roster   RosterProvider
	perms    repositories.PermissionRepository
	security *audit.SecurityAuditor
}

func newAuthorizer(roster RosterProvider, perms repositories.PermissionRepository, logger *zap.Logger) *authorizer {
	return &authorizer{roster: roster, perms: perms, security: audit.NewSecurityAuditor(logger)}
}

func (z *authorizer) deny(ctx context.Context, ownerScope string, t *models.ApplicationTable, operation, required string) {
	d := audit.AccessDeniedDetails{Operation: operation, Required: required}
	var tableID uuid.UUID
	if t != nil {
		tableID = t.ID
		d.TableName = t.Name
	}
	z.security.LogAccessDenied(ctx, ownerScope, tableID, d)
}

func actorFrom(ctx context.Context) (models.Actor, error) {
	a, ok := models.GetActor(ctx)
	if !ok || a.UserID == "" {
		return models.Actor{}, apperrors.Forbiddenf("no authenticated user")
	}
	return a, nil
}

func isOwner(a models.Actor, ownerScope string) bool {
	if a.UserID == ownerScope {
		return true
	}
	return a.IsOwner && a.OwnerScope == ownerScope
}

// rosterIndex returns the active roster keyed by user ID.
func (z *authorizer) rosterIndex(ctx context.Context, ownerScope string) (map[string]models.RosterMember, []models.RosterMember, error) {
	members, err := z.roster.ListActiveMembers(ctx, ownerScope)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load roster: %w", err)
	}
	idx := make(map[string]models.RosterMember, len(members))
	for _, m := range members {
		idx[m.UserID] = m
	}
	return idx, members, nil
}

// levelOf resolves one subject's effective level on one table.
func (z *authorizer) levelOf(ctx context.Context, ownerScope string, tableID uuid.UUID, subjectID string) (models.AccessLevel, error) {
	if subjectID == ownerScope {
		return models.AccessAdmin, nil
	}
	idx, _, err := z.rosterIndex(ctx, ownerScope)
	if err != nil {
		return "", err
	}
	grant, err := z.perms.Get(ctx, ownerScope, tableID, subjectID)
	if err != nil {
		return "", err
	}
	member, isMember := idx[subjectID]
	s := access.Subject{
		SubjectID: subjectID,
		OwnerID:   ownerScope,
		TeamRole:  member.Role,
		IsMember:  isMember,
	}
	if grant != nil {
		s.ExplicitLevel = grant.AccessLevel
	}
	return access.ResolveEffectiveAccess(s), nil
}

// actorLevel resolves the acting user's level on one table.
func (z *authorizer) actorLevel(ctx context.Context, ownerScope string, tableID uuid.UUID) (models.Actor, models.AccessLevel, error) {
	a, err := actorFrom(ctx)
	if err != nil {
		return a, "", err
	}
	if isOwner(a, ownerScope) {
		return a, models.AccessAdmin, nil
	}
	level, err := z.levelOf(ctx, ownerScope, tableID, a.UserID)
	return a, level, err
}

func (z *authorizer) requireManage(ctx context.Context, t *models.ApplicationTable) (models.Actor, error) {
	a, level, err := z.actorLevel(ctx, t.OwnerScope, t.ID)
	if err != nil {
		return a, err
	}
	if !level.CanManage() {
		z.deny(ctx, t.OwnerScope, t, "manage", string(models.AccessManage))
		return a, apperrors.Forbiddenf("manage access to %s is required", t.Name)
	}
	return a, nil
}

func (z *authorizer) requireAdmin(ctx context.Context, t *models.ApplicationTable) (models.Actor, error) {
	a, level, err := z.actorLevel(ctx, t.OwnerScope, t.ID)
	if err != nil {
		return a, err
	}
	if !level.IsAdmin() {
		z.deny(ctx, t.OwnerScope, t, "administer", string(models.AccessAdmin))
		return a, apperrors.Forbiddenf("admin access to %s is required", t.Name)
	}
	return a, nil
}

// requireCreator allows the owner and roster members holding the Admin team role.
func (z *authorizer) requireCreator(ctx context.Context, ownerScope string) (models.Actor, error) {
	a, err := actorFrom(ctx)
	if err != nil {
		return a, err
	}
	if isOwner(a, ownerScope) {
		return a, nil
	}
	idx, _, err := z.rosterIndex(ctx, ownerScope)
	if err != nil {
		return a, err
	}
	if m, ok := idx[a.UserID]; ok && models.IsTeamAdmin(m.Role) {
		return a, nil
	}
	z.deny(ctx, ownerScope, nil, "create_table", "team_admin")
	return a, apperrors.Forbiddenf("only the owner or a team admin can create tables")
}

// visibility resolves the actor's level on every table in one pass: one roster
// read and one grant read for the subject.
func (z *authorizer) visibility(ctx context.Context, ownerScope string) (func(uuid.UUID) models.AccessLevel, error) {
	a, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if isOwner(a, ownerScope) {
		return func(uuid.UUID) models.AccessLevel { return models.AccessAdmin }, nil
	}

	idx, _, err := z.rosterIndex(ctx, ownerScope)
	if err != nil {
		return nil, err
	}
	grants, err := z.perms.ListBySubject(ctx, ownerScope, a.UserID)
	if err != nil {
		return nil, err
	}
	explicit := make(map[uuid.UUID]models.AccessLevel, len(grants))
	for _, g := range grants {
		explicit[g.TableID] = g.AccessLevel
	}
	member, isMember := idx[a.UserID]

	return func(tableID uuid.UUID) models.AccessLevel {
		return access.ResolveEffectiveAccess(access.Subject{
			SubjectID:     a.UserID,
			OwnerID:       ownerScope,
			TeamRole:      member.Role,
			IsMember:      isMember,
			ExplicitLevel: explicit[tableID],
		})
	}, nil
}
