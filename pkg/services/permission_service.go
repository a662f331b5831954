package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/access"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/apperrors"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/catalog"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/database"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/ddl"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/models"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/repositories"
)

// PermissionService manages explicit per-table access overrides and their audit trail.
type PermissionService interface {
	// GetPermissionsForTable returns the permission matrix: the owner first,
	// then every active roster member with explicit and effective levels.
	GetPermissionsForTable(ctx context.Context, ownerScope string, tableID uuid.UUID) (*models.TablePermissions, error)

	// SavePermissions applies the writes and audits every subject whose
	// explicit or effective level changed.
	SavePermissions(ctx context.Context, ownerScope string, tableID uuid.UUID, writes []models.PermissionWrite) (*models.TablePermissions, error)

	// GetEffectiveAccess resolves one subject's level on one table.
	GetEffectiveAccess(ctx context.Context, ownerScope string, tableID uuid.UUID, subjectID string) (models.AccessLevel, error)

	// GetAuditHistory returns the newest entries first; limit <= 0 uses the default.
	GetAuditHistory(ctx context.Context, ownerScope string, tableID uuid.UUID, limit int) ([]models.PermissionAuditEntry, error)

	// BackfillMissingPermissions resolves every (table, roster member) pair.
	// Members without a grant fall back to their team role, so nothing is
	// written; the resolved matrices are returned.
	BackfillMissingPermissions(ctx context.Context, ownerScope string, tableIDs []uuid.UUID, roster []models.RosterMember) ([]models.TablePermissions, error)

	// CleanupOrphanedPermissions deletes grants of subjects no longer on the active roster.
	CleanupOrphanedPermissions(ctx context.Context, ownerScope string) (int64, error)

	// RecordAuditEntries appends one entry per change whose explicit or
	// effective level moved, and returns how many were written.
	RecordAuditEntries(ctx context.Context, ownerScope string, tableID uuid.UUID, tableName string, actor models.Actor, changes []models.PermissionChange) (int, error)
}

type permissionService struct {
	db           *database.DB
	perms        repositories.PermissionRepository
	audit        repositories.PermissionAuditRepository
	roster       RosterProvider
	resolver     *tableResolver
	authz        *authorizer
	defaultLimit int
	logger       *zap.Logger
}

// NewPermissionService creates a PermissionService.
func NewPermissionService(
	db *database.DB,
	tables repositories.TableRepository,
	perms repositories.PermissionRepository,
	audit repositories.PermissionAuditRepository,
	executor *ddl.Executor,
	registry *catalog.Registry,
	roster RosterProvider,
	defaultAuditLimit int,
	logger *zap.Logger,
) PermissionService {
	if defaultAuditLimit <= 0 {
		defaultAuditLimit = 100
	}
	return &permissionService{
		db:           db,
		perms:        perms,
		audit:        audit,
		roster:       roster,
		resolver:     &tableResolver{tables: tables, registry: registry, ddl: executor},
		authz:        newAuthorizer(roster, perms, logger),
		defaultLimit: defaultAuditLimit,
		logger:       logger.Named("permissions"),
	}
}

var _ PermissionService = (*permissionService)(nil)

func (s *permissionService) GetPermissionsForTable(ctx context.Context, ownerScope string, tableID uuid.UUID) (*models.TablePermissions, error) {
	table, err := s.resolver.load(ctx, ownerScope, tableID)
	if err != nil {
		return nil, err
	}
	actor, err := s.authz.requireManage(ctx, table)
	if err != nil {
		return nil, err
	}
	if _, err := s.CleanupOrphanedPermissions(ctx, ownerScope); err != nil {
		return nil, err
	}

	members, err := s.roster.ListActiveMembers(ctx, ownerScope)
	if err != nil {
		return nil, err
	}
	grants, err := s.perms.ListByTable(ctx, ownerScope, table.ID)
	if err != nil {
		return nil, err
	}
	return buildMatrix(table, members, grants, actor), nil
}

// buildMatrix resolves the owner row and one row per roster member.
func buildMatrix(table *models.ApplicationTable, members []models.RosterMember, grants []models.PermissionGrant, actor models.Actor) *models.TablePermissions {
	explicit := make(map[string]models.AccessLevel, len(grants))
	for _, g := range grants {
		explicit[g.SubjectID] = g.AccessLevel
	}

	owner := models.SubjectAccess{
		SubjectID:      table.OwnerScope,
		DisplayName:    table.OwnerScope,
		IsOwner:        true,
		EffectiveLevel: models.AccessAdmin,
	}
	if actor.UserID == table.OwnerScope && actor.DisplayName != "" {
		owner.DisplayName = actor.DisplayName
	}

	out := &models.TablePermissions{TableID: table.ID, TableName: table.Label()}
	subjects := make([]models.SubjectAccess, 0, len(members))
	for _, m := range members {
		if m.UserID == table.OwnerScope {
			owner.DisplayName = m.DisplayName
			owner.Email = m.Email
			owner.TeamRole = m.Role
			continue
		}
		level := explicit[m.UserID]
		subjects = append(subjects, models.SubjectAccess{
			SubjectID:     m.UserID,
			DisplayName:   m.DisplayName,
			Email:         m.Email,
			TeamRole:      m.Role,
			ExplicitLevel: level,
			EffectiveLevel: access.ResolveEffectiveAccess(access.Subject{
				SubjectID:     m.UserID,
				OwnerID:       table.OwnerScope,
				TeamRole:      m.Role,
				IsMember:      true,
				ExplicitLevel: level,
			}),
		})
	}
	out.Subjects = append([]models.SubjectAccess{owner}, subjects...)
	return out
}

func (s *permissionService) SavePermissions(ctx context.Context, ownerScope string, tableID uuid.UUID, writes []models.PermissionWrite) (*models.TablePermissions, error) {
	table, err := s.resolver.load(ctx, ownerScope, tableID)
	if err != nil {
		return nil, err
	}
	actor, err := s.authz.requireAdmin(ctx, table)
	if err != nil {
		return nil, err
	}
	if _, err := s.CleanupOrphanedPermissions(ctx, ownerScope); err != nil {
		return nil, err
	}

	members, err := s.roster.ListActiveMembers(ctx, ownerScope)
	if err != nil {
		return nil, err
	}
	roster := make(map[string]models.RosterMember, len(members))
	for _, m := range members {
		roster[m.UserID] = m
	}

	type pending struct {
		member models.RosterMember
		level  models.AccessLevel
	}
	var todo []pending
	seen := make(map[string]struct{}, len(writes))
	for _, w := range writes {
		subject := strings.TrimSpace(w.SubjectID)
		if subject == "" {
			return nil, apperrors.Validationf("permission write without a subject")
		}
		if subject == ownerScope {
			// The owner is always Admin; a write for them is ignored.
			continue
		}
		m, ok := roster[subject]
		if !ok {
			return nil, apperrors.Validationf("subject %s is not an active team member", subject)
		}
		if _, dup := seen[subject]; dup {
			return nil, apperrors.Validationf("subject %s is submitted more than once", subject)
		}
		seen[subject] = struct{}{}

		var level models.AccessLevel
		if strings.TrimSpace(string(w.Level)) != "" {
			// Unrecognized tokens become ViewOnly instead of failing the save;
			// see access.ParseAccessLevelOrDefault.
			level = access.NormalizeAccess(string(w.Level))
		}
		todo = append(todo, pending{member: m, level: level})
	}

	ts := catalogNow()
	err = s.db.InTx(ctx, func(ctx context.Context) error {
		changes := make([]models.PermissionChange, 0, len(todo))
		for _, p := range todo {
			prev, err := s.perms.Get(ctx, ownerScope, table.ID, p.member.UserID)
			if err != nil {
				return err
			}
			var prevExplicit models.AccessLevel
			if prev != nil {
				prevExplicit = prev.AccessLevel
			}

			grant := &models.PermissionGrant{
				OwnerScope:  ownerScope,
				TableID:     table.ID,
				SubjectID:   p.member.UserID,
				AccessLevel: p.level,
				UpdatedAt:   ts,
			}
			if prevExplicit != p.level {
				if err := s.perms.Upsert(ctx, grant); err != nil {
					return err
				}
			}

			subject := access.Subject{
				SubjectID: p.member.UserID,
				OwnerID:   ownerScope,
				TeamRole:  p.member.Role,
				IsMember:  true,
			}
			before, after := subject, subject
			before.ExplicitLevel = prevExplicit
			after.ExplicitLevel = p.level
			changes = append(changes, models.PermissionChange{
				SubjectID:        p.member.UserID,
				SubjectName:      p.member.DisplayName,
				PreviousExplicit: prevExplicit,
				NewExplicit:      p.level,
				PreviousLevel:    access.ResolveEffectiveAccess(before),
				NewLevel:         access.ResolveEffectiveAccess(after),
			})
		}
		_, err := s.recordAudit(ctx, ownerScope, table.ID, table.Label(), actor, changes, ts)
		return err
	})
	if err != nil {
		return nil, err
	}

	grants, err := s.perms.ListByTable(ctx, ownerScope, table.ID)
	if err != nil {
		return nil, err
	}
	return buildMatrix(table, members, grants, actor), nil
}

func (s *permissionService) GetEffectiveAccess(ctx context.Context, ownerScope string, tableID uuid.UUID, subjectID string) (models.AccessLevel, error) {
	table, err := s.resolver.load(ctx, ownerScope, tableID)
	if err != nil {
		return "", err
	}
	actor, err := actorFrom(ctx)
	if err != nil {
		return "", err
	}
	if subjectID == "" || subjectID == actor.UserID {
		_, level, err := s.authz.actorLevel(ctx, ownerScope, table.ID)
		return level, err
	}
	if _, err := s.authz.requireManage(ctx, table); err != nil {
		return "", err
	}
	return s.authz.levelOf(ctx, ownerScope, table.ID, subjectID)
}

func (s *permissionService) GetAuditHistory(ctx context.Context, ownerScope string, tableID uuid.UUID, limit int) ([]models.PermissionAuditEntry, error) {
	table, err := s.resolver.load(ctx, ownerScope, tableID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authz.requireManage(ctx, table); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}
	return s.audit.ListByTable(ctx, ownerScope, table.ID, limit)
}

func (s *permissionService) BackfillMissingPermissions(ctx context.Context, ownerScope string, tableIDs []uuid.UUID, roster []models.RosterMember) ([]models.TablePermissions, error) {
	actor, _ := models.GetActor(ctx)
	out := make([]models.TablePermissions, 0, len(tableIDs))
	for _, id := range tableIDs {
		table, err := s.resolver.load(ctx, ownerScope, id)
		if err != nil {
			return nil, err
		}
		grants, err := s.perms.ListByTable(ctx, ownerScope, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *buildMatrix(table, roster, grants, actor))
	}
	return out, nil
}

func (s *permissionService) CleanupOrphanedPermissions(ctx context.Context, ownerScope string) (int64, error) {
	members, err := s.roster.ListActiveMembers(ctx, ownerScope)
	if err != nil {
		return 0, err
	}
	active := make([]string, 0, len(members))
	for _, m := range members {
		active = append(active, m.UserID)
	}
	n, err := s.perms.DeleteOrphaned(ctx, ownerScope, active)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("Removed orphaned permission grants",
			zap.String("owner_scope", ownerScope),
			zap.Int64("removed", n))
	}
	return n, nil
}

func (s *permissionService) RecordAuditEntries(ctx context.Context, ownerScope string, tableID uuid.UUID, tableName string, actor models.Actor, changes []models.PermissionChange) (int, error) {
	return s.recordAudit(ctx, ownerScope, tableID, tableName, actor, changes, catalogNow())
}

func (s *permissionService) recordAudit(ctx context.Context, ownerScope string, tableID uuid.UUID, tableName string, actor models.Actor, changes []models.PermissionChange, ts time.Time) (int, error) {
	entries := make([]models.PermissionAuditEntry, 0, len(changes))
	for _, c := range changes {
		if !c.Changed() {
			continue
		}
		prev, next := c.PreviousLevel, c.NewLevel
		if prev == "" {
			prev = models.AccessNone
		}
		if next == "" {
			next = models.AccessNone
		}
		entries = append(entries, models.PermissionAuditEntry{
			ID:             uuid.New(),
			OwnerScope:     ownerScope,
			TableID:        tableID,
			TableName:      tableName,
			SubjectID:      c.SubjectID,
			SubjectName:    c.SubjectName,
			PreviousLevel:  prev,
			NewLevel:       next,
			ActingUserID:   actor.UserID,
			ActingUserName: actor.DisplayName,
			ChangedAt:      ts,
		})
	}
	if err := s.audit.Create(ctx, entries); err != nil {
		return 0, err
	}
	if len(entries) > 0 {
		s.logger.Info("Recorded permission changes",
			zap.String("owner_scope", ownerScope),
			zap.String("table_id", tableID.String()),
			zap.String("acting_user", actor.UserID),
			zap.Int("entries", len(entries)))
	}
	return len(entries), nil
}
