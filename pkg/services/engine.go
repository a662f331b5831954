package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/catalog"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/database"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/ddl"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/dialect"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/repositories"
)

// EngineOptions tunes the assembled services.
type EngineOptions struct {
	// Roster overrides the TeamMember-backed roster provider.
	Roster            RosterProvider
	Introspection     IntrospectionConfig
	DefaultAuditLimit int
}

// Engine is the collaborator-facing set of services sharing one catalog database.
type Engine struct {
	Tables      TableService
	Sync        SchemaSyncService
	Permissions PermissionService
	Forms       FormService

	tables repositories.TableRepository
	logger *zap.Logger
}

// NewEngine wires repositories, the DDL executor and every service for one dialect.
func NewEngine(db *database.DB, d dialect.Dialect, registry *catalog.Registry, opts EngineOptions, logger *zap.Logger) *Engine {
	tables := repositories.NewTableRepository(db.DB, d)
	records := repositories.NewRecordRepository(db.DB, d)
	grants := repositories.NewPermissionRepository(db.DB, d)
	audit := repositories.NewPermissionAuditRepository(db.DB, d)
	executor := ddl.NewExecutor(db.DB, d, logger)

	roster := opts.Roster
	if roster == nil {
		roster = repositories.NewTeamMemberRepository(db.DB, d)
	}

	sync := NewSchemaSyncService(db, tables, records, grants, executor, registry, roster, opts.Introspection, logger)
	return &Engine{
		Tables:      NewTableService(db, tables, records, grants, executor, registry, roster, logger),
		Sync:        sync,
		Permissions: NewPermissionService(db, tables, grants, audit, executor, registry, roster, opts.DefaultAuditLimit, logger),
		Forms:       NewFormService(tables, grants, executor, registry, roster, logger),
		tables:      tables,
		logger:      logger.Named("engine"),
	}
}

// Maintain removes shadow rows and orphaned grants in every owner scope.
func (e *Engine) Maintain(ctx context.Context) error {
	scopes, err := e.tables.ListOwnerScopes(ctx)
	if err != nil {
		return err
	}
	var shadows int
	var orphans int64
	for _, scope := range scopes {
		n, err := e.Sync.RemoveShadowRows(ctx, scope)
		if err != nil {
			return fmt.Errorf("remove shadow rows in %s: %w", scope, err)
		}
		shadows += n
		m, err := e.Permissions.CleanupOrphanedPermissions(ctx, scope)
		if err != nil {
			return fmt.Errorf("cleanup orphaned grants in %s: %w", scope, err)
		}
		orphans += m
	}
	e.logger.Info("Catalog maintenance complete",
		zap.Int("scopes", len(scopes)),
		zap.Int("shadow_rows_removed", shadows),
		zap.Int64("orphaned_grants_removed", orphans))
	return nil
}
