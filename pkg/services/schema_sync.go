package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/apperrors"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/catalog"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/coltype"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/database"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/ddl"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/models"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/repositories"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/retry"
)

// SchemaSyncService repairs the catalog from the live physical schema.
type SchemaSyncService interface {
	// SyncColumns makes the table's catalog columns match the physical table,
	// backfills DGUID values and registers every row. It never alters the
	// physical structure beyond adding a missing DGUID column, and running it
	// again without an intervening physical change writes nothing.
	SyncColumns(ctx context.Context, ownerScope string, tableID uuid.UUID) ([]models.ApplicationTableColumn, error)

	// RemoveShadowRows deletes, in one transaction, catalog rows that claim a
	// system table name under a foreign ID. It returns how many were removed.
	RemoveShadowRows(ctx context.Context, ownerScope string) (int, error)

	// Materialize stores a real catalog row for a system table under its derived ID.
	Materialize(ctx context.Context, ownerScope, systemName string) (*models.ApplicationTable, error)
}

// IntrospectionConfig bounds the retry of live schema reads.
type IntrospectionConfig struct {
	MaxRetries int
	RetryDelay time.Duration
}

type schemaSyncService struct {
	db       *database.DB
	tables   repositories.TableRepository
	records  repositories.RecordRepository
	perms    repositories.PermissionRepository
	executor *ddl.Executor
	registry *catalog.Registry
	resolver *tableResolver
	authz    *authorizer
	retry    *retry.Config
	logger   *zap.Logger
}

// NewSchemaSyncService creates a SchemaSyncService.
func NewSchemaSyncService(
	db *database.DB,
	tables repositories.TableRepository,
	records repositories.RecordRepository,
	perms repositories.PermissionRepository,
	executor *ddl.Executor,
	registry *catalog.Registry,
	roster RosterProvider,
	introspection IntrospectionConfig,
	logger *zap.Logger,
) SchemaSyncService {
	return &schemaSyncService{
		db:       db,
		tables:   tables,
		records:  records,
		perms:    perms,
		executor: executor,
		registry: registry,
		resolver: &tableResolver{tables: tables, registry: registry, ddl: executor},
		authz:    newAuthorizer(roster, perms, logger),
		retry:    retry.LinearConfig(introspection.MaxRetries, introspection.RetryDelay),
		logger:   logger.Named("schema-sync"),
	}
}

var _ SchemaSyncService = (*schemaSyncService)(nil)

func (s *schemaSyncService) SyncColumns(ctx context.Context, ownerScope string, tableID uuid.UUID) ([]models.ApplicationTableColumn, error) {
	table, err := s.resolver.load(ctx, ownerScope, tableID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authz.requireManage(ctx, table); err != nil {
		return nil, err
	}
	if table.IsSystem {
		if _, err := s.RemoveShadowRows(ctx, ownerScope); err != nil {
			return nil, err
		}
	}

	exists, err := s.executor.TableExists(ctx, table.Name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.NotFoundf("physical table %s does not exist", table.Name)
	}

	live, err := s.introspect(ctx, table.Name)
	if err != nil {
		return nil, err
	}
	if !hasIdentity(live) {
		if err := s.executor.AddIdentityColumn(ctx, table.Name); err != nil {
			return nil, err
		}
		s.logger.Info("Added missing DGUID column", zap.String("table", table.Name))
		if live, err = s.introspect(ctx, table.Name); err != nil {
			return nil, err
		}
	}

	ts := catalogNow()
	liveNames := make(map[string]struct{}, len(live))
	var created, updated, removed int

	for _, lc := range live {
		if strings.EqualFold(lc.Name, models.IdentityColumnName) {
			continue
		}
		liveNames[strings.ToLower(lc.Name)] = struct{}{}

		current, ok := table.Column(lc.Name)
		if !ok {
			col := s.columnFromLive(lc, "")
			col.TableID = table.ID
			col.CreatedAt = ts
			if err := s.tables.CreateColumn(ctx, ownerScope, col); err != nil {
				return nil, err
			}
			created++
			continue
		}

		want := s.columnFromLive(lc, current.DataType)
		want.ID = current.ID
		want.TableID = current.TableID
		want.CreatedAt = current.CreatedAt
		if want.Name == current.Name && want.Nullable == current.Nullable && want.SameShape(current) {
			continue
		}
		if err := s.tables.UpdateColumn(ctx, ownerScope, want); err != nil {
			return nil, err
		}
		updated++
	}

	for _, c := range table.Columns {
		if _, ok := liveNames[strings.ToLower(c.Name)]; ok {
			continue
		}
		if err := s.tables.DeleteColumn(ctx, ownerScope, c.ID); err != nil {
			return nil, err
		}
		removed++
	}

	backfilled, err := s.executor.BackfillIdentity(ctx, table.Name)
	if err != nil {
		return nil, err
	}
	registered, err := s.records.InsertMissing(ctx, ownerScope, table.ID, table.Name, ts)
	if err != nil {
		return nil, err
	}

	if created+updated+removed > 0 || backfilled > 0 || registered > 0 {
		s.logger.Info("Reconciled catalog with physical table",
			zap.String("owner_scope", ownerScope),
			zap.String("table", table.Name),
			zap.Int("columns_created", created),
			zap.Int("columns_updated", updated),
			zap.Int("columns_removed", removed),
			zap.Int64("dguid_backfilled", backfilled),
			zap.Int64("records_registered", registered))
	}

	return s.tables.ListColumns(ctx, ownerScope, table.ID)
}

// introspect reads the live columns, retrying only lock/busy errors.
func (s *schemaSyncService) introspect(ctx context.Context, table string) ([]models.LiveColumn, error) {
	d := s.executor.Dialect()
	cols, err := retry.DoWithResultIf(ctx, s.retry, d.IsTransient, func() ([]models.LiveColumn, error) {
		return d.IntrospectColumns(ctx, database.QuerierFrom(ctx, s.db.DB), table)
	})
	if err != nil {
		return nil, fmt.Errorf("introspect %s: %w", table, err)
	}
	return cols, nil
}

// columnFromLive builds the catalog form of a live column. A recorded label
// that renders to the same storage as the live type is kept, so shims such as
// image (stored as text) or bit (stored as integer) survive a sync.
func (s *schemaSyncService) columnFromLive(lc models.LiveColumn, recorded models.ColumnType) *models.ApplicationTableColumn {
	d := s.executor.Dialect()
	label := lc.DataType
	if recorded != "" && recorded != label &&
		d.ColumnType(recorded, lc.Length, lc.Precision, lc.Scale) == d.ColumnType(label, lc.Length, lc.Precision, lc.Scale) {
		label = recorded
	}
	length, precision, scale := coltype.Normalize(label, lc.Length, lc.Precision, lc.Scale)
	return &models.ApplicationTableColumn{
		Name:      lc.Name,
		DataType:  label,
		Length:    length,
		Precision: precision,
		Scale:     scale,
		Nullable:  lc.Nullable,
	}
}

func hasIdentity(cols []models.LiveColumn) bool {
	for _, c := range cols {
		if strings.EqualFold(c.Name, models.IdentityColumnName) {
			return true
		}
	}
	return false
}

func (s *schemaSyncService) RemoveShadowRows(ctx context.Context, ownerScope string) (int, error) {
	removed := 0
	err := s.db.InTx(ctx, func(ctx context.Context) error {
		removed = 0
		for _, st := range s.registry.All() {
			rows, err := s.tables.ListByName(ctx, ownerScope, st.Name)
			if err != nil {
				return err
			}
			for _, row := range rows {
				if !s.registry.IsShadow(row) {
					continue
				}
				records, err := s.records.DeleteByTable(ctx, ownerScope, row.ID)
				if err != nil {
					return err
				}
				if err := s.tables.Delete(ctx, ownerScope, row.ID); err != nil {
					return err
				}
				if err := s.perms.DeleteByTable(ctx, ownerScope, row.ID); err != nil {
					return err
				}
				s.logger.Warn("Removed catalog row shadowing a system table",
					zap.String("owner_scope", ownerScope),
					zap.String("table", row.Name),
					zap.String("shadow_id", row.ID.String()),
					zap.String("system_id", st.ID.String()),
					zap.Int64("records_removed", records))
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *schemaSyncService) Materialize(ctx context.Context, ownerScope, systemName string) (*models.ApplicationTable, error) {
	st, ok := s.registry.ByName(systemName)
	if !ok {
		return nil, apperrors.NotFoundf("%q is not a system table", systemName)
	}
	if _, err := s.authz.requireCreator(ctx, ownerScope); err != nil {
		return nil, err
	}
	if _, err := s.RemoveShadowRows(ctx, ownerScope); err != nil {
		return nil, err
	}

	table, err := s.tables.GetByID(ctx, ownerScope, st.ID)
	if err == nil {
		return table, nil
	}
	if apperrors.KindOf(err) != apperrors.KindNotFound {
		return nil, err
	}

	table = st.VirtualEntry(ownerScope)
	table.CreatedAt = catalogNow()
	if err := s.tables.Create(ctx, table); err != nil {
		return nil, err
	}
	// Columns synced before materialization already carry the derived ID.
	if table.Columns, err = s.tables.ListColumns(ctx, ownerScope, st.ID); err != nil {
		return nil, err
	}
	s.logger.Info("Materialized system table", zap.String("owner_scope", ownerScope), zap.String("table", st.Name))
	return table, nil
}
