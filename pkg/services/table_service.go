package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/apperrors"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/catalog"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/coltype"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/database"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/ddl"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/identifier"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/models"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/repositories"
)

// TableService manages application tables: the physical table and its
// catalog entry change together.
type TableService interface {
	// CreateTable creates the physical table and its catalog rows.
	CreateTable(ctx context.Context, ownerScope, name string, columns []models.ColumnSpec) (*models.ApplicationTable, error)

	// AlterTable applies the full desired column set and an optional rename.
	AlterTable(ctx context.Context, ownerScope string, tableID uuid.UUID, newName string, columns []models.ColumnSpec) (*models.ApplicationTable, error)

	// DeleteTable drops the physical table and every catalog row scoped to it.
	DeleteTable(ctx context.Context, ownerScope string, tableID uuid.UUID) error

	// ListTables returns the tables the acting user can view.
	ListTables(ctx context.Context, ownerScope string) ([]*models.ApplicationTable, error)

	// GetTable returns one table the acting user can view.
	GetTable(ctx context.Context, ownerScope string, tableID uuid.UUID) (*models.ApplicationTable, error)

	// LoadTable and LoadAllTables read the catalog without access checks.
	LoadTable(ctx context.Context, ownerScope string, tableID uuid.UUID) (*models.ApplicationTable, error)
	LoadAllTables(ctx context.Context, ownerScope string) ([]*models.ApplicationTable, error)

	// TableExists reports whether a physical table exists.
	TableExists(ctx context.Context, physicalName string) (bool, error)
}

type tableService struct {
	db       *database.DB
	tables   repositories.TableRepository
	records  repositories.RecordRepository
	perms    repositories.PermissionRepository
	executor *ddl.Executor
	registry *catalog.Registry
	resolver *tableResolver
	authz    *authorizer
	locks    *tableLocks
	logger   *zap.Logger
}

// NewTableService creates a TableService.
func NewTableService(
	db *database.DB,
	tables repositories.TableRepository,
	records repositories.RecordRepository,
	perms repositories.PermissionRepository,
	executor *ddl.Executor,
	registry *catalog.Registry,
	roster RosterProvider,
	logger *zap.Logger,
) TableService {
	return &tableService{
		db:       db,
		tables:   tables,
		records:  records,
		perms:    perms,
		executor: executor,
		registry: registry,
		resolver: &tableResolver{tables: tables, registry: registry, ddl: executor},
		authz:    newAuthorizer(roster, perms, logger),
		locks:    newTableLocks(),
		logger:   logger.Named("tables"),
	}
}

var _ TableService = (*tableService)(nil)

func (s *tableService) CreateTable(ctx context.Context, ownerScope, name string, columns []models.ColumnSpec) (*models.ApplicationTable, error) {
	if _, err := s.authz.requireCreator(ctx, ownerScope); err != nil {
		return nil, err
	}
	if err := identifier.Validate(name); err != nil {
		return nil, fmt.Errorf("table name: %w", err)
	}
	if s.registry.IsReserved(name) {
		return nil, apperrors.Conflictf("table name %q is reserved for a system table", name)
	}

	active, err := validateNewColumns(canonicalSpecs(columns))
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(ownerScope, name)
	defer unlock()

	table := &models.ApplicationTable{
		ID:         uuid.New(),
		OwnerScope: ownerScope,
		Name:       name,
		CreatedAt:  catalogNow(),
	}
	for _, c := range active {
		length, precision, scale := coltype.Normalize(c.DataType, c.Length, c.Precision, c.Scale)
		table.Columns = append(table.Columns, models.ApplicationTableColumn{
			ID:        uuid.New(),
			TableID:   table.ID,
			Name:      c.Name,
			DataType:  c.DataType,
			Length:    length,
			Precision: precision,
			Scale:     scale,
			Nullable:  c.Nullable,
			CreatedAt: table.CreatedAt,
		})
	}

	err = s.db.InTx(ctx, func(ctx context.Context) error {
		if err := s.ensureNameFree(ctx, ownerScope, name); err != nil {
			return err
		}
		if err := s.executor.CreateTable(ctx, name, active); err != nil {
			return err
		}
		return s.tables.Create(ctx, table)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Created application table",
		zap.String("owner_scope", ownerScope),
		zap.String("table", name),
		zap.String("table_id", table.ID.String()),
		zap.Int("columns", len(table.Columns)))
	return table, nil
}

// ensureNameFree reports Conflict when name is taken physically or in the
// owner's catalog.
func (s *tableService) ensureNameFree(ctx context.Context, ownerScope, name string) error {
	exists, err := s.executor.TableExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return apperrors.Conflictf("table %q already exists", name)
	}
	rows, err := s.tables.ListByName(ctx, ownerScope, name)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		return apperrors.Conflictf("table %q already exists in the catalog", name)
	}
	return nil
}

// canonicalSpecs copies a submission with type tokens lowercased and trimmed.
func canonicalSpecs(columns []models.ColumnSpec) []models.ColumnSpec {
	out := make([]models.ColumnSpec, len(columns))
	for i, c := range columns {
		c.DataType = models.ParseColumnType(string(c.DataType))
		c.Name = strings.TrimSpace(c.Name)
		c.OriginalName = strings.TrimSpace(c.OriginalName)
		out[i] = c
	}
	return out
}

// validateNewColumns checks a create submission and returns its active columns.
func validateNewColumns(columns []models.ColumnSpec) ([]models.ColumnSpec, error) {
	var active []models.ColumnSpec
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if c.Deleted {
			continue
		}
		if err := validateColumnDefinition(c); err != nil {
			return nil, err
		}
		key := strings.ToLower(c.Name)
		if _, dup := seen[key]; dup {
			return nil, apperrors.Validationf("duplicate column name %q", c.Name)
		}
		seen[key] = struct{}{}
		active = append(active, c)
	}
	if len(active) == 0 {
		return nil, apperrors.Validationf("at least one column is required")
	}
	return active, nil
}

func validateColumnDefinition(c models.ColumnSpec) error {
	if err := identifier.Validate(c.Name); err != nil {
		return fmt.Errorf("column name: %w", err)
	}
	if err := coltype.Validate(c.DataType, c.Length, c.Precision, c.Scale); err != nil {
		return fmt.Errorf("column %q: %w", c.Name, err)
	}
	return nil
}

// alterPlan is a validated alter submission.
type alterPlan struct {
	rename  string
	added   []models.ColumnSpec
	renamed []renamedColumn
	dropped []models.ApplicationTableColumn
}

type renamedColumn struct {
	column models.ApplicationTableColumn
	to     string
}

func (p *alterPlan) empty() bool {
	return p.rename == "" && len(p.added) == 0 && len(p.renamed) == 0 && len(p.dropped) == 0
}

func (s *tableService) AlterTable(ctx context.Context, ownerScope string, tableID uuid.UUID, newName string, columns []models.ColumnSpec) (*models.ApplicationTable, error) {
	table, err := s.resolver.load(ctx, ownerScope, tableID)
	if err != nil {
		return nil, err
	}
	if table.IsSystem {
		return nil, fmt.Errorf("alter %s: %w", table.Name, apperrors.ErrSystemTableReadOnly)
	}
	if _, err := s.authz.requireManage(ctx, table); err != nil {
		return nil, err
	}

	plan, err := s.planAlter(table, newName, canonicalSpecs(columns))
	if err != nil {
		return nil, err
	}
	if plan.empty() {
		return table, nil
	}

	unlock := s.locks.Lock(ownerScope, table.Name, plan.rename)
	defer unlock()

	ts := catalogNow()
	err = s.db.InTx(ctx, func(ctx context.Context) error {
		physical := table.Name
		if plan.rename != "" {
			if err := s.ensureNameFree(ctx, ownerScope, plan.rename); err != nil {
				return err
			}
			if err := s.executor.RenameTable(ctx, physical, plan.rename); err != nil {
				return err
			}
			if err := s.tables.Rename(ctx, ownerScope, table.ID, plan.rename); err != nil {
				return err
			}
			physical = plan.rename
		}

		for _, col := range plan.dropped {
			if err := s.executor.DropColumn(ctx, physical, col.Name); err != nil {
				return err
			}
			if err := s.tables.DeleteColumn(ctx, ownerScope, col.ID); err != nil {
				return err
			}
		}

		for _, rc := range plan.renamed {
			if err := s.executor.RenameColumn(ctx, physical, rc.column.Name, rc.to); err != nil {
				return err
			}
			updated := rc.column
			updated.Name = rc.to
			if err := s.tables.UpdateColumn(ctx, ownerScope, &updated); err != nil {
				return err
			}
		}

		for _, c := range plan.added {
			if err := s.executor.AddColumn(ctx, physical, c); err != nil {
				return err
			}
			length, precision, scale := coltype.Normalize(c.DataType, c.Length, c.Precision, c.Scale)
			col := &models.ApplicationTableColumn{
				TableID:   table.ID,
				Name:      c.Name,
				DataType:  c.DataType,
				Length:    length,
				Precision: precision,
				Scale:     scale,
				Nullable:  c.Nullable,
				CreatedAt: ts,
			}
			if err := s.tables.CreateColumn(ctx, ownerScope, col); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Altered application table",
		zap.String("owner_scope", ownerScope),
		zap.String("table_id", table.ID.String()),
		zap.String("renamed_to", plan.rename),
		zap.Int("added", len(plan.added)),
		zap.Int("renamed", len(plan.renamed)),
		zap.Int("dropped", len(plan.dropped)))

	return s.resolver.load(ctx, ownerScope, table.ID)
}

// planAlter validates the whole submission before any DDL runs. Columns the
// submission omits are left untouched.
func (s *tableService) planAlter(table *models.ApplicationTable, newName string, columns []models.ColumnSpec) (*alterPlan, error) {
	plan := &alterPlan{}
	d := s.executor.Dialect()

	if newName != "" && !strings.EqualFold(newName, table.Name) {
		if err := identifier.Validate(newName); err != nil {
			return nil, fmt.Errorf("table name: %w", err)
		}
		if s.registry.IsReserved(newName) {
			return nil, apperrors.Conflictf("table name %q is reserved for a system table", newName)
		}
		plan.rename = newName
	}

	// Resulting names, keyed lowercase, start from the current catalog.
	names := make(map[string]string, len(table.Columns))
	for _, c := range table.Columns {
		names[strings.ToLower(c.Name)] = c.Name
	}
	touched := make(map[string]struct{}, len(columns))

	for _, spec := range columns {
		kind := spec.Kind()
		if kind == models.ColumnChangeDiscarded {
			continue
		}
		if kind == models.ColumnChangeNew {
			if err := validateColumnDefinition(spec); err != nil {
				return nil, err
			}
			key := strings.ToLower(spec.Name)
			if _, dup := names[key]; dup {
				return nil, apperrors.Validationf("duplicate column name %q", spec.Name)
			}
			names[key] = spec.Name
			plan.added = append(plan.added, spec)
			continue
		}

		current, ok := table.Column(spec.OriginalName)
		if !ok {
			return nil, apperrors.NotFoundf("column %q not found in %s", spec.OriginalName, table.Name)
		}
		origKey := strings.ToLower(current.Name)
		if _, dup := touched[origKey]; dup {
			return nil, apperrors.Validationf("column %q is submitted more than once", current.Name)
		}
		touched[origKey] = struct{}{}

		switch kind {
		case models.ColumnChangeDeleted:
			if !d.SupportsColumnDrop() {
				return nil, apperrors.Unsupportedf("dropping column %q is not supported on %s", current.Name, d.Name())
			}
			delete(names, origKey)
			plan.dropped = append(plan.dropped, *current)

		case models.ColumnChangeRenamed:
			if err := checkTypeUnchanged(current, spec); err != nil {
				return nil, err
			}
			if !d.SupportsColumnRename() {
				return nil, apperrors.Unsupportedf("renaming column %q is not supported on %s", current.Name, d.Name())
			}
			if err := identifier.Validate(spec.Name); err != nil {
				return nil, fmt.Errorf("column name: %w", err)
			}
			delete(names, origKey)
			key := strings.ToLower(spec.Name)
			if _, dup := names[key]; dup {
				return nil, apperrors.Validationf("duplicate column name %q", spec.Name)
			}
			names[key] = spec.Name
			plan.renamed = append(plan.renamed, renamedColumn{column: *current, to: spec.Name})

		case models.ColumnChangeExisting:
			if err := checkTypeUnchanged(current, spec); err != nil {
				return nil, err
			}
		}
	}

	if len(names) == 0 {
		return nil, apperrors.Validationf("at least one column is required")
	}
	return plan, nil
}

// checkTypeUnchanged compares type and bounds; nullability is not compared.
func checkTypeUnchanged(current *models.ApplicationTableColumn, spec models.ColumnSpec) error {
	if current.DataType != spec.DataType {
		return apperrors.Validationf("the type of column %q cannot be changed", current.Name)
	}
	length, precision, scale := coltype.Normalize(spec.DataType, spec.Length, spec.Precision, spec.Scale)
	submitted := &models.ApplicationTableColumn{DataType: spec.DataType, Length: length, Precision: precision, Scale: scale}
	if !current.SameShape(submitted) {
		return apperrors.Validationf("the size of column %q cannot be changed", current.Name)
	}
	return nil
}

func (s *tableService) DeleteTable(ctx context.Context, ownerScope string, tableID uuid.UUID) error {
	table, err := s.resolver.load(ctx, ownerScope, tableID)
	if err != nil {
		return err
	}
	if table.IsSystem {
		return fmt.Errorf("delete %s: %w", table.Name, apperrors.ErrSystemTableReadOnly)
	}
	if _, err := s.authz.requireManage(ctx, table); err != nil {
		return err
	}

	unlock := s.locks.Lock(ownerScope, table.Name)
	defer unlock()

	var records int64
	err = s.db.InTx(ctx, func(ctx context.Context) error {
		if err := s.executor.DropTable(ctx, table.Name); err != nil {
			return err
		}
		n, err := s.records.DeleteByTable(ctx, ownerScope, table.ID)
		if err != nil {
			return err
		}
		records = n
		if err := s.tables.Delete(ctx, ownerScope, table.ID); err != nil {
			return err
		}
		return s.perms.DeleteByTable(ctx, ownerScope, table.ID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Deleted application table",
		zap.String("owner_scope", ownerScope),
		zap.String("table", table.Name),
		zap.String("table_id", table.ID.String()),
		zap.Int64("records_removed", records))
	return nil
}

func (s *tableService) ListTables(ctx context.Context, ownerScope string) ([]*models.ApplicationTable, error) {
	levelOf, err := s.authz.visibility(ctx, ownerScope)
	if err != nil {
		return nil, err
	}
	all, err := s.resolver.loadAll(ctx, ownerScope)
	if err != nil {
		return nil, err
	}

	visible := make([]*models.ApplicationTable, 0, len(all))
	for _, t := range all {
		if levelOf(t.ID).CanView() {
			visible = append(visible, t)
		}
	}
	return visible, nil
}

func (s *tableService) GetTable(ctx context.Context, ownerScope string, tableID uuid.UUID) (*models.ApplicationTable, error) {
	table, err := s.resolver.load(ctx, ownerScope, tableID)
	if err != nil {
		return nil, err
	}
	_, level, err := s.authz.actorLevel(ctx, ownerScope, tableID)
	if err != nil {
		return nil, err
	}
	if !level.CanView() {
		// Tables the actor cannot see are indistinguishable from missing ones.
		return nil, apperrors.NotFoundf("table %s not found", tableID)
	}
	return table, nil
}

func (s *tableService) LoadTable(ctx context.Context, ownerScope string, tableID uuid.UUID) (*models.ApplicationTable, error) {
	return s.resolver.load(ctx, ownerScope, tableID)
}

func (s *tableService) LoadAllTables(ctx context.Context, ownerScope string) ([]*models.ApplicationTable, error) {
	return s.resolver.loadAll(ctx, ownerScope)
}

func (s *tableService) TableExists(ctx context.Context, physicalName string) (bool, error) {
	if err := identifier.Validate(physicalName); err != nil {
		return false, err
	}
	return s.executor.TableExists(ctx, physicalName)
}
