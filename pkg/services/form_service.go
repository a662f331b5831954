package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/apperrors"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/audit"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/catalog"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/ddl"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/models"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/repositories"
	sqlutil "github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/sql"
)

// FormColumn is one field of a form bound to a table query.
type FormColumn struct {
	Name   string                         `json:"name"`
	Label  string                         `json:"label"`
	Expr   string                         `json:"expr"`
	Column *models.ApplicationTableColumn `json:"column,omitempty"` // nil when unbound
}

// FormLayout is the resolved field list of a form.
type FormLayout struct {
	TableID    uuid.UUID    `json:"table_id"`
	TableName  string       `json:"table_name"`
	RecordNoun string       `json:"record_noun"`
	Columns    []FormColumn `json:"columns"`
}

// FormService binds form queries to catalog columns.
type FormService interface {
	// ResolveFormColumns validates a single SELECT over the table, extracts its
	// projections and binds each to a catalog column. SELECT * expands to every
	// catalog column.
	ResolveFormColumns(ctx context.Context, ownerScope string, tableID uuid.UUID, selectSQL string) (*FormLayout, error)
}

type formService struct {
	resolver *tableResolver
	authz    *authorizer
	logger   *zap.Logger
}

// NewFormService creates a FormService.
func NewFormService(
	tables repositories.TableRepository,
	perms repositories.PermissionRepository,
	executor *ddl.Executor,
	registry *catalog.Registry,
	roster RosterProvider,
	logger *zap.Logger,
) FormService {
	return &formService{
		resolver: &tableResolver{tables: tables, registry: registry, ddl: executor},
		authz:    newAuthorizer(roster, perms, logger),
		logger:   logger.Named("forms"),
	}
}

var _ FormService = (*formService)(nil)

func (s *formService) ResolveFormColumns(ctx context.Context, ownerScope string, tableID uuid.UUID, selectSQL string) (*FormLayout, error) {
	table, err := s.resolver.load(ctx, ownerScope, tableID)
	if err != nil {
		return nil, err
	}
	_, level, err := s.authz.actorLevel(ctx, ownerScope, table.ID)
	if err != nil {
		return nil, err
	}
	if !level.CanView() {
		return nil, apperrors.NotFoundf("table %s not found", tableID)
	}

	normalized, err := sqlutil.ValidateSelect(selectSQL)
	if err != nil {
		return nil, apperrors.Validationf("form query: %s", err.Error())
	}
	parsed, err := sqlutil.ParseSelectColumns(normalized)
	if err != nil {
		return nil, fmt.Errorf("parse form query: %w", err)
	}
	if len(parsed) == 0 {
		return nil, apperrors.Validationf("form query has no projected columns")
	}

	if flagged := sqlutil.CheckProjections(parsed); len(flagged) > 0 {
		s.authz.security.LogInjectionAttempt(ctx, ownerScope, table.ID, audit.SQLInjectionDetails{
			Column:      flagged[0].Column,
			Expression:  flagged[0].Expr,
			Fingerprint: flagged[0].Fingerprint,
			TableName:   table.Name,
		})
		return nil, apperrors.Validationf("projection %q is not allowed", flagged[0].Column)
	}

	layout := &FormLayout{TableID: table.ID, TableName: table.Label(), RecordNoun: table.RecordNoun()}
	seen := make(map[string]struct{}, len(parsed))
	add := func(fc FormColumn) error {
		key := strings.ToLower(fc.Name)
		if _, dup := seen[key]; dup {
			return apperrors.Validationf("form field %q is projected more than once", fc.Name)
		}
		seen[key] = struct{}{}
		layout.Columns = append(layout.Columns, fc)
		return nil
	}

	for _, p := range parsed {
		if p.Star {
			for i := range table.Columns {
				col := table.Columns[i]
				if err := add(FormColumn{Name: col.Name, Label: col.Name, Expr: col.Name, Column: &col}); err != nil {
					return nil, err
				}
			}
			continue
		}
		if strings.EqualFold(p.Name, models.IdentityColumnName) || strings.EqualFold(p.Source, models.IdentityColumnName) {
			// DGUID is the row identity; forms never edit it.
			continue
		}
		fc := FormColumn{Name: p.Name, Label: p.Name, Expr: p.Expr}
		if p.Source != "" {
			if col, ok := table.Column(p.Source); ok {
				c := *col
				fc.Column = &c
			}
		}
		if err := add(fc); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("Resolved form columns",
		zap.String("owner_scope", ownerScope),
		zap.String("table", table.Name),
		zap.Int("columns", len(layout.Columns)))
	return layout, nil
}
