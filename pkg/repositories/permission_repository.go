package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/database"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/dialect"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/models"
)

// PermissionRepository stores explicit per-subject overrides.
type PermissionRepository interface {
	// Get returns the override for one subject, or nil when none exists.
	Get(ctx context.Context, ownerScope string, tableID uuid.UUID, subjectID string) (*models.PermissionGrant, error)

	ListByTable(ctx context.Context, ownerScope string, tableID uuid.UUID) ([]models.PermissionGrant, error)
	ListBySubject(ctx context.Context, ownerScope, subjectID string) ([]models.PermissionGrant, error)

	// Upsert replaces the subject's override. An empty level only removes it.
	Upsert(ctx context.Context, grant *models.PermissionGrant) error

	DeleteByTable(ctx context.Context, ownerScope string, tableID uuid.UUID) error

	// DeleteOrphaned removes every grant in the scope whose subject is not in
	// activeSubjects and returns how many rows were removed.
	DeleteOrphaned(ctx context.Context, ownerScope string, activeSubjects []string) (int64, error)
}

type permissionRepository struct {
	db      *sql.DB
	dialect dialect.Dialect
}

// NewPermissionRepository creates a PermissionRepository.
func NewPermissionRepository(db *sql.DB, d dialect.Dialect) PermissionRepository {
	return &permissionRepository{db: db, dialect: d}
}

var _ PermissionRepository = (*permissionRepository)(nil)

const grantColumns = `OwnerScope, TableId, SubjectId, AccessLevel, UpdatedAt`

func (r *permissionRepository) Get(ctx context.Context, ownerScope string, tableID uuid.UUID, subjectID string) (*models.PermissionGrant, error) {
	query := r.dialect.Rebind(`SELECT ` + grantColumns + ` FROM PermissionGrant
		WHERE OwnerScope = ? AND TableId = ? AND SubjectId = ?`)
	g, err := scanGrant(database.QuerierFrom(ctx, r.db).QueryRowContext(ctx, query, ownerScope, tableID.String(), subjectID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission grant: %w", err)
	}
	return g, nil
}

func (r *permissionRepository) ListByTable(ctx context.Context, ownerScope string, tableID uuid.UUID) ([]models.PermissionGrant, error) {
	query := r.dialect.Rebind(`SELECT ` + grantColumns + ` FROM PermissionGrant
		WHERE OwnerScope = ? AND TableId = ? ORDER BY SubjectId`)
	return r.list(ctx, query, ownerScope, tableID.String())
}

func (r *permissionRepository) ListBySubject(ctx context.Context, ownerScope, subjectID string) ([]models.PermissionGrant, error) {
	query := r.dialect.Rebind(`SELECT ` + grantColumns + ` FROM PermissionGrant
		WHERE OwnerScope = ? AND SubjectId = ? ORDER BY TableId`)
	return r.list(ctx, query, ownerScope, subjectID)
}

func (r *permissionRepository) list(ctx context.Context, query string, args ...any) ([]models.PermissionGrant, error) {
	rows, err := database.QuerierFrom(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list permission grants: %w", err)
	}
	defer rows.Close()

	var grants []models.PermissionGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission grant: %w", err)
		}
		grants = append(grants, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating permission grants: %w", err)
	}
	return grants, nil
}

func (r *permissionRepository) Upsert(ctx context.Context, grant *models.PermissionGrant) error {
	q := database.QuerierFrom(ctx, r.db)

	del := r.dialect.Rebind(`DELETE FROM PermissionGrant WHERE OwnerScope = ? AND TableId = ? AND SubjectId = ?`)
	if _, err := q.ExecContext(ctx, del, grant.OwnerScope, grant.TableID.String(), grant.SubjectID); err != nil {
		return fmt.Errorf("failed to clear permission grant: %w", err)
	}
	if grant.AccessLevel == "" {
		return nil
	}

	if grant.UpdatedAt.IsZero() {
		grant.UpdatedAt = now()
	}
	ins := r.dialect.Rebind(`INSERT INTO PermissionGrant (` + grantColumns + `) VALUES (?, ?, ?, ?, ?)`)
	_, err := q.ExecContext(ctx, ins,
		grant.OwnerScope,
		grant.TableID.String(),
		grant.SubjectID,
		string(grant.AccessLevel),
		grant.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write permission grant: %w", r.dialect.MapError(err))
	}
	return nil
}

func (r *permissionRepository) DeleteByTable(ctx context.Context, ownerScope string, tableID uuid.UUID) error {
	query := r.dialect.Rebind(`DELETE FROM PermissionGrant WHERE OwnerScope = ? AND TableId = ?`)
	if _, err := database.QuerierFrom(ctx, r.db).ExecContext(ctx, query, ownerScope, tableID.String()); err != nil {
		return fmt.Errorf("failed to delete permission grants: %w", err)
	}
	return nil
}

// orphanDeleteBatch bounds the subjects bound into one DELETE; SQL Server
// rejects statements with more than 2100 parameters.
var orphanDeleteBatch = 500

func (r *permissionRepository) DeleteOrphaned(ctx context.Context, ownerScope string, activeSubjects []string) (int64, error) {
	q := database.QuerierFrom(ctx, r.db)
	rows, err := q.QueryContext(ctx, r.dialect.Rebind(
		`SELECT DISTINCT SubjectId FROM PermissionGrant WHERE OwnerScope = ?`), ownerScope)
	if err != nil {
		return 0, fmt.Errorf("failed to list grant subjects: %w", err)
	}
	active := make(map[string]struct{}, len(activeSubjects))
	for _, s := range activeSubjects {
		active[s] = struct{}{}
	}
	var orphans []string
	for rows.Next() {
		var subject string
		if err := rows.Scan(&subject); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan grant subject: %w", err)
		}
		if _, ok := active[subject]; !ok {
			orphans = append(orphans, subject)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("error iterating grant subjects: %w", err)
	}
	rows.Close()

	var removed int64
	for start := 0; start < len(orphans); start += orphanDeleteBatch {
		batch := orphans[start:min(start+orphanDeleteBatch, len(orphans))]
		args := make([]any, 0, len(batch)+1)
		args = append(args, ownerScope)
		for _, s := range batch {
			args = append(args, s)
		}
		query := r.dialect.Rebind(`DELETE FROM PermissionGrant WHERE OwnerScope = ? AND SubjectId IN (` + placeholders(len(batch)) + `)`)
		res, err := q.ExecContext(ctx, query, args...)
		if err != nil {
			return removed, fmt.Errorf("failed to delete orphaned grants: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return removed, fmt.Errorf("rows affected: %w", err)
		}
		removed += n
	}
	return removed, nil
}

func scanGrant(row rowScanner) (*models.PermissionGrant, error) {
	var (
		g         models.PermissionGrant
		tableID   string
		level     string
		updatedAt any
	)
	if err := row.Scan(&g.OwnerScope, &tableID, &g.SubjectID, &level, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if g.TableID, err = parseID(tableID); err != nil {
		return nil, err
	}
	if g.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	g.AccessLevel = models.AccessLevel(strings.TrimSpace(level))
	return &g, nil
}
