package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/database"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/dialect"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/models"
)

// PermissionAuditRepository persists the append-only permission change log.
type PermissionAuditRepository interface {
	Create(ctx context.Context, entries []models.PermissionAuditEntry) error

	// ListByTable returns at most limit entries for the table, newest first.
	// Entries written by one Create call come back in reverse write order.
	ListByTable(ctx context.Context, ownerScope string, tableID uuid.UUID, limit int) ([]models.PermissionAuditEntry, error)
}

type permissionAuditRepository struct {
	db      *sql.DB
	dialect dialect.Dialect
}

// NewPermissionAuditRepository creates a PermissionAuditRepository.
func NewPermissionAuditRepository(db *sql.DB, d dialect.Dialect) PermissionAuditRepository {
	return &permissionAuditRepository{db: db, dialect: d}
}

var _ PermissionAuditRepository = (*permissionAuditRepository)(nil)

const auditColumns = `Id, OwnerScope, TableId, TableName, SubjectId, SubjectName, PreviousLevel, NewLevel, ActingUserId, ActingUserName, ChangedAt`

func (r *permissionAuditRepository) Create(ctx context.Context, entries []models.PermissionAuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	q := database.QuerierFrom(ctx, r.db)
	query := r.dialect.Rebind(`INSERT INTO PermissionAuditEntry (` + auditColumns + `, Seq) VALUES (` + placeholders(12) + `)`)

	for i := range entries {
		e := &entries[i]
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		if e.ChangedAt.IsZero() {
			e.ChangedAt = now()
		}
		_, err := q.ExecContext(ctx, query,
			e.ID.String(),
			e.OwnerScope,
			e.TableID.String(),
			e.TableName,
			e.SubjectID,
			toNullString(e.SubjectName),
			string(e.PreviousLevel),
			string(e.NewLevel),
			e.ActingUserID,
			toNullString(e.ActingUserName),
			e.ChangedAt,
			i,
		)
		if err != nil {
			return fmt.Errorf("failed to write audit entry for %s: %w", e.SubjectID, err)
		}
	}
	return nil
}

func (r *permissionAuditRepository) ListByTable(ctx context.Context, ownerScope string, tableID uuid.UUID, limit int) ([]models.PermissionAuditEntry, error) {
	query := r.dialect.Rebind(`SELECT ` + auditColumns + ` FROM PermissionAuditEntry
		WHERE OwnerScope = ? AND TableId = ?
		ORDER BY ChangedAt DESC, Seq DESC ` + r.dialect.Paginate(limit))

	rows, err := database.QuerierFrom(ctx, r.db).QueryContext(ctx, query, ownerScope, tableID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []models.PermissionAuditEntry
	for rows.Next() {
		var (
			e                           models.PermissionAuditEntry
			id, tid                     string
			prev, next                  string
			subjectName, actingUserName sql.NullString
			changedAt                   any
		)
		if err := rows.Scan(&id, &e.OwnerScope, &tid, &e.TableName, &e.SubjectID, &subjectName,
			&prev, &next, &e.ActingUserID, &actingUserName, &changedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if e.ID, err = parseID(id); err != nil {
			return nil, err
		}
		if e.TableID, err = parseID(tid); err != nil {
			return nil, err
		}
		if e.ChangedAt, err = parseTime(changedAt); err != nil {
			return nil, err
		}
		e.SubjectName = subjectName.String
		e.ActingUserName = actingUserName.String
		e.PreviousLevel = models.AccessLevel(prev)
		e.NewLevel = models.AccessLevel(next)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}
	return entries, nil
}
