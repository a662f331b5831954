package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/database"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/dialect"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/models"
)

// TeamMemberRepository stores the owner's team roster. Role assignment and
// invitation happen elsewhere; the engine only reads active members.
type TeamMemberRepository interface {
	Upsert(ctx context.Context, member *models.RosterMember) error
	Deactivate(ctx context.Context, ownerScope, userID string) error

	// ListActiveMembers returns the active roster ordered by display name.
	ListActiveMembers(ctx context.Context, ownerScope string) ([]models.RosterMember, error)
}

type teamMemberRepository struct {
	db      *sql.DB
	dialect dialect.Dialect
}

// NewTeamMemberRepository creates a TeamMemberRepository.
func NewTeamMemberRepository(db *sql.DB, d dialect.Dialect) TeamMemberRepository {
	return &teamMemberRepository{db: db, dialect: d}
}

var _ TeamMemberRepository = (*teamMemberRepository)(nil)

func (r *teamMemberRepository) Upsert(ctx context.Context, m *models.RosterMember) error {
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = now()
	}
	q := database.QuerierFrom(ctx, r.db)

	update := r.dialect.Rebind(`
		UPDATE TeamMember SET DisplayName = ?, Email = ?, Role = ?, IsActive = ?, UpdatedAt = ?
		WHERE OwnerScope = ? AND UserId = ?`)
	res, err := q.ExecContext(ctx, update, m.DisplayName, toNullString(m.Email), m.Role, m.Active, m.UpdatedAt, m.OwnerScope, m.UserID)
	if err != nil {
		return fmt.Errorf("failed to update team member: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected: %w", err)
	} else if n > 0 {
		return nil
	}

	insert := r.dialect.Rebind(`
		INSERT INTO TeamMember (OwnerScope, UserId, DisplayName, Email, Role, IsActive, UpdatedAt)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if _, err := q.ExecContext(ctx, insert, m.OwnerScope, m.UserID, m.DisplayName, toNullString(m.Email), m.Role, m.Active, m.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert team member: %w", r.dialect.MapError(err))
	}
	return nil
}

func (r *teamMemberRepository) Deactivate(ctx context.Context, ownerScope, userID string) error {
	query := r.dialect.Rebind(`UPDATE TeamMember SET IsActive = ?, UpdatedAt = ? WHERE OwnerScope = ? AND UserId = ?`)
	res, err := database.QuerierFrom(ctx, r.db).ExecContext(ctx, query, false, now(), ownerScope, userID)
	if err != nil {
		return fmt.Errorf("failed to deactivate team member: %w", err)
	}
	return requireAffected(res, "team member %s not found", userID)
}

func (r *teamMemberRepository) ListActiveMembers(ctx context.Context, ownerScope string) ([]models.RosterMember, error) {
	query := r.dialect.Rebind(`
		SELECT OwnerScope, UserId, DisplayName, Email, Role, IsActive, UpdatedAt
		FROM TeamMember WHERE OwnerScope = ? AND IsActive = ? ORDER BY DisplayName, UserId`)
	rows, err := database.QuerierFrom(ctx, r.db).QueryContext(ctx, query, ownerScope, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	defer rows.Close()

	var members []models.RosterMember
	for rows.Next() {
		var (
			m         models.RosterMember
			email     sql.NullString
			updatedAt any
		)
		if err := rows.Scan(&m.OwnerScope, &m.UserID, &m.DisplayName, &email, &m.Role, &m.Active, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team member: %w", err)
		}
		if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		m.Email = email.String
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating team members: %w", err)
	}
	return members, nil
}
