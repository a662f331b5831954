package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/database"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/dialect"
	"github.com/plutoniumship/BugenceEditorConsole-sub002/pkg/models"
)

// RecordRepository tracks the per-row registration of physical table rows.
type RecordRepository interface {
	// InsertMissing registers every live row of physicalTable whose DGUID has
	// no record yet and returns how many were added.
	InsertMissing(ctx context.Context, ownerScope string, tableID uuid.UUID, physicalTable string, createdAt time.Time) (int64, error)

	CountByTable(ctx context.Context, ownerScope string, tableID uuid.UUID) (int64, error)

	// DeleteByTable removes every record row of the table and returns how
	// many were removed.
	DeleteByTable(ctx context.Context, ownerScope string, tableID uuid.UUID) (int64, error)
}

type recordRepository struct {
	db      *sql.DB
	dialect dialect.Dialect
}

// NewRecordRepository creates a RecordRepository.
func NewRecordRepository(db *sql.DB, d dialect.Dialect) RecordRepository {
	return &recordRepository{db: db, dialect: d}
}

var _ RecordRepository = (*recordRepository)(nil)

func (r *recordRepository) InsertMissing(ctx context.Context, ownerScope string, tableID uuid.UUID, physicalTable string, createdAt time.Time) (int64, error) {
	dguid := r.dialect.IdentityText("t." + r.dialect.QuoteIdentifier(models.IdentityColumnName))
	query := r.dialect.Rebind(fmt.Sprintf(`
		INSERT INTO ApplicationRecord (OwnerScope, TableId, DGUID, CreatedAt)
		SELECT ?, ?, %[1]s, ?
		FROM %[2]s t
		WHERE t.%[3]s IS NOT NULL
		  AND NOT EXISTS (
			SELECT 1 FROM ApplicationRecord ar
			WHERE ar.OwnerScope = ? AND ar.TableId = ? AND ar.DGUID = %[1]s
		  )`,
		dguid, r.dialect.QuoteIdentifier(physicalTable), r.dialect.QuoteIdentifier(models.IdentityColumnName)))

	res, err := database.QuerierFrom(ctx, r.db).ExecContext(ctx, query,
		ownerScope, tableID.String(), createdAt,
		ownerScope, tableID.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert record rows: %w", r.dialect.MapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (r *recordRepository) CountByTable(ctx context.Context, ownerScope string, tableID uuid.UUID) (int64, error) {
	query := r.dialect.Rebind(`SELECT COUNT(*) FROM ApplicationRecord WHERE OwnerScope = ? AND TableId = ?`)
	var n int64
	if err := database.QuerierFrom(ctx, r.db).QueryRowContext(ctx, query, ownerScope, tableID.String()).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

func (r *recordRepository) DeleteByTable(ctx context.Context, ownerScope string, tableID uuid.UUID) (int64, error) {
	query := r.dialect.Rebind(`DELETE FROM ApplicationRecord WHERE OwnerScope = ? AND TableId = ?`)
	res, err := database.QuerierFrom(ctx, r.db).ExecContext(ctx, query, ownerScope, tableID.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
