package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"stigwatch/internal/domain/models"
	"stigwatch/internal/infrastructure/database"
)

const checklistColumns = `id, system_id, title, stig_id, host_name, raw_xml, created_at, updated_at`

// ChecklistRepository handles checklist persistence
type ChecklistRepository struct {
	pool *pgxpool.Pool
}

// NewChecklistRepository creates a new checklist repository
func NewChecklistRepository(pool *pgxpool.Pool) *ChecklistRepository {
	return &ChecklistRepository{pool: pool}
}

// Create inserts a checklist and bumps its system's updated_at
func (r *ChecklistRepository) Create(ctx context.Context, c *models.ChecklistRecord) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
			INSERT INTO checklists (` + checklistColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
		if _, err := tx.Exec(ctx, query,
			c.ID, c.SystemID, c.Title, textOrNull(c.StigID), c.HostName, c.RawXML, c.CreatedAt, c.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to create checklist: %w", err)
		}
		return touchSystem(ctx, tx, c.SystemID, now)
	})
}

// Update replaces the document and derived metadata of a checklist
func (r *ChecklistRepository) Update(ctx context.Context, c *models.ChecklistRecord) error {
	now := time.Now()

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
			UPDATE checklists
			SET title = $2, stig_id = $3, host_name = $4, raw_xml = $5, updated_at = $6
			WHERE id = $1`
		tag, err := tx.Exec(ctx, query,
			c.ID, c.Title, textOrNull(c.StigID), c.HostName, c.RawXML, now,
		)
		if err != nil {
			return fmt.Errorf("failed to update checklist: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		c.UpdatedAt = now
		return touchSystem(ctx, tx, c.SystemID, now)
	})
}

// GetByID retrieves a checklist by ID
func (r *ChecklistRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ChecklistRecord, error) {
	query := `SELECT ` + checklistColumns + ` FROM checklists WHERE id = $1`

	c, err := scanChecklist(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan checklist: %w", err)
	}
	return c, nil
}

// ListBySystem retrieves every checklist of a system ordered by title and
// host
func (r *ChecklistRepository) ListBySystem(ctx context.Context, systemID uuid.UUID) ([]*models.ChecklistRecord, error) {
	query := `
		SELECT ` + checklistColumns + `
		FROM checklists
		WHERE system_id = $1
		ORDER BY title, host_name, id`

	rows, err := r.pool.Query(ctx, query, systemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checklists: %w", err)
	}
	defer rows.Close()

	checklists := []*models.ChecklistRecord{}
	for rows.Next() {
		c, err := scanChecklist(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checklist row: %w", err)
		}
		checklists = append(checklists, c)
	}

	return checklists, rows.Err()
}

// FindByHost returns the most recently updated checklist of a system for the
// given host and benchmark, or nil.
func (r *ChecklistRepository) FindByHost(ctx context.Context, systemID uuid.UUID, hostName, stigID string) (*models.ChecklistRecord, error) {
	query := `
		SELECT ` + checklistColumns + `
		FROM checklists
		WHERE system_id = $1 AND lower(host_name) = lower($2) AND stig_id = $3
		ORDER BY updated_at DESC
		LIMIT 1`

	c, err := scanChecklist(r.pool.QueryRow(ctx, query, systemID, hostName, stigID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find checklist: %w", err)
	}
	return c, nil
}

// Delete removes a checklist
func (r *ChecklistRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM checklists WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete checklist: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func touchSystem(ctx context.Context, db database.DBTX, systemID uuid.UUID, at time.Time) error {
	tag, err := db.Exec(ctx, `UPDATE systems SET updated_at = $2 WHERE id = $1`, systemID, at)
	if err != nil {
		return fmt.Errorf("failed to touch system: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanChecklist(row pgx.Row) (*models.ChecklistRecord, error) {
	c := &models.ChecklistRecord{}
	var stigID pgtype.Text
	var created, updated pgtype.Timestamptz

	if err := row.Scan(&c.ID, &c.SystemID, &c.Title, &stigID, &c.HostName, &c.RawXML, &created, &updated); err != nil {
		return nil, err
	}
	c.StigID = nullTextToString(stigID)
	c.CreatedAt = timestamptzToTime(created)
	c.UpdatedAt = timestamptzToTime(updated)
	return c, nil
}
