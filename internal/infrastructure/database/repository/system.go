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
)

// SystemRepository handles system persistence
type SystemRepository struct {
	pool *pgxpool.Pool
}

// NewSystemRepository creates a new system repository
func NewSystemRepository(pool *pgxpool.Pool) *SystemRepository {
	return &SystemRepository{pool: pool}
}

// Create inserts a new system
func (r *SystemRepository) Create(ctx context.Context, s *models.System) (*models.System, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now

	query := `
		INSERT INTO systems (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		s.ID, s.Name, textOrNull(s.Description), s.CreatedAt, s.UpdatedAt,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create system: %w", err)
	}

	return s, nil
}

// GetByID retrieves a system by ID
func (r *SystemRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.System, error) {
	query := `
		SELECT s.id, s.name, s.description, s.created_at, s.updated_at,
			   (SELECT count(*) FROM checklists c WHERE c.system_id = s.id)
		FROM systems s
		WHERE s.id = $1`

	s, err := scanSystem(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan system: %w", err)
	}
	return s, nil
}

// List retrieves all systems
func (r *SystemRepository) List(ctx context.Context) ([]*models.System, error) {
	query := `
		SELECT s.id, s.name, s.description, s.created_at, s.updated_at,
			   count(c.id)
		FROM systems s
		LEFT JOIN checklists c ON c.system_id = s.id
		GROUP BY s.id
		ORDER BY s.name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list systems: %w", err)
	}
	defer rows.Close()

	var systems []*models.System
	for rows.Next() {
		s, err := scanSystem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan system row: %w", err)
		}
		systems = append(systems, s)
	}

	return systems, rows.Err()
}

// Delete removes a system and, through the foreign key, its checklists
func (r *SystemRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM systems WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete system: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSystem(row pgx.Row) (*models.System, error) {
	s := &models.System{}
	var description pgtype.Text
	var count int64

	if err := row.Scan(&s.ID, &s.Name, &description, &s.CreatedAt, &s.UpdatedAt, &count); err != nil {
		return nil, err
	}
	s.Description = nullTextToString(description)
	s.ChecklistCount = int(count)
	return s, nil
}
