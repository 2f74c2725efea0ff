package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"stigwatch/internal/domain/models"
	"stigwatch/internal/templates"
)

// TemplateRepository stores blank checklists in the database
type TemplateRepository struct {
	pool *pgxpool.Pool
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(pool *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{pool: pool}
}

// Upsert inserts a template or replaces the document stored under its title
func (r *TemplateRepository) Upsert(ctx context.Context, t *models.Template) error {
	query := `
		INSERT INTO templates (id, title, normalized_title, stig_id, raw_xml, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (title) DO UPDATE SET
			normalized_title = EXCLUDED.normalized_title,
			stig_id = EXCLUDED.stig_id,
			raw_xml = EXCLUDED.raw_xml`

	_, err := r.pool.Exec(ctx, query,
		t.ID, t.Title, templates.NormalizeTitle(t.Title), textOrNull(t.StigID), t.RawXML, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert template: %w", err)
	}
	return nil
}

// Lookup finds a template by exact title, then by normalized title. It
// returns nil when there is no match.
func (r *TemplateRepository) Lookup(ctx context.Context, title string) (*models.Template, error) {
	query := `
		SELECT id, title, stig_id, raw_xml, created_at
		FROM templates
		WHERE title = $1 OR normalized_title = $2
		ORDER BY (title = $1) DESC, title
		LIMIT 1`

	t := &models.Template{}
	var stigID pgtype.Text
	err := r.pool.QueryRow(ctx, query, title, templates.NormalizeTitle(title)).
		Scan(&t.ID, &t.Title, &stigID, &t.RawXML, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lookup template: %w", err)
	}
	t.StigID = nullTextToString(stigID)
	return t, nil
}

// List returns every template without its document
func (r *TemplateRepository) List(ctx context.Context) ([]*models.Template, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, title, stig_id, created_at FROM templates ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	out := []*models.Template{}
	for rows.Next() {
		t := &models.Template{}
		var stigID pgtype.Text
		if err := rows.Scan(&t.ID, &t.Title, &stigID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan template row: %w", err)
		}
		t.StigID = nullTextToString(stigID)
		out = append(out, t)
	}
	return out, rows.Err()
}
