package steel

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for steel tags.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const tagColumns = `id, tag_no, material_id, status, COALESCE(project_id, 0), weight, width_mm, length_mm, thickness_mm, issued_at, created_at, updated_at`

// GetTag loads one tag by id.
func (r *Repository) GetTag(ctx context.Context, id int64) (Tag, error) {
	return scanTag(r.pool.QueryRow(ctx, `SELECT `+tagColumns+` FROM steel_tags WHERE id = $1`, id))
}

// CreateTag inserts a new tag.
func (r *Repository) CreateTag(ctx context.Context, tag Tag) (Tag, error) {
	query := `
		INSERT INTO steel_tags (tag_no, material_id, status, project_id, weight, width_mm, length_mm, thickness_mm, issued_at, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, 0), $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`
	err := r.pool.QueryRow(ctx, query,
		tag.TagNo, tag.MaterialID, tag.Status, tag.ProjectID, tag.Weight,
		tag.WidthMM, tag.LengthMM, tag.ThicknessMM, tag.IssuedAt, tag.CreatedAt, tag.UpdatedAt,
	).Scan(&tag.ID)
	if err != nil {
		return Tag{}, err
	}
	return tag, nil
}

// UpdateTag stores status, project link, and issue timestamp.
func (r *Repository) UpdateTag(ctx context.Context, tag Tag) error {
	tagRes, err := r.pool.Exec(ctx, `
		UPDATE steel_tags
		SET status = $2, project_id = NULLIF($3, 0), issued_at = $4, updated_at = $5
		WHERE id = $1`,
		tag.ID, tag.Status, tag.ProjectID, tag.IssuedAt, tag.UpdatedAt)
	if err != nil {
		return err
	}
	if tagRes.RowsAffected() == 0 {
		return ErrTagNotFound
	}
	return nil
}

// DeleteTag removes a tag, used only for data-entry mistakes on AVAILABLE tags.
func (r *Repository) DeleteTag(ctx context.Context, id int64) error {
	res, err := r.pool.Exec(ctx, `DELETE FROM steel_tags WHERE id = $1 AND status = $2`, id, StatusAvailable)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrTagNotFound
	}
	return nil
}

// ListTagsByStatus lists tags in a lifecycle state.
func (r *Repository) ListTagsByStatus(ctx context.Context, status Status) ([]Tag, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+tagColumns+` FROM steel_tags WHERE status = $1 ORDER BY id`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func scanTag(row pgx.Row) (Tag, error) {
	var t Tag
	err := row.Scan(&t.ID, &t.TagNo, &t.MaterialID, &t.Status, &t.ProjectID, &t.Weight,
		&t.WidthMM, &t.LengthMM, &t.ThicknessMM, &t.IssuedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tag{}, ErrTagNotFound
		}
		return Tag{}, err
	}
	return t, nil
}
