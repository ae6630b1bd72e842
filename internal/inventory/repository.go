package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetStockForUpdate(ctx context.Context, materialID int64) (Stock, error)
	UpsertStock(ctx context.Context, stock *Stock) error
	InsertMovement(ctx context.Context, movement Movement) (int64, error)
	InsertMovements(ctx context.Context, movements []Movement) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetStock loads the balance row for one material.
func (r *Repository) GetStock(ctx context.Context, materialID int64) (Stock, error) {
	return scanStock(r.pool.QueryRow(ctx,
		`SELECT id, material_id, quantity, avg_unit_price, location_code, updated_at FROM stocks WHERE material_id = $1`,
		materialID))
}

// ListMovements returns recent ledger entries, newest first.
func (r *Repository) ListMovements(ctx context.Context, materialID int64, limit int) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, movement_no, material_id, movement_type, quantity, unit_price, COALESCE(project_id, 0), COALESCE(po_id, 0), note, created_at
		FROM stock_movements WHERE material_id = $1 ORDER BY id DESC LIMIT $2`,
		materialID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.No, &m.MaterialID, &m.Type, &m.Quantity, &m.UnitPrice,
			&m.ProjectID, &m.POID, &m.Note, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (t *txRepo) GetStockForUpdate(ctx context.Context, materialID int64) (Stock, error) {
	return scanStock(t.tx.QueryRow(ctx,
		`SELECT id, material_id, quantity, avg_unit_price, location_code, updated_at FROM stocks WHERE material_id = $1 FOR UPDATE`,
		materialID))
}

func (t *txRepo) UpsertStock(ctx context.Context, stock *Stock) error {
	query := `
		INSERT INTO stocks (material_id, quantity, avg_unit_price, location_code, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (material_id) DO UPDATE
		SET quantity = EXCLUDED.quantity,
		    avg_unit_price = EXCLUDED.avg_unit_price,
		    location_code = EXCLUDED.location_code,
		    updated_at = EXCLUDED.updated_at
		RETURNING id`
	return t.tx.QueryRow(ctx, query,
		stock.MaterialID, stock.Quantity, stock.AvgUnitPrice, stock.LocationCode, stock.UpdatedAt,
	).Scan(&stock.ID)
}

func (t *txRepo) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	query := `
		INSERT INTO stock_movements (movement_no, material_id, movement_type, quantity, unit_price, project_id, po_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, 0), NULLIF($7, 0), $8, $9)
		RETURNING id`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		movement.No, movement.MaterialID, movement.Type, movement.Quantity,
		movement.UnitPrice, movement.ProjectID, movement.POID, movement.Note, movement.CreatedAt,
	).Scan(&id)
	return id, err
}

func (t *txRepo) InsertMovements(ctx context.Context, movements []Movement) error {
	batch := &pgx.Batch{}
	for _, movement := range movements {
		batch.Queue(`
			INSERT INTO stock_movements (movement_no, material_id, movement_type, quantity, unit_price, project_id, po_id, note, created_at)
			VALUES ($1, $2, $3, $4, $5, NULLIF($6, 0), NULLIF($7, 0), $8, $9)`,
			movement.No, movement.MaterialID, movement.Type, movement.Quantity,
			movement.UnitPrice, movement.ProjectID, movement.POID, movement.Note, movement.CreatedAt)
	}
	results := t.tx.SendBatch(ctx, batch)
	defer results.Close()
	for range movements {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func scanStock(row pgx.Row) (Stock, error) {
	var s Stock
	err := row.Scan(&s.ID, &s.MaterialID, &s.Quantity, &s.AvgUnitPrice, &s.LocationCode, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Stock{}, ErrStockNotFound
		}
		return Stock{}, err
	}
	return s, nil
}
