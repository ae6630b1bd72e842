package procurement

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists procurement data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
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

// GetPO loads a purchase order with its items.
func (r *Repository) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	var po PurchaseOrder
	var orderedAt *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT id, po_no, supplier_id, COALESCE(project_id, 0), status, ordered_at, due_date, COALESCE(note, ''), created_at, updated_at
		FROM purchase_orders WHERE id = $1`, id,
	).Scan(&po.ID, &po.PONo, &po.SupplierID, &po.ProjectID, &po.Status, &orderedAt, &po.DueDate, &po.Note, &po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrPONotFound
		}
		return PurchaseOrder{}, err
	}
	po.OrderedAt = orderedAt

	rows, err := r.pool.Query(ctx, `
		SELECT id, po_id, material_id, quantity, received_quantity, unit_price
		FROM po_items WHERE po_id = $1 ORDER BY id`, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item POItem
		if err := rows.Scan(&item.ID, &item.POID, &item.MaterialID, &item.Quantity, &item.ReceivedQuantity, &item.UnitPrice); err != nil {
			return PurchaseOrder{}, err
		}
		po.Items = append(po.Items, item)
	}
	return po, rows.Err()
}

// CreatePO inserts header and items in one transaction and returns the
// stored order with generated IDs.
func (r *Repository) CreatePO(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now()
	err = tx.QueryRow(ctx, `
		INSERT INTO purchase_orders (po_no, supplier_id, project_id, status, due_date, note, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, 0), $4, $5, $6, $7, $7)
		RETURNING id, created_at, updated_at`,
		po.PONo, po.SupplierID, po.ProjectID, po.Status, po.DueDate, po.Note, now,
	).Scan(&po.ID, &po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		return PurchaseOrder{}, err
	}
	for i := range po.Items {
		po.Items[i].POID = po.ID
		err = tx.QueryRow(ctx, `
			INSERT INTO po_items (po_id, material_id, quantity, received_quantity, unit_price)
			VALUES ($1, $2, $3, 0, $4)
			RETURNING id`,
			po.ID, po.Items[i].MaterialID, po.Items[i].Quantity, po.Items[i].UnitPrice,
		).Scan(&po.Items[i].ID)
		if err != nil {
			return PurchaseOrder{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

// DeletePO removes a draft order and its items. Used only by compensation.
func (r *Repository) DeletePO(ctx context.Context, id int64) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM po_items WHERE po_id = $1`, id); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM purchase_orders WHERE id = $1 AND status = $2`, id, POStatusDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPONotFound
	}
	return tx.Commit(ctx)
}

// MarkPOOrdered flips DRAFT to ORDERED and stamps the time.
func (r *Repository) MarkPOOrdered(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE purchase_orders SET status = $1, ordered_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4`,
		POStatusOrdered, at, id, POStatusDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// GetPR loads one purchase request.
func (r *Repository) GetPR(ctx context.Context, id int64) (PurchaseRequest, error) {
	pr, err := scanPR(r.pool.QueryRow(ctx, prSelect+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseRequest{}, ErrPRNotFound
		}
		return PurchaseRequest{}, err
	}
	return pr, nil
}

// ListPRsByIDs loads the given requests; missing IDs are simply absent.
func (r *Repository) ListPRsByIDs(ctx context.Context, ids []int64) ([]PurchaseRequest, error) {
	rows, err := r.pool.Query(ctx, prSelect+` WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prs []PurchaseRequest
	for rows.Next() {
		pr, err := scanPR(rows)
		if err != nil {
			return nil, err
		}
		prs = append(prs, pr)
	}
	return prs, rows.Err()
}

// ListPRsByStatus returns requests in one status, oldest first.
func (r *Repository) ListPRsByStatus(ctx context.Context, status PRStatus) ([]PurchaseRequest, error) {
	rows, err := r.pool.Query(ctx, prSelect+` WHERE status = $1 ORDER BY id`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prs []PurchaseRequest
	for rows.Next() {
		pr, err := scanPR(rows)
		if err != nil {
			return nil, err
		}
		prs = append(prs, pr)
	}
	return prs, rows.Err()
}

// CreatePR inserts one request.
func (r *Repository) CreatePR(ctx context.Context, pr PurchaseRequest) (PurchaseRequest, error) {
	now := time.Now()
	err := r.pool.QueryRow(ctx, `
		INSERT INTO purchase_requests (pr_no, project_id, material_id, category, quantity, unit_price, width_mm, length_mm, thickness_mm, status, note, created_at, updated_at)
		VALUES ($1, NULLIF($2, 0), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		RETURNING id, created_at, updated_at`,
		pr.PRNo, pr.ProjectID, pr.MaterialID, pr.Category, pr.Quantity, pr.UnitPrice,
		pr.WidthMM, pr.LengthMM, pr.ThicknessMM, pr.Status, pr.Note, now,
	).Scan(&pr.ID, &pr.CreatedAt, &pr.UpdatedAt)
	if err != nil {
		return PurchaseRequest{}, err
	}
	return pr, nil
}

// UpdatePRStatus sets one request status.
func (r *Repository) UpdatePRStatus(ctx context.Context, id int64, status PRStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE purchase_requests SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPRNotFound
	}
	return nil
}

// CompleteRequests marks all given requests COMPLETED and links the PO.
func (r *Repository) CompleteRequests(ctx context.Context, prIDs []int64, poID int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE purchase_requests SET status = $1, po_id = $2, updated_at = now()
		WHERE id = ANY($3) AND status = $4`,
		PRStatusCompleted, poID, prIDs, PRStatusInProgress)
	if err != nil {
		return err
	}
	if int(tag.RowsAffected()) != len(prIDs) {
		return ErrInvalidState
	}
	return nil
}

// LatestPrice returns the most recent history record for the pair.
func (r *Repository) LatestPrice(ctx context.Context, materialID, supplierID int64) (MaterialPrice, error) {
	var p MaterialPrice
	err := r.pool.QueryRow(ctx, `
		SELECT id, material_id, supplier_id, unit_price, prev_price, effective_date, created_at
		FROM material_prices WHERE material_id = $1 AND supplier_id = $2
		ORDER BY effective_date DESC, id DESC LIMIT 1`,
		materialID, supplierID,
	).Scan(&p.ID, &p.MaterialID, &p.SupplierID, &p.UnitPrice, &p.PrevPrice, &p.EffectiveDate, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MaterialPrice{}, ErrPriceNotFound
		}
		return MaterialPrice{}, err
	}
	return p, nil
}

// CreateMaterialPrice appends one history record.
func (r *Repository) CreateMaterialPrice(ctx context.Context, price MaterialPrice) (MaterialPrice, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO material_prices (material_id, supplier_id, unit_price, prev_price, effective_date, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, created_at`,
		price.MaterialID, price.SupplierID, price.UnitPrice, price.PrevPrice, price.EffectiveDate,
	).Scan(&price.ID, &price.CreatedAt)
	if err != nil {
		return MaterialPrice{}, err
	}
	return price, nil
}

// ListPricesByMaterial returns all history for one material, newest first.
func (r *Repository) ListPricesByMaterial(ctx context.Context, materialID int64) ([]MaterialPrice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, material_id, supplier_id, unit_price, prev_price, effective_date, created_at
		FROM material_prices WHERE material_id = $1
		ORDER BY effective_date DESC, id DESC`, materialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prices []MaterialPrice
	for rows.Next() {
		var p MaterialPrice
		if err := rows.Scan(&p.ID, &p.MaterialID, &p.SupplierID, &p.UnitPrice, &p.PrevPrice, &p.EffectiveDate, &p.CreatedAt); err != nil {
			return nil, err
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

func (t *txRepo) UpdateItemReceived(ctx context.Context, itemID int64, received float64) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE po_items SET received_quantity = $1 WHERE id = $2`, received, itemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPONotFound
	}
	return nil
}

func (t *txRepo) UpdatePOStatus(ctx context.Context, poID int64, status POStatus) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE purchase_orders SET status = $1, updated_at = now() WHERE id = $2`, status, poID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPONotFound
	}
	return nil
}

const prSelect = `
	SELECT id, pr_no, COALESCE(project_id, 0), material_id, category, quantity, unit_price,
	       width_mm, length_mm, thickness_mm, status, COALESCE(po_id, 0), COALESCE(note, ''), created_at, updated_at
	FROM purchase_requests`

func scanPR(row pgx.Row) (PurchaseRequest, error) {
	var pr PurchaseRequest
	err := row.Scan(&pr.ID, &pr.PRNo, &pr.ProjectID, &pr.MaterialID, &pr.Category, &pr.Quantity, &pr.UnitPrice,
		&pr.WidthMM, &pr.LengthMM, &pr.ThicknessMM, &pr.Status, &pr.POID, &pr.Note, &pr.CreatedAt, &pr.UpdatedAt)
	if err != nil {
		return PurchaseRequest{}, err
	}
	return pr, nil
}
