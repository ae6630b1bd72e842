package sales

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists sales data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetOrder loads one order.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	var o Order
	var confirmedAt *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT id, order_no, customer_id, mold_name, amount, status, due_date, confirmed_at, created_at, updated_at
		FROM sales_orders WHERE id = $1`, id,
	).Scan(&o.ID, &o.OrderNo, &o.CustomerID, &o.MoldName, &o.Amount, &o.Status, &o.DueDate, &confirmedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	o.ConfirmedAt = confirmedAt
	return o, nil
}

// CreateOrder inserts one order.
func (r *Repository) CreateOrder(ctx context.Context, order Order) (Order, error) {
	now := time.Now()
	err := r.pool.QueryRow(ctx, `
		INSERT INTO sales_orders (order_no, customer_id, mold_name, amount, status, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id, created_at, updated_at`,
		order.OrderNo, order.CustomerID, order.MoldName, order.Amount, order.Status, order.DueDate, now,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// MarkOrderConfirmed flips DRAFT to CONFIRMED and stamps the time.
func (r *Repository) MarkOrderConfirmed(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sales_orders SET status = $1, confirmed_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4`,
		OrderStatusConfirmed, at, id, OrderStatusDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// GetProjectByOrder loads the project belonging to one order.
func (r *Repository) GetProjectByOrder(ctx context.Context, orderID int64) (Project, error) {
	var p Project
	err := r.pool.QueryRow(ctx, `
		SELECT id, project_no, order_id, name, status, created_at, updated_at
		FROM projects WHERE order_id = $1`, orderID,
	).Scan(&p.ID, &p.ProjectNo, &p.OrderID, &p.Name, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, ErrProjectNotFound
		}
		return Project{}, err
	}
	return p, nil
}

// CreateProject inserts one project.
func (r *Repository) CreateProject(ctx context.Context, project Project) (Project, error) {
	now := time.Now()
	err := r.pool.QueryRow(ctx, `
		INSERT INTO projects (project_no, order_id, name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id, created_at, updated_at`,
		project.ProjectNo, project.OrderID, project.Name, project.Status, now,
	).Scan(&project.ID, &project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		return Project{}, err
	}
	return project, nil
}

// CreateDesignSteps batch-inserts the seeded steps.
func (r *Repository) CreateDesignSteps(ctx context.Context, steps []DesignStep) error {
	batch := &pgx.Batch{}
	for _, step := range steps {
		batch.Queue(`
			INSERT INTO design_steps (project_id, seq, name, status, created_at)
			VALUES ($1, $2, $3, $4, now())`,
			step.ProjectID, step.Seq, step.Name, step.Status)
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range steps {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// ListDesignSteps returns project steps in pipeline order.
func (r *Repository) ListDesignSteps(ctx context.Context, projectID int64) ([]DesignStep, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, project_id, seq, name, status, created_at
		FROM design_steps WHERE project_id = $1 ORDER BY seq`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []DesignStep
	for rows.Next() {
		var s DesignStep
		if err := rows.Scan(&s.ID, &s.ProjectID, &s.Seq, &s.Name, &s.Status, &s.CreatedAt); err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

// CreatePayment inserts one payment record.
func (r *Repository) CreatePayment(ctx context.Context, payment Payment) (Payment, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO payments (payment_no, order_id, amount, paid_at, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, created_at`,
		payment.PaymentNo, payment.OrderID, payment.Amount, payment.PaidAt,
	).Scan(&payment.ID, &payment.CreatedAt)
	if err != nil {
		return Payment{}, err
	}
	return payment, nil
}

// SumPayments totals recorded payments for one order.
func (r *Repository) SumPayments(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payments WHERE order_id = $1`, orderID,
	).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}
