package sales

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/moldworks-erp/moldworks-erp/internal/shared"
)

type memoryRepo struct {
	orders   map[int64]*Order
	projects map[int64]*Project
	steps    []DesignStep
	payments []Payment
	nextID   int64

	failCreateProject bool
	failCreateSteps   bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{orders: make(map[int64]*Order), projects: make(map[int64]*Project)}
}

func (r *memoryRepo) GetOrder(ctx context.Context, id int64) (Order, error) {
	order, ok := r.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return *order, nil
}

func (r *memoryRepo) CreateOrder(ctx context.Context, order Order) (Order, error) {
	r.nextID++
	order.ID = r.nextID
	stored := order
	r.orders[order.ID] = &stored
	return order, nil
}

func (r *memoryRepo) MarkOrderConfirmed(ctx context.Context, id int64, at time.Time) error {
	order, ok := r.orders[id]
	if !ok || order.Status != OrderStatusDraft {
		return ErrInvalidState
	}
	order.Status = OrderStatusConfirmed
	order.ConfirmedAt = &at
	return nil
}

func (r *memoryRepo) GetProjectByOrder(ctx context.Context, orderID int64) (Project, error) {
	for _, project := range r.projects {
		if project.OrderID == orderID {
			return *project, nil
		}
	}
	return Project{}, ErrProjectNotFound
}

func (r *memoryRepo) CreateProject(ctx context.Context, project Project) (Project, error) {
	if r.failCreateProject {
		return Project{}, errors.New("project insert failed")
	}
	r.nextID++
	project.ID = r.nextID
	stored := project
	r.projects[project.ID] = &stored
	return project, nil
}

func (r *memoryRepo) CreateDesignSteps(ctx context.Context, steps []DesignStep) error {
	if r.failCreateSteps {
		return errors.New("steps insert failed")
	}
	r.steps = append(r.steps, steps...)
	return nil
}

func (r *memoryRepo) ListDesignSteps(ctx context.Context, projectID int64) ([]DesignStep, error) {
	var out []DesignStep
	for _, step := range r.steps {
		if step.ProjectID == projectID {
			out = append(out, step)
		}
	}
	return out, nil
}

func (r *memoryRepo) CreatePayment(ctx context.Context, payment Payment) (Payment, error) {
	r.nextID++
	payment.ID = r.nextID
	r.payments = append(r.payments, payment)
	return payment, nil
}

func (r *memoryRepo) SumPayments(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, payment := range r.payments {
		if payment.OrderID == orderID {
			total = total.Add(payment.Amount)
		}
	}
	return total, nil
}

type captureHandler struct {
	confirmed []OrderConfirmedEvent
	payments  []PaymentConfirmedEvent
}

func (c *captureHandler) HandleOrderConfirmed(ctx context.Context, evt OrderConfirmedEvent) error {
	c.confirmed = append(c.confirmed, evt)
	return nil
}

func (c *captureHandler) HandlePaymentConfirmed(ctx context.Context, evt PaymentConfirmedEvent) error {
	c.payments = append(c.payments, evt)
	return nil
}

type memoryIdem struct {
	keys    map[string]bool
	deleted []string
}

func newMemoryIdem() *memoryIdem {
	return &memoryIdem{keys: make(map[string]bool)}
}

func (m *memoryIdem) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdem) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validOrderInput() CreateOrderInput {
	return CreateOrderInput{
		CustomerID: 7,
		MoldName:   "bumper mold rev2",
		Amount:     dec(85000000),
		DueDate:    time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCreateOrderWithProjectSeedsDesignSteps(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, discardLogger())
	ctx := context.Background()

	result, err := svc.CreateOrderWithProject(ctx, validOrderInput())
	require.NoError(t, err)
	require.Equal(t, OrderStatusDraft, result.Order.Status)
	require.Equal(t, result.Order.ID, result.Project.OrderID)
	require.Equal(t, ProjectStatusActive, result.Project.Status)

	require.Len(t, result.Steps, 3)
	wantNames := []string{"design review", "mold design", "electrode design"}
	for i, step := range result.Steps {
		require.Equal(t, i+1, step.Seq)
		require.Equal(t, wantNames[i], step.Name)
		require.Equal(t, StepStatusPlanned, step.Status)
		require.Equal(t, result.Project.ID, step.ProjectID)
	}
}

func TestCreateOrderRejectsBadInput(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil, discardLogger())
	ctx := context.Background()

	_, err := svc.CreateOrderWithProject(ctx, CreateOrderInput{MoldName: "x", Amount: dec(1)})
	require.ErrorIs(t, err, ErrValidation)

	input := validOrderInput()
	input.Amount = decimal.Zero
	_, err = svc.CreateOrderWithProject(ctx, input)
	require.ErrorIs(t, err, ErrValidation)
}

func TestProjectFailureLeavesOrderForReconciliation(t *testing.T) {
	repo := newMemoryRepo()
	repo.failCreateProject = true
	svc := NewService(repo, nil, nil, nil, discardLogger())

	_, err := svc.CreateOrderWithProject(context.Background(), validOrderInput())
	require.Error(t, err)
	require.Contains(t, err.Error(), "project insert failed")

	// The order row survives so the operator can attach the project by hand.
	require.Len(t, repo.orders, 1)
	require.Empty(t, repo.projects)
}

func TestStepFailureLeavesOrderAndProject(t *testing.T) {
	repo := newMemoryRepo()
	repo.failCreateSteps = true
	svc := NewService(repo, nil, nil, nil, discardLogger())

	_, err := svc.CreateOrderWithProject(context.Background(), validOrderInput())
	require.Error(t, err)
	require.Len(t, repo.orders, 1)
	require.Len(t, repo.projects, 1)
	require.Empty(t, repo.steps)
}

func TestCreateOrderIdempotency(t *testing.T) {
	repo := newMemoryRepo()
	idem := newMemoryIdem()
	svc := NewService(repo, nil, nil, idem, discardLogger())
	ctx := context.Background()

	input := validOrderInput()
	input.RequestID = "req-1"

	_, err := svc.CreateOrderWithProject(ctx, input)
	require.NoError(t, err)

	_, err = svc.CreateOrderWithProject(ctx, input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, repo.orders, 1)
}

func TestProjectFailureKeepsIdempotencyKey(t *testing.T) {
	repo := newMemoryRepo()
	repo.failCreateProject = true
	idem := newMemoryIdem()
	svc := NewService(repo, nil, nil, idem, discardLogger())
	ctx := context.Background()

	input := validOrderInput()
	input.RequestID = "req-2"

	_, err := svc.CreateOrderWithProject(ctx, input)
	require.Error(t, err)

	// The order exists, so a replay under the same key must stay blocked.
	require.Empty(t, idem.deleted)
	_, err = svc.CreateOrderWithProject(ctx, input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
}

func TestConfirmOrderEmitsAccountingEvent(t *testing.T) {
	repo := newMemoryRepo()
	hooks := &captureHandler{}
	svc := NewService(repo, hooks, nil, nil, discardLogger())
	ctx := context.Background()

	result, err := svc.CreateOrderWithProject(ctx, validOrderInput())
	require.NoError(t, err)

	order, err := svc.ConfirmOrder(ctx, result.Order.ID)
	require.NoError(t, err)
	require.Equal(t, OrderStatusConfirmed, order.Status)
	require.NotNil(t, order.ConfirmedAt)

	require.Len(t, hooks.confirmed, 1)
	evt := hooks.confirmed[0]
	require.Equal(t, order.ID, evt.OrderID)
	require.Equal(t, int64(7), evt.CustomerID)
	require.True(t, evt.Amount.Equal(dec(85000000)))

	_, err = svc.ConfirmOrder(ctx, order.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestConfirmPaymentSettlesUpToOrderAmount(t *testing.T) {
	repo := newMemoryRepo()
	hooks := &captureHandler{}
	svc := NewService(repo, hooks, nil, nil, discardLogger())
	ctx := context.Background()

	result, err := svc.CreateOrderWithProject(ctx, validOrderInput())
	require.NoError(t, err)
	_, err = svc.ConfirmOrder(ctx, result.Order.ID)
	require.NoError(t, err)

	paidAt := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	payment, err := svc.ConfirmPayment(ctx, result.Order.ID, dec(25500000), paidAt)
	require.NoError(t, err)
	require.True(t, payment.Amount.Equal(dec(25500000)))

	require.Len(t, hooks.payments, 1)
	require.Equal(t, result.Order.ID, hooks.payments[0].OrderID)
	require.Equal(t, paidAt, hooks.payments[0].PaidAt)

	// The remainder settles exactly; one more won goes over.
	_, err = svc.ConfirmPayment(ctx, result.Order.ID, dec(59500000), paidAt)
	require.NoError(t, err)
	_, err = svc.ConfirmPayment(ctx, result.Order.ID, dec(1), paidAt)
	require.ErrorIs(t, err, ErrOverPayment)
}

func TestConfirmPaymentRequiresConfirmedOrder(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, discardLogger())
	ctx := context.Background()

	result, err := svc.CreateOrderWithProject(ctx, validOrderInput())
	require.NoError(t, err)

	_, err = svc.ConfirmPayment(ctx, result.Order.ID, dec(1000), time.Time{})
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.ConfirmPayment(ctx, 404, dec(1000), time.Time{})
	require.ErrorIs(t, err, ErrOrderNotFound)

	_, err = svc.ConfirmPayment(ctx, result.Order.ID, decimal.Zero, time.Time{})
	require.ErrorIs(t, err, ErrValidation)
}

func TestProjectOverview(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, discardLogger())
	ctx := context.Background()

	result, err := svc.CreateOrderWithProject(ctx, validOrderInput())
	require.NoError(t, err)

	project, steps, err := svc.ProjectOverview(ctx, result.Order.ID)
	require.NoError(t, err)
	require.Equal(t, result.Project.ID, project.ID)
	require.Len(t, steps, 3)

	_, _, err = svc.ProjectOverview(ctx, 404)
	require.ErrorIs(t, err, ErrProjectNotFound)
}
