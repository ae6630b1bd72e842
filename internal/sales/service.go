package sales

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/moldworks-erp/moldworks-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	GetOrder(ctx context.Context, id int64) (Order, error)
	CreateOrder(ctx context.Context, order Order) (Order, error)
	MarkOrderConfirmed(ctx context.Context, id int64, at time.Time) error
	GetProjectByOrder(ctx context.Context, orderID int64) (Project, error)
	CreateProject(ctx context.Context, project Project) (Project, error)
	CreateDesignSteps(ctx context.Context, steps []DesignStep) error
	ListDesignSteps(ctx context.Context, projectID int64) ([]DesignStep, error)
	CreatePayment(ctx context.Context, payment Payment) (Payment, error)
	SumPayments(ctx context.Context, orderID int64) (decimal.Decimal, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort keeps write operations at-most-once across retries.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service orchestrates the order intake flow and payment confirmation.
type Service struct {
	repo        RepositoryPort
	integration IntegrationHandler
	audit       AuditPort
	idem        IdempotencyPort
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs sales service.
func NewService(repo RepositoryPort, integration IntegrationHandler, audit AuditPort, idem IdempotencyPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, integration: integration, audit: audit, idem: idem, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateOrderInput describes order intake payload.
type CreateOrderInput struct {
	CustomerID int64
	MoldName   string
	Amount     decimal.Decimal
	DueDate    time.Time
	RequestID  string
}

// CreateOrderResult bundles the created aggregate roots.
type CreateOrderResult struct {
	Order   Order
	Project Project
	Steps   []DesignStep
}

// CreateOrderWithProject creates the order, its project and the initial
// design steps as three sequential writes. When a later write fails the
// already-created rows stay in place and the failure is logged with both
// ids; the operator reconciles by hand. There is deliberately no automatic
// compensation here: a dangling project is visible and harmless, while a
// silently deleted order is not.
func (s *Service) CreateOrderWithProject(ctx context.Context, input CreateOrderInput) (CreateOrderResult, error) {
	if input.CustomerID == 0 || input.MoldName == "" {
		return CreateOrderResult{}, fmt.Errorf("%w: customer and mold name required", ErrValidation)
	}
	if !input.Amount.IsPositive() {
		return CreateOrderResult{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	key, err := s.claimRequest(ctx, input.RequestID)
	if err != nil {
		return CreateOrderResult{}, err
	}
	now := s.now()

	order, err := s.repo.CreateOrder(ctx, Order{
		OrderNo:    generateNumber("SO", now),
		CustomerID: input.CustomerID,
		MoldName:   input.MoldName,
		Amount:     input.Amount.Round(0),
		Status:     OrderStatusDraft,
		DueDate:    input.DueDate,
	})
	if err != nil {
		s.releaseRequest(ctx, key)
		return CreateOrderResult{}, err
	}

	project, err := s.repo.CreateProject(ctx, Project{
		ProjectNo: generateNumber("PJ", now),
		OrderID:   order.ID,
		Name:      input.MoldName,
		Status:    ProjectStatusActive,
	})
	if err != nil {
		s.logger.Error("order created without project, manual reconciliation required",
			slog.Int64("order_id", order.ID),
			slog.Any("error", err),
		)
		return CreateOrderResult{}, fmt.Errorf("sales: create project for order %d: %w", order.ID, err)
	}

	steps := make([]DesignStep, 0, len(designStepTemplate))
	for i, name := range designStepTemplate {
		steps = append(steps, DesignStep{ProjectID: project.ID, Seq: i + 1, Name: name, Status: StepStatusPlanned})
	}
	if err := s.repo.CreateDesignSteps(ctx, steps); err != nil {
		s.logger.Error("project created without design steps, manual reconciliation required",
			slog.Int64("order_id", order.ID),
			slog.Int64("project_id", project.ID),
			slog.Any("error", err),
		)
		return CreateOrderResult{}, fmt.Errorf("sales: seed design steps for project %d: %w", project.ID, err)
	}

	s.recordAudit(ctx, "order.create", order.ID, map[string]any{"order_no": order.OrderNo, "project_no": project.ProjectNo})
	return CreateOrderResult{Order: order, Project: project, Steps: steps}, nil
}

// ConfirmOrder flips DRAFT to CONFIRMED and posts the receivable.
func (s *Service) ConfirmOrder(ctx context.Context, orderID int64) (Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.Status != OrderStatusDraft {
		return Order{}, fmt.Errorf("%w: %s is %s", ErrInvalidState, order.OrderNo, order.Status)
	}
	confirmedAt := s.now()
	if err := s.repo.MarkOrderConfirmed(ctx, orderID, confirmedAt); err != nil {
		return Order{}, err
	}
	order.Status = OrderStatusConfirmed
	order.ConfirmedAt = &confirmedAt

	if s.integration != nil {
		evt := OrderConfirmedEvent{
			OrderID:     order.ID,
			OrderNo:     order.OrderNo,
			CustomerID:  order.CustomerID,
			Amount:      order.Amount,
			DueDate:     order.DueDate,
			ConfirmedAt: confirmedAt,
		}
		if err := s.integration.HandleOrderConfirmed(ctx, evt); err != nil {
			return Order{}, err
		}
	}
	s.recordAudit(ctx, "order.confirm", order.ID, map[string]any{"order_no": order.OrderNo, "amount": order.Amount.String()})
	return order, nil
}

// ConfirmPayment records a received payment and settles the receivable.
func (s *Service) ConfirmPayment(ctx context.Context, orderID int64, amount decimal.Decimal, paidAt time.Time) (Payment, error) {
	if !amount.IsPositive() {
		return Payment{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Payment{}, err
	}
	if order.Status != OrderStatusConfirmed {
		return Payment{}, fmt.Errorf("%w: %s is %s", ErrInvalidState, order.OrderNo, order.Status)
	}
	paid, err := s.repo.SumPayments(ctx, orderID)
	if err != nil {
		return Payment{}, err
	}
	amount = amount.Round(0)
	if paid.Add(amount).GreaterThan(order.Amount) {
		return Payment{}, fmt.Errorf("%w: order %s", ErrOverPayment, order.OrderNo)
	}
	if paidAt.IsZero() {
		paidAt = s.now()
	}

	payment, err := s.repo.CreatePayment(ctx, Payment{
		PaymentNo: generateNumber("PAY", s.now()),
		OrderID:   orderID,
		Amount:    amount,
		PaidAt:    paidAt,
	})
	if err != nil {
		return Payment{}, err
	}

	if s.integration != nil {
		evt := PaymentConfirmedEvent{
			OrderID:   orderID,
			PaymentNo: payment.PaymentNo,
			Amount:    payment.Amount,
			PaidAt:    paidAt,
		}
		if err := s.integration.HandlePaymentConfirmed(ctx, evt); err != nil {
			return Payment{}, err
		}
	}
	s.recordAudit(ctx, "payment.confirm", payment.ID, map[string]any{"payment_no": payment.PaymentNo, "amount": payment.Amount.String()})
	return payment, nil
}

// GetOrder returns one order.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (Order, error) {
	return s.repo.GetOrder(ctx, orderID)
}

// ProjectOverview returns the project and its design steps for an order.
func (s *Service) ProjectOverview(ctx context.Context, orderID int64) (Project, []DesignStep, error) {
	project, err := s.repo.GetProjectByOrder(ctx, orderID)
	if err != nil {
		return Project{}, nil, err
	}
	steps, err := s.repo.ListDesignSteps(ctx, project.ID)
	if err != nil {
		return Project{}, nil, err
	}
	return project, steps, nil
}

// claimRequest registers the caller's request id, minting one when absent,
// so a retried create is rejected instead of double-applied. The order write
// is the only step released on failure: once the order row exists the flow
// must not be replayed under the same key.
func (s *Service) claimRequest(ctx context.Context, requestID string) (string, error) {
	if s.idem == nil {
		return "", nil
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	if err := s.idem.CheckAndInsert(ctx, requestID, "sales"); err != nil {
		return "", err
	}
	return requestID, nil
}

func (s *Service) releaseRequest(ctx context.Context, key string) {
	if s.idem == nil || key == "" {
		return
	}
	_ = s.idem.Delete(ctx, key)
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Module: "sales", Action: action, Ref: fmt.Sprintf("%d", entityID), Meta: meta, At: s.now()})
}

func generateNumber(prefix string, at time.Time) string {
	return fmt.Sprintf("%s-%d", prefix, at.UnixNano())
}
