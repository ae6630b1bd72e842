package sales

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus enumerates sales order states.
type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "DRAFT"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusClosed    OrderStatus = "CLOSED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// ProjectStatus enumerates mold project states.
type ProjectStatus string

const (
	ProjectStatusActive    ProjectStatus = "ACTIVE"
	ProjectStatusCompleted ProjectStatus = "COMPLETED"
	ProjectStatusOnHold    ProjectStatus = "ON_HOLD"
)

// StepStatus enumerates design step states.
type StepStatus string

const (
	StepStatusPlanned StepStatus = "PLANNED"
	StepStatusActive  StepStatus = "ACTIVE"
	StepStatusDone    StepStatus = "DONE"
)

// Order is a customer order for one mold.
type Order struct {
	ID          int64
	OrderNo     string
	CustomerID  int64
	MoldName    string
	Amount      decimal.Decimal
	Status      OrderStatus
	DueDate     time.Time
	ConfirmedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Project tracks the manufacturing side of an order.
type Project struct {
	ID        int64
	ProjectNo string
	OrderID   int64
	Name      string
	Status    ProjectStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DesignStep is one stage in the project's design pipeline.
type DesignStep struct {
	ID        int64
	ProjectID int64
	Seq       int
	Name      string
	Status    StepStatus
	CreatedAt time.Time
}

// Payment records money received against an order.
type Payment struct {
	ID        int64
	PaymentNo string
	OrderID   int64
	Amount    decimal.Decimal
	PaidAt    time.Time
	CreatedAt time.Time
}

// designStepTemplate seeds every new project in order.
var designStepTemplate = []string{"design review", "mold design", "electrode design"}

var (
	// ErrOrderNotFound indicates a missing order.
	ErrOrderNotFound = errors.New("sales: order not found")
	// ErrProjectNotFound indicates a missing project.
	ErrProjectNotFound = errors.New("sales: project not found")
	// ErrInvalidState indicates an action not allowed in the current status.
	ErrInvalidState = errors.New("sales: invalid state")
	// ErrValidation indicates recoverable bad input.
	ErrValidation = errors.New("sales: validation failed")
	// ErrOverPayment indicates a payment exceeding the order amount outstanding.
	ErrOverPayment = errors.New("sales: payment exceeds order amount")
)
