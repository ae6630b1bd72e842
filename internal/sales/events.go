package sales

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// OrderConfirmedEvent is emitted when a draft order is confirmed.
type OrderConfirmedEvent struct {
	OrderID     int64
	OrderNo     string
	CustomerID  int64
	Amount      decimal.Decimal
	DueDate     time.Time
	ConfirmedAt time.Time
}

// PaymentConfirmedEvent is emitted when a customer payment is recorded.
type PaymentConfirmedEvent struct {
	OrderID   int64
	PaymentNo string
	Amount    decimal.Decimal
	PaidAt    time.Time
}

// IntegrationHandler receives sales events, e.g. for ledger posting.
type IntegrationHandler interface {
	HandleOrderConfirmed(ctx context.Context, evt OrderConfirmedEvent) error
	HandlePaymentConfirmed(ctx context.Context, evt PaymentConfirmedEvent) error
}
