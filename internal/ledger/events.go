package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType identifies the business event driving a posting.
type EventType string

const (
	EventOrderConfirmed   EventType = "ORDER_CONFIRMED"
	EventPaymentConfirmed EventType = "PAYMENT_CONFIRMED"
	EventPOOrdered        EventType = "PO_ORDERED"
	EventStockOut         EventType = "STOCK_OUT"
)

// Event is the sum type of business events the posting rules understand.
// Each concrete event carries its required fields as typed struct members,
// so field presence is checked at compile time rather than at runtime.
type Event interface {
	Type() EventType
	// Source identifies the originating document (id and human number).
	Source() (int64, string)
}

// OrderConfirmed is raised when a sales order is confirmed.
type OrderConfirmed struct {
	OrderID    int64
	OrderNo    string
	CustomerID int64
	Amount     decimal.Decimal
	DueDate    time.Time
}

func (e OrderConfirmed) Type() EventType         { return EventOrderConfirmed }
func (e OrderConfirmed) Source() (int64, string) { return e.OrderID, e.OrderNo }

// PaymentConfirmed is raised when a customer payment against an order clears.
type PaymentConfirmed struct {
	OrderID   int64
	PaymentNo string
	Amount    decimal.Decimal
	PaidAt    time.Time
}

func (e PaymentConfirmed) Type() EventType         { return EventPaymentConfirmed }
func (e PaymentConfirmed) Source() (int64, string) { return e.OrderID, e.PaymentNo }

// POOrdered is raised when a purchase order is placed with a supplier.
type POOrdered struct {
	POID       int64
	PONo       string
	SupplierID int64
	Amount     decimal.Decimal
	DueDate    time.Time
}

func (e POOrdered) Type() EventType         { return EventPOOrdered }
func (e POOrdered) Source() (int64, string) { return e.POID, e.PONo }

// StockOut is raised when material is issued from stock, valued at the
// moving average cost at issue time.
type StockOut struct {
	MovementID int64
	MovementNo string
	ProjectID  int64
	Amount     decimal.Decimal
}

func (e StockOut) Type() EventType         { return EventStockOut }
func (e StockOut) Source() (int64, string) { return e.MovementID, e.MovementNo }
