package procurement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// POOrderedEvent is emitted when a draft PO is placed with its supplier.
type POOrderedEvent struct {
	POID       int64
	PONo       string
	SupplierID int64
	Amount     decimal.Decimal
	DueDate    time.Time
	OrderedAt  time.Time
}

// IntegrationHandler receives procurement events, e.g. for ledger posting.
type IntegrationHandler interface {
	HandlePOOrdered(ctx context.Context, evt POOrderedEvent) error
}
