package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// StockIssuedEvent is emitted after a successful stock-out.
type StockIssuedEvent struct {
	MovementID int64
	MovementNo string
	MaterialID int64
	ProjectID  int64
	Qty        float64
	Amount     decimal.Decimal
	PostedAt   time.Time
}

// IntegrationHandler receives inventory events, e.g. for ledger posting.
type IntegrationHandler interface {
	HandleStockIssued(ctx context.Context, evt StockIssuedEvent) error
}
