package procurement

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// POStatus enumerates purchase order states.
type POStatus string

const (
	POStatusDraft           POStatus = "DRAFT"
	POStatusOrdered         POStatus = "ORDERED"
	POStatusPartialReceived POStatus = "PARTIAL_RECEIVED"
	POStatusReceived        POStatus = "RECEIVED"
	POStatusCancelled       POStatus = "CANCELLED"
)

// PRStatus enumerates purchase request states. COMPLETED is terminal: once a
// request is linked to a PO it never changes again.
type PRStatus string

const (
	PRStatusDraft      PRStatus = "DRAFT"
	PRStatusPending    PRStatus = "PENDING"
	PRStatusApproved   PRStatus = "APPROVED"
	PRStatusInProgress PRStatus = "IN_PROGRESS"
	PRStatusCompleted  PRStatus = "COMPLETED"
	PRStatusRejected   PRStatus = "REJECTED"
)

// MaterialCategory distinguishes dimension-priced steel from catalog items.
type MaterialCategory string

const (
	CategorySteel   MaterialCategory = "STEEL"
	CategoryGeneral MaterialCategory = "GENERAL"
)

// PurchaseOrder is the header; received quantities live on the items.
type PurchaseOrder struct {
	ID         int64
	PONo       string
	SupplierID int64
	ProjectID  int64
	Status     POStatus
	OrderedAt  *time.Time
	DueDate    time.Time
	Note       string
	Items      []POItem
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// POItem carries the ordered and the monotonically non-decreasing received
// quantity; received never exceeds ordered.
type POItem struct {
	ID               int64
	POID             int64
	MaterialID       int64
	Quantity         float64
	ReceivedQuantity float64
	UnitPrice        decimal.Decimal
}

// Total sums quantity x unit price over the items.
func (po PurchaseOrder) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range po.Items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromFloat(item.Quantity)))
	}
	return total.Round(0)
}

// PurchaseRequest is one material demand raised by design or production.
type PurchaseRequest struct {
	ID          int64
	PRNo        string
	ProjectID   int64
	MaterialID  int64
	Category    MaterialCategory
	Quantity    float64
	UnitPrice   decimal.Decimal
	WidthMM     float64
	LengthMM    float64
	ThicknessMM float64
	Status      PRStatus
	POID        int64
	Note        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Receipt is one received line within a reconciliation call.
type Receipt struct {
	ItemID   int64
	Quantity float64
}

// MaterialPrice is an append-only price history record per (material, supplier).
type MaterialPrice struct {
	ID            int64
	MaterialID    int64
	SupplierID    int64
	UnitPrice     decimal.Decimal
	PrevPrice     decimal.Decimal
	EffectiveDate time.Time
	CreatedAt     time.Time
}

var (
	// ErrPONotFound indicates a missing purchase order.
	ErrPONotFound = errors.New("procurement: purchase order not found")
	// ErrPRNotFound indicates a missing purchase request.
	ErrPRNotFound = errors.New("procurement: purchase request not found")
	// ErrPriceNotFound indicates no price history for the pair yet.
	ErrPriceNotFound = errors.New("procurement: material price not found")
	// ErrInvalidState indicates an action not allowed in the current status.
	ErrInvalidState = errors.New("procurement: invalid state")
	// ErrValidation indicates recoverable bad input.
	ErrValidation = errors.New("procurement: validation failed")
	// ErrOverReceipt indicates a receipt pushing received over ordered quantity.
	ErrOverReceipt = errors.New("procurement: received quantity exceeds ordered quantity")
)
