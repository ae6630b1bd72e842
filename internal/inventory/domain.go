package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MovementType enumerates stock ledger movement kinds.
type MovementType string

const (
	MovementIn     MovementType = "IN"
	MovementOut    MovementType = "OUT"
	MovementAdjust MovementType = "ADJUST"
)

// Stock is the per-material balance row: on-hand quantity and the weighted
// average unit cost recomputed on every receipt.
type Stock struct {
	ID           int64
	MaterialID   int64
	Quantity     float64
	AvgUnitPrice decimal.Decimal
	LocationCode string
	UpdatedAt    time.Time
}

// Movement is one append-only stock ledger entry. Quantity is signed for
// ADJUST and unsigned for IN/OUT.
type Movement struct {
	ID         int64
	No         string
	MaterialID int64
	Type       MovementType
	Quantity   float64
	UnitPrice  decimal.Decimal
	ProjectID  int64
	POID       int64
	Note       string
	CreatedAt  time.Time
}

var (
	// ErrStockNotFound indicates no balance row exists for the material.
	ErrStockNotFound = errors.New("inventory: stock not found")
	// ErrInvalidQuantity indicates a non-positive movement quantity.
	ErrInvalidQuantity = errors.New("inventory: invalid quantity")
	// ErrInsufficientStock indicates an issue larger than on-hand quantity.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)

// InsufficientStockError carries the requested vs available quantities so
// callers can surface both. Matches ErrInsufficientStock under errors.Is.
type InsufficientStockError struct {
	MaterialID int64
	Requested  float64
	Available  float64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for material %d: requested %.3f, available %.3f",
		e.MaterialID, e.Requested, e.Available)
}

// Is lets errors.Is treat this as ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
