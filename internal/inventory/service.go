package inventory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/moldworks-erp/moldworks-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetStock(ctx context.Context, materialID int64) (Stock, error)
	ListMovements(ctx context.Context, materialID int64, limit int) ([]Movement, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort keeps write operations at-most-once across retries.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service is the stock ledger: it owns Stock and StockMovement rows and
// keeps each movement and its balance effect in one unit of work.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idem        IdempotencyPort
	integration IntegrationHandler
	now         func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, integration IntegrationHandler) *Service {
	return &Service{repo: repo, audit: audit, idem: idem, integration: integration, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ReceiveInput describes an inbound receipt, PO-based or direct.
type ReceiveInput struct {
	MaterialID   int64
	Quantity     float64
	UnitPrice    decimal.Decimal
	POID         int64
	ProjectID    int64
	LocationCode string
	Note         string
	RequestID    string
}

// IssueInput describes a stock-out request.
type IssueInput struct {
	MaterialID int64
	Quantity   float64
	ProjectID  int64
	Note       string
	RequestID  string
}

// AdjustInput carries one stocktake count.
type AdjustInput struct {
	MaterialID      int64
	CountedQuantity float64
	Note            string
}

// Receive books an IN movement at the line price and recomputes the
// weighted average cost.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (Stock, error) {
	if input.MaterialID == 0 {
		return Stock{}, fmt.Errorf("%w: material required", shared.ErrValidation)
	}
	if input.Quantity <= 0 {
		return Stock{}, ErrInvalidQuantity
	}
	if input.UnitPrice.IsNegative() {
		return Stock{}, fmt.Errorf("%w: negative unit price", shared.ErrValidation)
	}
	key, err := s.claimRequest(ctx, input.RequestID)
	if err != nil {
		return Stock{}, err
	}

	var result Stock
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stock, err := tx.GetStockForUpdate(ctx, input.MaterialID)
		switch {
		case err == nil:
		case isNotFound(err):
			stock = Stock{MaterialID: input.MaterialID, AvgUnitPrice: input.UnitPrice, LocationCode: input.LocationCode}
		default:
			return err
		}

		movement := Movement{
			No:         movementNumber("IN", s.now()),
			MaterialID: input.MaterialID,
			Type:       MovementIn,
			Quantity:   input.Quantity,
			UnitPrice:  input.UnitPrice,
			ProjectID:  input.ProjectID,
			POID:       input.POID,
			Note:       input.Note,
			CreatedAt:  s.now(),
		}
		if _, err := tx.InsertMovement(ctx, movement); err != nil {
			return err
		}

		newQty := stock.Quantity + input.Quantity
		if newQty > 0 {
			stock.AvgUnitPrice = weightedAverage(stock.Quantity, stock.AvgUnitPrice, input.Quantity, input.UnitPrice)
		}
		stock.Quantity = newQty
		if input.LocationCode != "" {
			stock.LocationCode = input.LocationCode
		}
		stock.UpdatedAt = s.now()
		if err := tx.UpsertStock(ctx, &stock); err != nil {
			return err
		}
		result = stock
		return nil
	})
	if err != nil {
		s.releaseRequest(ctx, key)
		return Stock{}, err
	}
	s.recordAudit(ctx, "stock.receive", input.MaterialID, map[string]any{
		"qty": input.Quantity, "unit_price": input.UnitPrice.String(), "po_id": input.POID,
	})
	return result, nil
}

// Issue books an OUT movement valued at the current average price. The
// whole request is rejected when on-hand quantity is short; stock is never
// partially deducted.
func (s *Service) Issue(ctx context.Context, input IssueInput) (Movement, error) {
	if input.MaterialID == 0 {
		return Movement{}, fmt.Errorf("%w: material required", shared.ErrValidation)
	}
	if input.Quantity <= 0 {
		return Movement{}, ErrInvalidQuantity
	}
	key, err := s.claimRequest(ctx, input.RequestID)
	if err != nil {
		return Movement{}, err
	}

	var movement Movement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		stock, err := tx.GetStockForUpdate(ctx, input.MaterialID)
		if err != nil {
			if isNotFound(err) {
				return &InsufficientStockError{MaterialID: input.MaterialID, Requested: input.Quantity, Available: 0}
			}
			return err
		}
		if stock.Quantity < input.Quantity {
			return &InsufficientStockError{MaterialID: input.MaterialID, Requested: input.Quantity, Available: stock.Quantity}
		}

		movement = Movement{
			No:         movementNumber("OUT", s.now()),
			MaterialID: input.MaterialID,
			Type:       MovementOut,
			Quantity:   input.Quantity,
			UnitPrice:  stock.AvgUnitPrice,
			ProjectID:  input.ProjectID,
			Note:       input.Note,
			CreatedAt:  s.now(),
		}
		id, err := tx.InsertMovement(ctx, movement)
		if err != nil {
			return err
		}
		movement.ID = id

		stock.Quantity -= input.Quantity
		stock.UpdatedAt = s.now()
		return tx.UpsertStock(ctx, &stock)
	})
	if err != nil {
		s.releaseRequest(ctx, key)
		return Movement{}, err
	}

	if s.integration != nil {
		amount := movement.UnitPrice.Mul(decimal.NewFromFloat(movement.Quantity)).Round(0)
		evt := StockIssuedEvent{
			MovementID: movement.ID,
			MovementNo: movement.No,
			MaterialID: movement.MaterialID,
			ProjectID:  movement.ProjectID,
			Qty:        movement.Quantity,
			Amount:     amount,
			PostedAt:   movement.CreatedAt,
		}
		if err := s.integration.HandleStockIssued(ctx, evt); err != nil {
			return Movement{}, err
		}
	}
	s.recordAudit(ctx, "stock.issue", input.MaterialID, map[string]any{
		"qty": input.Quantity, "project_id": input.ProjectID,
	})
	return movement, nil
}

// Adjust sets the balance to the counted quantity and books the signed
// delta as an ADJUST movement. Average price is untouched.
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (Stock, error) {
	stocks, err := s.AdjustBulk(ctx, []AdjustInput{input})
	if err != nil {
		return Stock{}, err
	}
	if len(stocks) == 0 {
		// Zero delta: nothing was written, return current balance.
		return s.repo.GetStock(ctx, input.MaterialID)
	}
	return stocks[0], nil
}

// AdjustBulk applies a stocktake. Materials whose counted quantity equals
// the current balance are skipped; movement rows are written in one batch.
func (s *Service) AdjustBulk(ctx context.Context, inputs []AdjustInput) ([]Stock, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: empty stocktake", shared.ErrValidation)
	}
	for _, input := range inputs {
		if input.MaterialID == 0 {
			return nil, fmt.Errorf("%w: material required", shared.ErrValidation)
		}
		if input.CountedQuantity < 0 {
			return nil, fmt.Errorf("%w: counted quantity below zero", shared.ErrValidation)
		}
	}

	var adjusted []Stock
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var movements []Movement
		for _, input := range inputs {
			stock, err := tx.GetStockForUpdate(ctx, input.MaterialID)
			if err != nil {
				if isNotFound(err) {
					stock = Stock{MaterialID: input.MaterialID}
				} else {
					return err
				}
			}
			delta := input.CountedQuantity - stock.Quantity
			if math.Abs(delta) < 1e-9 {
				continue
			}
			movements = append(movements, Movement{
				No:         movementNumber("ADJ", s.now()),
				MaterialID: input.MaterialID,
				Type:       MovementAdjust,
				Quantity:   delta,
				UnitPrice:  stock.AvgUnitPrice,
				Note:       input.Note,
				CreatedAt:  s.now(),
			})
			stock.Quantity = input.CountedQuantity
			stock.UpdatedAt = s.now()
			if err := tx.UpsertStock(ctx, &stock); err != nil {
				return err
			}
			adjusted = append(adjusted, stock)
		}
		if len(movements) == 0 {
			return nil
		}
		return tx.InsertMovements(ctx, movements)
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "stock.adjust", int64(len(adjusted)), map[string]any{"count": len(adjusted)})
	return adjusted, nil
}

// GetStock returns the current balance for one material.
func (s *Service) GetStock(ctx context.Context, materialID int64) (Stock, error) {
	if materialID == 0 {
		return Stock{}, fmt.Errorf("%w: material required", shared.ErrValidation)
	}
	return s.repo.GetStock(ctx, materialID)
}

// ListMovements returns the most recent ledger entries for a material.
func (s *Service) ListMovements(ctx context.Context, materialID int64, limit int) ([]Movement, error) {
	if materialID == 0 {
		return nil, fmt.Errorf("%w: material required", shared.ErrValidation)
	}
	if limit <= 0 {
		limit = 200
	}
	return s.repo.ListMovements(ctx, materialID, limit)
}

// weightedAverage recomputes the moving average cost on receipt, rounded to
// whole currency units.
func weightedAverage(oldQty float64, oldAvg decimal.Decimal, recvQty float64, recvPrice decimal.Decimal) decimal.Decimal {
	newQty := oldQty + recvQty
	if newQty == 0 {
		return oldAvg
	}
	oldValue := oldAvg.Mul(decimal.NewFromFloat(oldQty))
	recvValue := recvPrice.Mul(decimal.NewFromFloat(recvQty))
	return oldValue.Add(recvValue).Div(decimal.NewFromFloat(newQty)).Round(0)
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Module: "inventory",
		Action: action,
		Ref:    fmt.Sprintf("%d", entityID),
		Meta:   meta,
		At:     s.now(),
	})
}

// claimRequest registers the caller's request id, minting one when absent,
// so a retried write is rejected instead of double-applied.
func (s *Service) claimRequest(ctx context.Context, requestID string) (string, error) {
	if s.idem == nil {
		return "", nil
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	if err := s.idem.CheckAndInsert(ctx, requestID, "inventory"); err != nil {
		return "", err
	}
	return requestID, nil
}

// releaseRequest frees the key after a failed write so the caller may retry.
func (s *Service) releaseRequest(ctx context.Context, key string) {
	if s.idem == nil || key == "" {
		return
	}
	_ = s.idem.Delete(ctx, key)
}

func movementNumber(prefix string, at time.Time) string {
	return fmt.Sprintf("MV-%s-%d", prefix, at.UnixNano())
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrStockNotFound)
}
