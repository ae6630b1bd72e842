package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/moldworks-erp/moldworks-erp/internal/inventory"
	"github.com/moldworks-erp/moldworks-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPO(ctx context.Context, id int64) (PurchaseOrder, error)
	CreatePO(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error)
	DeletePO(ctx context.Context, id int64) error
	MarkPOOrdered(ctx context.Context, id int64, at time.Time) error
	GetPR(ctx context.Context, id int64) (PurchaseRequest, error)
	ListPRsByIDs(ctx context.Context, ids []int64) ([]PurchaseRequest, error)
	CreatePR(ctx context.Context, pr PurchaseRequest) (PurchaseRequest, error)
	UpdatePRStatus(ctx context.Context, id int64, status PRStatus) error
	CompleteRequests(ctx context.Context, prIDs []int64, poID int64) error
	LatestPrice(ctx context.Context, materialID, supplierID int64) (MaterialPrice, error)
	CreateMaterialPrice(ctx context.Context, price MaterialPrice) (MaterialPrice, error)
	ListPricesByMaterial(ctx context.Context, materialID int64) ([]MaterialPrice, error)
}

// TxRepository exposes the PO receiving mutations that must land together.
type TxRepository interface {
	UpdateItemReceived(ctx context.Context, itemID int64, received float64) error
	UpdatePOStatus(ctx context.Context, poID int64, status POStatus) error
}

// InventoryPort exposes required inventory integration.
type InventoryPort interface {
	Receive(ctx context.Context, input inventory.ReceiveInput) (inventory.Stock, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates procurement flows: PR lifecycle, PR to PO conversion
// with compensation, PO ordering, and receipt reconciliation.
type Service struct {
	repo        RepositoryPort
	inventory   InventoryPort
	integration IntegrationHandler
	audit       AuditPort
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, inv InventoryPort, integration IntegrationHandler, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, inventory: inv, integration: integration, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreatePRInput describes creation payload.
type CreatePRInput struct {
	ProjectID   int64
	MaterialID  int64
	Category    MaterialCategory
	Quantity    float64
	UnitPrice   decimal.Decimal
	WidthMM     float64
	LengthMM    float64
	ThicknessMM float64
	Note        string
}

// ConvertInput selects requests for conversion into purchase orders.
type ConvertInput struct {
	PRIDs           []int64
	SupplierID      int64
	DueDate         time.Time
	SteelPricePerKG decimal.Decimal
}

// CreatePOInput creates a PO directly with linked requests.
type CreatePOInput struct {
	SupplierID int64
	ProjectID  int64
	DueDate    time.Time
	Note       string
	Items      []POItemInput
	PRIDs      []int64
}

// POItemInput describes one ordered line.
type POItemInput struct {
	MaterialID int64
	Quantity   float64
	UnitPrice  decimal.Decimal
}

// CreatePurchaseRequest persists a new request in DRAFT.
func (s *Service) CreatePurchaseRequest(ctx context.Context, input CreatePRInput) (PurchaseRequest, error) {
	if input.MaterialID == 0 || input.Quantity <= 0 {
		return PurchaseRequest{}, fmt.Errorf("%w: material and positive quantity required", ErrValidation)
	}
	if input.Category == "" {
		input.Category = CategoryGeneral
	}
	pr := PurchaseRequest{
		PRNo:        generateNumber("PR", s.now()),
		ProjectID:   input.ProjectID,
		MaterialID:  input.MaterialID,
		Category:    input.Category,
		Quantity:    input.Quantity,
		UnitPrice:   input.UnitPrice,
		WidthMM:     input.WidthMM,
		LengthMM:    input.LengthMM,
		ThicknessMM: input.ThicknessMM,
		Status:      PRStatusDraft,
		Note:        input.Note,
	}
	created, err := s.repo.CreatePR(ctx, pr)
	if err != nil {
		return PurchaseRequest{}, err
	}
	s.recordAudit(ctx, "pr.create", created.ID, map[string]any{"pr_no": created.PRNo})
	return created, nil
}

// SubmitPR moves DRAFT to PENDING.
func (s *Service) SubmitPR(ctx context.Context, prID int64) error {
	return s.movePR(ctx, prID, PRStatusDraft, PRStatusPending)
}

// ApprovePR moves PENDING to APPROVED.
func (s *Service) ApprovePR(ctx context.Context, prID int64) error {
	return s.movePR(ctx, prID, PRStatusPending, PRStatusApproved)
}

// StartPR moves APPROVED to IN_PROGRESS, making the request eligible for
// conversion.
func (s *Service) StartPR(ctx context.Context, prID int64) error {
	return s.movePR(ctx, prID, PRStatusApproved, PRStatusInProgress)
}

// RejectPR moves PENDING to REJECTED.
func (s *Service) RejectPR(ctx context.Context, prID int64) error {
	return s.movePR(ctx, prID, PRStatusPending, PRStatusRejected)
}

func (s *Service) movePR(ctx context.Context, prID int64, from, to PRStatus) error {
	pr, err := s.repo.GetPR(ctx, prID)
	if err != nil {
		return err
	}
	if pr.Status != from {
		return fmt.Errorf("%w: %s is %s", ErrInvalidState, pr.PRNo, pr.Status)
	}
	return s.repo.UpdatePRStatus(ctx, prID, to)
}

// ConvertPRsToPOs groups eligible requests by project and creates one PO
// per group. PO creation and request linking span aggregates, so the flow
// compensates: when the request-update step fails the created POs are
// deleted best effort and the original error is surfaced.
func (s *Service) ConvertPRsToPOs(ctx context.Context, input ConvertInput) ([]PurchaseOrder, error) {
	if len(input.PRIDs) == 0 {
		return nil, fmt.Errorf("%w: no purchase requests selected", ErrValidation)
	}
	if input.SupplierID == 0 {
		return nil, fmt.Errorf("%w: supplier required", ErrValidation)
	}
	prs, err := s.repo.ListPRsByIDs(ctx, input.PRIDs)
	if err != nil {
		return nil, err
	}
	if len(prs) != len(input.PRIDs) {
		return nil, fmt.Errorf("%w: %d of %d requests", ErrPRNotFound, len(input.PRIDs)-len(prs), len(input.PRIDs))
	}
	groups := make(map[int64][]PurchaseRequest)
	for _, pr := range prs {
		if pr.Status != PRStatusInProgress {
			return nil, fmt.Errorf("%w: %s is %s, expected %s", ErrInvalidState, pr.PRNo, pr.Status, PRStatusInProgress)
		}
		groups[pr.ProjectID] = append(groups[pr.ProjectID], pr)
	}

	projectIDs := make([]int64, 0, len(groups))
	for projectID := range groups {
		projectIDs = append(projectIDs, projectID)
	}
	sort.Slice(projectIDs, func(i, j int) bool { return projectIDs[i] < projectIDs[j] })

	created := make([]PurchaseOrder, len(projectIDs))
	workflow := shared.NewWorkflow("procurement.convert_prs", s.logger)
	for i, projectID := range projectIDs {
		workflow.Step(fmt.Sprintf("create purchase order for project %d", projectID),
			func(ctx context.Context) error {
				po, err := s.repo.CreatePO(ctx, s.buildPOFromPRs(projectID, groups[projectID], input))
				if err != nil {
					return err
				}
				created[i] = po
				return nil
			},
			func(ctx context.Context) error {
				return s.repo.DeletePO(ctx, created[i].ID)
			})
	}
	workflow.Step("complete purchase requests",
		func(ctx context.Context) error {
			for i, projectID := range projectIDs {
				prIDs := make([]int64, 0, len(groups[projectID]))
				for _, pr := range groups[projectID] {
					prIDs = append(prIDs, pr.ID)
				}
				if err := s.repo.CompleteRequests(ctx, prIDs, created[i].ID); err != nil {
					return err
				}
			}
			return nil
		},
		nil)
	if err := workflow.Execute(ctx); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "po.convert", int64(len(created)), map[string]any{"po_count": len(created), "pr_count": len(prs)})
	return created, nil
}

func (s *Service) buildPOFromPRs(projectID int64, prs []PurchaseRequest, input ConvertInput) PurchaseOrder {
	po := PurchaseOrder{
		PONo:       generateNumber("PO", s.now()),
		SupplierID: input.SupplierID,
		ProjectID:  projectID,
		Status:     POStatusDraft,
		DueDate:    input.DueDate,
	}
	for _, pr := range prs {
		price := pr.UnitPrice
		if pr.Category == CategorySteel && input.SteelPricePerKG.IsPositive() {
			price = SteelUnitPrice(pr.WidthMM, pr.LengthMM, pr.ThicknessMM, input.SteelPricePerKG)
		}
		po.Items = append(po.Items, POItem{
			MaterialID: pr.MaterialID,
			Quantity:   pr.Quantity,
			UnitPrice:  price,
		})
	}
	return po
}

// CreatePOWithRequests creates a PO and links already selected requests,
// compensating with a PO delete when linking fails.
func (s *Service) CreatePOWithRequests(ctx context.Context, input CreatePOInput) (PurchaseOrder, error) {
	if input.SupplierID == 0 || len(input.Items) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: supplier and at least one item required", ErrValidation)
	}
	for _, item := range input.Items {
		if item.MaterialID == 0 || item.Quantity <= 0 {
			return PurchaseOrder{}, fmt.Errorf("%w: item material and positive quantity required", ErrValidation)
		}
	}

	po := PurchaseOrder{
		PONo:       generateNumber("PO", s.now()),
		SupplierID: input.SupplierID,
		ProjectID:  input.ProjectID,
		Status:     POStatusDraft,
		DueDate:    input.DueDate,
		Note:       input.Note,
	}
	for _, item := range input.Items {
		po.Items = append(po.Items, POItem{MaterialID: item.MaterialID, Quantity: item.Quantity, UnitPrice: item.UnitPrice})
	}

	var created PurchaseOrder
	workflow := shared.NewWorkflow("procurement.create_po", s.logger)
	workflow.Step("create purchase order",
		func(ctx context.Context) error {
			var err error
			created, err = s.repo.CreatePO(ctx, po)
			return err
		},
		func(ctx context.Context) error {
			return s.repo.DeletePO(ctx, created.ID)
		})
	workflow.Step("link purchase requests",
		func(ctx context.Context) error {
			if len(input.PRIDs) == 0 {
				return nil
			}
			return s.repo.CompleteRequests(ctx, input.PRIDs, created.ID)
		},
		nil)
	if err := workflow.Execute(ctx); err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, "po.create", created.ID, map[string]any{"po_no": created.PONo})
	return created, nil
}

// MarkOrdered places a draft PO with its supplier and posts the payable.
func (s *Service) MarkOrdered(ctx context.Context, poID int64) (PurchaseOrder, error) {
	po, err := s.repo.GetPO(ctx, poID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if po.Status != POStatusDraft {
		return PurchaseOrder{}, fmt.Errorf("%w: %s is %s", ErrInvalidState, po.PONo, po.Status)
	}
	orderedAt := s.now()
	if err := s.repo.MarkPOOrdered(ctx, poID, orderedAt); err != nil {
		return PurchaseOrder{}, err
	}
	po.Status = POStatusOrdered
	po.OrderedAt = &orderedAt

	if s.integration != nil {
		evt := POOrderedEvent{
			POID:       po.ID,
			PONo:       po.PONo,
			SupplierID: po.SupplierID,
			Amount:     po.Total(),
			DueDate:    po.DueDate,
			OrderedAt:  orderedAt,
		}
		if err := s.integration.HandlePOOrdered(ctx, evt); err != nil {
			return PurchaseOrder{}, err
		}
	}
	s.recordAudit(ctx, "po.order", po.ID, map[string]any{"po_no": po.PONo, "amount": po.Total().String()})
	return po, nil
}

// ReceivePO applies partial or full receipt quantities to PO items, derives
// the PO status, books the stock, and appends price history.
func (s *Service) ReceivePO(ctx context.Context, poID int64, receipts []Receipt) (PurchaseOrder, error) {
	if len(receipts) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: empty receipt", ErrValidation)
	}
	po, err := s.repo.GetPO(ctx, poID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if po.Status != POStatusOrdered && po.Status != POStatusPartialReceived {
		return PurchaseOrder{}, fmt.Errorf("%w: %s is %s", ErrInvalidState, po.PONo, po.Status)
	}

	items := make(map[int64]*POItem, len(po.Items))
	for i := range po.Items {
		items[po.Items[i].ID] = &po.Items[i]
	}
	for _, receipt := range receipts {
		item, ok := items[receipt.ItemID]
		if !ok {
			return PurchaseOrder{}, fmt.Errorf("%w: item %d not on PO %s", ErrValidation, receipt.ItemID, po.PONo)
		}
		if receipt.Quantity <= 0 {
			return PurchaseOrder{}, fmt.Errorf("%w: non-positive receipt for item %d", ErrValidation, receipt.ItemID)
		}
		if item.ReceivedQuantity+receipt.Quantity > item.Quantity {
			return PurchaseOrder{}, fmt.Errorf("%w: item %d", ErrOverReceipt, receipt.ItemID)
		}
		item.ReceivedQuantity += receipt.Quantity
	}
	status := deriveStatus(po)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, receipt := range receipts {
			item := items[receipt.ItemID]
			if err := tx.UpdateItemReceived(ctx, item.ID, item.ReceivedQuantity); err != nil {
				return err
			}
		}
		if status != po.Status {
			return tx.UpdatePOStatus(ctx, po.ID, status)
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Status = status

	for _, receipt := range receipts {
		item := items[receipt.ItemID]
		if _, err := s.inventory.Receive(ctx, inventory.ReceiveInput{
			MaterialID: item.MaterialID,
			Quantity:   receipt.Quantity,
			UnitPrice:  item.UnitPrice,
			POID:       po.ID,
			ProjectID:  po.ProjectID,
			Note:       fmt.Sprintf("PO %s receipt", po.PONo),
		}); err != nil {
			// Receipt quantities are already committed; the stock side is
			// missing. Keep the PO state and hand the gap to the operator.
			s.logger.Error("receipt committed without stock booking, manual reconciliation required",
				slog.String("po_no", po.PONo),
				slog.Int64("item_id", item.ID),
				slog.Int64("material_id", item.MaterialID),
				slog.Any("error", err),
			)
			return PurchaseOrder{}, fmt.Errorf("procurement: book receipt for item %d: %w", item.ID, err)
		}
	}

	if err := s.recordPriceHistory(ctx, po, receipts, items); err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, "po.receive", po.ID, map[string]any{"po_no": po.PONo, "status": string(po.Status), "lines": len(receipts)})
	return po, nil
}

// recordPriceHistory appends one price record per (material, supplier) pair
// whose line price differs from the latest history. The seen set keeps the
// insert idempotent within one receipt batch.
func (s *Service) recordPriceHistory(ctx context.Context, po PurchaseOrder, receipts []Receipt, items map[int64]*POItem) error {
	seen := make(map[int64]bool)
	for _, receipt := range receipts {
		item := items[receipt.ItemID]
		if seen[item.MaterialID] {
			continue
		}
		seen[item.MaterialID] = true

		latest, err := s.repo.LatestPrice(ctx, item.MaterialID, po.SupplierID)
		switch {
		case errors.Is(err, ErrPriceNotFound):
			latest = MaterialPrice{}
		case err != nil:
			return fmt.Errorf("procurement: latest price for material %d: %w", item.MaterialID, err)
		case latest.UnitPrice.Equal(item.UnitPrice):
			continue
		}
		_, err = s.repo.CreateMaterialPrice(ctx, MaterialPrice{
			MaterialID:    item.MaterialID,
			SupplierID:    po.SupplierID,
			UnitPrice:     item.UnitPrice,
			PrevPrice:     latest.UnitPrice,
			EffectiveDate: s.now(),
		})
		if err != nil {
			return fmt.Errorf("procurement: record price for material %d: %w", item.MaterialID, err)
		}
	}
	return nil
}

// GetPO returns one purchase order with items.
func (s *Service) GetPO(ctx context.Context, poID int64) (PurchaseOrder, error) {
	return s.repo.GetPO(ctx, poID)
}

// PriceHistory lists recorded prices for a material, newest first.
func (s *Service) PriceHistory(ctx context.Context, materialID int64) ([]MaterialPrice, error) {
	if materialID == 0 {
		return nil, fmt.Errorf("%w: material required", ErrValidation)
	}
	return s.repo.ListPricesByMaterial(ctx, materialID)
}

// deriveStatus inspects item completion after a receipt batch.
func deriveStatus(po PurchaseOrder) POStatus {
	allFull := true
	anyReceived := false
	for _, item := range po.Items {
		if item.ReceivedQuantity > 0 {
			anyReceived = true
		}
		if item.ReceivedQuantity < item.Quantity {
			allFull = false
		}
	}
	switch {
	case allFull:
		return POStatusReceived
	case anyReceived:
		return POStatusPartialReceived
	default:
		return po.Status
	}
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Module: "procurement", Action: action, Ref: fmt.Sprintf("%d", entityID), Meta: meta, At: s.now()})
}

func generateNumber(prefix string, at time.Time) string {
	return fmt.Sprintf("%s-%d", prefix, at.UnixNano())
}
