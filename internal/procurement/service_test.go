package procurement

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/moldworks-erp/moldworks-erp/internal/inventory"
)

type memoryRepo struct {
	pos    map[int64]*PurchaseOrder
	prs    map[int64]*PurchaseRequest
	prices []MaterialPrice
	nextID int64

	failCompleteRequests bool
	failCreatePOAfter    int
	createdPOs           int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		pos: make(map[int64]*PurchaseOrder),
		prs: make(map[int64]*PurchaseRequest),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, ok := r.pos[id]
	if !ok {
		return PurchaseOrder{}, ErrPONotFound
	}
	out := *po
	out.Items = append([]POItem(nil), po.Items...)
	return out, nil
}

func (r *memoryRepo) CreatePO(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	if r.failCreatePOAfter > 0 && r.createdPOs >= r.failCreatePOAfter {
		return PurchaseOrder{}, errors.New("create po failed")
	}
	r.nextID++
	po.ID = r.nextID
	for i := range po.Items {
		r.nextID++
		po.Items[i].ID = r.nextID
		po.Items[i].POID = po.ID
	}
	stored := po
	r.pos[po.ID] = &stored
	r.createdPOs++
	return po, nil
}

func (r *memoryRepo) DeletePO(ctx context.Context, id int64) error {
	if _, ok := r.pos[id]; !ok {
		return ErrPONotFound
	}
	delete(r.pos, id)
	return nil
}

func (r *memoryRepo) MarkPOOrdered(ctx context.Context, id int64, at time.Time) error {
	po, ok := r.pos[id]
	if !ok || po.Status != POStatusDraft {
		return ErrInvalidState
	}
	po.Status = POStatusOrdered
	po.OrderedAt = &at
	return nil
}

func (r *memoryRepo) GetPR(ctx context.Context, id int64) (PurchaseRequest, error) {
	pr, ok := r.prs[id]
	if !ok {
		return PurchaseRequest{}, ErrPRNotFound
	}
	return *pr, nil
}

func (r *memoryRepo) ListPRsByIDs(ctx context.Context, ids []int64) ([]PurchaseRequest, error) {
	var out []PurchaseRequest
	for _, id := range ids {
		if pr, ok := r.prs[id]; ok {
			out = append(out, *pr)
		}
	}
	return out, nil
}

func (r *memoryRepo) CreatePR(ctx context.Context, pr PurchaseRequest) (PurchaseRequest, error) {
	r.nextID++
	pr.ID = r.nextID
	stored := pr
	r.prs[pr.ID] = &stored
	return pr, nil
}

func (r *memoryRepo) UpdatePRStatus(ctx context.Context, id int64, status PRStatus) error {
	pr, ok := r.prs[id]
	if !ok {
		return ErrPRNotFound
	}
	pr.Status = status
	return nil
}

func (r *memoryRepo) CompleteRequests(ctx context.Context, prIDs []int64, poID int64) error {
	if r.failCompleteRequests {
		return errors.New("complete requests failed")
	}
	for _, id := range prIDs {
		pr, ok := r.prs[id]
		if !ok || pr.Status != PRStatusInProgress {
			return ErrInvalidState
		}
		pr.Status = PRStatusCompleted
		pr.POID = poID
	}
	return nil
}

func (r *memoryRepo) LatestPrice(ctx context.Context, materialID, supplierID int64) (MaterialPrice, error) {
	for i := len(r.prices) - 1; i >= 0; i-- {
		p := r.prices[i]
		if p.MaterialID == materialID && p.SupplierID == supplierID {
			return p, nil
		}
	}
	return MaterialPrice{}, ErrPriceNotFound
}

func (r *memoryRepo) CreateMaterialPrice(ctx context.Context, price MaterialPrice) (MaterialPrice, error) {
	r.nextID++
	price.ID = r.nextID
	r.prices = append(r.prices, price)
	return price, nil
}

func (r *memoryRepo) ListPricesByMaterial(ctx context.Context, materialID int64) ([]MaterialPrice, error) {
	var out []MaterialPrice
	for i := len(r.prices) - 1; i >= 0; i-- {
		if r.prices[i].MaterialID == materialID {
			out = append(out, r.prices[i])
		}
	}
	return out, nil
}

func (r *memoryRepo) UpdateItemReceived(ctx context.Context, itemID int64, received float64) error {
	for _, po := range r.pos {
		for i := range po.Items {
			if po.Items[i].ID == itemID {
				po.Items[i].ReceivedQuantity = received
				return nil
			}
		}
	}
	return ErrPONotFound
}

func (r *memoryRepo) UpdatePOStatus(ctx context.Context, poID int64, status POStatus) error {
	po, ok := r.pos[poID]
	if !ok {
		return ErrPONotFound
	}
	po.Status = status
	return nil
}

type fakeInventory struct {
	receipts []inventory.ReceiveInput
	fail     bool
}

func (f *fakeInventory) Receive(ctx context.Context, input inventory.ReceiveInput) (inventory.Stock, error) {
	if f.fail {
		return inventory.Stock{}, errors.New("inventory down")
	}
	f.receipts = append(f.receipts, input)
	return inventory.Stock{MaterialID: input.MaterialID, Quantity: input.Quantity}, nil
}

type capturePOHandler struct {
	events []POOrderedEvent
}

func (c *capturePOHandler) HandlePOOrdered(ctx context.Context, evt POOrderedEvent) error {
	c.events = append(c.events, evt)
	return nil
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedOrderedPO(t *testing.T, repo *memoryRepo) PurchaseOrder {
	t.Helper()
	po, err := repo.CreatePO(context.Background(), PurchaseOrder{
		PONo:       "PO-1",
		SupplierID: 5,
		ProjectID:  9,
		Status:     POStatusOrdered,
		Items: []POItem{
			{MaterialID: 100, Quantity: 10, UnitPrice: dec(1000)},
			{MaterialID: 200, Quantity: 4, UnitPrice: dec(5000)},
		},
	})
	require.NoError(t, err)
	return po
}

func TestReceivePOPartialThenFull(t *testing.T) {
	repo := newMemoryRepo()
	inv := &fakeInventory{}
	svc := NewService(repo, inv, nil, nil, discardLogger())
	ctx := context.Background()
	po := seedOrderedPO(t, repo)

	got, err := svc.ReceivePO(ctx, po.ID, []Receipt{{ItemID: po.Items[0].ID, Quantity: 6}})
	require.NoError(t, err)
	require.Equal(t, POStatusPartialReceived, got.Status)

	// The receipt landed in stock at the PO line price.
	require.Len(t, inv.receipts, 1)
	require.Equal(t, int64(100), inv.receipts[0].MaterialID)
	require.InDelta(t, 6, inv.receipts[0].Quantity, 0.0001)
	require.True(t, inv.receipts[0].UnitPrice.Equal(dec(1000)))
	require.Equal(t, po.ID, inv.receipts[0].POID)

	got, err = svc.ReceivePO(ctx, po.ID, []Receipt{
		{ItemID: po.Items[0].ID, Quantity: 4},
		{ItemID: po.Items[1].ID, Quantity: 4},
	})
	require.NoError(t, err)
	require.Equal(t, POStatusReceived, got.Status)
	require.Len(t, inv.receipts, 3)
}

func TestReceivePORejectsOverReceipt(t *testing.T) {
	repo := newMemoryRepo()
	inv := &fakeInventory{}
	svc := NewService(repo, inv, nil, nil, discardLogger())
	ctx := context.Background()
	po := seedOrderedPO(t, repo)

	_, err := svc.ReceivePO(ctx, po.ID, []Receipt{{ItemID: po.Items[0].ID, Quantity: 11}})
	require.ErrorIs(t, err, ErrOverReceipt)

	// Nothing was persisted: quantities and status are untouched.
	stored, err := repo.GetPO(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, POStatusOrdered, stored.Status)
	require.InDelta(t, 0, stored.Items[0].ReceivedQuantity, 0.0001)
	require.Empty(t, inv.receipts)

	// Cumulative receipts over the ordered quantity are rejected too.
	_, err = svc.ReceivePO(ctx, po.ID, []Receipt{{ItemID: po.Items[0].ID, Quantity: 6}})
	require.NoError(t, err)
	_, err = svc.ReceivePO(ctx, po.ID, []Receipt{{ItemID: po.Items[0].ID, Quantity: 5}})
	require.ErrorIs(t, err, ErrOverReceipt)
}

func TestReceivePOStateGuards(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, &fakeInventory{}, nil, nil, discardLogger())
	ctx := context.Background()

	draft, err := repo.CreatePO(ctx, PurchaseOrder{PONo: "PO-D", SupplierID: 1, Status: POStatusDraft,
		Items: []POItem{{MaterialID: 1, Quantity: 1, UnitPrice: dec(100)}}})
	require.NoError(t, err)

	_, err = svc.ReceivePO(ctx, draft.ID, []Receipt{{ItemID: draft.Items[0].ID, Quantity: 1}})
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.ReceivePO(ctx, 404, []Receipt{{ItemID: 1, Quantity: 1}})
	require.ErrorIs(t, err, ErrPONotFound)

	ordered := seedOrderedPO(t, repo)
	_, err = svc.ReceivePO(ctx, ordered.ID, []Receipt{{ItemID: 9999, Quantity: 1}})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.ReceivePO(ctx, ordered.ID, nil)
	require.ErrorIs(t, err, ErrValidation)
}

func TestReceiveStockFailureIsLoggedForReconciliation(t *testing.T) {
	repo := newMemoryRepo()
	inv := &fakeInventory{fail: true}
	var buf bytes.Buffer
	svc := NewService(repo, inv, nil, nil, slog.New(slog.NewTextHandler(&buf, nil)))
	ctx := context.Background()
	po := seedOrderedPO(t, repo)

	_, err := svc.ReceivePO(ctx, po.ID, []Receipt{{ItemID: po.Items[0].ID, Quantity: 6}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "inventory down")

	// The receipt stays committed; the missing stock side is the operator's.
	stored, getErr := repo.GetPO(ctx, po.ID)
	require.NoError(t, getErr)
	require.InDelta(t, 6, stored.Items[0].ReceivedQuantity, 0.0001)
	require.Equal(t, POStatusPartialReceived, stored.Status)

	logged := buf.String()
	require.Contains(t, logged, "manual reconciliation required")
	require.Contains(t, logged, po.PONo)
	require.Contains(t, logged, "inventory down")
}

func TestReceivePORecordsPriceHistory(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, &fakeInventory{}, nil, nil, discardLogger())
	ctx := context.Background()
	po := seedOrderedPO(t, repo)

	// Two receipt lines for the same material record one price row.
	_, err := svc.ReceivePO(ctx, po.ID, []Receipt{
		{ItemID: po.Items[0].ID, Quantity: 2},
		{ItemID: po.Items[0].ID, Quantity: 3},
	})
	require.NoError(t, err)
	require.Len(t, repo.prices, 1)

	prices, err := svc.PriceHistory(ctx, 100)
	require.NoError(t, err)
	require.Len(t, prices, 1)
	require.True(t, prices[0].UnitPrice.Equal(dec(1000)))
	require.True(t, prices[0].PrevPrice.IsZero())

	// Receiving again at the same price adds nothing.
	_, err = svc.ReceivePO(ctx, po.ID, []Receipt{{ItemID: po.Items[0].ID, Quantity: 1}})
	require.NoError(t, err)
	prices, err = svc.PriceHistory(ctx, 100)
	require.NoError(t, err)
	require.Len(t, prices, 1)
}

func TestMarkOrderedEmitsAccountingEvent(t *testing.T) {
	repo := newMemoryRepo()
	hooks := &capturePOHandler{}
	svc := NewService(repo, &fakeInventory{}, hooks, nil, discardLogger())
	ctx := context.Background()

	po, err := repo.CreatePO(ctx, PurchaseOrder{PONo: "PO-9", SupplierID: 3, Status: POStatusDraft,
		Items: []POItem{{MaterialID: 1, Quantity: 2, UnitPrice: dec(600000)}}})
	require.NoError(t, err)

	got, err := svc.MarkOrdered(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, POStatusOrdered, got.Status)
	require.NotNil(t, got.OrderedAt)

	require.Len(t, hooks.events, 1)
	require.Equal(t, po.ID, hooks.events[0].POID)
	require.True(t, hooks.events[0].Amount.Equal(dec(1200000)), hooks.events[0].Amount.String())

	_, err = svc.MarkOrdered(ctx, po.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func seedInProgressPR(t *testing.T, repo *memoryRepo, projectID int64, category MaterialCategory) PurchaseRequest {
	t.Helper()
	pr, err := repo.CreatePR(context.Background(), PurchaseRequest{
		PRNo:        "PR-x",
		ProjectID:   projectID,
		MaterialID:  projectID*10 + 1,
		Category:    category,
		Quantity:    2,
		UnitPrice:   dec(3000),
		WidthMM:     500,
		LengthMM:    400,
		ThicknessMM: 50,
		Status:      PRStatusInProgress,
	})
	require.NoError(t, err)
	return pr
}

func TestConvertPRsGroupsByProject(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, &fakeInventory{}, nil, nil, discardLogger())
	ctx := context.Background()

	prA1 := seedInProgressPR(t, repo, 1, CategoryGeneral)
	prA2 := seedInProgressPR(t, repo, 1, CategoryGeneral)
	prB := seedInProgressPR(t, repo, 2, CategoryGeneral)

	pos, err := svc.ConvertPRsToPOs(ctx, ConvertInput{
		PRIDs:      []int64{prA1.ID, prA2.ID, prB.ID},
		SupplierID: 5,
		DueDate:    time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, pos, 2)
	require.Equal(t, int64(1), pos[0].ProjectID)
	require.Len(t, pos[0].Items, 2)
	require.Equal(t, int64(2), pos[1].ProjectID)
	require.Len(t, pos[1].Items, 1)

	for _, id := range []int64{prA1.ID, prA2.ID, prB.ID} {
		pr, err := repo.GetPR(ctx, id)
		require.NoError(t, err)
		require.Equal(t, PRStatusCompleted, pr.Status)
		require.NotZero(t, pr.POID)
	}
}

func TestConvertPricesSteelByDimensions(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, &fakeInventory{}, nil, nil, discardLogger())
	ctx := context.Background()

	pr := seedInProgressPR(t, repo, 1, CategorySteel)

	pos, err := svc.ConvertPRsToPOs(ctx, ConvertInput{
		PRIDs:           []int64{pr.ID},
		SupplierID:      5,
		DueDate:         time.Now(),
		SteelPricePerKG: dec(4000),
	})
	require.NoError(t, err)
	require.Len(t, pos, 1)

	// 500 x 400 x 50 mm at 7.85e-6 kg/mm3 = 78.5 kg; 78.5 kg x 4000 = 314000.
	require.True(t, pos[0].Items[0].UnitPrice.Equal(dec(314000)), pos[0].Items[0].UnitPrice.String())
}

func TestConvertCompensatesOnLinkFailure(t *testing.T) {
	repo := newMemoryRepo()
	repo.failCompleteRequests = true
	svc := NewService(repo, &fakeInventory{}, nil, nil, discardLogger())
	ctx := context.Background()

	pr := seedInProgressPR(t, repo, 1, CategoryGeneral)

	_, err := svc.ConvertPRsToPOs(ctx, ConvertInput{
		PRIDs:      []int64{pr.ID},
		SupplierID: 5,
		DueDate:    time.Now(),
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "complete requests failed")

	// The created PO was rolled back; the request is untouched.
	require.Empty(t, repo.pos)
	got, getErr := repo.GetPR(ctx, pr.ID)
	require.NoError(t, getErr)
	require.Equal(t, PRStatusInProgress, got.Status)
	require.Zero(t, got.POID)
}

func TestConvertCompensatesOnPartialCreateFailure(t *testing.T) {
	repo := newMemoryRepo()
	repo.failCreatePOAfter = 1
	svc := NewService(repo, &fakeInventory{}, nil, nil, discardLogger())
	ctx := context.Background()

	prA := seedInProgressPR(t, repo, 1, CategoryGeneral)
	prB := seedInProgressPR(t, repo, 2, CategoryGeneral)

	_, err := svc.ConvertPRsToPOs(ctx, ConvertInput{
		PRIDs:      []int64{prA.ID, prB.ID},
		SupplierID: 5,
		DueDate:    time.Now(),
	})
	require.Error(t, err)
	// The first project's PO was deleted during rollback.
	require.Empty(t, repo.pos)
}

func TestConvertRejectsIneligiblePRs(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, &fakeInventory{}, nil, nil, discardLogger())
	ctx := context.Background()

	pr, err := repo.CreatePR(ctx, PurchaseRequest{PRNo: "PR-1", ProjectID: 1, MaterialID: 1, Quantity: 1, Status: PRStatusPending})
	require.NoError(t, err)

	_, err = svc.ConvertPRsToPOs(ctx, ConvertInput{PRIDs: []int64{pr.ID}, SupplierID: 5, DueDate: time.Now()})
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.ConvertPRsToPOs(ctx, ConvertInput{PRIDs: []int64{404}, SupplierID: 5, DueDate: time.Now()})
	require.ErrorIs(t, err, ErrPRNotFound)
}

func TestPRLifecycle(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, &fakeInventory{}, nil, nil, discardLogger())
	ctx := context.Background()

	pr, err := svc.CreatePurchaseRequest(ctx, CreatePRInput{ProjectID: 1, MaterialID: 2, Quantity: 3, UnitPrice: dec(100)})
	require.NoError(t, err)
	require.Equal(t, PRStatusDraft, pr.Status)

	require.NoError(t, svc.SubmitPR(ctx, pr.ID))
	require.NoError(t, svc.ApprovePR(ctx, pr.ID))
	require.NoError(t, svc.StartPR(ctx, pr.ID))

	got, err := repo.GetPR(ctx, pr.ID)
	require.NoError(t, err)
	require.Equal(t, PRStatusInProgress, got.Status)

	// Out-of-order transitions are rejected.
	require.ErrorIs(t, svc.SubmitPR(ctx, pr.ID), ErrInvalidState)
	require.ErrorIs(t, svc.RejectPR(ctx, pr.ID), ErrInvalidState)
}

func TestCreatePOWithRequestsCompensates(t *testing.T) {
	repo := newMemoryRepo()
	repo.failCompleteRequests = true
	svc := NewService(repo, &fakeInventory{}, nil, nil, discardLogger())
	ctx := context.Background()

	pr := seedInProgressPR(t, repo, 1, CategoryGeneral)

	_, err := svc.CreatePOWithRequests(ctx, CreatePOInput{
		SupplierID: 5,
		DueDate:    time.Now(),
		Items:      []POItemInput{{MaterialID: 2, Quantity: 1, UnitPrice: dec(100)}},
		PRIDs:      []int64{pr.ID},
	})
	require.Error(t, err)
	require.Empty(t, repo.pos)
}

func TestSteelWeight(t *testing.T) {
	require.InDelta(t, 78.5, SteelWeightKG(500, 400, 50), 0.0001)
	require.Zero(t, SteelWeightKG(0, 400, 50))
	require.True(t, SteelUnitPrice(0, 0, 0, dec(4000)).IsZero())
}
