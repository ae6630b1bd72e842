package inventory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/moldworks-erp/moldworks-erp/internal/shared"
)

type memoryRepo struct {
	stocks    map[int64]Stock
	movements []Movement
	nextID    int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{stocks: make(map[int64]Stock)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetStock(ctx context.Context, materialID int64) (Stock, error) {
	if s, ok := r.stocks[materialID]; ok {
		return s, nil
	}
	return Stock{}, ErrStockNotFound
}

func (r *memoryRepo) ListMovements(ctx context.Context, materialID int64, limit int) ([]Movement, error) {
	var out []Movement
	for i := len(r.movements) - 1; i >= 0 && len(out) < limit; i-- {
		if r.movements[i].MaterialID == materialID {
			out = append(out, r.movements[i])
		}
	}
	return out, nil
}

func (t *memoryTx) GetStockForUpdate(ctx context.Context, materialID int64) (Stock, error) {
	return t.repo.GetStock(ctx, materialID)
}

func (t *memoryTx) UpsertStock(ctx context.Context, stock *Stock) error {
	if stock.ID == 0 {
		t.repo.nextID++
		stock.ID = t.repo.nextID
	}
	t.repo.stocks[stock.MaterialID] = *stock
	return nil
}

func (t *memoryTx) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	t.repo.nextID++
	movement.ID = t.repo.nextID
	t.repo.movements = append(t.repo.movements, movement)
	return movement.ID, nil
}

func (t *memoryTx) InsertMovements(ctx context.Context, movements []Movement) error {
	for _, m := range movements {
		if _, err := t.InsertMovement(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

type memoryIdem struct {
	keys map[string]bool
}

func newMemoryIdem() *memoryIdem {
	return &memoryIdem{keys: make(map[string]bool)}
}

func (m *memoryIdem) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdem) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

type captureHandler struct {
	events []StockIssuedEvent
}

func (c *captureHandler) HandleStockIssued(ctx context.Context, evt StockIssuedEvent) error {
	c.events = append(c.events, evt)
	return nil
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func TestReceiveWeightedAverage(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	stock, err := svc.Receive(ctx, ReceiveInput{MaterialID: 1, Quantity: 10, UnitPrice: dec(1000)})
	require.NoError(t, err)
	require.InDelta(t, 10, stock.Quantity, 0.0001)
	require.True(t, stock.AvgUnitPrice.Equal(dec(1000)), stock.AvgUnitPrice.String())

	stock, err = svc.Receive(ctx, ReceiveInput{MaterialID: 1, Quantity: 10, UnitPrice: dec(2000)})
	require.NoError(t, err)
	require.InDelta(t, 20, stock.Quantity, 0.0001)
	require.True(t, stock.AvgUnitPrice.Equal(dec(1500)), stock.AvgUnitPrice.String())

	// Uneven receipt rounds the average to whole currency units.
	stock, err = svc.Receive(ctx, ReceiveInput{MaterialID: 1, Quantity: 1, UnitPrice: dec(1000)})
	require.NoError(t, err)
	require.True(t, stock.AvgUnitPrice.Equal(dec(1476)), stock.AvgUnitPrice.String())
}

func TestReceiveRejectsBadInput(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{MaterialID: 1, Quantity: 0, UnitPrice: dec(100)})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Receive(ctx, ReceiveInput{MaterialID: 1, Quantity: -3, UnitPrice: dec(100)})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Receive(ctx, ReceiveInput{Quantity: 5, UnitPrice: dec(100)})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestIssueAtAverageCost(t *testing.T) {
	repo := newMemoryRepo()
	hooks := &captureHandler{}
	svc := NewService(repo, nil, nil, hooks)
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{MaterialID: 7, Quantity: 10, UnitPrice: dec(1000)})
	require.NoError(t, err)
	_, err = svc.Receive(ctx, ReceiveInput{MaterialID: 7, Quantity: 10, UnitPrice: dec(3000)})
	require.NoError(t, err)

	movement, err := svc.Issue(ctx, IssueInput{MaterialID: 7, Quantity: 5, ProjectID: 42})
	require.NoError(t, err)
	require.Equal(t, MovementOut, movement.Type)
	require.True(t, movement.UnitPrice.Equal(dec(2000)), movement.UnitPrice.String())

	stock, err := svc.GetStock(ctx, 7)
	require.NoError(t, err)
	require.InDelta(t, 15, stock.Quantity, 0.0001)
	// Issues never move the average.
	require.True(t, stock.AvgUnitPrice.Equal(dec(2000)))

	require.Len(t, hooks.events, 1)
	require.Equal(t, int64(42), hooks.events[0].ProjectID)
	require.True(t, hooks.events[0].Amount.Equal(dec(10000)), hooks.events[0].Amount.String())
}

func TestIssueInsufficientStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{MaterialID: 3, Quantity: 4, UnitPrice: dec(500)})
	require.NoError(t, err)

	_, err = svc.Issue(ctx, IssueInput{MaterialID: 3, Quantity: 5})
	require.ErrorIs(t, err, ErrInsufficientStock)

	var short *InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.InDelta(t, 4, short.Available, 0.0001)
	require.InDelta(t, 5, short.Requested, 0.0001)

	// Nothing was deducted.
	stock, err := svc.GetStock(ctx, 3)
	require.NoError(t, err)
	require.InDelta(t, 4, stock.Quantity, 0.0001)

	// Unknown material reads as zero on hand.
	_, err = svc.Issue(ctx, IssueInput{MaterialID: 99, Quantity: 1})
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestStocktakeAdjustments(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{MaterialID: 1, Quantity: 10, UnitPrice: dec(1000)})
	require.NoError(t, err)
	_, err = svc.Receive(ctx, ReceiveInput{MaterialID: 2, Quantity: 6, UnitPrice: dec(2000)})
	require.NoError(t, err)

	stocks, err := svc.AdjustBulk(ctx, []AdjustInput{
		{MaterialID: 1, CountedQuantity: 8},
		{MaterialID: 2, CountedQuantity: 6}, // matches, skipped
	})
	require.NoError(t, err)
	require.Len(t, stocks, 1)
	require.InDelta(t, 8, stocks[0].Quantity, 0.0001)

	movements, err := svc.ListMovements(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, MovementAdjust, movements[0].Type)
	require.InDelta(t, -2, movements[0].Quantity, 0.0001)
}

func TestIssueIdempotency(t *testing.T) {
	repo := newMemoryRepo()
	idem := newMemoryIdem()
	svc := NewService(repo, nil, idem, nil)
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{MaterialID: 1, Quantity: 10, UnitPrice: dec(1000)})
	require.NoError(t, err)

	_, err = svc.Issue(ctx, IssueInput{MaterialID: 1, Quantity: 2, RequestID: "issue-1"})
	require.NoError(t, err)

	_, err = svc.Issue(ctx, IssueInput{MaterialID: 1, Quantity: 2, RequestID: "issue-1"})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)

	stock, err := svc.GetStock(ctx, 1)
	require.NoError(t, err)
	require.InDelta(t, 8, stock.Quantity, 0.0001)
}

func TestFailedIssueReleasesKey(t *testing.T) {
	repo := newMemoryRepo()
	idem := newMemoryIdem()
	svc := NewService(repo, nil, idem, nil)
	ctx := context.Background()

	_, err := svc.Issue(ctx, IssueInput{MaterialID: 1, Quantity: 2, RequestID: "retry-me"})
	require.ErrorIs(t, err, ErrInsufficientStock)

	_, err = svc.Receive(ctx, ReceiveInput{MaterialID: 1, Quantity: 5, UnitPrice: dec(100)})
	require.NoError(t, err)

	_, err = svc.Issue(ctx, IssueInput{MaterialID: 1, Quantity: 2, RequestID: "retry-me"})
	require.NoError(t, err)
}
