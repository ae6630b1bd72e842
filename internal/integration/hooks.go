// Package integration wires domain events into the accounting event poster.
// Each hook method satisfies the emitting package's IntegrationHandler
// interface so the domains never import the ledger directly.
package integration

import (
	"context"
	"log/slog"

	"github.com/moldworks-erp/moldworks-erp/internal/inventory"
	"github.com/moldworks-erp/moldworks-erp/internal/ledger"
	"github.com/moldworks-erp/moldworks-erp/internal/procurement"
	"github.com/moldworks-erp/moldworks-erp/internal/sales"
)

// PosterPort is the slice of the ledger poster the hooks need.
type PosterPort interface {
	PostEvent(ctx context.Context, evt ledger.Event) (ledger.JournalEntry, error)
}

// Hooks translates sales, procurement, and inventory events into journal
// postings.
type Hooks struct {
	poster PosterPort
	logger *slog.Logger
}

// NewHooks builds the event bridge.
func NewHooks(poster PosterPort, logger *slog.Logger) *Hooks {
	return &Hooks{poster: poster, logger: logger}
}

var (
	_ sales.IntegrationHandler       = (*Hooks)(nil)
	_ procurement.IntegrationHandler = (*Hooks)(nil)
	_ inventory.IntegrationHandler   = (*Hooks)(nil)
)

// HandleOrderConfirmed posts revenue recognition and opens the receivable.
func (h *Hooks) HandleOrderConfirmed(ctx context.Context, evt sales.OrderConfirmedEvent) error {
	entry, err := h.poster.PostEvent(ctx, ledger.OrderConfirmed{
		OrderID:    evt.OrderID,
		OrderNo:    evt.OrderNo,
		CustomerID: evt.CustomerID,
		Amount:     evt.Amount,
		DueDate:    evt.DueDate,
	})
	if err != nil {
		return err
	}
	h.logPosted("order confirmed", entry)
	return nil
}

// HandlePaymentConfirmed posts the cash receipt and settles the receivable.
func (h *Hooks) HandlePaymentConfirmed(ctx context.Context, evt sales.PaymentConfirmedEvent) error {
	entry, err := h.poster.PostEvent(ctx, ledger.PaymentConfirmed{
		OrderID:   evt.OrderID,
		PaymentNo: evt.PaymentNo,
		Amount:    evt.Amount,
		PaidAt:    evt.PaidAt,
	})
	if err != nil {
		return err
	}
	h.logPosted("payment confirmed", entry)
	return nil
}

// HandlePOOrdered posts the material expense and opens the payable.
func (h *Hooks) HandlePOOrdered(ctx context.Context, evt procurement.POOrderedEvent) error {
	entry, err := h.poster.PostEvent(ctx, ledger.POOrdered{
		POID:       evt.POID,
		PONo:       evt.PONo,
		SupplierID: evt.SupplierID,
		Amount:     evt.Amount,
		DueDate:    evt.DueDate,
	})
	if err != nil {
		return err
	}
	h.logPosted("purchase order placed", entry)
	return nil
}

// HandleStockIssued posts cost of goods sold against inventory.
func (h *Hooks) HandleStockIssued(ctx context.Context, evt inventory.StockIssuedEvent) error {
	entry, err := h.poster.PostEvent(ctx, ledger.StockOut{
		MovementID: evt.MovementID,
		MovementNo: evt.MovementNo,
		ProjectID:  evt.ProjectID,
		Amount:     evt.Amount,
	})
	if err != nil {
		return err
	}
	h.logPosted("stock issued", entry)
	return nil
}

func (h *Hooks) logPosted(what string, entry ledger.JournalEntry) {
	if h.logger == nil {
		return
	}
	h.logger.Info("journal posted",
		slog.String("event", what),
		slog.Int64("journal_no", entry.JournalNo),
	)
}
