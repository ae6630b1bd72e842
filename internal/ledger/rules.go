package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PlanLine is one side of a planned journal posting.
type PlanLine struct {
	AccountCode string
	AccountID   int64
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// PostingPlan is the resolved output for one business event: a balanced set
// of journal lines plus optional subledger open item proposals.
type PostingPlan struct {
	Description string
	Lines       []PlanLine
	AR          *AROpenItem
	AP          *APOpenItem
}

// ResolvePlan maps a business event into a posting plan. It is a pure
// function over the event and the chart index. When a required field is
// missing or a required account is absent it reports ErrUnresolvedPosting;
// the caller decides how to persist the failed attempt.
//
// Debit and credit totals are equal by construction: every rule posts the
// single event amount to exactly one debit and one credit line.
func ResolvePlan(evt Event, accounts map[string]Account) (PostingPlan, error) {
	switch e := evt.(type) {
	case OrderConfirmed:
		if e.OrderID == 0 || e.CustomerID == 0 || e.OrderNo == "" || !e.Amount.IsPositive() {
			return PostingPlan{}, fmt.Errorf("%w: incomplete %s payload", ErrUnresolvedPosting, e.Type())
		}
		ar, revenue, err := pickAccounts(accounts, AccountReceivable, AccountRevenue)
		if err != nil {
			return PostingPlan{}, err
		}
		return PostingPlan{
			Description: fmt.Sprintf("Order %s confirmed", e.OrderNo),
			Lines: []PlanLine{
				{AccountCode: ar.Code, AccountID: ar.ID, Debit: e.Amount},
				{AccountCode: revenue.Code, AccountID: revenue.ID, Credit: e.Amount},
			},
			AR: &AROpenItem{
				OrderID:        e.OrderID,
				CustomerID:     e.CustomerID,
				DocumentNo:     e.OrderNo,
				OriginalAmount: e.Amount,
				BalanceAmount:  e.Amount,
				DueDate:        e.DueDate,
				Status:         OpenItemStatusOpen,
			},
		}, nil

	case PaymentConfirmed:
		if e.OrderID == 0 || e.PaymentNo == "" || !e.Amount.IsPositive() {
			return PostingPlan{}, fmt.Errorf("%w: incomplete %s payload", ErrUnresolvedPosting, e.Type())
		}
		cash, ar, err := pickAccounts(accounts, AccountCash, AccountReceivable)
		if err != nil {
			return PostingPlan{}, err
		}
		return PostingPlan{
			Description: fmt.Sprintf("Payment %s received", e.PaymentNo),
			Lines: []PlanLine{
				{AccountCode: cash.Code, AccountID: cash.ID, Debit: e.Amount},
				{AccountCode: ar.Code, AccountID: ar.ID, Credit: e.Amount},
			},
		}, nil

	case POOrdered:
		if e.POID == 0 || e.SupplierID == 0 || e.PONo == "" || !e.Amount.IsPositive() {
			return PostingPlan{}, fmt.Errorf("%w: incomplete %s payload", ErrUnresolvedPosting, e.Type())
		}
		expense, ap, err := pickAccounts(accounts, AccountMaterialExp, AccountPayable)
		if err != nil {
			return PostingPlan{}, err
		}
		return PostingPlan{
			Description: fmt.Sprintf("PO %s ordered", e.PONo),
			Lines: []PlanLine{
				{AccountCode: expense.Code, AccountID: expense.ID, Debit: e.Amount},
				{AccountCode: ap.Code, AccountID: ap.ID, Credit: e.Amount},
			},
			AP: &APOpenItem{
				PurchaseOrderID: e.POID,
				SupplierID:      e.SupplierID,
				DocumentNo:      e.PONo,
				OriginalAmount:  e.Amount,
				BalanceAmount:   e.Amount,
				DueDate:         e.DueDate,
				Status:          OpenItemStatusOpen,
			},
		}, nil

	case StockOut:
		if e.MovementID == 0 || e.MovementNo == "" || !e.Amount.IsPositive() {
			return PostingPlan{}, fmt.Errorf("%w: incomplete %s payload", ErrUnresolvedPosting, e.Type())
		}
		cogs, inv, err := pickAccounts(accounts, AccountCOGS, AccountInventory)
		if err != nil {
			return PostingPlan{}, err
		}
		return PostingPlan{
			Description: fmt.Sprintf("Stock out %s", e.MovementNo),
			Lines: []PlanLine{
				{AccountCode: cogs.Code, AccountID: cogs.ID, Debit: e.Amount},
				{AccountCode: inv.Code, AccountID: inv.ID, Credit: e.Amount},
			},
		}, nil
	}
	return PostingPlan{}, fmt.Errorf("%w: unsupported event type %s", ErrUnresolvedPosting, evt.Type())
}

func pickAccounts(accounts map[string]Account, first, second string) (Account, Account, error) {
	a, ok := accounts[first]
	if !ok {
		return Account{}, Account{}, fmt.Errorf("%w: account %s missing", ErrUnresolvedPosting, first)
	}
	b, ok := accounts[second]
	if !ok {
		return Account{}, Account{}, fmt.Errorf("%w: account %s missing", ErrUnresolvedPosting, second)
	}
	return a, b, nil
}
