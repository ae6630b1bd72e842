package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// AccountType enumerates chart-of-accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Fixed chart codes the posting rules depend on.
const (
	AccountCash        = "101"
	AccountReceivable  = "110"
	AccountInventory   = "120"
	AccountPayable     = "210"
	AccountRevenue     = "401"
	AccountMaterialExp = "501"
	AccountCOGS        = "502"
)

// Account models a general-ledger account. Reference data, never mutated here.
type Account struct {
	ID        int64
	Code      string
	Name      string
	Type      AccountType
	CreatedAt time.Time
}

// JournalStatus enumerates journal entry states.
type JournalStatus string

// JournalStatusPosted is the only state an entry is ever written in; entries
// are append-only after posting.
const JournalStatusPosted JournalStatus = "POSTED"

// JournalEntry captures one balanced double-entry posting.
type JournalEntry struct {
	ID          int64
	JournalNo   int64
	PostingDate time.Time
	SourceType  EventType
	SourceID    int64
	SourceNo    string
	Description string
	Status      JournalStatus
	Lines       []JournalLine
	CreatedAt   time.Time
}

// JournalLine stores a debit or credit amount against one account.
type JournalLine struct {
	ID        int64
	JournalID int64
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// OpenItemStatus enumerates AR/AP open item settlement states.
type OpenItemStatus string

const (
	OpenItemStatusOpen    OpenItemStatus = "OPEN"
	OpenItemStatusPartial OpenItemStatus = "PARTIAL"
	OpenItemStatusClosed  OpenItemStatus = "CLOSED"
)

// AROpenItem tracks an outstanding receivable balance per sales order.
type AROpenItem struct {
	ID             int64
	OrderID        int64
	CustomerID     int64
	DocumentNo     string
	OriginalAmount decimal.Decimal
	BalanceAmount  decimal.Decimal
	DueDate        time.Time
	Status         OpenItemStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// APOpenItem tracks an outstanding payable balance per purchase order.
type APOpenItem struct {
	ID              int64
	PurchaseOrderID int64
	SupplierID      int64
	DocumentNo      string
	OriginalAmount  decimal.Decimal
	BalanceAmount   decimal.Decimal
	DueDate         time.Time
	Status          OpenItemStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EventStatus enumerates accounting event audit states.
type EventStatus string

const (
	EventStatusPosted EventStatus = "POSTED"
	EventStatusError  EventStatus = "ERROR"
)

// AccountingEvent is the append-only audit record of every posting attempt,
// including rejected ones.
type AccountingEvent struct {
	ID             int64
	EventType      EventType
	SourceID       int64
	SourceNo       string
	Status         EventStatus
	JournalEntryID *int64
	ErrorReason    string
	OccurredAt     time.Time
}

var (
	// ErrUnresolvedPosting indicates no complete posting rule matched the event.
	ErrUnresolvedPosting = errors.New("ledger: no posting rule resolved for event")
	// ErrAccountNotFound indicates a required chart account is missing.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrOpenItemNotFound indicates no open item exists for the referenced document.
	ErrOpenItemNotFound = errors.New("ledger: open item not found")
	// ErrJournalNotFound indicates a missing journal entry.
	ErrJournalNotFound = errors.New("ledger: journal entry not found")
	// ErrEventNotFound indicates no accounting event exists for the source.
	ErrEventNotFound = errors.New("ledger: accounting event not found")
)

// Balanced reports whether debits equal credits across the entry's lines.
func (e JournalEntry) Balanced() bool {
	debit := decimal.Zero
	credit := decimal.Zero
	for _, line := range e.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit.Equal(credit)
}

// statusForBalance derives the open item status from its remaining balance.
func statusForBalance(balance decimal.Decimal) OpenItemStatus {
	if balance.IsZero() {
		return OpenItemStatusClosed
	}
	return OpenItemStatusPartial
}
