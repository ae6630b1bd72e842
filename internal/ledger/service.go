package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/moldworks-erp/moldworks-erp/internal/shared"
)

// RepositoryPort abstracts persistence used by the poster.
type RepositoryPort interface {
	CreateEvent(ctx context.Context, evt AccountingEvent) (AccountingEvent, error)
	MarkEventError(ctx context.Context, eventID int64, reason string) error
	LinkEventJournal(ctx context.Context, eventID, journalID int64) error
	NextJournalNo(ctx context.Context) (int64, error)
	CreateJournalEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	CreateAROpenItem(ctx context.Context, item AROpenItem) (AROpenItem, error)
	GetAROpenItemByOrder(ctx context.Context, orderID int64) (AROpenItem, error)
	UpdateAROpenItem(ctx context.Context, item AROpenItem) error
	CreateAPOpenItem(ctx context.Context, item APOpenItem) (APOpenItem, error)
}

// ChartPort loads the chart of accounts indexed by code.
type ChartPort interface {
	AccountsByCode(ctx context.Context) (map[string]Account, error)
}

// AuditPort records posting activity for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Poster turns business events into journal entries and keeps the AR/AP
// subledgers in sync. Steps run sequentially; every failure is returned as a
// typed error and the accounting event row survives as an audit trail even
// when posting is rejected.
type Poster struct {
	repo  RepositoryPort
	chart ChartPort
	audit AuditPort
	now   func() time.Time
}

// NewPoster constructs the accounting event poster.
func NewPoster(repo RepositoryPort, chart ChartPort, audit AuditPort) *Poster {
	return &Poster{repo: repo, chart: chart, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (p *Poster) WithNow(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// PostEvent records the event, resolves its posting plan, creates the journal
// entry, and applies subledger side effects.
func (p *Poster) PostEvent(ctx context.Context, evt Event) (JournalEntry, error) {
	sourceID, sourceNo := evt.Source()
	record, err := p.repo.CreateEvent(ctx, AccountingEvent{
		EventType:  evt.Type(),
		SourceID:   sourceID,
		SourceNo:   sourceNo,
		Status:     EventStatusPosted,
		OccurredAt: p.now(),
	})
	if err != nil {
		return JournalEntry{}, fmt.Errorf("ledger: record event: %w", err)
	}

	accounts, err := p.chart.AccountsByCode(ctx)
	if err != nil {
		p.failEvent(ctx, record.ID, err)
		return JournalEntry{}, fmt.Errorf("ledger: load accounts: %w", err)
	}

	plan, err := ResolvePlan(evt, accounts)
	if err != nil {
		p.failEvent(ctx, record.ID, err)
		return JournalEntry{}, err
	}

	journalNo, err := p.repo.NextJournalNo(ctx)
	if err != nil {
		p.failEvent(ctx, record.ID, err)
		return JournalEntry{}, fmt.Errorf("ledger: next journal no: %w", err)
	}

	entry := JournalEntry{
		JournalNo:   journalNo,
		PostingDate: p.now(),
		SourceType:  evt.Type(),
		SourceID:    sourceID,
		SourceNo:    sourceNo,
		Description: plan.Description,
		Status:      JournalStatusPosted,
		Lines:       toJournalLines(plan.Lines),
	}
	created, err := p.repo.CreateJournalEntry(ctx, entry)
	if err != nil {
		p.failEvent(ctx, record.ID, err)
		return JournalEntry{}, fmt.Errorf("ledger: create journal entry: %w", err)
	}

	if err := p.repo.LinkEventJournal(ctx, record.ID, created.ID); err != nil {
		p.failEvent(ctx, record.ID, err)
		return JournalEntry{}, fmt.Errorf("ledger: link event to journal: %w", err)
	}

	if err := p.applySideEffects(ctx, evt, plan); err != nil {
		return JournalEntry{}, err
	}

	if p.audit != nil {
		_ = p.audit.Record(ctx, shared.AuditLog{
			Module: "ledger",
			Action: "journal.post",
			Ref:    fmt.Sprintf("%d", created.ID),
			Meta: map[string]any{
				"journal_no": created.JournalNo,
				"event_type": string(evt.Type()),
				"source_no":  sourceNo,
			},
			At: p.now(),
		})
	}
	return created, nil
}

func (p *Poster) applySideEffects(ctx context.Context, evt Event, plan PostingPlan) error {
	if plan.AR != nil {
		if _, err := p.repo.CreateAROpenItem(ctx, *plan.AR); err != nil {
			return fmt.Errorf("ledger: create AR open item: %w", err)
		}
	}
	if payment, ok := evt.(PaymentConfirmed); ok {
		if err := p.settleAR(ctx, payment); err != nil {
			return err
		}
	}
	if plan.AP != nil {
		if _, err := p.repo.CreateAPOpenItem(ctx, *plan.AP); err != nil {
			return fmt.Errorf("ledger: create AP open item: %w", err)
		}
	}
	return nil
}

// settleAR reduces the open receivable for the referenced order, flooring
// the balance at zero.
func (p *Poster) settleAR(ctx context.Context, payment PaymentConfirmed) error {
	item, err := p.repo.GetAROpenItemByOrder(ctx, payment.OrderID)
	if err != nil {
		if errors.Is(err, ErrOpenItemNotFound) {
			return fmt.Errorf("ledger: settle AR for order %d: %w", payment.OrderID, err)
		}
		return fmt.Errorf("ledger: load AR open item: %w", err)
	}
	balance := item.BalanceAmount.Sub(payment.Amount)
	if balance.IsNegative() {
		balance = decimal.Zero
	}
	item.BalanceAmount = balance
	item.Status = statusForBalance(balance)
	item.UpdatedAt = p.now()
	if err := p.repo.UpdateAROpenItem(ctx, item); err != nil {
		return fmt.Errorf("ledger: update AR open item: %w", err)
	}
	return nil
}

func (p *Poster) failEvent(ctx context.Context, eventID int64, cause error) {
	// Best effort: the ERROR status preserves the rejected attempt for audit.
	_ = p.repo.MarkEventError(ctx, eventID, cause.Error())
}

func toJournalLines(lines []PlanLine) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, JournalLine{
			AccountID: line.AccountID,
			Debit:     line.Debit,
			Credit:    line.Credit,
		})
	}
	return out
}
