package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for the ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListAccounts returns the full chart of accounts.
func (r *Repository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, type, created_at FROM gl_accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// CreateEvent appends one accounting event audit row.
func (r *Repository) CreateEvent(ctx context.Context, evt AccountingEvent) (AccountingEvent, error) {
	query := `
		INSERT INTO accounting_events (event_type, source_id, source_no, status, error_reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	err := r.pool.QueryRow(ctx, query,
		evt.EventType, evt.SourceID, evt.SourceNo, evt.Status, evt.ErrorReason, evt.OccurredAt,
	).Scan(&evt.ID)
	if err != nil {
		return AccountingEvent{}, err
	}
	return evt, nil
}

// MarkEventError flips an event to ERROR while keeping the audit row.
func (r *Repository) MarkEventError(ctx context.Context, eventID int64, reason string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE accounting_events SET status = $2, error_reason = $3 WHERE id = $1`,
		eventID, EventStatusError, reason)
	return err
}

// LinkEventJournal attaches the created journal entry to its event.
func (r *Repository) LinkEventJournal(ctx context.Context, eventID, journalID int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE accounting_events SET journal_entry_id = $2 WHERE id = $1`,
		eventID, journalID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ledger: accounting event %d not found", eventID)
	}
	return nil
}

// GetEventBySource returns the latest event for an origin document.
func (r *Repository) GetEventBySource(ctx context.Context, eventType EventType, sourceID int64) (AccountingEvent, error) {
	query := `
		SELECT id, event_type, source_id, source_no, status, journal_entry_id, error_reason, occurred_at
		FROM accounting_events
		WHERE event_type = $1 AND source_id = $2
		ORDER BY id DESC LIMIT 1`
	var evt AccountingEvent
	err := r.pool.QueryRow(ctx, query, eventType, sourceID).Scan(
		&evt.ID, &evt.EventType, &evt.SourceID, &evt.SourceNo, &evt.Status,
		&evt.JournalEntryID, &evt.ErrorReason, &evt.OccurredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountingEvent{}, ErrEventNotFound
		}
		return AccountingEvent{}, err
	}
	return evt, nil
}

// NextJournalNo draws the next sequential document number.
func (r *Repository) NextJournalNo(ctx context.Context) (int64, error) {
	var no int64
	if err := r.pool.QueryRow(ctx, `SELECT nextval('journal_no_seq')`).Scan(&no); err != nil {
		return 0, err
	}
	return no, nil
}

// CreateJournalEntry inserts the entry header and its lines atomically.
func (r *Repository) CreateJournalEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return JournalEntry{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO journal_entries (journal_no, posting_date, source_type, source_id, source_no, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id, created_at`
	err = tx.QueryRow(ctx, query,
		entry.JournalNo, entry.PostingDate, entry.SourceType, entry.SourceID,
		entry.SourceNo, entry.Description, entry.Status,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return JournalEntry{}, err
	}

	for i := range entry.Lines {
		line := &entry.Lines[i]
		line.JournalID = entry.ID
		err = tx.QueryRow(ctx,
			`INSERT INTO journal_lines (journal_id, account_id, dr_amount, cr_amount) VALUES ($1, $2, $3, $4) RETURNING id`,
			line.JournalID, line.AccountID, line.Debit, line.Credit,
		).Scan(&line.ID)
		if err != nil {
			return JournalEntry{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// GetJournalBySource finds the entry posted for an origin document.
func (r *Repository) GetJournalBySource(ctx context.Context, sourceType EventType, sourceID int64) (JournalEntry, error) {
	query := `
		SELECT id, journal_no, posting_date, source_type, source_id, source_no, description, status, created_at
		FROM journal_entries
		WHERE source_type = $1 AND source_id = $2
		ORDER BY id DESC LIMIT 1`
	var entry JournalEntry
	err := r.pool.QueryRow(ctx, query, sourceType, sourceID).Scan(
		&entry.ID, &entry.JournalNo, &entry.PostingDate, &entry.SourceType,
		&entry.SourceID, &entry.SourceNo, &entry.Description, &entry.Status, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrJournalNotFound
		}
		return JournalEntry{}, err
	}
	entry.Lines, err = r.listLines(ctx, entry.ID)
	return entry, err
}

func (r *Repository) listLines(ctx context.Context, journalID int64) ([]JournalLine, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, journal_id, account_id, dr_amount, cr_amount FROM journal_lines WHERE journal_id = $1 ORDER BY id`,
		journalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []JournalLine
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.JournalID, &line.AccountID, &line.Debit, &line.Credit); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// CreateAROpenItem opens a receivable for an order.
func (r *Repository) CreateAROpenItem(ctx context.Context, item AROpenItem) (AROpenItem, error) {
	query := `
		INSERT INTO ar_open_items (order_id, customer_id, document_no, original_amount, balance_amount, due_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		item.OrderID, item.CustomerID, item.DocumentNo, item.OriginalAmount,
		item.BalanceAmount, item.DueDate, item.Status,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return AROpenItem{}, err
	}
	return item, nil
}

// GetAROpenItemByOrder loads the receivable tracked for an order.
func (r *Repository) GetAROpenItemByOrder(ctx context.Context, orderID int64) (AROpenItem, error) {
	query := `
		SELECT id, order_id, customer_id, document_no, original_amount, balance_amount, due_date, status, created_at, updated_at
		FROM ar_open_items WHERE order_id = $1`
	var item AROpenItem
	err := r.pool.QueryRow(ctx, query, orderID).Scan(
		&item.ID, &item.OrderID, &item.CustomerID, &item.DocumentNo, &item.OriginalAmount,
		&item.BalanceAmount, &item.DueDate, &item.Status, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AROpenItem{}, ErrOpenItemNotFound
		}
		return AROpenItem{}, err
	}
	return item, nil
}

// ListAROpenItemsByCustomer lists receivables for one customer.
func (r *Repository) ListAROpenItemsByCustomer(ctx context.Context, customerID int64) ([]AROpenItem, error) {
	query := `
		SELECT id, order_id, customer_id, document_no, original_amount, balance_amount, due_date, status, created_at, updated_at
		FROM ar_open_items WHERE customer_id = $1 ORDER BY id`
	rows, err := r.pool.Query(ctx, query, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []AROpenItem
	for rows.Next() {
		var item AROpenItem
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.CustomerID, &item.DocumentNo, &item.OriginalAmount,
			&item.BalanceAmount, &item.DueDate, &item.Status, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateAROpenItem stores the settled balance and status.
func (r *Repository) UpdateAROpenItem(ctx context.Context, item AROpenItem) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE ar_open_items SET balance_amount = $2, status = $3, updated_at = NOW() WHERE id = $1`,
		item.ID, item.BalanceAmount, item.Status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOpenItemNotFound
	}
	return nil
}

// CreateAPOpenItem opens a payable for a purchase order.
func (r *Repository) CreateAPOpenItem(ctx context.Context, item APOpenItem) (APOpenItem, error) {
	query := `
		INSERT INTO ap_open_items (purchase_order_id, supplier_id, document_no, original_amount, balance_amount, due_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		item.PurchaseOrderID, item.SupplierID, item.DocumentNo, item.OriginalAmount,
		item.BalanceAmount, item.DueDate, item.Status,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return APOpenItem{}, err
	}
	return item, nil
}

// GetAPOpenItemByPO loads the payable tracked for a purchase order.
func (r *Repository) GetAPOpenItemByPO(ctx context.Context, poID int64) (APOpenItem, error) {
	query := `
		SELECT id, purchase_order_id, supplier_id, document_no, original_amount, balance_amount, due_date, status, created_at, updated_at
		FROM ap_open_items WHERE purchase_order_id = $1`
	var item APOpenItem
	err := r.pool.QueryRow(ctx, query, poID).Scan(
		&item.ID, &item.PurchaseOrderID, &item.SupplierID, &item.DocumentNo, &item.OriginalAmount,
		&item.BalanceAmount, &item.DueDate, &item.Status, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return APOpenItem{}, ErrOpenItemNotFound
		}
		return APOpenItem{}, err
	}
	return item, nil
}

// ListUnbalancedJournals is used by the integrity job; a healthy ledger
// returns no rows.
func (r *Repository) ListUnbalancedJournals(ctx context.Context) ([]int64, error) {
	query := `
		SELECT journal_id FROM journal_lines
		GROUP BY journal_id
		HAVING SUM(dr_amount) <> SUM(cr_amount)`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
