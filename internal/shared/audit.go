package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog is one trail entry: which module acted, what it did, and the
// document it touched. Ref carries the domain reference (journal id, PO id,
// tag id) as text so the trail survives schema changes in the source tables.
type AuditLog struct {
	Module string
	Action string
	Ref    string
	Meta   map[string]any
	At     time.Time
}

// AuditLogger appends entries to the audit_logs table. Writes are best
// effort at the call sites; a lost audit row must never fail the operation
// it describes.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger builds the trail writer.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record appends one entry. A zero At is stamped at write time.
func (l *AuditLogger) Record(ctx context.Context, entry AuditLog) error {
	if l == nil {
		return errors.New("shared: audit logger not configured")
	}
	if entry.Module == "" || entry.Action == "" || entry.Ref == "" {
		return errors.New("shared: audit entry needs module, action and ref")
	}
	if entry.At.IsZero() {
		entry.At = time.Now()
	}
	meta, err := json.Marshal(entry.Meta)
	if err != nil {
		return fmt.Errorf("shared: marshal audit meta: %w", err)
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO audit_logs (module, action, ref, meta, occurred_at)
		VALUES ($1, $2, $3, $4, $5)`,
		entry.Module, entry.Action, entry.Ref, meta, entry.At)
	return err
}
