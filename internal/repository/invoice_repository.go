package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/AnchalDevBytes/challan-maker/internal/models"
)

// InvoiceRepository provides database access for stored invoices.
type InvoiceRepository struct {
	db *sqlx.DB
}

// NewInvoiceRepository creates a new instance of InvoiceRepository.
func NewInvoiceRepository(db *sqlx.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// InsertCapped inserts the invoice while holding the per-user history at
// maxPerUser rows, evicting the oldest invoice when the cap is reached. The
// count, eviction and insert share one transaction; the evicted invoice is
// returned so the caller can clean up its stored PDF.
func (r *InvoiceRepository) InsertCapped(ctx context.Context, invoice *models.Invoice, maxPerUser int) (*models.Invoice, error) {
	if invoice.ID == "" {
		invoice.ID = uuid.NewString()
	}
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert invoice: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var count int
	if err := tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM invoices WHERE user_id = $1`, invoice.UserID); err != nil {
		return nil, fmt.Errorf("count invoices: %w", err)
	}

	var evicted *models.Invoice
	if maxPerUser > 0 && count >= maxPerUser {
		var oldest models.Invoice
		const oldestQuery = `SELECT id, user_id, invoice_number, customer_name, total_amount, status, issue_date, due_date, currency, pdf_key, pdf_url, invoice_data, created_at FROM invoices WHERE user_id = $1 ORDER BY created_at ASC LIMIT 1`
		if err := tx.GetContext(ctx, &oldest, oldestQuery, invoice.UserID); err != nil && err != sql.ErrNoRows {
			return nil, fmt.Errorf("find oldest invoice: %w", err)
		} else if err == nil {
			if _, err := tx.ExecContext(ctx, `DELETE FROM invoices WHERE id = $1`, oldest.ID); err != nil {
				return nil, fmt.Errorf("evict oldest invoice: %w", err)
			}
			evicted = &oldest
		}
	}

	const insertQuery = `INSERT INTO invoices (id, user_id, invoice_number, customer_name, total_amount, status, issue_date, due_date, currency, pdf_key, pdf_url, invoice_data, created_at)
		VALUES (:id, :user_id, :invoice_number, :customer_name, :total_amount, :status, :issue_date, :due_date, :currency, :pdf_key, :pdf_url, :invoice_data, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertQuery, invoice); err != nil {
		return nil, fmt.Errorf("insert invoice: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert invoice: %w", err)
	}
	return evicted, nil
}

// ListByUser returns the user's most recent invoices, newest first.
func (r *InvoiceRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.Invoice, error) {
	if limit <= 0 {
		limit = 5
	}
	const query = `SELECT id, user_id, invoice_number, customer_name, total_amount, status, issue_date, due_date, currency, pdf_key, pdf_url, invoice_data, created_at FROM invoices WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	invoices := []models.Invoice{}
	if err := r.db.SelectContext(ctx, &invoices, query, userID, limit); err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return invoices, nil
}
