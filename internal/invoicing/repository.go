package invoicing

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-ims/meridian-ims/internal/shared"
)

// Repository persists invoices in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const invoiceColumns = `id, number, order_id, status, amount, issued_at, paid_at, created_at, updated_at`

// CreateInvoice inserts a draft invoice. One invoice per order, enforced by a
// unique index on order_id.
func (r *Repository) CreateInvoice(ctx context.Context, inv Invoice) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO invoices (id, number, order_id, status, amount, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$6)`,
		inv.ID, inv.Number, inv.OrderID, string(inv.Status), inv.Amount, inv.CreatedAt)
	if err != nil && shared.IsUniqueViolation(err) {
		return shared.ErrDuplicate
	}
	return err
}

// GetInvoice loads one invoice by id.
func (r *Repository) GetInvoice(ctx context.Context, id string) (Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	return scanInvoice(row)
}

// GetByOrder loads the invoice of one order.
func (r *Repository) GetByOrder(ctx context.Context, orderID string) (Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE order_id = $1`, orderID)
	return scanInvoice(row)
}

// SetStatus advances the lifecycle, stamping the matching timestamp. The
// expected status guards against concurrent transitions.
func (r *Repository) SetStatus(ctx context.Context, id string, from, to InvoiceStatus) error {
	var column string
	switch to {
	case InvoiceStatusIssued:
		column = "issued_at"
	case InvoiceStatusPaid:
		column = "paid_at"
	default:
		return shared.ErrValidation
	}
	tag, err := r.pool.Exec(ctx, `UPDATE invoices SET status = $2, `+column+` = NOW(), updated_at = NOW()
WHERE id = $1 AND status = $3`, id, string(to), string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrValidation
	}
	return nil
}

// ListInvoices returns invoices newest first, optionally filtered by status.
func (r *Repository) ListInvoices(ctx context.Context, status InvoiceStatus, limit, offset int) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE 1=1`
	args := []any{}
	n := 0
	if status != "" {
		n++
		query += ` AND status = $` + strconv.Itoa(n)
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`
	if limit <= 0 {
		limit = 50
	}
	n++
	query += ` LIMIT $` + strconv.Itoa(n)
	args = append(args, limit)
	if offset > 0 {
		n++
		query += ` OFFSET $` + strconv.Itoa(n)
		args = append(args, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var status string
	err := row.Scan(&inv.ID, &inv.Number, &inv.OrderID, &status, &inv.Amount,
		&inv.IssuedAt, &inv.PaidAt, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, shared.ErrNotFound
		}
		return Invoice{}, err
	}
	inv.Status = InvoiceStatus(status)
	return inv, nil
}
