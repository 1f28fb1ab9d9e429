package ledger

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-ims/meridian-ims/internal/shared"
)

// TxRepository exposes the transactional operations the ledger needs. The
// guarded variant is the only path by which stock may decrease in normal
// operation: the quantity check and the write are a single statement.
type TxRepository interface {
	// AdjustQuantity applies a signed delta unconditionally and returns the
	// resulting quantity.
	AdjustQuantity(ctx context.Context, ref EntityRef, delta int) (int, error)
	// AdjustQuantityGuarded applies a signed delta only when the result stays
	// non-negative. Returns shared.ErrInsufficientStock otherwise.
	AdjustQuantityGuarded(ctx context.Context, ref EntityRef, delta int) (int, error)
	// InsertTransaction appends one immutable ledger entry.
	InsertTransaction(ctx context.Context, tx Transaction) error
}

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, NewTxRepository(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// NewTxRepository wraps an open transaction so other workflows can post
// ledger entries inside their own transaction boundary.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) AdjustQuantity(ctx context.Context, ref EntityRef, delta int) (int, error) {
	var quantity int
	var err error
	if ref.VariantID != "" {
		err = t.tx.QueryRow(ctx, `UPDATE product_variants SET quantity = quantity + $2, updated_at = NOW()
WHERE id = $1 RETURNING quantity`, ref.VariantID, delta).Scan(&quantity)
	} else {
		err = t.tx.QueryRow(ctx, `UPDATE products SET quantity = quantity + $2, updated_at = NOW()
WHERE id = $1 RETURNING quantity`, ref.ProductID, delta).Scan(&quantity)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, shared.ErrNotFound
	}
	return quantity, err
}

func (t *txRepo) AdjustQuantityGuarded(ctx context.Context, ref EntityRef, delta int) (int, error) {
	var quantity int
	var err error
	if ref.VariantID != "" {
		err = t.tx.QueryRow(ctx, `UPDATE product_variants SET quantity = quantity + $2, updated_at = NOW()
WHERE id = $1 AND quantity + $2 >= 0 RETURNING quantity`, ref.VariantID, delta).Scan(&quantity)
	} else {
		err = t.tx.QueryRow(ctx, `UPDATE products SET quantity = quantity + $2, updated_at = NOW()
WHERE id = $1 AND quantity + $2 >= 0 RETURNING quantity`, ref.ProductID, delta).Scan(&quantity)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, t.classifyGuardMiss(ctx, ref)
	}
	return quantity, err
}

// classifyGuardMiss distinguishes a missing row from an insufficient balance
// after a guarded update matched nothing.
func (t *txRepo) classifyGuardMiss(ctx context.Context, ref EntityRef) error {
	var exists bool
	var err error
	if ref.VariantID != "" {
		err = t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM product_variants WHERE id = $1)`, ref.VariantID).Scan(&exists)
	} else {
		err = t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, ref.ProductID).Scan(&exists)
	}
	if err != nil {
		return err
	}
	if !exists {
		return shared.ErrNotFound
	}
	return shared.ErrInsufficientStock
}

func (t *txRepo) InsertTransaction(ctx context.Context, entry Transaction) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO inventory_transactions
(id, type, product_id, variant_id, quantity, quantity_after, reference, notes, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		entry.ID, string(entry.Type), entry.ProductID, nullStr(entry.VariantID),
		entry.Quantity, entry.QuantityAfter, nullStr(entry.Reference), nullStr(entry.Notes),
		nullStr(entry.CreatedBy), entry.CreatedAt)
	return err
}

// ListFilter narrows transaction history reads.
type ListFilter struct {
	ProductID string
	VariantID string
	Type      TransactionType
	Limit     int
	Offset    int
}

// ListTransactions returns ledger entries newest first.
func (r *Repository) ListTransactions(ctx context.Context, filter ListFilter) ([]Transaction, error) {
	query := `SELECT id, type, product_id, variant_id, quantity, quantity_after, reference, notes, created_by, created_at
FROM inventory_transactions WHERE 1=1`
	args := []any{}
	n := 0

	addFilter := func(clause string, value any) {
		n++
		query += ` AND ` + clause + `$` + strconv.Itoa(n)
		args = append(args, value)
	}
	if filter.ProductID != "" {
		addFilter("product_id = ", filter.ProductID)
	}
	if filter.VariantID != "" {
		addFilter("variant_id = ", filter.VariantID)
	}
	if filter.Type != "" {
		addFilter("type = ", string(filter.Type))
	}

	query += ` ORDER BY created_at DESC, id DESC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	n++
	query += ` LIMIT $` + strconv.Itoa(n)
	args = append(args, limit)
	if filter.Offset > 0 {
		n++
		query += ` OFFSET $` + strconv.Itoa(n)
		args = append(args, filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Transaction
	for rows.Next() {
		var entry Transaction
		var variantID, reference, notes, createdBy *string
		var txType string
		if err := rows.Scan(&entry.ID, &txType, &entry.ProductID, &variantID, &entry.Quantity,
			&entry.QuantityAfter, &reference, &notes, &createdBy, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Type = TransactionType(txType)
		entry.VariantID = deref(variantID)
		entry.Reference = deref(reference)
		entry.Notes = deref(notes)
		entry.CreatedBy = deref(createdBy)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullStr(value string) any {
	if value == "" {
		return nil
	}
	return value
}
