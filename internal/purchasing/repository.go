package purchasing

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-ims/meridian-ims/internal/catalog"
	"github.com/meridian-ims/meridian-ims/internal/ledger"
	"github.com/meridian-ims/meridian-ims/internal/shared"
)

// TxRepository exposes the transactional operations receiving needs. It
// embeds the ledger port so stock deltas post inside the same transaction as
// the order-state updates.
type TxRepository interface {
	ledger.TxRepository

	GetPOForUpdate(ctx context.Context, id string) (PurchaseOrder, []POItem, error)
	SetItemReceived(ctx context.Context, itemID string, received int) error
	SetVariantCost(ctx context.Context, variantID string, cost float64) error
	SetProductCost(ctx context.Context, productID string, cost float64) error
	MarkReceived(ctx context.Context, poID string, receivedAt time.Time) error

	GetProduct(ctx context.Context, id string) (catalog.Product, error)
	ListVariants(ctx context.Context, productID string) ([]catalog.Variant, error)
	UpdateProductDerived(ctx context.Context, productID string, status catalog.Status, price float64, quantity int) error
}

// Repository persists purchasing data in PostgreSQL.
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

	wrapper := &txRepo{tx: tx, TxRepository: ledger.NewTxRepository(tx)}
	if err := fn(ctx, wrapper); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type txRepo struct {
	ledger.TxRepository
	tx pgx.Tx
}

const poColumns = `id, number, supplier_id, status, notes, created_by, received_at, created_at, updated_at`

const poItemColumns = `id, purchase_order_id, product_id, variant_id, ordered_quantity, received_quantity, cost_per_unit`

func (t *txRepo) GetPOForUpdate(ctx context.Context, id string) (PurchaseOrder, []POItem, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id = $1 FOR UPDATE`, id)
	po, err := scanPO(row)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	rows, err := t.tx.Query(ctx, `SELECT `+poItemColumns+` FROM purchase_order_items WHERE purchase_order_id = $1 ORDER BY id ASC`, id)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	defer rows.Close()

	var items []POItem
	for rows.Next() {
		item, err := scanPOItem(rows)
		if err != nil {
			return PurchaseOrder{}, nil, err
		}
		items = append(items, item)
	}
	return po, items, rows.Err()
}

func (t *txRepo) SetItemReceived(ctx context.Context, itemID string, received int) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_order_items SET received_quantity = $2 WHERE id = $1`, itemID, received)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) SetVariantCost(ctx context.Context, variantID string, cost float64) error {
	_, err := t.tx.Exec(ctx, `UPDATE product_variants SET cost_price = $2, updated_at = NOW() WHERE id = $1`, variantID, cost)
	return err
}

func (t *txRepo) SetProductCost(ctx context.Context, productID string, cost float64) error {
	_, err := t.tx.Exec(ctx, `UPDATE products SET cost_price = $2, updated_at = NOW() WHERE id = $1`, productID, cost)
	return err
}

func (t *txRepo) MarkReceived(ctx context.Context, poID string, receivedAt time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET status = $2, received_at = $3, updated_at = NOW() WHERE id = $1`,
		poID, string(POStatusReceived), receivedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	row := t.tx.QueryRow(ctx, `SELECT id, quantity, price, min_stock, reorder_point, has_variants FROM products WHERE id = $1`, id)
	var p catalog.Product
	err := row.Scan(&p.ID, &p.Quantity, &p.Price, &p.MinStock, &p.ReorderPoint, &p.HasVariants)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Product{}, shared.ErrNotFound
	}
	return p, err
}

func (t *txRepo) ListVariants(ctx context.Context, productID string) ([]catalog.Variant, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, product_id, quantity, price, is_active, reorder_point FROM product_variants WHERE product_id = $1 ORDER BY sku ASC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var variants []catalog.Variant
	for rows.Next() {
		var v catalog.Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Quantity, &v.Price, &v.IsActive, &v.ReorderPoint); err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

func (t *txRepo) UpdateProductDerived(ctx context.Context, productID string, status catalog.Status, price float64, quantity int) error {
	_, err := t.tx.Exec(ctx, `UPDATE products SET status = $2, price = $3, quantity = $4, updated_at = NOW() WHERE id = $1`,
		productID, string(status), price, quantity)
	return err
}

// CreatePO inserts the order header and its items atomically.
func (r *Repository) CreatePO(ctx context.Context, po PurchaseOrder, items []POItem) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `INSERT INTO purchase_orders (id, number, supplier_id, status, notes, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$7)`,
		po.ID, po.Number, po.SupplierID, string(po.Status), nullStr(po.Notes), nullStr(po.CreatedBy), po.CreatedAt)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return shared.ErrDuplicate
		}
		return err
	}
	for _, item := range items {
		_, err = tx.Exec(ctx, `INSERT INTO purchase_order_items
(id, purchase_order_id, product_id, variant_id, ordered_quantity, received_quantity, cost_per_unit)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			item.ID, po.ID, item.ProductID, nullStr(item.VariantID), item.OrderedQuantity, item.ReceivedQuantity, item.CostPerUnit)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// GetProduct loads the catalog fields item validation needs.
func (r *Repository) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, quantity, price, min_stock, reorder_point, has_variants FROM products WHERE id = $1`, id)
	var p catalog.Product
	err := row.Scan(&p.ID, &p.Quantity, &p.Price, &p.MinStock, &p.ReorderPoint, &p.HasVariants)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Product{}, shared.ErrNotFound
	}
	return p, err
}

// GetPO loads an order with its items.
func (r *Repository) GetPO(ctx context.Context, id string) (PurchaseOrder, []POItem, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id = $1`, id)
	po, err := scanPO(row)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+poItemColumns+` FROM purchase_order_items WHERE purchase_order_id = $1 ORDER BY id ASC`, id)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	defer rows.Close()

	var items []POItem
	for rows.Next() {
		item, err := scanPOItem(rows)
		if err != nil {
			return PurchaseOrder{}, nil, err
		}
		items = append(items, item)
	}
	return po, items, rows.Err()
}

// ListPOs returns orders newest first, optionally filtered by status.
func (r *Repository) ListPOs(ctx context.Context, status POStatus, limit, offset int) ([]PurchaseOrder, error) {
	query := `SELECT ` + poColumns + ` FROM purchase_orders WHERE 1=1`
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

	var orders []PurchaseOrder
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, po)
	}
	return orders, rows.Err()
}

// UpdateStatus moves an order between lifecycle states.
func (r *Repository) UpdateStatus(ctx context.Context, poID string, status POStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE purchase_orders SET status = $2, updated_at = NOW() WHERE id = $1`,
		poID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	var notes, createdBy *string
	var status string
	err := row.Scan(&po.ID, &po.Number, &po.SupplierID, &status, &notes, &createdBy, &po.ReceivedAt, &po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, shared.ErrNotFound
		}
		return PurchaseOrder{}, err
	}
	po.Status = POStatus(status)
	po.Notes = deref(notes)
	po.CreatedBy = deref(createdBy)
	return po, nil
}

func scanPOItem(row pgx.Row) (POItem, error) {
	var item POItem
	var variantID *string
	err := row.Scan(&item.ID, &item.PurchaseOrderID, &item.ProductID, &variantID,
		&item.OrderedQuantity, &item.ReceivedQuantity, &item.CostPerUnit)
	if err != nil {
		return POItem{}, err
	}
	item.VariantID = deref(variantID)
	return item, nil
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
