package sales

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-ims/meridian-ims/internal/catalog"
	"github.com/meridian-ims/meridian-ims/internal/ledger"
	"github.com/meridian-ims/meridian-ims/internal/shared"
)

// TxRepository exposes the transactional operations fulfilment needs. It
// embeds the ledger port so the guarded stock decrement posts inside the same
// transaction as the order insert.
type TxRepository interface {
	ledger.TxRepository

	UpsertCustomerByEmail(ctx context.Context, c Customer) (Customer, error)
	InsertOrder(ctx context.Context, o Order) error
	InsertOrderItem(ctx context.Context, item OrderItem) error

	GetProduct(ctx context.Context, id string) (catalog.Product, error)
	GetVariant(ctx context.Context, id string) (catalog.Variant, error)
	ListVariants(ctx context.Context, productID string) ([]catalog.Variant, error)
	UpdateProductDerived(ctx context.Context, productID string, status catalog.Status, price float64, quantity int) error
}

// Repository persists sales data in PostgreSQL.
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

func (t *txRepo) UpsertCustomerByEmail(ctx context.Context, c Customer) (Customer, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO customers (id, name, email, phone, created_at, updated_at)
VALUES ($1, $2, $3, $4, NOW(), NOW())
ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name, phone = EXCLUDED.phone, updated_at = NOW()
RETURNING id, created_at, updated_at`,
		c.ID, c.Name, c.Email, nullStr(c.Phone)).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Customer{}, err
	}
	return c, nil
}

func (t *txRepo) InsertOrder(ctx context.Context, o Order) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO sales_orders (id, number, customer_id, status, total_amount, notes, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		o.ID, o.Number, o.CustomerID, string(o.Status), o.TotalAmount, nullStr(o.Notes), nullStr(o.CreatedBy), o.CreatedAt)
	if err != nil && shared.IsUniqueViolation(err) {
		return shared.ErrDuplicate
	}
	return err
}

func (t *txRepo) InsertOrderItem(ctx context.Context, item OrderItem) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO sales_order_items (id, order_id, product_id, variant_id, quantity, unit_price)
VALUES ($1,$2,$3,$4,$5,$6)`,
		item.ID, item.OrderID, item.ProductID, nullStr(item.VariantID), item.Quantity, item.UnitPrice)
	return err
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

func (t *txRepo) GetVariant(ctx context.Context, id string) (catalog.Variant, error) {
	row := t.tx.QueryRow(ctx, `SELECT id, product_id, quantity, price, is_active, reorder_point FROM product_variants WHERE id = $1`, id)
	var v catalog.Variant
	err := row.Scan(&v.ID, &v.ProductID, &v.Quantity, &v.Price, &v.IsActive, &v.ReorderPoint)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Variant{}, shared.ErrNotFound
	}
	return v, err
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

const orderColumns = `id, number, customer_id, status, total_amount, notes, created_by, created_at`

// GetOrder loads one order with its items.
func (r *Repository) GetOrder(ctx context.Context, id string) (Order, []OrderItem, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM sales_orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		return Order{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, product_id, variant_id, quantity, unit_price
FROM sales_order_items WHERE order_id = $1 ORDER BY id ASC`, id)
	if err != nil {
		return Order{}, nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var item OrderItem
		var variantID *string
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &variantID, &item.Quantity, &item.UnitPrice); err != nil {
			return Order{}, nil, err
		}
		item.VariantID = deref(variantID)
		items = append(items, item)
	}
	return order, items, rows.Err()
}

// ListOrders returns orders newest first.
func (r *Repository) ListOrders(ctx context.Context, limit, offset int) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM sales_orders ORDER BY created_at DESC`
	args := []any{}
	if limit <= 0 {
		limit = 50
	}
	query += ` LIMIT $1`
	args = append(args, limit)
	if offset > 0 {
		query += ` OFFSET $` + strconv.Itoa(len(args)+1)
		args = append(args, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var notes, createdBy *string
	var status string
	err := row.Scan(&o.ID, &o.Number, &o.CustomerID, &status, &o.TotalAmount, &notes, &createdBy, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, shared.ErrNotFound
		}
		return Order{}, err
	}
	o.Status = OrderStatus(status)
	o.Notes = deref(notes)
	o.CreatedBy = deref(createdBy)
	return o, nil
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
