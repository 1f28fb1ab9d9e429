package catalog

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-ims/meridian-ims/internal/shared"
)

// ListFilters narrows product listings.
type ListFilters struct {
	CategoryID string
	SupplierID string
	Status     Status
	Search     string
	Limit      int
	Offset     int
}

// Repository persists catalog data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, sku, name, description, category_id, supplier_id, warehouse_id, status, quantity, price, cost_price,
min_stock, max_stock, reorder_point, reorder_quantity, has_variants, created_by, created_at, updated_at`

const variantColumns = `id, product_id, sku, name, quantity, price, cost_price, is_active, reorder_point, created_at, updated_at`

// GetProduct loads one product by id.
func (r *Repository) GetProduct(ctx context.Context, id string) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return scanProduct(row)
}

// ListProducts returns products matching the filters plus the total count.
func (r *Repository) ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM products WHERE 1=1`
	args := []any{}
	n := 0

	addFilter := func(clause string, value any) {
		n++
		placeholder := "$" + strconv.Itoa(n)
		query += ` AND ` + clause + placeholder
		countQuery += ` AND ` + clause + placeholder
		args = append(args, value)
	}
	if filters.CategoryID != "" {
		addFilter("category_id = ", filters.CategoryID)
	}
	if filters.SupplierID != "" {
		addFilter("supplier_id = ", filters.SupplierID)
	}
	if filters.Status != "" {
		addFilter("status = ", string(filters.Status))
	}
	if filters.Search != "" {
		n++
		placeholder := "$" + strconv.Itoa(n)
		query += ` AND (name ILIKE ` + placeholder + ` OR sku ILIKE ` + placeholder + `)`
		countQuery += ` AND (name ILIKE ` + placeholder + ` OR sku ILIKE ` + placeholder + `)`
		args = append(args, "%"+filters.Search+"%")
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY name ASC`
	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	n++
	query += ` LIMIT $` + strconv.Itoa(n)
	args = append(args, limit)
	if filters.Offset > 0 {
		n++
		query += ` OFFSET $` + strconv.Itoa(n)
		args = append(args, filters.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

// CreateProduct inserts a product row.
func (r *Repository) CreateProduct(ctx context.Context, p Product) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO products
(id, sku, name, description, category_id, supplier_id, warehouse_id, status, quantity, price, cost_price,
 min_stock, max_stock, reorder_point, reorder_quantity, has_variants, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$18)`,
		p.ID, p.SKU, p.Name, p.Description, nullStr(p.CategoryID), nullStr(p.SupplierID), nullStr(p.WarehouseID),
		string(p.Status), p.Quantity, p.Price, p.CostPrice,
		p.MinStock, p.MaxStock, p.ReorderPoint, p.ReorderQuantity, p.HasVariants, nullStr(p.CreatedBy), p.CreatedAt)
	if err != nil && shared.IsUniqueViolation(err) {
		return shared.ErrDuplicate
	}
	return err
}

// UpdateProduct rewrites editable product fields.
func (r *Repository) UpdateProduct(ctx context.Context, p Product) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET sku=$2, name=$3, description=$4, category_id=$5, supplier_id=$6,
warehouse_id=$7, min_stock=$8, max_stock=$9, reorder_point=$10, reorder_quantity=$11, updated_at=NOW() WHERE id=$1`,
		p.ID, p.SKU, p.Name, p.Description, nullStr(p.CategoryID), nullStr(p.SupplierID), nullStr(p.WarehouseID),
		p.MinStock, p.MaxStock, p.ReorderPoint, p.ReorderQuantity)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return shared.ErrDuplicate
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdateProductDerived persists the recomputed derived fields.
func (r *Repository) UpdateProductDerived(ctx context.Context, productID string, status Status, price float64, quantity int) error {
	_, err := r.pool.Exec(ctx, `UPDATE products SET status=$2, price=$3, quantity=$4, updated_at=NOW() WHERE id=$1`,
		productID, string(status), price, quantity)
	return err
}

// ListVariants returns all variants of a product.
func (r *Repository) ListVariants(ctx context.Context, productID string) ([]Variant, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+variantColumns+` FROM product_variants WHERE product_id = $1 ORDER BY sku ASC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var variants []Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

// GetVariant loads one variant by id.
func (r *Repository) GetVariant(ctx context.Context, id string) (Variant, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+variantColumns+` FROM product_variants WHERE id = $1`, id)
	return scanVariant(row)
}

// CreateVariant inserts a variant row.
func (r *Repository) CreateVariant(ctx context.Context, v Variant) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO product_variants
(id, product_id, sku, name, quantity, price, cost_price, is_active, reorder_point, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)`,
		v.ID, v.ProductID, v.SKU, v.Name, v.Quantity, v.Price, v.CostPrice, v.IsActive, v.ReorderPoint, v.CreatedAt)
	if err != nil && shared.IsUniqueViolation(err) {
		return shared.ErrDuplicate
	}
	return err
}

// UpdateVariant rewrites editable variant fields. Quantity is excluded: stock
// moves only through the ledger.
func (r *Repository) UpdateVariant(ctx context.Context, v Variant) error {
	tag, err := r.pool.Exec(ctx, `UPDATE product_variants SET sku=$2, name=$3, price=$4, is_active=$5, reorder_point=$6, updated_at=NOW() WHERE id=$1`,
		v.ID, v.SKU, v.Name, v.Price, v.IsActive, v.ReorderPoint)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return shared.ErrDuplicate
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	var description, categoryID, supplierID, warehouseID, createdBy *string
	var status string
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &description, &categoryID, &supplierID, &warehouseID, &status,
		&p.Quantity, &p.Price, &p.CostPrice, &p.MinStock, &p.MaxStock, &p.ReorderPoint, &p.ReorderQuantity,
		&p.HasVariants, &createdBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, shared.ErrNotFound
		}
		return Product{}, err
	}
	p.Status = Status(status)
	p.Description = deref(description)
	p.CategoryID = deref(categoryID)
	p.SupplierID = deref(supplierID)
	p.WarehouseID = deref(warehouseID)
	p.CreatedBy = deref(createdBy)
	return p, nil
}

func scanVariant(row pgx.Row) (Variant, error) {
	var v Variant
	var name *string
	err := row.Scan(&v.ID, &v.ProductID, &v.SKU, &name, &v.Quantity, &v.Price, &v.CostPrice, &v.IsActive,
		&v.ReorderPoint, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Variant{}, shared.ErrNotFound
		}
		return Variant{}, err
	}
	v.Name = deref(name)
	return v, nil
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
