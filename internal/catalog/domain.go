package catalog

import "time"

// Status is the stored lifecycle status of a product. It is derived from
// aggregate quantity and the reorder threshold, never edited directly for
// variant-bearing products.
type Status string

const (
	// StatusAvailable indicates stock above the reorder threshold.
	StatusAvailable Status = "Available"
	// StatusStockLow indicates stock at or below the reorder threshold.
	StatusStockLow Status = "Stock Low"
	// StatusStockOut indicates zero or negative stock.
	StatusStockOut Status = "Stock Out"
)

// Product is the top-level catalog entity. When HasVariants is set, all stock
// lives on the variants and Quantity/Price are persisted copies of the
// aggregate; otherwise Quantity is the authoritative on-hand count.
type Product struct {
	ID              string
	SKU             string
	Name            string
	Description     string
	CategoryID      string
	SupplierID      string
	WarehouseID     string
	Status          Status
	Quantity        int
	Price           float64
	CostPrice       float64
	MinStock        *int
	MaxStock        *int
	ReorderPoint    *int
	ReorderQuantity *int
	HasVariants     bool
	CreatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Variant is a sellable SKU-level sub-entity carrying its own price and
// quantity.
type Variant struct {
	ID           string
	ProductID    string
	SKU          string
	Name         string
	Quantity     int
	Price        float64
	CostPrice    float64
	IsActive     bool
	ReorderPoint *int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProductView merges stored product fields with the live aggregate for
// variant-bearing products.
type ProductView struct {
	Product
	MinPrice float64
	MaxPrice float64
	Variants []Variant
}
