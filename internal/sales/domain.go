package sales

import "time"

// OrderStatus labels a sales order lifecycle state. Fulfilment is synchronous:
// a recorded order is already completed.
type OrderStatus string

const (
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Customer is upserted by e-mail when a sale is recorded.
type Customer struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Order domain model.
type Order struct {
	ID          string
	Number      string
	CustomerID  string
	Status      OrderStatus
	TotalAmount float64
	Notes       string
	CreatedBy   string
	CreatedAt   time.Time
}

// OrderItem represents the sold line. UnitPrice is derived from the order
// total, not from the catalog price.
type OrderItem struct {
	ID        string
	OrderID   string
	ProductID string
	VariantID string
	Quantity  int
	UnitPrice float64
}

// SaleInput describes one recorded sale.
type SaleInput struct {
	ProductID     string
	VariantID     string
	Quantity      int
	TotalAmount   float64
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Notes         string
	ActorID       string
}
