package purchasing

import "time"

// Purchase order lifecycle statuses. Transitions are monotonic:
// DRAFT → SUBMITTED → RECEIVED → CLOSED.
type POStatus string

const (
	POStatusDraft     POStatus = "DRAFT"
	POStatusSubmitted POStatus = "SUBMITTED"
	POStatusReceived  POStatus = "RECEIVED"
	POStatusClosed    POStatus = "CLOSED"
)

// PurchaseOrder domain model.
type PurchaseOrder struct {
	ID         string
	Number     string
	SupplierID string
	Status     POStatus
	Notes      string
	CreatedBy  string
	ReceivedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// POItem represents one ordered line. An empty VariantID targets a
// variant-less product.
type POItem struct {
	ID               string
	PurchaseOrderID  string
	ProductID        string
	VariantID        string
	OrderedQuantity  int
	ReceivedQuantity int
	CostPerUnit      float64
}

// Remaining returns the not-yet-received quantity.
func (i POItem) Remaining() int {
	return i.OrderedQuantity - i.ReceivedQuantity
}

// ReceiveResult summarises one receiving run.
type ReceiveResult struct {
	ItemsReceived       int
	TransactionsCreated int
}
