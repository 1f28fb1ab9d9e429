package ledger

import "time"

// TransactionType labels a stock movement.
type TransactionType string

const (
	TypePurchase   TransactionType = "PURCHASE"
	TypeSale       TransactionType = "SALE"
	TypeAdjustment TransactionType = "ADJUSTMENT"
	TypeTransfer   TransactionType = "TRANSFER"
	TypeReturn     TransactionType = "RETURN"
	TypeOther      TransactionType = "OTHER"
)

// Valid reports whether t is a known movement type.
func (t TransactionType) Valid() bool {
	switch t {
	case TypePurchase, TypeSale, TypeAdjustment, TypeTransfer, TypeReturn, TypeOther:
		return true
	}
	return false
}

// EntityRef addresses the stock-bearing row a delta applies to. An empty
// VariantID targets the product row itself (variant-less products).
type EntityRef struct {
	ProductID string
	VariantID string
}

// Transaction is one immutable ledger entry. The sum of signed quantities for
// an entity equals its current stock level.
type Transaction struct {
	ID            string
	Type          TransactionType
	ProductID     string
	VariantID     string
	Quantity      int
	QuantityAfter int
	Reference     string
	Notes         string
	CreatedBy     string
	CreatedAt     time.Time
}

// DeltaInput describes a signed stock movement. Compensating marks a
// deliberate correction that may drive stock negative; it is never accepted
// for SALE movements.
type DeltaInput struct {
	Entity       EntityRef
	Type         TransactionType
	Quantity     int
	Reference    string
	Notes        string
	ActorID      string
	Compensating bool
}
