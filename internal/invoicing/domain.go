package invoicing

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// InvoiceStatus labels the invoice lifecycle: DRAFT → ISSUED → PAID.
type InvoiceStatus string

const (
	InvoiceStatusDraft  InvoiceStatus = "DRAFT"
	InvoiceStatusIssued InvoiceStatus = "ISSUED"
	InvoiceStatusPaid   InvoiceStatus = "PAID"
)

// Invoice bills one recorded sales order.
type Invoice struct {
	ID        string
	Number    string
	OrderID   string
	Status    InvoiceStatus
	Amount    float64
	IssuedAt  *time.Time
	PaidAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

var amountPrinter = message.NewPrinter(language.English)

// DisplayAmount renders the amount with locale-aware grouping, e.g.
// "12,345.68".
func (i Invoice) DisplayAmount() string {
	return amountPrinter.Sprintf("%.2f", i.Amount)
}
