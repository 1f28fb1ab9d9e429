package rbac

import "time"

// Role represents a high-level permission grouping.
type Role struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission represents an atomic capability, named "<resource>.<action>".
type Permission struct {
	ID          string
	Name        string
	Description string
}

// UserRole links a user to a role.
type UserRole struct {
	UserID    string
	RoleID    string
	CreatedAt time.Time
}

// Well-known permissions guarded by the workflows.
const (
	PermCatalogView     = "catalog.view"
	PermCatalogEdit     = "catalog.edit"
	PermInventoryView   = "inventory.view"
	PermInventoryAdjust = "inventory.adjust"
	PermPurchasingView  = "purchasing.view"
	PermPurchasingEdit  = "purchasing.edit"
	PermPurchasingRecv  = "purchasing.receive"
	PermSalesView       = "sales.view"
	PermSalesCreate     = "sales.create"
	PermInvoicingView   = "invoicing.view"
	PermInvoicingIssue  = "invoicing.issue"
	PermRolesAdminister = "roles.administer"
)
