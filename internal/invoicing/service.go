package invoicing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-ims/meridian-ims/internal/rbac"
	"github.com/meridian-ims/meridian-ims/internal/sales"
	"github.com/meridian-ims/meridian-ims/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	CreateInvoice(ctx context.Context, inv Invoice) error
	GetInvoice(ctx context.Context, id string) (Invoice, error)
	GetByOrder(ctx context.Context, orderID string) (Invoice, error)
	SetStatus(ctx context.Context, id string, from, to InvoiceStatus) error
	ListInvoices(ctx context.Context, status InvoiceStatus, limit, offset int) ([]Invoice, error)
}

// OrderPort provides read access to recorded sales orders.
type OrderPort interface {
	GetOrder(ctx context.Context, id string) (sales.Order, []sales.OrderItem, error)
}

// AuthzPort is the permission oracle consulted before state changes.
type AuthzPort interface {
	CanPerform(ctx context.Context, userID, resource, action string) (bool, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates invoicing.
type Service struct {
	repo   RepositoryPort
	orders OrderPort
	authz  AuthzPort
	audit  AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, orders OrderPort, authz AuthzPort, audit AuditPort) *Service {
	return &Service{repo: repo, orders: orders, authz: authz, audit: audit}
}

// CreateFromOrder drafts an invoice over the order's total amount.
func (s *Service) CreateFromOrder(ctx context.Context, orderID, actorID string) (Invoice, error) {
	if err := s.requirePermission(ctx, actorID, rbac.PermInvoicingIssue); err != nil {
		return Invoice{}, err
	}
	order, _, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return Invoice{}, err
	}
	if order.Status != sales.OrderStatusCompleted {
		return Invoice{}, fmt.Errorf("%w: only completed orders can be invoiced", shared.ErrValidation)
	}
	now := time.Now().UTC()
	inv := Invoice{
		ID:        uuid.NewString(),
		Number:    fmt.Sprintf("INV-%s", strings.TrimPrefix(order.Number, "SO-")),
		OrderID:   order.ID,
		Status:    InvoiceStatusDraft,
		Amount:    order.TotalAmount,
		CreatedAt: now,
	}
	if err := s.repo.CreateInvoice(ctx, inv); err != nil {
		return Invoice{}, err
	}
	s.recordAudit(ctx, actorID, "invoice:create", inv.ID, map[string]any{"order_id": orderID, "amount": inv.Amount})
	return inv, nil
}

// Issue moves a draft invoice to ISSUED.
func (s *Service) Issue(ctx context.Context, invoiceID, actorID string) error {
	if err := s.requirePermission(ctx, actorID, rbac.PermInvoicingIssue); err != nil {
		return err
	}
	if err := s.repo.SetStatus(ctx, invoiceID, InvoiceStatusDraft, InvoiceStatusIssued); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "invoice:issue", invoiceID, nil)
	return nil
}

// MarkPaid moves an issued invoice to PAID.
func (s *Service) MarkPaid(ctx context.Context, invoiceID, actorID string) error {
	if err := s.requirePermission(ctx, actorID, rbac.PermInvoicingIssue); err != nil {
		return err
	}
	if err := s.repo.SetStatus(ctx, invoiceID, InvoiceStatusIssued, InvoiceStatusPaid); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "invoice:paid", invoiceID, nil)
	return nil
}

// Get loads one invoice.
func (s *Service) Get(ctx context.Context, invoiceID string) (Invoice, error) {
	return s.repo.GetInvoice(ctx, invoiceID)
}

// List returns invoices, optionally filtered by status.
func (s *Service) List(ctx context.Context, status InvoiceStatus, limit, offset int) ([]Invoice, error) {
	return s.repo.ListInvoices(ctx, status, limit, offset)
}

func (s *Service) requirePermission(ctx context.Context, actorID, perm string) error {
	if s.authz == nil {
		return nil
	}
	resource, action := rbac.SplitPermission(perm)
	allowed, err := s.authz.CanPerform(ctx, actorID, resource, action)
	if err != nil {
		return err
	}
	if !allowed {
		return shared.ErrForbidden
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID, action, entityID string, values map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:   actorID,
		Action:    action,
		Entity:    "invoice",
		EntityID:  entityID,
		NewValues: values,
		Status:    shared.AuditStatusSuccess,
	})
}
