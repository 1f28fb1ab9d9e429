package sales

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-ims/meridian-ims/internal/catalog"
	"github.com/meridian-ims/meridian-ims/internal/ledger"
	"github.com/meridian-ims/meridian-ims/internal/rbac"
	"github.com/meridian-ims/meridian-ims/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id string) (Order, []OrderItem, error)
	ListOrders(ctx context.Context, limit, offset int) ([]Order, error)
}

// AuthzPort is the permission oracle consulted before state changes.
type AuthzPort interface {
	CanPerform(ctx context.Context, userID, resource, action string) (bool, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// LedgerPort posts stock deltas inside a caller-supplied transaction.
type LedgerPort interface {
	Apply(ctx context.Context, tx ledger.TxRepository, input ledger.DeltaInput) (ledger.Transaction, error)
}

// Service coordinates sale fulfilment.
type Service struct {
	repo   RepositoryPort
	ledger LedgerPort
	authz  AuthzPort
	audit  AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledgerSvc LedgerPort, authz AuthzPort, audit AuditPort) *Service {
	return &Service{repo: repo, ledger: ledgerSvc, authz: authz, audit: audit}
}

// RecordSale validates the sale, then commits customer, order, ledger entry
// and recomputed product state in one transaction. The guarded decrement is
// the final authority on stock: when it fails nothing is persisted.
func (s *Service) RecordSale(ctx context.Context, input SaleInput) (Order, error) {
	if err := s.validate(input); err != nil {
		return Order{}, err
	}
	if err := s.requirePermission(ctx, input.ActorID, rbac.PermSalesCreate); err != nil {
		return Order{}, err
	}

	now := time.Now().UTC()
	order := Order{
		ID:          uuid.NewString(),
		Number:      generateNumber(now),
		Status:      OrderStatusCompleted,
		TotalAmount: input.TotalAmount,
		Notes:       input.Notes,
		CreatedBy:   input.ActorID,
		CreatedAt:   now,
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProduct(ctx, input.ProductID)
		if err != nil {
			return err
		}

		ref, err := s.selectEntity(ctx, tx, product, input)
		if err != nil {
			return err
		}

		customer, err := tx.UpsertCustomerByEmail(ctx, Customer{
			ID:    uuid.NewString(),
			Name:  strings.TrimSpace(input.CustomerName),
			Email: strings.ToLower(strings.TrimSpace(input.CustomerEmail)),
			Phone: strings.TrimSpace(input.CustomerPhone),
		})
		if err != nil {
			return err
		}
		order.CustomerID = customer.ID

		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		item := OrderItem{
			ID:        uuid.NewString(),
			OrderID:   order.ID,
			ProductID: input.ProductID,
			VariantID: ref.VariantID,
			Quantity:  input.Quantity,
			UnitPrice: input.TotalAmount / float64(input.Quantity),
		}
		if err := tx.InsertOrderItem(ctx, item); err != nil {
			return err
		}

		if _, err := s.ledger.Apply(ctx, tx, ledger.DeltaInput{
			Entity:    ref,
			Type:      ledger.TypeSale,
			Quantity:  -input.Quantity,
			Reference: order.Number,
			ActorID:   input.ActorID,
		}); err != nil {
			return err
		}

		return s.refreshDerived(ctx, tx, input.ProductID)
	})
	if err != nil {
		s.recordAudit(ctx, input.ActorID, "sale:record", order.ID, shared.AuditStatusError, map[string]any{"error": err.Error()})
		return Order{}, err
	}

	s.recordAudit(ctx, input.ActorID, "sale:record", order.ID, shared.AuditStatusSuccess, map[string]any{
		"number":   order.Number,
		"product":  input.ProductID,
		"quantity": input.Quantity,
		"amount":   input.TotalAmount,
	})
	return order, nil
}

// selectEntity resolves which stock-bearing row the sale decrements. An
// explicit variant must belong to the product; otherwise the first active
// variant that can cover the quantity wins; variant-less products sell from
// the product row.
func (s *Service) selectEntity(ctx context.Context, tx TxRepository, product catalog.Product, input SaleInput) (ledger.EntityRef, error) {
	if input.VariantID != "" {
		variant, err := tx.GetVariant(ctx, input.VariantID)
		if err != nil {
			return ledger.EntityRef{}, err
		}
		if variant.ProductID != product.ID {
			return ledger.EntityRef{}, fmt.Errorf("%w: variant does not belong to product", shared.ErrValidation)
		}
		return ledger.EntityRef{ProductID: product.ID, VariantID: variant.ID}, nil
	}
	if !product.HasVariants {
		return ledger.EntityRef{ProductID: product.ID}, nil
	}
	variants, err := tx.ListVariants(ctx, product.ID)
	if err != nil {
		return ledger.EntityRef{}, err
	}
	for _, v := range variants {
		if v.IsActive && v.Quantity >= input.Quantity {
			return ledger.EntityRef{ProductID: product.ID, VariantID: v.ID}, nil
		}
	}
	return ledger.EntityRef{}, shared.ErrInsufficientStock
}

func (s *Service) refreshDerived(ctx context.Context, tx TxRepository, productID string) error {
	product, err := tx.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	var variants []catalog.Variant
	if product.HasVariants {
		variants, err = tx.ListVariants(ctx, productID)
		if err != nil {
			return err
		}
	}
	status, agg := catalog.DeriveState(product, variants)
	return tx.UpdateProductDerived(ctx, productID, status, agg.Price, agg.Quantity)
}

// GetOrder loads one order with its items.
func (s *Service) GetOrder(ctx context.Context, id string) (Order, []OrderItem, error) {
	return s.repo.GetOrder(ctx, id)
}

// ListOrders returns orders newest first.
func (s *Service) ListOrders(ctx context.Context, limit, offset int) ([]Order, error) {
	return s.repo.ListOrders(ctx, limit, offset)
}

func (s *Service) validate(input SaleInput) error {
	if input.ProductID == "" {
		return fmt.Errorf("%w: product required", shared.ErrValidation)
	}
	if input.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	if input.TotalAmount < 0 {
		return fmt.Errorf("%w: total amount must be >= 0", shared.ErrValidation)
	}
	email := strings.TrimSpace(input.CustomerEmail)
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: customer email required", shared.ErrValidation)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID, action, entityID, status string, values map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:   actorID,
		Action:    action,
		Entity:    "sales_order",
		EntityID:  entityID,
		NewValues: values,
		Status:    status,
	})
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

func generateNumber(now time.Time) string {
	return fmt.Sprintf("SO-%s", now.Format("20060102-150405.000000"))
}
