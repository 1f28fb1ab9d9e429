package purchasing

import (
	"context"
	"errors"
	"fmt"
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
	CreatePO(ctx context.Context, po PurchaseOrder, items []POItem) error
	GetPO(ctx context.Context, id string) (PurchaseOrder, []POItem, error)
	GetProduct(ctx context.Context, id string) (catalog.Product, error)
	ListPOs(ctx context.Context, status POStatus, limit, offset int) ([]PurchaseOrder, error)
	UpdateStatus(ctx context.Context, poID string, status POStatus) error
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

// Service coordinates purchase order operations.
type Service struct {
	repo        RepositoryPort
	ledger      LedgerPort
	authz       AuthzPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledgerSvc LedgerPort, authz AuthzPort, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, ledger: ledgerSvc, authz: authz, audit: audit, idempotency: idem}
}

// CreatePOInput describes order creation payload.
type CreatePOInput struct {
	SupplierID string
	Notes      string
	Items      []POItemInput
	ActorID    string
}

// POItemInput describes one ordered line.
type POItemInput struct {
	ProductID   string
	VariantID   string
	Quantity    int
	CostPerUnit float64
}

// Create registers a draft purchase order with its items.
func (s *Service) Create(ctx context.Context, input CreatePOInput) (PurchaseOrder, error) {
	if err := s.requirePermission(ctx, input.ActorID, rbac.PermPurchasingEdit); err != nil {
		return PurchaseOrder{}, err
	}
	if input.SupplierID == "" {
		return PurchaseOrder{}, fmt.Errorf("%w: supplier required", shared.ErrValidation)
	}
	if len(input.Items) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: at least one item required", shared.ErrValidation)
	}
	now := time.Now().UTC()
	po := PurchaseOrder{
		ID:         uuid.NewString(),
		Number:     generateNumber(now),
		SupplierID: input.SupplierID,
		Status:     POStatusDraft,
		Notes:      input.Notes,
		CreatedBy:  input.ActorID,
		CreatedAt:  now,
	}
	items := make([]POItem, 0, len(input.Items))
	for _, line := range input.Items {
		if line.ProductID == "" {
			return PurchaseOrder{}, fmt.Errorf("%w: item product required", shared.ErrValidation)
		}
		if line.Quantity <= 0 {
			return PurchaseOrder{}, fmt.Errorf("%w: item quantity must be positive", shared.ErrValidation)
		}
		if line.CostPerUnit < 0 {
			return PurchaseOrder{}, fmt.Errorf("%w: item cost must be >= 0", shared.ErrValidation)
		}
		product, err := s.repo.GetProduct(ctx, line.ProductID)
		if err != nil {
			return PurchaseOrder{}, err
		}
		// The parent of a variant-bearing product carries no stock of its
		// own; a line without a variant would book quantity nowhere.
		if product.HasVariants && line.VariantID == "" {
			return PurchaseOrder{}, fmt.Errorf("%w: product %s has variants, item must name one", shared.ErrValidation, line.ProductID)
		}
		items = append(items, POItem{
			ID:              uuid.NewString(),
			PurchaseOrderID: po.ID,
			ProductID:       line.ProductID,
			VariantID:       line.VariantID,
			OrderedQuantity: line.Quantity,
			CostPerUnit:     line.CostPerUnit,
		})
	}
	if err := s.repo.CreatePO(ctx, po, items); err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, input.ActorID, "po:create", po.ID, nil, map[string]any{"number": po.Number, "items": len(items)})
	return po, nil
}

// Submit moves a draft order to SUBMITTED.
func (s *Service) Submit(ctx context.Context, poID, actorID string) error {
	if err := s.requirePermission(ctx, actorID, rbac.PermPurchasingEdit); err != nil {
		return err
	}
	po, _, err := s.repo.GetPO(ctx, poID)
	if err != nil {
		return err
	}
	if po.Status != POStatusDraft {
		return fmt.Errorf("%w: only draft orders can be submitted", shared.ErrValidation)
	}
	if err := s.repo.UpdateStatus(ctx, poID, POStatusSubmitted); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "po:submit", poID,
		map[string]any{"status": string(po.Status)}, map[string]any{"status": string(POStatusSubmitted)})
	return nil
}

// Close moves a received order to CLOSED. A separate manual transition.
func (s *Service) Close(ctx context.Context, poID, actorID string) error {
	if err := s.requirePermission(ctx, actorID, rbac.PermPurchasingEdit); err != nil {
		return err
	}
	po, _, err := s.repo.GetPO(ctx, poID)
	if err != nil {
		return err
	}
	if po.Status != POStatusReceived {
		return fmt.Errorf("%w: only received orders can be closed", shared.ErrValidation)
	}
	if err := s.repo.UpdateStatus(ctx, poID, POStatusClosed); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "po:close", poID,
		map[string]any{"status": string(po.Status)}, map[string]any{"status": string(POStatusClosed)})
	return nil
}

// Get loads one order with items.
func (s *Service) Get(ctx context.Context, poID string) (PurchaseOrder, []POItem, error) {
	return s.repo.GetPO(ctx, poID)
}

// List returns orders, optionally filtered by status.
func (s *Service) List(ctx context.Context, status POStatus, limit, offset int) ([]PurchaseOrder, error) {
	return s.repo.ListPOs(ctx, status, limit, offset)
}

// Receive books every outstanding item of a draft or submitted order into
// stock; submission is an optional intermediate step. The whole run is one
// transaction: ledger entries, received quantities, cost updates, recomputed
// product state and the RECEIVED flip commit together or not at all. A second
// attempt returns ErrAlreadyReceived without posting anything.
func (s *Service) Receive(ctx context.Context, poID, actorID string) (ReceiveResult, error) {
	if err := s.requirePermission(ctx, actorID, rbac.PermPurchasingRecv); err != nil {
		return ReceiveResult{}, err
	}

	po, _, err := s.repo.GetPO(ctx, poID)
	if err != nil {
		return ReceiveResult{}, err
	}
	if po.Status == POStatusReceived || po.Status == POStatusClosed {
		return ReceiveResult{}, shared.ErrAlreadyReceived
	}

	key := fmt.Sprintf("PO-RECV:%s", po.Number)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "purchasing.receive"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return ReceiveResult{}, shared.ErrAlreadyReceived
			}
			return ReceiveResult{}, err
		}
		insertedKey = true
	}

	var result ReceiveResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, items, err := tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		// Re-check under the row lock: a concurrent receive may have won.
		if po.Status == POStatusReceived || po.Status == POStatusClosed {
			return shared.ErrAlreadyReceived
		}

		touched := map[string]struct{}{}
		for _, item := range items {
			remaining := item.Remaining()
			if remaining <= 0 {
				continue
			}
			// Guard against lines created before the product grew variants:
			// booking onto the parent row would be erased by the aggregate
			// refresh below.
			if item.VariantID == "" {
				product, err := tx.GetProduct(ctx, item.ProductID)
				if err != nil {
					return err
				}
				if product.HasVariants {
					return fmt.Errorf("%w: product %s has variants, item %s must name one", shared.ErrValidation, item.ProductID, item.ID)
				}
			}
			_, err := s.ledger.Apply(ctx, tx, ledger.DeltaInput{
				Entity:    ledger.EntityRef{ProductID: item.ProductID, VariantID: item.VariantID},
				Type:      ledger.TypePurchase,
				Quantity:  remaining,
				Reference: po.Number,
				ActorID:   actorID,
			})
			if err != nil {
				return err
			}
			if err := tx.SetItemReceived(ctx, item.ID, item.OrderedQuantity); err != nil {
				return err
			}
			// Last write wins when several lines hit the same variant.
			if item.VariantID != "" {
				if err := tx.SetVariantCost(ctx, item.VariantID, item.CostPerUnit); err != nil {
					return err
				}
			} else {
				if err := tx.SetProductCost(ctx, item.ProductID, item.CostPerUnit); err != nil {
					return err
				}
			}
			touched[item.ProductID] = struct{}{}
			result.ItemsReceived++
			result.TransactionsCreated++
		}

		for productID := range touched {
			if err := s.refreshDerived(ctx, tx, productID); err != nil {
				return err
			}
		}
		return tx.MarkReceived(ctx, poID, time.Now().UTC())
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		s.recordAuditStatus(ctx, actorID, "po:receive", poID, shared.AuditStatusError, map[string]any{"error": err.Error()})
		return ReceiveResult{}, err
	}

	s.recordAudit(ctx, actorID, "po:receive", poID,
		map[string]any{"status": string(po.Status)},
		map[string]any{"status": string(POStatusReceived), "items": result.ItemsReceived, "transactions": result.TransactionsCreated})
	return result, nil
}

// refreshDerived recomputes and persists a product's status, price and
// quantity from its variants inside the running transaction.
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

func (s *Service) recordAudit(ctx context.Context, actorID, action, entityID string, oldValues, newValues map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:   actorID,
		Action:    action,
		Entity:    "purchase_order",
		EntityID:  entityID,
		OldValues: oldValues,
		NewValues: newValues,
		Status:    shared.AuditStatusSuccess,
	})
}

func (s *Service) recordAuditStatus(ctx context.Context, actorID, action, entityID, status string, values map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:   actorID,
		Action:    action,
		Entity:    "purchase_order",
		EntityID:  entityID,
		NewValues: values,
		Status:    status,
	})
}

func generateNumber(now time.Time) string {
	return fmt.Sprintf("PO-%s", now.Format("20060102-150405.000000"))
}
