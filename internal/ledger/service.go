package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-ims/meridian-ims/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListTransactions(ctx context.Context, filter ListFilter) ([]Transaction, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the single writer of stock quantities. Every movement flows
// through Apply, which pairs the quantity mutation with exactly one
// transaction entry.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	observer func(movementType string)
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// SetMovementObserver registers a callback invoked once per applied movement,
// used to feed the stock movement counter.
func (s *Service) SetMovementObserver(fn func(movementType string)) {
	s.observer = fn
}

// Apply posts one signed delta inside the caller's transaction. Negative
// deltas go through the guarded update unless the input is an explicit
// compensating correction; SALE movements are always guarded.
func (s *Service) Apply(ctx context.Context, tx TxRepository, input DeltaInput) (Transaction, error) {
	if err := validateDelta(input); err != nil {
		return Transaction{}, err
	}

	var after int
	var err error
	if input.Quantity < 0 && !(input.Compensating && input.Type != TypeSale) {
		after, err = tx.AdjustQuantityGuarded(ctx, input.Entity, input.Quantity)
	} else {
		after, err = tx.AdjustQuantity(ctx, input.Entity, input.Quantity)
	}
	if err != nil {
		return Transaction{}, err
	}

	entry := Transaction{
		ID:            uuid.NewString(),
		Type:          input.Type,
		ProductID:     input.Entity.ProductID,
		VariantID:     input.Entity.VariantID,
		Quantity:      input.Quantity,
		QuantityAfter: after,
		Reference:     input.Reference,
		Notes:         input.Notes,
		CreatedBy:     input.ActorID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := tx.InsertTransaction(ctx, entry); err != nil {
		return Transaction{}, err
	}
	if s.observer != nil {
		s.observer(string(entry.Type))
	}
	return entry, nil
}

// ApplyDelta posts one signed delta in its own transaction.
func (s *Service) ApplyDelta(ctx context.Context, input DeltaInput) (Transaction, error) {
	var entry Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var applyErr error
		entry, applyErr = s.Apply(ctx, tx, input)
		return applyErr
	})
	if err != nil {
		return Transaction{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   fmt.Sprintf("ledger:%s", input.Type),
			Entity:   "inventory_transaction",
			EntityID: entry.ID,
			NewValues: map[string]any{
				"product_id":     entry.ProductID,
				"variant_id":     entry.VariantID,
				"quantity":       entry.Quantity,
				"quantity_after": entry.QuantityAfter,
				"reference":      entry.Reference,
			},
			Status: shared.AuditStatusSuccess,
		})
	}
	return entry, nil
}

// ListTransactions returns the movement history for reconstruction and audit
// reads.
func (s *Service) ListTransactions(ctx context.Context, filter ListFilter) ([]Transaction, error) {
	return s.repo.ListTransactions(ctx, filter)
}

func validateDelta(input DeltaInput) error {
	if input.Entity.ProductID == "" {
		return fmt.Errorf("%w: product id required", shared.ErrValidation)
	}
	if input.Quantity == 0 {
		return fmt.Errorf("%w: quantity must be non-zero", shared.ErrValidation)
	}
	if !input.Type.Valid() {
		return fmt.Errorf("%w: unknown transaction type %q", shared.ErrValidation, input.Type)
	}
	if input.Compensating && input.Type == TypeSale {
		return fmt.Errorf("%w: sale movements cannot be compensating", shared.ErrValidation)
	}
	return nil
}
