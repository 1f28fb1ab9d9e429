package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-ims/meridian-ims/internal/shared"
)

// memoryRepo emulates the PostgreSQL repository including transaction
// rollback: mutations land on a copy that only replaces the live state when
// the callback succeeds.
type memoryRepo struct {
	quantities   map[EntityRef]int
	transactions []Transaction
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{quantities: map[EntityRef]int{}}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{quantities: map[EntityRef]int{}}
	for ref, qty := range m.quantities {
		tx.quantities[ref] = qty
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.quantities = tx.quantities
	m.transactions = append(m.transactions, tx.inserted...)
	return nil
}

func (m *memoryRepo) ListTransactions(ctx context.Context, filter ListFilter) ([]Transaction, error) {
	var out []Transaction
	for _, entry := range m.transactions {
		if filter.ProductID != "" && entry.ProductID != filter.ProductID {
			continue
		}
		if filter.VariantID != "" && entry.VariantID != filter.VariantID {
			continue
		}
		if filter.Type != "" && entry.Type != filter.Type {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// sum returns the signed transaction total for one entity.
func (m *memoryRepo) sum(ref EntityRef) int {
	total := 0
	for _, entry := range m.transactions {
		if entry.ProductID == ref.ProductID && entry.VariantID == ref.VariantID {
			total += entry.Quantity
		}
	}
	return total
}

type memoryTx struct {
	quantities map[EntityRef]int
	inserted   []Transaction
}

func (t *memoryTx) AdjustQuantity(ctx context.Context, ref EntityRef, delta int) (int, error) {
	qty, ok := t.quantities[ref]
	if !ok {
		return 0, shared.ErrNotFound
	}
	qty += delta
	t.quantities[ref] = qty
	return qty, nil
}

func (t *memoryTx) AdjustQuantityGuarded(ctx context.Context, ref EntityRef, delta int) (int, error) {
	qty, ok := t.quantities[ref]
	if !ok {
		return 0, shared.ErrNotFound
	}
	if qty+delta < 0 {
		return 0, shared.ErrInsufficientStock
	}
	qty += delta
	t.quantities[ref] = qty
	return qty, nil
}

func (t *memoryTx) InsertTransaction(ctx context.Context, entry Transaction) error {
	t.inserted = append(t.inserted, entry)
	return nil
}

var variantA = EntityRef{ProductID: "p1", VariantID: "v1"}

func TestApplyDeltaHappyPath(t *testing.T) {
	repo := newMemoryRepo()
	repo.quantities[variantA] = 0
	svc := NewService(repo, nil)
	ctx := context.Background()

	entry, err := svc.ApplyDelta(ctx, DeltaInput{Entity: variantA, Type: TypePurchase, Quantity: 10, Reference: "PO-100"})
	require.NoError(t, err)
	require.Equal(t, 10, entry.QuantityAfter)

	entry, err = svc.ApplyDelta(ctx, DeltaInput{Entity: variantA, Type: TypeSale, Quantity: -3, Reference: "SO-200"})
	require.NoError(t, err)
	require.Equal(t, 7, entry.QuantityAfter)
	require.Equal(t, 7, repo.quantities[variantA])
}

func TestOversellRejectedAndStateUntouched(t *testing.T) {
	repo := newMemoryRepo()
	repo.quantities[variantA] = 5
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.ApplyDelta(ctx, DeltaInput{Entity: variantA, Type: TypeSale, Quantity: -8})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, 5, repo.quantities[variantA])
	require.Empty(t, repo.transactions)
}

func TestDepleteToZero(t *testing.T) {
	repo := newMemoryRepo()
	repo.quantities[variantA] = 5
	svc := NewService(repo, nil)
	ctx := context.Background()

	entry, err := svc.ApplyDelta(ctx, DeltaInput{Entity: variantA, Type: TypeSale, Quantity: -5})
	require.NoError(t, err)
	require.Equal(t, 0, entry.QuantityAfter)
	require.Equal(t, 0, repo.quantities[variantA])
}

func TestTransactionSumEqualsQuantity(t *testing.T) {
	repo := newMemoryRepo()
	repo.quantities[variantA] = 0
	svc := NewService(repo, nil)
	ctx := context.Background()

	deltas := []DeltaInput{
		{Entity: variantA, Type: TypePurchase, Quantity: 20},
		{Entity: variantA, Type: TypeSale, Quantity: -4},
		{Entity: variantA, Type: TypeAdjustment, Quantity: -1},
		{Entity: variantA, Type: TypeReturn, Quantity: 2},
	}
	for _, d := range deltas {
		_, err := svc.ApplyDelta(ctx, d)
		require.NoError(t, err)
	}
	require.Equal(t, repo.quantities[variantA], repo.sum(variantA))
	require.Equal(t, 17, repo.quantities[variantA])
}

func TestCompensatingAdjustmentMayGoNegative(t *testing.T) {
	repo := newMemoryRepo()
	repo.quantities[variantA] = 2
	svc := NewService(repo, nil)
	ctx := context.Background()

	// Not compensating: guarded, rejected.
	_, err := svc.ApplyDelta(ctx, DeltaInput{Entity: variantA, Type: TypeAdjustment, Quantity: -5})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	// Compensating: allowed below zero.
	entry, err := svc.ApplyDelta(ctx, DeltaInput{Entity: variantA, Type: TypeAdjustment, Quantity: -5, Compensating: true})
	require.NoError(t, err)
	require.Equal(t, -3, entry.QuantityAfter)
}

func TestCompensatingSaleRejected(t *testing.T) {
	repo := newMemoryRepo()
	repo.quantities[variantA] = 10
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.ApplyDelta(ctx, DeltaInput{Entity: variantA, Type: TypeSale, Quantity: -2, Compensating: true})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestApplyDeltaValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.ApplyDelta(ctx, DeltaInput{Entity: variantA, Type: TypePurchase, Quantity: 0})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.ApplyDelta(ctx, DeltaInput{Entity: EntityRef{}, Type: TypePurchase, Quantity: 1})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.ApplyDelta(ctx, DeltaInput{Entity: variantA, Type: TransactionType("UNKNOWN"), Quantity: 1})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUnknownEntityNotFound(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.ApplyDelta(ctx, DeltaInput{Entity: variantA, Type: TypePurchase, Quantity: 5})
	require.ErrorIs(t, err, shared.ErrNotFound)
}
