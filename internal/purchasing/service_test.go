package purchasing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-ims/meridian-ims/internal/catalog"
	"github.com/meridian-ims/meridian-ims/internal/ledger"
	"github.com/meridian-ims/meridian-ims/internal/shared"
)

// memoryRepo backs the service with in-memory state. It implements both the
// repository port and the transactional port; the ledger methods mutate the
// same product/variant rows the receiving workflow reads back.
type memoryRepo struct {
	products     map[string]*catalog.Product
	variants     map[string]*catalog.Variant
	orders       map[string]*PurchaseOrder
	items        map[string][]*POItem
	transactions []ledger.Transaction
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products: map[string]*catalog.Product{},
		variants: map[string]*catalog.Variant{},
		orders:   map[string]*PurchaseOrder{},
		items:    map[string][]*POItem{},
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) CreatePO(ctx context.Context, po PurchaseOrder, items []POItem) error {
	m.orders[po.ID] = &po
	for i := range items {
		item := items[i]
		m.items[po.ID] = append(m.items[po.ID], &item)
	}
	return nil
}

func (m *memoryRepo) GetPO(ctx context.Context, id string) (PurchaseOrder, []POItem, error) {
	po, ok := m.orders[id]
	if !ok {
		return PurchaseOrder{}, nil, shared.ErrNotFound
	}
	items := make([]POItem, 0, len(m.items[id]))
	for _, item := range m.items[id] {
		items = append(items, *item)
	}
	return *po, items, nil
}

func (m *memoryRepo) ListPOs(ctx context.Context, status POStatus, limit, offset int) ([]PurchaseOrder, error) {
	var out []PurchaseOrder
	for _, po := range m.orders {
		if status != "" && po.Status != status {
			continue
		}
		out = append(out, *po)
	}
	return out, nil
}

func (m *memoryRepo) UpdateStatus(ctx context.Context, poID string, status POStatus) error {
	po, ok := m.orders[poID]
	if !ok {
		return shared.ErrNotFound
	}
	po.Status = status
	return nil
}

func (m *memoryRepo) GetPOForUpdate(ctx context.Context, id string) (PurchaseOrder, []POItem, error) {
	return m.GetPO(ctx, id)
}

func (m *memoryRepo) SetItemReceived(ctx context.Context, itemID string, received int) error {
	for _, items := range m.items {
		for _, item := range items {
			if item.ID == itemID {
				item.ReceivedQuantity = received
				return nil
			}
		}
	}
	return shared.ErrNotFound
}

func (m *memoryRepo) SetVariantCost(ctx context.Context, variantID string, cost float64) error {
	v, ok := m.variants[variantID]
	if !ok {
		return shared.ErrNotFound
	}
	v.CostPrice = cost
	return nil
}

func (m *memoryRepo) SetProductCost(ctx context.Context, productID string, cost float64) error {
	p, ok := m.products[productID]
	if !ok {
		return shared.ErrNotFound
	}
	p.CostPrice = cost
	return nil
}

func (m *memoryRepo) MarkReceived(ctx context.Context, poID string, receivedAt time.Time) error {
	po, ok := m.orders[poID]
	if !ok {
		return shared.ErrNotFound
	}
	po.Status = POStatusReceived
	po.ReceivedAt = &receivedAt
	return nil
}

func (m *memoryRepo) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return catalog.Product{}, shared.ErrNotFound
	}
	return *p, nil
}

func (m *memoryRepo) ListVariants(ctx context.Context, productID string) ([]catalog.Variant, error) {
	var out []catalog.Variant
	for _, v := range m.variants {
		if v.ProductID == productID {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (m *memoryRepo) UpdateProductDerived(ctx context.Context, productID string, status catalog.Status, price float64, quantity int) error {
	p, ok := m.products[productID]
	if !ok {
		return shared.ErrNotFound
	}
	p.Status = status
	p.Price = price
	p.Quantity = quantity
	return nil
}

func (m *memoryRepo) AdjustQuantity(ctx context.Context, ref ledger.EntityRef, delta int) (int, error) {
	if ref.VariantID != "" {
		v, ok := m.variants[ref.VariantID]
		if !ok {
			return 0, shared.ErrNotFound
		}
		v.Quantity += delta
		return v.Quantity, nil
	}
	p, ok := m.products[ref.ProductID]
	if !ok {
		return 0, shared.ErrNotFound
	}
	p.Quantity += delta
	return p.Quantity, nil
}

func (m *memoryRepo) AdjustQuantityGuarded(ctx context.Context, ref ledger.EntityRef, delta int) (int, error) {
	if ref.VariantID != "" {
		v, ok := m.variants[ref.VariantID]
		if !ok {
			return 0, shared.ErrNotFound
		}
		if v.Quantity+delta < 0 {
			return 0, shared.ErrInsufficientStock
		}
		v.Quantity += delta
		return v.Quantity, nil
	}
	p, ok := m.products[ref.ProductID]
	if !ok {
		return 0, shared.ErrNotFound
	}
	if p.Quantity+delta < 0 {
		return 0, shared.ErrInsufficientStock
	}
	p.Quantity += delta
	return p.Quantity, nil
}

func (m *memoryRepo) InsertTransaction(ctx context.Context, entry ledger.Transaction) error {
	m.transactions = append(m.transactions, entry)
	return nil
}

type allowAll struct{}

func (allowAll) CanPerform(ctx context.Context, userID, resource, action string) (bool, error) {
	return true, nil
}

type denyAll struct{}

func (denyAll) CanPerform(ctx context.Context, userID, resource, action string) (bool, error) {
	return false, nil
}

func intPtr(v int) *int { return &v }

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, ledger.NewService(nil, nil), allowAll{}, nil, nil)
}

// seedVariantProduct sets up a variant-bearing product with two inactive-stock
// variants and a submitted PO covering both.
func seedVariantProduct(t *testing.T, repo *memoryRepo, svc *Service) PurchaseOrder {
	t.Helper()
	repo.products["p1"] = &catalog.Product{
		ID: "p1", Status: catalog.StatusStockOut, HasVariants: true, ReorderPoint: intPtr(5),
	}
	repo.variants["v1"] = &catalog.Variant{ID: "v1", ProductID: "p1", Price: 25, IsActive: true}
	repo.variants["v2"] = &catalog.Variant{ID: "v2", ProductID: "p1", Price: 30, IsActive: true}

	po, err := svc.Create(context.Background(), CreatePOInput{
		SupplierID: "sup-1",
		ActorID:    "actor-1",
		Items: []POItemInput{
			{ProductID: "p1", VariantID: "v1", Quantity: 10, CostPerUnit: 12.5},
			{ProductID: "p1", VariantID: "v2", Quantity: 4, CostPerUnit: 14},
		},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Submit(context.Background(), po.ID, "actor-1"))
	return po
}

func TestReceiveBooksStockAndRecomputesProduct(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	po := seedVariantProduct(t, repo, svc)
	ctx := context.Background()

	result, err := svc.Receive(ctx, po.ID, "actor-1")
	require.NoError(t, err)
	require.Equal(t, 2, result.ItemsReceived)
	require.Equal(t, 2, result.TransactionsCreated)

	require.Equal(t, 10, repo.variants["v1"].Quantity)
	require.Equal(t, 4, repo.variants["v2"].Quantity)
	require.Equal(t, 12.5, repo.variants["v1"].CostPrice)
	require.Equal(t, float64(14), repo.variants["v2"].CostPrice)

	// Every item fully received.
	_, items, err := svc.Get(ctx, po.ID)
	require.NoError(t, err)
	for _, item := range items {
		require.Equal(t, item.OrderedQuantity, item.ReceivedQuantity)
	}

	// Derived product state: sum of variant quantities, min active price.
	product := repo.products["p1"]
	require.Equal(t, 14, product.Quantity)
	require.Equal(t, float64(25), product.Price)
	require.Equal(t, catalog.StatusAvailable, product.Status)

	got, _, err := svc.Get(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, POStatusReceived, got.Status)
	require.NotNil(t, got.ReceivedAt)

	require.Len(t, repo.transactions, 2)
	for _, entry := range repo.transactions {
		require.Equal(t, ledger.TypePurchase, entry.Type)
		require.Equal(t, got.Number, entry.Reference)
	}
}

func TestReceiveTwiceRejectedWithoutNewTransactions(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	po := seedVariantProduct(t, repo, svc)
	ctx := context.Background()

	_, err := svc.Receive(ctx, po.ID, "actor-1")
	require.NoError(t, err)
	require.Len(t, repo.transactions, 2)

	_, err = svc.Receive(ctx, po.ID, "actor-1")
	require.ErrorIs(t, err, shared.ErrAlreadyReceived)
	require.Len(t, repo.transactions, 2)
	require.Equal(t, 10, repo.variants["v1"].Quantity)
}

func TestReceiveFromDraftWithoutSubmit(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	repo.products["p1"] = &catalog.Product{ID: "p1", Status: catalog.StatusStockOut}
	po, err := svc.Create(ctx, CreatePOInput{
		SupplierID: "sup-1",
		ActorID:    "actor-1",
		Items:      []POItemInput{{ProductID: "p1", Quantity: 3, CostPerUnit: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, POStatusDraft, po.Status)

	// Submission is optional; a draft order can be received directly.
	result, err := svc.Receive(ctx, po.ID, "actor-1")
	require.NoError(t, err)
	require.Equal(t, 1, result.ItemsReceived)
	require.Equal(t, 3, repo.products["p1"].Quantity)

	got, _, err := svc.Get(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, POStatusReceived, got.Status)
}

func TestCreateRejectsVariantProductItemWithoutVariant(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	repo.products["p1"] = &catalog.Product{ID: "p1", HasVariants: true}
	repo.variants["v1"] = &catalog.Variant{ID: "v1", ProductID: "p1", IsActive: true}

	_, err := svc.Create(context.Background(), CreatePOInput{
		SupplierID: "sup-1",
		ActorID:    "actor-1",
		Items:      []POItemInput{{ProductID: "p1", Quantity: 5, CostPerUnit: 2}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, repo.orders)
}

func TestReceiveRejectsVariantProductLineWithoutVariant(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	repo.products["p1"] = &catalog.Product{ID: "p1", HasVariants: true, Status: catalog.StatusStockOut}
	repo.variants["v1"] = &catalog.Variant{ID: "v1", ProductID: "p1", IsActive: true}

	// A line predating the product's variants sneaks past creation-time
	// validation; receiving must still refuse to book onto the parent row.
	repo.orders["po-1"] = &PurchaseOrder{ID: "po-1", Number: "PO-1", SupplierID: "sup-1", Status: POStatusSubmitted}
	repo.items["po-1"] = []*POItem{{
		ID: "item-1", PurchaseOrderID: "po-1", ProductID: "p1", OrderedQuantity: 5, CostPerUnit: 2,
	}}

	_, err := svc.Receive(ctx, "po-1", "actor-1")
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, repo.transactions)
	require.Equal(t, 0, repo.products["p1"].Quantity)
	require.Equal(t, 0, repo.items["po-1"][0].ReceivedQuantity)

	got, _, err := svc.Get(ctx, "po-1")
	require.NoError(t, err)
	require.Equal(t, POStatusSubmitted, got.Status)
}

func TestReceiveVariantlessProduct(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	repo.products["p1"] = &catalog.Product{ID: "p1", Status: catalog.StatusStockOut, Price: 9, ReorderPoint: intPtr(10)}

	po, err := svc.Create(ctx, CreatePOInput{
		SupplierID: "sup-1",
		ActorID:    "actor-1",
		Items:      []POItemInput{{ProductID: "p1", Quantity: 6, CostPerUnit: 4}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Submit(ctx, po.ID, "actor-1"))

	_, err = svc.Receive(ctx, po.ID, "actor-1")
	require.NoError(t, err)

	product := repo.products["p1"]
	require.Equal(t, 6, product.Quantity)
	require.Equal(t, float64(4), product.CostPrice)
	// At or below the reorder point: low, not available.
	require.Equal(t, catalog.StatusStockLow, product.Status)
}

func TestReceiveForbiddenWithoutPermission(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, ledger.NewService(nil, nil), denyAll{}, nil, nil)

	_, err := svc.Receive(context.Background(), "whatever", "actor-1")
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestCloseRequiresReceived(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	po := seedVariantProduct(t, repo, svc)
	ctx := context.Background()

	require.ErrorIs(t, svc.Close(ctx, po.ID, "actor-1"), shared.ErrValidation)

	_, err := svc.Receive(ctx, po.ID, "actor-1")
	require.NoError(t, err)
	require.NoError(t, svc.Close(ctx, po.ID, "actor-1"))

	got, _, err := svc.Get(ctx, po.ID)
	require.NoError(t, err)
	require.Equal(t, POStatusClosed, got.Status)

	// Receiving a closed order is still a duplicate.
	_, err = svc.Receive(ctx, po.ID, "actor-1")
	require.ErrorIs(t, err, shared.ErrAlreadyReceived)
}

func TestCreateValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreatePOInput{ActorID: "actor-1"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, CreatePOInput{SupplierID: "sup-1", ActorID: "actor-1"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, CreatePOInput{
		SupplierID: "sup-1", ActorID: "actor-1",
		Items: []POItemInput{{ProductID: "p1", Quantity: 0}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}
