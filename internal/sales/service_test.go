package sales

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-ims/meridian-ims/internal/catalog"
	"github.com/meridian-ims/meridian-ims/internal/ledger"
	"github.com/meridian-ims/meridian-ims/internal/shared"
)

// memoryState is the committed view of the fake store.
type memoryState struct {
	products     map[string]catalog.Product
	variants     map[string]catalog.Variant
	customers    map[string]Customer
	orders       map[string]Order
	items        []OrderItem
	transactions []ledger.Transaction
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		products:  map[string]catalog.Product{},
		variants:  map[string]catalog.Variant{},
		customers: map[string]Customer{},
		orders:    map[string]Order{},
	}
	for k, v := range s.products {
		out.products[k] = v
	}
	for k, v := range s.variants {
		out.variants[k] = v
	}
	for k, v := range s.customers {
		out.customers[k] = v
	}
	for k, v := range s.orders {
		out.orders[k] = v
	}
	out.items = append(out.items, s.items...)
	out.transactions = append(out.transactions, s.transactions...)
	return out
}

// memoryRepo emulates the PostgreSQL repository with real rollback: the
// callback mutates a copy that only becomes visible when it succeeds.
type memoryRepo struct {
	state memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryState{
		products:  map[string]catalog.Product{},
		variants:  map[string]catalog.Variant{},
		customers: map[string]Customer{},
		orders:    map[string]Order{},
	}}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{state: m.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

func (m *memoryRepo) GetOrder(ctx context.Context, id string) (Order, []OrderItem, error) {
	order, ok := m.state.orders[id]
	if !ok {
		return Order{}, nil, shared.ErrNotFound
	}
	var items []OrderItem
	for _, item := range m.state.items {
		if item.OrderID == id {
			items = append(items, item)
		}
	}
	return order, items, nil
}

func (m *memoryRepo) ListOrders(ctx context.Context, limit, offset int) ([]Order, error) {
	var out []Order
	for _, order := range m.state.orders {
		out = append(out, order)
	}
	return out, nil
}

type memoryTx struct {
	state memoryState
}

func (t *memoryTx) UpsertCustomerByEmail(ctx context.Context, c Customer) (Customer, error) {
	if existing, ok := t.state.customers[c.Email]; ok {
		existing.Name = c.Name
		existing.Phone = c.Phone
		t.state.customers[c.Email] = existing
		return existing, nil
	}
	t.state.customers[c.Email] = c
	return c, nil
}

func (t *memoryTx) InsertOrder(ctx context.Context, o Order) error {
	t.state.orders[o.ID] = o
	return nil
}

func (t *memoryTx) InsertOrderItem(ctx context.Context, item OrderItem) error {
	t.state.items = append(t.state.items, item)
	return nil
}

func (t *memoryTx) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	p, ok := t.state.products[id]
	if !ok {
		return catalog.Product{}, shared.ErrNotFound
	}
	return p, nil
}

func (t *memoryTx) GetVariant(ctx context.Context, id string) (catalog.Variant, error) {
	v, ok := t.state.variants[id]
	if !ok {
		return catalog.Variant{}, shared.ErrNotFound
	}
	return v, nil
}

func (t *memoryTx) ListVariants(ctx context.Context, productID string) ([]catalog.Variant, error) {
	var out []catalog.Variant
	for _, v := range t.state.variants {
		if v.ProductID == productID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (t *memoryTx) UpdateProductDerived(ctx context.Context, productID string, status catalog.Status, price float64, quantity int) error {
	p, ok := t.state.products[productID]
	if !ok {
		return shared.ErrNotFound
	}
	p.Status = status
	p.Price = price
	p.Quantity = quantity
	t.state.products[productID] = p
	return nil
}

func (t *memoryTx) AdjustQuantity(ctx context.Context, ref ledger.EntityRef, delta int) (int, error) {
	if ref.VariantID != "" {
		v, ok := t.state.variants[ref.VariantID]
		if !ok {
			return 0, shared.ErrNotFound
		}
		v.Quantity += delta
		t.state.variants[ref.VariantID] = v
		return v.Quantity, nil
	}
	p, ok := t.state.products[ref.ProductID]
	if !ok {
		return 0, shared.ErrNotFound
	}
	p.Quantity += delta
	t.state.products[ref.ProductID] = p
	return p.Quantity, nil
}

func (t *memoryTx) AdjustQuantityGuarded(ctx context.Context, ref ledger.EntityRef, delta int) (int, error) {
	if ref.VariantID != "" {
		v, ok := t.state.variants[ref.VariantID]
		if !ok {
			return 0, shared.ErrNotFound
		}
		if v.Quantity+delta < 0 {
			return 0, shared.ErrInsufficientStock
		}
		v.Quantity += delta
		t.state.variants[ref.VariantID] = v
		return v.Quantity, nil
	}
	p, ok := t.state.products[ref.ProductID]
	if !ok {
		return 0, shared.ErrNotFound
	}
	if p.Quantity+delta < 0 {
		return 0, shared.ErrInsufficientStock
	}
	p.Quantity += delta
	t.state.products[ref.ProductID] = p
	return p.Quantity, nil
}

func (t *memoryTx) InsertTransaction(ctx context.Context, entry ledger.Transaction) error {
	t.state.transactions = append(t.state.transactions, entry)
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
	return NewService(repo, ledger.NewService(nil, nil), allowAll{}, nil)
}

func saleInput() SaleInput {
	return SaleInput{
		ProductID:     "p1",
		Quantity:      2,
		TotalAmount:   50,
		CustomerName:  "Ada",
		CustomerEmail: "ada@example.com",
		ActorID:       "actor-1",
	}
}

func TestRecordSaleDecrementsStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.state.products["p1"] = catalog.Product{ID: "p1", HasVariants: true, ReorderPoint: intPtr(2)}
	repo.state.variants["v1"] = catalog.Variant{ID: "v1", ProductID: "p1", Quantity: 10, Price: 25, IsActive: true}
	svc := newTestService(repo)
	ctx := context.Background()

	input := saleInput()
	input.VariantID = "v1"
	order, err := svc.RecordSale(ctx, input)
	require.NoError(t, err)
	require.Equal(t, OrderStatusCompleted, order.Status)

	require.Equal(t, 8, repo.state.variants["v1"].Quantity)
	require.Len(t, repo.state.transactions, 1)
	require.Equal(t, ledger.TypeSale, repo.state.transactions[0].Type)
	require.Equal(t, -2, repo.state.transactions[0].Quantity)
	require.Equal(t, order.Number, repo.state.transactions[0].Reference)

	// Unit price derived from the order total.
	_, items, err := svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, float64(25), items[0].UnitPrice)

	// Product derived state recomputed from the surviving stock.
	product := repo.state.products["p1"]
	require.Equal(t, 8, product.Quantity)
	require.Equal(t, catalog.StatusAvailable, product.Status)
}

func TestOversellRejectedLeavesNothingBehind(t *testing.T) {
	repo := newMemoryRepo()
	repo.state.products["p1"] = catalog.Product{ID: "p1", HasVariants: true}
	repo.state.variants["v1"] = catalog.Variant{ID: "v1", ProductID: "p1", Quantity: 1, Price: 25, IsActive: true}
	svc := newTestService(repo)

	input := saleInput()
	input.VariantID = "v1"
	input.Quantity = 5
	_, err := svc.RecordSale(context.Background(), input)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	require.Equal(t, 1, repo.state.variants["v1"].Quantity)
	require.Empty(t, repo.state.orders)
	require.Empty(t, repo.state.items)
	require.Empty(t, repo.state.transactions)
	require.Empty(t, repo.state.customers)
}

func TestDepleteToZeroFlipsStatus(t *testing.T) {
	repo := newMemoryRepo()
	repo.state.products["p1"] = catalog.Product{ID: "p1", HasVariants: true}
	repo.state.variants["v1"] = catalog.Variant{ID: "v1", ProductID: "p1", Quantity: 2, Price: 25, IsActive: true}
	svc := newTestService(repo)

	input := saleInput()
	input.VariantID = "v1"
	_, err := svc.RecordSale(context.Background(), input)
	require.NoError(t, err)

	require.Equal(t, 0, repo.state.variants["v1"].Quantity)
	require.Equal(t, catalog.StatusStockOut, repo.state.products["p1"].Status)
}

func TestAutoVariantSelection(t *testing.T) {
	repo := newMemoryRepo()
	repo.state.products["p1"] = catalog.Product{ID: "p1", HasVariants: true}
	// Inactive with plenty, active with too little, active with enough.
	repo.state.variants["v1"] = catalog.Variant{ID: "v1", ProductID: "p1", Quantity: 50, Price: 20, IsActive: false}
	repo.state.variants["v2"] = catalog.Variant{ID: "v2", ProductID: "p1", Quantity: 1, Price: 22, IsActive: true}
	repo.state.variants["v3"] = catalog.Variant{ID: "v3", ProductID: "p1", Quantity: 9, Price: 24, IsActive: true}
	svc := newTestService(repo)

	_, err := svc.RecordSale(context.Background(), saleInput())
	require.NoError(t, err)
	require.Equal(t, 7, repo.state.variants["v3"].Quantity)
	require.Equal(t, 50, repo.state.variants["v1"].Quantity)
	require.Equal(t, 1, repo.state.variants["v2"].Quantity)
}

func TestNoCoveringVariantRejected(t *testing.T) {
	repo := newMemoryRepo()
	repo.state.products["p1"] = catalog.Product{ID: "p1", HasVariants: true}
	repo.state.variants["v1"] = catalog.Variant{ID: "v1", ProductID: "p1", Quantity: 1, Price: 22, IsActive: true}
	svc := newTestService(repo)

	_, err := svc.RecordSale(context.Background(), saleInput())
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
}

func TestExplicitVariantMustBelongToProduct(t *testing.T) {
	repo := newMemoryRepo()
	repo.state.products["p1"] = catalog.Product{ID: "p1", HasVariants: true}
	repo.state.variants["v9"] = catalog.Variant{ID: "v9", ProductID: "p2", Quantity: 10, IsActive: true}
	svc := newTestService(repo)

	input := saleInput()
	input.VariantID = "v9"
	_, err := svc.RecordSale(context.Background(), input)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestVariantlessProductSellsFromProductRow(t *testing.T) {
	repo := newMemoryRepo()
	repo.state.products["p1"] = catalog.Product{ID: "p1", Quantity: 3, Price: 10}
	svc := newTestService(repo)

	order, err := svc.RecordSale(context.Background(), saleInput())
	require.NoError(t, err)
	require.Equal(t, 1, repo.state.products["p1"].Quantity)
	require.Len(t, repo.state.transactions, 1)
	require.Empty(t, repo.state.transactions[0].VariantID)
	require.Equal(t, order.Number, repo.state.transactions[0].Reference)
}

func TestCustomerUpsertedByEmail(t *testing.T) {
	repo := newMemoryRepo()
	repo.state.products["p1"] = catalog.Product{ID: "p1", Quantity: 10, Price: 10}
	svc := newTestService(repo)
	ctx := context.Background()

	first, err := svc.RecordSale(ctx, saleInput())
	require.NoError(t, err)

	input := saleInput()
	input.CustomerName = "Ada L."
	second, err := svc.RecordSale(ctx, input)
	require.NoError(t, err)

	require.Equal(t, first.CustomerID, second.CustomerID)
	require.Len(t, repo.state.customers, 1)
	require.Equal(t, "Ada L.", repo.state.customers["ada@example.com"].Name)
}

func TestRecordSaleForbidden(t *testing.T) {
	repo := newMemoryRepo()
	repo.state.products["p1"] = catalog.Product{ID: "p1", Quantity: 10}
	svc := NewService(repo, ledger.NewService(nil, nil), denyAll{}, nil)

	_, err := svc.RecordSale(context.Background(), saleInput())
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestRecordSaleValidation(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	ctx := context.Background()

	input := saleInput()
	input.Quantity = 0
	_, err := svc.RecordSale(ctx, input)
	require.ErrorIs(t, err, shared.ErrValidation)

	input = saleInput()
	input.CustomerEmail = ""
	_, err = svc.RecordSale(ctx, input)
	require.ErrorIs(t, err, shared.ErrValidation)

	input = saleInput()
	input.ProductID = ""
	_, err = svc.RecordSale(ctx, input)
	require.ErrorIs(t, err, shared.ErrValidation)
}
