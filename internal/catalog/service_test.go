package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-ims/meridian-ims/internal/shared"
)

type memoryRepo struct {
	products map[string]Product
	variants map[string]Variant
	listErr  error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: map[string]Product{}, variants: map[string]Variant{}}
}

func (m *memoryRepo) GetProduct(ctx context.Context, id string) (Product, error) {
	p, ok := m.products[id]
	if !ok {
		return Product{}, shared.ErrNotFound
	}
	return p, nil
}

func (m *memoryRepo) ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var out []Product
	for _, p := range m.products {
		if filters.Status != "" && p.Status != filters.Status {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *memoryRepo) CreateProduct(ctx context.Context, p Product) error {
	for _, existing := range m.products {
		if existing.SKU == p.SKU {
			return shared.ErrDuplicate
		}
	}
	m.products[p.ID] = p
	return nil
}

func (m *memoryRepo) UpdateProduct(ctx context.Context, p Product) error {
	existing, ok := m.products[p.ID]
	if !ok {
		return shared.ErrNotFound
	}
	p.Status = existing.Status
	p.Quantity = existing.Quantity
	m.products[p.ID] = p
	return nil
}

func (m *memoryRepo) ListVariants(ctx context.Context, productID string) ([]Variant, error) {
	var out []Variant
	for _, v := range m.variants {
		if v.ProductID == productID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *memoryRepo) GetVariant(ctx context.Context, id string) (Variant, error) {
	v, ok := m.variants[id]
	if !ok {
		return Variant{}, shared.ErrNotFound
	}
	return v, nil
}

func (m *memoryRepo) CreateVariant(ctx context.Context, v Variant) error {
	m.variants[v.ID] = v
	return nil
}

func (m *memoryRepo) UpdateVariant(ctx context.Context, v Variant) error {
	existing, ok := m.variants[v.ID]
	if !ok {
		return shared.ErrNotFound
	}
	v.Quantity = existing.Quantity
	m.variants[v.ID] = v
	return nil
}

func TestCreateProductStartsStockedOut(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	p, err := svc.CreateProduct(context.Background(), CreateProductInput{SKU: "SKU-1", Name: "Widget", Price: 10})
	require.NoError(t, err)
	require.Equal(t, StatusStockOut, p.Status)
	require.Equal(t, 0, p.Quantity)

	_, err = svc.CreateProduct(context.Background(), CreateProductInput{SKU: "SKU-1", Name: "Clone", Price: 1})
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestCreateProductValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, CreateProductInput{Name: "x", Price: 1})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateProduct(ctx, CreateProductInput{SKU: "S", Price: 1})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateProduct(ctx, CreateProductInput{SKU: "S", Name: "x", Price: -1})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestGetProductViewMergesAggregate(t *testing.T) {
	repo := newMemoryRepo()
	repo.products["p1"] = Product{ID: "p1", SKU: "S", Name: "N", HasVariants: true, Price: 99, Status: StatusAvailable}
	repo.variants["v1"] = Variant{ID: "v1", ProductID: "p1", Price: 10, Quantity: 5, IsActive: true}
	repo.variants["v2"] = Variant{ID: "v2", ProductID: "p1", Price: 15, Quantity: 0, IsActive: true}
	repo.variants["v3"] = Variant{ID: "v3", ProductID: "p1", Price: 5, Quantity: 3, IsActive: false}
	svc := NewService(repo, nil)

	view, err := svc.GetProductView(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, float64(10), view.Price)
	require.Equal(t, 5, view.Quantity)
	require.Equal(t, float64(10), view.MinPrice)
	require.Equal(t, float64(15), view.MaxPrice)
	require.Len(t, view.Variants, 3)
}

func TestGetProductViewVariantless(t *testing.T) {
	repo := newMemoryRepo()
	repo.products["p1"] = Product{ID: "p1", SKU: "S", Name: "N", Price: 7, Quantity: 4, Status: StatusAvailable}
	svc := NewService(repo, nil)

	view, err := svc.GetProductView(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, float64(7), view.Price)
	require.Equal(t, 4, view.Quantity)
	require.Empty(t, view.Variants)
}

// ctxCheckingRepo surfaces caller cancellation the way a real driver would.
type ctxCheckingRepo struct {
	*memoryRepo
}

func (r ctxCheckingRepo) GetProduct(ctx context.Context, id string) (Product, error) {
	if err := ctx.Err(); err != nil {
		return Product{}, err
	}
	return r.memoryRepo.GetProduct(ctx, id)
}

func TestGetProductViewSurvivesCallerCancellation(t *testing.T) {
	repo := newMemoryRepo()
	repo.products["p1"] = Product{ID: "p1", SKU: "S", Name: "N", Price: 7, Quantity: 4, Status: StatusAvailable}
	svc := NewService(ctxCheckingRepo{repo}, nil)

	// A cancelled leader must not poison the shared load for other callers
	// of the same product.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	view, err := svc.GetProductView(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 4, view.Quantity)
}

func TestCreateVariantRequiresProduct(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	_, err := svc.CreateVariant(context.Background(), CreateVariantInput{ProductID: "missing", SKU: "V", Price: 1})
	require.ErrorIs(t, err, shared.ErrNotFound)

	repo.products["p1"] = Product{ID: "p1", SKU: "S", Name: "N", HasVariants: true}
	v, err := svc.CreateVariant(context.Background(), CreateVariantInput{ProductID: "p1", SKU: "V", Price: 1, IsActive: true})
	require.NoError(t, err)
	require.Equal(t, 0, v.Quantity)
}

func TestListProductsSubstitutesAggregates(t *testing.T) {
	repo := newMemoryRepo()
	repo.products["p1"] = Product{ID: "p1", SKU: "A", Name: "A", HasVariants: true, Price: 99, Quantity: 99}
	repo.variants["v1"] = Variant{ID: "v1", ProductID: "p1", Price: 20, Quantity: 2, IsActive: true}
	repo.products["p2"] = Product{ID: "p2", SKU: "B", Name: "B", Price: 5, Quantity: 1}
	svc := NewService(repo, nil)

	views, total, err := svc.ListProducts(context.Background(), ListFilters{})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	for _, view := range views {
		switch view.ID {
		case "p1":
			require.Equal(t, float64(20), view.Price)
			require.Equal(t, 2, view.Quantity)
		case "p2":
			require.Equal(t, float64(5), view.Price)
			require.Equal(t, 1, view.Quantity)
		}
	}
}
