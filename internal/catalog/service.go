package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-ims/meridian-ims/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	GetProduct(ctx context.Context, id string) (Product, error)
	ListProducts(ctx context.Context, filters ListFilters) ([]Product, int, error)
	CreateProduct(ctx context.Context, p Product) error
	UpdateProduct(ctx context.Context, p Product) error
	ListVariants(ctx context.Context, productID string) ([]Variant, error)
	GetVariant(ctx context.Context, id string) (Variant, error)
	CreateVariant(ctx context.Context, v Variant) error
	UpdateVariant(ctx context.Context, v Variant) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates catalog operations.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	views singleflight.Group
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// CreateProductInput describes product creation payload.
type CreateProductInput struct {
	SKU             string
	Name            string
	Description     string
	CategoryID      string
	SupplierID      string
	WarehouseID     string
	Price           float64
	MinStock        *int
	MaxStock        *int
	ReorderPoint    *int
	ReorderQuantity *int
	HasVariants     bool
	ActorID         string
}

// CreateVariantInput describes variant creation payload.
type CreateVariantInput struct {
	ProductID    string
	SKU          string
	Name         string
	Price        float64
	IsActive     bool
	ReorderPoint *int
	ActorID      string
}

// CreateProduct registers a new product. Stock starts at zero; quantity only
// enters through receiving.
func (s *Service) CreateProduct(ctx context.Context, input CreateProductInput) (Product, error) {
	if strings.TrimSpace(input.SKU) == "" {
		return Product{}, fmt.Errorf("%w: sku required", shared.ErrValidation)
	}
	if strings.TrimSpace(input.Name) == "" {
		return Product{}, fmt.Errorf("%w: name required", shared.ErrValidation)
	}
	if input.Price < 0 {
		return Product{}, fmt.Errorf("%w: price must be >= 0", shared.ErrValidation)
	}
	now := time.Now().UTC()
	p := Product{
		ID:              uuid.NewString(),
		SKU:             strings.TrimSpace(input.SKU),
		Name:            strings.TrimSpace(input.Name),
		Description:     input.Description,
		CategoryID:      input.CategoryID,
		SupplierID:      input.SupplierID,
		WarehouseID:     input.WarehouseID,
		Status:          StatusStockOut,
		Quantity:        0,
		Price:           input.Price,
		MinStock:        input.MinStock,
		MaxStock:        input.MaxStock,
		ReorderPoint:    input.ReorderPoint,
		ReorderQuantity: input.ReorderQuantity,
		HasVariants:     input.HasVariants,
		CreatedBy:       input.ActorID,
		CreatedAt:       now,
	}
	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, input.ActorID, "product:create", p.ID, nil, map[string]any{"sku": p.SKU, "name": p.Name})
	return p, nil
}

// CreateVariant registers a new variant under an existing product and marks
// the product variant-bearing.
func (s *Service) CreateVariant(ctx context.Context, input CreateVariantInput) (Variant, error) {
	if strings.TrimSpace(input.SKU) == "" {
		return Variant{}, fmt.Errorf("%w: sku required", shared.ErrValidation)
	}
	if input.Price < 0 {
		return Variant{}, fmt.Errorf("%w: price must be >= 0", shared.ErrValidation)
	}
	product, err := s.repo.GetProduct(ctx, input.ProductID)
	if err != nil {
		return Variant{}, err
	}
	now := time.Now().UTC()
	v := Variant{
		ID:           uuid.NewString(),
		ProductID:    product.ID,
		SKU:          strings.TrimSpace(input.SKU),
		Name:         input.Name,
		Quantity:     0,
		Price:        input.Price,
		IsActive:     input.IsActive,
		ReorderPoint: input.ReorderPoint,
		CreatedAt:    now,
	}
	if err := s.repo.CreateVariant(ctx, v); err != nil {
		return Variant{}, err
	}
	s.recordAudit(ctx, input.ActorID, "variant:create", v.ID, nil, map[string]any{"sku": v.SKU, "product_id": product.ID})
	return v, nil
}

// GetProductView loads a product merged with the live aggregate of its active
// variants. Concurrent reads of the same product share one computation.
func (s *Service) GetProductView(ctx context.Context, productID string) (ProductView, error) {
	// The shared load must outlive the first caller: its cancellation would
	// fail every waiter piggybacking on the same key.
	loadCtx := context.WithoutCancel(ctx)
	result, err, _ := s.views.Do(productID, func() (any, error) {
		return s.loadView(loadCtx, productID)
	})
	if err != nil {
		return ProductView{}, err
	}
	return result.(ProductView), nil
}

func (s *Service) loadView(ctx context.Context, productID string) (ProductView, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return ProductView{}, err
	}
	view := ProductView{Product: product, MinPrice: product.Price, MaxPrice: product.Price}
	if !product.HasVariants {
		return view, nil
	}
	variants, err := s.repo.ListVariants(ctx, productID)
	if err != nil {
		return ProductView{}, err
	}
	agg := ComputeAggregate(variants)
	view.Price = agg.Price
	view.Quantity = agg.Quantity
	view.MinPrice = agg.MinPrice
	view.MaxPrice = agg.MaxPrice
	view.Variants = variants
	return view, nil
}

// ListProducts returns products with live aggregate fields substituted for
// variant-bearing entries.
func (s *Service) ListProducts(ctx context.Context, filters ListFilters) ([]ProductView, int, error) {
	products, total, err := s.repo.ListProducts(ctx, filters)
	if err != nil {
		return nil, 0, err
	}
	views := make([]ProductView, 0, len(products))
	for _, p := range products {
		view := ProductView{Product: p, MinPrice: p.Price, MaxPrice: p.Price}
		if p.HasVariants {
			variants, err := s.repo.ListVariants(ctx, p.ID)
			if err != nil {
				return nil, 0, err
			}
			agg := ComputeAggregate(variants)
			view.Price = agg.Price
			view.Quantity = agg.Quantity
			view.MinPrice = agg.MinPrice
			view.MaxPrice = agg.MaxPrice
		}
		views = append(views, view)
	}
	return views, total, nil
}

// UpdateProduct rewrites editable fields, leaving derived state to the
// workflows that touch stock.
func (s *Service) UpdateProduct(ctx context.Context, p Product) error {
	if strings.TrimSpace(p.SKU) == "" || strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: sku and name required", shared.ErrValidation)
	}
	before, err := s.repo.GetProduct(ctx, p.ID)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateProduct(ctx, p); err != nil {
		return err
	}
	s.recordAudit(ctx, p.CreatedBy, "product:update", p.ID,
		map[string]any{"sku": before.SKU, "name": before.Name},
		map[string]any{"sku": p.SKU, "name": p.Name})
	return nil
}

// UpdateVariant rewrites editable variant fields.
func (s *Service) UpdateVariant(ctx context.Context, v Variant) error {
	if strings.TrimSpace(v.SKU) == "" {
		return fmt.Errorf("%w: sku required", shared.ErrValidation)
	}
	return s.repo.UpdateVariant(ctx, v)
}

func (s *Service) recordAudit(ctx context.Context, actorID, action, entityID string, oldValues, newValues map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:   actorID,
		Action:    action,
		Entity:    "catalog",
		EntityID:  entityID,
		OldValues: oldValues,
		NewValues: newValues,
	})
}
