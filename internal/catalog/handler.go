package catalog

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-ims/meridian-ims/internal/platform/httpx"
	"github.com/meridian-ims/meridian-ims/internal/shared"
)

// Handler wires HTTP endpoints for the catalog.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers catalog routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Post("/products", h.createProduct)
	r.Get("/products/{productID}", h.getProduct)
	r.Put("/products/{productID}", h.updateProduct)
	r.Post("/products/{productID}/variants", h.createVariant)
}

type createProductRequest struct {
	SKU             string  `json:"sku" validate:"required,min=1,max=64"`
	Name            string  `json:"name" validate:"required,min=1,max=255"`
	Description     string  `json:"description" validate:"max=2000"`
	CategoryID      string  `json:"categoryId" validate:"omitempty,uuid4"`
	SupplierID      string  `json:"supplierId" validate:"omitempty,uuid4"`
	WarehouseID     string  `json:"warehouseId" validate:"omitempty,uuid4"`
	Price           float64 `json:"price" validate:"gte=0"`
	MinStock        *int    `json:"minStock" validate:"omitempty,gte=0"`
	MaxStock        *int    `json:"maxStock" validate:"omitempty,gte=0"`
	ReorderPoint    *int    `json:"reorderPoint" validate:"omitempty,gte=0"`
	ReorderQuantity *int    `json:"reorderQuantity" validate:"omitempty,gte=0"`
	HasVariants     bool    `json:"hasVariants"`
}

type createVariantRequest struct {
	SKU          string  `json:"sku" validate:"required,min=1,max=64"`
	Name         string  `json:"name" validate:"max=255"`
	Price        float64 `json:"price" validate:"gte=0"`
	IsActive     bool    `json:"isActive"`
	ReorderPoint *int    `json:"reorderPoint" validate:"omitempty,gte=0"`
}

type variantResponse struct {
	ID           string    `json:"id"`
	SKU          string    `json:"sku"`
	Name         string    `json:"name,omitempty"`
	Quantity     int       `json:"quantity"`
	Price        float64   `json:"price"`
	IsActive     bool      `json:"isActive"`
	ReorderPoint *int      `json:"reorderPoint,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type productViewResponse struct {
	ID          string            `json:"id"`
	SKU         string            `json:"sku"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Status      string            `json:"status"`
	Quantity    int               `json:"quantity"`
	Price       float64           `json:"price"`
	MinPrice    float64           `json:"minPrice"`
	MaxPrice    float64           `json:"maxPrice"`
	HasVariants bool              `json:"hasVariants"`
	Variants    []variantResponse `json:"variants,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

func toViewResponse(view ProductView) productViewResponse {
	out := productViewResponse{
		ID:          view.ID,
		SKU:         view.SKU,
		Name:        view.Name,
		Description: view.Description,
		Status:      string(view.Status),
		Quantity:    view.Quantity,
		Price:       view.Price,
		MinPrice:    view.MinPrice,
		MaxPrice:    view.MaxPrice,
		HasVariants: view.HasVariants,
		CreatedAt:   view.CreatedAt,
	}
	for _, v := range view.Variants {
		out.Variants = append(out.Variants, variantResponse{
			ID:           v.ID,
			SKU:          v.SKU,
			Name:         v.Name,
			Quantity:     v.Quantity,
			Price:        v.Price,
			IsActive:     v.IsActive,
			ReorderPoint: v.ReorderPoint,
			CreatedAt:    v.CreatedAt,
		})
	}
	return out
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, r, h.logger, fmt.Errorf("%w: %s", shared.ErrValidation, err))
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	product, err := h.service.CreateProduct(r.Context(), CreateProductInput{
		SKU:             req.SKU,
		Name:            req.Name,
		Description:     req.Description,
		CategoryID:      req.CategoryID,
		SupplierID:      req.SupplierID,
		WarehouseID:     req.WarehouseID,
		Price:           req.Price,
		MinStock:        req.MinStock,
		MaxStock:        req.MaxStock,
		ReorderPoint:    req.ReorderPoint,
		ReorderQuantity: req.ReorderQuantity,
		HasVariants:     req.HasVariants,
		ActorID:         actor.UserID,
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toViewResponse(ProductView{Product: product, MinPrice: product.Price, MaxPrice: product.Price}))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetProductView(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toViewResponse(view))
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	pagination := shared.NewPagination(page, perPage, 0)
	views, total, err := h.service.ListProducts(r.Context(), ListFilters{
		CategoryID: q.Get("categoryId"),
		SupplierID: q.Get("supplierId"),
		Status:     Status(q.Get("status")),
		Search:     q.Get("search"),
		Limit:      pagination.PerPage,
		Offset:     pagination.Offset(),
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	out := make([]productViewResponse, 0, len(views))
	for _, view := range views {
		out = append(out, toViewResponse(view))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"products":   out,
		"pagination": shared.NewPagination(pagination.Page, pagination.PerPage, total),
	})
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, r, h.logger, fmt.Errorf("%w: %s", shared.ErrValidation, err))
		return
	}
	productID := chi.URLParam(r, "productID")
	actor, _ := shared.ActorFromContext(r.Context())
	err := h.service.UpdateProduct(r.Context(), Product{
		ID:              productID,
		SKU:             req.SKU,
		Name:            req.Name,
		Description:     req.Description,
		CategoryID:      req.CategoryID,
		SupplierID:      req.SupplierID,
		WarehouseID:     req.WarehouseID,
		MinStock:        req.MinStock,
		MaxStock:        req.MaxStock,
		ReorderPoint:    req.ReorderPoint,
		ReorderQuantity: req.ReorderQuantity,
		CreatedBy:       actor.UserID,
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusNoContent, nil)
}

func (h *Handler) createVariant(w http.ResponseWriter, r *http.Request) {
	var req createVariantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, r, h.logger, fmt.Errorf("%w: %s", shared.ErrValidation, err))
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	variant, err := h.service.CreateVariant(r.Context(), CreateVariantInput{
		ProductID:    chi.URLParam(r, "productID"),
		SKU:          req.SKU,
		Name:         req.Name,
		Price:        req.Price,
		IsActive:     req.IsActive,
		ReorderPoint: req.ReorderPoint,
		ActorID:      actor.UserID,
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, variantResponse{
		ID:           variant.ID,
		SKU:          variant.SKU,
		Name:         variant.Name,
		Quantity:     variant.Quantity,
		Price:        variant.Price,
		IsActive:     variant.IsActive,
		ReorderPoint: variant.ReorderPoint,
		CreatedAt:    variant.CreatedAt,
	})
}
