package sales

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

// Handler wires HTTP endpoints for sales.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers sales routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/orders", h.list)
	r.Post("/orders", h.record)
	r.Get("/orders/{orderID}", h.get)
}

type recordSaleRequest struct {
	ProductID     string  `json:"productId" validate:"required,uuid4"`
	VariantID     string  `json:"variantId" validate:"omitempty,uuid4"`
	Quantity      int     `json:"quantity" validate:"required,gt=0"`
	TotalAmount   float64 `json:"totalAmount" validate:"gte=0"`
	CustomerName  string  `json:"customerName" validate:"required,min=2,max=128"`
	CustomerEmail string  `json:"customerEmail" validate:"required,email"`
	CustomerPhone string  `json:"customerPhone" validate:"max=32"`
	Notes         string  `json:"notes" validate:"max=500"`
}

type orderResponse struct {
	ID          string    `json:"id"`
	Number      string    `json:"number"`
	CustomerID  string    `json:"customerId"`
	Status      string    `json:"status"`
	TotalAmount float64   `json:"totalAmount"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type orderItemResponse struct {
	ID        string  `json:"id"`
	ProductID string  `json:"productId"`
	VariantID string  `json:"variantId,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

func toOrderResponse(o Order) orderResponse {
	return orderResponse{
		ID:          o.ID,
		Number:      o.Number,
		CustomerID:  o.CustomerID,
		Status:      string(o.Status),
		TotalAmount: o.TotalAmount,
		Notes:       o.Notes,
		CreatedAt:   o.CreatedAt,
	}
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
	var req recordSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, r, h.logger, fmt.Errorf("%w: %s", shared.ErrValidation, err))
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	order, err := h.service.RecordSale(r.Context(), SaleInput{
		ProductID:     req.ProductID,
		VariantID:     req.VariantID,
		Quantity:      req.Quantity,
		TotalAmount:   req.TotalAmount,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
		Notes:         req.Notes,
		ActorID:       actor.UserID,
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	order, items, err := h.service.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	outItems := make([]orderItemResponse, 0, len(items))
	for _, item := range items {
		outItems = append(outItems, orderItemResponse{
			ID:        item.ID,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order": toOrderResponse(order), "items": outItems})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	orders, err := h.service.ListOrders(r.Context(), limit, offset)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, toOrderResponse(order))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": out})
}
