package purchasing

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

// Handler wires HTTP endpoints for purchasing.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers purchasing routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/orders", h.list)
	r.Post("/orders", h.create)
	r.Get("/orders/{poID}", h.get)
	r.Post("/orders/{poID}/submit", h.submit)
	r.Post("/orders/{poID}/receive", h.receive)
	r.Post("/orders/{poID}/close", h.close)
}

type poItemRequest struct {
	ProductID   string  `json:"productId" validate:"required,uuid4"`
	VariantID   string  `json:"variantId" validate:"omitempty,uuid4"`
	Quantity    int     `json:"quantity" validate:"required,gt=0"`
	CostPerUnit float64 `json:"costPerUnit" validate:"gte=0"`
}

type createPORequest struct {
	SupplierID string          `json:"supplierId" validate:"required"`
	Notes      string          `json:"notes" validate:"max=500"`
	Items      []poItemRequest `json:"items" validate:"required,min=1,dive"`
}

type poResponse struct {
	ID         string     `json:"id"`
	Number     string     `json:"number"`
	SupplierID string     `json:"supplierId"`
	Status     string     `json:"status"`
	Notes      string     `json:"notes,omitempty"`
	ReceivedAt *time.Time `json:"receivedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

type poItemResponse struct {
	ID               string  `json:"id"`
	ProductID        string  `json:"productId"`
	VariantID        string  `json:"variantId,omitempty"`
	OrderedQuantity  int     `json:"orderedQuantity"`
	ReceivedQuantity int     `json:"receivedQuantity"`
	CostPerUnit      float64 `json:"costPerUnit"`
}

func toPOResponse(po PurchaseOrder) poResponse {
	return poResponse{
		ID:         po.ID,
		Number:     po.Number,
		SupplierID: po.SupplierID,
		Status:     string(po.Status),
		Notes:      po.Notes,
		ReceivedAt: po.ReceivedAt,
		CreatedAt:  po.CreatedAt,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createPORequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, r, h.logger, fmt.Errorf("%w: %s", shared.ErrValidation, err))
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	input := CreatePOInput{SupplierID: req.SupplierID, Notes: req.Notes, ActorID: actor.UserID}
	for _, item := range req.Items {
		input.Items = append(input.Items, POItemInput{
			ProductID:   item.ProductID,
			VariantID:   item.VariantID,
			Quantity:    item.Quantity,
			CostPerUnit: item.CostPerUnit,
		})
	}
	po, err := h.service.Create(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPOResponse(po))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	po, items, err := h.service.Get(r.Context(), chi.URLParam(r, "poID"))
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	outItems := make([]poItemResponse, 0, len(items))
	for _, item := range items {
		outItems = append(outItems, poItemResponse{
			ID:               item.ID,
			ProductID:        item.ProductID,
			VariantID:        item.VariantID,
			OrderedQuantity:  item.OrderedQuantity,
			ReceivedQuantity: item.ReceivedQuantity,
			CostPerUnit:      item.CostPerUnit,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"order": toPOResponse(po), "items": outItems})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	orders, err := h.service.List(r.Context(), POStatus(q.Get("status")), limit, offset)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	out := make([]poResponse, 0, len(orders))
	for _, po := range orders {
		out = append(out, toPOResponse(po))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": out})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.Submit(r.Context(), chi.URLParam(r, "poID"), actor.UserID); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusNoContent, nil)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	result, err := h.service.Receive(r.Context(), chi.URLParam(r, "poID"), actor.UserID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"itemsReceived":       result.ItemsReceived,
		"transactionsCreated": result.TransactionsCreated,
	})
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.Close(r.Context(), chi.URLParam(r, "poID"), actor.UserID); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusNoContent, nil)
}
