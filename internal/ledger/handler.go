package ledger

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

// Handler wires HTTP endpoints for manual adjustments and movement history.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers inventory routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/adjustments", h.postAdjustment)
	r.Get("/transactions", h.listTransactions)
}

type adjustmentRequest struct {
	ProductID    string `json:"productId" validate:"required,uuid4"`
	VariantID    string `json:"variantId" validate:"omitempty,uuid4"`
	Quantity     int    `json:"quantity" validate:"required"`
	Reference    string `json:"reference" validate:"max=64"`
	Notes        string `json:"notes" validate:"max=500"`
	Compensating bool   `json:"compensating"`
}

type transactionResponse struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	ProductID     string    `json:"productId"`
	VariantID     string    `json:"variantId,omitempty"`
	Quantity      int       `json:"quantity"`
	QuantityAfter int       `json:"quantityAfter"`
	Reference     string    `json:"reference,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	CreatedBy     string    `json:"createdBy,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

func toTransactionResponse(t Transaction) transactionResponse {
	return transactionResponse{
		ID:            t.ID,
		Type:          string(t.Type),
		ProductID:     t.ProductID,
		VariantID:     t.VariantID,
		Quantity:      t.Quantity,
		QuantityAfter: t.QuantityAfter,
		Reference:     t.Reference,
		Notes:         t.Notes,
		CreatedBy:     t.CreatedBy,
		CreatedAt:     t.CreatedAt,
	}
}

func (h *Handler) postAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, r, h.logger, fmt.Errorf("%w: %s", shared.ErrValidation, err))
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	entry, err := h.service.ApplyDelta(r.Context(), DeltaInput{
		Entity:       EntityRef{ProductID: req.ProductID, VariantID: req.VariantID},
		Type:         TypeAdjustment,
		Quantity:     req.Quantity,
		Reference:    req.Reference,
		Notes:        req.Notes,
		ActorID:      actor.UserID,
		Compensating: req.Compensating,
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTransactionResponse(entry))
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		ProductID: q.Get("productId"),
		VariantID: q.Get("variantId"),
		Type:      TransactionType(q.Get("type")),
	}
	if raw := q.Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			filter.Limit = v
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			filter.Offset = v
		}
	}
	entries, err := h.service.ListTransactions(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	out := make([]transactionResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toTransactionResponse(entry))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": out})
}
