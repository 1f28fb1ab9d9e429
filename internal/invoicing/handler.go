package invoicing

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

// Handler wires HTTP endpoints for invoicing.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers invoicing routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{invoiceID}", h.get)
	r.Post("/{invoiceID}/issue", h.issue)
	r.Post("/{invoiceID}/pay", h.pay)
}

type createInvoiceRequest struct {
	OrderID string `json:"orderId" validate:"required,uuid4"`
}

type invoiceResponse struct {
	ID            string     `json:"id"`
	Number        string     `json:"number"`
	OrderID       string     `json:"orderId"`
	Status        string     `json:"status"`
	Amount        float64    `json:"amount"`
	AmountDisplay string     `json:"amountDisplay"`
	IssuedAt      *time.Time `json:"issuedAt,omitempty"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func toInvoiceResponse(inv Invoice) invoiceResponse {
	return invoiceResponse{
		ID:            inv.ID,
		Number:        inv.Number,
		OrderID:       inv.OrderID,
		Status:        string(inv.Status),
		Amount:        inv.Amount,
		AmountDisplay: inv.DisplayAmount(),
		IssuedAt:      inv.IssuedAt,
		PaidAt:        inv.PaidAt,
		CreatedAt:     inv.CreatedAt,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, r, h.logger, fmt.Errorf("%w: %s", shared.ErrValidation, err))
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	inv, err := h.service.CreateFromOrder(r.Context(), req.OrderID, actor.UserID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toInvoiceResponse(inv))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.Get(r.Context(), chi.URLParam(r, "invoiceID"))
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	invoices, err := h.service.List(r.Context(), InvoiceStatus(q.Get("status")), limit, offset)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	out := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, toInvoiceResponse(inv))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": out})
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.Issue(r.Context(), chi.URLParam(r, "invoiceID"), actor.UserID); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusNoContent, nil)
}

func (h *Handler) pay(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.MarkPaid(r.Context(), chi.URLParam(r, "invoiceID"), actor.UserID); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusNoContent, nil)
}
