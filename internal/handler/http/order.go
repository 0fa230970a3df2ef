package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/adexify/internal/domain"
	"github.com/utafrali/adexify/internal/service"
	apperrors "github.com/utafrali/adexify/pkg/errors"
	"github.com/utafrali/adexify/pkg/httputil"
	"github.com/utafrali/adexify/pkg/pagination"
	"github.com/utafrali/adexify/pkg/validator"
)

// OrderHandler handles HTTP requests for order and payment endpoints.
type OrderHandler struct {
	orders   *service.OrderService
	payments *service.PaymentService
	logger   *slog.Logger
}

func NewOrderHandler(orders *service.OrderService, payments *service.PaymentService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, payments: payments, logger: logger}
}

// UpdateStatusRequest is the JSON request body for an admin status change.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending processing shipped delivered cancelled"`
}

// CreateOrder handles POST /api/orders/create
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var in service.CreateOrderInput
	if err := decode(r, &in); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	in.UserID = identity(r, in.UserID, "").UserID

	order, err := h.orders.CreateOrder(r.Context(), in)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteOK(w, http.StatusCreated, "order created", order)
}

// VerifyPayment handles GET /api/orders/verify?reference=
func (h *OrderHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	order, err := h.payments.VerifyPayment(r.Context(), r.URL.Query().Get("reference"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteOK(w, http.StatusOK, "payment verified", order)
}

// Webhook handles POST /api/orders/webhook. It runs behind WebhookSignature.
func (h *OrderHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	res, err := h.payments.HandleWebhook(r.Context(), verifiedBody(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteOK(w, http.StatusOK, "webhook received", res)
}

// ListUserOrders handles GET /api/orders/user?userId=
func (h *OrderHandler) ListUserOrders(w http.ResponseWriter, r *http.Request) {
	userID := identity(r, queryUserID(r), "").UserID
	page := pagination.FromRequest(r)

	orders, total, err := h.orders.ListUserOrders(r.Context(), userID, page)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteOK(w, http.StatusOK, "", httputil.NewPage(orders, total, page.Page, page.PerPage))
}

// GetOrder handles GET /api/orders/{id}?userId=
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	userID := identity(r, queryUserID(r), "").UserID

	order, err := h.orders.GetOrder(r.Context(), userID, id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteOK(w, http.StatusOK, "", order)
}

// UpdateOrderStatus handles PUT /api/orders/{id}/status
func (h *OrderHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), id.String(), domain.OrderStatus(req.Status))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteOK(w, http.StatusOK, "order status updated", order)
}

// requireUserID is a small guard for handlers that accept the user id from
// the body or query as well as from the identity middleware.
func requireUserID(w http.ResponseWriter, r *http.Request, userID string, logger *slog.Logger) bool {
	if userID == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("user_id is required"), logger)
		return false
	}
	return true
}
