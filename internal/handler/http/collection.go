package http

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/utafrali/adexify/internal/domain"
	"github.com/utafrali/adexify/internal/service"
	apperrors "github.com/utafrali/adexify/pkg/errors"
	"github.com/utafrali/adexify/pkg/httputil"
	"github.com/utafrali/adexify/pkg/middleware"
	"github.com/utafrali/adexify/pkg/validator"
)

// CollectionHandler serves one collection kind. The cart and the wishlist
// each get their own instance.
type CollectionHandler struct {
	kind    domain.Kind
	service *service.CollectionService
	logger  *slog.Logger
}

func NewCollectionHandler(kind domain.Kind, svc *service.CollectionService, logger *slog.Logger) *CollectionHandler {
	return &CollectionHandler{kind: kind, service: svc, logger: logger}
}

// --- Request DTOs ---

type addItemRequest struct {
	UserID        string `json:"user_id"`
	CartToken     string `json:"cart_token"`
	ProductID     string `json:"product_id" validate:"notblank"`
	Name          string `json:"name"`
	Price         int64  `json:"price" validate:"gte=0"`
	Quantity      int    `json:"quantity" validate:"gte=0,lte=100"`
	SelectedSize  string `json:"selected_size"`
	SelectedColor string `json:"selected_color"`
	Image         string `json:"image"`
	Category      string `json:"category"`
}

type updateItemRequest struct {
	UserID        string  `json:"user_id"`
	CartToken     string  `json:"cart_token"`
	ProductID     string  `json:"product_id" validate:"notblank"`
	SelectedSize  string  `json:"selected_size"`
	SelectedColor string  `json:"selected_color"`
	Quantity      *int    `json:"quantity" validate:"omitempty,gte=1,lte=100"`
	NewSize       *string `json:"new_size"`
	NewColor      *string `json:"new_color"`
}

type itemKeyRequest struct {
	UserID        string `json:"user_id"`
	CartToken     string `json:"cart_token"`
	ProductID     string `json:"product_id"`
	SelectedSize  string `json:"selected_size"`
	SelectedColor string `json:"selected_color"`
}

type ownerRequest struct {
	UserID    string `json:"user_id"`
	CartToken string `json:"cart_token"`
}

// collectionResponse adds derived totals to a collection.
type collectionResponse struct {
	*domain.Collection
	ItemCount int    `json:"item_count"`
	Subtotal  int64  `json:"subtotal"`
	CartToken string `json:"cart_token,omitempty"`
}

func newCollectionResponse(c *domain.Collection) collectionResponse {
	return collectionResponse{
		Collection: c,
		ItemCount:  c.ItemCount(),
		Subtotal:   c.Subtotal(),
		CartToken:  c.Token,
	}
}

// --- Handlers ---

// AddItem handles POST /api/{kind}/add. An anonymous caller is issued a new
// guest token, returned in the X-Cart-Token header and the body.
func (h *CollectionHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	id := identity(r, req.UserID, req.CartToken)
	if id.IsAnonymous() {
		id.GuestToken = uuid.NewString()
	}
	if id.UserID == "" {
		w.Header().Set(middleware.GuestTokenHeader, id.GuestToken)
	}

	col, err := h.service.AddItem(r.Context(), h.kind, id, domain.LineItem{
		ProductID:     req.ProductID,
		Name:          req.Name,
		Price:         req.Price,
		Quantity:      req.Quantity,
		SelectedSize:  req.SelectedSize,
		SelectedColor: req.SelectedColor,
		Image:         req.Image,
		Category:      req.Category,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteOK(w, http.StatusOK, "item added to "+string(h.kind), newCollectionResponse(col))
}

// Get handles GET /api/{kind}/get.
func (h *CollectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := identity(r, queryUserID(r), "")

	col, err := h.service.Get(r.Context(), h.kind, id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteOK(w, http.StatusOK, "", newCollectionResponse(col))
}

// UpdateItem handles PUT /api/{kind}/update.
func (h *CollectionHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	if req.Quantity == nil && req.NewSize == nil && req.NewColor == nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("nothing to update"), h.logger)
		return
	}

	key := domain.ItemKey{ProductID: req.ProductID, Size: req.SelectedSize, Color: req.SelectedColor}
	patch := domain.ItemPatch{Quantity: req.Quantity, SelectedSize: req.NewSize, SelectedColor: req.NewColor}

	col, err := h.service.UpdateItem(r.Context(), h.kind, identity(r, req.UserID, req.CartToken), key, patch)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteOK(w, http.StatusOK, string(h.kind)+" updated", newCollectionResponse(col))
}

// RemoveItem handles DELETE /api/{kind}/remove. The item key may come in
// the body or the query string.
func (h *CollectionHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	var req itemKeyRequest
	if err := decode(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	if req.ProductID == "" {
		q := r.URL.Query()
		req.ProductID = q.Get("product_id")
		req.SelectedSize = q.Get("selected_size")
		req.SelectedColor = q.Get("selected_color")
	}
	if req.ProductID == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("product_id is required"), h.logger)
		return
	}
	if req.UserID == "" {
		req.UserID = queryUserID(r)
	}

	key := domain.ItemKey{ProductID: req.ProductID, Size: req.SelectedSize, Color: req.SelectedColor}
	col, removed, err := h.service.RemoveItem(r.Context(), h.kind, identity(r, req.UserID, req.CartToken), key)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	msg := "item removed from " + string(h.kind)
	if !removed {
		msg = "item was not in " + string(h.kind)
	}
	httputil.WriteOK(w, http.StatusOK, msg, newCollectionResponse(col))
}

// Clear handles DELETE /api/{kind}/clear.
func (h *CollectionHandler) Clear(w http.ResponseWriter, r *http.Request) {
	var req ownerRequest
	if err := decode(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	if req.UserID == "" {
		req.UserID = queryUserID(r)
	}

	if err := h.service.Clear(r.Context(), h.kind, identity(r, req.UserID, req.CartToken)); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteOK(w, http.StatusOK, string(h.kind)+" cleared", nil)
}

// Merge handles POST /api/{kind}/merge. The caller must be a user and name
// the guest token to fold in.
func (h *CollectionHandler) Merge(w http.ResponseWriter, r *http.Request) {
	var req ownerRequest
	if err := decode(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	id := identity(r, req.UserID, req.CartToken)
	col, err := h.service.Merge(r.Context(), h.kind, id.UserID, id.GuestToken)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	resp := newCollectionResponse(col)
	resp.CartToken = ""
	httputil.WriteOK(w, http.StatusOK, string(h.kind)+" merged", resp)
}
