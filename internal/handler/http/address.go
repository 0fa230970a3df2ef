package http

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/adexify/internal/domain"
	"github.com/utafrali/adexify/internal/service"
	"github.com/utafrali/adexify/pkg/httputil"
)

type AddressHandler struct {
	service *service.AddressService
	logger  *slog.Logger
}

func NewAddressHandler(svc *service.AddressService, logger *slog.Logger) *AddressHandler {
	return &AddressHandler{service: svc, logger: logger}
}

type addAddressRequest struct {
	UserID     string `json:"user_id"`
	State      string `json:"state"`
	City       string `json:"city"`
	Street     string `json:"street"`
	PostalCode string `json:"postal_code"`
	Notes      string `json:"notes"`
	Label      string `json:"label"`
}

type updateAddressRequest struct {
	UserID     string               `json:"user_id"`
	AddressID  string               `json:"address_id"`
	State      *string              `json:"state"`
	City       *string              `json:"city"`
	Street     *string              `json:"street"`
	PostalCode *string              `json:"postal_code"`
	Notes      *string              `json:"notes"`
	Label      *domain.AddressLabel `json:"label"`
}

type addressRefRequest struct {
	UserID    string `json:"user_id"`
	AddressID string `json:"address_id"`
}

// refFromRequest reads user_id and address_id from the body, falling back
// to the query string.
func refFromRequest(r *http.Request) (addressRefRequest, error) {
	var req addressRefRequest
	if err := decode(r, &req); err != nil {
		return req, err
	}
	if req.UserID == "" {
		req.UserID = queryUserID(r)
	}
	if req.AddressID == "" {
		req.AddressID = r.URL.Query().Get("address_id")
	}
	req.UserID = identity(r, req.UserID, "").UserID
	return req, nil
}

// AddAddress handles POST /api/addresses/add
func (h *AddressHandler) AddAddress(w http.ResponseWriter, r *http.Request) {
	var req addAddressRequest
	if err := decode(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	userID := identity(r, req.UserID, "").UserID
	if !requireUserID(w, r, userID, h.logger) {
		return
	}

	addr, err := h.service.AddAddress(r.Context(), userID, service.AddAddressInput{
		State:      req.State,
		City:       req.City,
		Street:     req.Street,
		PostalCode: req.PostalCode,
		Notes:      req.Notes,
		Label:      req.Label,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteOK(w, http.StatusCreated, "address added", addr)
}

// ListAddresses handles GET /api/addresses/get
func (h *AddressHandler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	userID := identity(r, queryUserID(r), "").UserID
	if !requireUserID(w, r, userID, h.logger) {
		return
	}

	list, err := h.service.ListAddresses(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if list == nil {
		list = []domain.Address{}
	}
	httputil.WriteOK(w, http.StatusOK, "", list)
}

// UpdateAddress handles PUT /api/addresses/update
func (h *AddressHandler) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	var req updateAddressRequest
	if err := decode(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	userID := identity(r, req.UserID, "").UserID
	if !requireUserID(w, r, userID, h.logger) {
		return
	}

	addr, err := h.service.UpdateAddress(r.Context(), userID, req.AddressID, domain.AddressPatch{
		State:      req.State,
		City:       req.City,
		Street:     req.Street,
		PostalCode: req.PostalCode,
		Notes:      req.Notes,
		Label:      req.Label,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteOK(w, http.StatusOK, "address updated", addr)
}

// DeleteAddress handles DELETE /api/addresses/delete
func (h *AddressHandler) DeleteAddress(w http.ResponseWriter, r *http.Request) {
	req, err := refFromRequest(r)
	if err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	if !requireUserID(w, r, req.UserID, h.logger) {
		return
	}

	remaining, err := h.service.DeleteAddress(r.Context(), req.UserID, req.AddressID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if remaining == nil {
		remaining = []domain.Address{}
	}
	httputil.WriteOK(w, http.StatusOK, "address deleted", remaining)
}

// GetDefault handles GET /api/addresses/get-default. A user without
// addresses gets null data.
func (h *AddressHandler) GetDefault(w http.ResponseWriter, r *http.Request) {
	userID := identity(r, queryUserID(r), "").UserID
	if !requireUserID(w, r, userID, h.logger) {
		return
	}

	addr, err := h.service.GetDefault(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteOK(w, http.StatusOK, "", addr)
}

// SetDefault handles PUT /api/addresses/set-default
func (h *AddressHandler) SetDefault(w http.ResponseWriter, r *http.Request) {
	req, err := refFromRequest(r)
	if err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	if !requireUserID(w, r, req.UserID, h.logger) {
		return
	}

	addr, err := h.service.SetDefault(r.Context(), req.UserID, req.AddressID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteOK(w, http.StatusOK, "default address updated", addr)
}
