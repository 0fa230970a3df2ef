package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/adexify/internal/search"
	"github.com/utafrali/adexify/internal/service"
	"github.com/utafrali/adexify/pkg/httputil"
	"github.com/utafrali/adexify/pkg/pagination"
)

// ProductHandler serves the catalogue read side: listings, view counts and
// search.
type ProductHandler struct {
	products *service.ProductService
	search   *service.SearchService
	logger   *slog.Logger
}

func NewProductHandler(products *service.ProductService, searchSvc *service.SearchService, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{products: products, search: searchSvc, logger: logger}
}

type recordViewRequest struct {
	ProductID string `json:"product_id"`
	UserID    string `json:"user_id"`
	CartToken string `json:"cart_token"`
}

type searchFilters struct {
	Category string `json:"category"`
	MinPrice *int64 `json:"min_price"`
	MaxPrice *int64 `json:"max_price"`
	InStock  *bool  `json:"in_stock"`
}

type searchRequest struct {
	Collection string        `json:"collection"`
	Query      string        `json:"query"`
	Fields     []string      `json:"fields"`
	Filters    searchFilters `json:"filters"`
	Sort       string        `json:"sort"`
	Page       int           `json:"page"`
	PerPage    int           `json:"per_page"`
}

// ListProducts handles GET /api/products and GET /api/products/category/{category}.
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	if category == "" {
		category = r.URL.Query().Get("category")
	}
	page := pagination.FromRequest(r)

	products, total, err := h.products.List(r.Context(), category, page)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteOK(w, http.StatusOK, "", httputil.NewPage(products, total, page.Page, page.PerPage))
}

// RecordView handles POST /api/products/views
func (h *ProductHandler) RecordView(w http.ResponseWriter, r *http.Request) {
	var req recordViewRequest
	if err := decode(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	views, err := h.products.RecordView(r.Context(), req.ProductID, identity(r, req.UserID, req.CartToken))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteOK(w, http.StatusOK, "", views)
}

// Search handles POST /api/search
func (h *ProductHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decode(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	res, err := h.search.Search(r.Context(), req.Collection, search.Query{
		Text:     req.Query,
		Fields:   req.Fields,
		Category: req.Filters.Category,
		MinPrice: req.Filters.MinPrice,
		MaxPrice: req.Filters.MaxPrice,
		InStock:  req.Filters.InStock,
		Sort:     req.Sort,
		Page:     pagination.New(req.Page, req.PerPage),
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteOK(w, http.StatusOK, "", res)
}
