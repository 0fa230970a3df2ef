package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/adexify/internal/domain"
	"github.com/utafrali/adexify/internal/provider"
	"github.com/utafrali/adexify/internal/service"
	"github.com/utafrali/adexify/pkg/health"
	"github.com/utafrali/adexify/pkg/middleware"
)

// RoleAdmin may change order fulfilment status.
const RoleAdmin = "admin"

// Services bundles what the router exposes.
type Services struct {
	Collections *service.CollectionService
	Orders      *service.OrderService
	Payments    *service.PaymentService
	Addresses   *service.AddressService
	Products    *service.ProductService
	Search      *service.SearchService
	Gateway     provider.Gateway
}

// RouterConfig holds the edge settings of the HTTP API.
type RouterConfig struct {
	ServiceName    string
	Identity       middleware.IdentityConfig
	CORS           middleware.CORSConfig
	RateLimitRPS   float64
	RateLimitBurst int
	RequestTimeout time.Duration
}

// NewRouter creates a chi router with all API routes registered. ctx bounds
// background work started by middleware.
func NewRouter(ctx context.Context, svc Services, healthHandler *health.Handler, cfg RouterConfig, logger *slog.Logger) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.CORS(cfg.CORS))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	cart := NewCollectionHandler(domain.KindCart, svc.Collections, logger)
	wishlist := NewCollectionHandler(domain.KindWishlist, svc.Collections, logger)
	orders := NewOrderHandler(svc.Orders, svc.Payments, logger)
	addresses := NewAddressHandler(svc.Addresses, logger)
	products := NewProductHandler(svc.Products, svc.Search, logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
		if cfg.RateLimitRPS > 0 {
			r.Use(middleware.RateLimit(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst, logger))
		}

		r.Use(middleware.Identity(cfg.Identity))
		r.Use(middleware.RequestLogger(logger))
		r.Use(chimw.Compress(5))

		r.Route("/cart", func(r chi.Router) {
			r.Use(middleware.NoStore)
			mountCollection(r, cart)
		})
		r.Route("/wishlist", func(r chi.Router) {
			r.Use(middleware.NoStore)
			mountCollection(r, wishlist)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Use(middleware.NoStore)
			r.Post("/create", orders.CreateOrder)
			r.Get("/verify", orders.VerifyPayment)
			r.With(WebhookSignature(svc.Gateway, logger)).Post("/webhook", orders.Webhook)
			r.Get("/user", orders.ListUserOrders)
			r.Get("/{id}", orders.GetOrder)
			r.With(middleware.RequireUser, middleware.RequireRole(RoleAdmin)).
				Put("/{id}/status", orders.UpdateOrderStatus)
		})

		r.Route("/addresses", func(r chi.Router) {
			r.Use(middleware.NoStore)
			r.Post("/add", addresses.AddAddress)
			r.Get("/get", addresses.ListAddresses)
			r.Put("/update", addresses.UpdateAddress)
			r.Delete("/delete", addresses.DeleteAddress)
			r.Get("/get-default", addresses.GetDefault)
			r.Put("/set-default", addresses.SetDefault)
		})

		r.Route("/products", func(r chi.Router) {
			r.With(middleware.CacheControl(60)).Get("/", products.ListProducts)
			r.With(middleware.CacheControl(60)).Get("/category/{category}", products.ListProducts)
			r.Post("/views", products.RecordView)
		})

		r.Post("/search", products.Search)
	})

	return r
}

func mountCollection(r chi.Router, h *CollectionHandler) {
	r.Post("/add", h.AddItem)
	r.Get("/get", h.Get)
	r.Put("/update", h.UpdateItem)
	r.Delete("/remove", h.RemoveItem)
	r.Delete("/clear", h.Clear)
	r.Post("/merge", h.Merge)
}
