// Package http exposes the storefront over a chi router: cart, catalog,
// checkout, payment return and notification, and order lookup.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/paycart/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	SecureCookies      bool
	SessionMaxAge      time.Duration
}

type Handlers struct {
	Cart     *CartHandler
	Products *ProductHandler
	Checkout *CheckoutHandler
	Payments *PaymentHandler
	Orders   *OrdersHandler
}

func NewRouter(h Handlers, cfg RouterConfig, log *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(withLogger(log))
	if cfg.MaxRequestBodySize > 0 {
		r.Use(middleware.RequestSize(cfg.MaxRequestBodySize))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.Products.ListProducts)
			r.Get("/{productId}", h.Products.GetProduct)
		})

		// the gateway calls the notification listener without a session
		r.Get("/payments/ipn", h.Payments.IPN)

		r.Group(func(r chi.Router) {
			r.Use(SessionMiddleware(cfg.SecureCookies, cfg.SessionMaxAge))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.Cart.GetCart)
				r.Delete("/", h.Cart.ClearCart)
				r.Post("/items", h.Cart.AddItem)
				r.Patch("/items/{productId}", h.Cart.UpdateQuantity)
				r.Delete("/items/{productId}", h.Cart.RemoveItem)
			})
			r.Post("/checkout", h.Checkout.Checkout)
			r.Get("/payments/return", h.Payments.Return)
		})

		r.Get("/orders/{orderId}", h.Orders.GetOrder)
	})

	return otelhttp.NewHandler(r, "storefront")
}

func withLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context(), log)))
		})
	}
}
