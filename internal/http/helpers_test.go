package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fjod/paycart/internal/cache"
	"github.com/fjod/paycart/internal/cart"
	"github.com/fjod/paycart/internal/catalog"
	"github.com/fjod/paycart/internal/domain"
	"github.com/fjod/paycart/internal/repository"
	"github.com/fjod/paycart/internal/service"
	"github.com/fjod/paycart/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	products map[string]domain.Product
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{products: map[string]domain.Product{
		"1": {ID: "1", Name: "Wireless Headphones", Price: decimal.RequireFromString("1")},
		"2": {ID: "2", Name: "Smart Watch", Price: decimal.RequireFromString("1.99")},
	}}
}

func (f *fakeCatalog) ListProducts(context.Context) ([]domain.Product, error) {
	return []domain.Product{f.products["1"], f.products["2"]}, nil
}

func (f *fakeCatalog) GetProduct(_ context.Context, id string) (domain.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return domain.Product{}, catalog.ErrProductNotFound
	}
	return p, nil
}

type fakeCheckout struct {
	mu       sync.Mutex
	snapshot domain.CartSnapshot
	billing  domain.BillingContact
	result   *service.CheckoutResult
	err      error
}

func (f *fakeCheckout) StartCheckout(_ context.Context, snapshot domain.CartSnapshot, billing domain.BillingContact) (*service.CheckoutResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = snapshot
	f.billing = billing
	return f.result, f.err
}

type fakeReconciler struct {
	mu     sync.Mutex
	params service.ReturnParams
	cart   service.CartClearer
	calls  int
	result *service.ReconcileResult
	err    error
}

func (f *fakeReconciler) Reconcile(_ context.Context, params service.ReturnParams, c service.CartClearer) (*service.ReconcileResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.params = params
	f.cart = c
	return f.result, f.err
}

type testServer struct {
	handler    http.Handler
	registry   *cart.Registry
	checkout   *fakeCheckout
	reconciler *fakeReconciler
	orders     *repository.MemoryRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := cart.DefaultConfig()
	cfg.ConfirmationTTL = time.Minute
	registry := cart.NewRegistry(cache.NewMemoryCache(), cfg, 0, logger.Discard())
	t.Cleanup(registry.Close)

	ts := &testServer{
		registry:   registry,
		checkout:   &fakeCheckout{},
		reconciler: &fakeReconciler{},
		orders:     repository.NewMemoryRepository(),
	}
	products := newFakeCatalog()
	timeout := 5 * time.Second

	ts.handler = NewRouter(Handlers{
		Cart:     NewCartHandler(registry, products, timeout),
		Products: NewProductHandler(products, timeout),
		Checkout: NewCheckoutHandler(registry, ts.checkout, timeout),
		Payments: NewPaymentHandler(registry, ts.reconciler, timeout),
		Orders:   NewOrdersHandler(ts.orders, timeout),
	}, RouterConfig{
		RequestTimeout:     timeout,
		MaxRequestBodySize: 1 << 20,
		SessionMaxAge:      time.Hour,
	}, logger.Discard())
	return ts
}

// do sends a request, attaching the session cookie when one is given.
func (ts *testServer) do(t *testing.T, method, path string, body interface{}, session *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if session != nil {
		req.AddCookie(session)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func sessionCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	t.Fatalf("response carries no %s cookie", sessionCookieName)
	return nil
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}
