package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/paycart/internal/domain"
	"github.com/fjod/paycart/internal/service"
)

type CheckoutStarter interface {
	StartCheckout(ctx context.Context, cart domain.CartSnapshot, billing domain.BillingContact) (*service.CheckoutResult, error)
}

type CheckoutHandler struct {
	carts    CartSessions
	checkout CheckoutStarter
	timeout  time.Duration
}

func NewCheckoutHandler(carts CartSessions, checkout CheckoutStarter, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{carts: carts, checkout: checkout, timeout: timeout}
}

// Checkout creates the order from the session's cart and returns the
// gateway redirect. The client performs the hand-off.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var billing domain.BillingContact
	if err := json.NewDecoder(r.Body).Decode(&billing); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	snapshot := h.carts.Get(ctx, sessionFromContext(ctx)).Snapshot()
	result, err := h.checkout.StartCheckout(ctx, snapshot, billing)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}
