package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/paycart/internal/cart"
	"github.com/fjod/paycart/internal/service"
	"github.com/fjod/paycart/pkg/logger"
)

type PaymentReconciler interface {
	Reconcile(ctx context.Context, params service.ReturnParams, cart service.CartClearer) (*service.ReconcileResult, error)
}

type PaymentHandler struct {
	carts      CartSessions
	reconciler PaymentReconciler
	timeout    time.Duration
}

func NewPaymentHandler(carts CartSessions, reconciler PaymentReconciler, timeout time.Duration) *PaymentHandler {
	return &PaymentHandler{carts: carts, reconciler: reconciler, timeout: timeout}
}

// sessionCart clears the session's cart, reloading the store once when it
// was evicted after lookup.
type sessionCart struct {
	ctx       context.Context
	carts     CartSessions
	sessionID string
}

func (c *sessionCart) ClearForOrder(orderID string) error {
	err := c.carts.Get(c.ctx, c.sessionID).ClearForOrder(orderID)
	if errors.Is(err, cart.ErrStoreClosed) {
		err = c.carts.Get(c.ctx, c.sessionID).ClearForOrder(orderID)
	}
	return err
}

// IPNResponse is the acknowledgement body the gateway expects from the
// notification listener.
type IPNResponse struct {
	NotificationType  string `json:"orderNotificationType"`
	TrackingID        string `json:"orderTrackingId"`
	MerchantReference string `json:"orderMerchantReference"`
	Status            int    `json:"status"`
}

func returnParams(r *http.Request) service.ReturnParams {
	q := r.URL.Query()
	return service.ReturnParams{
		TrackingID: q.Get("OrderTrackingId"),
		OrderID:    q.Get(service.OrderReferenceParam),
	}
}

// Return handles the shopper coming back from the gateway. The session's
// cart is cleared once the payment is confirmed.
func (h *PaymentHandler) Return(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sc := &sessionCart{ctx: ctx, carts: h.carts, sessionID: sessionFromContext(ctx)}
	result, err := h.reconciler.Reconcile(ctx, returnParams(r), sc)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// IPN handles the gateway's asynchronous notification. It has no session,
// so no cart is touched.
func (h *PaymentHandler) IPN(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	params := returnParams(r)
	ack := IPNResponse{
		NotificationType:  r.URL.Query().Get("OrderNotificationType"),
		TrackingID:        params.TrackingID,
		MerchantReference: params.OrderID,
		Status:            http.StatusOK,
	}

	if _, err := h.reconciler.Reconcile(ctx, params, nil); err != nil {
		status, body := classify(err)
		logger.FromContext(ctx).Warn("payment notification not processed",
			slog.String("code", body.Code), slog.Any("error", err))
		ack.Status = http.StatusInternalServerError
		respondJSON(w, status, ack)
		return
	}
	respondJSON(w, http.StatusOK, ack)
}
