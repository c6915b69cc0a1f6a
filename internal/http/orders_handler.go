package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/paycart/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type OrderReader interface {
	Get(ctx context.Context, id string) (*domain.Order, error)
}

// OrderResponse is the public view of an order. The billing contact is never
// returned: the order id travels in gateway callback urls.
type OrderResponse struct {
	ID                string             `json:"id"`
	Status            domain.OrderStatus `json:"status"`
	Currency          string             `json:"currency"`
	Amount            decimal.Decimal    `json:"amount"`
	Description       string             `json:"description"`
	LineItems         []domain.CartItem  `json:"lineItems"`
	GatewayTrackingID string             `json:"gatewayTrackingId,omitempty"`
	GatewayReference  string             `json:"gatewayReference,omitempty"`
	PaymentMethod     string             `json:"paymentMethod,omitempty"`
	ConfirmationCode  string             `json:"confirmationCode,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

func newOrderResponse(o *domain.Order) OrderResponse {
	return OrderResponse{
		ID:                o.ID,
		Status:            o.Status,
		Currency:          o.Currency,
		Amount:            o.Amount,
		Description:       o.Description,
		LineItems:         o.LineItems,
		GatewayTrackingID: o.GatewayTrackingID,
		GatewayReference:  o.GatewayReference,
		PaymentMethod:     o.PaymentMethod,
		ConfirmationCode:  o.ConfirmationCode,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}

type OrdersHandler struct {
	orders  OrderReader
	timeout time.Duration
}

func NewOrdersHandler(orders OrderReader, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{orders: orders, timeout: timeout}
}

func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, err := h.orders.Get(ctx, chi.URLParam(r, "orderId"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newOrderResponse(order))
}
