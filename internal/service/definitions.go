package service

import (
	"context"

	"github.com/fjod/paycart/internal/domain"
	"github.com/fjod/paycart/internal/gateway"
)

// PaymentGateway is the part of the gateway client checkout and
// reconciliation depend on.
type PaymentGateway interface {
	SubmitOrder(ctx context.Context, req gateway.SubmitOrderRequest) (*gateway.SubmitOrderResponse, error)
	GetTransactionStatus(ctx context.Context, trackingID string) (*gateway.TransactionStatus, error)
}

type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// CartClearer is the cart side effect of a completed payment. Clearing is
// done at most once per order.
type CartClearer interface {
	ClearForOrder(orderID string) error
}

type EventPublisher interface {
	PublishOrderResolved(ctx context.Context, event domain.OrderResolved) error
}
