package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/paycart/internal/domain"
	"github.com/fjod/paycart/internal/gateway"
	"github.com/fjod/paycart/internal/repository"
	"github.com/fjod/paycart/pkg/logger"
	"github.com/shopspring/decimal"
)

// ReturnParams are the identifiers the gateway hands back on return or in a
// notification. Nothing else survives the redirect.
type ReturnParams struct {
	TrackingID string
	OrderID    string
}

// ReconcileResult is what the shopper sees after a reconciliation attempt.
// Reference fields are copied from the gateway and never invented.
type ReconcileResult struct {
	OrderID          string                     `json:"orderId"`
	TrackingID       string                     `json:"trackingId"`
	State            domain.ReconciliationState `json:"state"`
	Status           domain.OrderStatus         `json:"status,omitempty"`
	GatewayStatus    string                     `json:"gatewayStatus,omitempty"`
	PaymentMethod    string                     `json:"paymentMethod,omitempty"`
	ConfirmationCode string                     `json:"confirmationCode,omitempty"`
	PaymentReference string                     `json:"paymentReference,omitempty"`
	Amount           decimal.Decimal            `json:"amount"`
	Currency         string                     `json:"currency,omitempty"`
	// AlreadyResolved is set when the ledger held a terminal status before
	// this attempt wrote anything.
	AlreadyResolved bool `json:"alreadyResolved"`
}

type Reconciler struct {
	repo      repository.OrderRepository
	gateway   PaymentGateway
	publisher EventPublisher
	log       *slog.Logger
	now       func() time.Time
}

func NewReconciler(repo repository.OrderRepository, gw PaymentGateway, publisher EventPublisher, log *slog.Logger) *Reconciler {
	return &Reconciler{
		repo:      repo,
		gateway:   gw,
		publisher: publisher,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile fetches the payment outcome for params and applies it to the
// order by key. It is safe to call any number of times with the same
// identifiers. cart may be nil; when set it is cleared once the order is
// COMPLETED.
func (r *Reconciler) Reconcile(ctx context.Context, params ReturnParams, cart CartClearer) (*ReconcileResult, error) {
	result := &ReconcileResult{
		OrderID:    params.OrderID,
		TrackingID: params.TrackingID,
		State:      domain.ReconciliationStarted,
	}

	var missing []string
	if params.TrackingID == "" {
		missing = append(missing, "OrderTrackingId")
	}
	if params.OrderID == "" {
		missing = append(missing, OrderReferenceParam)
	}
	if len(missing) > 0 {
		return result, &MissingCallbackParamsError{Missing: missing}
	}

	log := logger.Enrich(ctx, r.log).With(
		slog.String("order_id", params.OrderID),
		slog.String("tracking_id", params.TrackingID))

	result.State = domain.ReconciliationVerifying
	tx, err := r.gateway.GetTransactionStatus(ctx, params.TrackingID)
	if err != nil {
		log.Warn("payment verification failed", slog.Any("error", err))
		result.State = domain.ReconciliationVerificationFailed
		return result, &VerificationError{TrackingID: params.TrackingID, Err: err}
	}

	result.GatewayStatus = tx.PaymentStatusDescription
	if tx.MerchantReference != "" && tx.MerchantReference != params.OrderID {
		result.State = domain.ReconciliationVerificationFailed
		return result, &VerificationError{
			TrackingID: params.TrackingID,
			Err:        fmt.Errorf("gateway reports payment for order %s", tx.MerchantReference),
		}
	}

	status, err := gateway.MapStatus(tx.PaymentStatusDescription)
	if err != nil {
		log.Error("gateway reported an unknown payment status", slog.Any("error", err))
		result.State = domain.ReconciliationVerificationFailed
		return result, &VerificationError{TrackingID: params.TrackingID, Err: err}
	}

	order, written, err := r.repo.Update(ctx, params.OrderID, domain.OrderUpdate{
		Status:            status,
		GatewayTrackingID: params.TrackingID,
		GatewayReference:  tx.PaymentReference,
		PaymentMethod:     tx.PaymentMethod,
		ConfirmationCode:  tx.ConfirmationCode,
	})
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		result.State = domain.ReconciliationVerificationFailed
		return result, fmt.Errorf("reconcile order %s: %w", params.OrderID, err)
	case errors.Is(err, repository.ErrStatusConflict):
		// another attempt resolved the order first; its status stands
		if order == nil {
			if order, err = r.repo.Get(ctx, params.OrderID); err != nil {
				result.State = domain.ReconciliationVerificationFailed
				return result, &LedgerWriteError{OrderID: params.OrderID, Err: err}
			}
		}
		log.Warn("order already resolved with a different status",
			slog.String("stored_status", order.Status.String()),
			slog.String("gateway_status", status.String()))
		result.AlreadyResolved = true
	case err != nil:
		log.Error("failed to update order", slog.Any("error", err))
		result.State = domain.ReconciliationVerificationFailed
		return result, &LedgerWriteError{OrderID: params.OrderID, Err: err}
	case !written && order.Status.IsTerminal():
		result.AlreadyResolved = true
	}

	if !tx.Amount.IsZero() && !tx.Amount.Equal(order.Amount) {
		log.Warn("gateway amount differs from order amount",
			slog.String("order_amount", order.Amount.StringFixed(2)),
			slog.String("gateway_amount", tx.Amount.StringFixed(2)))
	}

	result.State = domain.ReconciliationResolved
	result.Status = order.Status
	result.PaymentMethod = tx.PaymentMethod
	result.ConfirmationCode = tx.ConfirmationCode
	result.PaymentReference = tx.PaymentReference
	result.Amount = order.Amount
	result.Currency = order.Currency

	if order.Status == domain.OrderStatusCompleted && cart != nil {
		if err := cart.ClearForOrder(order.ID); err != nil {
			log.Warn("failed to clear cart after payment", slog.Any("error", err))
		}
	}

	if written && order.Status.IsTerminal() {
		r.publish(ctx, log, order)
	}

	log.Info("payment reconciled",
		slog.String("status", order.Status.String()),
		slog.Bool("written", written))
	return result, nil
}

func (r *Reconciler) publish(ctx context.Context, log *slog.Logger, order *domain.Order) {
	if r.publisher == nil {
		return
	}
	err := r.publisher.PublishOrderResolved(ctx, domain.OrderResolved{
		OrderID:    order.ID,
		Status:     order.Status,
		TrackingID: order.GatewayTrackingID,
		Amount:     order.Amount,
		Currency:   order.Currency,
		ResolvedAt: r.now(),
	})
	if err != nil {
		log.Error("failed to publish order event", slog.Any("error", err))
	}
}
