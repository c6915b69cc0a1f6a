package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"

	"github.com/fjod/paycart/internal/domain"
	"github.com/fjod/paycart/internal/gateway"
	"github.com/fjod/paycart/internal/repository"
	"github.com/fjod/paycart/pkg/logger"
	"github.com/google/uuid"
)

// OrderReferenceParam carries the order id through the gateway redirect.
const OrderReferenceParam = "OrderMerchantReference"

type CheckoutConfig struct {
	CallbackURL        string
	Currency           string
	Description        string
	DefaultCountryCode string
}

type CheckoutResult struct {
	OrderID     string `json:"orderId"`
	RedirectURL string `json:"redirectUrl"`
	TrackingID  string `json:"trackingId,omitempty"`
}

type CheckoutService struct {
	repo      repository.OrderRepository
	gateway   PaymentGateway
	readiness TokenProvider
	cfg       CheckoutConfig
	log       *slog.Logger
	newID     func() string
}

func NewCheckoutService(repo repository.OrderRepository, gw PaymentGateway, readiness TokenProvider, cfg CheckoutConfig, log *slog.Logger) *CheckoutService {
	return &CheckoutService{
		repo:      repo,
		gateway:   gw,
		readiness: readiness,
		cfg:       cfg,
		log:       log,
		newID:     uuid.NewString,
	}
}

// StartCheckout turns a cart snapshot into a PENDING order and asks the
// gateway for the redirect that hands the shopper off. The order is never
// rolled back: if initiation fails it stays PENDING.
func (s *CheckoutService) StartCheckout(ctx context.Context, cart domain.CartSnapshot, billing domain.BillingContact) (*CheckoutResult, error) {
	log := logger.Enrich(ctx, s.log)

	billing = s.normalize(billing)
	if err := validateCheckout(cart, billing); err != nil {
		return nil, err
	}

	token, err := s.readiness.Token(ctx)
	if err != nil {
		log.Warn("payment gateway not ready", slog.Any("error", err))
		return nil, &GatewayNotReadyError{Err: err}
	}

	order := &domain.Order{
		ID:          s.newID(),
		Billing:     billing,
		Currency:    s.cfg.Currency,
		Amount:      cart.TotalPrice,
		Description: s.cfg.Description,
		LineItems:   cart.Lines(),
		Status:      domain.OrderStatusPending,
	}
	if err := s.repo.Insert(ctx, order); err != nil {
		log.Error("failed to create order", slog.String("order_id", order.ID), slog.Any("error", err))
		return nil, &LedgerWriteError{OrderID: order.ID, Err: err}
	}
	log = log.With(slog.String("order_id", order.ID))

	callback, err := CallbackURL(s.cfg.CallbackURL, order.ID)
	if err != nil {
		return nil, &GatewayInitiationError{OrderID: order.ID, Err: err}
	}

	resp, err := s.gateway.SubmitOrder(ctx, gateway.SubmitOrderRequest{
		ID:             order.ID,
		Amount:         gateway.FormatAmount(order.Amount),
		Currency:       order.Currency,
		Description:    order.Description,
		CallbackURL:    callback,
		NotificationID: token,
		FirstName:      billing.FirstName,
		LastName:       billing.LastName,
		Email:          billing.Email,
		Phone:          billing.Phone,
		CountryCode:    billing.CountryCode,
		Line1:          billing.AddressLine1,
		City:           billing.City,
	})
	if err != nil {
		log.Error("payment initiation failed", slog.Any("error", err))
		return nil, &GatewayInitiationError{OrderID: order.ID, Err: err}
	}
	if resp.RedirectURL == "" {
		cause := ErrNoRedirect
		if resp.Error != nil {
			cause = fmt.Errorf("%w: %w", ErrNoRedirect, resp.Error)
		}
		log.Error("payment initiation returned no redirect", slog.Any("error", cause))
		return nil, &GatewayInitiationError{OrderID: order.ID, Err: cause}
	}

	if resp.OrderTrackingID != "" {
		// the return path carries the tracking id anyway; a failure here only
		// delays when the ledger learns it
		_, _, err := s.repo.Update(ctx, order.ID, domain.OrderUpdate{GatewayTrackingID: resp.OrderTrackingID})
		if err != nil {
			log.Warn("failed to record tracking id", slog.Any("error", err))
		}
	}

	log.Info("checkout started", slog.String("amount", order.Amount.StringFixed(2)))
	return &CheckoutResult{
		OrderID:     order.ID,
		RedirectURL: resp.RedirectURL,
		TrackingID:  resp.OrderTrackingID,
	}, nil
}

func (s *CheckoutService) normalize(b domain.BillingContact) domain.BillingContact {
	b.Email = strings.TrimSpace(b.Email)
	b.Phone = strings.TrimSpace(b.Phone)
	b.FirstName = strings.TrimSpace(b.FirstName)
	b.LastName = strings.TrimSpace(b.LastName)
	b.AddressLine1 = strings.TrimSpace(b.AddressLine1)
	b.City = strings.TrimSpace(b.City)
	b.CountryCode = strings.ToUpper(strings.TrimSpace(b.CountryCode))
	if b.CountryCode == "" {
		b.CountryCode = s.cfg.DefaultCountryCode
	}
	return b
}

// validateCheckout reports the first failing check; billing fields are
// checked in a fixed order so the message is deterministic.
func validateCheckout(cart domain.CartSnapshot, b domain.BillingContact) error {
	if cart.IsEmpty() {
		return &ValidationError{Field: "cart", Err: ErrEmptyCart}
	}
	if !cart.TotalPrice.IsPositive() {
		return &ValidationError{Field: "amount", Err: ErrInvalidAmount}
	}

	fields := []struct {
		name  string
		value string
	}{
		{"email", b.Email},
		{"phone", b.Phone},
		{"firstName", b.FirstName},
		{"lastName", b.LastName},
		{"addressLine1", b.AddressLine1},
		{"city", b.City},
		{"countryCode", b.CountryCode},
	}
	for _, f := range fields {
		if f.value == "" {
			return &ValidationError{Field: f.name}
		}
		if f.name == "email" {
			if _, err := mail.ParseAddress(f.value); err != nil {
				return &ValidationError{Field: f.name, Err: errors.New("not a valid email address")}
			}
		}
	}
	if len(b.CountryCode) != 2 {
		return &ValidationError{Field: "countryCode", Err: errors.New("must be a two-letter country code")}
	}
	return nil
}

// CallbackURL appends the order reference to base, keeping any query it
// already has.
func CallbackURL(base, orderID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid callback url %q", base)
	}
	q := u.Query()
	q.Set(OrderReferenceParam, orderID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
