package service

import (
	"context"
	"errors"
	"testing"

	"github.com/fjod/paycart/internal/domain"
	"github.com/fjod/paycart/internal/gateway"
	"github.com/fjod/paycart/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testCheckoutConfig() CheckoutConfig {
	return CheckoutConfig{
		CallbackURL:        "https://shop.example/payment-success",
		Currency:           "KES",
		Description:        "Online Store Purchase",
		DefaultCountryCode: "KE",
	}
}

func testBilling() domain.BillingContact {
	return domain.BillingContact{
		Email:        "jane@example.com",
		Phone:        "0712345678",
		FirstName:    "Jane",
		LastName:     "Doe",
		AddressLine1: "1 Moi Avenue",
		City:         "Nairobi",
	}
}

func headphonesCart() domain.CartSnapshot {
	return domain.NewCartSnapshot([]domain.CartItem{
		{ProductID: "headphones", Name: "Wireless Headphones", UnitPrice: decimal.RequireFromString("10.00"), Quantity: 2},
	})
}

func newTestCheckout(repo *countingRepo, gw *MockGateway, tokens *fakeTokens) *CheckoutService {
	svc := NewCheckoutService(repo, gw, tokens, testCheckoutConfig(), logger.Discard())
	svc.newID = func() string { return "order-1" }
	return svc
}

func TestStartCheckout_Success(t *testing.T) {
	repo := newCountingRepo()
	gw := new(MockGateway)
	svc := newTestCheckout(repo, gw, &fakeTokens{token: "ipn-123"})

	gw.On("SubmitOrder", mock.Anything, mock.AnythingOfType("gateway.SubmitOrderRequest")).
		Return(&gateway.SubmitOrderResponse{RedirectURL: "https://pay.example/r/1", OrderTrackingID: "track-1"}, nil).
		Run(func(args mock.Arguments) {
			req := args.Get(1).(gateway.SubmitOrderRequest)
			assert.Equal(t, "order-1", req.ID)
			assert.Equal(t, "20.00", req.Amount.String())
			assert.Equal(t, "KES", req.Currency)
			assert.Equal(t, "Online Store Purchase", req.Description)
			assert.Equal(t, "ipn-123", req.NotificationID)
			assert.Equal(t, "https://shop.example/payment-success?OrderMerchantReference=order-1", req.CallbackURL)
			assert.Equal(t, "KE", req.CountryCode)
			assert.Equal(t, "1 Moi Avenue", req.Line1)
		})

	res, err := svc.StartCheckout(context.Background(), headphonesCart(), testBilling())
	require.NoError(t, err)
	assert.Equal(t, "order-1", res.OrderID)
	assert.Equal(t, "https://pay.example/r/1", res.RedirectURL)
	gw.AssertExpectations(t)

	order, err := repo.Get(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.True(t, decimal.RequireFromString("20.00").Equal(order.Amount))
	assert.Equal(t, "track-1", order.GatewayTrackingID)
	require.Len(t, order.LineItems, 1)
	assert.Equal(t, "KE", order.Billing.CountryCode)
}

func TestStartCheckout_SnapshotIsEmbedded(t *testing.T) {
	repo := newCountingRepo()
	gw := new(MockGateway)
	svc := newTestCheckout(repo, gw, &fakeTokens{token: "ipn-123"})
	gw.On("SubmitOrder", mock.Anything, mock.Anything).
		Return(&gateway.SubmitOrderResponse{RedirectURL: "https://pay.example/r/1"}, nil)

	cart := headphonesCart()
	_, err := svc.StartCheckout(context.Background(), cart, testBilling())
	require.NoError(t, err)

	cart.Items[0].Quantity = 50

	order, err := repo.Get(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, 2, order.LineItems[0].Quantity)
}

func TestStartCheckout_EmptyCartNeverWrites(t *testing.T) {
	repo := newCountingRepo()
	gw := new(MockGateway)
	svc := newTestCheckout(repo, gw, &fakeTokens{token: "ipn-123"})

	_, err := svc.StartCheckout(context.Background(), domain.NewCartSnapshot(nil), testBilling())

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "cart", vErr.Field)
	assert.ErrorIs(t, err, ErrEmptyCart)
	inserts, _ := repo.counts()
	assert.Zero(t, inserts)
	gw.AssertNotCalled(t, "SubmitOrder", mock.Anything, mock.Anything)
}

func TestStartCheckout_ZeroAmount(t *testing.T) {
	repo := newCountingRepo()
	svc := newTestCheckout(repo, new(MockGateway), &fakeTokens{token: "ipn-123"})

	free := domain.NewCartSnapshot([]domain.CartItem{
		{ProductID: "1", Name: "Sample", UnitPrice: decimal.Zero, Quantity: 1},
	})
	_, err := svc.StartCheckout(context.Background(), free, testBilling())

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "amount", vErr.Field)
}

func TestStartCheckout_ValidationOrder(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(b *domain.BillingContact)
		field string
	}{
		{"everything missing", func(b *domain.BillingContact) { *b = domain.BillingContact{} }, "email"},
		{"bad email", func(b *domain.BillingContact) { b.Email = "not-an-email" }, "email"},
		{"phone before names", func(b *domain.BillingContact) { b.Phone = ""; b.FirstName = "" }, "phone"},
		{"first name", func(b *domain.BillingContact) { b.FirstName = " " }, "firstName"},
		{"last name", func(b *domain.BillingContact) { b.LastName = "" }, "lastName"},
		{"address", func(b *domain.BillingContact) { b.AddressLine1 = ""; b.City = "" }, "addressLine1"},
		{"city", func(b *domain.BillingContact) { b.City = "" }, "city"},
		{"country code", func(b *domain.BillingContact) { b.CountryCode = "KEN" }, "countryCode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newCountingRepo()
			svc := newTestCheckout(repo, new(MockGateway), &fakeTokens{token: "ipn-123"})

			billing := testBilling()
			tt.edit(&billing)
			_, err := svc.StartCheckout(context.Background(), headphonesCart(), billing)

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
			assert.False(t, IsRetryable(err))
			inserts, _ := repo.counts()
			assert.Zero(t, inserts)
		})
	}
}

func TestStartCheckout_GatewayNotReady(t *testing.T) {
	repo := newCountingRepo()
	gw := new(MockGateway)
	svc := newTestCheckout(repo, gw, &fakeTokens{err: errors.New("ipn registration failed")})

	_, err := svc.StartCheckout(context.Background(), headphonesCart(), testBilling())

	var nrErr *GatewayNotReadyError
	require.ErrorAs(t, err, &nrErr)
	assert.True(t, IsRetryable(err))
	inserts, _ := repo.counts()
	assert.Zero(t, inserts, "checkout must not proceed without a readiness token")
}

func TestStartCheckout_NoRedirectLeavesOrderPending(t *testing.T) {
	repo := newCountingRepo()
	gw := new(MockGateway)
	svc := newTestCheckout(repo, gw, &fakeTokens{token: "ipn-123"})

	gw.On("SubmitOrder", mock.Anything, mock.Anything).
		Return(&gateway.SubmitOrderResponse{Error: &gateway.APIError{Message: "amount too low"}}, nil)

	_, err := svc.StartCheckout(context.Background(), headphonesCart(), testBilling())

	var initErr *GatewayInitiationError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, "order-1", initErr.OrderID)
	assert.ErrorIs(t, err, ErrNoRedirect)
	assert.Contains(t, err.Error(), "amount too low")

	order, err := repo.Get(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.True(t, decimal.RequireFromString("20.00").Equal(order.Amount))
}

func TestStartCheckout_GatewayTransportError(t *testing.T) {
	repo := newCountingRepo()
	gw := new(MockGateway)
	svc := newTestCheckout(repo, gw, &fakeTokens{token: "ipn-123"})

	gw.On("SubmitOrder", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	_, err := svc.StartCheckout(context.Background(), headphonesCart(), testBilling())

	var initErr *GatewayInitiationError
	require.ErrorAs(t, err, &initErr)
	_, err = repo.Get(context.Background(), "order-1")
	assert.NoError(t, err, "order is kept for manual follow-up")
}

func TestStartCheckout_LedgerFailure(t *testing.T) {
	repo := newCountingRepo()
	repo.insertErr = errors.New("db down")
	gw := new(MockGateway)
	svc := newTestCheckout(repo, gw, &fakeTokens{token: "ipn-123"})

	_, err := svc.StartCheckout(context.Background(), headphonesCart(), testBilling())

	var lErr *LedgerWriteError
	require.ErrorAs(t, err, &lErr)
	assert.True(t, IsRetryable(err))
	gw.AssertNotCalled(t, "SubmitOrder", mock.Anything, mock.Anything)
}

func TestCallbackURL(t *testing.T) {
	got, err := CallbackURL("https://shop.example/return?lang=en", "order-9")
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example/return?OrderMerchantReference=order-9&lang=en", got)

	_, err = CallbackURL("/relative", "order-9")
	assert.Error(t, err)
}
