package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type BillingContact struct {
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	AddressLine1 string `json:"addressLine1"`
	City         string `json:"city"`
	CountryCode  string `json:"countryCode"`
}

// Order is the durable record created from a cart snapshot at checkout. Amount
// and LineItems are fixed at creation and never recomputed from the cart.
type Order struct {
	ID                string          `json:"id"`
	Billing           BillingContact  `json:"billing"`
	Currency          string          `json:"currency"`
	Amount            decimal.Decimal `json:"amount"`
	Description       string          `json:"description"`
	LineItems         []CartItem      `json:"lineItems"`
	Status            OrderStatus     `json:"status"`
	GatewayTrackingID string          `json:"gatewayTrackingId,omitempty"`
	GatewayReference  string          `json:"gatewayReference,omitempty"`
	PaymentMethod     string          `json:"paymentMethod,omitempty"`
	ConfirmationCode  string          `json:"confirmationCode,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// OrderUpdate carries the fields a reconciliation may write. Empty strings
// leave the stored value untouched.
type OrderUpdate struct {
	Status            OrderStatus
	GatewayTrackingID string
	GatewayReference  string
	PaymentMethod     string
	ConfirmationCode  string
}

// Apply merges u into o and reports whether anything changed. It does not
// enforce transitions; ledgers check CanTransitionTo before calling it.
func (o *Order) Apply(u OrderUpdate) bool {
	changed := false
	set := func(dst *string, v string) {
		if v != "" && *dst != v {
			*dst = v
			changed = true
		}
	}

	if u.Status != "" && o.Status != u.Status {
		o.Status = u.Status
		changed = true
	}
	set(&o.GatewayTrackingID, u.GatewayTrackingID)
	set(&o.GatewayReference, u.GatewayReference)
	set(&o.PaymentMethod, u.PaymentMethod)
	set(&o.ConfirmationCode, u.ConfirmationCode)
	return changed
}
