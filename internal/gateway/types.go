package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// SubmitOrderRequest is the body of POST submit_order.
type SubmitOrderRequest struct {
	ID             string      `json:"id"`
	Amount         json.Number `json:"amount"`
	Currency       string      `json:"currency"`
	Description    string      `json:"description"`
	CallbackURL    string      `json:"callback_url"`
	NotificationID string      `json:"notification_id"`
	FirstName      string      `json:"first_name"`
	LastName       string      `json:"last_name"`
	Email          string      `json:"email"`
	Phone          string      `json:"phone"`
	CountryCode    string      `json:"country_code"`
	Line1          string      `json:"line_1"`
	City           string      `json:"city"`
}

// FormatAmount renders an amount the way the gateway expects it: a JSON
// number with two decimals.
func FormatAmount(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

type SubmitOrderResponse struct {
	RedirectURL       string    `json:"redirect_url"`
	OrderTrackingID   string    `json:"order_tracking_id"`
	MerchantReference string    `json:"merchant_reference"`
	Error             *APIError `json:"error,omitempty"`
}

// TransactionStatus is the body returned by check_status.
type TransactionStatus struct {
	PaymentStatusDescription string          `json:"payment_status_description"`
	Amount                   decimal.Decimal `json:"amount"`
	PaymentMethod            string          `json:"payment_method"`
	ConfirmationCode         string          `json:"confirmation_code"`
	PaymentReference         string          `json:"payment_reference"`
	MerchantReference        string          `json:"merchant_reference"`
	Currency                 string          `json:"currency"`
	StatusCode               int             `json:"status_code"`
	Error                    *APIError       `json:"error,omitempty"`
}

type ipnRegistrationRequest struct {
	URL              string `json:"url"`
	NotificationType string `json:"ipn_notification_type"`
}

type ipnRegistrationResponse struct {
	Registration struct {
		IPNID string `json:"ipn_id"`
		URL   string `json:"url"`
	} `json:"ipn_registration"`
	Error *APIError `json:"error,omitempty"`
}

// APIError is a business error reported by the gateway in a response body.
// The gateway reports it either as an object or as a bare string.
type APIError struct {
	Type    string `json:"error_type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway error %s: %s", e.Code, e.Message)
	}
	return "gateway error: " + e.Message
}

func (e *APIError) UnmarshalJSON(data []byte) error {
	var msg string
	if err := json.Unmarshal(data, &msg); err == nil {
		e.Message = msg
		return nil
	}

	type plain APIError
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = APIError(p)
	return nil
}

// empty reports whether the gateway sent an error field with no content.
func (e *APIError) empty() bool {
	return e == nil || (e.Type == "" && e.Code == "" && e.Message == "")
}
