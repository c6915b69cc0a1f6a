package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fjod/paycart/internal/cart"
	"github.com/fjod/paycart/internal/catalog"
	"github.com/fjod/paycart/internal/repository"
	"github.com/fjod/paycart/internal/service"
	"github.com/fjod/paycart/pkg/logger"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Details   string `json:"details,omitempty"`
	OrderID   string `json:"orderId,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", slog.Any("error", err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// handleServiceError maps a domain or service error onto a status code and
// an ErrorResponse body.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			slog.String("code", body.Code), slog.Any("error", err))
	}
	respondJSON(w, status, body)
}

func classify(err error) (int, ErrorResponse) {
	body := ErrorResponse{Error: err.Error(), Retryable: service.IsRetryable(err)}

	var (
		validationErr *service.ValidationError
		notReadyErr   *service.GatewayNotReadyError
		initErr       *service.GatewayInitiationError
		missingErr    *service.MissingCallbackParamsError
		verifyErr     *service.VerificationError
		ledgerErr     *service.LedgerWriteError
	)

	switch {
	case errors.As(err, &validationErr):
		body.Code = "validation_failed"
		return http.StatusBadRequest, body
	case errors.As(err, &notReadyErr):
		body.Code = "gateway_not_ready"
		return http.StatusServiceUnavailable, body
	case errors.As(err, &initErr):
		body.Code = "gateway_initiation_failed"
		body.OrderID = initErr.OrderID
		return http.StatusBadGateway, body
	case errors.As(err, &missingErr):
		body.Code = "missing_callback_params"
		body.Details = "please contact support with your order details"
		return http.StatusBadRequest, body
	case errors.As(err, &verifyErr):
		body.Code = "verification_failed"
		return http.StatusBadGateway, body
	case errors.As(err, &ledgerErr):
		body.Code = "ledger_write_failed"
		return http.StatusInternalServerError, body
	case errors.Is(err, repository.ErrOrderNotFound):
		body.Code = "order_not_found"
		return http.StatusNotFound, body
	case errors.Is(err, catalog.ErrProductNotFound):
		body.Code = "product_not_found"
		return http.StatusNotFound, body
	case errors.Is(err, cart.ErrItemNotFound):
		body.Code = "item_not_found"
		return http.StatusNotFound, body
	case errors.Is(err, cart.ErrCartUnavailable):
		body.Code = "cart_unavailable"
		body.Retryable = true
		return http.StatusServiceUnavailable, body
	case errors.Is(err, cart.ErrInvalidQuantity), errors.Is(err, cart.ErrInvalidProduct):
		body.Code = "invalid_request"
		return http.StatusBadRequest, body
	}

	body.Code = "internal_error"
	body.Error = "internal server error"
	return http.StatusInternalServerError, body
}
