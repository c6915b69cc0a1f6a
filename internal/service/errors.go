package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyCart     = errors.New("cart is empty, nothing to checkout")
	ErrInvalidAmount = errors.New("order amount must be greater than zero")
	ErrNoRedirect    = errors.New("gateway returned no redirect url")
)

// ValidationError names the first checkout field that is missing or invalid.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("please fill in the '%s' field", e.Field)
}

func (e *ValidationError) Unwrap() error   { return e.Err }
func (e *ValidationError) Retryable() bool { return false }

// GatewayNotReadyError means no readiness token could be obtained.
type GatewayNotReadyError struct {
	Err error
}

func (e *GatewayNotReadyError) Error() string {
	return fmt.Sprintf("payment gateway is not ready: %v", e.Err)
}

func (e *GatewayNotReadyError) Unwrap() error   { return e.Err }
func (e *GatewayNotReadyError) Retryable() bool { return true }

// GatewayInitiationError means the gateway refused the order or returned no
// redirect. The order stays PENDING in the ledger.
type GatewayInitiationError struct {
	OrderID string
	Err     error
}

func (e *GatewayInitiationError) Error() string {
	return fmt.Sprintf("payment initiation failed for order %s: %v", e.OrderID, e.Err)
}

func (e *GatewayInitiationError) Unwrap() error   { return e.Err }
func (e *GatewayInitiationError) Retryable() bool { return false }

// MissingCallbackParamsError means the return url lacks an identifier.
type MissingCallbackParamsError struct {
	Missing []string
}

func (e *MissingCallbackParamsError) Error() string {
	return fmt.Sprintf("payment details not found: missing %s", strings.Join(e.Missing, ", "))
}

func (e *MissingCallbackParamsError) Retryable() bool { return false }

// VerificationError means the gateway status could not be established. It is
// never a payment outcome; re-running the reconciliation is safe.
type VerificationError struct {
	TrackingID string
	Err        error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("error verifying payment %s: %v", e.TrackingID, e.Err)
}

func (e *VerificationError) Unwrap() error   { return e.Err }
func (e *VerificationError) Retryable() bool { return true }

// LedgerWriteError means the order ledger could not be written. Ledger
// updates are idempotent, so retrying is safe.
type LedgerWriteError struct {
	OrderID string
	Err     error
}

func (e *LedgerWriteError) Error() string {
	return fmt.Sprintf("order ledger write failed for %s: %v", e.OrderID, e.Err)
}

func (e *LedgerWriteError) Unwrap() error   { return e.Err }
func (e *LedgerWriteError) Retryable() bool { return true }

// IsRetryable reports whether err, or an error it wraps, is classified as
// retryable by re-invoking the operation.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	return errors.As(err, &r) && r.Retryable()
}
