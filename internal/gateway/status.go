package gateway

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/paycart/internal/domain"
)

// Payment status descriptions reported by the gateway.
const (
	StatusCompleted = "Completed"
	StatusPending   = "Pending"
	StatusFailed    = "Failed"
	StatusInvalid   = "Invalid"
	StatusReversed  = "Reversed"
	StatusDeclined  = "Declined"
)

var ErrUnmappedStatus = errors.New("unmapped gateway payment status")

var statusMap = map[string]domain.OrderStatus{
	strings.ToLower(StatusCompleted): domain.OrderStatusCompleted,
	strings.ToLower(StatusPending):   domain.OrderStatusFailed,
	strings.ToLower(StatusFailed):    domain.OrderStatusFailed,
	strings.ToLower(StatusInvalid):   domain.OrderStatusFailed,
	strings.ToLower(StatusReversed):  domain.OrderStatusRejected,
	strings.ToLower(StatusDeclined):  domain.OrderStatusRejected,
}

// MapStatus translates a gateway status description into an order status.
// Pending is treated as a failed attempt: the shopper is back from the
// gateway and the payment did not go through.
func MapStatus(description string) (domain.OrderStatus, error) {
	status, ok := statusMap[strings.ToLower(strings.TrimSpace(description))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnmappedStatus, description)
	}
	return status, nil
}
