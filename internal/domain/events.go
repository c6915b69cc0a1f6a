package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const EventOrderResolved = "order.resolved"

// OrderResolved is published after a reconciliation writes a terminal
// status to the ledger.
type OrderResolved struct {
	OrderID    string          `json:"orderId"`
	Status     OrderStatus     `json:"status"`
	TrackingID string          `json:"trackingId"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	ResolvedAt time.Time       `json:"resolvedAt"`
}
