package domain

import "github.com/shopspring/decimal"

// CartItem is one line of a shopper's cart. ProductID is unique within a cart
// and Quantity is always at least 1; a line that would drop to zero is removed.
type CartItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

func (i CartItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CartSnapshot is an immutable copy of the cart lines plus derived totals.
type CartSnapshot struct {
	Items      []CartItem      `json:"items"`
	TotalItems int             `json:"totalItems"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

func NewCartSnapshot(items []CartItem) CartSnapshot {
	snapshot := CartSnapshot{
		Items:      make([]CartItem, len(items)),
		TotalPrice: decimal.Zero,
	}
	copy(snapshot.Items, items)

	for _, item := range snapshot.Items {
		snapshot.TotalItems += item.Quantity
		snapshot.TotalPrice = snapshot.TotalPrice.Add(item.Subtotal())
	}
	return snapshot
}

func (s CartSnapshot) IsEmpty() bool {
	return len(s.Items) == 0
}

// Lines returns a copy of the snapshot lines so callers can embed them
// without sharing the backing array.
func (s CartSnapshot) Lines() []CartItem {
	lines := make([]CartItem, len(s.Items))
	copy(lines, s.Items)
	return lines
}
