// Package repository holds the order ledger: the durable record of every
// checkout and the single place its status changes.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/paycart/internal/domain"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrDuplicateOrder = errors.New("order with this id already exists")
	// ErrStatusConflict is returned when an update would move an order out of
	// the terminal status it already holds.
	ErrStatusConflict = errors.New("order status conflict")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// OrderRepository is implemented by every ledger backend. Update is keyed by
// order id and conditional: it applies only while the stored status is
// PENDING or already equals the target, and skips the write when nothing
// would change. The returned bool reports whether a write happened; on
// ErrStatusConflict the returned order is the stored record.
type OrderRepository interface {
	Insert(ctx context.Context, order *domain.Order) error
	Update(ctx context.Context, orderID string, update domain.OrderUpdate) (*domain.Order, bool, error)
	Get(ctx context.Context, orderID string) (*domain.Order, error)
	Close() error
}

func validateNew(order *domain.Order) error {
	if order == nil || order.ID == "" {
		return errors.New("order id is required")
	}
	if !order.Status.Valid() {
		return fmt.Errorf("invalid order status %q", order.Status)
	}
	return nil
}

// applyUpdate checks the transition and merges u into o. It reports whether o
// changed; UpdatedAt is stamped only when it did.
func applyUpdate(o *domain.Order, u domain.OrderUpdate, now time.Time) (bool, error) {
	if u.Status != "" && !domain.CanTransitionTo(o.Status, u.Status) {
		return false, fmt.Errorf("%w: %s -> %s", ErrStatusConflict, o.Status, u.Status)
	}
	if !o.Apply(u) {
		return false, nil
	}
	o.UpdatedAt = now
	return true, nil
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.LineItems = append([]domain.CartItem(nil), o.LineItems...)
	return &c
}
