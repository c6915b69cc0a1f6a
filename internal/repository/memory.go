package repository

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/paycart/internal/domain"
)

// MemoryRepository keeps orders in process memory. It backs tests and local
// runs without a database.
type MemoryRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		orders: make(map[string]*domain.Order),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepository) Insert(_ context.Context, order *domain.Order) error {
	if err := validateNew(order); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[order.ID]; ok {
		return ErrDuplicateOrder
	}

	now := r.now()
	order.CreatedAt = now
	order.UpdatedAt = now
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, orderID string, update domain.OrderUpdate) (*domain.Order, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[orderID]
	if !ok {
		return nil, false, ErrOrderNotFound
	}

	next := cloneOrder(stored)
	changed, err := applyUpdate(next, update, r.now())
	if err != nil {
		return cloneOrder(stored), false, err
	}
	if changed {
		r.orders[orderID] = next
	}
	return cloneOrder(next), changed, nil
}

func (r *MemoryRepository) Get(_ context.Context, orderID string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(stored), nil
}

func (r *MemoryRepository) Close() error {
	return nil
}
