package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/fjod/paycart/internal/domain"
)

const ordersBucket = "orders"

// BoltRepository stores orders as JSON in a single embedded database file.
type BoltRepository struct {
	db *bolt.DB
}

func NewBoltRepository(path string) (*BoltRepository, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(ordersBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create orders bucket: %w", err)
	}

	return &BoltRepository{db: db}, nil
}

func (r *BoltRepository) Close() error {
	return r.db.Close()
}

func (r *BoltRepository) Insert(_ context.Context, order *domain.Order) error {
	if err := validateNew(order); err != nil {
		return err
	}

	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(ordersBucket))
		if b.Get([]byte(order.ID)) != nil {
			return ErrDuplicateOrder
		}

		now := time.Now().UTC()
		order.CreatedAt = now
		order.UpdatedAt = now

		data, err := json.Marshal(order)
		if err != nil {
			return fmt.Errorf("marshal order: %w", err)
		}
		return b.Put([]byte(order.ID), data)
	})
}

func (r *BoltRepository) Update(_ context.Context, orderID string, update domain.OrderUpdate) (*domain.Order, bool, error) {
	var result *domain.Order
	written := false

	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(ordersBucket))
		existing, err := decodeOrder(b.Get([]byte(orderID)))
		if err != nil {
			return err
		}

		result = existing
		next := cloneOrder(existing)
		changed, err := applyUpdate(next, update, time.Now().UTC())
		if err != nil || !changed {
			return err
		}

		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal order: %w", err)
		}
		result = next
		written = true
		return b.Put([]byte(orderID), data)
	})
	if err != nil && !errors.Is(err, ErrStatusConflict) {
		return nil, false, err
	}
	return result, written, err
}

func (r *BoltRepository) Get(_ context.Context, orderID string) (*domain.Order, error) {
	var order *domain.Order
	err := r.db.View(func(tx *bolt.Tx) error {
		var err error
		order, err = decodeOrder(tx.Bucket([]byte(ordersBucket)).Get([]byte(orderID)))
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func decodeOrder(v []byte) (*domain.Order, error) {
	if v == nil {
		return nil, ErrOrderNotFound
	}
	var o domain.Order
	if err := json.Unmarshal(v, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}
