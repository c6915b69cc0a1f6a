// Package cart owns a shopper's cart. The in-memory lines are the source of
// truth; every mutation bumps a revision and a single writer goroutine
// persists the latest revision, so a stale state never overwrites a newer one.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fjod/paycart/internal/cache"
	"github.com/fjod/paycart/internal/domain"
)

var (
	ErrItemNotFound    = errors.New("item not found in cart")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrInvalidProduct  = errors.New("invalid product")
	ErrStoreClosed     = errors.New("cart store is closed")
	ErrCartUnavailable = errors.New("cart storage is unavailable")
)

type Config struct {
	// TTL is the expiry window of the persisted entry.
	TTL time.Duration
	// ConfirmationTTL is how long the "added to cart" notice stays visible.
	ConfirmationTTL time.Duration
	// WriteTimeout bounds a single persistence write.
	WriteTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		TTL:             30 * 24 * time.Hour,
		ConfirmationTTL: 2 * time.Second,
		WriteTimeout:    5 * time.Second,
	}
}

type Store struct {
	sessionID string
	storage   cache.CartStore
	cfg       Config
	log       *slog.Logger

	mu           sync.Mutex
	items        []domain.CartItem
	revision     uint64
	persistedRev uint64
	failedRev    uint64
	writeErr     error
	written      chan struct{} // closed and replaced after every write attempt
	confirmation string
	confirmGen   uint64
	confirmTimer *time.Timer
	closed       bool

	// restored is false while the persisted entry could not be read; no
	// mutation or write happens until a restore succeeds.
	restored      bool
	clearedOrders map[string]struct{}

	restoreMu sync.Mutex
	clearMu   sync.Mutex

	kick chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// Load restores the session's cart from storage and starts its writer. It
// never fails: a missing entry yields an empty cart, and an entry that does
// not parse is purged and treated as absent. A failed read leaves the store
// unrestored; the read is retried before the next mutation.
func Load(ctx context.Context, sessionID string, storage cache.CartStore, cfg Config, log *slog.Logger) *Store {
	s := &Store{
		sessionID: sessionID,
		storage:   storage,
		cfg:       cfg,
		log:       log.With(slog.String("session_id", sessionID)),
		written:       make(chan struct{}),
		clearedOrders: make(map[string]struct{}),
		kick:          make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
	if items, err := s.restore(ctx); err != nil {
		s.log.Warn("failed to load cart, will retry", slog.Any("error", err))
	} else {
		s.items = items
		s.restored = true
	}

	s.wg.Add(1)
	go s.writeLoop()
	return s
}

// restore reads the persisted lines. Only a storage failure is returned;
// absent and corrupt entries both yield an empty cart.
func (s *Store) restore(ctx context.Context) ([]domain.CartItem, error) {
	data, err := s.storage.Get(ctx, s.sessionID)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	items, err := decodeItems(data)
	if err != nil {
		s.log.Warn("discarding corrupt persisted cart", slog.Any("error", err))
		if errDel := s.storage.Delete(ctx, s.sessionID); errDel != nil {
			s.log.Error("failed to purge corrupt cart", slog.Any("error", errDel))
		}
		return nil, nil
	}
	return items, nil
}

// ensureRestored retries the initial read of a store whose load failed.
func (s *Store) ensureRestored() error {
	s.restoreMu.Lock()
	defer s.restoreMu.Unlock()

	s.mu.Lock()
	done := s.restored || s.closed
	s.mu.Unlock()
	if done {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()
	items, err := s.restore(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}

	s.mu.Lock()
	s.items = items
	s.restored = true
	s.mu.Unlock()
	return nil
}

func (s *Store) SessionID() string {
	return s.sessionID
}

// AddItem increments the line for product by qty, or appends a new line.
func (s *Store) AddItem(product domain.Product, qty int) (domain.CartSnapshot, error) {
	if qty < 1 {
		return domain.CartSnapshot{}, ErrInvalidQuantity
	}
	if product.ID == "" || product.Price.IsNegative() {
		return domain.CartSnapshot{}, ErrInvalidProduct
	}

	return s.mutate(func() error {
		if i := s.indexOf(product.ID); i >= 0 {
			s.items[i].Quantity += qty
		} else {
			s.items = append(s.items, domain.CartItem{
				ProductID: product.ID,
				Name:      product.Name,
				UnitPrice: product.Price,
				Quantity:  qty,
			})
		}
		s.showConfirmation(fmt.Sprintf("%s added to cart!", product.Name))
		return nil
	})
}

// UpdateQuantity adds delta to an existing line. A result of zero or less
// removes the line.
func (s *Store) UpdateQuantity(productID string, delta int) (domain.CartSnapshot, error) {
	return s.mutate(func() error {
		i := s.indexOf(productID)
		if i < 0 {
			return ErrItemNotFound
		}
		if q := s.items[i].Quantity + delta; q > 0 {
			s.items[i].Quantity = q
		} else {
			s.items = append(s.items[:i], s.items[i+1:]...)
		}
		return nil
	})
}

// RemoveItem drops the line for productID; absent lines are a no-op.
func (s *Store) RemoveItem(productID string) (domain.CartSnapshot, error) {
	return s.mutate(func() error {
		if i := s.indexOf(productID); i >= 0 {
			s.items = append(s.items[:i], s.items[i+1:]...)
		}
		return nil
	})
}

// Clear empties the cart; the persisted entry is removed by the writer.
func (s *Store) Clear() error {
	_, err := s.mutate(func() error {
		s.items = nil
		return nil
	})
	return err
}

// ClearForOrder empties the cart once per paid order; later calls for the
// same order are no-ops. The marker is persisted next to the cart and
// outlives the store.
func (s *Store) ClearForOrder(orderID string) error {
	s.clearMu.Lock()
	defer s.clearMu.Unlock()

	s.mu.Lock()
	_, seen := s.clearedOrders[orderID]
	s.mu.Unlock()
	if seen {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()

	key := clearedMarkerKey(s.sessionID, orderID)
	_, err := s.storage.Get(ctx, key)
	switch {
	case err == nil:
		s.markCleared(orderID)
		return nil
	case !errors.Is(err, cache.ErrCacheMiss):
		return fmt.Errorf("read cart clear marker: %w", err)
	}

	if err := s.Clear(); err != nil {
		return err
	}
	if err := s.storage.Set(ctx, key, []byte(orderID), s.cfg.TTL); err != nil {
		return fmt.Errorf("write cart clear marker: %w", err)
	}
	s.markCleared(orderID)
	return nil
}

func (s *Store) markCleared(orderID string) {
	s.mu.Lock()
	s.clearedOrders[orderID] = struct{}{}
	s.mu.Unlock()
}

func clearedMarkerKey(sessionID, orderID string) string {
	return sessionID + ":cleared:" + orderID
}

// Snapshot returns the current lines. A store whose load failed retries the
// read first and, while storage stays unavailable, reports an empty cart.
func (s *Store) Snapshot() domain.CartSnapshot {
	if err := s.ensureRestored(); err != nil {
		s.log.Warn("cart not restored", slog.Any("error", err))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.NewCartSnapshot(s.items)
}

// Confirmation returns the transient notice set by the last AddItem, or ""
// once it has expired.
func (s *Store) Confirmation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmation
}

func (s *Store) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

func (s *Store) mutate(fn func() error) (domain.CartSnapshot, error) {
	if err := s.ensureRestored(); err != nil {
		return domain.CartSnapshot{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.CartSnapshot{}, ErrStoreClosed
	}
	if err := fn(); err != nil {
		s.mu.Unlock()
		return domain.CartSnapshot{}, err
	}
	s.revision++
	snapshot := domain.NewCartSnapshot(s.items)
	s.mu.Unlock()

	s.signal()
	return snapshot, nil
}

func (s *Store) indexOf(productID string) int {
	for i, item := range s.items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// showConfirmation must be called with s.mu held.
func (s *Store) showConfirmation(msg string) {
	s.confirmation = msg
	s.confirmGen++
	gen := s.confirmGen
	if s.confirmTimer != nil {
		s.confirmTimer.Stop()
	}
	s.confirmTimer = time.AfterFunc(s.cfg.ConfirmationTTL, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.confirmGen == gen {
			s.confirmation = ""
		}
	})
}

func (s *Store) signal() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Flush blocks until the current revision has been persisted, the write for
// it has failed, or ctx is done.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	target := s.revision
	for s.persistedRev < target {
		if s.writeErr != nil && s.failedRev >= target {
			err := s.writeErr
			s.mu.Unlock()
			return err
		}
		if s.closed {
			s.mu.Unlock()
			return ErrStoreClosed
		}
		written := s.written
		s.mu.Unlock()

		s.signal()
		select {
		case <-written:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.mu.Lock()
	}
	s.mu.Unlock()
	return nil
}

// Close stops the confirmation timer, persists any pending revision and
// waits for the writer to exit. It is safe to call more than once.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.confirmTimer != nil {
		s.confirmTimer.Stop()
		s.confirmTimer = nil
	}
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()
}

func (s *Store) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.kick:
			s.persist()
		case <-s.done:
			s.persist()
			return
		}
	}
}

// persist writes the latest revision. Only writeLoop calls it, so writes are
// serialized and always carry the newest state at the time they start.
func (s *Store) persist() {
	s.mu.Lock()
	rev := s.revision
	if rev == s.persistedRev || !s.restored {
		s.mu.Unlock()
		return
	}
	items := make([]domain.CartItem, len(s.items))
	copy(items, s.items)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()

	var err error
	if len(items) == 0 {
		err = s.storage.Delete(ctx, s.sessionID)
	} else {
		var data []byte
		if data, err = encodeItems(items); err == nil {
			err = s.storage.Set(ctx, s.sessionID, data, s.cfg.TTL)
		}
	}

	s.mu.Lock()
	if err != nil {
		s.log.Error("cart persistence failed", slog.Uint64("revision", rev), slog.Any("error", err))
		s.writeErr = err
		s.failedRev = rev
	} else {
		s.persistedRev = rev
		s.writeErr = nil
	}
	close(s.written)
	s.written = make(chan struct{})
	s.mu.Unlock()
}
