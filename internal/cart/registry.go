package cart

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fjod/paycart/internal/cache"
	"golang.org/x/sync/singleflight"
)

// Registry hands out one Store per client session and closes stores that
// have been idle longer than idleTimeout.
type Registry struct {
	storage     cache.CartStore
	cfg         Config
	log         *slog.Logger
	idleTimeout time.Duration
	now         func() time.Time

	mu     sync.Mutex
	stores map[string]*registryEntry
	sfg    singleflight.Group // one storage load per session at a time

	stopCleanup chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

type registryEntry struct {
	store    *Store
	lastUsed time.Time
}

func NewRegistry(storage cache.CartStore, cfg Config, idleTimeout time.Duration, log *slog.Logger) *Registry {
	r := &Registry{
		storage:     storage,
		cfg:         cfg,
		log:         log,
		idleTimeout: idleTimeout,
		now:         time.Now,
		stores:      make(map[string]*registryEntry),
		stopCleanup: make(chan struct{}),
	}

	if idleTimeout > 0 {
		r.wg.Add(1)
		go r.cleanupLoop(idleTimeout / 2)
	}
	return r
}

// Get returns the session's store, loading it from storage on first use.
func (r *Registry) Get(ctx context.Context, sessionID string) *Store {
	if s := r.lookup(sessionID); s != nil {
		return s
	}

	v, _, _ := r.sfg.Do(sessionID, func() (interface{}, error) {
		if s := r.lookup(sessionID); s != nil {
			return s, nil
		}
		s := Load(ctx, sessionID, r.storage, r.cfg, r.log)

		r.mu.Lock()
		r.stores[sessionID] = &registryEntry{store: s, lastUsed: r.now()}
		r.mu.Unlock()
		return s, nil
	})
	return v.(*Store)
}

func (r *Registry) lookup(sessionID string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.stores[sessionID]; ok {
		e.lastUsed = r.now()
		return e.store
	}
	return nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

func (r *Registry) cleanupLoop(interval time.Duration) {
	defer r.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.evictIdle()
		case <-r.stopCleanup:
			return
		}
	}
}

// evictIdle closes stores not used within idleTimeout. Closing flushes any
// pending revision, so eviction never loses a mutation.
func (r *Registry) evictIdle() {
	cutoff := r.now().Add(-r.idleTimeout)

	var idle []*Store
	r.mu.Lock()
	for id, e := range r.stores {
		if e.lastUsed.Before(cutoff) {
			idle = append(idle, e.store)
			delete(r.stores, id)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	if len(idle) > 0 {
		r.log.Debug("evicted idle carts", slog.Int("count", len(idle)))
	}
}

// Close stops the cleanup loop and closes every open store.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stopCleanup) })
	r.wg.Wait()

	r.mu.Lock()
	stores := make([]*Store, 0, len(r.stores))
	for id, e := range r.stores {
		stores = append(stores, e.store)
		delete(r.stores, id)
	}
	r.mu.Unlock()

	for _, s := range stores {
		s.Close()
	}
}
