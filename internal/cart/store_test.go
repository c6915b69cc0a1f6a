package cart

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/fjod/paycart/internal/cache"
	"github.com/fjod/paycart/internal/domain"
	"github.com/fjod/paycart/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStorage struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttl     map[string]time.Duration
	sets    [][]byte
	deletes int
	getErr  error
	setErr  error
	block   chan struct{}
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		data: make(map[string][]byte),
		ttl:  make(map[string]time.Duration),
	}
}

func (f *fakeStorage) Get(_ context.Context, sessionID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.data[sessionID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return v, nil
}

func (f *fakeStorage) Set(_ context.Context, sessionID string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.data[sessionID] = value
	f.ttl[sessionID] = ttl
	f.sets = append(f.sets, value)
	return nil
}

func (f *fakeStorage) Delete(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, sessionID)
	f.deletes++
	return nil
}

func (f *fakeStorage) setGetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

func (f *fakeStorage) get(sessionID string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[sessionID]
	return v, ok
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ConfirmationTTL = 20 * time.Millisecond
	return cfg
}

func newTestStore(t *testing.T, storage cache.CartStore) *Store {
	t.Helper()
	s := Load(context.Background(), "sess-1", storage, testConfig(), logger.Discard())
	t.Cleanup(s.Close)
	return s
}

func product(id, name, price string) domain.Product {
	return domain.Product{ID: id, Name: name, Price: decimal.RequireFromString(price)}
}

func assertSameItems(t *testing.T, want, got []domain.CartItem) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ProductID, got[i].ProductID)
		assert.Equal(t, want[i].Name, got[i].Name)
		assert.Equal(t, want[i].Quantity, got[i].Quantity)
		assert.True(t, want[i].UnitPrice.Equal(got[i].UnitPrice), "price %s != %s", want[i].UnitPrice, got[i].UnitPrice)
	}
}

func TestHeadphonesScenario(t *testing.T) {
	storage := newFakeStorage()
	s := newTestStore(t, storage)
	ctx := context.Background()

	snapshot, err := s.AddItem(product("headphones", "Wireless Headphones", "10.00"), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, snapshot.TotalItems)
	assert.True(t, decimal.RequireFromString("20.00").Equal(snapshot.TotalPrice))

	require.NoError(t, s.Flush(ctx))
	_, ok := storage.get("sess-1")
	assert.True(t, ok, "non-empty cart must be persisted")
	assert.Equal(t, DefaultConfig().TTL, storage.ttl["sess-1"])

	snapshot, err = s.UpdateQuantity("headphones", -2)
	require.NoError(t, err)
	assert.True(t, snapshot.IsEmpty())

	require.NoError(t, s.Flush(ctx))
	_, ok = storage.get("sess-1")
	assert.False(t, ok, "empty cart must remove the persisted entry")
}

func TestAddItem_IncrementsExistingLine(t *testing.T) {
	s := newTestStore(t, newFakeStorage())

	_, err := s.AddItem(product("1", "Wireless Headphones", "1"), 1)
	require.NoError(t, err)
	snapshot, err := s.AddItem(product("1", "Wireless Headphones", "1"), 3)
	require.NoError(t, err)

	require.Len(t, snapshot.Items, 1)
	assert.Equal(t, 4, snapshot.Items[0].Quantity)
}

func TestAddItem_RejectsInvalidInput(t *testing.T) {
	s := newTestStore(t, newFakeStorage())

	_, err := s.AddItem(product("1", "Wireless Headphones", "1"), 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = s.AddItem(product("", "Nameless", "1"), 1)
	assert.ErrorIs(t, err, ErrInvalidProduct)

	_, err = s.AddItem(product("2", "Negative", "-1"), 1)
	assert.ErrorIs(t, err, ErrInvalidProduct)

	assert.True(t, s.Snapshot().IsEmpty())
	assert.Equal(t, uint64(0), s.Revision())
}

func TestUpdateQuantity_MissingLine(t *testing.T) {
	s := newTestStore(t, newFakeStorage())

	_, err := s.UpdateQuantity("nope", 1)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestRemoveItem_AbsentIsNoop(t *testing.T) {
	s := newTestStore(t, newFakeStorage())
	_, err := s.AddItem(product("1", "Wireless Headphones", "1"), 1)
	require.NoError(t, err)

	snapshot, err := s.RemoveItem("absent")
	require.NoError(t, err)
	assert.Len(t, snapshot.Items, 1)

	snapshot, err = s.RemoveItem("1")
	require.NoError(t, err)
	assert.True(t, snapshot.IsEmpty())
}

func TestRandomMutations_NeverKeepNonPositiveQuantity(t *testing.T) {
	storage := newFakeStorage()
	s := newTestStore(t, storage)
	rng := rand.New(rand.NewSource(42))
	catalog := []domain.Product{
		product("1", "Wireless Headphones", "1"),
		product("2", "Smartwatch", "1.99"),
		product("3", "Portable Bluetooth Speaker", "49.99"),
		product("4", "Laptop Stand", "29.99"),
	}

	for i := 0; i < 500; i++ {
		p := catalog[rng.Intn(len(catalog))]
		var snapshot domain.CartSnapshot
		var err error
		switch rng.Intn(3) {
		case 0:
			snapshot, err = s.AddItem(p, 1+rng.Intn(3))
		case 1:
			snapshot, err = s.UpdateQuantity(p.ID, rng.Intn(7)-4)
			if errors.Is(err, ErrItemNotFound) {
				continue
			}
		case 2:
			snapshot, err = s.RemoveItem(p.ID)
		}
		require.NoError(t, err)

		want := decimal.Zero
		count := 0
		for _, item := range snapshot.Items {
			require.Greater(t, item.Quantity, 0)
			want = want.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
			count += item.Quantity
		}
		require.True(t, want.Equal(snapshot.TotalPrice))
		require.Equal(t, count, snapshot.TotalItems)
	}

	require.NoError(t, s.Flush(context.Background()))
	final := s.Snapshot()
	data, ok := storage.get("sess-1")
	if final.IsEmpty() {
		assert.False(t, ok)
		return
	}
	require.True(t, ok)
	persisted, err := decodeItems(data)
	require.NoError(t, err)
	assertSameItems(t, final.Items, persisted)
}

func TestPersistence_RoundTrip(t *testing.T) {
	storage := cache.NewMemoryCache()
	s := Load(context.Background(), "sess-rt", storage, testConfig(), logger.Discard())

	_, err := s.AddItem(product("1", "Wireless Headphones", "10.00"), 2)
	require.NoError(t, err)
	_, err = s.AddItem(product("5", "External SSD 1TB", "119.99"), 1)
	require.NoError(t, err)
	want := s.Snapshot()
	s.Close()

	reloaded := Load(context.Background(), "sess-rt", storage, testConfig(), logger.Discard())
	defer reloaded.Close()

	got := reloaded.Snapshot()
	assertSameItems(t, want.Items, got.Items)
	assert.True(t, want.TotalPrice.Equal(got.TotalPrice))
	assert.Equal(t, want.TotalItems, got.TotalItems)
}

func TestLoad_CorruptEntryIsPurged(t *testing.T) {
	for name, payload := range map[string]string{
		"not json":      `{{{`,
		"not an array":  `{"productId":"1"}`,
		"null":          `null`,
		"zero quantity": `[{"productId":"1","name":"x","price":1,"quantity":0}]`,
		"duplicate id":  `[{"productId":"1","name":"x","price":1,"quantity":1},{"productId":"1","name":"x","price":1,"quantity":1}]`,
		"bad price":     `[{"productId":"1","name":"x","price":"abc","quantity":1}]`,
	} {
		t.Run(name, func(t *testing.T) {
			storage := newFakeStorage()
			storage.data["sess-1"] = []byte(payload)

			s := newTestStore(t, storage)

			assert.True(t, s.Snapshot().IsEmpty())
			_, ok := storage.get("sess-1")
			assert.False(t, ok, "corrupt entry must be removed")
			assert.Equal(t, 1, storage.deletes)
		})
	}
}

func TestLoad_TransientReadErrorKeepsPersistedCart(t *testing.T) {
	storage := newFakeStorage()
	seeded := []domain.CartItem{
		{ProductID: "1", Name: "Wireless Headphones", UnitPrice: decimal.RequireFromString("1"), Quantity: 2},
		{ProductID: "5", Name: "External SSD 1TB", UnitPrice: decimal.RequireFromString("119.99"), Quantity: 1},
	}
	data, err := encodeItems(seeded)
	require.NoError(t, err)
	storage.data["sess-1"] = data
	storage.setGetErr(errors.New("redis: i/o timeout"))

	s := newTestStore(t, storage)
	assert.Equal(t, 0, storage.deletes, "transient read errors must not purge the entry")

	_, err = s.AddItem(product("2", "Smartwatch", "1.99"), 1)
	require.ErrorIs(t, err, ErrCartUnavailable)
	assert.Equal(t, uint64(0), s.Revision())

	storage.setGetErr(nil)
	snapshot, err := s.AddItem(product("2", "Smartwatch", "1.99"), 1)
	require.NoError(t, err)
	require.Len(t, snapshot.Items, 3)
	require.NoError(t, s.Flush(context.Background()))

	persisted, ok := storage.get("sess-1")
	require.True(t, ok)
	items, err := decodeItems(persisted)
	require.NoError(t, err)
	assertSameItems(t, snapshot.Items, items)
}

func TestSnapshot_RetriesFailedLoad(t *testing.T) {
	storage := newFakeStorage()
	data, err := encodeItems([]domain.CartItem{
		{ProductID: "1", Name: "Wireless Headphones", UnitPrice: decimal.RequireFromString("1"), Quantity: 2},
	})
	require.NoError(t, err)
	storage.data["sess-1"] = data
	storage.setGetErr(errors.New("redis: connection refused"))

	s := newTestStore(t, storage)
	assert.True(t, s.Snapshot().IsEmpty())

	storage.setGetErr(nil)
	assert.Equal(t, 2, s.Snapshot().TotalItems)
}

func TestClearForOrder_OncePerOrder(t *testing.T) {
	storage := cache.NewMemoryCache()
	s := Load(context.Background(), "sess-paid", storage, testConfig(), logger.Discard())

	_, err := s.AddItem(product("1", "Wireless Headphones", "1"), 2)
	require.NoError(t, err)
	require.NoError(t, s.ClearForOrder("order-1"))
	assert.True(t, s.Snapshot().IsEmpty())

	_, err = s.AddItem(product("2", "Smartwatch", "1.99"), 1)
	require.NoError(t, err)
	require.NoError(t, s.ClearForOrder("order-1"))
	assert.Equal(t, 1, s.Snapshot().TotalItems)
	s.Close()

	// the marker outlives the store
	reloaded := Load(context.Background(), "sess-paid", storage, testConfig(), logger.Discard())
	defer reloaded.Close()
	require.NoError(t, reloaded.ClearForOrder("order-1"))
	assert.Equal(t, 1, reloaded.Snapshot().TotalItems)

	require.NoError(t, reloaded.ClearForOrder("order-2"))
	assert.True(t, reloaded.Snapshot().IsEmpty())
}

func TestClearForOrder_ClosedStore(t *testing.T) {
	s := Load(context.Background(), "sess-closed", cache.NewMemoryCache(), testConfig(), logger.Discard())
	s.Close()

	assert.ErrorIs(t, s.ClearForOrder("order-1"), ErrStoreClosed)
}

func TestPersistence_WritesAreOrdered(t *testing.T) {
	storage := newFakeStorage()
	storage.block = make(chan struct{})
	s := newTestStore(t, storage)

	_, err := s.AddItem(product("1", "Wireless Headphones", "1"), 1)
	require.NoError(t, err)

	// the first write is stuck in storage while more increments arrive
	for i := 0; i < 20; i++ {
		_, err = s.UpdateQuantity("1", 1)
		require.NoError(t, err)
	}

	storage.mu.Lock()
	close(storage.block)
	storage.block = nil
	storage.mu.Unlock()

	require.NoError(t, s.Flush(context.Background()))

	last := 0
	storage.mu.Lock()
	sets := storage.sets
	storage.mu.Unlock()
	for _, data := range sets {
		items, err := decodeItems(data)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.GreaterOrEqual(t, items[0].Quantity, last, "an earlier state overwrote a later one")
		last = items[0].Quantity
	}
	assert.Equal(t, 21, last)
}

func TestFlush_ReturnsWriteError(t *testing.T) {
	storage := newFakeStorage()
	storage.setErr = errors.New("disk full")
	s := newTestStore(t, storage)

	_, err := s.AddItem(product("1", "Wireless Headphones", "1"), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.ErrorContains(t, s.Flush(ctx), "disk full")
}

func TestClose_PersistsPendingRevision(t *testing.T) {
	storage := newFakeStorage()
	s := Load(context.Background(), "sess-1", storage, testConfig(), logger.Discard())

	_, err := s.AddItem(product("1", "Wireless Headphones", "1"), 1)
	require.NoError(t, err)
	s.Close()

	_, ok := storage.get("sess-1")
	assert.True(t, ok)

	_, err = s.AddItem(product("1", "Wireless Headphones", "1"), 1)
	assert.ErrorIs(t, err, ErrStoreClosed)
	s.Close() // second close is a no-op
}

func TestClear_RemovesPersistedEntry(t *testing.T) {
	storage := newFakeStorage()
	s := newTestStore(t, storage)

	_, err := s.AddItem(product("1", "Wireless Headphones", "1"), 1)
	require.NoError(t, err)
	require.NoError(t, s.Flush(context.Background()))

	require.NoError(t, s.Clear())
	require.NoError(t, s.Flush(context.Background()))

	assert.True(t, s.Snapshot().IsEmpty())
	_, ok := storage.get("sess-1")
	assert.False(t, ok)
}

func TestConfirmation_ExpiresAndTimerStopsOnClose(t *testing.T) {
	s := newTestStore(t, newFakeStorage())

	_, err := s.AddItem(product("1", "Wireless Headphones", "1"), 1)
	require.NoError(t, err)
	assert.Equal(t, "Wireless Headphones added to cart!", s.Confirmation())

	require.Eventually(t, func() bool {
		return s.Confirmation() == ""
	}, time.Second, 5*time.Millisecond, "confirmation notice did not expire")

	_, err = s.AddItem(product("2", "Smartwatch", "1.99"), 1)
	require.NoError(t, err)
	s.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Nil(t, s.confirmTimer)
}
