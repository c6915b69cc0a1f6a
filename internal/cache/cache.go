package cache

import (
	"context"
	"errors"
	"time"
)

// CartStore is the client-side key/value store that holds a session's
// serialized cart. Entries expire after the TTL passed to Set.
type CartStore interface {
	Get(ctx context.Context, sessionID string) ([]byte, error)
	Set(ctx context.Context, sessionID string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, sessionID string) error
}

var ErrCacheMiss = errors.New("cache miss")

// KeyPrefix is the persisted name of the cart entry.
const KeyPrefix = "shoppingCart"

func cacheKey(sessionID string) string {
	return KeyPrefix + ":" + sessionID
}
