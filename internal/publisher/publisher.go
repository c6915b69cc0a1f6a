// Package publisher emits order events after a reconciliation resolves an
// order. Delivery is best effort; callers log failures and carry on.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fjod/paycart/internal/domain"
)

type Publisher interface {
	PublishOrderResolved(ctx context.Context, event domain.OrderResolved) error
	Close() error
}

func encodeEvent(event domain.OrderResolved) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

// Noop drops every event. It is used when no broker is configured.
type Noop struct{}

func (Noop) PublishOrderResolved(context.Context, domain.OrderResolved) error { return nil }
func (Noop) Close() error                                                     { return nil }
