package cart

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/paycart/internal/domain"
	"github.com/shopspring/decimal"
)

var ErrCorruptCart = errors.New("persisted cart is corrupt")

// persistedItem is the stored shape of a cart line:
// {productId, name, price, quantity} with price as a JSON number.
type persistedItem struct {
	ProductID string      `json:"productId"`
	Name      string      `json:"name"`
	Price     json.Number `json:"price"`
	Quantity  int         `json:"quantity"`
}

func encodeItems(items []domain.CartItem) ([]byte, error) {
	out := make([]persistedItem, len(items))
	for i, item := range items {
		out[i] = persistedItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     json.Number(item.UnitPrice.String()),
			Quantity:  item.Quantity,
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal cart failed: %w", err)
	}
	return data, nil
}

// decodeItems parses a persisted cart and rejects anything that could not
// have been written by encodeItems for a well-formed cart.
func decodeItems(data []byte) ([]domain.CartItem, error) {
	var in []persistedItem
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptCart, err)
	}
	if in == nil {
		return nil, fmt.Errorf("%w: not an array", ErrCorruptCart)
	}

	seen := make(map[string]struct{}, len(in))
	items := make([]domain.CartItem, 0, len(in))
	for i, p := range in {
		if p.ProductID == "" {
			return nil, fmt.Errorf("%w: line %d has no productId", ErrCorruptCart, i)
		}
		if _, dup := seen[p.ProductID]; dup {
			return nil, fmt.Errorf("%w: duplicate productId %q", ErrCorruptCart, p.ProductID)
		}
		if p.Quantity < 1 {
			return nil, fmt.Errorf("%w: line %d has quantity %d", ErrCorruptCart, i, p.Quantity)
		}
		price, err := decimal.NewFromString(p.Price.String())
		if err != nil || price.IsNegative() {
			return nil, fmt.Errorf("%w: line %d has invalid price %q", ErrCorruptCart, i, p.Price)
		}

		seen[p.ProductID] = struct{}{}
		items = append(items, domain.CartItem{
			ProductID: p.ProductID,
			Name:      p.Name,
			UnitPrice: price,
			Quantity:  p.Quantity,
		})
	}
	return items, nil
}
