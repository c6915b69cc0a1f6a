package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/paycart/internal/cart"
	"github.com/fjod/paycart/internal/catalog"
	"github.com/fjod/paycart/internal/domain"
	"github.com/go-chi/chi/v5"
)

// CartSessions hands out the cart store of a client session.
type CartSessions interface {
	Get(ctx context.Context, sessionID string) *cart.Store
}

type CartHandler struct {
	carts   CartSessions
	catalog catalog.Catalog
	timeout time.Duration
}

func NewCartHandler(carts CartSessions, products catalog.Catalog, timeout time.Duration) *CartHandler {
	return &CartHandler{
		carts:   carts,
		catalog: products,
		timeout: timeout,
	}
}

type AddItemRequestDTO struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Delta int `json:"delta"`
}

const maxLineQuantity = 99

type CartResponse struct {
	domain.CartSnapshot
	Confirmation string `json:"confirmation,omitempty"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	store := h.carts.Get(r.Context(), sessionFromContext(r.Context()))
	respondJSON(w, http.StatusOK, CartResponse{
		CartSnapshot: store.Snapshot(),
		Confirmation: store.Confirmation(),
	})
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "productId is required")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 0 || req.Quantity > maxLineQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	// the price always comes from the catalog, never from the client
	product, err := h.catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	h.mutate(w, r, http.StatusCreated, func(s *cart.Store) (domain.CartSnapshot, error) {
		return s.AddItem(product, req.Quantity)
	})
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Delta < -maxLineQuantity || req.Delta > maxLineQuantity {
		respondError(w, http.StatusBadRequest, "invalid_delta", "delta must be between -99 and 99")
		return
	}

	h.mutate(w, r, http.StatusOK, func(s *cart.Store) (domain.CartSnapshot, error) {
		return s.UpdateQuantity(productID, req.Delta)
	})
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	h.mutate(w, r, http.StatusOK, func(s *cart.Store) (domain.CartSnapshot, error) {
		return s.RemoveItem(productID)
	})
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, http.StatusOK, func(s *cart.Store) (domain.CartSnapshot, error) {
		if err := s.Clear(); err != nil {
			return domain.CartSnapshot{}, err
		}
		return s.Snapshot(), nil
	})
}

// mutate runs fn against the session's store. A store evicted between lookup
// and mutation is reloaded once.
func (h *CartHandler) mutate(w http.ResponseWriter, r *http.Request, status int, fn func(*cart.Store) (domain.CartSnapshot, error)) {
	sessionID := sessionFromContext(r.Context())

	store := h.carts.Get(r.Context(), sessionID)
	snapshot, err := fn(store)
	if errors.Is(err, cart.ErrStoreClosed) {
		store = h.carts.Get(r.Context(), sessionID)
		snapshot, err = fn(store)
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, status, CartResponse{
		CartSnapshot: snapshot,
		Confirmation: store.Confirmation(),
	})
}
