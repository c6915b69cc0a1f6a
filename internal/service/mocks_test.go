package service

import (
	"context"
	"sync"

	"github.com/fjod/paycart/internal/domain"
	"github.com/fjod/paycart/internal/gateway"
	"github.com/fjod/paycart/internal/repository"
	"github.com/stretchr/testify/mock"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) SubmitOrder(ctx context.Context, req gateway.SubmitOrderRequest) (*gateway.SubmitOrderResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.SubmitOrderResponse), args.Error(1)
}

func (m *MockGateway) GetTransactionStatus(ctx context.Context, trackingID string) (*gateway.TransactionStatus, error) {
	args := m.Called(ctx, trackingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.TransactionStatus), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishOrderResolved(ctx context.Context, event domain.OrderResolved) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type fakeTokens struct {
	token string
	err   error
}

func (f *fakeTokens) Token(context.Context) (string, error) {
	return f.token, f.err
}

type fakeCart struct {
	mu       sync.Mutex
	cleared  int
	orderIDs []string
	err      error
}

func (f *fakeCart) ClearForOrder(orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	f.orderIDs = append(f.orderIDs, orderID)
	return f.err
}

func (f *fakeCart) clearCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleared
}

// countingRepo wraps a ledger and counts calls per operation.
type countingRepo struct {
	repository.OrderRepository

	mu        sync.Mutex
	inserts   int
	updates   int
	insertErr error
	updateErr error
}

func newCountingRepo() *countingRepo {
	return &countingRepo{OrderRepository: repository.NewMemoryRepository()}
}

func (r *countingRepo) Insert(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	r.inserts++
	err := r.insertErr
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.OrderRepository.Insert(ctx, order)
}

func (r *countingRepo) Update(ctx context.Context, orderID string, u domain.OrderUpdate) (*domain.Order, bool, error) {
	r.mu.Lock()
	r.updates++
	err := r.updateErr
	r.mu.Unlock()
	if err != nil {
		return nil, false, err
	}
	return r.OrderRepository.Update(ctx, orderID, u)
}

func (r *countingRepo) counts() (inserts, updates int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inserts, r.updates
}
