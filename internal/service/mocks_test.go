package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/utafrali/adexify/internal/domain"
	"github.com/utafrali/adexify/internal/event"
	"github.com/utafrali/adexify/internal/provider"
	"github.com/utafrali/adexify/internal/repository"
	apperrors "github.com/utafrali/adexify/pkg/errors"
	"github.com/utafrali/adexify/pkg/pagination"
)

// --- Mock Repositories ---

type mockOrderRepository struct {
	mock.Mock
}

func (m *mockOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *mockOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrderRepository) GetByReference(ctx context.Context, ref string) (*domain.Order, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *mockOrderRepository) ListByUser(ctx context.Context, userID string, page pagination.Params) ([]domain.Order, int, error) {
	args := m.Called(ctx, userID, page)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Order), args.Int(1), args.Error(2)
}

func (m *mockOrderRepository) MarkPaid(ctx context.Context, u domain.PaymentUpdate) (*domain.Order, bool, error) {
	args := m.Called(ctx, u)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.Order), args.Bool(1), args.Error(2)
}

func (m *mockOrderRepository) MarkFailed(ctx context.Context, ref string) (bool, error) {
	args := m.Called(ctx, ref)
	return args.Bool(0), args.Error(1)
}

func (m *mockOrderRepository) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

type mockStockRepository struct {
	mock.Mock
}

func (m *mockStockRepository) CommitForOrder(ctx context.Context, orderID string) ([]domain.StockMovement, bool, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]domain.StockMovement), args.Bool(1), args.Error(2)
}

// memoryAddressRepository keeps address books in a map so that Mutate runs
// the real domain logic.
type memoryAddressRepository struct {
	books map[string]*domain.AddressBook
}

func newMemoryAddressRepository(userIDs ...string) *memoryAddressRepository {
	r := &memoryAddressRepository{books: map[string]*domain.AddressBook{}}
	for _, id := range userIDs {
		r.books[id] = &domain.AddressBook{UserID: id}
	}
	return r
}

func (r *memoryAddressRepository) Get(_ context.Context, userID string) (*domain.AddressBook, error) {
	b, ok := r.books[userID]
	if !ok {
		return nil, apperrors.NotFound("user", userID)
	}
	cp := *b
	cp.Addresses = append([]domain.Address(nil), b.Addresses...)
	return &cp, nil
}

func (r *memoryAddressRepository) Mutate(ctx context.Context, userID string, fn func(*domain.AddressBook) error) (*domain.AddressBook, error) {
	b, err := r.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := fn(b); err != nil {
		return nil, err
	}
	r.books[userID] = b
	return b, nil
}

type mockProductRepository struct {
	mock.Mock
}

func (m *mockProductRepository) List(ctx context.Context, filter repository.ProductFilter) ([]domain.Product, int, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Product), args.Int(1), args.Error(2)
}

func (m *mockProductRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]domain.Product), args.Error(1)
}

func (m *mockProductRepository) Each(ctx context.Context, fn func(domain.Product) error) error {
	args := m.Called(ctx)
	for _, p := range args.Get(0).([]domain.Product) {
		if err := fn(p); err != nil {
			return err
		}
	}
	return args.Error(1)
}

type mockViewRepository struct {
	mock.Mock
}

func (m *mockViewRepository) Record(ctx context.Context, productID string, viewer domain.Identity, day time.Time) (int64, error) {
	args := m.Called(ctx, productID, viewer, day)
	return args.Get(0).(int64), args.Error(1)
}

// --- Mock Gateway ---

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Name() string { return "test" }

func (m *mockGateway) Initialize(ctx context.Context, in provider.InitializeInput) (*provider.InitializeResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.InitializeResult), args.Error(1)
}

func (m *mockGateway) Verify(ctx context.Context, reference string) (*provider.VerifyResult, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.VerifyResult), args.Error(1)
}

func (m *mockGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return m.Called(body, signature).Bool(0)
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProducer() *event.Producer {
	return event.NewProducer(nil, newTestLogger())
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
