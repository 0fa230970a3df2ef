package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/adexify/internal/domain"
	"github.com/utafrali/adexify/internal/provider"
	"github.com/utafrali/adexify/internal/repository"
	apperrors "github.com/utafrali/adexify/pkg/errors"
	"github.com/utafrali/adexify/pkg/pagination"
	"github.com/utafrali/adexify/pkg/validator"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestOrderService(repo *mockOrderRepository, gw *mockGateway) *OrderService {
	svc := NewOrderService(repo, gw, newTestProducer(), "http://shop.test/", newTestLogger())
	svc.now = fixedClock(testNow)
	return svc
}

func validOrderInput(method domain.PaymentMethod) CreateOrderInput {
	return CreateOrderInput{
		UserID: "user-1",
		Customer: CustomerInput{
			FirstName: "Ada",
			LastName:  "Obi",
			Email:     "ada@example.com",
			Phone:     "+2348000000000",
		},
		Address: AddressInput{
			Street: "12 Marina Rd",
			City:   "Lagos",
			State:  "Lagos",
		},
		Items: []OrderItemInput{
			{ProductID: "p1", Name: "Ankara Dress", Price: 15000, Quantity: 2, SelectedSize: "M"},
			{ProductID: "p2", Name: "Head Wrap", Price: 2500, Quantity: 1},
		},
		PaymentMethod: string(method),
		DeliveryFee:   2000,
	}
}

func TestCreateOrder_PayOnDelivery(t *testing.T) {
	repo := new(mockOrderRepository)
	gw := new(mockGateway)
	svc := newTestOrderService(repo, gw)
	ctx := context.Background()

	repo.On("Create", ctx, mock.AnythingOfType("*domain.Order")).Return(nil)

	order, err := svc.CreateOrder(ctx, validOrderInput(domain.PayOnDelivery))

	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, int64(32500), order.Subtotal) // 15000*2 + 2500
	assert.Equal(t, int64(2000), order.DeliveryFee)
	assert.Equal(t, int64(34500), order.Total)
	assert.Equal(t, domain.PaymentPending, order.PaymentStatus)
	assert.Equal(t, domain.OrderPending, order.OrderStatus)
	assert.Empty(t, order.TransactionRef)
	assert.Empty(t, order.PaymentURL)
	assert.Equal(t, testNow, order.CreatedAt)

	repo.AssertExpectations(t)
	gw.AssertNotCalled(t, "Initialize", mock.Anything, mock.Anything)
}

func TestCreateOrder_PayOnline(t *testing.T) {
	repo := new(mockOrderRepository)
	gw := new(mockGateway)
	svc := newTestOrderService(repo, gw)
	ctx := context.Background()

	var sent provider.InitializeInput
	gw.On("Initialize", ctx, mock.AnythingOfType("provider.InitializeInput")).
		Run(func(args mock.Arguments) { sent = args.Get(1).(provider.InitializeInput) }).
		Return(&provider.InitializeResult{AuthorizationURL: "https://checkout.test/abc", AccessCode: "abc"}, nil)
	repo.On("Create", ctx, mock.AnythingOfType("*domain.Order")).Return(nil)

	order, err := svc.CreateOrder(ctx, validOrderInput(domain.PayOnline))

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentUnpaid, order.PaymentStatus)
	assert.Equal(t, domain.OrderPending, order.OrderStatus)
	assert.True(t, strings.HasPrefix(order.TransactionRef, "REF_"))
	assert.Equal(t, "https://checkout.test/abc", order.PaymentURL)

	assert.Equal(t, order.TransactionRef, sent.Reference)
	assert.Equal(t, int64(3450000), sent.AmountMinor)
	assert.Equal(t, "ada@example.com", sent.Email)
	assert.Equal(t, "http://shop.test/payment/verify?reference="+order.TransactionRef, sent.CallbackURL)

	repo.AssertExpectations(t)
	gw.AssertExpectations(t)
}

func TestCreateOrder_GatewayFailurePersistsNothing(t *testing.T) {
	repo := new(mockOrderRepository)
	gw := new(mockGateway)
	svc := newTestOrderService(repo, gw)
	ctx := context.Background()

	gw.On("Initialize", ctx, mock.Anything).
		Return(nil, apperrors.Gateway("paystack unavailable", errors.New("dial tcp: timeout")))

	order, err := svc.CreateOrder(ctx, validOrderInput(domain.PayOnline))

	require.Error(t, err)
	assert.Nil(t, order)
	assert.True(t, errors.Is(err, apperrors.ErrGateway))
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateOrder_RetriesDuplicateReference(t *testing.T) {
	repo := new(mockOrderRepository)
	gw := new(mockGateway)
	svc := newTestOrderService(repo, gw)
	ctx := context.Background()

	gw.On("Initialize", ctx, mock.Anything).
		Return(&provider.InitializeResult{AuthorizationURL: "https://checkout.test/x"}, nil)
	repo.On("Create", ctx, mock.Anything).Return(repository.ErrDuplicateReference).Once()
	repo.On("Create", ctx, mock.Anything).Return(nil).Once()

	order, err := svc.CreateOrder(ctx, validOrderInput(domain.PayOnline))

	require.NoError(t, err)
	assert.NotEmpty(t, order.TransactionRef)
	gw.AssertNumberOfCalls(t, "Initialize", 2)
	repo.AssertNumberOfCalls(t, "Create", 2)
}

func TestCreateOrder_GivesUpAfterRepeatedCollisions(t *testing.T) {
	repo := new(mockOrderRepository)
	gw := new(mockGateway)
	svc := newTestOrderService(repo, gw)
	ctx := context.Background()

	gw.On("Initialize", ctx, mock.Anything).Return(&provider.InitializeResult{}, nil)
	repo.On("Create", ctx, mock.Anything).Return(repository.ErrDuplicateReference)

	_, err := svc.CreateOrder(ctx, validOrderInput(domain.PayOnline))

	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrDuplicateReference))
	repo.AssertNumberOfCalls(t, "Create", maxReferenceAttempts)
}

func TestCreateOrder_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *CreateOrderInput)
		field  string
	}{
		{"no items", func(in *CreateOrderInput) { in.Items = nil }, "items"},
		{"zero quantity", func(in *CreateOrderInput) { in.Items[0].Quantity = 0 }, "items[0].quantity"},
		{"negative price", func(in *CreateOrderInput) { in.Items[1].Price = -1 }, "items[1].price"},
		{"negative delivery fee", func(in *CreateOrderInput) { in.DeliveryFee = -5 }, "delivery_fee"},
		{"unknown payment method", func(in *CreateOrderInput) { in.PaymentMethod = "Crypto" }, "payment_method"},
		{"bad email", func(in *CreateOrderInput) { in.Customer.Email = "nope" }, "customer.email"},
		{"blank street", func(in *CreateOrderInput) { in.Address.Street = "  " }, "address.street"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mockOrderRepository)
			svc := newTestOrderService(repo, new(mockGateway))

			in := validOrderInput(domain.PayOnDelivery)
			tt.mutate(&in)

			_, err := svc.CreateOrder(context.Background(), in)

			var verr *validator.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields(), tt.field)
			repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestGetOrder_OwnerOnly(t *testing.T) {
	repo := new(mockOrderRepository)
	svc := newTestOrderService(repo, new(mockGateway))
	ctx := context.Background()

	repo.On("GetByID", ctx, "order-1").Return(&domain.Order{ID: "order-1", UserID: "user-1"}, nil)

	order, err := svc.GetOrder(ctx, "user-1", "order-1")
	require.NoError(t, err)
	assert.Equal(t, "order-1", order.ID)

	_, err = svc.GetOrder(ctx, "user-2", "order-1")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestListUserOrders(t *testing.T) {
	repo := new(mockOrderRepository)
	svc := newTestOrderService(repo, new(mockGateway))
	ctx := context.Background()
	page := pagination.New(1, 20)

	repo.On("ListByUser", ctx, "user-1", page).
		Return([]domain.Order{{ID: "o2"}, {ID: "o1"}}, 2, nil)
	repo.On("ListByUser", ctx, "user-2", page).Return([]domain.Order{}, 0, nil)

	orders, total, err := svc.ListUserOrders(ctx, "user-1", page)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, orders, 2)

	_, _, err = svc.ListUserOrders(ctx, "user-2", page)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestUpdateStatus_FollowsTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    domain.OrderStatus
		to      domain.OrderStatus
		allowed bool
	}{
		{"pending to processing", domain.OrderPending, domain.OrderProcessing, true},
		{"processing to shipped", domain.OrderProcessing, domain.OrderShipped, true},
		{"shipped to delivered", domain.OrderShipped, domain.OrderDelivered, true},
		{"shipped to cancelled", domain.OrderShipped, domain.OrderCancelled, true},
		{"pending to shipped", domain.OrderPending, domain.OrderShipped, false},
		{"delivered to cancelled", domain.OrderDelivered, domain.OrderCancelled, false},
		{"cancelled to processing", domain.OrderCancelled, domain.OrderProcessing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mockOrderRepository)
			svc := newTestOrderService(repo, new(mockGateway))
			ctx := context.Background()

			repo.On("GetByID", ctx, "order-1").Return(&domain.Order{ID: "order-1", OrderStatus: tt.from}, nil)
			if tt.allowed {
				repo.On("UpdateStatus", ctx, "order-1", tt.from, tt.to).Return(true, nil)
			}

			order, err := svc.UpdateStatus(ctx, "order-1", tt.to)

			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, tt.to, order.OrderStatus)
				return
			}
			assert.True(t, errors.Is(err, apperrors.ErrConflict))
			repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestUpdateStatus_LostRaceIsConflict(t *testing.T) {
	repo := new(mockOrderRepository)
	svc := newTestOrderService(repo, new(mockGateway))
	ctx := context.Background()

	repo.On("GetByID", ctx, "order-1").Return(&domain.Order{ID: "order-1", OrderStatus: domain.OrderPending}, nil)
	repo.On("UpdateStatus", ctx, "order-1", domain.OrderPending, domain.OrderProcessing).Return(false, nil)

	_, err := svc.UpdateStatus(ctx, "order-1", domain.OrderProcessing)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
}

func TestUpdateStatus_UnknownStatus(t *testing.T) {
	svc := newTestOrderService(new(mockOrderRepository), new(mockGateway))

	_, err := svc.UpdateStatus(context.Background(), "order-1", "lost")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}
