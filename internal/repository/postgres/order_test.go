package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/adexify/internal/domain"
	"github.com/utafrali/adexify/internal/repository"
	"github.com/utafrali/adexify/pkg/database"
	apperrors "github.com/utafrali/adexify/pkg/errors"
	"github.com/utafrali/adexify/pkg/pagination"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func sampleOrder() *domain.Order {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &domain.Order{
		ID:     "ord-1",
		UserID: "user-1",
		Customer: domain.Customer{
			FirstName: "Ada", LastName: "Obi", Email: "ada@example.com", Phone: "08030000000",
		},
		Address: domain.ShippingAddress{Street: "12 Marina", City: "Lagos", State: "Lagos"},
		Items: []domain.LineItem{
			{ProductID: "p1", Name: "Tee", Price: 5000, Quantity: 2, SelectedSize: "M"},
			{ProductID: "p2", Name: "Cap", Price: 2000, Quantity: 1},
		},
		PaymentMethod:  domain.PayOnline,
		PaymentStatus:  domain.PaymentPending,
		OrderStatus:    domain.OrderPending,
		Subtotal:       12000,
		DeliveryFee:    1500,
		Total:          13500,
		TransactionRef: "REF_1_abc",
		PaymentURL:     "https://checkout.paystack.com/abc",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

var orderCols = []string{
	"id", "user_id", "customer", "address", "payment_method", "payment_status", "order_status",
	"subtotal", "delivery_fee", "total", "transaction_ref", "payment_url", "paid_at", "amount_paid",
	"payment_verified_at", "stock_committed", "created_at", "updated_at",
}

func orderRow(t *testing.T, o *domain.Order) *pgxmock.Rows {
	t.Helper()
	customer, err := json.Marshal(o.Customer)
	require.NoError(t, err)
	address, err := json.Marshal(o.Address)
	require.NoError(t, err)
	ref := o.TransactionRef
	url := o.PaymentURL
	return pgxmock.NewRows(orderCols).AddRow(
		o.ID, o.UserID, customer, address,
		string(o.PaymentMethod), string(o.PaymentStatus), string(o.OrderStatus),
		o.Subtotal, o.DeliveryFee, o.Total, &ref, &url, o.PaidAt, o.AmountPaid,
		o.PaymentVerifiedAt, o.StockCommitted, o.CreatedAt, o.UpdatedAt,
	)
}

func itemRows(orderID string, items ...domain.LineItem) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{
		"order_id", "product_id", "name", "price", "quantity",
		"selected_size", "selected_color", "image", "category",
	})
	for _, it := range items {
		rows.AddRow(orderID, it.ProductID, it.Name, it.Price, it.Quantity,
			it.SelectedSize, it.SelectedColor, it.Image, it.Category)
	}
	return rows
}

func TestOrderRepository_Create(t *testing.T) {
	mock := newMock(t)
	repo := NewOrderRepository(mock)
	o := sampleOrder()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	for i, it := range o.Items {
		mock.ExpectExec("INSERT INTO order_items").
			WithArgs(pgxmock.AnyArg(), o.ID, i, it.ProductID, it.Name, it.Price, it.Quantity,
				it.SelectedSize, it.SelectedColor, it.Image, it.Category).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), o))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_Create_DuplicateReference(t *testing.T) {
	mock := newMock(t)
	repo := NewOrderRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").WillReturnError(&pgconn.PgError{
		Code:           "23505",
		ConstraintName: "orders_transaction_ref_key",
	})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), sampleOrder())
	assert.ErrorIs(t, err, repository.ErrDuplicateReference)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_Create_ItemFailureRollsBack(t *testing.T) {
	mock := newMock(t)
	repo := NewOrderRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO order_items").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), sampleOrder())
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrDuplicateReference)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_GetByReference(t *testing.T) {
	mock := newMock(t)
	repo := NewOrderRepository(mock)
	o := sampleOrder()

	mock.ExpectQuery("FROM orders WHERE transaction_ref").
		WithArgs(o.TransactionRef).
		WillReturnRows(orderRow(t, o))
	mock.ExpectQuery("FROM order_items").
		WillReturnRows(itemRows(o.ID, o.Items...))

	got, err := repo.GetByReference(context.Background(), o.TransactionRef)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
	assert.Equal(t, o.Customer, got.Customer)
	assert.Equal(t, domain.PayOnline, got.PaymentMethod)
	assert.Equal(t, o.PaymentURL, got.PaymentURL)
	assert.Len(t, got.Items, 2)
	assert.Equal(t, "M", got.Items[0].SelectedSize)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_GetByID_NotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewOrderRepository(mock)

	mock.ExpectQuery("FROM orders WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_ListByUser(t *testing.T) {
	mock := newMock(t)
	repo := NewOrderRepository(mock)
	o := sampleOrder()

	mock.ExpectQuery("SELECT COUNT").WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("ORDER BY created_at DESC").
		WithArgs("user-1", 2, 2).
		WillReturnRows(orderRow(t, o))
	mock.ExpectQuery("FROM order_items").
		WillReturnRows(itemRows(o.ID, o.Items[0]))

	orders, total, err := repo.ListByUser(context.Background(), "user-1", pagination.Params{Page: 2, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, orders, 1)
	assert.Len(t, orders[0].Items, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_ListByUser_Empty(t *testing.T) {
	mock := newMock(t)
	repo := NewOrderRepository(mock)

	mock.ExpectQuery("SELECT COUNT").WithArgs("user-2").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))

	orders, total, err := repo.ListByUser(context.Background(), "user-2", pagination.Params{Page: 1, PerPage: 20})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, orders)
	assert.NotNil(t, orders)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_MarkPaid_Applied(t *testing.T) {
	mock := newMock(t)
	repo := NewOrderRepository(mock)

	paidAt := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	paid := sampleOrder()
	paid.PaymentStatus = domain.PaymentPaid
	paid.OrderStatus = domain.OrderProcessing
	paid.PaidAt = &paidAt
	paid.AmountPaid = 13500

	mock.ExpectQuery("UPDATE orders SET").
		WithArgs(paid.TransactionRef, paidAt, int64(13500), paidAt).
		WillReturnRows(orderRow(t, paid))
	mock.ExpectQuery("FROM order_items").
		WillReturnRows(itemRows(paid.ID, paid.Items...))

	got, applied, err := repo.MarkPaid(context.Background(), domain.PaymentUpdate{
		Reference: paid.TransactionRef, AmountMinor: 1350000, PaidAt: paidAt, VerifiedAt: paidAt,
	})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, domain.OrderProcessing, got.OrderStatus)
	assert.Equal(t, int64(13500), got.AmountPaid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_MarkPaid_AlreadyPaid(t *testing.T) {
	mock := newMock(t)
	repo := NewOrderRepository(mock)

	paid := sampleOrder()
	paid.PaymentStatus = domain.PaymentPaid
	paid.OrderStatus = domain.OrderShipped

	mock.ExpectQuery("UPDATE orders SET").WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("FROM orders WHERE transaction_ref").
		WithArgs(paid.TransactionRef).
		WillReturnRows(orderRow(t, paid))
	mock.ExpectQuery("FROM order_items").
		WillReturnRows(itemRows(paid.ID))

	got, applied, err := repo.MarkPaid(context.Background(), domain.PaymentUpdate{Reference: paid.TransactionRef})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, domain.OrderShipped, got.OrderStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_MarkPaid_UnknownReference(t *testing.T) {
	mock := newMock(t)
	repo := NewOrderRepository(mock)

	mock.ExpectQuery("UPDATE orders SET").WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("FROM orders WHERE transaction_ref").WillReturnError(pgx.ErrNoRows)

	_, _, err := repo.MarkPaid(context.Background(), domain.PaymentUpdate{Reference: "REF_nope"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_MarkFailed(t *testing.T) {
	mock := newMock(t)
	repo := NewOrderRepository(mock)

	mock.ExpectExec("payment_status = 'failed'").WithArgs("REF_1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("payment_status = 'failed'").WithArgs("REF_paid").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	applied, err := repo.MarkFailed(context.Background(), "REF_1")
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.MarkFailed(context.Background(), "REF_paid")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_UpdateStatus(t *testing.T) {
	mock := newMock(t)
	repo := NewOrderRepository(mock)

	mock.ExpectExec("UPDATE orders SET order_status").
		WithArgs("ord-1", "processing", "shipped").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	applied, err := repo.UpdateStatus(context.Background(), "ord-1", domain.OrderProcessing, domain.OrderShipped)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}
