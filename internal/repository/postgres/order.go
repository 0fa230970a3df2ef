package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/utafrali/adexify/internal/domain"
	"github.com/utafrali/adexify/internal/repository"
	"github.com/utafrali/adexify/pkg/database"
	apperrors "github.com/utafrali/adexify/pkg/errors"
	"github.com/utafrali/adexify/pkg/pagination"
)

const transactionRefConstraint = "orders_transaction_ref_key"

const orderColumns = `id, user_id, customer, address, payment_method, payment_status, order_status,
	subtotal, delivery_fee, total, transaction_ref, payment_url, paid_at, amount_paid,
	payment_verified_at, stock_committed, created_at, updated_at`

// OrderRepository implements repository.OrderRepository using PostgreSQL.
type OrderRepository struct {
	pool database.DBTX
}

var _ repository.OrderRepository = (*OrderRepository)(nil)

func NewOrderRepository(pool database.DBTX) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o                       domain.Order
		customer, address       []byte
		method, payment, status string
		ref, paymentURL         *string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &customer, &address, &method, &payment, &status,
		&o.Subtotal, &o.DeliveryFee, &o.Total, &ref, &paymentURL, &o.PaidAt, &o.AmountPaid,
		&o.PaymentVerifiedAt, &o.StockCommitted, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(customer, &o.Customer); err != nil {
		return nil, fmt.Errorf("unmarshal customer: %w", err)
	}
	if err := json.Unmarshal(address, &o.Address); err != nil {
		return nil, fmt.Errorf("unmarshal address: %w", err)
	}
	o.PaymentMethod = domain.PaymentMethod(method)
	o.PaymentStatus = domain.PaymentStatus(payment)
	o.OrderStatus = domain.OrderStatus(status)
	if ref != nil {
		o.TransactionRef = *ref
	}
	if paymentURL != nil {
		o.PaymentURL = *paymentURL
	}
	return &o, nil
}

// Create inserts the order and its items in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) (err error) {
	ctx, end := database.TraceQuery(ctx, "CreateOrder", "INSERT INTO orders")
	defer func() { end(err) }()

	customer, err := json.Marshal(o.Customer)
	if err != nil {
		return fmt.Errorf("marshal customer: %w", err)
	}
	address, err := json.Marshal(o.Address)
	if err != nil {
		return fmt.Errorf("marshal address: %w", err)
	}

	err = database.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
			o.ID, o.UserID, customer, address, string(o.PaymentMethod), string(o.PaymentStatus), string(o.OrderStatus),
			o.Subtotal, o.DeliveryFee, o.Total, nullable(o.TransactionRef), nullable(o.PaymentURL), o.PaidAt, o.AmountPaid,
			o.PaymentVerifiedAt, o.StockCommitted, o.CreatedAt, o.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for i, it := range o.Items {
			_, err := tx.Exec(ctx, `
				INSERT INTO order_items (id, order_id, position, product_id, name, price, quantity, selected_size, selected_color, image, category)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				uuid.NewString(), o.ID, i, it.ProductID, it.Name, it.Price, it.Quantity,
				it.SelectedSize, it.SelectedColor, it.Image, it.Category,
			)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		return nil
	})
	if database.IsUniqueViolation(err, transactionRefConstraint) {
		return repository.ErrDuplicateReference
	}
	return err
}

func (r *OrderRepository) getOne(ctx context.Context, op, where string, arg any) (o *domain.Order, err error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + where
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	o, err = scanOrder(r.pool.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("order", "")
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := r.attachItems(ctx, []*domain.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.getOne(ctx, "GetOrderByID", "id = $1", id)
}

func (r *OrderRepository) GetByReference(ctx context.Context, ref string) (*domain.Order, error) {
	return r.getOne(ctx, "GetOrderByReference", "transaction_ref = $1", ref)
}

// ListByUser returns one page of the user's orders, newest first, and the
// total count.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, page pagination.Params) (orders []domain.Order, total int, err error) {
	ctx, end := database.TraceQuery(ctx, "ListOrdersByUser", "SELECT FROM orders WHERE user_id")
	defer func() { end(err) }()

	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	if total == 0 {
		return []domain.Order{}, 0, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var ptrs []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		ptrs = append(ptrs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate orders: %w", err)
	}
	rows.Close()

	if err := r.attachItems(ctx, ptrs); err != nil {
		return nil, 0, err
	}
	orders = make([]domain.Order, len(ptrs))
	for i, o := range ptrs {
		orders[i] = *o
	}
	return orders, total, nil
}

func (r *OrderRepository) attachItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	byID := make(map[string]*domain.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
		o.Items = []domain.LineItem{}
	}

	rows, err := r.pool.Query(ctx, `
		SELECT order_id, product_id, name, price, quantity, selected_size, selected_color, image, category
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position`, ids)
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			it      domain.LineItem
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.Name, &it.Price, &it.Quantity,
			&it.SelectedSize, &it.SelectedColor, &it.Image, &it.Category); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	return rows.Err()
}

// MarkPaid sets the order paid and, if it was still pending, processing.
// The WHERE clause makes concurrent verify and webhook calls race safely:
// only the first one changes the row.
func (r *OrderRepository) MarkPaid(ctx context.Context, u domain.PaymentUpdate) (o *domain.Order, applied bool, err error) {
	const query = `
		UPDATE orders SET
			payment_status = 'paid',
			order_status = CASE WHEN order_status = 'pending' THEN 'processing' ELSE order_status END,
			paid_at = $2,
			amount_paid = $3,
			payment_verified_at = $4,
			updated_at = NOW()
		WHERE transaction_ref = $1 AND payment_status IN ('pending', 'unpaid')
		RETURNING ` + orderColumns
	ctx, end := database.TraceQuery(ctx, "MarkOrderPaid", query)
	defer func() { end(err) }()

	o, err = scanOrder(r.pool.QueryRow(ctx, query,
		u.Reference, u.PaidAt, u.AmountMinor/domain.MinorUnitFactor, u.VerifiedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		o, err = r.GetByReference(ctx, u.Reference)
		if err != nil {
			return nil, false, err
		}
		return o, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("mark order paid: %w", err)
	}

	if err := r.attachItems(ctx, []*domain.Order{o}); err != nil {
		return nil, false, err
	}
	return o, true, nil
}

func (r *OrderRepository) MarkFailed(ctx context.Context, ref string) (applied bool, err error) {
	const query = `
		UPDATE orders SET payment_status = 'failed', updated_at = NOW()
		WHERE transaction_ref = $1 AND payment_status IN ('pending', 'unpaid')`
	ctx, end := database.TraceQuery(ctx, "MarkOrderFailed", query)
	defer func() { end(err) }()

	tag, err := r.pool.Exec(ctx, query, ref)
	if err != nil {
		return false, fmt.Errorf("mark order failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) (applied bool, err error) {
	const query = `
		UPDATE orders SET order_status = $3, updated_at = NOW()
		WHERE id = $1 AND order_status = $2`
	ctx, end := database.TraceQuery(ctx, "UpdateOrderStatus", query)
	defer func() { end(err) }()

	tag, err := r.pool.Exec(ctx, query, id, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
