package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/adexify/internal/domain"
	"github.com/utafrali/adexify/internal/event"
	"github.com/utafrali/adexify/internal/provider"
	"github.com/utafrali/adexify/internal/repository"
	apperrors "github.com/utafrali/adexify/pkg/errors"
	"github.com/utafrali/adexify/pkg/pagination"
	"github.com/utafrali/adexify/pkg/validator"
)

// maxReferenceAttempts bounds how often CreateOrder draws a new transaction
// reference after a unique-constraint collision.
const maxReferenceAttempts = 3

// OrderService builds orders and owns their fulfilment transitions.
type OrderService struct {
	orders    repository.OrderRepository
	gateway   provider.Gateway
	producer  *event.Producer
	logger    *slog.Logger
	clientURL string
	now       func() time.Time
}

func NewOrderService(orders repository.OrderRepository, gateway provider.Gateway, producer *event.Producer, clientURL string, logger *slog.Logger) *OrderService {
	return &OrderService{
		orders:    orders,
		gateway:   gateway,
		producer:  producer,
		logger:    logger,
		clientURL: strings.TrimRight(clientURL, "/"),
		now:       time.Now,
	}
}

// OrderItemInput is one line of a new order.
type OrderItemInput struct {
	ProductID     string `json:"product_id" validate:"notblank"`
	Name          string `json:"name" validate:"notblank"`
	Price         int64  `json:"price" validate:"gte=0"`
	Quantity      int    `json:"quantity" validate:"gte=1,lte=100"`
	SelectedSize  string `json:"selected_size"`
	SelectedColor string `json:"selected_color"`
	Image         string `json:"image"`
	Category      string `json:"category"`
}

// CustomerInput is the purchaser's contact details.
type CustomerInput struct {
	FirstName string `json:"first_name" validate:"notblank"`
	LastName  string `json:"last_name" validate:"notblank"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"notblank"`
}

type AddressInput struct {
	AddressID  string `json:"address_id"`
	Street     string `json:"street" validate:"notblank"`
	City       string `json:"city" validate:"notblank"`
	State      string `json:"state" validate:"notblank"`
	PostalCode string `json:"postal_code"`
	Label      string `json:"label"`
	Notes      string `json:"notes"`
}

// CreateOrderInput holds the parameters for creating an order.
type CreateOrderInput struct {
	UserID        string           `json:"user_id" validate:"notblank"`
	Customer      CustomerInput    `json:"customer"`
	Address       AddressInput     `json:"address"`
	Items         []OrderItemInput `json:"items" validate:"min=1,max=50,dive"`
	PaymentMethod string           `json:"payment_method" validate:"oneof='Pay Online' 'Pay on Delivery'"`
	DeliveryFee   int64            `json:"delivery_fee" validate:"gte=0"`
}

func (in *CreateOrderInput) build(now time.Time) *domain.Order {
	items := make([]domain.LineItem, len(in.Items))
	for i, it := range in.Items {
		items[i] = domain.LineItem{
			ProductID:     it.ProductID,
			Name:          it.Name,
			Price:         it.Price,
			Quantity:      it.Quantity,
			SelectedSize:  it.SelectedSize,
			SelectedColor: it.SelectedColor,
			Image:         it.Image,
			Category:      it.Category,
		}
	}
	subtotal := domain.Subtotal(items)

	return &domain.Order{
		ID:     uuid.NewString(),
		UserID: in.UserID,
		Customer: domain.Customer{
			FirstName: in.Customer.FirstName,
			LastName:  in.Customer.LastName,
			Email:     in.Customer.Email,
			Phone:     in.Customer.Phone,
		},
		Address: domain.ShippingAddress{
			AddressID:  in.Address.AddressID,
			Street:     in.Address.Street,
			City:       in.Address.City,
			State:      in.Address.State,
			PostalCode: in.Address.PostalCode,
			Label:      in.Address.Label,
			Notes:      in.Address.Notes,
		},
		Items:         items,
		PaymentMethod: domain.PaymentMethod(in.PaymentMethod),
		PaymentStatus: domain.PaymentPending,
		OrderStatus:   domain.OrderPending,
		Subtotal:      subtotal,
		DeliveryFee:   in.DeliveryFee,
		Total:         subtotal + in.DeliveryFee,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// CreateOrder persists a new order. For online payment the gateway
// transaction is opened first, so a gateway failure leaves nothing behind.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	if err := validator.Validate(in); err != nil {
		return nil, err
	}

	order := in.build(s.now().UTC())

	switch order.PaymentMethod {
	case domain.PayOnDelivery:
		if err := s.orders.Create(ctx, order); err != nil {
			return nil, fmt.Errorf("create order: %w", err)
		}
	case domain.PayOnline:
		if err := s.createOnline(ctx, order); err != nil {
			return nil, err
		}
	}

	if err := s.producer.PublishOrderCreated(ctx, order); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.created event",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "order created",
		slog.String("order_id", order.ID),
		slog.String("user_id", order.UserID),
		slog.String("payment_method", string(order.PaymentMethod)),
		slog.Int64("total", order.Total),
	)
	return order, nil
}

func (s *OrderService) createOnline(ctx context.Context, order *domain.Order) error {
	order.PaymentStatus = domain.PaymentUnpaid

	for attempt := 1; ; attempt++ {
		ref := domain.NewTransactionRef(s.now())

		res, err := s.gateway.Initialize(ctx, provider.InitializeInput{
			Email:       order.Customer.Email,
			AmountMinor: order.AmountMinor(),
			Reference:   ref,
			CallbackURL: s.clientURL + "/payment/verify?reference=" + url.QueryEscape(ref),
		})
		if err != nil {
			s.logger.WarnContext(ctx, "payment initialization failed",
				slog.String("reference", ref),
				slog.String("error", err.Error()),
			)
			if errors.Is(err, apperrors.ErrGateway) {
				return err
			}
			return apperrors.Gateway("payment initialization failed", err)
		}

		order.TransactionRef = ref
		order.PaymentURL = res.AuthorizationURL

		err = s.orders.Create(ctx, order)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicateReference) || attempt == maxReferenceAttempts {
			return fmt.Errorf("create order: %w", err)
		}
		s.logger.WarnContext(ctx, "transaction reference collision, retrying",
			slog.String("reference", ref),
			slog.Int("attempt", attempt),
		)
	}
}

// GetOrder returns the order only to its owner.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user_id is required")
	}
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order.UserID != userID {
		return nil, apperrors.NotFound("order", "")
	}
	return order, nil
}

// ListUserOrders returns the user's orders newest first. A user with no
// orders is NotFound.
func (s *OrderService) ListUserOrders(ctx context.Context, userID string, page pagination.Params) ([]domain.Order, int, error) {
	if userID == "" {
		return nil, 0, apperrors.InvalidInput("user_id is required")
	}
	orders, total, err := s.orders.ListByUser(ctx, userID, page)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	if total == 0 {
		return nil, 0, apperrors.NotFound("orders for user", userID)
	}
	return orders, total, nil
}

// UpdateStatus moves an order along its fulfilment path.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, to domain.OrderStatus) (*domain.Order, error) {
	if !to.Valid() {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid order status %q", to))
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order for status update: %w", err)
	}
	from := order.OrderStatus
	if !from.CanTransitionTo(to) {
		return nil, apperrors.Conflict(fmt.Sprintf("order cannot move from %s to %s", from, to))
	}

	applied, err := s.orders.UpdateStatus(ctx, orderID, from, to)
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	if !applied {
		return nil, apperrors.Conflict("order status changed concurrently, please retry")
	}

	if err := s.producer.PublishOrderStatusChanged(ctx, orderID, from, to); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.status_changed event",
			slog.String("order_id", orderID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "order status updated",
		slog.String("order_id", orderID),
		slog.String("old_status", string(from)),
		slog.String("new_status", string(to)),
	)

	order.OrderStatus = to
	order.UpdatedAt = s.now().UTC()
	return order, nil
}
