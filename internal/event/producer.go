package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/adexify/internal/domain"
	pkgkafka "github.com/utafrali/adexify/pkg/kafka"
)

// Kafka topics for domain events. The event type equals the topic.
var (
	TopicOrderCreated          = pkgkafka.Topic("order", "created")
	TopicOrderPaid             = pkgkafka.Topic("order", "paid")
	TopicOrderPaymentFailed    = pkgkafka.Topic("order", "payment_failed")
	TopicOrderStatusChanged    = pkgkafka.Topic("order", "status_changed")
	TopicCartMerged            = pkgkafka.Topic("cart", "merged")
	TopicWishlistMerged        = pkgkafka.Topic("wishlist", "merged")
	TopicInventoryStockChanged = pkgkafka.Topic("inventory", "stock_changed")
)

const (
	AggregateTypeOrder      = "order"
	AggregateTypeCollection = "collection"
	AggregateTypeInventory  = "inventory"
)

// Source identifies this service on every event it emits.
const Source = "adexify-api"

type OrderItemData struct {
	ProductID     string `json:"product_id"`
	Name          string `json:"name"`
	Price         int64  `json:"price"`
	Quantity      int    `json:"quantity"`
	SelectedSize  string `json:"selected_size,omitempty"`
	SelectedColor string `json:"selected_color,omitempty"`
}

// OrderCreatedData is the payload for an order.created event.
type OrderCreatedData struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	PaymentMethod  string          `json:"payment_method"`
	PaymentStatus  string          `json:"payment_status"`
	OrderStatus    string          `json:"order_status"`
	Items          []OrderItemData `json:"items"`
	Subtotal       int64           `json:"subtotal"`
	DeliveryFee    int64           `json:"delivery_fee"`
	Total          int64           `json:"total"`
	TransactionRef string          `json:"transaction_ref,omitempty"`
}

// OrderPaidData is the payload for an order.paid event.
type OrderPaidData struct {
	OrderID        string    `json:"order_id"`
	UserID         string    `json:"user_id"`
	TransactionRef string    `json:"transaction_ref"`
	AmountPaid     int64     `json:"amount_paid"`
	PaidAt         time.Time `json:"paid_at"`
}

// PaymentFailedData is the payload for an order.payment_failed event.
type PaymentFailedData struct {
	TransactionRef string `json:"transaction_ref"`
}

// OrderStatusChangedData is the payload for an order.status_changed event.
type OrderStatusChangedData struct {
	OrderID   string `json:"order_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

// CollectionMergedData is the payload for cart.merged and wishlist.merged.
type CollectionMergedData struct {
	Kind      string `json:"kind"`
	UserID    string `json:"user_id"`
	ItemCount int    `json:"item_count"`
}

// StockChangedData is the payload for an inventory.stock_changed event.
type StockChangedData struct {
	OrderID    string                 `json:"order_id"`
	ProductIDs []string               `json:"product_ids"`
	Movements  []domain.StockMovement `json:"movements"`
}

type publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes domain events to Kafka. A nil *pkgkafka.Producer turns
// every publish into a no-op.
type Producer struct {
	kafka  publisher
	logger *slog.Logger
}

func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	evt, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, Source, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if err := p.kafka.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}

func (p *Producer) PublishOrderCreated(ctx context.Context, o *domain.Order) error {
	items := make([]OrderItemData, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderItemData{
			ProductID:     it.ProductID,
			Name:          it.Name,
			Price:         it.Price,
			Quantity:      it.Quantity,
			SelectedSize:  it.SelectedSize,
			SelectedColor: it.SelectedColor,
		}
	}
	return p.publish(ctx, TopicOrderCreated, o.ID, AggregateTypeOrder, OrderCreatedData{
		ID:             o.ID,
		UserID:         o.UserID,
		PaymentMethod:  string(o.PaymentMethod),
		PaymentStatus:  string(o.PaymentStatus),
		OrderStatus:    string(o.OrderStatus),
		Items:          items,
		Subtotal:       o.Subtotal,
		DeliveryFee:    o.DeliveryFee,
		Total:          o.Total,
		TransactionRef: o.TransactionRef,
	})
}

func (p *Producer) PublishOrderPaid(ctx context.Context, o *domain.Order) error {
	data := OrderPaidData{
		OrderID:        o.ID,
		UserID:         o.UserID,
		TransactionRef: o.TransactionRef,
		AmountPaid:     o.AmountPaid,
	}
	if o.PaidAt != nil {
		data.PaidAt = *o.PaidAt
	}
	return p.publish(ctx, TopicOrderPaid, o.ID, AggregateTypeOrder, data)
}

func (p *Producer) PublishPaymentFailed(ctx context.Context, reference string) error {
	return p.publish(ctx, TopicOrderPaymentFailed, reference, AggregateTypeOrder,
		PaymentFailedData{TransactionRef: reference})
}

func (p *Producer) PublishOrderStatusChanged(ctx context.Context, orderID string, from, to domain.OrderStatus) error {
	return p.publish(ctx, TopicOrderStatusChanged, orderID, AggregateTypeOrder, OrderStatusChangedData{
		OrderID:   orderID,
		OldStatus: string(from),
		NewStatus: string(to),
	})
}

func (p *Producer) PublishCollectionMerged(ctx context.Context, kind domain.Kind, userID string, itemCount int) error {
	topic := TopicCartMerged
	if kind == domain.KindWishlist {
		topic = TopicWishlistMerged
	}
	return p.publish(ctx, topic, userID, AggregateTypeCollection, CollectionMergedData{
		Kind:      string(kind),
		UserID:    userID,
		ItemCount: itemCount,
	})
}

// PublishStockChanged is keyed by order so replays of one order land on one
// partition.
func (p *Producer) PublishStockChanged(ctx context.Context, orderID string, movements []domain.StockMovement) error {
	ids := make([]string, 0, len(movements))
	for _, m := range movements {
		ids = append(ids, m.ProductID)
	}
	return p.publish(ctx, TopicInventoryStockChanged, orderID, AggregateTypeInventory, StockChangedData{
		OrderID:    orderID,
		ProductIDs: ids,
		Movements:  movements,
	})
}
