package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/utafrali/adexify/internal/domain"
	"github.com/utafrali/adexify/internal/event"
	"github.com/utafrali/adexify/internal/provider"
	"github.com/utafrali/adexify/internal/repository"
	apperrors "github.com/utafrali/adexify/pkg/errors"
)

// Webhook event names handled by PaymentService.
const (
	WebhookChargeSuccess = "charge.success"
	WebhookChargeFailed  = "charge.failed"
)

// WebhookEvent is the part of a gateway webhook body we read.
type WebhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string     `json:"reference"`
		Amount    int64      `json:"amount"`
		Status    string     `json:"status"`
		PaidAt    *time.Time `json:"paid_at"`
	} `json:"data"`
}

// WebhookResult tells the caller what a webhook did.
type WebhookResult struct {
	Event   string        `json:"event"`
	Handled bool          `json:"handled"`
	Order   *domain.Order `json:"-"`
}

// PaymentService settles orders from gateway verification and webhooks.
// Every update looks the order up by transaction reference.
type PaymentService struct {
	orders   repository.OrderRepository
	stock    repository.StockRepository
	gateway  provider.Gateway
	producer *event.Producer
	logger   *slog.Logger
	now      func() time.Time
}

func NewPaymentService(orders repository.OrderRepository, stock repository.StockRepository, gateway provider.Gateway, producer *event.Producer, logger *slog.Logger) *PaymentService {
	return &PaymentService{
		orders:   orders,
		stock:    stock,
		gateway:  gateway,
		producer: producer,
		logger:   logger,
		now:      time.Now,
	}
}

// VerifyPayment asks the gateway about reference and marks the order paid
// when the charge succeeded.
func (s *PaymentService) VerifyPayment(ctx context.Context, reference string) (*domain.Order, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, apperrors.InvalidInput("reference is required")
	}

	res, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		return nil, err
	}
	if !res.Succeeded() {
		s.logger.InfoContext(ctx, "payment not successful",
			slog.String("reference", reference),
			slog.String("status", res.Status),
		)
		return nil, apperrors.GatewayRejected("payment not successful")
	}

	order, err := s.markPaid(ctx, reference, res.AmountMinor, res.PaidAt)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus == domain.PaymentFailed {
		return nil, apperrors.Conflict("payment succeeded but the order is marked failed")
	}
	return order, nil
}

func (s *PaymentService) markPaid(ctx context.Context, reference string, amountMinor int64, paidAt time.Time) (*domain.Order, error) {
	now := s.now().UTC()
	if paidAt.IsZero() {
		paidAt = now
	}

	order, applied, err := s.orders.MarkPaid(ctx, domain.PaymentUpdate{
		Reference:   reference,
		AmountMinor: amountMinor,
		PaidAt:      paidAt,
		VerifiedAt:  now,
	})
	if err != nil {
		return nil, fmt.Errorf("mark order paid: %w", err)
	}
	if !applied && order.PaymentStatus == domain.PaymentFailed {
		s.logger.ErrorContext(ctx, "successful charge for order marked failed",
			slog.String("order_id", order.ID),
			slog.String("reference", reference),
			slog.Int64("amount_minor", amountMinor),
		)
		return order, nil
	}
	if !applied {
		s.logger.InfoContext(ctx, "order already settled",
			slog.String("order_id", order.ID),
			slog.String("payment_status", string(order.PaymentStatus)),
		)
		return order, nil
	}

	if err := s.producer.PublishOrderPaid(ctx, order); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.paid event",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}
	s.logger.InfoContext(ctx, "order paid",
		slog.String("order_id", order.ID),
		slog.String("reference", reference),
		slog.Int64("amount_paid", order.AmountPaid),
	)
	return order, nil
}

// HandleWebhook applies a gateway event. The body must already be
// authenticated. Unknown events are acknowledged without any change.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte) (*WebhookResult, error) {
	var evt WebhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, apperrors.InvalidInput("malformed webhook payload")
	}
	result := &WebhookResult{Event: evt.Event}

	switch evt.Event {
	case WebhookChargeSuccess:
		if evt.Data.Reference == "" {
			return nil, apperrors.InvalidInput("webhook is missing data.reference")
		}
		var paidAt time.Time
		if evt.Data.PaidAt != nil {
			paidAt = evt.Data.PaidAt.UTC()
		}
		order, err := s.markPaid(ctx, evt.Data.Reference, evt.Data.Amount, paidAt)
		if err != nil {
			return nil, err
		}
		s.commitStock(ctx, order)
		result.Handled = true
		result.Order = order

	case WebhookChargeFailed:
		if evt.Data.Reference == "" {
			return nil, apperrors.InvalidInput("webhook is missing data.reference")
		}
		applied, err := s.orders.MarkFailed(ctx, evt.Data.Reference)
		if err != nil {
			return nil, fmt.Errorf("mark order failed: %w", err)
		}
		if applied {
			if err := s.producer.PublishPaymentFailed(ctx, evt.Data.Reference); err != nil {
				s.logger.ErrorContext(ctx, "failed to publish order.payment_failed event",
					slog.String("reference", evt.Data.Reference),
					slog.String("error", err.Error()),
				)
			}
		}
		s.logger.InfoContext(ctx, "payment failed event handled",
			slog.String("reference", evt.Data.Reference),
			slog.Bool("applied", applied),
		)
		result.Handled = true

	default:
		s.logger.InfoContext(ctx, "unhandled webhook event", slog.String("event", evt.Event))
	}
	return result, nil
}

// commitStock decrements stock once per order. Failures are logged and
// left for a webhook replay to retry.
func (s *PaymentService) commitStock(ctx context.Context, order *domain.Order) {
	if order.PaymentStatus != domain.PaymentPaid {
		return
	}

	movements, claimed, err := s.stock.CommitForOrder(ctx, order.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to commit stock for paid order",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if !claimed {
		s.logger.DebugContext(ctx, "stock already committed", slog.String("order_id", order.ID))
		return
	}
	order.StockCommitted = true

	if skipped := skippedProducts(order, movements); len(skipped) > 0 {
		s.logger.WarnContext(ctx, "stock not decremented for products missing from catalog",
			slog.String("order_id", order.ID),
			slog.Any("product_ids", skipped),
		)
	}

	if err := s.producer.PublishStockChanged(ctx, order.ID, movements); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish inventory.stock_changed event",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}
	s.logger.InfoContext(ctx, "stock committed",
		slog.String("order_id", order.ID),
		slog.Int("products", len(movements)),
	)
}

// skippedProducts lists the order's products that got no stock movement.
func skippedProducts(order *domain.Order, movements []domain.StockMovement) []string {
	moved := make(map[string]bool, len(movements))
	for _, m := range movements {
		moved[m.ProductID] = true
	}
	var skipped []string
	for _, it := range order.Items {
		if !moved[it.ProductID] {
			moved[it.ProductID] = true
			skipped = append(skipped, it.ProductID)
		}
	}
	return skipped
}
