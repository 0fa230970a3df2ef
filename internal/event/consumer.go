package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/utafrali/adexify/pkg/kafka"
)

// Reindexer refreshes the search documents of the given products.
type Reindexer interface {
	ReindexProducts(ctx context.Context, ids []string) error
}

// StockConsumer keeps the search index in line with stock changes.
type StockConsumer struct {
	reindexer Reindexer
	logger    *slog.Logger
}

func NewStockConsumer(reindexer Reindexer, logger *slog.Logger) *StockConsumer {
	return &StockConsumer{reindexer: reindexer, logger: logger}
}

// Handle processes a Kafka event based on its type.
func (c *StockConsumer) Handle(ctx context.Context, evt *pkgkafka.Event) error {
	if evt.EventType != TopicInventoryStockChanged {
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", evt.EventType),
			slog.String("event_id", evt.EventID),
		)
		return nil
	}

	var data StockChangedData
	if err := evt.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal stock_changed data: %w", err)
	}
	if len(data.ProductIDs) == 0 {
		return nil
	}

	if err := c.reindexer.ReindexProducts(ctx, data.ProductIDs); err != nil {
		return fmt.Errorf("reindex products for order %s: %w", data.OrderID, err)
	}

	c.logger.InfoContext(ctx, "reindexed products after stock change",
		slog.String("order_id", data.OrderID),
		slog.Int("products", len(data.ProductIDs)),
	)
	return nil
}
