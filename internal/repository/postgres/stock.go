package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/utafrali/adexify/internal/domain"
	"github.com/utafrali/adexify/internal/repository"
	"github.com/utafrali/adexify/pkg/database"
)

// StockRepository implements repository.StockRepository using PostgreSQL.
type StockRepository struct {
	pool database.DBTX
	now  func() time.Time
}

var _ repository.StockRepository = (*StockRepository)(nil)

func NewStockRepository(pool database.DBTX) *StockRepository {
	return &StockRepository{pool: pool, now: time.Now}
}

// CommitForOrder flips orders.stock_committed and decrements stock in the
// same transaction, so a replayed webhook finds the flag already set and
// does nothing. Products are updated in id order to keep lock order stable
// between concurrent commits. Products that no longer exist are skipped and
// get no movement.
func (r *StockRepository) CommitForOrder(ctx context.Context, orderID string) (movements []domain.StockMovement, claimed bool, err error) {
	ctx, end := database.TraceQuery(ctx, "CommitStockForOrder", "UPDATE orders SET stock_committed")
	defer func() { end(err) }()

	err = database.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE orders SET stock_committed = TRUE, updated_at = NOW()
			WHERE id = $1 AND NOT stock_committed`, orderID)
		if err != nil {
			return fmt.Errorf("claim stock commit: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		claimed = true

		rows, err := tx.Query(ctx, `
			SELECT product_id, SUM(quantity)
			FROM order_items
			WHERE order_id = $1
			GROUP BY product_id
			ORDER BY product_id`, orderID)
		if err != nil {
			return fmt.Errorf("load order quantities: %w", err)
		}
		type line struct {
			productID string
			qty       int64
		}
		var lines []line
		for rows.Next() {
			var l line
			if err := rows.Scan(&l.productID, &l.qty); err != nil {
				rows.Close()
				return fmt.Errorf("scan order quantity: %w", err)
			}
			lines = append(lines, l)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate order quantities: %w", err)
		}

		now := r.now().UTC()
		for _, l := range lines {
			tag, err := tx.Exec(ctx, `
				UPDATE products SET stock = stock - $2, updated_at = NOW()
				WHERE id = $1`, l.productID, l.qty)
			if err != nil {
				return fmt.Errorf("decrement stock for %s: %w", l.productID, err)
			}
			if tag.RowsAffected() == 0 {
				// Deleted from the catalog since the order was placed.
				continue
			}

			m := domain.StockMovement{
				ID:        uuid.NewString(),
				ProductID: l.productID,
				OrderID:   orderID,
				Delta:     -int(l.qty),
				Reason:    domain.StockReasonOrderPaid,
				CreatedAt: now,
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO stock_movements (id, product_id, order_id, delta, reason, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				m.ID, m.ProductID, m.OrderID, m.Delta, m.Reason, m.CreatedAt); err != nil {
				return fmt.Errorf("record stock movement: %w", err)
			}
			movements = append(movements, m)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return movements, claimed, nil
}
