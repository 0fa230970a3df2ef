package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/adexify/internal/domain"
	"github.com/utafrali/adexify/internal/repository"
	"github.com/utafrali/adexify/pkg/database"
)

// ViewRepository implements repository.ViewRepository using PostgreSQL.
type ViewRepository struct {
	pool database.DBTX
}

var _ repository.ViewRepository = (*ViewRepository)(nil)

func NewViewRepository(pool database.DBTX) *ViewRepository {
	return &ViewRepository{pool: pool}
}

// Record relies on the (product_id, viewer_key, viewed_on) unique
// constraint, so concurrent views by the same viewer collapse into one row.
func (r *ViewRepository) Record(ctx context.Context, productID string, viewer domain.Identity, day time.Time) (views int64, err error) {
	const insert = `
		INSERT INTO product_views (id, product_id, viewer_key, user_id, cart_token, viewed_on)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (product_id, viewer_key, viewed_on) DO NOTHING`
	ctx, end := database.TraceQuery(ctx, "RecordProductView", insert)
	defer func() { end(err) }()

	y, m, d := day.UTC().Date()
	viewedOn := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	if _, err := r.pool.Exec(ctx, insert,
		uuid.NewString(), productID, viewer.ViewerKey(),
		nullable(viewer.UserID), nullable(viewer.GuestToken), viewedOn,
	); err != nil {
		return 0, fmt.Errorf("insert product view: %w", err)
	}

	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM product_views WHERE product_id = $1`, productID,
	).Scan(&views); err != nil {
		return 0, fmt.Errorf("count product views: %w", err)
	}
	return views, nil
}
