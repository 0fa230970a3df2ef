package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/adexify/internal/domain"
	"github.com/utafrali/adexify/internal/repository"
	"github.com/utafrali/adexify/pkg/database"
)

const productColumns = `id, name, slug, description, category, price, stock, images, sizes, created_at`

// eachBatchSize is how many rows Each reads per query.
const eachBatchSize = 500

// ProductRepository implements repository.ProductRepository using PostgreSQL.
type ProductRepository struct {
	pool database.DBTX
}

var _ repository.ProductRepository = (*ProductRepository)(nil)

func NewProductRepository(pool database.DBTX) *ProductRepository {
	return &ProductRepository{pool: pool}
}

func scanProducts(rows pgx.Rows) ([]domain.Product, error) {
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		var (
			p             domain.Product
			images, sizes []byte
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.Category,
			&p.Price, &p.Stock, &images, &sizes, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if err := json.Unmarshal(images, &p.Images); err != nil {
			return nil, fmt.Errorf("unmarshal images of %s: %w", p.ID, err)
		}
		if err := json.Unmarshal(sizes, &p.Sizes); err != nil {
			return nil, fmt.Errorf("unmarshal sizes of %s: %w", p.ID, err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

// List returns one page of products, newest first, optionally limited to a
// category.
func (r *ProductRepository) List(ctx context.Context, f repository.ProductFilter) (products []domain.Product, total int, err error) {
	ctx, end := database.TraceQuery(ctx, "ListProducts", "SELECT FROM products")
	defer func() { end(err) }()

	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM products WHERE ($1 = '' OR category = $1)`, f.Category,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE ($1 = '' OR category = $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`, f.Category, f.Page.PerPage, f.Page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	products, err = scanProducts(rows)
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) (products []domain.Product, err error) {
	const query = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`
	ctx, end := database.TraceQuery(ctx, "GetProductsByIDs", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	return scanProducts(rows)
}

// Each walks every product in id order using keyset pagination.
func (r *ProductRepository) Each(ctx context.Context, fn func(domain.Product) error) error {
	after := ""
	for {
		rows, err := r.pool.Query(ctx, `
			SELECT `+productColumns+` FROM products
			WHERE id > $1
			ORDER BY id
			LIMIT $2`, after, eachBatchSize)
		if err != nil {
			return fmt.Errorf("scan products after %q: %w", after, err)
		}
		batch, err := scanProducts(rows)
		if err != nil {
			return err
		}
		for _, p := range batch {
			if err := fn(p); err != nil {
				return err
			}
		}
		if len(batch) < eachBatchSize {
			return nil
		}
		after = batch[len(batch)-1].ID
	}
}
