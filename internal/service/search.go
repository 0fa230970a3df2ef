package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/adexify/internal/domain"
	"github.com/utafrali/adexify/internal/event"
	"github.com/utafrali/adexify/internal/repository"
	"github.com/utafrali/adexify/internal/search"
	apperrors "github.com/utafrali/adexify/pkg/errors"
)

// reindexBatchSize is how many documents ReindexAll sends per bulk request.
const reindexBatchSize = 200

// SearchService answers product searches and keeps the engine's index in
// line with Postgres.
type SearchService struct {
	engine   search.Engine
	products repository.ProductRepository
	logger   *slog.Logger
}

var _ event.Reindexer = (*SearchService)(nil)

func NewSearchService(engine search.Engine, products repository.ProductRepository, logger *slog.Logger) *SearchService {
	return &SearchService{engine: engine, products: products, logger: logger}
}

// Search runs q against collection, which defaults to products.
func (s *SearchService) Search(ctx context.Context, collection string, q search.Query) (*search.Result, error) {
	if collection == "" {
		collection = search.CollectionProducts
	}
	if collection != search.CollectionProducts {
		return nil, apperrors.InvalidInput(fmt.Sprintf("collection %q is not searchable", collection))
	}
	if err := q.Normalize(); err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := s.engine.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", s.engine.Name(), err)
	}
	if res.TookMs == 0 {
		res.TookMs = time.Since(start).Milliseconds()
	}
	return res, nil
}

// ReindexAll loads every product into the engine.
func (s *SearchService) ReindexAll(ctx context.Context) (int, error) {
	batch := make([]search.Document, 0, reindexBatchSize)
	total := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.engine.BulkIndex(ctx, batch); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	err := s.products.Each(ctx, func(p domain.Product) error {
		batch = append(batch, search.NewDocument(p))
		if len(batch) == reindexBatchSize {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		return total, fmt.Errorf("reindex products: %w", err)
	}

	s.logger.InfoContext(ctx, "search index rebuilt",
		slog.String("engine", s.engine.Name()),
		slog.Int("documents", total),
	)
	return total, nil
}

// ReindexProducts refreshes the given products and drops the ones that no
// longer exist.
func (s *SearchService) ReindexProducts(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("load products for reindex: %w", err)
	}

	found := make(map[string]struct{}, len(products))
	docs := make([]search.Document, 0, len(products))
	for _, p := range products {
		found[p.ID] = struct{}{}
		docs = append(docs, search.NewDocument(p))
	}

	if len(docs) > 0 {
		if err := s.engine.BulkIndex(ctx, docs); err != nil {
			return fmt.Errorf("reindex products: %w", err)
		}
	}
	for _, id := range ids {
		if _, ok := found[id]; ok {
			continue
		}
		if err := s.engine.Delete(ctx, id); err != nil {
			return fmt.Errorf("remove product %s from index: %w", id, err)
		}
	}
	return nil
}
