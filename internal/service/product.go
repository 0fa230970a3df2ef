package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/utafrali/adexify/internal/domain"
	"github.com/utafrali/adexify/internal/repository"
	apperrors "github.com/utafrali/adexify/pkg/errors"
	"github.com/utafrali/adexify/pkg/pagination"
)

type ProductService struct {
	products repository.ProductRepository
	views    repository.ViewRepository
	logger   *slog.Logger
	now      func() time.Time
}

func NewProductService(products repository.ProductRepository, views repository.ViewRepository, logger *slog.Logger) *ProductService {
	return &ProductService{
		products: products,
		views:    views,
		logger:   logger,
		now:      time.Now,
	}
}

// List returns a page of products, optionally limited to one category.
func (s *ProductService) List(ctx context.Context, category string, page pagination.Params) ([]domain.Product, int, error) {
	products, total, err := s.products.List(ctx, repository.ProductFilter{
		Category: strings.TrimSpace(category),
		Page:     page,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	return products, total, nil
}

// RecordView counts viewer once per product and UTC day, and returns the
// product's total views.
func (s *ProductService) RecordView(ctx context.Context, productID string, viewer domain.Identity) (*domain.ProductViews, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, apperrors.InvalidInput("product_id is required")
	}

	views, err := s.views.Record(ctx, productID, viewer, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("record product view: %w", err)
	}

	s.logger.DebugContext(ctx, "product view recorded",
		slog.String("product_id", productID),
		slog.Int64("views", views),
	)
	return &domain.ProductViews{ProductID: productID, Views: views}, nil
}
