package search

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/gosimple/slug"

	"github.com/utafrali/adexify/internal/domain"
	apperrors "github.com/utafrali/adexify/pkg/errors"
	"github.com/utafrali/adexify/pkg/pagination"
)

// CollectionProducts is the only searchable collection.
const CollectionProducts = "products"

// Sort options for search results.
const (
	SortRelevance = "relevance"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortNewest    = "newest"
)

const (
	MarkOpen  = "<mark>"
	MarkClose = "</mark>"
)

// Fields that a query may target.
var (
	SearchableFields = []string{"name", "description", "category", "slug"}
	DefaultFields    = []string{"name", "description"}
)

func IsValidSort(sort string) bool {
	return slices.Contains([]string{SortRelevance, SortPriceAsc, SortPriceDesc, SortNewest}, sort)
}

// Document is a product as stored in the search index.
type Document struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Price       int64     `json:"price"`
	Stock       int       `json:"stock"`
	InStock     bool      `json:"in_stock"`
	Images      []string  `json:"images,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewDocument builds the index document for a product. Products without a
// stored slug get one derived from the name.
func NewDocument(p domain.Product) Document {
	s := p.Slug
	if s == "" {
		s = slug.Make(p.Name)
	}
	return Document{
		ID:          p.ID,
		Name:        p.Name,
		Slug:        s,
		Description: p.Description,
		Category:    p.Category,
		Price:       p.Price,
		Stock:       p.Stock,
		InStock:     p.InStock(),
		Images:      p.Images,
		CreatedAt:   p.CreatedAt,
	}
}

// Field returns the text value of a searchable field.
func (d *Document) Field(name string) string {
	switch name {
	case "name":
		return d.Name
	case "description":
		return d.Description
	case "category":
		return d.Category
	case "slug":
		return d.Slug
	default:
		return ""
	}
}

// Query holds all parameters for a search request.
type Query struct {
	Text     string
	Fields   []string
	Category string
	MinPrice *int64
	MaxPrice *int64
	InStock  *bool
	Sort     string
	Page     pagination.Params
}

// Normalize fills defaults and rejects unknown fields and sort options.
func (q *Query) Normalize() error {
	q.Text = strings.TrimSpace(q.Text)
	if len(q.Fields) == 0 {
		q.Fields = DefaultFields
	}
	for _, f := range q.Fields {
		if !slices.Contains(SearchableFields, f) {
			return apperrors.InvalidInput(fmt.Sprintf("field %q is not searchable", f))
		}
	}
	if q.Sort == "" {
		q.Sort = SortRelevance
	}
	if !IsValidSort(q.Sort) {
		return apperrors.InvalidInput(fmt.Sprintf("unknown sort %q", q.Sort))
	}
	if q.MinPrice != nil && q.MaxPrice != nil && *q.MinPrice > *q.MaxPrice {
		return apperrors.InvalidInput("min_price must not exceed max_price")
	}
	q.Page = pagination.New(q.Page.Page, q.Page.PerPage)
	return nil
}

// Hit is one matching document plus its highlighted fields.
type Hit struct {
	Document
	Highlights map[string]string `json:"highlights,omitempty"`
}

// Result holds the paginated search response.
type Result struct {
	Hits    []Hit `json:"hits"`
	Total   int   `json:"total"`
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
	TookMs  int64 `json:"took_ms"`
}

// Engine indexes and searches product documents.
type Engine interface {
	Name() string
	Index(ctx context.Context, doc Document) error
	BulkIndex(ctx context.Context, docs []Document) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, q Query) (*Result, error)
}

// Highlight wraps every case-insensitive occurrence of term in text with
// <mark> tags, keeping the original casing. It returns "" when term does not
// occur.
func Highlight(text, term string) string {
	if term == "" || text == "" {
		return ""
	}
	re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(term))
	if err != nil {
		return ""
	}
	if !re.MatchString(text) {
		return ""
	}
	return re.ReplaceAllStringFunc(text, func(m string) string {
		return MarkOpen + m + MarkClose
	})
}
