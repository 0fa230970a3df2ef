package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/utafrali/adexify/internal/search"
)

// Engine is an in-memory search.Engine doing case-insensitive substring
// matching. Safe for concurrent use.
type Engine struct {
	mu   sync.RWMutex
	docs map[string]search.Document
}

var _ search.Engine = (*Engine)(nil)

func New() *Engine {
	return &Engine{docs: make(map[string]search.Document)}
}

func (e *Engine) Name() string {
	return "memory"
}

func (e *Engine) Index(_ context.Context, doc search.Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.docs[doc.ID] = doc
	return nil
}

func (e *Engine) BulkIndex(_ context.Context, docs []search.Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, d := range docs {
		e.docs[d.ID] = d
	}
	return nil
}

func (e *Engine) Delete(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.docs, id)
	return nil
}

type scored struct {
	hit   search.Hit
	score int
}

// Search scores a match in the name higher than a match in any other field.
func (e *Engine) Search(_ context.Context, q search.Query) (*search.Result, error) {
	start := time.Now()
	if err := q.Normalize(); err != nil {
		return nil, err
	}
	term := strings.ToLower(q.Text)

	e.mu.RLock()
	matched := make([]scored, 0)
	for _, d := range e.docs {
		if !matchesFilters(&d, &q) {
			continue
		}
		s, ok := score(&d, q.Fields, term)
		if !ok {
			continue
		}
		matched = append(matched, scored{hit: search.Hit{Document: d}, score: s})
	}
	e.mu.RUnlock()

	sortHits(matched, q.Sort)

	total := len(matched)
	from, to := q.Page.Window(total)
	hits := make([]search.Hit, 0, to-from)
	for _, m := range matched[from:to] {
		h := m.hit
		if q.Text != "" {
			h.Highlights = highlights(&h.Document, q.Fields, q.Text)
		}
		hits = append(hits, h)
	}

	return &search.Result{
		Hits:    hits,
		Total:   total,
		Page:    q.Page.Page,
		PerPage: q.Page.PerPage,
		TookMs:  time.Since(start).Milliseconds(),
	}, nil
}

func matchesFilters(d *search.Document, q *search.Query) bool {
	if q.Category != "" && !strings.EqualFold(d.Category, q.Category) {
		return false
	}
	if q.MinPrice != nil && d.Price < *q.MinPrice {
		return false
	}
	if q.MaxPrice != nil && d.Price > *q.MaxPrice {
		return false
	}
	if q.InStock != nil && d.InStock != *q.InStock {
		return false
	}
	return true
}

func score(d *search.Document, fields []string, term string) (int, bool) {
	if term == "" {
		return 0, true
	}
	total := 0
	for _, f := range fields {
		if !strings.Contains(strings.ToLower(d.Field(f)), term) {
			continue
		}
		if f == "name" {
			total += 3
		} else {
			total++
		}
	}
	return total, total > 0
}

func highlights(d *search.Document, fields []string, text string) map[string]string {
	out := make(map[string]string)
	for _, f := range fields {
		if h := search.Highlight(d.Field(f), text); h != "" {
			out[f] = h
		}
	}
	return out
}

// sortHits orders by the requested key with the id as tie breaker, so pages
// are stable across calls.
func sortHits(hits []scored, by string) {
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		switch by {
		case search.SortPriceAsc:
			if a.hit.Price != b.hit.Price {
				return a.hit.Price < b.hit.Price
			}
		case search.SortPriceDesc:
			if a.hit.Price != b.hit.Price {
				return a.hit.Price > b.hit.Price
			}
		case search.SortNewest:
			if !a.hit.CreatedAt.Equal(b.hit.CreatedAt) {
				return a.hit.CreatedAt.After(b.hit.CreatedAt)
			}
		default:
			if a.score != b.score {
				return a.score > b.score
			}
		}
		return a.hit.ID < b.hit.ID
	})
}
