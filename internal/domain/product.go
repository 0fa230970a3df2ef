package domain

import "time"

// Product is the storefront's read model of a catalog entry.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Price       int64     `json:"price"`
	Stock       int       `json:"stock"`
	Images      []string  `json:"images"`
	Sizes       []string  `json:"sizes"`
	CreatedAt   time.Time `json:"created_at"`
}

func (p *Product) InStock() bool {
	return p.Stock > 0
}

// StockMovement records one change to a product's stock.
type StockMovement struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	OrderID   string    `json:"order_id,omitempty"`
	Delta     int       `json:"delta"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

const StockReasonOrderPaid = "order_paid"

// ProductViews is the result of recording a view.
type ProductViews struct {
	ProductID string `json:"product_id"`
	Views     int64  `json:"views"`
}
