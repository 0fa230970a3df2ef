package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes the two per-shopper collections.
type Kind string

const (
	KindCart     Kind = "cart"
	KindWishlist Kind = "wishlist"
)

func (k Kind) Valid() bool {
	return k == KindCart || k == KindWishlist
}

// Limits on a single collection.
const (
	MaxQuantityPerItem    = 100
	MaxItemsPerCollection = 50
)

var (
	ErrItemNotFound  = errors.New("item not in collection")
	ErrTooManyItems  = fmt.Errorf("a collection holds at most %d distinct items", MaxItemsPerCollection)
	ErrQuantityLimit = fmt.Errorf("quantity must be between 1 and %d", MaxQuantityPerItem)
)

// ItemKey identifies a line. Empty size or color are valid components.
type ItemKey struct {
	ProductID string
	Size      string
	Color     string
}

// LineItem is one product variant and how many of it.
type LineItem struct {
	ProductID     string `json:"product_id"`
	Name          string `json:"name"`
	Price         int64  `json:"price"`
	Quantity      int    `json:"quantity"`
	SelectedSize  string `json:"selected_size"`
	SelectedColor string `json:"selected_color"`
	Image         string `json:"image,omitempty"`
	Category      string `json:"category,omitempty"`
}

func (li LineItem) Key() ItemKey {
	return ItemKey{ProductID: li.ProductID, Size: li.SelectedSize, Color: li.SelectedColor}
}

// LineTotal is price times quantity.
func (li LineItem) LineTotal() int64 {
	return li.Price * int64(li.Quantity)
}

// Collection is a cart or wishlist owned by either a user or a guest token.
type Collection struct {
	ID        string     `json:"id"`
	Kind      Kind       `json:"kind"`
	UserID    string     `json:"user_id,omitempty"`
	Token     string     `json:"token,omitempty"`
	Items     []LineItem `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ExpiresAt time.Time  `json:"expires_at,omitempty"`
}

// NewCollection returns an empty, unsaved collection for owner.
func NewCollection(kind Kind, owner Owner, now time.Time) *Collection {
	return &Collection{
		ID:        uuid.NewString(),
		Kind:      kind,
		UserID:    owner.UserID,
		Token:     owner.Token,
		Items:     []LineItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c *Collection) Owner() Owner {
	return Owner{UserID: c.UserID, Token: c.Token}
}

func (c *Collection) IndexOf(key ItemKey) int {
	for i := range c.Items {
		if c.Items[i].Key() == key {
			return i
		}
	}
	return -1
}

// Add appends item, or adds its quantity to the line with the same key.
// A zero quantity counts as one. A repeated key keeps the stored price
// unless item carries one.
func (c *Collection) Add(item LineItem) error {
	if item.Quantity == 0 {
		item.Quantity = 1
	}
	if item.Quantity < 0 || item.Quantity > MaxQuantityPerItem {
		return ErrQuantityLimit
	}

	if i := c.IndexOf(item.Key()); i >= 0 {
		qty := c.Items[i].Quantity + item.Quantity
		if qty > MaxQuantityPerItem {
			return ErrQuantityLimit
		}
		c.Items[i].Quantity = qty
		if item.Price > 0 {
			c.Items[i].Price = item.Price
		}
		if item.Name != "" {
			c.Items[i].Name = item.Name
		}
		if item.Image != "" {
			c.Items[i].Image = item.Image
		}
		return nil
	}

	if len(c.Items) >= MaxItemsPerCollection {
		return ErrTooManyItems
	}
	c.Items = append(c.Items, item)
	return nil
}

// ItemPatch changes a line in place. Nil fields are left alone.
type ItemPatch struct {
	Quantity      *int
	SelectedSize  *string
	SelectedColor *string
}

// Update applies patch to the line at key. If the patched key matches
// another line, the two are combined into that line.
func (c *Collection) Update(key ItemKey, patch ItemPatch) error {
	i := c.IndexOf(key)
	if i < 0 {
		return ErrItemNotFound
	}

	item := c.Items[i]
	if patch.Quantity != nil {
		if *patch.Quantity < 1 || *patch.Quantity > MaxQuantityPerItem {
			return ErrQuantityLimit
		}
		item.Quantity = *patch.Quantity
	}
	if patch.SelectedSize != nil {
		item.SelectedSize = *patch.SelectedSize
	}
	if patch.SelectedColor != nil {
		item.SelectedColor = *patch.SelectedColor
	}

	if j := c.IndexOf(item.Key()); j >= 0 && j != i {
		qty := c.Items[j].Quantity + item.Quantity
		if qty > MaxQuantityPerItem {
			return ErrQuantityLimit
		}
		c.Items[j].Quantity = qty
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
		return nil
	}

	c.Items[i] = item
	return nil
}

// Remove drops the line at key and reports whether one was there.
func (c *Collection) Remove(key ItemKey) bool {
	i := c.IndexOf(key)
	if i < 0 {
		return false
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	return true
}

// MergeFrom folds other's lines into c: matching keys sum their quantities,
// the rest are appended in order. Merging never fails on limits, since the
// shopper already holds both collections.
func (c *Collection) MergeFrom(other *Collection) {
	for _, g := range other.Items {
		if i := c.IndexOf(g.Key()); i >= 0 {
			c.Items[i].Quantity += g.Quantity
			continue
		}
		c.Items = append(c.Items, g)
	}
}

// ItemCount is the sum of all quantities.
func (c *Collection) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

func (c *Collection) Subtotal() int64 {
	return Subtotal(c.Items)
}

// Subtotal sums price times quantity over items.
func Subtotal(items []LineItem) int64 {
	var total int64
	for _, it := range items {
		total += it.LineTotal()
	}
	return total
}
