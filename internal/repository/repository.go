package repository

import (
	"context"
	"errors"
	"time"

	"github.com/utafrali/adexify/internal/domain"
	"github.com/utafrali/adexify/pkg/pagination"
)

// ErrDuplicateReference is returned by OrderRepository.Create when the
// transaction reference is already taken.
var ErrDuplicateReference = errors.New("transaction reference already exists")

// MutateFunc receives the stored collection (nil when absent) and returns the
// collection to store, or nil to delete it.
type MutateFunc func(current *domain.Collection) (*domain.Collection, error)

// MergeFunc receives the user's and the guest's collections (either may be
// nil) and returns the user's new collection.
type MergeFunc func(user, guest *domain.Collection) (*domain.Collection, error)

// CollectionRepository stores carts and wishlists as one document each.
type CollectionRepository interface {
	// Get returns the collection or a NotFound error.
	Get(ctx context.Context, kind domain.Kind, owner domain.Owner) (*domain.Collection, error)

	// Mutate runs fn as one atomic read-modify-write on the document.
	Mutate(ctx context.Context, kind domain.Kind, owner domain.Owner, fn MutateFunc) (*domain.Collection, error)

	// Delete removes the document and reports whether it existed.
	Delete(ctx context.Context, kind domain.Kind, owner domain.Owner) (bool, error)

	// Merge atomically reads both documents, stores fn's result under the
	// user and deletes the guest document. Nothing is written when the guest
	// document does not exist.
	Merge(ctx context.Context, kind domain.Kind, userID, guestToken string, fn MergeFunc) (*domain.Collection, error)
}

// OrderRepository persists orders and applies payment transitions as
// conditional updates keyed by transaction reference.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	GetByReference(ctx context.Context, ref string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID string, page pagination.Params) ([]domain.Order, int, error)

	// MarkPaid records a successful payment unless the order is already
	// paid. It reports whether this call changed the order.
	MarkPaid(ctx context.Context, u domain.PaymentUpdate) (*domain.Order, bool, error)

	// MarkFailed sets payment_status=failed if the order is still pending
	// or unpaid.
	MarkFailed(ctx context.Context, ref string) (bool, error)

	// UpdateStatus moves order_status from -> to and fails the update if the
	// stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) (bool, error)
}

// StockRepository decrements stock for paid orders.
type StockRepository interface {
	// CommitForOrder claims the order's stock commit and decrements every
	// item's product in one transaction. It returns claimed=false when the
	// order was already committed.
	CommitForOrder(ctx context.Context, orderID string) (movements []domain.StockMovement, claimed bool, err error)
}

type AddressRepository interface {
	Get(ctx context.Context, userID string) (*domain.AddressBook, error)
	Mutate(ctx context.Context, userID string, fn func(book *domain.AddressBook) error) (*domain.AddressBook, error)
}

type ProductFilter struct {
	Category string
	Page     pagination.Params
}

type ProductRepository interface {
	List(ctx context.Context, filter ProductFilter) ([]domain.Product, int, error)
	GetByIDs(ctx context.Context, ids []string) ([]domain.Product, error)
	// Each calls fn for every product, in batches.
	Each(ctx context.Context, fn func(domain.Product) error) error
}

type ViewRepository interface {
	// Record stores at most one view per product, viewer and day, and
	// returns the product's total view count.
	Record(ctx context.Context, productID string, viewer domain.Identity, day time.Time) (int64, error)
}
