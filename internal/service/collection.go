package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/adexify/internal/domain"
	"github.com/utafrali/adexify/internal/event"
	"github.com/utafrali/adexify/internal/repository"
	apperrors "github.com/utafrali/adexify/pkg/errors"
)

// CollectionService implements carts and wishlists. Both kinds share every
// operation; the kind only picks the document.
type CollectionService struct {
	repo     repository.CollectionRepository
	producer *event.Producer
	logger   *slog.Logger
	now      func() time.Time
}

func NewCollectionService(repo repository.CollectionRepository, producer *event.Producer, logger *slog.Logger) *CollectionService {
	return &CollectionService{
		repo:     repo,
		producer: producer,
		logger:   logger,
		now:      time.Now,
	}
}

var errCollectionMissing = errors.New("collection missing")

func owner(id domain.Identity) (domain.Owner, error) {
	if id.IsAnonymous() {
		return domain.Owner{}, apperrors.InvalidInput("a user id or cart token is required")
	}
	return id.Owner(), nil
}

func itemError(kind domain.Kind, err error) error {
	switch {
	case errors.Is(err, domain.ErrQuantityLimit), errors.Is(err, domain.ErrTooManyItems):
		return apperrors.InvalidInput(err.Error())
	case errors.Is(err, domain.ErrItemNotFound):
		return apperrors.NotFound("item in "+string(kind), "")
	case errors.Is(err, errCollectionMissing):
		return apperrors.NotFound(string(kind), "")
	default:
		return err
	}
}

// Get returns the identity's collection. A missing collection comes back
// empty and unsaved.
func (s *CollectionService) Get(ctx context.Context, kind domain.Kind, id domain.Identity) (*domain.Collection, error) {
	if id.IsAnonymous() {
		return domain.NewCollection(kind, domain.Owner{}, s.now().UTC()), nil
	}
	col, err := s.repo.Get(ctx, kind, id.Owner())
	if errors.Is(err, apperrors.ErrNotFound) {
		return domain.NewCollection(kind, id.Owner(), s.now().UTC()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", kind, err)
	}
	return col, nil
}

// AddItem creates the collection on first use and merges repeated keys.
func (s *CollectionService) AddItem(ctx context.Context, kind domain.Kind, id domain.Identity, item domain.LineItem) (*domain.Collection, error) {
	o, err := owner(id)
	if err != nil {
		return nil, err
	}
	if item.ProductID == "" {
		return nil, apperrors.InvalidInput("product_id is required")
	}
	if item.Price < 0 {
		return nil, apperrors.InvalidInput("price must not be negative")
	}

	col, err := s.repo.Mutate(ctx, kind, o, func(current *domain.Collection) (*domain.Collection, error) {
		if current == nil {
			current = domain.NewCollection(kind, o, s.now().UTC())
		}
		if err := current.Add(item); err != nil {
			return nil, err
		}
		return current, nil
	})
	if err != nil {
		return nil, itemError(kind, err)
	}

	s.logger.InfoContext(ctx, "item added",
		slog.String("kind", string(kind)),
		slog.String("product_id", item.ProductID),
		slog.Int("quantity", item.Quantity),
	)
	return col, nil
}

func (s *CollectionService) UpdateItem(ctx context.Context, kind domain.Kind, id domain.Identity, key domain.ItemKey, patch domain.ItemPatch) (*domain.Collection, error) {
	o, err := owner(id)
	if err != nil {
		return nil, err
	}

	col, err := s.repo.Mutate(ctx, kind, o, func(current *domain.Collection) (*domain.Collection, error) {
		if current == nil {
			return nil, errCollectionMissing
		}
		if err := current.Update(key, patch); err != nil {
			return nil, err
		}
		return current, nil
	})
	if err != nil {
		return nil, itemError(kind, err)
	}
	return col, nil
}

// RemoveItem drops the line at key. Removing an absent line is a no-op; a
// missing collection is NotFound.
func (s *CollectionService) RemoveItem(ctx context.Context, kind domain.Kind, id domain.Identity, key domain.ItemKey) (*domain.Collection, bool, error) {
	o, err := owner(id)
	if err != nil {
		return nil, false, err
	}

	var removed bool
	col, err := s.repo.Mutate(ctx, kind, o, func(current *domain.Collection) (*domain.Collection, error) {
		if current == nil {
			return nil, errCollectionMissing
		}
		removed = current.Remove(key)
		return current, nil
	})
	if err != nil {
		return nil, false, itemError(kind, err)
	}
	return col, removed, nil
}

// Clear deletes the whole collection. Clearing a missing one succeeds.
func (s *CollectionService) Clear(ctx context.Context, kind domain.Kind, id domain.Identity) error {
	o, err := owner(id)
	if err != nil {
		return err
	}
	if _, err := s.repo.Delete(ctx, kind, o); err != nil {
		return fmt.Errorf("clear %s: %w", kind, err)
	}
	return nil
}

// Merge folds the guest's collection into the user's and deletes the
// guest's. Running it again finds no guest collection and changes nothing.
func (s *CollectionService) Merge(ctx context.Context, kind domain.Kind, userID, guestToken string) (*domain.Collection, error) {
	if userID == "" {
		return nil, apperrors.Unauthorized("merging requires a signed-in user")
	}
	if guestToken == "" {
		return nil, apperrors.InvalidInput("cart_token is required")
	}

	var merged bool
	col, err := s.repo.Merge(ctx, kind, userID, guestToken, func(user, guest *domain.Collection) (*domain.Collection, error) {
		if guest == nil {
			return user, nil
		}
		merged = true
		if user == nil {
			guest.UserID = userID
			guest.Token = ""
			return guest, nil
		}
		user.MergeFrom(guest)
		return user, nil
	})
	if err != nil {
		return nil, fmt.Errorf("merge %s: %w", kind, err)
	}
	if col == nil {
		col = domain.NewCollection(kind, domain.Owner{UserID: userID}, s.now().UTC())
	}
	if !merged {
		return col, nil
	}

	if err := s.producer.PublishCollectionMerged(ctx, kind, userID, col.ItemCount()); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish merged event",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
	}
	s.logger.InfoContext(ctx, "guest collection merged",
		slog.String("kind", string(kind)),
		slog.String("user_id", userID),
		slog.Int("items", len(col.Items)),
	)
	return col, nil
}
