package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/utafrali/adexify/internal/domain"
	"github.com/utafrali/adexify/internal/repository"
	apperrors "github.com/utafrali/adexify/pkg/errors"
	"github.com/utafrali/adexify/pkg/validator"
)

// AddressService manages a user's address book.
type AddressService struct {
	repo   repository.AddressRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewAddressService(repo repository.AddressRepository, logger *slog.Logger) *AddressService {
	return &AddressService{repo: repo, logger: logger, now: time.Now}
}

// AddAddressInput holds the fields of a new address.
type AddAddressInput struct {
	State      string `json:"state" validate:"notblank,max=100"`
	City       string `json:"city" validate:"notblank,max=100"`
	Street     string `json:"street" validate:"notblank,max=255"`
	PostalCode string `json:"postal_code" validate:"max=20"`
	Notes      string `json:"notes" validate:"max=500"`
	Label      string `json:"label" validate:"omitempty,oneof=Home Work Other"`
}

func addressError(id string, err error) error {
	if errors.Is(err, domain.ErrAddressNotFound) {
		return apperrors.NotFound("address", id)
	}
	return err
}

func (s *AddressService) AddAddress(ctx context.Context, userID string, in AddAddressInput) (*domain.Address, error) {
	if err := validator.Validate(in); err != nil {
		return nil, err
	}

	var added domain.Address
	_, err := s.repo.Mutate(ctx, userID, func(b *domain.AddressBook) error {
		added = b.Add(domain.Address{
			State:      in.State,
			City:       in.City,
			Street:     in.Street,
			PostalCode: in.PostalCode,
			Notes:      in.Notes,
			Label:      domain.AddressLabel(in.Label),
		}, s.now().UTC())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("add address: %w", err)
	}

	s.logger.InfoContext(ctx, "address added",
		slog.String("user_id", userID),
		slog.String("address_id", added.ID),
		slog.Bool("default", added.IsDefault),
	)
	return &added, nil
}

func (s *AddressService) ListAddresses(ctx context.Context, userID string) ([]domain.Address, error) {
	book, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	return book.Addresses, nil
}

func (s *AddressService) UpdateAddress(ctx context.Context, userID, addressID string, patch domain.AddressPatch) (*domain.Address, error) {
	for _, f := range []struct {
		name  string
		value *string
	}{{"state", patch.State}, {"city", patch.City}, {"street", patch.Street}} {
		if f.value != nil && strings.TrimSpace(*f.value) == "" {
			return nil, apperrors.InvalidInput(f.name + " cannot be blank")
		}
	}
	if patch.Label != nil {
		switch *patch.Label {
		case domain.LabelHome, domain.LabelWork, domain.LabelOther:
		default:
			return nil, apperrors.InvalidInput("label must be one of: Home Work Other")
		}
	}

	var updated domain.Address
	_, err := s.repo.Mutate(ctx, userID, func(b *domain.AddressBook) error {
		a, err := b.Update(addressID, patch, s.now().UTC())
		updated = a
		return err
	})
	if err != nil {
		return nil, addressError(addressID, err)
	}
	return &updated, nil
}

// DeleteAddress returns the remaining addresses.
func (s *AddressService) DeleteAddress(ctx context.Context, userID, addressID string) ([]domain.Address, error) {
	book, err := s.repo.Mutate(ctx, userID, func(b *domain.AddressBook) error {
		return b.Delete(addressID)
	})
	if err != nil {
		return nil, addressError(addressID, err)
	}

	s.logger.InfoContext(ctx, "address deleted",
		slog.String("user_id", userID),
		slog.String("address_id", addressID),
	)
	return book.Addresses, nil
}

func (s *AddressService) SetDefault(ctx context.Context, userID, addressID string) (*domain.Address, error) {
	book, err := s.repo.Mutate(ctx, userID, func(b *domain.AddressBook) error {
		return b.SetDefault(addressID)
	})
	if err != nil {
		return nil, addressError(addressID, err)
	}
	return book.Default(), nil
}

// GetDefault returns nil without error when the user has no addresses.
func (s *AddressService) GetDefault(ctx context.Context, userID string) (*domain.Address, error) {
	book, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get default address: %w", err)
	}
	return book.Default(), nil
}
