package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type AddressLabel string

const (
	LabelHome  AddressLabel = "Home"
	LabelWork  AddressLabel = "Work"
	LabelOther AddressLabel = "Other"
)

var ErrAddressNotFound = errors.New("address not found")

type Address struct {
	ID         string       `json:"id"`
	State      string       `json:"state"`
	City       string       `json:"city"`
	Street     string       `json:"street"`
	PostalCode string       `json:"postal_code,omitempty"`
	Notes      string       `json:"notes,omitempty"`
	Label      AddressLabel `json:"label"`
	IsDefault  bool         `json:"is_default"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// AddressPatch holds the fields to change. Nil fields are kept.
type AddressPatch struct {
	State      *string
	City       *string
	Street     *string
	PostalCode *string
	Notes      *string
	Label      *AddressLabel
}

// AddressBook is a user's saved addresses. At most one is the default, and
// whenever the book is non-empty exactly one is.
type AddressBook struct {
	UserID    string
	Addresses []Address
}

// Add stores a copy of a with a fresh id. The first address becomes the
// default.
func (b *AddressBook) Add(a Address, now time.Time) Address {
	a.ID = uuid.NewString()
	if a.Label == "" {
		a.Label = LabelHome
	}
	a.IsDefault = len(b.Addresses) == 0
	a.CreatedAt = now
	a.UpdatedAt = now
	b.Addresses = append(b.Addresses, a)
	return a
}

func (b *AddressBook) index(id string) int {
	for i := range b.Addresses {
		if b.Addresses[i].ID == id {
			return i
		}
	}
	return -1
}

func (b *AddressBook) Update(id string, p AddressPatch, now time.Time) (Address, error) {
	i := b.index(id)
	if i < 0 {
		return Address{}, ErrAddressNotFound
	}
	a := &b.Addresses[i]
	if p.State != nil {
		a.State = *p.State
	}
	if p.City != nil {
		a.City = *p.City
	}
	if p.Street != nil {
		a.Street = *p.Street
	}
	if p.PostalCode != nil {
		a.PostalCode = *p.PostalCode
	}
	if p.Notes != nil {
		a.Notes = *p.Notes
	}
	if p.Label != nil {
		a.Label = *p.Label
	}
	a.UpdatedAt = now
	return *a, nil
}

// Delete removes the address. If it was the default, the first remaining
// address is promoted.
func (b *AddressBook) Delete(id string) error {
	i := b.index(id)
	if i < 0 {
		return ErrAddressNotFound
	}
	wasDefault := b.Addresses[i].IsDefault
	b.Addresses = append(b.Addresses[:i], b.Addresses[i+1:]...)
	if wasDefault && len(b.Addresses) > 0 {
		b.Addresses[0].IsDefault = true
	}
	return nil
}

func (b *AddressBook) SetDefault(id string) error {
	if b.index(id) < 0 {
		return ErrAddressNotFound
	}
	for i := range b.Addresses {
		b.Addresses[i].IsDefault = b.Addresses[i].ID == id
	}
	return nil
}

// Default returns the default address, or nil for an empty book.
func (b *AddressBook) Default() *Address {
	for i := range b.Addresses {
		if b.Addresses[i].IsDefault {
			a := b.Addresses[i]
			return &a
		}
	}
	return nil
}
