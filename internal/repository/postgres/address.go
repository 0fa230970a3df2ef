package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/adexify/internal/domain"
	"github.com/utafrali/adexify/internal/repository"
	"github.com/utafrali/adexify/pkg/database"
	apperrors "github.com/utafrali/adexify/pkg/errors"
)

// AddressRepository keeps each user's address book in users.addresses.
type AddressRepository struct {
	pool database.DBTX
}

var _ repository.AddressRepository = (*AddressRepository)(nil)

func NewAddressRepository(pool database.DBTX) *AddressRepository {
	return &AddressRepository{pool: pool}
}

func readBook(row pgx.Row, userID string) (*domain.AddressBook, error) {
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("user", userID)
		}
		return nil, fmt.Errorf("load addresses: %w", err)
	}
	book := &domain.AddressBook{UserID: userID, Addresses: []domain.Address{}}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &book.Addresses); err != nil {
			return nil, fmt.Errorf("unmarshal addresses: %w", err)
		}
	}
	return book, nil
}

func (r *AddressRepository) Get(ctx context.Context, userID string) (book *domain.AddressBook, err error) {
	const query = `SELECT addresses FROM users WHERE id = $1`
	ctx, end := database.TraceQuery(ctx, "GetAddresses", query)
	defer func() { end(err) }()

	return readBook(r.pool.QueryRow(ctx, query, userID), userID)
}

// Mutate locks the user row, applies fn to the address book and writes it
// back, all in one transaction.
func (r *AddressRepository) Mutate(ctx context.Context, userID string, fn func(book *domain.AddressBook) error) (book *domain.AddressBook, err error) {
	ctx, end := database.TraceQuery(ctx, "MutateAddresses", "SELECT addresses FROM users FOR UPDATE")
	defer func() { end(err) }()

	err = database.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		b, err := readBook(tx.QueryRow(ctx, `SELECT addresses FROM users WHERE id = $1 FOR UPDATE`, userID), userID)
		if err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}

		raw, err := json.Marshal(b.Addresses)
		if err != nil {
			return fmt.Errorf("marshal addresses: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE users SET addresses = $2, updated_at = NOW() WHERE id = $1`, userID, raw); err != nil {
			return fmt.Errorf("save addresses: %w", err)
		}
		book = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return book, nil
}
