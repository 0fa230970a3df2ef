package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/adexify/internal/domain"
	redisrepo "github.com/utafrali/adexify/internal/repository/redis"
	apperrors "github.com/utafrali/adexify/pkg/errors"
)

func newTestCollectionService(t *testing.T) (*CollectionService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := redisrepo.NewCollectionRepository(client, 7*24*time.Hour, 30*24*time.Hour)
	return NewCollectionService(repo, newTestProducer(), newTestLogger()), mr
}

var (
	guest = domain.Identity{GuestToken: "tok-1"}
	user  = domain.Identity{UserID: "user-1"}
)

func dress(qty int) domain.LineItem {
	return domain.LineItem{ProductID: "p1", Name: "Ankara Dress", Price: 15000, Quantity: qty, SelectedSize: "M"}
}

func intPtr(n int) *int { return &n }

func TestCollectionGet_MissingIsEmpty(t *testing.T) {
	svc, _ := newTestCollectionService(t)
	ctx := context.Background()

	col, err := svc.Get(ctx, domain.KindCart, guest)
	require.NoError(t, err)
	assert.Empty(t, col.Items)
	assert.Equal(t, "tok-1", col.Token)

	col, err = svc.Get(ctx, domain.KindWishlist, domain.Identity{})
	require.NoError(t, err)
	assert.Empty(t, col.Items)
}

func TestCollectionAddItem_MergesSameKey(t *testing.T) {
	svc, _ := newTestCollectionService(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, domain.KindCart, guest, dress(1))
	require.NoError(t, err)
	col, err := svc.AddItem(ctx, domain.KindCart, guest, dress(2))
	require.NoError(t, err)

	require.Len(t, col.Items, 1)
	assert.Equal(t, 3, col.Items[0].Quantity)

	other := dress(1)
	other.SelectedSize = "L"
	col, err = svc.AddItem(ctx, domain.KindCart, guest, other)
	require.NoError(t, err)
	assert.Len(t, col.Items, 2)
	assert.Equal(t, int64(60000), col.Subtotal())
}

func TestCollectionAddItem_Validation(t *testing.T) {
	svc, _ := newTestCollectionService(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, domain.KindCart, domain.Identity{}, dress(1))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	_, err = svc.AddItem(ctx, domain.KindCart, guest, domain.LineItem{Quantity: 1})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	_, err = svc.AddItem(ctx, domain.KindCart, guest, dress(domain.MaxQuantityPerItem+1))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestCollectionUpdateItem(t *testing.T) {
	svc, _ := newTestCollectionService(t)
	ctx := context.Background()
	key := dress(1).Key()

	_, err := svc.UpdateItem(ctx, domain.KindCart, guest, key, domain.ItemPatch{Quantity: intPtr(2)})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "missing cart")

	_, err = svc.AddItem(ctx, domain.KindCart, guest, dress(1))
	require.NoError(t, err)

	col, err := svc.UpdateItem(ctx, domain.KindCart, guest, key, domain.ItemPatch{Quantity: intPtr(5)})
	require.NoError(t, err)
	assert.Equal(t, 5, col.Items[0].Quantity)

	_, err = svc.UpdateItem(ctx, domain.KindCart, guest, domain.ItemKey{ProductID: "nope"}, domain.ItemPatch{Quantity: intPtr(1)})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound), "missing item")
}

func TestCollectionRemoveItem(t *testing.T) {
	svc, _ := newTestCollectionService(t)
	ctx := context.Background()

	_, _, err := svc.RemoveItem(ctx, domain.KindWishlist, user, dress(1).Key())
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, err = svc.AddItem(ctx, domain.KindWishlist, user, dress(1))
	require.NoError(t, err)

	col, removed, err := svc.RemoveItem(ctx, domain.KindWishlist, user, dress(1).Key())
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, col.Items)

	_, removed, err = svc.RemoveItem(ctx, domain.KindWishlist, user, dress(1).Key())
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestCollectionClear(t *testing.T) {
	svc, mr := newTestCollectionService(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, domain.KindCart, user, dress(1))
	require.NoError(t, err)
	require.True(t, mr.Exists("cart:user:user-1"))

	require.NoError(t, svc.Clear(ctx, domain.KindCart, user))
	assert.False(t, mr.Exists("cart:user:user-1"))

	require.NoError(t, svc.Clear(ctx, domain.KindCart, user))
}

func TestCollectionMerge_SumsQuantitiesAndDeletesGuest(t *testing.T) {
	svc, mr := newTestCollectionService(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, domain.KindCart, user, dress(2))
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, domain.KindCart, guest, dress(3))
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, domain.KindCart, guest, domain.LineItem{ProductID: "p2", Name: "Head Wrap", Price: 2500, Quantity: 1})
	require.NoError(t, err)

	col, err := svc.Merge(ctx, domain.KindCart, "user-1", "tok-1")
	require.NoError(t, err)

	require.Len(t, col.Items, 2)
	assert.Equal(t, 5, col.Items[0].Quantity)
	assert.Equal(t, "p2", col.Items[1].ProductID)
	assert.False(t, mr.Exists("cart:token:tok-1"))

	// Merging again is a no-op.
	again, err := svc.Merge(ctx, domain.KindCart, "user-1", "tok-1")
	require.NoError(t, err)
	assert.Equal(t, col.Items, again.Items)
}

func TestCollectionMerge_AdoptsGuestWhenUserHasNone(t *testing.T) {
	svc, mr := newTestCollectionService(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, domain.KindWishlist, guest, dress(1))
	require.NoError(t, err)

	col, err := svc.Merge(ctx, domain.KindWishlist, "user-1", "tok-1")
	require.NoError(t, err)

	assert.Equal(t, "user-1", col.UserID)
	assert.Empty(t, col.Token)
	assert.Len(t, col.Items, 1)
	assert.True(t, mr.Exists("wishlist:user:user-1"))
	assert.False(t, mr.Exists("wishlist:token:tok-1"))
}

func TestCollectionMerge_RequiresUserAndToken(t *testing.T) {
	svc, _ := newTestCollectionService(t)
	ctx := context.Background()

	_, err := svc.Merge(ctx, domain.KindCart, "", "tok-1")
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))

	_, err = svc.Merge(ctx, domain.KindCart, "user-1", "")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}
