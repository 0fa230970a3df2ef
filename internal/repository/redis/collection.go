package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/adexify/internal/domain"
	"github.com/utafrali/adexify/internal/repository"
	apperrors "github.com/utafrali/adexify/pkg/errors"
)

// maxTxAttempts bounds optimistic retries when a watched key changes under
// us.
const maxTxAttempts = 5

// Key returns "<kind>:user:<id>" or "<kind>:token:<token>".
func Key(kind domain.Kind, owner domain.Owner) string {
	if owner.UserID != "" {
		return fmt.Sprintf("%s:user:%s", kind, owner.UserID)
	}
	return fmt.Sprintf("%s:token:%s", kind, owner.Token)
}

// CollectionRepository implements repository.CollectionRepository with one
// JSON document per collection. Guest and user documents expire after
// different TTLs, refreshed on every write.
type CollectionRepository struct {
	client   *redis.Client
	guestTTL time.Duration
	userTTL  time.Duration
	now      func() time.Time
}

var _ repository.CollectionRepository = (*CollectionRepository)(nil)

func NewCollectionRepository(client *redis.Client, guestTTL, userTTL time.Duration) *CollectionRepository {
	return &CollectionRepository{
		client:   client,
		guestTTL: guestTTL,
		userTTL:  userTTL,
		now:      time.Now,
	}
}

func (r *CollectionRepository) ttl(owner domain.Owner) time.Duration {
	if owner.UserID != "" {
		return r.userTTL
	}
	return r.guestTTL
}

func load(ctx context.Context, c redis.Cmdable, key string) (*domain.Collection, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	var col domain.Collection
	if err := json.Unmarshal(data, &col); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return &col, nil
}

// stage queues a write of col (stamped with owner, timestamps and expiry)
// on the pipeline.
func (r *CollectionRepository) stage(ctx context.Context, p redis.Pipeliner, key string, col *domain.Collection) error {
	now := r.now().UTC()
	ttl := r.ttl(col.Owner())
	col.UpdatedAt = now
	col.ExpiresAt = now.Add(ttl)

	data, err := json.Marshal(col)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	p.Set(ctx, key, data, ttl)
	return nil
}

// watch runs fn under WATCH on keys, retrying when another client wrote
// one of them first.
func (r *CollectionRepository) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := r.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return apperrors.Conflict("collection was modified concurrently, please retry")
}

func (r *CollectionRepository) Get(ctx context.Context, kind domain.Kind, owner domain.Owner) (*domain.Collection, error) {
	col, err := load(ctx, r.client, Key(kind, owner))
	if err != nil {
		return nil, err
	}
	if col == nil {
		return nil, apperrors.NotFound(string(kind), "")
	}
	return col, nil
}

func (r *CollectionRepository) Mutate(ctx context.Context, kind domain.Kind, owner domain.Owner, fn repository.MutateFunc) (*domain.Collection, error) {
	key := Key(kind, owner)

	var out *domain.Collection
	err := r.watch(ctx, func(tx *redis.Tx) error {
		current, err := load(ctx, tx, key)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			if next == nil {
				p.Del(ctx, key)
				return nil
			}
			return r.stage(ctx, p, key, next)
		})
		out = next
		return err
	}, key)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *CollectionRepository) Delete(ctx context.Context, kind domain.Kind, owner domain.Owner) (bool, error) {
	key := Key(kind, owner)
	n, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis del %s: %w", key, err)
	}
	return n > 0, nil
}

func (r *CollectionRepository) Merge(ctx context.Context, kind domain.Kind, userID, guestToken string, fn repository.MergeFunc) (*domain.Collection, error) {
	userKey := Key(kind, domain.Owner{UserID: userID})
	guestKey := Key(kind, domain.Owner{Token: guestToken})

	var out *domain.Collection
	err := r.watch(ctx, func(tx *redis.Tx) error {
		user, err := load(ctx, tx, userKey)
		if err != nil {
			return err
		}
		guest, err := load(ctx, tx, guestKey)
		if err != nil {
			return err
		}

		merged, err := fn(user, guest)
		if err != nil {
			return err
		}
		out = merged
		if guest == nil {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, guestKey)
			return r.stage(ctx, p, userKey, merged)
		})
		return err
	}, userKey, guestKey)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Ping reports whether Redis is reachable.
func (r *CollectionRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
