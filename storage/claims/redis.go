package claimstore

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/shule/core/subscription"
)

const maxTxRetries = 100

var errTooManyRetries = errors.New("claims ledger: too many concurrent writers")

type redisStore struct {
	rdb *redis.Client
	key string
}

var _ subscription.ClaimStore = (*redisStore)(nil)

// NewRedisStore keeps the ledger under a single key, shared by every API instance.
// Writes run under WATCH so concurrent approvals cannot overwrite each other.
func NewRedisStore(rdb *redis.Client, key string) *redisStore {
	return &redisStore{rdb: rdb, key: key}
}

func (s *redisStore) get(ctx context.Context, getter redis.Cmdable) ([]subscription.Claim, error) {
	data, err := getter.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return decode(nil), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading claims")
	}
	return decode(data), nil
}

func (s *redisStore) Load(ctx context.Context) ([]subscription.Claim, error) {
	return s.get(ctx, s.rdb)
}

// mutate reads the ledger, applies fn and writes it back in one optimistic transaction.
func (s *redisStore) mutate(ctx context.Context, fn func([]subscription.Claim) ([]subscription.Claim, error)) error {
	txf := func(tx *redis.Tx) error {
		claims, err := s.get(ctx, tx)
		if err != nil {
			return err
		}
		if claims, err = fn(claims); err != nil {
			return err
		}
		data, err := encode(claims)
		if err != nil {
			return errors.Wrap(err, "encoding claims")
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, data, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, s.key)
		if err == redis.TxFailedErr {
			// another writer won; back off a little before reading again
			time.Sleep(time.Duration(rand.Intn(i+1)) * time.Millisecond)
			continue
		}
		return err
	}
	return errTooManyRetries
}

func (s *redisStore) Append(ctx context.Context, build subscription.ClaimBuilder) (subscription.Claim, error) {
	var appended subscription.Claim
	err := s.mutate(ctx, func(claims []subscription.Claim) ([]subscription.Claim, error) {
		claims, claim, err := appendClaim(claims, build)
		if err != nil {
			return nil, err
		}
		appended = claim
		return claims, nil
	})
	if err != nil {
		return subscription.Claim{}, err
	}
	return appended, nil
}

func (s *redisStore) UpdateStatus(ctx context.Context, id string, from, to subscription.ClaimStatus) (subscription.Claim, error) {
	var updated subscription.Claim
	err := s.mutate(ctx, func(claims []subscription.Claim) ([]subscription.Claim, error) {
		c, err := updateStatus(claims, id, from, to)
		if err != nil {
			return nil, err
		}
		updated = c
		return claims, nil
	})
	if err != nil {
		return subscription.Claim{}, err
	}
	return updated, nil
}
