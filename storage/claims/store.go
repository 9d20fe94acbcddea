package claimstore

import (
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/subscription"
)

// Open returns the ledger selected by conf.Claims.Store.
// The returned closer releases the underlying connection, if any.
func Open(conf *core.Config) (subscription.ClaimStore, func() error, error) {
	noop := func() error { return nil }
	switch conf.Claims.Store {
	case "", "file":
		return NewFileStore(conf.Claims.FilePath), noop, nil
	case "memory":
		return NewMemoryStore(), noop, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     conf.Claims.RedisAddr,
			Password: conf.Claims.RedisPassword,
			DB:       conf.Claims.RedisDB,
		})
		return NewRedisStore(rdb, conf.Claims.StorageKey), rdb.Close, nil
	default:
		return nil, nil, errors.Errorf("unknown claims store %q", conf.Claims.Store)
	}
}
