package cache

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Remember serves key from the cache or calls load and stores its result in the background. A failed load is
// returned untouched and nothing is cached. Callers must not mutate the returned value.
func Remember[T any](ctx context.Context, c RedisCache, key string, ttl int, load func() (T, error)) (T, error) {
	var hit T
	if err := c.Get(ctx, key, &hit); err == nil {
		log.Debug().Str("cacheKey", key).Msg("cache hit")

		return hit, nil
	}

	value, err := load()
	if err != nil {
		return value, err
	}

	go func() {
		if err := c.Save(context.WithoutCancel(ctx), key, value, ttl); err != nil {
			log.Error().Err(err).Str("cacheKey", key).Msg("failed to populate cache")
		}
	}()

	return value, nil
}
