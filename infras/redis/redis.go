package redis

import (
	"context"
	"net"

	"roomkey/config"

	goRedis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Addr is the primary redis address shared by the cache and the task queue.
func Addr(cfg *config.Config) string {
	return net.JoinHostPort(cfg.Cache.Redis.Primary.Host, cfg.Cache.Redis.Primary.Port)
}

func New(cfg *config.Config) *goRedis.Client {
	client := goRedis.NewClient(&goRedis.Options{
		Addr:     Addr(cfg),
		Password: cfg.Cache.Redis.Primary.Password,
		DB:       cfg.Cache.Redis.Primary.DB,
	})

	if _, err := client.Ping(context.Background()).Result(); err != nil {
		log.Fatal().Err(err).Str("addr", Addr(cfg)).Msg("Failed to connect to Redis")
	}

	log.Info().
		Int("db", cfg.Cache.Redis.Primary.DB).
		Str("host", cfg.Cache.Redis.Primary.Host).
		Str("port", cfg.Cache.Redis.Primary.Port).
		Msg("Connected to Redis")

	return client
}
