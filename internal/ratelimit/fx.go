package ratelimit

import (
	"strings"

	"github.com/listingcraft/listingcraft/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("rate.limit",
	fx.Provide(NewLockerFromConfig),
)

// NewLockerFromConfig returns a nil Locker when redis is not configured.
// Callers treat nil as "no cross-instance locking".
func NewLockerFromConfig(cfg config.Config) *Locker {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	return NewLocker(client)
}
