package cache

import (
	"go.uber.org/zap"

	"github.com/retail/backend/internal/domain/shared"
	"github.com/retail/backend/internal/infrastructure/config"
)

// NewIdempotencyStore creates the idempotency store for the deployment: the
// Redis store when Redis is reachable, otherwise an in-memory store. The
// fallback weakens the duplicate-completion guard to a single instance, so it
// is logged loudly.
func NewIdempotencyStore(cfg config.RedisConfig, logger *zap.Logger) shared.IdempotencyStore {
	store, err := NewRedisIdempotencyStore(cfg)
	if err != nil {
		logger.Warn("Redis unavailable, falling back to in-memory idempotency store",
			zap.String("addr", cfg.RedisAddr()),
			zap.Error(err))
		return NewInMemoryIdempotencyStore()
	}

	logger.Info("using Redis idempotency store", zap.String("addr", cfg.RedisAddr()))
	return store
}
