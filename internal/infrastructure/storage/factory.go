package storage

import (
	"fmt"

	"twintalk/internal/core/ports"
	"twintalk/pkg/circuitbreaker"
	"twintalk/pkg/config"
	"twintalk/pkg/retry"

	"go.uber.org/zap"
)

// NewArtifactStore picks the backend named by recording.storage. A Redis
// backend that cannot be reached falls back to the file store. Durable
// backends are wrapped in a ResilientStore.
func NewArtifactStore(cfg *config.Config, logger *zap.SugaredLogger) (ports.ArtifactStore, error) {
	switch cfg.Recording.Storage {
	case "memory":
		logger.Info("using in-memory recording storage")
		return NewMemoryStore(), nil

	case "redis":
		client, err := NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err == nil {
			logger.Info("using Redis recording storage")
			return resilient(NewRedisStore(client, cfg.Recording.RedisTTL), "redis", logger), nil
		}
		logger.Warnw("failed to connect to Redis, falling back to file recording storage",
			"error", err,
		)
		fallthrough

	case "file", "":
		fs, err := NewFileStore(cfg.Recording.Directory)
		if err != nil {
			return nil, err
		}
		logger.Infow("using file recording storage", "directory", cfg.Recording.Directory)
		return resilient(fs, "file", logger), nil

	default:
		return nil, fmt.Errorf("unknown recording storage %q", cfg.Recording.Storage)
	}
}

func resilient(next ports.ArtifactStore, backend string, logger *zap.SugaredLogger) *ResilientStore {
	return NewResilientStore(next, backend, retry.DefaultConfig(), circuitbreaker.DefaultConfig(), logger)
}
