package records

import (
	"context"
	"fmt"

	"docverify/internal/config"
	"docverify/internal/docverify"
)

// NewRepositoryFromConfig creates a RecordRepository based on the records
// config type. The returned close function releases any connection and is
// never nil.
func NewRepositoryFromConfig(ctx context.Context, cfg config.RecordsConfig, logger docverify.Logger) (docverify.RecordRepository, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Type {
	case "memory":
		return NewMemoryRepository(), noop, nil
	case "file":
		if cfg.Path == "" {
			return nil, nil, fmt.Errorf("file records require path to be set")
		}
		repo, err := NewFileRepository(cfg.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		return repo, noop, nil
	case "redis":
		if cfg.RedisURL == "" {
			return nil, nil, fmt.Errorf("redis records require redis_url to be set")
		}
		client, err := NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return NewRedisRepository(client, cfg.RedisKey, logger), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown records type: %s", cfg.Type)
	}
}
