package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vesiron/library-edge/internal/metrics"
)

// Options 描述 NewStorage 所需的后端参数。
type Options struct {
	Backend     string
	Path        string
	RedisClient *redis.Client
	RedisPrefix string
}

// NewStorage 按 Backend 构建缓存仓集合：disk、memory 或 redis。
func NewStorage(opts Options) (Storage, error) {
	switch opts.Backend {
	case "", "disk":
		return NewDiskStorage(opts.Path)
	case "memory":
		return NewMemoryStorage(), nil
	case "redis":
		if opts.RedisClient == nil {
			return nil, errors.New("redis client required")
		}
		return NewRedisStorage(opts.RedisClient, opts.RedisPrefix), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", opts.Backend)
	}
}

// observe 把一次后端操作计入 CacheOperations。
func observe(backend, operation string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		result = "miss"
	default:
		result = "error"
	}
	if operation == "match" && err == nil {
		result = "hit"
	}
	metrics.CacheOperations.WithLabelValues(backend, operation, result).Inc()
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
