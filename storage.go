package main

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/vesiron/library-edge/internal/cache"
	"github.com/vesiron/library-edge/internal/config"
)

type storageLister interface {
	Names(ctx context.Context) ([]string, error)
}

// openStorage 按配置构建缓存后端；redis 后端返回的 close 函数负责关闭连接。
func openStorage(cfg *config.Config) (cache.Storage, func(), error) {
	opts := cache.Options{
		Backend:     cfg.Storage.Backend,
		Path:        cfg.Storage.Path,
		RedisPrefix: cfg.Storage.RedisPrefix,
	}

	closeFn := func() {}
	if cfg.Storage.Backend == config.BackendRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		opts.RedisClient = client
		closeFn = func() { _ = client.Close() }
	}

	storage, err := cache.NewStorage(opts)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return storage, closeFn, nil
}
