package cache

import (
	"context"
	"errors"
	"net/http"
)

// Storage 管理一组按名称隔离的缓存仓，对应浏览器的 CacheStorage。
type Storage interface {
	// Open 打开（不存在时创建）指定名称的缓存仓。
	Open(ctx context.Context, name string) (Store, error)

	// Has 判断缓存仓是否存在。
	Has(ctx context.Context, name string) (bool, error)

	// Names 返回全部缓存仓名称，按字典序排列。
	Names(ctx context.Context) ([]string, error)

	// Delete 整体删除缓存仓，返回值表示删除前是否存在。已打开的句柄随之失效。
	Delete(ctx context.Context, name string) (bool, error)

	// Backend 返回后端类型，用于日志与指标标签。
	Backend() string
}

// Store 是单个版本的缓存仓，所有条目以 Key 唯一定位。
type Store interface {
	// Name 返回缓存仓名称。
	Name() string

	// Match 查找与请求匹配的条目（含 Vary 校验），不存在时返回 ErrNotFound。
	Match(ctx context.Context, req *http.Request) (*Entry, error)

	// Put 写入或覆盖条目。
	Put(ctx context.Context, entry *Entry) error

	// Delete 删除单个条目，不存在时不报错。
	Delete(ctx context.Context, key Key) error

	// Keys 返回仓内全部条目的键。
	Keys(ctx context.Context) ([]Key, error)
}

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")

	// ErrStoreUnavailable 表示缓存仓已被删除或尚未注入。
	ErrStoreUnavailable = errors.New("cache store unavailable")

	// ErrInvalidEntry 表示条目无法解码或缺少必要字段。
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// matchEntry 在取出条目后统一执行 Vary 校验。
func matchEntry(entry *Entry, req *http.Request) (*Entry, error) {
	if entry == nil || !entry.Matches(req) {
		return nil, ErrNotFound
	}
	return entry, nil
}
