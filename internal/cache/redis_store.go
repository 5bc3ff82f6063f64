package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

const backendRedis = "redis"

// NewRedisStorage 构建 Redis 缓存仓集合。布局：
//
//	<prefix>:stores          SET，全部缓存仓名称
//	<prefix>:store:<name>    HASH，field = Key.String()，value = 条目 JSON
//
// 多个边缘实例可共享同一组缓存仓。
func NewRedisStorage(client *redis.Client, prefix string) Storage {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = "library-edge"
	}
	return &redisStorage{
		client: client,
		prefix: prefix,
		open:   make(map[string]*redisStore),
	}
}

type redisStorage struct {
	client *redis.Client
	prefix string

	mu   sync.Mutex
	open map[string]*redisStore
}

type redisStore struct {
	storage *redisStorage
	name    string
	hashKey string
	dropped atomic.Bool
}

func (s *redisStorage) Backend() string { return backendRedis }

func (s *redisStorage) namesKey() string {
	return s.prefix + ":stores"
}

func (s *redisStorage) hashKey(name string) string {
	return s.prefix + ":store:" + name
}

func (s *redisStorage) Open(ctx context.Context, name string) (Store, error) {
	if name == "" {
		return nil, errors.New("store name required")
	}
	if err := s.client.SAdd(ctx, s.namesKey(), name).Err(); err != nil {
		observe(backendRedis, "open", err)
		return nil, fmt.Errorf("redis sadd: %w", err)
	}
	observe(backendRedis, "open", nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	if store, ok := s.open[name]; ok && !store.dropped.Load() {
		return store, nil
	}
	store := &redisStore{storage: s, name: name, hashKey: s.hashKey(name)}
	s.open[name] = store
	return store, nil
}

func (s *redisStorage) Has(ctx context.Context, name string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.namesKey(), name).Result()
	if err != nil {
		return false, fmt.Errorf("redis sismember: %w", err)
	}
	return ok, nil
}

func (s *redisStorage) Names(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, s.namesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *redisStorage) Delete(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	if store, ok := s.open[name]; ok {
		store.dropped.Store(true)
		delete(s.open, name)
	}
	s.mu.Unlock()

	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.SRem(ctx, s.namesKey(), name)
		pipe.Del(ctx, s.hashKey(name))
		return nil
	})
	observe(backendRedis, "drop", err)
	if err != nil {
		return false, fmt.Errorf("redis drop store: %w", err)
	}
	return removed.Val() > 0, nil
}

func (r *redisStore) Name() string { return r.name }

func (r *redisStore) Match(ctx context.Context, req *http.Request) (*Entry, error) {
	if r.dropped.Load() {
		return nil, ErrStoreUnavailable
	}
	data, err := r.storage.client.HGet(ctx, r.hashKey, KeyFor(req).String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			observe(backendRedis, "match", ErrNotFound)
			return nil, ErrNotFound
		}
		observe(backendRedis, "match", err)
		return nil, fmt.Errorf("redis hget: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		observe(backendRedis, "match", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	matched, err := matchEntry(&entry, req)
	observe(backendRedis, "match", err)
	return matched, err
}

func (r *redisStore) Put(ctx context.Context, entry *Entry) error {
	if r.dropped.Load() {
		observe(backendRedis, "put", ErrStoreUnavailable)
		return ErrStoreUnavailable
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	err = r.storage.client.HSet(ctx, r.hashKey, entry.Key.String(), data).Err()
	observe(backendRedis, "put", err)
	if err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

func (r *redisStore) Delete(ctx context.Context, key Key) error {
	err := r.storage.client.HDel(ctx, r.hashKey, key.String()).Err()
	observe(backendRedis, "delete", err)
	if err != nil {
		return fmt.Errorf("redis hdel: %w", err)
	}
	return nil
}

func (r *redisStore) Keys(ctx context.Context) ([]Key, error) {
	fields, err := r.storage.client.HKeys(ctx, r.hashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hkeys: %w", err)
	}
	keys := make([]Key, 0, len(fields))
	for _, field := range fields {
		key, err := ParseKey(field)
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	sortKeys(keys)
	return keys, nil
}
