package cache

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"

	gocache "github.com/patrickmn/go-cache"
)

const backendMemory = "memory"

// NewMemoryStorage 构建进程内缓存仓集合，条目永不过期（不做任何淘汰）。
func NewMemoryStorage() Storage {
	return &memoryStorage{stores: make(map[string]*memoryStore)}
}

type memoryStorage struct {
	mu     sync.RWMutex
	stores map[string]*memoryStore
}

type memoryStore struct {
	name    string
	items   *gocache.Cache
	dropped atomic.Bool
}

func (s *memoryStorage) Backend() string { return backendMemory }

func (s *memoryStorage) Open(ctx context.Context, name string) (Store, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	store, ok := s.stores[name]
	if !ok {
		store = &memoryStore{
			name:  name,
			items: gocache.New(gocache.NoExpiration, 0),
		}
		s.stores[name] = store
	}
	observe(backendMemory, "open", nil)
	return store, nil
}

func (s *memoryStorage) Has(ctx context.Context, name string) (bool, error) {
	if err := checkContext(ctx); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.stores[name]
	return ok, nil
}

func (s *memoryStorage) Names(ctx context.Context) ([]string, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.stores))
	for name := range s.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *memoryStorage) Delete(ctx context.Context, name string) (bool, error) {
	if err := checkContext(ctx); err != nil {
		return false, err
	}
	s.mu.Lock()
	store, ok := s.stores[name]
	delete(s.stores, name)
	s.mu.Unlock()

	if ok {
		store.dropped.Store(true)
		store.items.Flush()
	}
	observe(backendMemory, "drop", nil)
	return ok, nil
}

func (m *memoryStore) Name() string { return m.name }

func (m *memoryStore) Match(ctx context.Context, req *http.Request) (*Entry, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if m.dropped.Load() {
		return nil, ErrStoreUnavailable
	}
	value, ok := m.items.Get(KeyFor(req).String())
	if !ok {
		observe(backendMemory, "match", ErrNotFound)
		return nil, ErrNotFound
	}
	entry, err := matchEntry(value.(*Entry), req)
	observe(backendMemory, "match", err)
	if err != nil {
		return nil, err
	}
	return entry.Clone(), nil
}

func (m *memoryStore) Put(ctx context.Context, entry *Entry) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	if m.dropped.Load() {
		observe(backendMemory, "put", ErrStoreUnavailable)
		return ErrStoreUnavailable
	}
	m.items.Set(entry.Key.String(), entry.Clone(), gocache.NoExpiration)
	observe(backendMemory, "put", nil)
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, key Key) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	m.items.Delete(key.String())
	observe(backendMemory, "delete", nil)
	return nil
}

func (m *memoryStore) Keys(ctx context.Context) ([]Key, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	items := m.items.Items()
	keys := make([]Key, 0, len(items))
	for _, item := range items {
		if entry, ok := item.Object.(*Entry); ok {
			keys = append(keys, entry.Key)
		}
	}
	sortKeys(keys)
	return keys, nil
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
}
