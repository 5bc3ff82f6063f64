package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

const backendDisk = "disk"

// NewDiskStorage 以 basePath 为根目录构建磁盘缓存仓集合，磁盘布局：
//
//	<basePath>/<escaped store name>/<sha1(key)>.json    # 条目 JSON（含正文）
func NewDiskStorage(basePath string) (Storage, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &diskStorage{
		basePath: abs,
		open:     make(map[string]*diskStore),
	}, nil
}

// diskStorage 的 mu 保证 Delete 整仓删除时没有写入进行中；entryLock 避免同一 Key 并发写入。
type diskStorage struct {
	basePath string

	mu   sync.RWMutex
	open map[string]*diskStore

	lockMu sync.Mutex
	locks  map[string]*entryLock
}

type diskStore struct {
	storage *diskStorage
	name    string
	dir     string
	dropped atomic.Bool
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func (s *diskStorage) Backend() string { return backendDisk }

func (s *diskStorage) Open(ctx context.Context, name string) (Store, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	dir, err := s.storeDir(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if store, ok := s.open[name]; ok && !store.dropped.Load() {
		return store, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		observe(backendDisk, "open", err)
		return nil, err
	}
	store := &diskStore{storage: s, name: name, dir: dir}
	s.open[name] = store
	observe(backendDisk, "open", nil)
	return store, nil
}

func (s *diskStorage) Has(ctx context.Context, name string) (bool, error) {
	if err := checkContext(ctx); err != nil {
		return false, err
	}
	dir, err := s.storeDir(name)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

func (s *diskStorage) Names(ctx context.Context) ([]string, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	items, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		if !item.IsDir() || strings.HasPrefix(item.Name(), ".") {
			continue
		}
		name, err := url.PathUnescape(item.Name())
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *diskStorage) Delete(ctx context.Context, name string) (bool, error) {
	if err := checkContext(ctx); err != nil {
		return false, err
	}
	dir, err := s.storeDir(name)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if store, ok := s.open[name]; ok {
		store.dropped.Store(true)
		delete(s.open, name)
	}
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	err = os.RemoveAll(dir)
	observe(backendDisk, "drop", err)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *diskStorage) storeDir(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "", errors.New("store name required")
	}
	dir := filepath.Join(s.basePath, url.PathEscape(name))
	if filepath.Dir(dir) != s.basePath {
		return "", errors.New("invalid store name")
	}
	return dir, nil
}

func (s *diskStorage) lockEntry(key string) func() {
	s.lockMu.Lock()
	if s.locks == nil {
		s.locks = make(map[string]*entryLock)
	}
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.lockMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.lockMu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.lockMu.Unlock()
	}
}

func (d *diskStore) Name() string { return d.name }

func (d *diskStore) Match(ctx context.Context, req *http.Request) (*Entry, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if d.dropped.Load() {
		return nil, ErrStoreUnavailable
	}
	entry, err := d.read(d.entryPath(KeyFor(req)))
	if err == nil {
		entry, err = matchEntry(entry, req)
	}
	observe(backendDisk, "match", err)
	return entry, err
}

func (d *diskStore) Put(ctx context.Context, entry *Entry) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	d.storage.mu.RLock()
	defer d.storage.mu.RUnlock()
	if d.dropped.Load() {
		observe(backendDisk, "put", ErrStoreUnavailable)
		return ErrStoreUnavailable
	}

	filePath := d.entryPath(entry.Key)
	unlock := d.storage.lockEntry(filePath)
	defer unlock()

	err := writeEntryFile(ctx, filePath, entry)
	observe(backendDisk, "put", err)
	return err
}

func (d *diskStore) Delete(ctx context.Context, key Key) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	filePath := d.entryPath(key)
	unlock := d.storage.lockEntry(filePath)
	defer unlock()

	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		observe(backendDisk, "delete", err)
		return err
	}
	observe(backendDisk, "delete", nil)
	return nil
}

func (d *diskStore) Keys(ctx context.Context) ([]Key, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	items, err := os.ReadDir(d.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	keys := make([]Key, 0, len(items))
	for _, item := range items {
		if item.IsDir() || !strings.HasSuffix(item.Name(), ".json") {
			continue
		}
		entry, err := d.read(filepath.Join(d.dir, item.Name()))
		if err != nil {
			continue
		}
		keys = append(keys, entry.Key)
	}
	sortKeys(keys)
	return keys, nil
}

func (d *diskStore) entryPath(key Key) string {
	sum := sha1.Sum([]byte(key.String()))
	return filepath.Join(d.dir, hex.EncodeToString(sum[:])+".json")
}

func (d *diskStore) read(filePath string) (*Entry, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return &entry, nil
}

// writeEntryFile 通过临时文件 + rename 保证写入原子性，失败时清理临时文件。
func writeEntryFile(ctx context.Context, filePath string, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := checkContext(ctx); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(filepath.Dir(filePath), ".cache-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(data)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}
