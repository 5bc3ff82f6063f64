package lifecycle

import (
	"sync"
	"time"

	"github.com/vesiron/library-edge/internal/cache"
	"github.com/vesiron/library-edge/internal/metrics"
)

// Worker 表示某个缓存版本的一次安装，等价于浏览器中的一个 service worker 实例。
type Worker struct {
	Version   string
	CacheName string

	mu          sync.RWMutex
	state       State
	store       cache.Store
	installedAt time.Time
	activatedAt time.Time
}

func newWorker(version, cacheName string) *Worker {
	metrics.LifecycleTransitions.WithLabelValues(string(StateInstalling)).Inc()
	return &Worker{Version: version, CacheName: cacheName, state: StateInstalling}
}

// State 返回当前状态。
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Store 返回该版本的缓存仓，安装失败时为 nil。
func (w *Worker) Store() cache.Store {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.store
}

func (w *Worker) transition(to State) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := checkTransition(w.state, to); err != nil {
		return err
	}
	w.state = to
	switch to {
	case StateInstalled:
		w.installedAt = time.Now().UTC()
	case StateActivated:
		w.activatedAt = time.Now().UTC()
	}
	metrics.LifecycleTransitions.WithLabelValues(string(to)).Inc()
	return nil
}

func (w *Worker) setStore(store cache.Store) {
	w.mu.Lock()
	w.store = store
	w.mu.Unlock()
}

// WorkerInfo 是 Worker 的只读快照，用于诊断接口。
type WorkerInfo struct {
	Version     string    `json:"version"`
	CacheName   string    `json:"cache_name"`
	State       State     `json:"state"`
	InstalledAt time.Time `json:"installed_at,omitempty"`
	ActivatedAt time.Time `json:"activated_at,omitempty"`
}

// Info 生成快照，w 为 nil 时返回 nil。
func (w *Worker) Info() *WorkerInfo {
	if w == nil {
		return nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return &WorkerInfo{
		Version:     w.Version,
		CacheName:   w.CacheName,
		State:       w.state,
		InstalledAt: w.installedAt,
		ActivatedAt: w.activatedAt,
	}
}
