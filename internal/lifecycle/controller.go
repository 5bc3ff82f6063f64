package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vesiron/library-edge/internal/cache"
	"github.com/vesiron/library-edge/internal/logging"
	"github.com/vesiron/library-edge/internal/metrics"
)

// Options 描述 Controller 依赖的外部组件。
type Options struct {
	Storage     cache.Storage
	Fetcher     Fetcher
	Origin      *url.URL
	CachePrefix string
	Manifest    Manifest
	Concurrency int
	Logger      *logrus.Logger
}

// ActivateReport 汇总一次激活的旧缓存仓清理结果。
type ActivateReport struct {
	Version   string   `json:"version"`
	CacheName string   `json:"cache_name"`
	Deleted   []string `json:"deleted"`
	Failed    []string `json:"failed,omitempty"`
}

// Snapshot 是注册状态的只读视图。
type Snapshot struct {
	Active       *WorkerInfo     `json:"active"`
	Waiting      *WorkerInfo     `json:"waiting"`
	Installing   *WorkerInfo     `json:"installing"`
	Stores       []string        `json:"stores"`
	LastInstall  *InstallReport  `json:"last_install,omitempty"`
	LastActivate *ActivateReport `json:"last_activate,omitempty"`
}

// Controller 串行执行 install/activate，并以原子指针发布当前激活的 worker。
// 读路径（Current）不持有锁，安装期间请求照常由旧版本服务。
type Controller struct {
	opts      Options
	precacher precacher

	// opMu 串行化生命周期操作；mu 只保护下面的注册字段。
	opMu         sync.Mutex
	mu           sync.Mutex
	installing   *Worker
	waiting      *Worker
	lastInstall  *InstallReport
	lastActivate *ActivateReport

	active atomic.Pointer[Worker]
}

// NewController 校验依赖并补齐默认值。
func NewController(opts Options) (*Controller, error) {
	if opts.Storage == nil {
		return nil, errors.New("lifecycle: storage required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("lifecycle: fetcher required")
	}
	if opts.Origin == nil || opts.Origin.Host == "" {
		return nil, errors.New("lifecycle: origin required")
	}
	if opts.CachePrefix == "" {
		return nil, errors.New("lifecycle: cache prefix required")
	}
	if len(opts.Manifest) == 0 {
		opts.Manifest = DefaultManifest()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Controller{
		opts: opts,
		precacher: precacher{
			fetcher:     opts.Fetcher,
			origin:      opts.Origin,
			concurrency: opts.Concurrency,
			logger:      opts.Logger,
		},
	}, nil
}

// CacheNameFor 返回版本对应的缓存仓名称。
func (c *Controller) CacheNameFor(version string) string {
	return fmt.Sprintf("%s-%s", c.opts.CachePrefix, version)
}

// Current 返回当前激活的 worker，尚未激活任何版本时返回 nil。
func (c *Controller) Current() *Worker {
	return c.active.Load()
}

// ActiveStore 返回激活版本的缓存仓，供请求分发器使用。
func (c *Controller) ActiveStore() cache.Store {
	if worker := c.active.Load(); worker != nil {
		return worker.Store()
	}
	return nil
}

// Start 安装并立即激活 version（skipWaiting + clients.claim）。
func (c *Controller) Start(ctx context.Context, version string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if _, err := c.install(ctx, version); err != nil {
		return err
	}
	_, err := c.activate(ctx)
	return err
}

// Update 在 version 与当前激活版本不同时执行 Start，返回是否发生了切换。
func (c *Controller) Update(ctx context.Context, version string) (bool, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if current := c.active.Load(); current != nil && current.Version == version {
		return false, nil
	}
	if _, err := c.install(ctx, version); err != nil {
		return false, err
	}
	if _, err := c.activate(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Install 执行安装阶段，成功后 worker 进入 waiting。
func (c *Controller) Install(ctx context.Context, version string) (*InstallReport, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.install(ctx, version)
}

// Activate 激活 waiting worker。
func (c *Controller) Activate(ctx context.Context) (*ActivateReport, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.activate(ctx)
}

func (c *Controller) install(ctx context.Context, version string) (*InstallReport, error) {
	if version == "" {
		return nil, errors.New("lifecycle: version required")
	}
	started := time.Now()
	worker := newWorker(version, c.CacheNameFor(version))
	c.setInstalling(worker)
	logger := c.opts.Logger.WithFields(logging.LifecycleFields("install", worker.Version, worker.CacheName))
	logger.Info("worker_installing")

	store, err := c.opts.Storage.Open(ctx, worker.CacheName)
	if err != nil {
		c.setInstalling(nil)
		_ = worker.transition(StateRedundant)
		logger.WithError(err).Error("worker_install_failed")
		return nil, fmt.Errorf("open cache store %s: %w", worker.CacheName, err)
	}
	worker.setStore(store)

	report := &InstallReport{Version: version, CacheName: worker.CacheName}
	c.precacher.run(ctx, store, c.opts.Manifest, report)
	sort.Strings(report.FailedPaths)
	report.Elapsed = time.Since(started)

	if err := worker.transition(StateInstalled); err != nil {
		c.setInstalling(nil)
		return nil, err
	}
	c.mu.Lock()
	if c.waiting != nil {
		_ = c.waiting.transition(StateRedundant)
	}
	c.installing = nil
	c.waiting = worker
	c.lastInstall = report
	c.mu.Unlock()

	logger.WithFields(logrus.Fields{
		"cached":     report.Cached,
		"failed":     report.Failed,
		"elapsed_ms": report.Elapsed.Milliseconds(),
	}).Info("worker_installed")
	return report, nil
}

func (c *Controller) activate(ctx context.Context) (*ActivateReport, error) {
	c.mu.Lock()
	worker := c.waiting
	c.mu.Unlock()
	if worker == nil {
		return nil, ErrNoWaitingWorker
	}
	if err := worker.transition(StateActivating); err != nil {
		return nil, err
	}
	logger := c.opts.Logger.WithFields(logging.LifecycleFields("activate", worker.Version, worker.CacheName))

	report := &ActivateReport{Version: worker.Version, CacheName: worker.CacheName, Deleted: []string{}}
	if err := c.deleteStale(ctx, worker.CacheName, report); err != nil {
		logger.WithError(err).Warn("cache_cleanup_list_failed")
	}

	if err := worker.transition(StateActivated); err != nil {
		return nil, err
	}
	previous := c.active.Swap(worker)
	if previous != nil && previous != worker {
		_ = previous.transition(StateRedundant)
	}
	c.mu.Lock()
	c.waiting = nil
	c.lastActivate = report
	c.mu.Unlock()
	metrics.SetActiveVersion(worker.Version, worker.CacheName)

	logger.WithFields(logrus.Fields{
		"deleted": report.Deleted,
		"failed":  report.Failed,
	}).Info("worker_activated")
	return report, nil
}

func (c *Controller) setInstalling(worker *Worker) {
	c.mu.Lock()
	c.installing = worker
	c.mu.Unlock()
}

// deleteStale 并行删除名称不等于 keep 的全部缓存仓，等待所有删除完成。
func (c *Controller) deleteStale(ctx context.Context, keep string, report *ActivateReport) error {
	names, err := c.opts.Storage.Names(ctx)
	if err != nil {
		return err
	}

	var (
		group errgroup.Group
		mu    sync.Mutex
	)
	for _, name := range names {
		if name == keep {
			continue
		}
		name := name
		group.Go(func() error {
			_, err := c.opts.Storage.Delete(ctx, name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed = append(report.Failed, name)
				c.opts.Logger.WithError(err).
					WithFields(logging.LifecycleFields("cache_cleanup", report.Version, name)).
					Warn("cache_store_delete_failed")
				return nil
			}
			report.Deleted = append(report.Deleted, name)
			metrics.StoresDeleted.Inc()
			c.opts.Logger.WithFields(logging.LifecycleFields("cache_cleanup", report.Version, name)).
				Info("cache_store_deleted")
			return nil
		})
	}
	_ = group.Wait()
	sort.Strings(report.Deleted)
	sort.Strings(report.Failed)
	return nil
}

// Snapshot 汇总注册状态与现存缓存仓名称。
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	snap := Snapshot{
		Active:       c.active.Load().Info(),
		Waiting:      c.waiting.Info(),
		Installing:   c.installing.Info(),
		LastInstall:  c.lastInstall,
		LastActivate: c.lastActivate,
	}
	c.mu.Unlock()

	names, err := c.opts.Storage.Names(ctx)
	if err != nil {
		return snap, err
	}
	snap.Stores = names
	return snap, nil
}
