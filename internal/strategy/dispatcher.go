package strategy

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/vesiron/library-edge/internal/cache"
	"github.com/vesiron/library-edge/internal/logging"
	"github.com/vesiron/library-edge/internal/metrics"
)

// Fetcher 抽象"网络"。
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*http.Response, error)
}

// StoreProvider 提供当前激活的缓存仓，尚未激活任何版本时返回 nil。
type StoreProvider interface {
	ActiveStore() cache.Store
}

// Result 描述一次分发的结果，供响应头与请求日志使用。
type Result struct {
	Kind        Kind
	Source      Source
	Intercepted bool
	CacheName   string
}

// Options 描述 Dispatcher 依赖。
type Options struct {
	Stores   StoreProvider
	Fetcher  Fetcher
	Origin   *url.URL
	Rules    Rules
	Registry *Registry
	Logger   *logrus.Logger
}

// Dispatcher 拦截读请求并交给对应策略，后台刷新任务由内部 WaitGroup 跟踪。
type Dispatcher struct {
	stores   StoreProvider
	fetcher  Fetcher
	origin   *url.URL
	rules    Rules
	registry *Registry
	logger   *logrus.Logger

	tasks sync.WaitGroup
}

// NewDispatcher 校验依赖并补齐默认规则与注册表。
func NewDispatcher(opts Options) (*Dispatcher, error) {
	if opts.Stores == nil {
		return nil, errors.New("strategy: store provider required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("strategy: fetcher required")
	}
	if opts.Origin == nil || opts.Origin.Host == "" {
		return nil, errors.New("strategy: origin required")
	}
	if opts.Rules == (Rules{}) {
		opts.Rules = DefaultRules()
	}
	if opts.Registry == nil {
		opts.Registry = DefaultRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Dispatcher{
		stores:   opts.Stores,
		fetcher:  opts.Fetcher,
		origin:   opts.Origin,
		rules:    opts.Rules,
		registry: opts.Registry,
		logger:   opts.Logger,
	}, nil
}

// Intercepts 判断请求是否进入缓存策略：仅 http(s) 的 GET，且不是 service worker 脚本本身。
func (d *Dispatcher) Intercepts(req *http.Request) bool {
	if req.Method != http.MethodGet {
		return false
	}
	scheme := strings.ToLower(req.URL.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}
	if d.rules.ScriptPath != "" && req.URL.Path == d.rules.ScriptPath {
		return false
	}
	return true
}

// Dispatch 返回请求的最终响应。只有直通请求的网络失败会返回 error，
// 被拦截的请求总能得到有效响应。
func (d *Dispatcher) Dispatch(ctx context.Context, req *http.Request) (*http.Response, Result, error) {
	store := d.stores.ActiveStore()
	if store == nil || !d.Intercepts(req) {
		resp, err := d.fetcher.Fetch(ctx, req)
		metrics.StrategyResponses.WithLabelValues("none", string(SourcePassthrough)).Inc()
		return resp, Result{Source: SourcePassthrough}, err
	}

	kind := Classify(req, d.rules)
	strategy, ok := d.registry.Resolve(kind)
	if !ok {
		strategy, ok = d.registry.Resolve(KindStatic)
	}
	if !ok {
		resp, err := d.fetcher.Fetch(ctx, req)
		return resp, Result{Kind: kind, Source: SourcePassthrough}, err
	}

	ex := &Exchange{
		Store:      store,
		Navigation: IsNavigation(req),
		writer:     cache.NewWriter(store, d.logger),
		fetcher:    d.fetcher,
		origin:     d.origin,
		rules:      d.rules,
		logger:     d.logger,
		background: d.spawn(ctx),
	}
	resp, source := strategy.Handle(ctx, ex, req)
	metrics.StrategyResponses.WithLabelValues(string(strategy.Kind()), string(source)).Inc()
	return resp, Result{
		Kind:        strategy.Kind(),
		Source:      source,
		Intercepted: true,
		CacheName:   store.Name(),
	}, nil
}

func (d *Dispatcher) spawn(parent context.Context) func(fn func(ctx context.Context)) {
	return func(fn func(ctx context.Context)) {
		d.tasks.Add(1)
		go func() {
			defer d.tasks.Done()
			fn(context.WithoutCancel(parent))
		}()
	}
}

// Wait 等待所有后台刷新任务结束，ctx 到期时提前返回其错误。
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
