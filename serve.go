package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/vesiron/library-edge/internal/cache"
	"github.com/vesiron/library-edge/internal/config"
	"github.com/vesiron/library-edge/internal/lifecycle"
	"github.com/vesiron/library-edge/internal/logging"
	"github.com/vesiron/library-edge/internal/proxy"
	"github.com/vesiron/library-edge/internal/server"
	"github.com/vesiron/library-edge/internal/server/routes"
	"github.com/vesiron/library-edge/internal/strategy"
)

const shutdownTimeout = 10 * time.Second

// edge 汇总 serve 所需的全部组件，便于测试直接构建。
type edge struct {
	app        *fiber.App
	controller *lifecycle.Controller
	dispatcher *strategy.Dispatcher
}

// buildEdge 按配置组装源站客户端、生命周期控制器、策略分发器与 HTTP 应用。
func buildEdge(cfg *config.Config, storage cache.Storage, logger *logrus.Logger) (*edge, error) {
	originURL, err := url.Parse(cfg.Global.Origin)
	if err != nil {
		return nil, fmt.Errorf("解析源站地址失败: %w", err)
	}
	origin, err := proxy.NewOrigin(server.NewUpstreamClient(cfg), originURL)
	if err != nil {
		return nil, err
	}

	controller, err := lifecycle.NewController(lifecycle.Options{
		Storage:     storage,
		Fetcher:     origin,
		Origin:      originURL,
		CachePrefix: cfg.Worker.CachePrefix,
		Manifest:    lifecycle.Manifest(cfg.Worker.Precache),
		Concurrency: cfg.Worker.PrecacheConcurrency,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	dispatcher, err := strategy.NewDispatcher(strategy.Options{
		Stores:  controller,
		Fetcher: origin,
		Origin:  originURL,
		Rules: strategy.Rules{
			APIPrefix:         cfg.Worker.APIPrefix,
			DocumentSuffix:    cfg.Worker.DocumentSuffix,
			DocumentMediaType: cfg.Worker.DocumentMediaType,
			OfflinePage:       cfg.Worker.OfflinePage,
			ScriptPath:        cfg.Worker.ScriptPath,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	handler, err := proxy.NewHandler(proxy.HandlerOptions{
		Dispatcher:   dispatcher,
		Origin:       originURL,
		Logger:       logger,
		ScriptPath:   cfg.Worker.ScriptPath,
		ManifestPath: cfg.Worker.ManifestPath,
		ListenPort:   cfg.Global.ListenPort,
	})
	if err != nil {
		return nil, err
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Proxy:      handler,
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		return nil, err
	}
	routes.RegisterDiagnostics(app, routes.DiagnosticsOptions{
		Status:  controller,
		Backend: cfg.Storage.Backend,
	})

	return &edge{app: app, controller: controller, dispatcher: dispatcher}, nil
}

// serve 安装当前版本后开始监听，收到 SIGINT/SIGTERM 时优雅退出。
func serve(configPath string, cfg *config.Config, storage cache.Storage, logger *logrus.Logger) error {
	e, err := buildEdge(cfg, storage, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := e.controller.Start(ctx, cfg.Worker.CacheVersion); err != nil {
		// 安装失败时不激活任何版本，请求全部直通源站。
		logger.WithFields(logging.LifecycleFields("install", cfg.Worker.CacheVersion, cfg.CacheName())).
			WithError(err).Error("初始版本安装失败，进入直通模式")
	}

	updates := make(chan string, 1)
	err = config.Watch(configPath, func(next *config.Config) {
		pushVersion(updates, next.Worker.CacheVersion)
	}, func(err error) {
		logger.WithFields(logging.BaseFields("config_reload", configPath)).WithError(err).Warn("配置重载失败，保留当前版本")
	})
	if err != nil {
		logger.WithFields(logging.BaseFields("config_watch", configPath)).WithError(err).Warn("无法监听配置文件")
	}

	go runUpdates(ctx, e.controller, updates, logger)
	if interval := cfg.Worker.UpdateInterval.DurationValue(); interval > 0 {
		go pollVersion(ctx, configPath, interval, updates, logger)
	}

	port := cfg.Global.ListenPort
	listenErr := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"action":     "listen",
			"port":       port,
			"origin":     cfg.Global.Origin,
			"cache_name": cfg.CacheName(),
		}).Info("Fiber 服务启动")
		listenErr <- e.app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-listenErr:
		return err
	case <-ctx.Done():
	}

	logger.WithFields(logrus.Fields{"action": "shutdown"}).Info("收到退出信号，正在关闭服务")
	if err := e.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.WithFields(logrus.Fields{"action": "shutdown"}).WithError(err).Warn("HTTP 服务关闭超时")
	}
	waitCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.dispatcher.Wait(waitCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// pushVersion 只保留最新的版本号，旧的未处理版本直接被覆盖。
func pushVersion(updates chan string, version string) {
	for {
		select {
		case updates <- version:
			return
		default:
		}
		select {
		case <-updates:
		default:
		}
	}
}

// runUpdates 串行处理版本变更：安装新版本、激活并清理旧缓存仓。
func runUpdates(ctx context.Context, controller *lifecycle.Controller, updates <-chan string, logger *logrus.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case version := <-updates:
			changed, err := controller.Update(ctx, version)
			fields := logging.LifecycleFields("update", version, controller.CacheNameFor(version))
			if err != nil {
				logger.WithFields(fields).WithError(err).Error("版本更新失败，继续使用当前版本")
				continue
			}
			if changed {
				logger.WithFields(fields).Info("版本更新完成")
			}
		}
	}
}

// pollVersion 周期性重新读取配置文件，模拟浏览器对 sw.js 的更新检查。
func pollVersion(ctx context.Context, configPath string, interval time.Duration, updates chan string, logger *logrus.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cfg, err := config.Load(configPath)
			if err != nil {
				logger.WithFields(logging.BaseFields("update_check", configPath)).WithError(err).Warn("更新检查读取配置失败")
				continue
			}
			pushVersion(updates, cfg.Worker.CacheVersion)
		}
	}
}
