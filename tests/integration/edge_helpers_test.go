package integration

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/vesiron/library-edge/internal/cache"
	"github.com/vesiron/library-edge/internal/config"
	"github.com/vesiron/library-edge/internal/lifecycle"
	"github.com/vesiron/library-edge/internal/proxy"
	"github.com/vesiron/library-edge/internal/server"
	"github.com/vesiron/library-edge/internal/server/routes"
	"github.com/vesiron/library-edge/internal/strategy"
)

const cachePrefix = "vesiron-tech-library"

var shellManifest = lifecycle.Manifest{
	"/",
	"/index.html",
	"/offline.html",
	"/manifest.webmanifest",
	"/assets/app.js",
}

// edgeHarness 按 serve 的装配方式组合全部组件，但不占用真实端口。
type edgeHarness struct {
	app        *fiber.App
	controller *lifecycle.Controller
	dispatcher *strategy.Dispatcher
	storage    cache.Storage
}

func newEdgeHarness(t *testing.T, originURL string, storage cache.Storage) *edgeHarness {
	t.Helper()

	base, err := url.Parse(originURL)
	if err != nil {
		t.Fatalf("parse origin: %v", err)
	}
	cfg := &config.Config{
		Global: config.GlobalConfig{
			ListenPort:      5000,
			Origin:          originURL,
			UpstreamTimeout: config.Duration(5 * time.Second),
		},
	}
	origin, err := proxy.NewOrigin(server.NewUpstreamClient(cfg), base)
	if err != nil {
		t.Fatalf("origin init: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	controller, err := lifecycle.NewController(lifecycle.Options{
		Storage:     storage,
		Fetcher:     origin,
		Origin:      base,
		CachePrefix: cachePrefix,
		Manifest:    shellManifest,
		Concurrency: 2,
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("controller init: %v", err)
	}

	dispatcher, err := strategy.NewDispatcher(strategy.Options{
		Stores:  controller,
		Fetcher: origin,
		Origin:  base,
		Rules:   strategy.DefaultRules(),
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("dispatcher init: %v", err)
	}

	handler, err := proxy.NewHandler(proxy.HandlerOptions{
		Dispatcher:   dispatcher,
		Origin:       base,
		Logger:       logger,
		ScriptPath:   "/service-worker.js",
		ManifestPath: "/manifest.webmanifest",
		ListenPort:   5000,
	})
	if err != nil {
		t.Fatalf("handler init: %v", err)
	}

	app, err := server.NewApp(server.AppOptions{Logger: logger, Proxy: handler, ListenPort: 5000})
	if err != nil {
		t.Fatalf("app init: %v", err)
	}
	routes.RegisterDiagnostics(app, routes.DiagnosticsOptions{Status: controller, Backend: storage.Backend()})

	h := &edgeHarness{app: app, controller: controller, dispatcher: dispatcher, storage: storage}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = dispatcher.Wait(ctx)
		_ = app.Shutdown()
	})
	return h
}

func (h *edgeHarness) start(t *testing.T, version string) {
	t.Helper()
	if err := h.controller.Start(context.Background(), version); err != nil {
		t.Fatalf("start %s: %v", version, err)
	}
}

// do 发送请求并读取完整响应体。
func (h *edgeHarness) do(t *testing.T, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := h.app.Test(req, fiber.TestConfig{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("edge request %s %s failed: %v", req.Method, req.URL.Path, err)
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(body)
}

// drain 等待后台刷新任务结束。
func (h *edgeHarness) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.dispatcher.Wait(ctx); err != nil {
		t.Fatalf("background revalidation did not finish: %v", err)
	}
}

func navigate(path string) *http.Request {
	req, _ := http.NewRequest(http.MethodGet, "http://edge.local"+path, nil)
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	return req
}

func fetchAPI(path string) *http.Request {
	req, _ := http.NewRequest(http.MethodGet, "http://edge.local"+path, nil)
	req.Header.Set("Sec-Fetch-Mode", "cors")
	req.Header.Set("Sec-Fetch-Dest", "empty")
	req.Header.Set("Accept", "application/json")
	return req
}

func subresource(path string) *http.Request {
	req, _ := http.NewRequest(http.MethodGet, "http://edge.local"+path, nil)
	req.Header.Set("Sec-Fetch-Mode", "no-cors")
	req.Header.Set("Sec-Fetch-Dest", "script")
	return req
}

func assertEdge(t *testing.T, resp *http.Response, strategyLabel, source string) {
	t.Helper()
	if got := resp.Header.Get("X-Edge-Strategy"); got != strategyLabel {
		t.Fatalf("expected strategy %s, got %s", strategyLabel, got)
	}
	if got := resp.Header.Get("X-Edge-Source"); got != source {
		t.Fatalf("expected source %s, got %s", source, got)
	}
}
