package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/vesiron/library-edge/internal/logging"
	"github.com/vesiron/library-edge/internal/server"
	"github.com/vesiron/library-edge/internal/strategy"
)

// Dispatcher 是 Handler 依赖的分发器。
type Dispatcher interface {
	Dispatch(ctx context.Context, req *http.Request) (*http.Response, strategy.Result, error)
}

// HandlerOptions 描述 Handler 依赖。
type HandlerOptions struct {
	Dispatcher   Dispatcher
	Origin       *url.URL
	Logger       *logrus.Logger
	ScriptPath   string
	ManifestPath string
	ListenPort   int
}

// Handler 把 Fiber 请求转换为 *http.Request 交给分发器，再把结果写回客户端。
type Handler struct {
	dispatcher   Dispatcher
	origin       *url.URL
	logger       *logrus.Logger
	scriptPath   string
	manifestPath string
	listenPort   int
}

// NewHandler constructs the edge proxy handler.
func NewHandler(opts HandlerOptions) (*Handler, error) {
	if opts.Dispatcher == nil {
		return nil, errors.New("dispatcher required")
	}
	if opts.Origin == nil || opts.Origin.Host == "" {
		return nil, errors.New("origin required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Handler{
		dispatcher:   opts.Dispatcher,
		origin:       opts.Origin,
		logger:       opts.Logger,
		scriptPath:   opts.ScriptPath,
		manifestPath: opts.ManifestPath,
		listenPort:   opts.ListenPort,
	}, nil
}

// Handle 执行分发并写回响应，任何阶段出错都会输出结构化日志。
func (h *Handler) Handle(c fiber.Ctx) error {
	started := time.Now()
	requestID := server.RequestID(c)

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := h.buildRequest(ctx, c)
	if err != nil {
		h.logResult(c, strategy.Result{Source: strategy.SourcePassthrough}, requestID, 0, started, err)
		return h.writeError(c, fiber.StatusBadRequest, "invalid_request")
	}

	resp, result, err := h.dispatcher.Dispatch(ctx, req)
	if err != nil {
		h.logResult(c, result, requestID, 0, started, err)
		return h.writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}
	defer resp.Body.Close()

	copyResponseHeaders(c, resp.Header)
	h.applyPWAHeaders(c, req.URL.Path)
	c.Set("X-Edge-Strategy", strategyLabel(result))
	c.Set("X-Edge-Source", string(result.Source))
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Status(resp.StatusCode)
	if text := strategy.StatusText(resp); text != "" && text != http.StatusText(resp.StatusCode) {
		c.Response().Header.SetStatusMessage([]byte(text))
	}

	if c.Method() == http.MethodHead {
		h.logResult(c, result, requestID, resp.StatusCode, started, nil)
		return nil
	}

	_, err = io.Copy(c.Response().BodyWriter(), resp.Body)
	h.logResult(c, result, requestID, resp.StatusCode, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("proxy stream failed: %v", err))
	}
	return nil
}

// buildRequest 以源站为基准重建绝对 URL，缓存键与预缓存时使用同一套地址。
func (h *Handler) buildRequest(ctx context.Context, c fiber.Ctx) (*http.Request, error) {
	target := *h.origin
	target.Path = string(c.Request().URI().Path())
	target.RawPath = ""
	target.RawQuery = string(c.Request().URI().QueryString())
	target.Fragment = ""

	var body io.Reader = http.NoBody
	if raw := c.Body(); len(raw) > 0 {
		body = bytes.NewReader(append([]byte(nil), raw...))
	}

	req, err := http.NewRequestWithContext(ctx, c.Method(), target.String(), body)
	if err != nil {
		return nil, err
	}

	server.CopyHeaders(req.Header, fiberHeadersAsHTTP(c))
	req.Header.Del("Host")
	req.Header.Set("X-Forwarded-Host", c.Hostname())
	if ip := c.IP(); ip != "" {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			req.Header.Set("X-Forwarded-For", prior+", "+ip)
		} else {
			req.Header.Set("X-Forwarded-For", ip)
		}
	}
	req.Header.Set("X-Forwarded-Proto", c.Scheme())
	req.Header.Set("X-Forwarded-Port", fmt.Sprintf("%d", h.listenPort))
	return req, nil
}

// applyPWAHeaders 让 service worker 脚本覆盖整站作用域，并禁止浏览器 HTTP 缓存脚本与 manifest。
func (h *Handler) applyPWAHeaders(c fiber.Ctx, path string) {
	switch {
	case h.scriptPath != "" && path == h.scriptPath:
		c.Set("Service-Worker-Allowed", "/")
		c.Set(fiber.HeaderCacheControl, "no-cache")
	case h.manifestPath != "" && path == h.manifestPath:
		c.Set(fiber.HeaderCacheControl, "no-cache")
	}
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(
	c fiber.Ctx,
	result strategy.Result,
	requestID string,
	status int,
	started time.Time,
	err error,
) {
	fields := logging.RequestFields(
		c.Method(),
		string(c.Request().URI().Path()),
		strategyLabel(result),
		string(result.Source),
		result.CacheName,
		result.Source == strategy.SourceCache,
	)
	fields["action"] = "proxy"
	fields["upstream_status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("proxy_failed")
		return
	}
	h.logger.WithFields(fields).Info("proxy_complete")
}

func strategyLabel(result strategy.Result) string {
	if result.Kind == "" {
		return "none"
	}
	return string(result.Kind)
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if server.IsHopByHopHeader(key) || key == fiber.HeaderContentLength {
			continue
		}
		for i, value := range values {
			if i == 0 {
				c.Set(key, value)
				continue
			}
			c.Response().Header.Add(key, value)
		}
	}
}
