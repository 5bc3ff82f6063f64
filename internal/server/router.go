package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ProxyHandler answers every non-diagnostics request, from the versioned cache
// or from the origin.
type ProxyHandler interface {
	Handle(fiber.Ctx) error
}

// ProxyHandlerFunc adapts a function to the ProxyHandler interface.
type ProxyHandlerFunc func(fiber.Ctx) error

// Handle makes ProxyHandlerFunc satisfy ProxyHandler.
func (f ProxyHandlerFunc) Handle(c fiber.Ctx) error {
	return f(c)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger     *logrus.Logger
	Proxy      ProxyHandler
	ListenPort int
}

const (
	contextKeyRequestID = "_edge_request_id"
	headerRequestID     = "X-Request-ID"

	// DiagnosticsPrefix 下的路径由本进程处理，从不转发到源站。
	DiagnosticsPrefix = "/-/"
)

// NewApp builds a Fiber application with panic recovery, request ids, a JSON
// error handler and a catch-all proxy route. Diagnostics routes are registered
// by the caller after NewApp returns.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Proxy == nil {
		return nil, errors.New("proxy handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		ErrorHandler:  jsonErrorHandler(opts.Logger),
	})

	app.Use(requestContextMiddleware())
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			opts.Logger.WithFields(logrus.Fields{
				"action":     "panic",
				"path":       string(c.Request().URI().Path()),
				"request_id": RequestID(c),
			}).Errorf("recovered panic: %v", e)
		},
	}))

	app.All("/*", func(c fiber.Ctx) error {
		if isDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		return opts.Proxy.Handle(c)
	})

	return app, nil
}

// requestContextMiddleware 沿用上游传入的合法 UUID 请求 ID，否则生成新的，并写入响应头。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := c.Get(headerRequestID)
		if _, err := uuid.Parse(reqID); err != nil {
			reqID = uuid.NewString()
		}
		c.Locals(contextKeyRequestID, reqID)
		c.Set(headerRequestID, reqID)
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if reqID, ok := c.Locals(contextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

func jsonErrorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}
		entry := logger.WithFields(logrus.Fields{
			"action":     "http_error",
			"method":     c.Method(),
			"path":       string(c.Request().URI().Path()),
			"status":     status,
			"request_id": RequestID(c),
		}).WithError(err)
		if status >= fiber.StatusInternalServerError {
			entry.Error("request_failed")
		} else {
			entry.Debug("request_rejected")
		}
		return c.Status(status).JSON(fiber.Map{"error": errorCode(status)})
	}
}

func errorCode(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusBadGateway:
		return "upstream_failed"
	}
	if status >= http.StatusInternalServerError {
		return "internal_error"
	}
	return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, DiagnosticsPrefix)
}
