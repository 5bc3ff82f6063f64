package routes

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vesiron/library-edge/internal/lifecycle"
	"github.com/vesiron/library-edge/internal/version"
)

// StatusProvider 提供注册状态快照，通常是 *lifecycle.Controller。
type StatusProvider interface {
	Snapshot(ctx context.Context) (lifecycle.Snapshot, error)
}

// DiagnosticsOptions 描述诊断接口依赖。Metrics 为空时使用默认 Registry 的 promhttp.Handler。
type DiagnosticsOptions struct {
	Status  StatusProvider
	Backend string
	Metrics http.Handler
}

// RegisterDiagnostics 暴露 /-/status、/-/healthz 与 /-/metrics。
func RegisterDiagnostics(app *fiber.App, opts DiagnosticsOptions) {
	if app == nil || opts.Status == nil {
		return
	}
	metricsHandler := opts.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		snap, err := opts.Status.Snapshot(c.Context())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "status_unavailable"})
		}
		return c.JSON(statusPayload{
			Build:        version.Full(),
			Backend:      opts.Backend,
			Registration: snap,
		})
	})

	app.Get("/-/healthz", func(c fiber.Ctx) error {
		snap, err := opts.Status.Snapshot(c.Context())
		if err != nil || snap.Active == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "starting"})
		}
		return c.JSON(fiber.Map{
			"status":  "ok",
			"version": snap.Active.Version,
		})
	})

	app.Get("/-/metrics", adaptor.HTTPHandler(metricsHandler))
}

type statusPayload struct {
	Build        string             `json:"build"`
	Backend      string             `json:"backend"`
	Registration lifecycle.Snapshot `json:"registration"`
}
