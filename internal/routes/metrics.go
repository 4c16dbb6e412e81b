package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/embedgate/embedgate/internal/metrics"
)

// RegisterMetricsRoute exposes the Prometheus registry at /metrics.
func RegisterMetricsRoute(app *fiber.App, m *metrics.Metrics) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
}
