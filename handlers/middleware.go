package handlers

import (
	"time"

	"veil/pkg/metrics"

	"github.com/gofiber/fiber/v2"
)

// RequestMetrics records per-request counters and latency. Labels stay
// bounded: route patterns, not raw paths, and status classes, not codes.
func RequestMetrics(m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		m.RequestsTotal.WithLabelValues(
			metrics.NormalizeMethod(c.Method()),
			metrics.StatusClass(c.Response().StatusCode()),
			route,
		).Inc()
		m.RequestDuration.Observe(time.Since(start).Seconds())

		return err
	}
}
