package middleware

import (
	"time"

	"greencoin-backend/internal/infrastructure/metrics"

	"github.com/gofiber/fiber/v2"
)

// Metrics records request count and latency by method, route pattern and status.
func Metrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		route := c.Route().Path
		if route == "" || route == "/" {
			route = c.Path()
		}
		metrics.RecordHTTP(c.Method(), route, status, time.Since(start))
		return err
	}
}
