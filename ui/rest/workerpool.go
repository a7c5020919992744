package rest

import (
	"github.com/gofiber/fiber/v2"

	"github.com/AzielCF/az-wacrm/pkg/msgworker"
)

// InitRestWorkerPool exposes the webhook dispatch pool counters. pool may be
// nil when webhooks are processed inline.
func InitRestWorkerPool(app fiber.Router, pool *msgworker.WorkerPool) {
	app.Get("/webhooks/pool/stats", func(c *fiber.Ctx) error {
		return GetWorkerPoolStats(c, pool)
	})
}

// GetWorkerPoolStats returns real-time worker pool statistics
func GetWorkerPoolStats(c *fiber.Ctx, pool *msgworker.WorkerPool) error {
	if pool == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Webhook worker pool not enabled",
		})
	}
	return c.JSON(pool.GetStats())
}
