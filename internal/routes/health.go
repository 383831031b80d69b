package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthCheck probes one backing store.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// RegisterHealthRoutes adds a readiness endpoint reporting every check.
func RegisterHealthRoutes(app *fiber.App, checks []HealthCheck) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := fiber.Map{}
		for _, check := range checks {
			results[check.Name] = "ok"
			if err := check.Ping(ctx); err != nil {
				results[check.Name] = err.Error()
				status = http.StatusServiceUnavailable
			}
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    results,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
