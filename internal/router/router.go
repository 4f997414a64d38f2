package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/studielog/logbook-api/internal/config"
	"github.com/studielog/logbook-api/internal/handler"
	"github.com/studielog/logbook-api/internal/middleware"
	"github.com/studielog/logbook-api/internal/observability"
)

// Dependencies bundles the handlers and middleware wired into the router.
type Dependencies struct {
	Config              config.Config
	EntryHandler        *handler.EntryHandler
	GradingHandler      *handler.GradingHandler
	SyncHandler         *handler.SyncHandler
	NotificationHandler *handler.NotificationHandler
	JWTMiddleware       fiber.Handler
}

// Register mounts all API routes on the fiber application.
func Register(app *fiber.App, deps Dependencies) {
	jwtProtected := deps.JWTMiddleware
	if jwtProtected == nil {
		jwtProtected = func(c *fiber.Ctx) error { return c.Next() }
	}

	app.Get("/health", handler.HealthCheck(deps.Config))
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", deps.Config.AppName)
		return c.Next()
	})

	entries := api.Group("/entries", jwtProtected)
	deps.EntryHandler.Register(entries)
	deps.GradingHandler.Register(entries, middleware.RequireRole("teacher", "admin"))

	sync := api.Group("/sync", jwtProtected, middleware.RequireRole("teacher", "admin"))
	deps.SyncHandler.Register(sync)

	notifications := api.Group("/notifications", jwtProtected)
	deps.NotificationHandler.Register(notifications)
}
