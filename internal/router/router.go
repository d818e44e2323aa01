package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/hirecraft/assess-go/internal/config"
	"github.com/hirecraft/assess-go/internal/handler"
	"github.com/hirecraft/assess-go/internal/middleware"
	"github.com/hirecraft/assess-go/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	QuestionHandler *handler.QuestionHandler
	SessionHandler  *handler.SessionHandler
	ProctorHandler  *handler.ProctorHandler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	questions := api.Group("/questions")
	if deps.QuestionHandler != nil {
		deps.QuestionHandler.Register(questions)
	}
	if deps.SessionHandler != nil {
		// Sandbox capacity is finite; cap how fast one candidate can run code.
		questions.Use("/:id/execute", middleware.RateLimit("execute", 6, time.Minute))
		deps.SessionHandler.Register(questions)
	}
	if deps.ProctorHandler != nil {
		deps.ProctorHandler.Register(questions)
	}
}
