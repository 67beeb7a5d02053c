package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/habitflow/habitflow/app/controllers"
	"github.com/habitflow/habitflow/internal/pkg/middleware"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	// Static pages
	app.Get("/about", loggedInMiddleware, controllers.HandleAbout)
	app.Get("/pricing", loggedInMiddleware, controllers.HandlePricing)

	// Auth
	app.Post("/logout", middleware.RequireAuth, controllers.HandleAuthLogout)

	// Billing provider webhooks (no CSRF, signature-verified in controller)
	app.Post("/webhooks/:provider", controllers.HandleProviderWebhook)
}
