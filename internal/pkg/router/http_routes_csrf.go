package router

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/habitflow/habitflow/app/controllers"
	"github.com/habitflow/habitflow/internal/pkg/env"
	"github.com/habitflow/habitflow/internal/pkg/middleware"
)

func (h HttpRouter) registerCSRFProtectedRoutes(app *fiber.App) {
	csrfConf := csrf.Config{
		KeyLookup:      "form:_csrf",
		ContextKey:     "csrf",
		CookieName:     "csrf_",
		CookieSameSite: "Lax",
		Expiration:     1 * time.Hour,
		CookieSecure:   !env.IsDev(),
		Next: func(c *fiber.Ctx) bool {
			// Webhooks authenticate via HMAC signature, the API via session.
			return strings.HasPrefix(c.Path(), "/api/") || strings.HasPrefix(c.Path(), "/webhooks/")
		},
	}

	group := app.Group("", cors.New(), csrf.New(csrfConf))
	group.Get("/", loggedInMiddleware, controllers.HandleStart)
	group.Get("/login", loggedInMiddleware, controllers.HandleAuthLogin)
	group.Post("/login", loggedInMiddleware, controllers.HandleAuthLogin)
	group.Get("/register", loggedInMiddleware, controllers.HandleAuthRegister)
	group.Post("/register", loggedInMiddleware, controllers.HandleAuthRegister)

	// Habits
	group.Get("/dashboard", middleware.RequireAuth, controllers.HandleDashboard)
	group.Get("/stats", middleware.RequireAuth, controllers.HandleStats)
	group.Get("/stats/chart-data", middleware.RequireAuth, controllers.HandleStatsChartData)
	group.Post("/habits", middleware.RequireAuth, controllers.HandleHabitCreate)
	group.Post("/habits/:id/update", middleware.RequireAuth, controllers.HandleHabitUpdate)
	group.Post("/habits/:id/complete", middleware.RequireAuth, controllers.HandleHabitComplete)
	group.Post("/habits/:id/archive", middleware.RequireAuth, controllers.HandleHabitArchive)
	group.Post("/habits/:id/unarchive", middleware.RequireAuth, controllers.HandleHabitUnarchive)
	group.Post("/habits/:id/delete", middleware.RequireAuth, controllers.HandleHabitDelete)

	// Subscription
	group.Post("/subscription/checkout", middleware.RequireAuth, controllers.HandleCheckout)
	group.Get("/subscription/success", middleware.RequireAuth, controllers.HandleCheckoutSuccess)
	group.Get("/subscription/manage", middleware.RequireAuth, controllers.HandleSubscriptionManage)
	group.Get("/subscription/history", middleware.RequireAuth, controllers.HandleBillingHistory)
	group.Post("/subscription/cancel", middleware.RequireAuth, controllers.HandleSubscriptionCancel)
}
