package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/habitflow/habitflow/app/controllers"
	"github.com/habitflow/habitflow/internal/pkg/middleware"
)

// Pong is the ping response body.
type Pong struct {
	Ping string `json:"ping"`
}

// APIServer implements the v1 JSON API
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// RegisterHandlers attaches the v1 routes to the given router group.
// Session auth is enforced per-route; /ping stays public for health checks.
func RegisterHandlers(r fiber.Router, s *APIServer) {
	r.Get("/ping", s.GetPing)

	r.Get("/me", middleware.RequireAPISessionAuth, controllers.HandleAPIMe)
	r.Get("/habits", middleware.RequireAPISessionAuth, controllers.HandleAPIHabitList)
	r.Post("/habits", middleware.RequireAPISessionAuth, controllers.HandleAPIHabitCreate)
	r.Post("/habits/:id/complete", middleware.RequireAPISessionAuth, controllers.HandleAPIHabitComplete)
}
