package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/habitflow/habitflow/internal/pkg/billing"
	"github.com/habitflow/habitflow/internal/pkg/database"
	"github.com/habitflow/habitflow/internal/pkg/jobqueue"
	"github.com/habitflow/habitflow/internal/pkg/notifier"
	"github.com/habitflow/habitflow/internal/pkg/usercontext"
)

const (
	AUTH_KEY       string = "authenticated"
	USER_ID        string = "user_id"
	USER_NAME      string = "username"
	USER_IS_ADMIN  string = "isAdmin"
	FROM_PROTECTED string = "from_protected"
)

func isLoggedIn(c *fiber.Ctx) bool {
	var fromProtected bool
	if protectedValue := c.Locals(FROM_PROTECTED); protectedValue != nil {
		fromProtected = protectedValue.(bool)
	}

	return fromProtected
}

// billingService wires the billing engine against the shared database and
// the email job queue.
func billingService() *billing.Service {
	db := database.GetDB()
	return billing.NewService(
		billing.NewRepository(db),
		notifier.NewEmailNotifier(db, jobqueue.GetManager().GetQueue()),
	)
}

// render wraps c.Render with the bindings every page expects.
func render(c *fiber.Ctx, name string, bind fiber.Map) error {
	if bind == nil {
		bind = fiber.Map{}
	}
	userCtx := usercontext.GetUserContext(c)
	bind["IsLoggedIn"] = userCtx.IsLoggedIn
	bind["Username"] = userCtx.Username
	bind["Plan"] = userCtx.Plan
	bind["Flash"] = flash.Get(c)
	if token, ok := c.Locals("csrf").(string); ok {
		bind["CSRFToken"] = token
	}
	return c.Render(name, bind, "layouts/main")
}
