package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/habitflow/habitflow/app/models"
	"github.com/habitflow/habitflow/internal/pkg/database"
	"github.com/habitflow/habitflow/internal/pkg/entitlements"
	"github.com/habitflow/habitflow/internal/pkg/usercontext"
	"github.com/habitflow/habitflow/internal/pkg/utils"
)

func HandleStart(c *fiber.Ctx) error {
	if usercontext.IsLoggedIn(c) {
		return c.Redirect("/dashboard", fiber.StatusSeeOther)
	}

	return render(c, "index", fiber.Map{
		"Title": "Build habits that stick",
	})
}

func HandleDashboard(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	db := database.GetDB()

	var user models.User
	if err := db.First(&user, userCtx.UserID).Error; err != nil {
		return c.Redirect("/login", fiber.StatusSeeOther)
	}

	var habits []*models.Habit
	if err := db.Where("user_id = ? AND archived = ?", user.ID, false).
		Order("created_at asc").
		Find(&habits).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "could not load habits")
	}

	today := time.Now()
	completedToday := 0
	for _, h := range habits {
		if h.CompletedToday(today) {
			completedToday++
		}
	}

	limit := entitlements.GetHabitLimit(&user)
	overLimit := 0
	if len(habits) > limit {
		overLimit = len(habits) - limit
	}

	return render(c, "dashboard", fiber.Map{
		"Title":          "Dashboard",
		"User":           user,
		"Habits":         habits,
		"CompletedToday": completedToday,
		"HabitLimit":     limit,
		"OverLimit":      overLimit,
		"CanCreate":      entitlements.CanCreateHabit(&user, len(habits)),
		"IsPaid":         user.IsPaid(),
		"AvatarURL":      utils.GetGravatarURL(user.Email, 64),
		"Now":            today,
	})
}

func HandleAbout(c *fiber.Ctx) error {
	return render(c, "about", fiber.Map{
		"Title": "About",
	})
}
