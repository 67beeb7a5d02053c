package controllers

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/habitflow/habitflow/app/models"
	"github.com/habitflow/habitflow/internal/pkg/database"
	"github.com/habitflow/habitflow/internal/pkg/entitlements"
	"github.com/habitflow/habitflow/internal/pkg/usercontext"
)

// ownedHabit loads the habit from the :id param and verifies it belongs
// to the logged-in user.
func ownedHabit(c *fiber.Ctx) (*models.Habit, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid habit id")
	}

	var habit models.Habit
	if err := database.GetDB().First(&habit, id).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "habit not found")
	}
	if habit.UserID != usercontext.GetUserID(c) {
		return nil, fiber.NewError(fiber.StatusNotFound, "habit not found")
	}
	return &habit, nil
}

func HandleHabitCreate(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	db := database.GetDB()

	var user models.User
	if err := db.First(&user, userCtx.UserID).Error; err != nil {
		return c.Redirect("/login", fiber.StatusSeeOther)
	}

	var activeCount int64
	if err := db.Model(&models.Habit{}).
		Where("user_id = ? AND archived = ?", user.ID, false).
		Count(&activeCount).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "could not count habits")
	}

	if !entitlements.CanCreateHabit(&user, int(activeCount)) {
		fm := fiber.Map{
			"type": "error",
			"message": fmt.Sprintf("Free accounts are limited to %d habits. Upgrade for unlimited habits!",
				models.FreeHabitLimit),
		}
		return flash.WithError(c, fm).Redirect("/pricing")
	}

	habit := models.Habit{
		UserID:      user.ID,
		Name:        strings.TrimSpace(c.FormValue("name")),
		Description: strings.TrimSpace(c.FormValue("description")),
	}
	if err := habit.Validate(); err != nil {
		fm := fiber.Map{
			"type":    "error",
			"message": "Please give your habit a name (up to 100 characters).",
		}
		return flash.WithError(c, fm).Redirect("/dashboard")
	}

	if err := db.Create(&habit).Error; err != nil {
		fm := fiber.Map{
			"type":    "error",
			"message": fmt.Sprintf("something went wrong: %s", err),
		}
		return flash.WithError(c, fm).Redirect("/dashboard")
	}

	fm := fiber.Map{
		"type":    "success",
		"message": fmt.Sprintf("Habit %q created. Day one starts now!", habit.Name),
	}
	return flash.WithSuccess(c, fm).Redirect("/dashboard")
}

func HandleHabitUpdate(c *fiber.Ctx) error {
	habit, err := ownedHabit(c)
	if err != nil {
		return err
	}

	habit.Name = strings.TrimSpace(c.FormValue("name", habit.Name))
	habit.Description = strings.TrimSpace(c.FormValue("description", habit.Description))
	if err := habit.Validate(); err != nil {
		fm := fiber.Map{
			"type":    "error",
			"message": "Please give your habit a name (up to 100 characters).",
		}
		return flash.WithError(c, fm).Redirect("/dashboard")
	}

	if err := database.GetDB().Save(habit).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "could not update habit")
	}

	return flash.WithSuccess(c, fiber.Map{
		"type":    "success",
		"message": "Habit updated.",
	}).Redirect("/dashboard")
}

func HandleHabitComplete(c *fiber.Ctx) error {
	habit, err := ownedHabit(c)
	if err != nil {
		return err
	}

	now := time.Now()
	if !habit.Complete(now) {
		fm := fiber.Map{
			"type":    "success",
			"message": "Already done today. See you tomorrow!",
		}
		return flash.WithSuccess(c, fm).Redirect("/dashboard")
	}

	db := database.GetDB()
	if err := db.Save(habit).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "could not save completion")
	}
	// Unique (habit, day) index makes a racing double-submit harmless.
	db.Create(&models.CompletionLog{
		HabitID:     habit.ID,
		CompletedAt: now,
	})

	fm := fiber.Map{
		"type":    "success",
		"message": fmt.Sprintf("%q completed. Streak: %d!", habit.Name, habit.StreakCount),
	}
	return flash.WithSuccess(c, fm).Redirect("/dashboard")
}

func HandleHabitArchive(c *fiber.Ctx) error {
	habit, err := ownedHabit(c)
	if err != nil {
		return err
	}

	habit.Archived = true
	if err := database.GetDB().Save(habit).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "could not archive habit")
	}

	return flash.WithSuccess(c, fiber.Map{
		"type":    "success",
		"message": fmt.Sprintf("Habit %q archived.", habit.Name),
	}).Redirect("/dashboard")
}

func HandleHabitUnarchive(c *fiber.Ctx) error {
	habit, err := ownedHabit(c)
	if err != nil {
		return err
	}

	db := database.GetDB()

	var user models.User
	if err := db.First(&user, habit.UserID).Error; err != nil {
		return c.Redirect("/login", fiber.StatusSeeOther)
	}
	var activeCount int64
	if err := db.Model(&models.Habit{}).
		Where("user_id = ? AND archived = ?", user.ID, false).
		Count(&activeCount).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "could not count habits")
	}
	// Restoring counts against the same limit as creating.
	if !entitlements.CanCreateHabit(&user, int(activeCount)) {
		fm := fiber.Map{
			"type":    "error",
			"message": "Restoring this habit would exceed your plan's limit.",
		}
		return flash.WithError(c, fm).Redirect("/pricing")
	}

	habit.Archived = false
	if err := db.Save(habit).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "could not restore habit")
	}

	return flash.WithSuccess(c, fiber.Map{
		"type":    "success",
		"message": fmt.Sprintf("Habit %q restored.", habit.Name),
	}).Redirect("/dashboard")
}

func HandleHabitDelete(c *fiber.Ctx) error {
	habit, err := ownedHabit(c)
	if err != nil {
		return err
	}

	db := database.GetDB()
	db.Where("habit_id = ?", habit.ID).Delete(&models.CompletionLog{})
	if err := db.Delete(habit).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "could not delete habit")
	}

	return flash.WithSuccess(c, fiber.Map{
		"type":    "success",
		"message": fmt.Sprintf("Habit %q deleted.", habit.Name),
	}).Redirect("/dashboard")
}
