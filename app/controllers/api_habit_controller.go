package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/habitflow/habitflow/app/models"
	"github.com/habitflow/habitflow/internal/pkg/database"
	"github.com/habitflow/habitflow/internal/pkg/entitlements"
	"github.com/habitflow/habitflow/internal/pkg/usercontext"
)

// HandleAPIHabitList returns the user's habits as JSON.
func HandleAPIHabitList(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	includeArchived := c.QueryBool("archived", false)
	q := database.GetDB().Where("user_id = ?", userID)
	if !includeArchived {
		q = q.Where("archived = ?", false)
	}

	var habits []models.Habit
	if err := q.Order("created_at asc").Find(&habits).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "habit_list_failed"})
	}

	return c.JSON(fiber.Map{"habits": habits})
}

// HandleAPIHabitCreate creates a habit, enforcing the tier's limit.
func HandleAPIHabitCreate(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	db := database.GetDB()

	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
	}

	var activeCount int64
	if err := db.Model(&models.Habit{}).
		Where("user_id = ? AND archived = ?", userID, false).
		Count(&activeCount).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "habit_count_failed"})
	}
	if !entitlements.CanCreateHabit(&user, int(activeCount)) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":       "habit_limit_reached",
			"habit_limit": entitlements.GetHabitLimit(&user),
		})
	}

	habit := models.Habit{
		UserID:      userID,
		Name:        strings.TrimSpace(body.Name),
		Description: strings.TrimSpace(body.Description),
	}
	if err := habit.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_habit"})
	}
	if err := db.Create(&habit).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "habit_create_failed"})
	}

	return c.Status(fiber.StatusCreated).JSON(habit)
}

// HandleAPIHabitComplete marks a habit done for today.
func HandleAPIHabitComplete(c *fiber.Ctx) error {
	habit, err := ownedHabit(c)
	if err != nil {
		var fe *fiber.Error
		code := fiber.StatusInternalServerError
		if errors.As(err, &fe) {
			code = fe.Code
		}
		return c.Status(code).JSON(fiber.Map{"error": "habit_not_found"})
	}

	now := time.Now()
	completed := habit.Complete(now)
	if completed {
		db := database.GetDB()
		if err := db.Save(habit).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "habit_save_failed"})
		}
		db.Create(&models.CompletionLog{HabitID: habit.ID, CompletedAt: now})
	}

	return c.JSON(fiber.Map{
		"habit":           habit,
		"newly_completed": completed,
	})
}

// HandleAPIMe returns the caller's account and entitlement state.
func HandleAPIMe(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	var user models.User
	if err := database.GetDB().First(&user, userID).Error; err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	return c.JSON(fiber.Map{
		"id":                  user.ID,
		"name":                user.Name,
		"email":               user.Email,
		"tier":                user.Tier,
		"subscription_status": user.SubscriptionStatus,
		"habit_limit":         entitlements.GetHabitLimit(&user),
	})
}
