package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/habitflow/habitflow/app/models"
	"github.com/habitflow/habitflow/internal/pkg/database"
	"github.com/habitflow/habitflow/internal/pkg/usercontext"
)

// HandleStats renders the progress page: overview numbers plus charts
// fed by HandleStatsChartData.
func HandleStats(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	db := database.GetDB()

	var habits []*models.Habit
	if err := db.Where("user_id = ? AND archived = ?", userCtx.UserID, false).
		Order("created_at asc").
		Find(&habits).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "could not load habits")
	}

	activeStreaks := 0
	longestStreak := 0
	for _, h := range habits {
		if h.StreakCount > 0 {
			activeStreaks++
		}
		if h.LongestStreak > longestStreak {
			longestStreak = h.LongestStreak
		}
	}

	return render(c, "stats", fiber.Map{
		"Title":         "Your Progress",
		"Habits":        habits,
		"TotalHabits":   len(habits),
		"ActiveStreaks": activeStreaks,
		"LongestStreak": longestStreak,
	})
}

// HandleStatsChartData returns the chart series as JSON: current streak
// per habit, completions by weekday, and a 14-day completion trend.
func HandleStatsChartData(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	db := database.GetDB()

	var habits []models.Habit
	if err := db.Where("user_id = ? AND archived = ?", userCtx.UserID, false).
		Order("created_at asc").
		Find(&habits).Error; err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "could not load habits")
	}

	habitNames := make([]string, 0, len(habits))
	streakCounts := make([]int, 0, len(habits))
	habitIDs := make([]uint, 0, len(habits))
	for _, h := range habits {
		habitNames = append(habitNames, h.Name)
		streakCounts = append(streakCounts, h.StreakCount)
		habitIDs = append(habitIDs, h.ID)
	}

	completionsByDay := make([]int, 7) // Monday first
	today := time.Now()
	trendStart := today.AddDate(0, 0, -13)
	trendLabels := make([]string, 0, 14)
	trendData := make([]int, 14)
	for i := 0; i < 14; i++ {
		trendLabels = append(trendLabels, trendStart.AddDate(0, 0, i).Format("Jan 02"))
	}

	if len(habitIDs) > 0 {
		var logs []models.CompletionLog
		if err := db.Where("habit_id IN ?", habitIDs).Find(&logs).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not load completions")
		}
		for _, l := range logs {
			// time.Weekday starts on Sunday; the chart starts on Monday.
			completionsByDay[(int(l.CompletedAt.Weekday())+6)%7]++
			if d := daysBetween(trendStart, l.CompletedAt); d >= 0 && d < 14 {
				trendData[d]++
			}
		}
	}

	return c.JSON(fiber.Map{
		"habitNames":       habitNames,
		"streakCounts":     streakCounts,
		"dayLabels":        []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"},
		"completionsByDay": completionsByDay,
		"trendLabels":      trendLabels,
		"trendData":        trendData,
		"totalHabits":      len(habits),
	})
}

func daysBetween(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}
