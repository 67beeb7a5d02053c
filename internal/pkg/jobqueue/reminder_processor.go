package jobqueue

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/habitflow/habitflow/app/models"
	"github.com/habitflow/habitflow/internal/pkg/database"
)

// processDailyReminderJob emails one user a nudge listing the active
// habits they have not completed on the payload's day. Stale jobs from a
// previous day are dropped, not delivered late.
func (q *Queue) processDailyReminderJob(job *Job) error {
	payload, err := DailyReminderJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid reminder payload: %w", err)
	}

	day, err := time.Parse("2006-01-02", payload.Day)
	if err != nil {
		return fmt.Errorf("invalid reminder day %q: %w", payload.Day, err)
	}
	today := time.Now()
	if day.Year() != today.Year() || day.YearDay() != today.YearDay() {
		log.Warnf("[JobQueue] Dropping reminder job %s for past day %s", job.ID, payload.Day)
		return nil
	}

	db := database.GetDB()

	var user models.User
	if err := db.First(&user, payload.UserID).Error; err != nil {
		return fmt.Errorf("reminder user %d: %w", payload.UserID, err)
	}

	var habits []models.Habit
	err = db.Where("user_id = ? AND archived = ?", user.ID, false).
		Where("last_completed IS NULL OR last_completed < ?", day.Format("2006-01-02")).
		Order("name asc").
		Find(&habits).Error
	if err != nil {
		return fmt.Errorf("loading open habits for user %d: %w", user.ID, err)
	}
	if len(habits) == 0 {
		return nil
	}

	body := fmt.Sprintf("Hi %s,<br><br>You still have %d habit(s) open today:<br><ul>", user.Name, len(habits))
	for _, h := range habits {
		body += "<li>" + h.Name + "</li>"
	}
	body += "</ul>Keep your streaks alive!"

	return q.EnqueueEmail(user.Email, "Daily Reminder - HabitFlow", body)
}
