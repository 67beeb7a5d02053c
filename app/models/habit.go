package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

type Habit struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	UserID        uint       `gorm:"not null;index" json:"user_id"`
	Name          string     `gorm:"type:varchar(100);not null" json:"name" validate:"required,min=1,max=100"`
	Description   string     `gorm:"type:varchar(500)" json:"description" validate:"max=500"`
	StreakCount   int        `gorm:"not null;default:0" json:"streak_count"`
	LongestStreak int        `gorm:"not null;default:0" json:"longest_streak"`
	LastCompleted *time.Time `gorm:"type:date;default:null" json:"last_completed,omitempty"`
	Archived      bool       `gorm:"not null;default:false;index" json:"archived"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// CompletionLog records every habit completion for historical stats.
type CompletionLog struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	HabitID     uint      `gorm:"not null;index:ux_completion_log_habit_day,unique,priority:1" json:"habit_id"`
	CompletedAt time.Time `gorm:"type:date;not null;index:ux_completion_log_habit_day,unique,priority:2" json:"completed_at"`
}

func (h *Habit) Validate() error {
	v := validator.New()

	return v.Struct(h)
}

// Complete marks the habit as done on the given day and updates the
// streak. Completing twice on one day is a no-op; a completion on the
// day after the last one extends the streak, any larger gap resets it.
// Returns false when the habit was already completed that day.
func (h *Habit) Complete(today time.Time) bool {
	day := truncateToDay(today)

	if h.LastCompleted != nil && sameDay(*h.LastCompleted, day) {
		return false
	}

	if h.LastCompleted != nil && sameDay(h.LastCompleted.AddDate(0, 0, 1), day) {
		h.StreakCount++
	} else {
		h.StreakCount = 1
	}
	if h.StreakCount > h.LongestStreak {
		h.LongestStreak = h.StreakCount
	}

	h.LastCompleted = &day
	return true
}

// CompletedToday reports whether the habit has been completed on the given day.
func (h *Habit) CompletedToday(today time.Time) bool {
	return h.LastCompleted != nil && sameDay(*h.LastCompleted, truncateToDay(today))
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
