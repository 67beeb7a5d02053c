package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestHabitCompleteStartsStreak(t *testing.T) {
	h := &Habit{}

	ok := h.Complete(day(2026, 3, 1).Add(9 * time.Hour))
	require.True(t, ok)

	assert.Equal(t, 1, h.StreakCount)
	assert.Equal(t, 1, h.LongestStreak)
	require.NotNil(t, h.LastCompleted)
	assert.True(t, h.CompletedToday(day(2026, 3, 1).Add(23*time.Hour)))
}

func TestHabitCompleteSameDayIsNoOp(t *testing.T) {
	h := &Habit{}
	require.True(t, h.Complete(day(2026, 3, 1)))

	ok := h.Complete(day(2026, 3, 1).Add(18 * time.Hour))

	assert.False(t, ok)
	assert.Equal(t, 1, h.StreakCount)
}

func TestHabitCompleteConsecutiveDaysExtendStreak(t *testing.T) {
	h := &Habit{}
	for d := 1; d <= 5; d++ {
		require.True(t, h.Complete(day(2026, 3, d)))
	}

	assert.Equal(t, 5, h.StreakCount)
	assert.Equal(t, 5, h.LongestStreak)
}

func TestHabitCompleteGapResetsStreak(t *testing.T) {
	h := &Habit{}
	require.True(t, h.Complete(day(2026, 3, 1)))
	require.True(t, h.Complete(day(2026, 3, 2)))
	require.True(t, h.Complete(day(2026, 3, 3)))

	// Two days missed, the streak restarts at 1 but the record stays.
	require.True(t, h.Complete(day(2026, 3, 6)))

	assert.Equal(t, 1, h.StreakCount)
	assert.Equal(t, 3, h.LongestStreak)
}

func TestHabitCompletedTodayFalseForOtherDay(t *testing.T) {
	h := &Habit{}
	require.True(t, h.Complete(day(2026, 3, 1)))

	assert.False(t, h.CompletedToday(day(2026, 3, 2)))
}

func TestHabitValidate(t *testing.T) {
	assert.NoError(t, (&Habit{Name: "Read"}).Validate())
	assert.Error(t, (&Habit{}).Validate())
}
