package entitlements

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/habitflow/habitflow/app/models"
)

func TestNormalizeTier(t *testing.T) {
	tests := []struct {
		in   string
		want Tier
	}{
		{in: "monthly", want: TierMonthly},
		{in: " Annual ", want: TierAnnual},
		{in: "LIFETIME", want: TierLifetime},
		{in: "free", want: TierFree},
		{in: "", want: TierFree},
		{in: "platinum", want: TierFree},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTier(tt.in), "NormalizeTier(%q)", tt.in)
	}
}

func TestHabitLimit(t *testing.T) {
	assert.Equal(t, models.FreeHabitLimit, HabitLimit(TierFree))
	assert.Equal(t, models.UnlimitedHabitLimit, HabitLimit(TierMonthly))
	assert.Equal(t, models.UnlimitedHabitLimit, HabitLimit(TierAnnual))
	assert.Equal(t, models.UnlimitedHabitLimit, HabitLimit(TierLifetime))
}

func TestCanCreateHabit(t *testing.T) {
	free := &models.User{Tier: models.TierFree}
	assert.True(t, CanCreateHabit(free, 0))
	assert.True(t, CanCreateHabit(free, models.FreeHabitLimit-1))
	assert.False(t, CanCreateHabit(free, models.FreeHabitLimit))
	assert.False(t, CanCreateHabit(free, models.FreeHabitLimit+5))

	paid := &models.User{Tier: models.TierLifetime}
	assert.True(t, CanCreateHabit(paid, models.FreeHabitLimit))
	assert.True(t, CanCreateHabit(paid, 5000))
}
