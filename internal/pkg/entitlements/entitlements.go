package entitlements

import (
	"strings"

	"github.com/habitflow/habitflow/app/models"
)

type Tier string

const (
	TierFree     Tier = "free"
	TierMonthly  Tier = "monthly"
	TierAnnual   Tier = "annual"
	TierLifetime Tier = "lifetime"
)

// NormalizeTier maps arbitrary input to a known tier, defaulting to free.
func NormalizeTier(tier string) Tier {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case string(TierMonthly):
		return TierMonthly
	case string(TierAnnual):
		return TierAnnual
	case string(TierLifetime):
		return TierLifetime
	default:
		return TierFree
	}
}

// IsPaid reports whether the tier removes the free habit cap.
func IsPaid(tier Tier) bool {
	return tier != TierFree
}

// HabitLimit returns the maximum number of active habits for a tier.
// Paid tiers are effectively unbounded.
func HabitLimit(tier Tier) int {
	if IsPaid(tier) {
		return models.UnlimitedHabitLimit
	}
	return models.FreeHabitLimit
}

// CanCreateHabit reports whether a user with the given active habit count
// may create another habit. Pure function of tier and count.
func CanCreateHabit(user *models.User, activeHabits int) bool {
	return activeHabits < HabitLimit(NormalizeTier(user.Tier))
}

// GetHabitLimit returns the habit cap for the user's current tier.
func GetHabitLimit(user *models.User) int {
	return HabitLimit(NormalizeTier(user.Tier))
}
