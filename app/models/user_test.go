package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUserDefaults(t *testing.T) {
	u, err := CreateUser("tester", "tester@example.com", "secret123")
	require.NoError(t, err)

	assert.Equal(t, TierFree, u.Tier)
	assert.Equal(t, SubStatusActive, u.SubscriptionStatus)
	assert.Equal(t, FreeHabitLimit, u.HabitLimit)
	assert.Equal(t, ROLE_USER, u.Role)
	assert.False(t, u.IsPaid())
	assert.NotEqual(t, "secret123", u.Password)
	assert.True(t, CheckPasswordHash("secret123", u.Password))
	assert.False(t, CheckPasswordHash("wrong", u.Password))
}

func TestCreateUserValidation(t *testing.T) {
	_, err := CreateUser("ab", "not-an-email", "secret123")
	assert.Error(t, err)
}

func TestUserIsPaid(t *testing.T) {
	for _, tier := range []string{TierMonthly, TierAnnual, TierLifetime} {
		assert.True(t, (&User{Tier: tier}).IsPaid(), tier)
	}
	assert.False(t, (&User{Tier: TierFree}).IsPaid())
}

func TestSubscriptionIsLifetime(t *testing.T) {
	assert.True(t, (&Subscription{Tier: TierLifetime}).IsLifetime())
	assert.False(t, (&Subscription{Tier: TierMonthly}).IsLifetime())
}
