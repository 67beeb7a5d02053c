package models

import "time"

// Payment provider constants used across billing-related models.
const (
	ProviderStripe   = "stripe"
	ProviderPaypal   = "paypal"
	ProviderCoinbase = "coinbase"
)

// Subscription lifecycle states. Rows are appended, never deleted; a new
// purchase supersedes the old row by inserting a fresh one. The "current"
// subscription for a user is derived from the history (see
// billing.Repository.CurrentSubscription), not stored as a pointer.
const (
	SubscriptionStatusActive                 = "active"
	SubscriptionStatusSuspended              = "suspended"
	SubscriptionStatusCancelledPendingExpiry = "cancelled_pending_expiry"
	SubscriptionStatusExpired                = "expired"
)

type Subscription struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	UserID                 uint       `gorm:"not null;index" json:"user_id"`
	Tier                   string     `gorm:"type:varchar(20);not null" json:"tier"`
	Status                 string     `gorm:"type:varchar(32);not null;default:'active';index" json:"status"`
	Provider               string     `gorm:"type:varchar(20);not null;index:ux_subscriptions_provider_subid,unique,priority:1" json:"provider"`
	ProviderSubscriptionID string     `gorm:"type:varchar(191);not null;index:ux_subscriptions_provider_subid,unique,priority:2" json:"provider_subscription_id"`
	StartDate              time.Time  `gorm:"type:timestamp;not null;index" json:"start_date"`
	EndDate                *time.Time `gorm:"type:timestamp;default:null" json:"end_date,omitempty"`
	NextBillingDate        *time.Time `gorm:"type:timestamp;default:null;index" json:"next_billing_date,omitempty"`
	Amount                 float64    `gorm:"type:decimal(10,2);not null;default:0" json:"amount"`
	Currency               string     `gorm:"type:varchar(8);not null;default:'USD'" json:"currency"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsLifetime reports whether this subscription never expires on its own.
func (s *Subscription) IsLifetime() bool {
	return s.Tier == TierLifetime && s.EndDate == nil
}
