package models

import "time"

// DeadLetterEvent stores webhook events whose user_ref could not be
// resolved to a known user. They are kept for manual review and are never
// silently discarded.
type DeadLetterEvent struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Provider        string    `gorm:"type:varchar(20);not null;index" json:"provider"`
	ProviderEventID string    `gorm:"type:varchar(191);not null;index" json:"provider_event_id"`
	EventType       string    `gorm:"type:varchar(64);not null" json:"event_type"`
	UserRef         string    `gorm:"type:varchar(191);not null" json:"user_ref"`
	PayloadJSON     string    `gorm:"type:longtext;not null" json:"payload_json"`
	Reason          string    `gorm:"type:varchar(255);not null" json:"reason"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
