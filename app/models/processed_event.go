package models

import "time"

// ProcessedEvent is the idempotency ledger: one row per applied
// (provider, provider_event_id) pair. The unique index makes the insert
// the sole guard against double-application under at-least-once delivery.
// Rows older than the longest provider retry window are prunable.
type ProcessedEvent struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Provider        string    `gorm:"type:varchar(20);not null;index:ux_processed_events_provider_event,unique,priority:1" json:"provider"`
	ProviderEventID string    `gorm:"type:varchar(191);not null;index:ux_processed_events_provider_event,unique,priority:2" json:"provider_event_id"`
	ProcessedAt     time.Time `gorm:"autoCreateTime;index" json:"processed_at"`
}
