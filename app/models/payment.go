package models

import "time"

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

// Payment records a single provider charge attempt. The transaction ID is
// unique within its provider, which makes recording a payment naturally
// idempotent under webhook redelivery.
type Payment struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	UserID                uint      `gorm:"not null;index" json:"user_id"`
	SubscriptionID        *uint     `gorm:"default:null;index" json:"subscription_id,omitempty"`
	Provider              string    `gorm:"type:varchar(20);not null;index:ux_payments_provider_txn,unique,priority:1" json:"provider"`
	ProviderTransactionID string    `gorm:"type:varchar(191);not null;index:ux_payments_provider_txn,unique,priority:2" json:"provider_transaction_id"`
	Amount                float64   `gorm:"type:decimal(10,2);not null;default:0" json:"amount"`
	Currency              string    `gorm:"type:varchar(8);not null;default:'USD'" json:"currency"`
	Status                string    `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	ReceivedAt            time.Time `gorm:"type:timestamp;not null" json:"received_at"`
	CreatedAt             time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
