package billing

import "time"

// EventType is the canonical, provider-agnostic webhook event type. The
// reconciliation engine only ever sees these; provider-native shapes stop
// at the ingress adapters.
type EventType string

const (
	EventCheckoutCompleted     EventType = "checkout_completed"
	EventSubscriptionActivated EventType = "subscription_activated"
	EventSubscriptionUpdated   EventType = "subscription_updated"
	EventSubscriptionCancelled EventType = "subscription_cancelled"
	EventSubscriptionSuspended EventType = "subscription_suspended"
	EventPaymentSucceeded      EventType = "payment_succeeded"
	EventPaymentFailed         EventType = "payment_failed"
	EventPaymentRefunded       EventType = "payment_refunded"
	EventChargePending         EventType = "charge_pending"
	EventChargeConfirmed       EventType = "charge_confirmed"
	EventChargeFailed          EventType = "charge_failed"
)

// CanonicalEvent is the normalized representation of one provider webhook
// notification. Optional fields are zero-valued when the provider does not
// supply them for a given event type.
type CanonicalEvent struct {
	Provider               string
	ProviderEventID        string
	Type                   EventType
	ProviderSubscriptionID string
	ProviderTransactionID  string
	ProviderCustomerID     string
	UserRef                string
	Tier                   string
	Amount                 float64
	Currency               string
	OccurredAt             time.Time
	// PeriodEnd is the provider-reported end of the paid period, when the
	// event carries one (cancellations, period updates).
	PeriodEnd *time.Time
}

// Outcome describes what processing a canonical event did to persisted state.
type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeStale        Outcome = "stale"
	OutcomeIgnored      Outcome = "ignored"
	OutcomeDeadLettered Outcome = "dead_lettered"
)
