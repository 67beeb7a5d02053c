package billing

import (
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/habitflow/habitflow/app/models"
	"github.com/habitflow/habitflow/internal/pkg/entitlements"
	"github.com/habitflow/habitflow/internal/pkg/notifier"
)

// Consecutive failed payments on one subscription before it is suspended.
const suspendAfterFailures = 3

// statusSeverity orders subscription states. Events may only move a
// lineage toward equal or higher severity; a late-arriving event implying
// lower severity is stale and must not regress entitlement.
func statusSeverity(status string) int {
	switch status {
	case models.SubscriptionStatusActive:
		return 0
	case models.SubscriptionStatusSuspended:
		return 1
	case models.SubscriptionStatusCancelledPendingExpiry:
		return 2
	case models.SubscriptionStatusExpired:
		return 3
	default:
		return -1
	}
}

// isStaleTransition reports whether moving a lineage from current to
// target would lower its recorded severity. Equal severity is a
// same-state data refresh and is allowed.
func isStaleTransition(currentStatus, targetStatus string) bool {
	return statusSeverity(targetStatus) < statusSeverity(currentStatus)
}

// periodEnd returns when a paid period starting at from runs out, or nil
// for lifetime.
func periodEnd(tier entitlements.Tier, from time.Time) *time.Time {
	var end time.Time
	switch tier {
	case entitlements.TierMonthly:
		end = from.AddDate(0, 0, 30)
	case entitlements.TierAnnual:
		end = from.AddDate(0, 0, 365)
	default:
		return nil
	}
	return &end
}

// note is a notification decided during a transaction and dispatched only
// after it commits.
type note struct {
	userID uint
	kind   notifier.Kind
	meta   notifier.Meta
}

// applyEvent runs the transition policy for one canonical event against
// the resolved user, inside the caller's transaction. It returns the
// outcome plus notifications to send after commit.
func (s *Service) applyEvent(tx Repository, user *models.User, ev *CanonicalEvent) (Outcome, []note, error) {
	switch ev.Type {
	case EventCheckoutCompleted, EventSubscriptionActivated:
		return s.applyActivation(tx, user, ev)
	case EventPaymentSucceeded:
		return s.applyPaymentSucceeded(tx, user, ev)
	case EventPaymentFailed:
		return s.applyPaymentFailed(tx, user, ev)
	case EventSubscriptionUpdated:
		return s.applySubscriptionUpdated(tx, user, ev)
	case EventSubscriptionCancelled:
		return s.applyCancellation(tx, user, ev)
	case EventSubscriptionSuspended:
		return s.applySuspension(tx, user, ev)
	case EventPaymentRefunded:
		return s.applyRefund(tx, user, ev)
	case EventChargePending:
		return s.applyChargePending(tx, user, ev)
	case EventChargeConfirmed:
		return s.applyChargeConfirmed(tx, user, ev)
	case EventChargeFailed:
		return s.applyChargeFailed(tx, user, ev)
	default:
		return OutcomeIgnored, nil, nil
	}
}

func (s *Service) applyActivation(tx Repository, user *models.User, ev *CanonicalEvent) (Outcome, []note, error) {
	tier := entitlements.NormalizeTier(ev.Tier)
	if ev.Tier == "" {
		tier = tierForAmount(ev.Amount)
	}
	if !entitlements.IsPaid(tier) {
		log.Warnf("[Billing] activation event %s/%s carries no resolvable paid tier, ignoring",
			ev.Provider, ev.ProviderEventID)
		return OutcomeIgnored, nil, nil
	}

	sub, err := tx.SubscriptionByProviderID(ev.Provider, ev.ProviderSubscriptionID)
	switch {
	case err == nil:
		if isStaleTransition(sub.Status, models.SubscriptionStatusActive) {
			return OutcomeStale, nil, nil
		}
		// Redelivered or re-synced activation for a known lineage:
		// refresh billing dates, leave entitlement as-is.
		if end := periodEnd(tier, ev.OccurredAt); end != nil && (sub.NextBillingDate == nil || end.After(*sub.NextBillingDate)) {
			sub.EndDate = end
			sub.NextBillingDate = end
		}
		if err := tx.SaveSubscription(sub); err != nil {
			return "", nil, err
		}
	case IsNotFound(err):
		end := periodEnd(tier, ev.OccurredAt)
		sub = &models.Subscription{
			UserID:                 user.ID,
			Tier:                   string(tier),
			Status:                 models.SubscriptionStatusActive,
			Provider:               ev.Provider,
			ProviderSubscriptionID: ev.ProviderSubscriptionID,
			StartDate:              ev.OccurredAt,
			EndDate:                end,
			NextBillingDate:        end,
			Amount:                 ev.Amount,
			Currency:               currencyOrDefault(ev.Currency),
		}
		if err := tx.CreateSubscription(sub); err != nil {
			return "", nil, err
		}
	default:
		return "", nil, err
	}

	// Last-writer-wins across providers: the latest confirmed purchase
	// supersedes any earlier live subscription, full history retained.
	superseded, err := tx.SupersedeActiveSubscriptions(user.ID, sub.ID, ev.OccurredAt)
	if err != nil {
		return "", nil, err
	}
	if superseded > 0 {
		log.Warnf("[Billing] user %d activated %s/%s while holding %d other live subscription(s); superseded",
			user.ID, ev.Provider, ev.ProviderSubscriptionID, superseded)
	}

	occurred := ev.OccurredAt
	user.Tier = string(tier)
	user.SubscriptionStatus = models.SubStatusActive
	user.HabitLimit = models.UnlimitedHabitLimit
	user.PaymentFailures = 0
	user.LastPaymentDate = &occurred
	if err := tx.SaveUser(user); err != nil {
		return "", nil, err
	}

	var notes []note
	if ev.ProviderTransactionID != "" {
		if err := s.recordPayment(tx, user, ev, sub.ID, models.PaymentStatusCompleted); err != nil {
			return "", nil, err
		}
		notes = append(notes, note{
			userID: user.ID,
			kind:   notifier.KindPaymentSuccess,
			meta:   notifier.Meta{Tier: string(tier), Amount: ev.Amount, Currency: currencyOrDefault(ev.Currency)},
		})
	}
	return OutcomeApplied, notes, nil
}

func (s *Service) applyPaymentSucceeded(tx Repository, user *models.User, ev *CanonicalEvent) (Outcome, []note, error) {
	var subID *uint
	sub, err := s.lineageFor(tx, ev)
	if err != nil {
		return "", nil, err
	}
	if sub != nil {
		if isStaleTransition(sub.Status, models.SubscriptionStatusActive) {
			return OutcomeStale, nil, nil
		}
		subID = &sub.ID

		// Renewal: extend the paid period from whichever is later, the
		// recorded next billing date or the payment time.
		from := ev.OccurredAt
		if sub.NextBillingDate != nil && sub.NextBillingDate.After(from) {
			from = *sub.NextBillingDate
		}
		if end := periodEnd(entitlements.NormalizeTier(sub.Tier), from); end != nil {
			sub.EndDate = end
			sub.NextBillingDate = end
		}
		if err := tx.SaveSubscription(sub); err != nil {
			return "", nil, err
		}

		// The failure counter is scoped to the current lineage: an
		// unrelated payment never masks recurring failures.
		if current, err := tx.CurrentSubscription(user.ID); err == nil && current.ID == sub.ID {
			user.PaymentFailures = 0
		} else if err != nil && !IsNotFound(err) {
			return "", nil, err
		}
	}

	occurred := ev.OccurredAt
	user.LastPaymentDate = &occurred
	if err := tx.SaveUser(user); err != nil {
		return "", nil, err
	}

	if err := s.recordPaymentWithSub(tx, user, ev, subID, models.PaymentStatusCompleted); err != nil {
		return "", nil, err
	}
	notes := []note{{
		userID: user.ID,
		kind:   notifier.KindPaymentSuccess,
		meta:   notifier.Meta{Tier: user.Tier, Amount: ev.Amount, Currency: currencyOrDefault(ev.Currency)},
	}}
	return OutcomeApplied, notes, nil
}

func (s *Service) applyPaymentFailed(tx Repository, user *models.User, ev *CanonicalEvent) (Outcome, []note, error) {
	var subID *uint
	sub, err := s.lineageFor(tx, ev)
	if err != nil {
		return "", nil, err
	}
	if sub != nil {
		if isStaleTransition(sub.Status, models.SubscriptionStatusSuspended) {
			return OutcomeStale, nil, nil
		}
		subID = &sub.ID
	}

	if err := s.recordPaymentWithSub(tx, user, ev, subID, models.PaymentStatusFailed); err != nil {
		return "", nil, err
	}

	// The counter tracks consecutive failures on the current lineage
	// only, mirroring the reset scope in applyPaymentSucceeded. A
	// failure with no known lineage, or on a superseded one, is
	// recorded but never pushes the account toward suspension.
	onCurrent := false
	if sub != nil {
		if current, err := tx.CurrentSubscription(user.ID); err == nil && current.ID == sub.ID {
			onCurrent = true
		} else if err != nil && !IsNotFound(err) {
			return "", nil, err
		}
	}
	if onCurrent {
		user.PaymentFailures++
	}
	notes := []note{{
		userID: user.ID,
		kind:   notifier.KindPaymentFailed,
		meta:   notifier.Meta{Tier: user.Tier, Amount: ev.Amount, Currency: currencyOrDefault(ev.Currency), FailureCount: user.PaymentFailures},
	}}

	if onCurrent && sub.Status == models.SubscriptionStatusActive && user.PaymentFailures >= suspendAfterFailures {
		sub.Status = models.SubscriptionStatusSuspended
		if err := tx.SaveSubscription(sub); err != nil {
			return "", nil, err
		}
		// Entitlement is retained while suspended; only the status flags
		// the account as at-risk.
		user.SubscriptionStatus = models.SubStatusSuspended
		notes = append(notes, note{
			userID: user.ID,
			kind:   notifier.KindSubscriptionSuspended,
			meta:   notifier.Meta{Tier: user.Tier, FailureCount: user.PaymentFailures},
		})
	}

	if err := tx.SaveUser(user); err != nil {
		return "", nil, err
	}
	return OutcomeApplied, notes, nil
}

func (s *Service) applySubscriptionUpdated(tx Repository, user *models.User, ev *CanonicalEvent) (Outcome, []note, error) {
	sub, err := s.lineageFor(tx, ev)
	if err != nil {
		return "", nil, err
	}
	if sub == nil {
		log.Warnf("[Billing] update event %s/%s for unknown subscription %q, ignoring",
			ev.Provider, ev.ProviderEventID, ev.ProviderSubscriptionID)
		return OutcomeIgnored, nil, nil
	}
	if sub.Status == models.SubscriptionStatusExpired {
		return OutcomeStale, nil, nil
	}

	// Same-state data refresh: billing dates, amount, and tier changes.
	if ev.PeriodEnd != nil {
		sub.EndDate = ev.PeriodEnd
		sub.NextBillingDate = ev.PeriodEnd
	}
	if ev.Amount > 0 {
		sub.Amount = ev.Amount
	}
	if ev.Tier != "" {
		tier := entitlements.NormalizeTier(ev.Tier)
		if entitlements.IsPaid(tier) {
			sub.Tier = string(tier)
			if sub.Status == models.SubscriptionStatusActive {
				user.Tier = string(tier)
				if err := tx.SaveUser(user); err != nil {
					return "", nil, err
				}
			}
		}
	}
	if err := tx.SaveSubscription(sub); err != nil {
		return "", nil, err
	}
	return OutcomeApplied, nil, nil
}

func (s *Service) applyCancellation(tx Repository, user *models.User, ev *CanonicalEvent) (Outcome, []note, error) {
	sub, err := s.lineageFor(tx, ev)
	if err != nil {
		return "", nil, err
	}
	if sub == nil {
		log.Warnf("[Billing] cancellation event %s/%s for unknown subscription %q, ignoring",
			ev.Provider, ev.ProviderEventID, ev.ProviderSubscriptionID)
		return OutcomeIgnored, nil, nil
	}
	if isStaleTransition(sub.Status, models.SubscriptionStatusCancelledPendingExpiry) {
		return OutcomeStale, nil, nil
	}

	sub.Status = models.SubscriptionStatusCancelledPendingExpiry
	switch {
	case ev.PeriodEnd != nil:
		sub.EndDate = ev.PeriodEnd
	case sub.EndDate != nil:
		// keep the recorded period end
	case sub.NextBillingDate != nil:
		sub.EndDate = sub.NextBillingDate
	default:
		occurred := ev.OccurredAt
		sub.EndDate = &occurred
	}
	if err := tx.SaveSubscription(sub); err != nil {
		return "", nil, err
	}

	// Entitlement is retained until end_date; the sweeper downgrades.
	user.SubscriptionStatus = models.SubStatusCancelledPendingExpiry
	if err := tx.SaveUser(user); err != nil {
		return "", nil, err
	}

	notes := []note{{
		userID: user.ID,
		kind:   notifier.KindSubscriptionCancelled,
		meta:   notifier.Meta{Tier: sub.Tier, EndDate: sub.EndDate},
	}}
	return OutcomeApplied, notes, nil
}

func (s *Service) applySuspension(tx Repository, user *models.User, ev *CanonicalEvent) (Outcome, []note, error) {
	sub, err := s.lineageFor(tx, ev)
	if err != nil {
		return "", nil, err
	}
	if sub == nil {
		return OutcomeIgnored, nil, nil
	}
	if isStaleTransition(sub.Status, models.SubscriptionStatusSuspended) {
		return OutcomeStale, nil, nil
	}
	if sub.Status == models.SubscriptionStatusSuspended {
		return OutcomeApplied, nil, nil
	}

	sub.Status = models.SubscriptionStatusSuspended
	if err := tx.SaveSubscription(sub); err != nil {
		return "", nil, err
	}
	user.SubscriptionStatus = models.SubStatusSuspended
	if err := tx.SaveUser(user); err != nil {
		return "", nil, err
	}

	notes := []note{{
		userID: user.ID,
		kind:   notifier.KindSubscriptionSuspended,
		meta:   notifier.Meta{Tier: sub.Tier, FailureCount: user.PaymentFailures},
	}}
	return OutcomeApplied, notes, nil
}

func (s *Service) applyRefund(tx Repository, user *models.User, ev *CanonicalEvent) (Outcome, []note, error) {
	var sub *models.Subscription

	payment, err := tx.PaymentByProviderTxn(ev.Provider, ev.ProviderTransactionID)
	switch {
	case err == nil:
		payment.Status = models.PaymentStatusRefunded
		if err := tx.SavePayment(payment); err != nil {
			return "", nil, err
		}
		if payment.SubscriptionID != nil {
			if linked, err := s.subscriptionByID(tx, user.ID, *payment.SubscriptionID); err != nil {
				return "", nil, err
			} else {
				sub = linked
			}
		}
	case IsNotFound(err):
		// Refund for a charge we never recorded; fall through to the
		// lineage reference on the event.
	default:
		return "", nil, err
	}

	if sub == nil {
		if sub, err = s.lineageFor(tx, ev); err != nil {
			return "", nil, err
		}
	}
	if sub == nil {
		log.Warnf("[Billing] refund event %s/%s matches no payment or subscription, ignoring",
			ev.Provider, ev.ProviderEventID)
		return OutcomeIgnored, nil, nil
	}
	if isStaleTransition(sub.Status, models.SubscriptionStatusCancelledPendingExpiry) {
		return OutcomeStale, nil, nil
	}

	// A refund removes the paid period: cancelled with no grace, so the
	// next sweep downgrades immediately.
	occurred := ev.OccurredAt
	sub.Status = models.SubscriptionStatusCancelledPendingExpiry
	sub.EndDate = &occurred
	if err := tx.SaveSubscription(sub); err != nil {
		return "", nil, err
	}
	user.SubscriptionStatus = models.SubStatusCancelledPendingExpiry
	if err := tx.SaveUser(user); err != nil {
		return "", nil, err
	}

	notes := []note{{
		userID: user.ID,
		kind:   notifier.KindSubscriptionCancelled,
		meta:   notifier.Meta{Tier: sub.Tier, EndDate: sub.EndDate},
	}}
	return OutcomeApplied, notes, nil
}

func (s *Service) applyChargePending(tx Repository, user *models.User, ev *CanonicalEvent) (Outcome, []note, error) {
	_, err := tx.PaymentByProviderTxn(ev.Provider, ev.ProviderTransactionID)
	switch {
	case err == nil:
		// Charge already tracked; confirmation may even have arrived
		// first. Nothing to do.
		return OutcomeApplied, nil, nil
	case IsNotFound(err):
	default:
		return "", nil, err
	}

	// No entitlement change while the charge awaits confirmation. The
	// sweeper fails pending charges left unconfirmed for over an hour.
	if err := s.recordPaymentWithSub(tx, user, ev, nil, models.PaymentStatusPending); err != nil {
		return "", nil, err
	}
	return OutcomeApplied, nil, nil
}

func (s *Service) applyChargeConfirmed(tx Repository, user *models.User, ev *CanonicalEvent) (Outcome, []note, error) {
	// One-time crypto settlement only sells lifetime.
	tier := entitlements.TierLifetime

	sub, err := tx.SubscriptionByProviderID(ev.Provider, ev.ProviderTransactionID)
	switch {
	case err == nil:
		// Confirmed twice: the lineage exists, entitlement already granted.
		return OutcomeApplied, nil, nil
	case IsNotFound(err):
	default:
		return "", nil, err
	}

	sub = &models.Subscription{
		UserID:                 user.ID,
		Tier:                   string(tier),
		Status:                 models.SubscriptionStatusActive,
		Provider:               ev.Provider,
		ProviderSubscriptionID: ev.ProviderTransactionID,
		StartDate:              ev.OccurredAt,
		Amount:                 ev.Amount,
		Currency:               currencyOrDefault(ev.Currency),
	}
	if err := tx.CreateSubscription(sub); err != nil {
		return "", nil, err
	}
	if superseded, err := tx.SupersedeActiveSubscriptions(user.ID, sub.ID, ev.OccurredAt); err != nil {
		return "", nil, err
	} else if superseded > 0 {
		log.Warnf("[Billing] user %d confirmed lifetime charge while holding %d other live subscription(s); superseded",
			user.ID, superseded)
	}

	payment, err := tx.PaymentByProviderTxn(ev.Provider, ev.ProviderTransactionID)
	switch {
	case err == nil:
		payment.Status = models.PaymentStatusCompleted
		payment.SubscriptionID = &sub.ID
		if err := tx.SavePayment(payment); err != nil {
			return "", nil, err
		}
	case IsNotFound(err):
		// Confirmation arrived before (or without) the pending event.
		if err := s.recordPaymentWithSub(tx, user, ev, &sub.ID, models.PaymentStatusCompleted); err != nil {
			return "", nil, err
		}
	default:
		return "", nil, err
	}

	occurred := ev.OccurredAt
	user.Tier = string(tier)
	user.SubscriptionStatus = models.SubStatusActive
	user.HabitLimit = models.UnlimitedHabitLimit
	user.LastPaymentDate = &occurred
	// Deliberately no PaymentFailures reset: a one-time lifetime purchase
	// must not mask failures on an unrelated recurring subscription.
	if err := tx.SaveUser(user); err != nil {
		return "", nil, err
	}

	notes := []note{{
		userID: user.ID,
		kind:   notifier.KindPaymentSuccess,
		meta:   notifier.Meta{Tier: string(tier), Amount: ev.Amount, Currency: currencyOrDefault(ev.Currency)},
	}}
	return OutcomeApplied, notes, nil
}

func (s *Service) applyChargeFailed(tx Repository, user *models.User, ev *CanonicalEvent) (Outcome, []note, error) {
	payment, err := tx.PaymentByProviderTxn(ev.Provider, ev.ProviderTransactionID)
	switch {
	case err == nil:
		if payment.Status == models.PaymentStatusCompleted {
			// The confirmation already won; a late failure (e.g. a
			// resolved underpayment dispute) must not regress it.
			return OutcomeStale, nil, nil
		}
		payment.Status = models.PaymentStatusFailed
		if err := tx.SavePayment(payment); err != nil {
			return "", nil, err
		}
	case IsNotFound(err):
		if err := s.recordPaymentWithSub(tx, user, ev, nil, models.PaymentStatusFailed); err != nil {
			return "", nil, err
		}
	default:
		return "", nil, err
	}

	// No entitlement was granted, none is removed. Underpaid charges land
	// here: no partial credit, the user restarts checkout.
	notes := []note{{
		userID: user.ID,
		kind:   notifier.KindPaymentFailed,
		meta:   notifier.Meta{Tier: user.Tier, Amount: ev.Amount, Currency: currencyOrDefault(ev.Currency), FailureCount: user.PaymentFailures},
	}}
	return OutcomeApplied, notes, nil
}

// lineageFor resolves the subscription lineage an event refers to, or nil
// when the event carries no (or an unknown) lineage reference.
func (s *Service) lineageFor(tx Repository, ev *CanonicalEvent) (*models.Subscription, error) {
	if ev.ProviderSubscriptionID == "" {
		return nil, nil
	}
	sub, err := tx.SubscriptionByProviderID(ev.Provider, ev.ProviderSubscriptionID)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Service) subscriptionByID(tx Repository, userID, subID uint) (*models.Subscription, error) {
	current, err := tx.CurrentSubscription(userID)
	if err == nil && current.ID == subID {
		return current, nil
	}
	if err != nil && !IsNotFound(err) {
		return nil, err
	}
	return nil, nil
}

func (s *Service) recordPayment(tx Repository, user *models.User, ev *CanonicalEvent, subID uint, status string) error {
	return s.recordPaymentWithSub(tx, user, ev, &subID, status)
}

// recordPaymentWithSub appends a payment row unless the provider
// transaction is already recorded; transaction IDs are unique per
// provider, so webhook redelivery cannot duplicate them.
func (s *Service) recordPaymentWithSub(tx Repository, user *models.User, ev *CanonicalEvent, subID *uint, status string) error {
	if ev.ProviderTransactionID == "" {
		return nil
	}
	existing, err := tx.PaymentByProviderTxn(ev.Provider, ev.ProviderTransactionID)
	switch {
	case err == nil:
		if subID != nil && existing.SubscriptionID == nil {
			existing.SubscriptionID = subID
			return tx.SavePayment(existing)
		}
		return nil
	case IsNotFound(err):
	default:
		return err
	}

	return tx.CreatePayment(&models.Payment{
		UserID:                user.ID,
		SubscriptionID:        subID,
		Provider:              ev.Provider,
		ProviderTransactionID: ev.ProviderTransactionID,
		Amount:                ev.Amount,
		Currency:              currencyOrDefault(ev.Currency),
		Status:                status,
		ReceivedAt:            ev.OccurredAt,
	})
}

func currencyOrDefault(currency string) string {
	if currency == "" {
		return "USD"
	}
	return currency
}
