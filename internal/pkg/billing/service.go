package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/habitflow/habitflow/app/models"
	"github.com/habitflow/habitflow/internal/pkg/notifier"
)

// Processed-event rows older than this are prunable; providers stop
// redelivering long before.
const ledgerRetention = 90 * 24 * time.Hour

// Service turns verified provider webhooks into subscription, payment and
// entitlement state. All state changes for one event happen in a single
// transaction; notifications are dispatched only after it commits.
type Service struct {
	repo  Repository
	notif notifier.Notifier

	cancelClientFor func(provider string) (CancelClient, error)
}

func NewService(repo Repository, notif notifier.Notifier) *Service {
	if notif == nil {
		notif = notifier.LogNotifier{}
	}
	return &Service{repo: repo, notif: notif, cancelClientFor: CancelClientFor}
}

// ProcessWebhook verifies and parses a raw provider delivery, then applies
// it. Verification and parse failures surface as ErrSignatureInvalid /
// ErrMalformedPayload for the handler to map onto HTTP status codes.
func (s *Service) ProcessWebhook(provider string, body []byte, sigHeader, secret string) (Outcome, error) {
	adapter, err := AdapterFor(provider)
	if err != nil {
		return "", err
	}
	if err := adapter.Verify(body, sigHeader, secret); err != nil {
		return "", err
	}
	ev, err := adapter.Parse(body)
	if err != nil {
		return "", err
	}
	return s.ProcessEvent(ev, body)
}

// ProcessEvent applies one canonical event. rawBody is retained only for
// dead-lettering; it may be nil for internally generated events.
func (s *Service) ProcessEvent(ev *CanonicalEvent, rawBody []byte) (Outcome, error) {
	var (
		outcome Outcome
		notes   []note
	)

	err := s.repo.Transaction(func(tx Repository) error {
		claimed, err := tx.ClaimEvent(ev.Provider, ev.ProviderEventID)
		if err != nil {
			return err
		}
		if !claimed {
			outcome = OutcomeDuplicate
			return nil
		}

		user, err := s.resolveUser(tx, ev)
		if err != nil {
			return err
		}
		if user == nil {
			if err := s.deadLetter(tx, ev, rawBody, "no matching user"); err != nil {
				return err
			}
			outcome = OutcomeDeadLettered
			return nil
		}

		// Learn the provider customer reference on first contact so later
		// events without metadata still resolve.
		if ev.ProviderCustomerID != "" && setProviderCustomerID(user, ev.Provider, ev.ProviderCustomerID) {
			if err := tx.SaveUser(user); err != nil {
				return err
			}
		}

		outcome, notes, err = s.applyEvent(tx, user, ev)
		return err
	})
	if err != nil {
		return "", err
	}

	for _, n := range notes {
		s.notif.Notify(n.userID, n.kind, n.meta)
	}

	log.Infof("[Billing] event %s/%s type=%s outcome=%s", ev.Provider, ev.ProviderEventID, ev.Type, outcome)
	return outcome, nil
}

// resolveUser matches the event to a user, first by the explicit user
// reference in checkout metadata, then by the provider's customer ID.
// Returns nil (no error) when neither resolves.
func (s *Service) resolveUser(tx Repository, ev *CanonicalEvent) (*models.User, error) {
	if ev.UserRef != "" {
		if id, err := strconv.ParseUint(ev.UserRef, 10, 32); err == nil {
			user, err := tx.UserByID(uint(id))
			if err == nil {
				return user, nil
			}
			if !IsNotFound(err) {
				return nil, err
			}
		}
	}

	if ev.ProviderCustomerID != "" {
		user, err := tx.UserByProviderCustomerID(ev.Provider, ev.ProviderCustomerID)
		if err == nil {
			return user, nil
		}
		if !IsNotFound(err) {
			return nil, err
		}
	}

	// Events that only name a subscription lineage (e.g. a cancellation
	// replayed after metadata was lost) still resolve via the owner.
	if ev.ProviderSubscriptionID != "" {
		sub, err := tx.SubscriptionByProviderID(ev.Provider, ev.ProviderSubscriptionID)
		if err == nil {
			user, err := tx.UserByID(sub.UserID)
			if err == nil {
				return user, nil
			}
			if !IsNotFound(err) {
				return nil, err
			}
		} else if !IsNotFound(err) {
			return nil, err
		}
	}

	return nil, nil
}

func (s *Service) deadLetter(tx Repository, ev *CanonicalEvent, rawBody []byte, reason string) error {
	payload := rawBody
	if payload == nil {
		payload, _ = json.Marshal(ev)
	}
	log.Warnf("[Billing] dead-lettering event %s/%s type=%s: %s", ev.Provider, ev.ProviderEventID, ev.Type, reason)
	return tx.CreateDeadLetter(&models.DeadLetterEvent{
		Provider:        ev.Provider,
		ProviderEventID: ev.ProviderEventID,
		EventType:       string(ev.Type),
		UserRef:         ev.UserRef,
		PayloadJSON:     string(payload),
		Reason:          reason,
	})
}

// CancelAtPeriodEnd stops provider-side billing for the user's current
// subscription and flags it for cancellation. Entitlement is retained
// until the recorded period end; the sweeper performs the downgrade
// when it passes, and the provider's own cancellation webhook lands as
// a same-state refresh.
func (s *Service) CancelAtPeriodEnd(ctx context.Context, userID uint) error {
	current, err := s.repo.CurrentSubscription(userID)
	if err != nil {
		return err
	}
	if current.IsLifetime() {
		return ErrNotCancellable
	}
	if current.Status == models.SubscriptionStatusCancelledPendingExpiry {
		return nil
	}

	// Tell the provider first. If the call fails nothing is flagged
	// locally, so the user can retry; flagging first would leave the
	// provider billing a subscription we consider ended.
	client, err := s.cancelClientFor(current.Provider)
	if err != nil {
		return err
	}
	if err := client.CancelSubscription(ctx, current.ProviderSubscriptionID); err != nil {
		return fmt.Errorf("provider cancellation failed: %w", err)
	}

	var notes []note

	err = s.repo.Transaction(func(tx Repository) error {
		sub, err := tx.CurrentSubscription(userID)
		if err != nil {
			return err
		}
		if sub.IsLifetime() {
			return ErrNotCancellable
		}
		if sub.Status == models.SubscriptionStatusCancelledPendingExpiry {
			return nil
		}

		sub.Status = models.SubscriptionStatusCancelledPendingExpiry
		if sub.EndDate == nil {
			if sub.NextBillingDate != nil {
				sub.EndDate = sub.NextBillingDate
			} else {
				now := time.Now()
				sub.EndDate = &now
			}
		}
		if err := tx.SaveSubscription(sub); err != nil {
			return err
		}

		user, err := tx.UserByID(userID)
		if err != nil {
			return err
		}
		user.SubscriptionStatus = models.SubStatusCancelledPendingExpiry
		if err := tx.SaveUser(user); err != nil {
			return err
		}

		notes = append(notes, note{
			userID: userID,
			kind:   notifier.KindSubscriptionCancelled,
			meta:   notifier.Meta{Tier: sub.Tier, EndDate: sub.EndDate},
		})
		return nil
	})
	if err != nil {
		return err
	}

	for _, n := range notes {
		s.notif.Notify(n.userID, n.kind, n.meta)
	}
	return nil
}

// PruneLedger drops processed-event rows past the redelivery horizon.
// Called periodically by the sweeper.
func (s *Service) PruneLedger(now time.Time) (int64, error) {
	n, err := s.repo.PruneProcessedEvents(now.Add(-ledgerRetention))
	if err != nil {
		return 0, fmt.Errorf("pruning processed events: %w", err)
	}
	if n > 0 {
		log.Infof("[Billing] pruned %d processed event(s) from the idempotency ledger", n)
	}
	return n, nil
}

// setProviderCustomerID stores the customer reference for the provider if
// not already set; reports whether the user was modified.
func setProviderCustomerID(user *models.User, provider, customerID string) bool {
	switch provider {
	case models.ProviderStripe:
		if user.StripeCustomerID == "" {
			user.StripeCustomerID = customerID
			return true
		}
	case models.ProviderPaypal:
		if user.PaypalCustomerID == "" {
			user.PaypalCustomerID = customerID
			return true
		}
	case models.ProviderCoinbase:
		if user.CoinbaseCustomerID == "" {
			user.CoinbaseCustomerID = customerID
			return true
		}
	}
	return false
}
