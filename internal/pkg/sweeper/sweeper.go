package sweeper

import (
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/habitflow/habitflow/app/models"
	"github.com/habitflow/habitflow/internal/pkg/billing"
	"github.com/habitflow/habitflow/internal/pkg/notifier"
)

const (
	// Grace period after a missed billing date before a subscription is
	// expired server-side.
	overdueGrace = 3 * 24 * time.Hour
	// Crypto charges left pending longer than this are marked failed.
	pendingChargeMaxAge = time.Hour
	// Rows handled per category per sweep.
	batchSize = 200
)

// Stats summarizes one sweep run.
type Stats struct {
	Expired        int
	OverdueExpired int
	FailedPending  int
	PrunedEvents   int64
}

// Sweeper is the periodic reconciler for state the webhook stream cannot
// deliver: period ends passing, missed renewals, and abandoned crypto
// charges. Every expiry uses a compare-and-swap on the observed status so
// a webhook landing mid-sweep always wins.
type Sweeper struct {
	repo    billing.Repository
	billing *billing.Service
	notif   notifier.Notifier
}

func New(repo billing.Repository, svc *billing.Service, notif notifier.Notifier) *Sweeper {
	if notif == nil {
		notif = notifier.LogNotifier{}
	}
	return &Sweeper{repo: repo, billing: svc, notif: notif}
}

// Sweep runs one full pass at the given time.
func (s *Sweeper) Sweep(now time.Time) (Stats, error) {
	var stats Stats

	due, err := s.repo.CancelledSubscriptionsDue(now, batchSize)
	if err != nil {
		return stats, err
	}
	for i := range due {
		if s.expireOne(&due[i]) {
			stats.Expired++
		}
	}

	overdue, err := s.repo.OverdueSubscriptions(now.Add(-overdueGrace), batchSize)
	if err != nil {
		return stats, err
	}
	for i := range overdue {
		if s.expireOne(&overdue[i]) {
			stats.OverdueExpired++
		}
	}

	pending, err := s.repo.StalePendingPayments(now.Add(-pendingChargeMaxAge), batchSize)
	if err != nil {
		return stats, err
	}
	for _, p := range pending {
		swapped, err := s.repo.FailPaymentCAS(p.ID, models.PaymentStatusPending)
		if err != nil {
			log.Errorf("[Sweeper] Failing stale pending payment %d: %v", p.ID, err)
			continue
		}
		if swapped {
			stats.FailedPending++
			log.Infof("[Sweeper] Marked stale pending charge %s/%s as failed", p.Provider, p.ProviderTransactionID)
		}
	}

	if s.billing != nil {
		if n, err := s.billing.PruneLedger(now); err != nil {
			log.Errorf("[Sweeper] Ledger prune: %v", err)
		} else {
			stats.PrunedEvents = n
		}
	}

	log.Infof("[Sweeper] Sweep done: expired=%d overdue=%d failed_pending=%d pruned=%d",
		stats.Expired, stats.OverdueExpired, stats.FailedPending, stats.PrunedEvents)
	return stats, nil
}

// expireOne expires a single subscription and, when it was the user's
// last live one, downgrades the account to free. Returns false when a
// concurrent webhook changed the subscription first.
func (s *Sweeper) expireOne(sub *models.Subscription) bool {
	var (
		notes   []func()
		applied bool
	)

	err := s.repo.Transaction(func(tx billing.Repository) error {
		swapped, err := tx.ExpireSubscriptionCAS(sub.ID, sub.Status)
		if err != nil {
			return err
		}
		if !swapped {
			log.Debugf("[Sweeper] Subscription %d changed under us, skipping", sub.ID)
			return nil
		}
		applied = true

		user, err := tx.UserByID(sub.UserID)
		if err != nil {
			return err
		}

		// Another live subscription (e.g. a superseding purchase) keeps
		// the entitlement; only the last one falling downgrades.
		if _, err := tx.CurrentSubscription(user.ID); err == nil {
			return nil
		} else if !billing.IsNotFound(err) {
			return err
		}

		user.Tier = models.TierFree
		user.SubscriptionStatus = models.SubStatusExpired
		user.HabitLimit = models.FreeHabitLimit
		user.PaymentFailures = 0
		if err := tx.SaveUser(user); err != nil {
			return err
		}

		active, err := tx.CountActiveHabits(user.ID)
		if err != nil {
			return err
		}
		toArchive := int(active) - models.FreeHabitLimit
		if toArchive < 0 {
			toArchive = 0
		}

		userID, tier := user.ID, sub.Tier
		notes = append(notes, func() {
			s.notif.Notify(userID, notifier.KindSubscriptionExpired, notifier.Meta{
				Tier:            tier,
				HabitsToArchive: toArchive,
			})
		})
		log.Infof("[Sweeper] Expired subscription %d, user %d downgraded to free (habits over limit: %d)",
			sub.ID, user.ID, toArchive)
		return nil
	})
	if err != nil {
		log.Errorf("[Sweeper] Expiring subscription %d: %v", sub.ID, err)
		return false
	}

	for _, fn := range notes {
		fn()
	}
	return applied
}
