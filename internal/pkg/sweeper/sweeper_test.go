package sweeper

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/habitflow/habitflow/app/models"
	"github.com/habitflow/habitflow/internal/pkg/billing"
	"github.com/habitflow/habitflow/internal/pkg/notifier"
)

// sweepRepo implements the repository operations the sweeper touches;
// everything else panics via the embedded nil interface.
type sweepRepo struct {
	billing.Repository

	users    map[uint]*models.User
	subs     map[uint]*models.Subscription
	payments map[uint]*models.Payment
	habits   map[uint]int64

	// forcedDue overrides the due-scan to simulate a webhook changing a
	// subscription between scan and expiry.
	forcedDue []models.Subscription
}

func newSweepRepo() *sweepRepo {
	return &sweepRepo{
		users:    map[uint]*models.User{},
		subs:     map[uint]*models.Subscription{},
		payments: map[uint]*models.Payment{},
		habits:   map[uint]int64{},
	}
}

func (r *sweepRepo) Transaction(fn func(billing.Repository) error) error { return fn(r) }

func (r *sweepRepo) PruneProcessedEvents(olderThan time.Time) (int64, error) { return 0, nil }

func (r *sweepRepo) UserByID(id uint) (*models.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *sweepRepo) SaveUser(user *models.User) error {
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *sweepRepo) CurrentSubscription(userID uint) (*models.Subscription, error) {
	var best *models.Subscription
	for _, s := range r.subs {
		if s.UserID != userID || s.Status == models.SubscriptionStatusExpired {
			continue
		}
		if best == nil || s.StartDate.After(best.StartDate) {
			best = s
		}
	}
	if best == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *sweepRepo) CountActiveHabits(userID uint) (int64, error) { return r.habits[userID], nil }

func (r *sweepRepo) CancelledSubscriptionsDue(now time.Time, limit int) ([]models.Subscription, error) {
	if r.forcedDue != nil {
		return r.forcedDue, nil
	}
	var out []models.Subscription
	for _, s := range r.subs {
		if s.Status == models.SubscriptionStatusCancelledPendingExpiry && s.EndDate != nil && !s.EndDate.After(now) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *sweepRepo) OverdueSubscriptions(cutoff time.Time, limit int) ([]models.Subscription, error) {
	var out []models.Subscription
	for _, s := range r.subs {
		if (s.Status == models.SubscriptionStatusActive || s.Status == models.SubscriptionStatusSuspended) &&
			s.NextBillingDate != nil && !s.NextBillingDate.After(cutoff) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *sweepRepo) ExpireSubscriptionCAS(id uint, observedStatus string) (bool, error) {
	s, ok := r.subs[id]
	if !ok || s.Status != observedStatus {
		return false, nil
	}
	s.Status = models.SubscriptionStatusExpired
	return true, nil
}

func (r *sweepRepo) StalePendingPayments(cutoff time.Time, limit int) ([]models.Payment, error) {
	var out []models.Payment
	for _, p := range r.payments {
		if p.Provider == models.ProviderCoinbase && p.Status == models.PaymentStatusPending && !p.ReceivedAt.After(cutoff) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *sweepRepo) FailPaymentCAS(id uint, observedStatus string) (bool, error) {
	p, ok := r.payments[id]
	if !ok || p.Status != observedStatus {
		return false, nil
	}
	p.Status = models.PaymentStatusFailed
	return true, nil
}

type recordingNotifier struct {
	kinds []notifier.Kind
	metas []notifier.Meta
}

func (n *recordingNotifier) Notify(userID uint, kind notifier.Kind, meta notifier.Meta) {
	n.kinds = append(n.kinds, kind)
	n.metas = append(n.metas, meta)
}

var sweepNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func paidUser(id uint) *models.User {
	return &models.User{
		ID:                 id,
		Tier:               models.TierMonthly,
		SubscriptionStatus: models.SubStatusCancelledPendingExpiry,
		HabitLimit:         models.UnlimitedHabitLimit,
		PaymentFailures:    1,
	}
}

func TestSweepExpiresDueCancelledAndDowngrades(t *testing.T) {
	repo := newSweepRepo()
	repo.users[1] = paidUser(1)
	repo.habits[1] = 5
	end := sweepNow.Add(-time.Hour)
	repo.subs[10] = &models.Subscription{
		ID:        10,
		UserID:    1,
		Tier:      models.TierMonthly,
		Status:    models.SubscriptionStatusCancelledPendingExpiry,
		StartDate: sweepNow.AddDate(0, -1, 0),
		EndDate:   &end,
	}

	rec := &recordingNotifier{}
	stats, err := New(repo, nil, rec).Sweep(sweepNow)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Expired != 1 {
		t.Fatalf("expected 1 expiry, got %+v", stats)
	}
	if repo.subs[10].Status != models.SubscriptionStatusExpired {
		t.Fatalf("expected expired subscription, got %q", repo.subs[10].Status)
	}

	user := repo.users[1]
	if user.Tier != models.TierFree || user.SubscriptionStatus != models.SubStatusExpired {
		t.Fatalf("expected downgraded user, got tier=%q status=%q", user.Tier, user.SubscriptionStatus)
	}
	if user.HabitLimit != models.FreeHabitLimit || user.PaymentFailures != 0 {
		t.Fatalf("expected reset limits, got limit=%d failures=%d", user.HabitLimit, user.PaymentFailures)
	}

	if len(rec.kinds) != 1 || rec.kinds[0] != notifier.KindSubscriptionExpired {
		t.Fatalf("expected one expiry notification, got %v", rec.kinds)
	}
	if rec.metas[0].HabitsToArchive != 2 {
		t.Fatalf("expected 2 habits over the free limit, got %d", rec.metas[0].HabitsToArchive)
	}
}

func TestSweepSkipsWhenWebhookChangedStatus(t *testing.T) {
	repo := newSweepRepo()
	repo.users[1] = paidUser(1)
	end := sweepNow.Add(-time.Hour)
	// The scan observed cancelled_pending_expiry, but a renewal webhook
	// reactivated the subscription before the sweeper got to it.
	repo.subs[10] = &models.Subscription{
		ID:     10,
		UserID: 1,
		Status: models.SubscriptionStatusActive,
	}
	repo.forcedDue = []models.Subscription{{
		ID:      10,
		UserID:  1,
		Status:  models.SubscriptionStatusCancelledPendingExpiry,
		EndDate: &end,
	}}

	rec := &recordingNotifier{}
	stats, err := New(repo, nil, rec).Sweep(sweepNow)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Expired != 0 {
		t.Fatalf("CAS must skip changed subscriptions, got %+v", stats)
	}
	if repo.subs[10].Status != models.SubscriptionStatusActive {
		t.Fatalf("subscription must stay active, got %q", repo.subs[10].Status)
	}
	if len(rec.kinds) != 0 {
		t.Fatalf("expected no notifications, got %v", rec.kinds)
	}
}

func TestSweepKeepsEntitlementWithOtherLiveSubscription(t *testing.T) {
	repo := newSweepRepo()
	user := paidUser(1)
	user.Tier = models.TierLifetime
	user.SubscriptionStatus = models.SubStatusActive
	repo.users[1] = user

	end := sweepNow.Add(-time.Hour)
	repo.subs[10] = &models.Subscription{
		ID:        10,
		UserID:    1,
		Tier:      models.TierMonthly,
		Status:    models.SubscriptionStatusCancelledPendingExpiry,
		StartDate: sweepNow.AddDate(0, -2, 0),
		EndDate:   &end,
	}
	repo.subs[11] = &models.Subscription{
		ID:        11,
		UserID:    1,
		Tier:      models.TierLifetime,
		Status:    models.SubscriptionStatusActive,
		StartDate: sweepNow.AddDate(0, -1, 0),
	}

	rec := &recordingNotifier{}
	stats, err := New(repo, nil, rec).Sweep(sweepNow)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.Expired != 1 {
		t.Fatalf("expected the cancelled subscription to expire, got %+v", stats)
	}
	if repo.users[1].Tier != models.TierLifetime {
		t.Fatalf("surviving subscription must keep entitlement, got %q", repo.users[1].Tier)
	}
	if len(rec.kinds) != 0 {
		t.Fatalf("no downgrade, no notification; got %v", rec.kinds)
	}
}

func TestSweepExpiresOverdueSubscriptions(t *testing.T) {
	repo := newSweepRepo()
	repo.users[1] = paidUser(1)
	missed := sweepNow.Add(-4 * 24 * time.Hour)
	repo.subs[10] = &models.Subscription{
		ID:              10,
		UserID:          1,
		Tier:            models.TierMonthly,
		Status:          models.SubscriptionStatusActive,
		StartDate:       sweepNow.AddDate(0, -2, 0),
		NextBillingDate: &missed,
	}
	// A subscription inside the grace window stays untouched.
	recent := sweepNow.Add(-24 * time.Hour)
	repo.users[2] = paidUser(2)
	repo.subs[11] = &models.Subscription{
		ID:              11,
		UserID:          2,
		Tier:            models.TierMonthly,
		Status:          models.SubscriptionStatusActive,
		StartDate:       sweepNow.AddDate(0, -1, 0),
		NextBillingDate: &recent,
	}

	stats, err := New(repo, nil, &recordingNotifier{}).Sweep(sweepNow)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.OverdueExpired != 1 {
		t.Fatalf("expected 1 overdue expiry, got %+v", stats)
	}
	if repo.subs[10].Status != models.SubscriptionStatusExpired {
		t.Fatalf("overdue subscription not expired: %q", repo.subs[10].Status)
	}
	if repo.subs[11].Status != models.SubscriptionStatusActive {
		t.Fatalf("in-grace subscription must stay active, got %q", repo.subs[11].Status)
	}
}

func TestSweepFailsStalePendingCharges(t *testing.T) {
	repo := newSweepRepo()
	stale := sweepNow.Add(-2 * time.Hour)
	fresh := sweepNow.Add(-30 * time.Minute)
	repo.payments[1] = &models.Payment{
		ID:                    1,
		Provider:              models.ProviderCoinbase,
		ProviderTransactionID: "CHARGE_OLD",
		Status:                models.PaymentStatusPending,
		ReceivedAt:            stale,
	}
	repo.payments[2] = &models.Payment{
		ID:                    2,
		Provider:              models.ProviderCoinbase,
		ProviderTransactionID: "CHARGE_NEW",
		Status:                models.PaymentStatusPending,
		ReceivedAt:            fresh,
	}

	stats, err := New(repo, nil, &recordingNotifier{}).Sweep(sweepNow)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if stats.FailedPending != 1 {
		t.Fatalf("expected 1 failed pending charge, got %+v", stats)
	}
	if repo.payments[1].Status != models.PaymentStatusFailed {
		t.Fatalf("stale charge not failed: %q", repo.payments[1].Status)
	}
	if repo.payments[2].Status != models.PaymentStatusPending {
		t.Fatalf("fresh charge must stay pending: %q", repo.payments[2].Status)
	}
}
