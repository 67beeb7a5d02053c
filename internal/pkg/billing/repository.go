package billing

import (
	"errors"
	"time"

	"github.com/habitflow/habitflow/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides the persistence operations used by the
// reconciliation engine and the downgrade sweeper. Implementations must
// make Transaction run the callback atomically; everything the engine
// writes for one webhook event happens inside a single transaction
// together with the idempotency claim.
type Repository interface {
	// Transaction runs fn against a transactional view of the repository.
	Transaction(fn func(Repository) error) error

	// ClaimEvent inserts into the idempotency ledger. A false return
	// means the (provider, event id) pair was already processed; losing a
	// concurrent insert race is reported the same way, not as an error.
	ClaimEvent(provider, providerEventID string) (bool, error)
	// PruneProcessedEvents removes ledger entries older than the cutoff.
	PruneProcessedEvents(olderThan time.Time) (int64, error)

	UserByID(id uint) (*models.User, error)
	UserByProviderCustomerID(provider, customerID string) (*models.User, error)
	SaveUser(user *models.User) error

	SubscriptionByProviderID(provider, providerSubscriptionID string) (*models.Subscription, error)
	// CurrentSubscription derives the user's current subscription from the
	// append-only history: newest start_date among non-expired rows.
	CurrentSubscription(userID uint) (*models.Subscription, error)
	CreateSubscription(sub *models.Subscription) error
	SaveSubscription(sub *models.Subscription) error
	CountActiveSubscriptions(userID uint) (int64, error)
	// SupersedeActiveSubscriptions expires every non-expired subscription
	// of the user except the given one. Returns the number superseded.
	SupersedeActiveSubscriptions(userID, exceptID uint, now time.Time) (int64, error)

	PaymentByProviderTxn(provider, providerTransactionID string) (*models.Payment, error)
	CreatePayment(p *models.Payment) error
	SavePayment(p *models.Payment) error

	CreateDeadLetter(ev *models.DeadLetterEvent) error

	CountActiveHabits(userID uint) (int64, error)

	// Sweeper queries. Expiry uses compare-and-swap on the observed
	// status so a webhook landing between scan and mutation wins.
	CancelledSubscriptionsDue(now time.Time, limit int) ([]models.Subscription, error)
	OverdueSubscriptions(cutoff time.Time, limit int) ([]models.Subscription, error)
	ExpireSubscriptionCAS(id uint, observedStatus string) (bool, error)
	StalePendingPayments(cutoff time.Time, limit int) ([]models.Payment, error)
	FailPaymentCAS(id uint, observedStatus string) (bool, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transaction(fn func(Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) ClaimEvent(provider, providerEventID string) (bool, error) {
	record := &models.ProcessedEvent{
		Provider:        provider,
		ProviderEventID: providerEventID,
	}
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(record)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) PruneProcessedEvents(olderThan time.Time) (int64, error) {
	tx := r.db.Where("processed_at < ?", olderThan).Delete(&models.ProcessedEvent{})
	return tx.RowsAffected, tx.Error
}

func (r *gormRepository) UserByID(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) UserByProviderCustomerID(provider, customerID string) (*models.User, error) {
	column, ok := providerCustomerColumn(provider)
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	var user models.User
	if err := r.db.Where(column+" = ?", customerID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func providerCustomerColumn(provider string) (string, bool) {
	switch provider {
	case models.ProviderStripe:
		return "stripe_customer_id", true
	case models.ProviderPaypal:
		return "paypal_customer_id", true
	case models.ProviderCoinbase:
		return "coinbase_customer_id", true
	default:
		return "", false
	}
}

func (r *gormRepository) SaveUser(user *models.User) error {
	return r.db.Save(user).Error
}

func (r *gormRepository) SubscriptionByProviderID(provider, providerSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("provider = ? AND provider_subscription_id = ?", provider, providerSubscriptionID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) CurrentSubscription(userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("user_id = ? AND status IN ?", userID, []string{
		models.SubscriptionStatusActive,
		models.SubscriptionStatusSuspended,
		models.SubscriptionStatusCancelledPendingExpiry,
	}).Order("start_date DESC").First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) CreateSubscription(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

func (r *gormRepository) SaveSubscription(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

func (r *gormRepository) CountActiveSubscriptions(userID uint) (int64, error) {
	var n int64
	err := r.db.Model(&models.Subscription{}).
		Where("user_id = ? AND status = ?", userID, models.SubscriptionStatusActive).
		Count(&n).Error
	return n, err
}

func (r *gormRepository) SupersedeActiveSubscriptions(userID, exceptID uint, now time.Time) (int64, error) {
	tx := r.db.Model(&models.Subscription{}).
		Where("user_id = ? AND id <> ? AND status IN ?", userID, exceptID, []string{
			models.SubscriptionStatusActive,
			models.SubscriptionStatusSuspended,
			models.SubscriptionStatusCancelledPendingExpiry,
		}).
		Updates(map[string]interface{}{
			"status":   models.SubscriptionStatusExpired,
			"end_date": now,
		})
	return tx.RowsAffected, tx.Error
}

func (r *gormRepository) PaymentByProviderTxn(provider, providerTransactionID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Where("provider = ? AND provider_transaction_id = ?", provider, providerTransactionID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) CreatePayment(p *models.Payment) error {
	return r.db.Create(p).Error
}

func (r *gormRepository) SavePayment(p *models.Payment) error {
	return r.db.Save(p).Error
}

func (r *gormRepository) CreateDeadLetter(ev *models.DeadLetterEvent) error {
	return r.db.Create(ev).Error
}

func (r *gormRepository) CountActiveHabits(userID uint) (int64, error) {
	var n int64
	err := r.db.Model(&models.Habit{}).
		Where("user_id = ? AND archived = ?", userID, false).
		Count(&n).Error
	return n, err
}

func (r *gormRepository) CancelledSubscriptionsDue(now time.Time, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("status = ? AND end_date IS NOT NULL AND end_date <= ?",
		models.SubscriptionStatusCancelledPendingExpiry, now).
		Limit(limit).Find(&subs).Error
	return subs, err
}

func (r *gormRepository) OverdueSubscriptions(cutoff time.Time, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("status IN ? AND next_billing_date IS NOT NULL AND next_billing_date <= ?",
		[]string{models.SubscriptionStatusActive, models.SubscriptionStatusSuspended}, cutoff).
		Limit(limit).Find(&subs).Error
	return subs, err
}

func (r *gormRepository) ExpireSubscriptionCAS(id uint, observedStatus string) (bool, error) {
	tx := r.db.Model(&models.Subscription{}).
		Where("id = ? AND status = ?", id, observedStatus).
		Update("status", models.SubscriptionStatusExpired)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) StalePendingPayments(cutoff time.Time, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.Where("provider = ? AND status = ? AND received_at <= ?",
		models.ProviderCoinbase, models.PaymentStatusPending, cutoff).
		Limit(limit).Find(&payments).Error
	return payments, err
}

func (r *gormRepository) FailPaymentCAS(id uint, observedStatus string) (bool, error) {
	tx := r.db.Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, observedStatus).
		Update("status", models.PaymentStatusFailed)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// IsNotFound reports whether err is the store's record-not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
