package notifier

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/habitflow/habitflow/app/models"
	"gorm.io/gorm"
)

// Kind identifies a lifecycle notification.
type Kind string

const (
	KindPaymentSuccess        Kind = "payment_success"
	KindPaymentFailed         Kind = "payment_failed"
	KindSubscriptionCancelled Kind = "subscription_cancelled"
	KindSubscriptionSuspended Kind = "subscription_suspended"
	KindSubscriptionExpired   Kind = "subscription_expired"
)

// Meta carries the kind-specific details a notification may reference.
type Meta struct {
	Tier            string
	Amount          float64
	Currency        string
	EndDate         *time.Time
	FailureCount    int
	HabitsToArchive int
}

// Notifier is the lifecycle notification surface. Implementations must
// never fail the caller: webhook processing and sweeping are committed
// before notifications go out, and a lost email is preferable to a
// rejected provider delivery.
type Notifier interface {
	Notify(userID uint, kind Kind, meta Meta)
}

// EmailQueue is the subset of the job queue the notifier needs.
type EmailQueue interface {
	EnqueueEmail(to, subject, body string) error
}

// EmailNotifier resolves the user's address and hands the rendered email
// to the background job queue.
type EmailNotifier struct {
	db    *gorm.DB
	queue EmailQueue
}

func NewEmailNotifier(db *gorm.DB, queue EmailQueue) *EmailNotifier {
	return &EmailNotifier{db: db, queue: queue}
}

func (n *EmailNotifier) Notify(userID uint, kind Kind, meta Meta) {
	var user models.User
	if err := n.db.First(&user, userID).Error; err != nil {
		log.Errorf("[Notifier] user %d not found for %s notification: %v", userID, kind, err)
		return
	}

	subject, body := render(kind, &user, meta)
	if err := n.queue.EnqueueEmail(user.Email, subject, body); err != nil {
		log.Errorf("[Notifier] failed to enqueue %s email for user %d: %v", kind, userID, err)
	}
}

func render(kind Kind, user *models.User, meta Meta) (subject, body string) {
	switch kind {
	case KindPaymentSuccess:
		subject = "Payment Successful - HabitFlow"
		body = fmt.Sprintf("Hi %s,<br><br>Your payment of %.2f %s for the %s plan was received. Enjoy unlimited habits!",
			user.Name, meta.Amount, meta.Currency, meta.Tier)
	case KindPaymentFailed:
		subject = "Payment Failed - HabitFlow"
		body = fmt.Sprintf("Hi %s,<br><br>We could not process your payment of %.2f %s (attempt %d). Please update your payment method.",
			user.Name, meta.Amount, meta.Currency, meta.FailureCount)
	case KindSubscriptionCancelled:
		subject = "Subscription Cancelled - HabitFlow"
		if meta.EndDate != nil {
			body = fmt.Sprintf("Hi %s,<br><br>Your subscription has been cancelled. You keep full access until %s.",
				user.Name, meta.EndDate.Format("January 2, 2006"))
		} else {
			body = fmt.Sprintf("Hi %s,<br><br>Your subscription has been cancelled.", user.Name)
		}
	case KindSubscriptionSuspended:
		subject = "Action Required: Subscription Suspended - HabitFlow"
		body = fmt.Sprintf("Hi %s,<br><br>Your subscription was suspended after %d failed payment attempts. Your access is retained for now; please update your payment method.",
			user.Name, meta.FailureCount)
	case KindSubscriptionExpired:
		subject = "Subscription Expired - HabitFlow"
		if meta.HabitsToArchive > 0 {
			body = fmt.Sprintf("Hi %s,<br><br>Your subscription has expired and your account is back on the free plan. Please archive %d habit(s) to get under the free limit of %d.",
				user.Name, meta.HabitsToArchive, models.FreeHabitLimit)
		} else {
			body = fmt.Sprintf("Hi %s,<br><br>Your subscription has expired and your account is back on the free plan.", user.Name)
		}
	default:
		subject = "HabitFlow Notification"
		body = fmt.Sprintf("Hi %s,<br><br>There is an update on your subscription.", user.Name)
	}
	return subject, body
}

// LogNotifier discards notifications after logging them. Used when no
// mail transport is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(userID uint, kind Kind, meta Meta) {
	log.Infof("[Notifier] user=%d kind=%s tier=%s amount=%.2f", userID, kind, meta.Tier, meta.Amount)
}
