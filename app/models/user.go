package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	ROLE_USER  = "user"
	ROLE_ADMIN = "admin"
)

// Subscription tiers. Free accounts are capped at FreeHabitLimit habits;
// every paid tier removes the cap.
const (
	TierFree     = "free"
	TierMonthly  = "monthly"
	TierAnnual   = "annual"
	TierLifetime = "lifetime"
)

// Entitlement lifecycle status carried on the user. A free user is
// "active" with no subscription rows.
const (
	SubStatusActive                 = "active"
	SubStatusSuspended              = "suspended"
	SubStatusCancelledPendingExpiry = "cancelled_pending_expiry"
	SubStatusExpired                = "expired"
)

const (
	FreeHabitLimit      = 3
	UnlimitedHabitLimit = 999999
)

type User struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	Name               string         `gorm:"type:varchar(150)" json:"name" validate:"required,min=3,max=150"`
	Email              string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,min=5,max=200"`
	Password           string         `gorm:"type:text" json:"-" validate:"required,min=6"`
	Role               string         `gorm:"type:varchar(50);default:'user'" json:"role" validate:"oneof=user admin"`
	Tier               string         `gorm:"type:varchar(20);not null;default:'free';index" json:"tier"`
	SubscriptionStatus string         `gorm:"type:varchar(32);not null;default:'active';index" json:"subscription_status"`
	HabitLimit         int            `gorm:"not null;default:3" json:"habit_limit"`
	StripeCustomerID   string         `gorm:"type:varchar(191);default:'';index" json:"-"`
	PaypalCustomerID   string         `gorm:"type:varchar(191);default:'';index" json:"-"`
	CoinbaseCustomerID string         `gorm:"type:varchar(191);default:'';index" json:"-"`
	PaymentFailures    int            `gorm:"not null;default:0" json:"-"`
	LastPaymentDate    *time.Time     `gorm:"type:timestamp;default:null" json:"-"`
	LastLoginAt        *time.Time     `gorm:"type:timestamp;default:null" json:"last_login_at"`
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// IsPaid reports whether the user currently holds a paid tier.
func (u *User) IsPaid() bool {
	return u.Tier != TierFree
}

func CreateUser(username string, email string, password string) (*User, error) {
	pw, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &User{
		Name:               username,
		Email:              email,
		Password:           pw,
		Role:               ROLE_USER,
		Tier:               TierFree,
		SubscriptionStatus: SubStatusActive,
		HabitLimit:         FreeHabitLimit,
	}

	err = u.Validate()
	if err != nil {
		return nil, err
	}

	return u, nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckPasswordHash compares the given password with the stored hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))

	return err == nil
}
