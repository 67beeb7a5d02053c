package billing

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/habitflow/habitflow/app/models"
)

// PaypalSignatureHeader carries a hex HMAC-SHA256 of the raw body.
const PaypalSignatureHeader = "Paypal-Transmission-Sig"

// PaypalAdapter handles the PayPal-style recurring billing provider.
type PaypalAdapter struct{}

func (a *PaypalAdapter) Provider() string { return models.ProviderPaypal }

func (a *PaypalAdapter) Verify(body []byte, signatureHeader, secret string) error {
	if !verifyHexHMAC(body, signatureHeader, secret, sha256.New) {
		return ErrSignatureInvalid
	}
	return nil
}

type paypalEnvelope struct {
	ID         string `json:"id"`
	EventType  string `json:"event_type"`
	CreateTime string `json:"create_time"`
	Resource   struct {
		ID                 string `json:"id"`
		CustomID           string `json:"custom_id"`
		BillingAgreementID string `json:"billing_agreement_id"`
		Subscriber         struct {
			PayerID string `json:"payer_id"`
		} `json:"subscriber"`
		Amount struct {
			Total    string `json:"total"`
			Currency string `json:"currency"`
		} `json:"amount"`
		BillingInfo struct {
			NextBillingTime string `json:"next_billing_time"`
		} `json:"billing_info"`
	} `json:"resource"`
}

func (a *PaypalAdapter) Parse(body []byte) (*CanonicalEvent, error) {
	var raw paypalEnvelope
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(raw.ID) == "" || strings.TrimSpace(raw.EventType) == "" {
		return nil, fmt.Errorf("%w: missing event id or type", ErrMalformedPayload)
	}

	occurred := time.Now().UTC()
	if t, err := time.Parse(time.RFC3339, raw.CreateTime); err == nil {
		occurred = t.UTC()
	}

	userRef, tier := splitCheckoutRef(raw.Resource.CustomID)

	ev := &CanonicalEvent{
		Provider:           models.ProviderPaypal,
		ProviderEventID:    raw.ID,
		ProviderCustomerID: raw.Resource.Subscriber.PayerID,
		UserRef:            userRef,
		Tier:               tier,
		Currency:           strings.ToUpper(raw.Resource.Amount.Currency),
		OccurredAt:         occurred,
	}
	if raw.Resource.Amount.Total != "" {
		amount, err := strconv.ParseFloat(raw.Resource.Amount.Total, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad amount %q", ErrMalformedPayload, raw.Resource.Amount.Total)
		}
		ev.Amount = amount
	}
	if t, err := time.Parse(time.RFC3339, raw.Resource.BillingInfo.NextBillingTime); err == nil {
		next := t.UTC()
		ev.PeriodEnd = &next
	}

	switch raw.EventType {
	case "BILLING.SUBSCRIPTION.ACTIVATED":
		ev.Type = EventSubscriptionActivated
		ev.ProviderSubscriptionID = raw.Resource.ID
	case "BILLING.SUBSCRIPTION.UPDATED":
		ev.Type = EventSubscriptionUpdated
		ev.ProviderSubscriptionID = raw.Resource.ID
	case "BILLING.SUBSCRIPTION.CANCELLED":
		ev.Type = EventSubscriptionCancelled
		ev.ProviderSubscriptionID = raw.Resource.ID
	case "BILLING.SUBSCRIPTION.SUSPENDED":
		ev.Type = EventSubscriptionSuspended
		ev.ProviderSubscriptionID = raw.Resource.ID
	case "PAYMENT.SALE.COMPLETED":
		ev.Type = EventPaymentSucceeded
		ev.ProviderTransactionID = raw.Resource.ID
		ev.ProviderSubscriptionID = raw.Resource.BillingAgreementID
	case "PAYMENT.SALE.DENIED":
		ev.Type = EventPaymentFailed
		ev.ProviderTransactionID = raw.Resource.ID
		ev.ProviderSubscriptionID = raw.Resource.BillingAgreementID
	case "PAYMENT.SALE.REFUNDED":
		ev.Type = EventPaymentRefunded
		ev.ProviderTransactionID = raw.Resource.ID
		ev.ProviderSubscriptionID = raw.Resource.BillingAgreementID
	default:
		return nil, fmt.Errorf("%w: paypal %q", ErrUnsupportedEventType, raw.EventType)
	}

	return ev, nil
}

// splitCheckoutRef decodes the "<user_id>:<tier>" reference embedded as
// checkout metadata (see checkout.go). Tier may be absent on payment events.
func splitCheckoutRef(ref string) (userRef, tier string) {
	userRef, tier, _ = strings.Cut(strings.TrimSpace(ref), ":")
	return userRef, tier
}
