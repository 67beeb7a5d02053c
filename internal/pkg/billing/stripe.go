package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/habitflow/habitflow/app/models"
)

// StripeSignatureHeader carries a timestamped HMAC:
// "t=<unix>,v1=<hex hmac-sha256(t + "." + body)>".
const (
	StripeSignatureHeader  = "Stripe-Signature"
	stripeSignatureMaxSkew = 5 * time.Minute
)

// StripeAdapter handles the card-based recurring billing provider.
type StripeAdapter struct {
	// Now is overridable for signature-tolerance tests.
	Now func() time.Time
}

func (a *StripeAdapter) Provider() string { return models.ProviderStripe }

func (a *StripeAdapter) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *StripeAdapter) Verify(body []byte, signatureHeader, secret string) error {
	var ts, v1 string
	for _, part := range strings.Split(signatureHeader, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			v1 = v
		}
	}
	if ts == "" || v1 == "" || strings.TrimSpace(secret) == "" {
		return ErrSignatureInvalid
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrSignatureInvalid
	}
	if skew := a.now().Sub(time.Unix(unix, 0)); skew > stripeSignatureMaxSkew || skew < -stripeSignatureMaxSkew {
		return ErrSignatureInvalid
	}

	signed := ts + "." + string(body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signed))
	expected := mac.Sum(nil)

	decoded, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(v1)))
	if err != nil || !hmac.Equal(expected, decoded) {
		return ErrSignatureInvalid
	}
	return nil
}

// stripeEnvelope is the subset of the provider payload the adapter reads.
// Payloads are duck-typed per event family; data.object carries whichever
// of session/invoice/subscription/charge the event describes.
type stripeEnvelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object struct {
			ID                string            `json:"id"`
			Customer          string            `json:"customer"`
			Subscription      string            `json:"subscription"`
			PaymentIntent     string            `json:"payment_intent"`
			Status            string            `json:"status"`
			AmountTotal       int64             `json:"amount_total"`
			AmountPaid        int64             `json:"amount_paid"`
			AmountDue         int64             `json:"amount_due"`
			AmountRefunded    int64             `json:"amount_refunded"`
			Currency          string            `json:"currency"`
			CurrentPeriodEnd  int64             `json:"current_period_end"`
			CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
			Metadata          map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

func (a *StripeAdapter) Parse(body []byte) (*CanonicalEvent, error) {
	var raw stripeEnvelope
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(raw.ID) == "" || strings.TrimSpace(raw.Type) == "" {
		return nil, fmt.Errorf("%w: missing event id or type", ErrMalformedPayload)
	}

	obj := raw.Data.Object
	ev := &CanonicalEvent{
		Provider:               models.ProviderStripe,
		ProviderEventID:        raw.ID,
		ProviderSubscriptionID: obj.Subscription,
		ProviderTransactionID:  obj.PaymentIntent,
		ProviderCustomerID:     obj.Customer,
		UserRef:                obj.Metadata["user_id"],
		Tier:                   obj.Metadata["tier"],
		Currency:               strings.ToUpper(obj.Currency),
		OccurredAt:             time.Unix(raw.Created, 0).UTC(),
	}

	switch raw.Type {
	case "checkout.session.completed":
		ev.Type = EventCheckoutCompleted
		ev.Amount = centsToAmount(obj.AmountTotal)
		if ev.ProviderSubscriptionID == "" {
			// One-time mode sessions have no subscription object; the
			// session id is the lineage reference.
			ev.ProviderSubscriptionID = obj.ID
		}
		if ev.ProviderTransactionID == "" {
			ev.ProviderTransactionID = obj.ID
		}
	case "invoice.payment_succeeded":
		ev.Type = EventPaymentSucceeded
		ev.Amount = centsToAmount(obj.AmountPaid)
	case "invoice.payment_failed":
		ev.Type = EventPaymentFailed
		ev.Amount = centsToAmount(obj.AmountDue)
		if ev.ProviderTransactionID == "" {
			ev.ProviderTransactionID = "failed_" + obj.ID
		}
	case "customer.subscription.updated":
		ev.ProviderSubscriptionID = obj.ID
		if obj.CancelAtPeriodEnd || obj.Status == "canceled" {
			ev.Type = EventSubscriptionCancelled
		} else if obj.Status == "past_due" || obj.Status == "unpaid" {
			ev.Type = EventSubscriptionSuspended
		} else {
			ev.Type = EventSubscriptionUpdated
		}
		if obj.CurrentPeriodEnd > 0 {
			end := time.Unix(obj.CurrentPeriodEnd, 0).UTC()
			ev.PeriodEnd = &end
		}
	case "customer.subscription.deleted":
		ev.Type = EventSubscriptionCancelled
		ev.ProviderSubscriptionID = obj.ID
		if obj.CurrentPeriodEnd > 0 {
			end := time.Unix(obj.CurrentPeriodEnd, 0).UTC()
			ev.PeriodEnd = &end
		}
	case "charge.refunded":
		ev.Type = EventPaymentRefunded
		ev.Amount = centsToAmount(obj.AmountRefunded)
		if ev.ProviderTransactionID == "" {
			ev.ProviderTransactionID = obj.ID
		}
	default:
		return nil, fmt.Errorf("%w: stripe %q", ErrUnsupportedEventType, raw.Type)
	}

	return ev, nil
}

func centsToAmount(cents int64) float64 {
	return float64(cents) / 100.0
}
