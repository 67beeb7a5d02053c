package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"
)

func stripeSign(t *testing.T, body []byte, secret string, ts time.Time) string {
	t.Helper()
	unix := fmt.Sprintf("%d", ts.Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(unix + "." + string(body)))
	return fmt.Sprintf("t=%s,v1=%s", unix, hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeVerify(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	secret := "whsec_test"
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := &StripeAdapter{Now: func() time.Time { return now }}

	if err := a.Verify(body, stripeSign(t, body, secret, now), secret); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
	if err := a.Verify(body, stripeSign(t, body, "other-secret", now), secret); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid for wrong secret, got %v", err)
	}
	if err := a.Verify([]byte(`{"id":"evt_tampered"}`), stripeSign(t, body, secret, now), secret); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid for tampered body, got %v", err)
	}
	if err := a.Verify(body, stripeSign(t, body, secret, now.Add(-10*time.Minute)), secret); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid for stale timestamp, got %v", err)
	}
	if err := a.Verify(body, "garbage", secret); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid for malformed header, got %v", err)
	}
	if err := a.Verify(body, stripeSign(t, body, secret, now), ""); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid for empty secret, got %v", err)
	}
}

func TestStripeParseCheckoutCompleted(t *testing.T) {
	raw := []byte(`{
		"id": "evt_100",
		"type": "checkout.session.completed",
		"created": 1767225600,
		"data": { "object": {
			"id": "cs_1",
			"customer": "cus_9",
			"subscription": "sub_42",
			"payment_intent": "pi_7",
			"amount_total": 299,
			"currency": "usd",
			"metadata": { "user_id": "12", "tier": "monthly" }
		}}
	}`)

	a := &StripeAdapter{}
	ev, err := a.Parse(raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if ev.Type != EventCheckoutCompleted {
		t.Fatalf("expected checkout_completed, got %q", ev.Type)
	}
	if ev.ProviderEventID != "evt_100" || ev.ProviderSubscriptionID != "sub_42" || ev.ProviderTransactionID != "pi_7" {
		t.Fatalf("unexpected ids: %+v", ev)
	}
	if ev.UserRef != "12" || ev.Tier != "monthly" {
		t.Fatalf("unexpected metadata: user_ref=%q tier=%q", ev.UserRef, ev.Tier)
	}
	if ev.Amount != 2.99 || ev.Currency != "USD" {
		t.Fatalf("unexpected amount: %v %s", ev.Amount, ev.Currency)
	}
}

func TestStripeParseCheckoutOneTimeFallsBackToSessionID(t *testing.T) {
	raw := []byte(`{
		"id": "evt_101",
		"type": "checkout.session.completed",
		"created": 1767225600,
		"data": { "object": {
			"id": "cs_lifetime",
			"customer": "cus_9",
			"amount_total": 5999,
			"currency": "usd",
			"metadata": { "user_id": "12", "tier": "lifetime" }
		}}
	}`)

	ev, err := (&StripeAdapter{}).Parse(raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if ev.ProviderSubscriptionID != "cs_lifetime" || ev.ProviderTransactionID != "cs_lifetime" {
		t.Fatalf("expected session id fallback, got %+v", ev)
	}
}

func TestStripeParseSubscriptionUpdatedVariants(t *testing.T) {
	tmpl := `{
		"id": "evt_%d",
		"type": "customer.subscription.updated",
		"created": 1767225600,
		"data": { "object": {
			"id": "sub_42",
			"status": %q,
			"cancel_at_period_end": %t,
			"current_period_end": 1769904000
		}}
	}`

	tests := []struct {
		status   string
		cancelAt bool
		want     EventType
	}{
		{status: "active", cancelAt: false, want: EventSubscriptionUpdated},
		{status: "active", cancelAt: true, want: EventSubscriptionCancelled},
		{status: "canceled", cancelAt: false, want: EventSubscriptionCancelled},
		{status: "past_due", cancelAt: false, want: EventSubscriptionSuspended},
		{status: "unpaid", cancelAt: false, want: EventSubscriptionSuspended},
	}

	for i, tt := range tests {
		ev, err := (&StripeAdapter{}).Parse([]byte(fmt.Sprintf(tmpl, i, tt.status, tt.cancelAt)))
		if err != nil {
			t.Fatalf("case %d: unexpected error: %v", i, err)
		}
		if ev.Type != tt.want {
			t.Fatalf("case %d: status=%q cancel=%t: got %q, want %q", i, tt.status, tt.cancelAt, ev.Type, tt.want)
		}
		if ev.PeriodEnd == nil || ev.PeriodEnd.Unix() != 1769904000 {
			t.Fatalf("case %d: expected period end from payload, got %v", i, ev.PeriodEnd)
		}
	}
}

func TestStripeParseErrors(t *testing.T) {
	a := &StripeAdapter{}

	if _, err := a.Parse([]byte(`not json`)); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
	if _, err := a.Parse([]byte(`{"type":"invoice.payment_succeeded"}`)); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload for missing id, got %v", err)
	}
	if _, err := a.Parse([]byte(`{"id":"evt_1","type":"payout.paid"}`)); !errors.Is(err, ErrUnsupportedEventType) {
		t.Fatalf("expected ErrUnsupportedEventType, got %v", err)
	}
}
