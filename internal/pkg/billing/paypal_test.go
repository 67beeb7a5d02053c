package billing

import (
	"errors"
	"fmt"
	"testing"
)

func TestPaypalVerify(t *testing.T) {
	body := []byte(`{"id":"WH-1"}`)
	secret := "paypal-secret"

	if err := (&PaypalAdapter{}).Verify(body, signHexHMACSHA256(body, secret), secret); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
	if err := (&PaypalAdapter{}).Verify(body, "deadbeef", secret); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
	if err := (&PaypalAdapter{}).Verify(body, signHexHMACSHA256(body, secret), ""); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid for empty secret, got %v", err)
	}
}

func TestPaypalParseSubscriptionActivated(t *testing.T) {
	raw := []byte(`{
		"id": "WH-55",
		"event_type": "BILLING.SUBSCRIPTION.ACTIVATED",
		"create_time": "2026-03-01T10:00:00Z",
		"resource": {
			"id": "I-SUB9",
			"custom_id": "7:annual",
			"subscriber": { "payer_id": "PAYER77" },
			"billing_info": { "next_billing_time": "2027-03-01T10:00:00Z" }
		}
	}`)

	ev, err := (&PaypalAdapter{}).Parse(raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if ev.Type != EventSubscriptionActivated {
		t.Fatalf("expected subscription_activated, got %q", ev.Type)
	}
	if ev.ProviderSubscriptionID != "I-SUB9" || ev.ProviderCustomerID != "PAYER77" {
		t.Fatalf("unexpected ids: %+v", ev)
	}
	if ev.UserRef != "7" || ev.Tier != "annual" {
		t.Fatalf("expected custom_id split into user and tier, got user_ref=%q tier=%q", ev.UserRef, ev.Tier)
	}
	if ev.PeriodEnd == nil || ev.PeriodEnd.Year() != 2027 {
		t.Fatalf("expected next billing time as period end, got %v", ev.PeriodEnd)
	}
}

func TestPaypalParseSaleEvents(t *testing.T) {
	tmpl := `{
		"id": "WH-%d",
		"event_type": %q,
		"create_time": "2026-03-01T10:00:00Z",
		"resource": {
			"id": "SALE-1",
			"billing_agreement_id": "I-SUB9",
			"amount": { "total": "2.99", "currency": "usd" }
		}
	}`

	tests := []struct {
		eventType string
		want      EventType
	}{
		{eventType: "PAYMENT.SALE.COMPLETED", want: EventPaymentSucceeded},
		{eventType: "PAYMENT.SALE.DENIED", want: EventPaymentFailed},
		{eventType: "PAYMENT.SALE.REFUNDED", want: EventPaymentRefunded},
	}

	for i, tt := range tests {
		ev, err := (&PaypalAdapter{}).Parse([]byte(fmt.Sprintf(tmpl, i, tt.eventType)))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.eventType, err)
		}
		if ev.Type != tt.want {
			t.Fatalf("%s: got %q, want %q", tt.eventType, ev.Type, tt.want)
		}
		if ev.ProviderTransactionID != "SALE-1" || ev.ProviderSubscriptionID != "I-SUB9" {
			t.Fatalf("%s: unexpected ids: %+v", tt.eventType, ev)
		}
		if ev.Amount != 2.99 || ev.Currency != "USD" {
			t.Fatalf("%s: unexpected amount: %v %s", tt.eventType, ev.Amount, ev.Currency)
		}
	}
}

func TestPaypalParseErrors(t *testing.T) {
	a := &PaypalAdapter{}

	if _, err := a.Parse([]byte(`{`)); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
	if _, err := a.Parse([]byte(`{"id":"WH-1","event_type":"BILLING.PLAN.CREATED"}`)); !errors.Is(err, ErrUnsupportedEventType) {
		t.Fatalf("expected ErrUnsupportedEventType, got %v", err)
	}
	bad := []byte(`{"id":"WH-1","event_type":"PAYMENT.SALE.COMPLETED","resource":{"amount":{"total":"abc"}}}`)
	if _, err := a.Parse(bad); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload for bad amount, got %v", err)
	}
}

func TestSplitCheckoutRef(t *testing.T) {
	tests := []struct {
		in       string
		wantUser string
		wantTier string
	}{
		{in: "7:annual", wantUser: "7", wantTier: "annual"},
		{in: "12:monthly", wantUser: "12", wantTier: "monthly"},
		{in: "42", wantUser: "42", wantTier: ""},
		{in: "", wantUser: "", wantTier: ""},
	}

	for _, tt := range tests {
		user, tier := splitCheckoutRef(tt.in)
		if user != tt.wantUser || tier != tt.wantTier {
			t.Fatalf("splitCheckoutRef(%q) = (%q, %q), want (%q, %q)", tt.in, user, tier, tt.wantUser, tt.wantTier)
		}
	}
}
