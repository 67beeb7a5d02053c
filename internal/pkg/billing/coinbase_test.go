package billing

import (
	"errors"
	"fmt"
	"testing"
)

func TestCoinbaseVerify(t *testing.T) {
	body := []byte(`{"id":"cbe-1"}`)
	secret := "cc-secret"

	if err := (&CoinbaseAdapter{}).Verify(body, signHexHMACSHA256(body, secret), secret); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
	if err := (&CoinbaseAdapter{}).Verify(body, signHexHMACSHA256(body, "wrong"), secret); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestCoinbaseParseChargeEvents(t *testing.T) {
	tmpl := `{
		"id": "cbe-%d",
		"type": %q,
		"created_at": "2026-03-01T10:00:00Z",
		"data": {
			"id": "charge-uuid",
			"code": "CHARGE1",
			"metadata": { "user_id": "12", "tier": "lifetime" },
			"pricing": { "local": { "amount": "59.99", "currency": "usd" } }
		}
	}`

	tests := []struct {
		chargeType string
		want       EventType
	}{
		{chargeType: "charge:pending", want: EventChargePending},
		{chargeType: "charge:confirmed", want: EventChargeConfirmed},
		{chargeType: "charge:failed", want: EventChargeFailed},
	}

	for i, tt := range tests {
		ev, err := (&CoinbaseAdapter{}).Parse([]byte(fmt.Sprintf(tmpl, i, tt.chargeType)))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.chargeType, err)
		}
		if ev.Type != tt.want {
			t.Fatalf("%s: got %q, want %q", tt.chargeType, ev.Type, tt.want)
		}
		if ev.ProviderTransactionID != "CHARGE1" {
			t.Fatalf("%s: expected charge code as transaction id, got %q", tt.chargeType, ev.ProviderTransactionID)
		}
		if ev.UserRef != "12" || ev.Tier != "lifetime" {
			t.Fatalf("%s: unexpected metadata: %+v", tt.chargeType, ev)
		}
		if ev.Amount != 59.99 || ev.Currency != "USD" {
			t.Fatalf("%s: unexpected amount: %v %s", tt.chargeType, ev.Amount, ev.Currency)
		}
	}
}

func TestCoinbaseParseErrors(t *testing.T) {
	a := &CoinbaseAdapter{}

	if _, err := a.Parse([]byte(`[]`)); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
	noCode := []byte(`{"id":"cbe-1","type":"charge:confirmed","data":{}}`)
	if _, err := a.Parse(noCode); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload for missing charge code, got %v", err)
	}
	created := []byte(`{"id":"cbe-1","type":"charge:created","data":{"code":"C1"}}`)
	if _, err := a.Parse(created); !errors.Is(err, ErrUnsupportedEventType) {
		t.Fatalf("expected ErrUnsupportedEventType for charge:created, got %v", err)
	}
}

func TestAdapterFor(t *testing.T) {
	for _, provider := range []string{"stripe", "paypal", "coinbase", " Stripe "} {
		if _, err := AdapterFor(provider); err != nil {
			t.Fatalf("AdapterFor(%q): %v", provider, err)
		}
	}
	if _, err := AdapterFor("patreon"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}
