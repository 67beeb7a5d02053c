package billing

import (
	"errors"
	"testing"

	"github.com/habitflow/habitflow/internal/pkg/entitlements"
)

func TestPriceFor(t *testing.T) {
	tests := []struct {
		tier      entitlements.Tier
		wantOK    bool
		wantPrice float64
	}{
		{tier: entitlements.TierMonthly, wantOK: true, wantPrice: PriceMonthly},
		{tier: entitlements.TierAnnual, wantOK: true, wantPrice: PriceAnnual},
		{tier: entitlements.TierLifetime, wantOK: true, wantPrice: PriceLifetime},
		{tier: entitlements.TierFree, wantOK: false},
	}

	for _, tt := range tests {
		p, ok := PriceFor(tt.tier)
		if ok != tt.wantOK {
			t.Fatalf("PriceFor(%q) ok = %t, want %t", tt.tier, ok, tt.wantOK)
		}
		if ok && p.Amount != tt.wantPrice {
			t.Fatalf("PriceFor(%q) amount = %v, want %v", tt.tier, p.Amount, tt.wantPrice)
		}
	}
}

func TestPricesRecurringFlags(t *testing.T) {
	for _, p := range Prices() {
		wantRecurring := p.Tier != entitlements.TierLifetime
		if p.Recurring != wantRecurring {
			t.Fatalf("%s: recurring = %t, want %t", p.Tier, p.Recurring, wantRecurring)
		}
		if p.Currency != "USD" {
			t.Fatalf("%s: currency = %q", p.Tier, p.Currency)
		}
	}
}

func TestTierForAmount(t *testing.T) {
	tests := []struct {
		amount float64
		want   entitlements.Tier
	}{
		{amount: 2.99, want: entitlements.TierMonthly},
		{amount: 2.990000001, want: entitlements.TierMonthly},
		{amount: 19.99, want: entitlements.TierAnnual},
		{amount: 59.99, want: entitlements.TierLifetime},
		{amount: 0, want: entitlements.TierFree},
		{amount: 3.50, want: entitlements.TierFree},
	}

	for _, tt := range tests {
		if got := tierForAmount(tt.amount); got != tt.want {
			t.Fatalf("tierForAmount(%v) = %q, want %q", tt.amount, got, tt.want)
		}
	}
}

func TestCheckoutClientFor(t *testing.T) {
	for _, provider := range []string{"stripe", "paypal", "coinbase"} {
		client, err := CheckoutClientFor(provider)
		if err != nil {
			t.Fatalf("CheckoutClientFor(%q): %v", provider, err)
		}
		if client.Provider() != provider {
			t.Fatalf("client for %q reports provider %q", provider, client.Provider())
		}
	}
	if _, err := CheckoutClientFor("patreon"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}
