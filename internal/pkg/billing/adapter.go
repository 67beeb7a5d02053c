package billing

import (
	"strings"

	"github.com/habitflow/habitflow/app/models"
)

// Adapter is the per-provider ingress boundary: it authenticates a raw
// webhook delivery and normalizes the provider-native payload into a
// CanonicalEvent.
type Adapter interface {
	Provider() string

	// Verify authenticates the raw body against the provider signature
	// header. Returns ErrSignatureInvalid on mismatch.
	Verify(body []byte, signatureHeader, secret string) error

	// Parse normalizes the payload. Returns ErrMalformedPayload for
	// undecodable input and ErrUnsupportedEventType for event types
	// absent from the provider's allow-list.
	Parse(body []byte) (*CanonicalEvent, error)
}

// AdapterFor returns the ingress adapter for a provider path segment, or
// ErrUnknownProvider.
func AdapterFor(provider string) (Adapter, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case models.ProviderStripe:
		return &StripeAdapter{}, nil
	case models.ProviderPaypal:
		return &PaypalAdapter{}, nil
	case models.ProviderCoinbase:
		return &CoinbaseAdapter{}, nil
	default:
		return nil, ErrUnknownProvider
	}
}
