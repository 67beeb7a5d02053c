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

// CoinbaseSignatureHeader carries a hex HMAC-SHA256 of the raw body.
const CoinbaseSignatureHeader = "X-CC-Webhook-Signature"

// CoinbaseAdapter handles the one-time cryptocurrency settlement provider.
// Charges confirm asynchronously on-chain; only charge:confirmed grants
// entitlement. Underpaid charges arrive as charge:failed — there is no
// partial credit. Overpaid charges arrive as charge:confirmed and the
// excess is not tracked.
type CoinbaseAdapter struct{}

func (a *CoinbaseAdapter) Provider() string { return models.ProviderCoinbase }

func (a *CoinbaseAdapter) Verify(body []byte, signatureHeader, secret string) error {
	if !verifyHexHMAC(body, signatureHeader, secret, sha256.New) {
		return ErrSignatureInvalid
	}
	return nil
}

type coinbaseEnvelope struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	CreatedAt string `json:"created_at"`
	Data      struct {
		ID       string            `json:"id"`
		Code     string            `json:"code"`
		Metadata map[string]string `json:"metadata"`
		Pricing  struct {
			Local struct {
				Amount   string `json:"amount"`
				Currency string `json:"currency"`
			} `json:"local"`
		} `json:"pricing"`
	} `json:"data"`
}

func (a *CoinbaseAdapter) Parse(body []byte) (*CanonicalEvent, error) {
	var raw coinbaseEnvelope
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(raw.ID) == "" || strings.TrimSpace(raw.Type) == "" {
		return nil, fmt.Errorf("%w: missing event id or type", ErrMalformedPayload)
	}
	if strings.TrimSpace(raw.Data.Code) == "" {
		return nil, fmt.Errorf("%w: missing charge code", ErrMalformedPayload)
	}

	occurred := time.Now().UTC()
	if t, err := time.Parse(time.RFC3339, raw.CreatedAt); err == nil {
		occurred = t.UTC()
	}

	ev := &CanonicalEvent{
		Provider:              models.ProviderCoinbase,
		ProviderEventID:       raw.ID,
		ProviderTransactionID: raw.Data.Code,
		UserRef:               raw.Data.Metadata["user_id"],
		Tier:                  raw.Data.Metadata["tier"],
		Currency:              strings.ToUpper(raw.Data.Pricing.Local.Currency),
		OccurredAt:            occurred,
	}
	if v := raw.Data.Pricing.Local.Amount; v != "" {
		amount, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad amount %q", ErrMalformedPayload, v)
		}
		ev.Amount = amount
	}

	switch raw.Type {
	case "charge:pending":
		ev.Type = EventChargePending
	case "charge:confirmed":
		ev.Type = EventChargeConfirmed
	case "charge:failed":
		ev.Type = EventChargeFailed
	default:
		return nil, fmt.Errorf("%w: coinbase %q", ErrUnsupportedEventType, raw.Type)
	}

	return ev, nil
}
