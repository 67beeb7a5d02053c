package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/habitflow/habitflow/app/models"
	"github.com/habitflow/habitflow/internal/pkg/billing"
	"github.com/habitflow/habitflow/internal/pkg/env"
)

// HandleProviderWebhook ingests POST /webhooks/:provider deliveries.
// Anything accepted into the ledger answers 200 so the provider stops
// redelivering; permanent rejections answer 4xx, transient store failures
// 500 to trigger a retry.
func HandleProviderWebhook(c *fiber.Ctx) error {
	provider := strings.ToLower(strings.TrimSpace(c.Params("provider")))
	rawBody := append([]byte(nil), c.BodyRaw()...)

	sigHeader, secret, ok := webhookAuthFor(c, provider)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown_provider"})
	}

	outcome, err := billingService().ProcessWebhook(provider, rawBody, sigHeader, secret)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrUnknownProvider):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown_provider"})
		case errors.Is(err, billing.ErrSignatureInvalid):
			log.Warnf("[Webhook] %s delivery rejected: invalid signature", provider)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
		case errors.Is(err, billing.ErrMalformedPayload):
			log.Warnf("[Webhook] %s delivery rejected: malformed payload", provider)
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_payload"})
		case errors.Is(err, billing.ErrUnsupportedEventType):
			// Allow-list miss: acknowledge so the provider stops resending.
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
		default:
			log.Errorf("[Webhook] %s delivery failed: %v", provider, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_processing_failed"})
		}
	}

	resp := fiber.Map{"ok": true}
	switch outcome {
	case billing.OutcomeDuplicate:
		resp["duplicate"] = true
	case billing.OutcomeStale, billing.OutcomeIgnored, billing.OutcomeDeadLettered:
		resp["ignored"] = true
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// webhookAuthFor returns the raw signature header and shared secret for a
// provider, or ok=false for providers we do not serve.
func webhookAuthFor(c *fiber.Ctx, provider string) (sigHeader, secret string, ok bool) {
	switch provider {
	case models.ProviderStripe:
		return c.Get(billing.StripeSignatureHeader), env.GetEnv("STRIPE_WEBHOOK_SECRET", ""), true
	case models.ProviderPaypal:
		return c.Get(billing.PaypalSignatureHeader), env.GetEnv("PAYPAL_WEBHOOK_SECRET", ""), true
	case models.ProviderCoinbase:
		return c.Get(billing.CoinbaseSignatureHeader), env.GetEnv("COINBASE_WEBHOOK_SECRET", ""), true
	default:
		return "", "", false
	}
}
