package controllers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/habitflow/habitflow/app/models"
	"github.com/habitflow/habitflow/internal/pkg/billing"
	"github.com/habitflow/habitflow/internal/pkg/database"
	"github.com/habitflow/habitflow/internal/pkg/entitlements"
	"github.com/habitflow/habitflow/internal/pkg/session"
	"github.com/habitflow/habitflow/internal/pkg/usercontext"
)

func HandlePricing(c *fiber.Ctx) error {
	var currentTier string
	if userCtx := usercontext.GetUserContext(c); userCtx.IsLoggedIn {
		var user models.User
		if err := database.GetDB().First(&user, userCtx.UserID).Error; err == nil {
			currentTier = user.Tier
		}
	}

	return render(c, "subscription/pricing", fiber.Map{
		"Title":       "Pricing",
		"Prices":      billing.Prices(),
		"CurrentTier": currentTier,
		"FreeLimit":   models.FreeHabitLimit,
	})
}

// HandleCheckout starts a hosted checkout with the chosen provider and
// redirects the user there. Entitlement is granted by webhook only, never
// by the redirect back.
func HandleCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var user models.User
	if err := database.GetDB().First(&user, userCtx.UserID).Error; err != nil {
		return c.Redirect("/login", fiber.StatusSeeOther)
	}

	tier := entitlements.NormalizeTier(c.FormValue("tier"))
	price, ok := billing.PriceFor(tier)
	if !ok {
		return flash.WithError(c, fiber.Map{
			"type":    "error",
			"message": "Unknown plan selected.",
		}).Redirect("/pricing")
	}

	client, err := billing.CheckoutClientFor(c.FormValue("provider"))
	if err != nil {
		return flash.WithError(c, fiber.Map{
			"type":    "error",
			"message": "Unknown payment provider selected.",
		}).Redirect("/pricing")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	checkout, err := client.CreateCheckout(ctx, &user, price)
	if err != nil {
		return flash.WithError(c, fiber.Map{
			"type":    "error",
			"message": "Could not start the checkout. Please try again.",
		}).Redirect("/pricing")
	}

	return c.Redirect(checkout.RedirectURL, fiber.StatusSeeOther)
}

// HandleCheckoutSuccess is the return page after the provider's hosted
// checkout. Payment confirmation arrives asynchronously.
func HandleCheckoutSuccess(c *fiber.Ctx) error {
	// Drop the cached plan so the next request re-reads the tier once the
	// webhook has landed.
	_ = session.SetSessionValue(c, "user_plan", "")

	return render(c, "subscription/success", fiber.Map{
		"Title": "Almost there",
	})
}

func HandleSubscriptionManage(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	db := database.GetDB()

	var user models.User
	if err := db.First(&user, userCtx.UserID).Error; err != nil {
		return c.Redirect("/login", fiber.StatusSeeOther)
	}

	repo := billing.NewRepository(db)
	var current *models.Subscription
	if sub, err := repo.CurrentSubscription(user.ID); err == nil {
		current = sub
	} else if !billing.IsNotFound(err) {
		return fiber.NewError(fiber.StatusInternalServerError, "could not load subscription")
	}

	return render(c, "subscription/manage", fiber.Map{
		"Title":           "Manage Subscription",
		"User":            user,
		"Subscription":    current,
		"PaymentFailures": user.PaymentFailures,
	})
}

func HandleBillingHistory(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var payments []models.Payment
	err := database.GetDB().
		Where("user_id = ?", userCtx.UserID).
		Order("received_at desc").
		Limit(100).
		Find(&payments).Error
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "could not load billing history")
	}

	return render(c, "subscription/history", fiber.Map{
		"Title":    "Billing History",
		"Payments": payments,
	})
}

// HandleSubscriptionCancel flags the current subscription for
// cancellation at period end. Access is retained until then.
func HandleSubscriptionCancel(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	err := billingService().CancelAtPeriodEnd(c.Context(), userCtx.UserID)
	switch {
	case err == nil:
		return flash.WithSuccess(c, fiber.Map{
			"type":    "success",
			"message": "Subscription cancelled. You keep full access until the end of the paid period.",
		}).Redirect("/subscription/manage")
	case errors.Is(err, billing.ErrNotCancellable):
		return flash.WithError(c, fiber.Map{
			"type":    "error",
			"message": "Lifetime access does not renew, so there is nothing to cancel.",
		}).Redirect("/subscription/manage")
	case billing.IsNotFound(err):
		return flash.WithError(c, fiber.Map{
			"type":    "error",
			"message": "You have no active subscription.",
		}).Redirect("/pricing")
	default:
		return flash.WithError(c, fiber.Map{
			"type":    "error",
			"message": fmt.Sprintf("something went wrong: %s", err),
		}).Redirect("/subscription/manage")
	}
}
