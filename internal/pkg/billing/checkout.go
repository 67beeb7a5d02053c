package billing

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/habitflow/habitflow/app/models"
	"github.com/habitflow/habitflow/internal/pkg/entitlements"
	"github.com/habitflow/habitflow/internal/pkg/env"
)

// Price book. Monthly and annual renew; lifetime is a one-time charge.
const (
	PriceMonthly  = 2.99
	PriceAnnual   = 19.99
	PriceLifetime = 59.99
)

// Price describes one purchasable plan.
type Price struct {
	Tier     entitlements.Tier
	Amount   float64
	Currency string
	// Recurring is false for the one-time lifetime purchase.
	Recurring bool
}

// Prices returns the purchasable plans in display order.
func Prices() []Price {
	return []Price{
		{Tier: entitlements.TierMonthly, Amount: PriceMonthly, Currency: "USD", Recurring: true},
		{Tier: entitlements.TierAnnual, Amount: PriceAnnual, Currency: "USD", Recurring: true},
		{Tier: entitlements.TierLifetime, Amount: PriceLifetime, Currency: "USD", Recurring: false},
	}
}

// PriceFor returns the plan for a tier, or false for free/unknown tiers.
func PriceFor(tier entitlements.Tier) (Price, bool) {
	for _, p := range Prices() {
		if p.Tier == tier {
			return p, true
		}
	}
	return Price{}, false
}

// tierForAmount reverse-maps a charge amount onto a tier for provider
// events that omit plan metadata.
func tierForAmount(amount float64) entitlements.Tier {
	const epsilon = 0.005
	for _, p := range Prices() {
		if amount > p.Amount-epsilon && amount < p.Amount+epsilon {
			return p.Tier
		}
	}
	return entitlements.TierFree
}

func planDisplayName(tier entitlements.Tier) string {
	switch tier {
	case entitlements.TierMonthly:
		return "Monthly"
	case entitlements.TierAnnual:
		return "Annual"
	case entitlements.TierLifetime:
		return "Lifetime"
	default:
		return string(tier)
	}
}

// CheckoutSession is a started hosted-checkout flow. The user is
// redirected to RedirectURL; fulfillment happens via webhook only.
type CheckoutSession struct {
	Provider    string
	SessionID   string
	RedirectURL string
}

// CheckoutClient starts a hosted checkout for one plan with one provider.
type CheckoutClient interface {
	Provider() string
	CreateCheckout(ctx context.Context, user *models.User, price Price) (*CheckoutSession, error)
}

// CheckoutClientFor returns the configured client for a provider name.
func CheckoutClientFor(provider string) (CheckoutClient, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case models.ProviderStripe:
		return NewStripeClientFromEnv(), nil
	case models.ProviderPaypal:
		return NewPaypalClientFromEnv(), nil
	case models.ProviderCoinbase:
		return NewCoinbaseClientFromEnv(), nil
	default:
		return nil, ErrUnknownProvider
	}
}

// CancelClient stops provider-side billing for a subscription. The
// provider keeps the current period open; its cancellation webhook then
// lands as a same-state refresh.
type CancelClient interface {
	Provider() string
	CancelSubscription(ctx context.Context, providerSubscriptionID string) error
}

// CancelClientFor returns the configured cancel client for a provider.
func CancelClientFor(provider string) (CancelClient, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case models.ProviderStripe:
		return NewStripeClientFromEnv(), nil
	case models.ProviderPaypal:
		return NewPaypalClientFromEnv(), nil
	case models.ProviderCoinbase:
		// Coinbase only sells the one-time lifetime purchase; there is
		// no provider-side subscription to stop.
		return nil, ErrNotCancellable
	default:
		return nil, ErrUnknownProvider
	}
}

const (
	defaultStripeAPIBaseURL   = "https://api.stripe.com/v1"
	defaultPaypalAPIBaseURL   = "https://api-m.paypal.com"
	defaultCoinbaseAPIBaseURL = "https://api.commerce.coinbase.com"
)

// StripeClient creates hosted Checkout Sessions for card subscriptions.
type StripeClient struct {
	SecretKey  string
	APIBaseURL string
	SuccessURL string
	CancelURL  string

	HTTPClient *http.Client
}

func NewStripeClientFromEnv() *StripeClient {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	return &StripeClient{
		SecretKey:  strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		APIBaseURL: strings.TrimSpace(env.GetEnv("STRIPE_API_BASE_URL", defaultStripeAPIBaseURL)),
		SuccessURL: base + "/subscription/success",
		CancelURL:  base + "/pricing",
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *StripeClient) Provider() string { return models.ProviderStripe }

func (c *StripeClient) CreateCheckout(ctx context.Context, user *models.User, price Price) (*CheckoutSession, error) {
	if strings.TrimSpace(c.SecretKey) == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is not configured")
	}

	mode := "payment"
	if price.Recurring {
		mode = "subscription"
	}
	form := url.Values{}
	form.Set("mode", mode)
	form.Set("success_url", c.SuccessURL)
	form.Set("cancel_url", c.CancelURL)
	form.Set("customer_email", user.Email)
	form.Set("client_reference_id", fmt.Sprintf("%d", user.ID))
	form.Set("metadata[user_id]", fmt.Sprintf("%d", user.ID))
	form.Set("metadata[tier]", string(price.Tier))
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(price.Currency))
	form.Set("line_items[0][price_data][unit_amount]", fmt.Sprintf("%d", int64(price.Amount*100+0.5)))
	form.Set("line_items[0][price_data][product_data][name]", "HabitFlow "+planDisplayName(price.Tier))
	if price.Recurring {
		interval := "month"
		if price.Tier == entitlements.TierAnnual {
			interval = "year"
		}
		form.Set("line_items[0][price_data][recurring][interval]", interval)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.APIBaseURL, "/")+"/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.SecretKey, "")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("stripe checkout session failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.URL) == "" {
		return nil, errors.New("stripe checkout session returned empty url")
	}
	return &CheckoutSession{Provider: models.ProviderStripe, SessionID: out.ID, RedirectURL: out.URL}, nil
}

// CancelSubscription flags the Stripe subscription to end at the close
// of the current period instead of renewing.
func (c *StripeClient) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("STRIPE_SECRET_KEY is not configured")
	}

	form := url.Values{}
	form.Set("cancel_at_period_end", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.APIBaseURL, "/")+"/subscriptions/"+url.PathEscape(subscriptionID),
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.SecretKey, "")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("stripe subscription cancel failed: status=%d body=%s", resp.StatusCode, string(body))
	}
	return nil
}

// PaypalClient creates billing subscriptions pending buyer approval.
type PaypalClient struct {
	ClientID     string
	ClientSecret string
	APIBaseURL   string
	// Plan IDs are created once in the PayPal dashboard and referenced here.
	MonthlyPlanID string
	AnnualPlanID  string
	ReturnURL     string
	CancelURL     string

	HTTPClient *http.Client
}

func NewPaypalClientFromEnv() *PaypalClient {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	return &PaypalClient{
		ClientID:      strings.TrimSpace(env.GetEnv("PAYPAL_CLIENT_ID", "")),
		ClientSecret:  strings.TrimSpace(env.GetEnv("PAYPAL_CLIENT_SECRET", "")),
		APIBaseURL:    strings.TrimSpace(env.GetEnv("PAYPAL_API_BASE_URL", defaultPaypalAPIBaseURL)),
		MonthlyPlanID: strings.TrimSpace(env.GetEnv("PAYPAL_MONTHLY_PLAN_ID", "")),
		AnnualPlanID:  strings.TrimSpace(env.GetEnv("PAYPAL_ANNUAL_PLAN_ID", "")),
		ReturnURL:     base + "/subscription/success",
		CancelURL:     base + "/pricing",
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *PaypalClient) Provider() string { return models.ProviderPaypal }

func (c *PaypalClient) CreateCheckout(ctx context.Context, user *models.User, price Price) (*CheckoutSession, error) {
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.ClientSecret) == "" {
		return nil, errors.New("PAYPAL_CLIENT_ID/PAYPAL_CLIENT_SECRET are not configured")
	}
	if !price.Recurring {
		return nil, fmt.Errorf("paypal checkout supports recurring plans only, got %s", price.Tier)
	}
	planID := c.MonthlyPlanID
	if price.Tier == entitlements.TierAnnual {
		planID = c.AnnualPlanID
	}
	if planID == "" {
		return nil, fmt.Errorf("no PayPal plan configured for tier %s", price.Tier)
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"plan_id": planID,
		// custom_id travels into every webhook for this subscription.
		"custom_id": fmt.Sprintf("%d:%s", user.ID, price.Tier),
		"application_context": map[string]any{
			"brand_name": "HabitFlow",
			"return_url": c.ReturnURL,
			"cancel_url": c.CancelURL,
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.APIBaseURL, "/")+"/v1/billing/subscriptions", strings.NewReader(string(raw)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("paypal subscription create failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out struct {
		ID    string `json:"id"`
		Links []struct {
			Href string `json:"href"`
			Rel  string `json:"rel"`
		} `json:"links"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	for _, l := range out.Links {
		if l.Rel == "approve" && l.Href != "" {
			return &CheckoutSession{Provider: models.ProviderPaypal, SessionID: out.ID, RedirectURL: l.Href}, nil
		}
	}
	return nil, errors.New("paypal subscription create returned no approve link")
}

// CancelSubscription cancels the PayPal billing subscription. PayPal
// honours the already-paid period before stopping, and answers 204.
func (c *PaypalClient) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.ClientSecret) == "" {
		return errors.New("PAYPAL_CLIENT_ID/PAYPAL_CLIENT_SECRET are not configured")
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(map[string]string{"reason": "Cancelled by the user"})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.APIBaseURL, "/")+"/v1/billing/subscriptions/"+url.PathEscape(subscriptionID)+"/cancel",
		strings.NewReader(string(raw)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("paypal subscription cancel failed: status=%d body=%s", resp.StatusCode, string(body))
	}
	return nil
}

func (c *PaypalClient) accessToken(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.APIBaseURL, "/")+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.ClientID+":"+c.ClientSecret)))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("paypal token request failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return "", errors.New("paypal token request returned empty access_token")
	}
	return out.AccessToken, nil
}

// CoinbaseClient creates fixed-price Commerce charges for the one-time
// lifetime purchase.
type CoinbaseClient struct {
	APIKey     string
	APIBaseURL string
	RedirectTo string

	HTTPClient *http.Client
}

func NewCoinbaseClientFromEnv() *CoinbaseClient {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	return &CoinbaseClient{
		APIKey:     strings.TrimSpace(env.GetEnv("COINBASE_COMMERCE_API_KEY", "")),
		APIBaseURL: strings.TrimSpace(env.GetEnv("COINBASE_API_BASE_URL", defaultCoinbaseAPIBaseURL)),
		RedirectTo: base + "/subscription/success",
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *CoinbaseClient) Provider() string { return models.ProviderCoinbase }

func (c *CoinbaseClient) CreateCheckout(ctx context.Context, user *models.User, price Price) (*CheckoutSession, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, errors.New("COINBASE_COMMERCE_API_KEY is not configured")
	}
	if price.Recurring {
		return nil, fmt.Errorf("coinbase checkout supports one-time purchases only, got %s", price.Tier)
	}

	payload := map[string]any{
		"name":         "HabitFlow Lifetime",
		"description":  "Lifetime access to unlimited habits",
		"pricing_type": "fixed_price",
		"local_price": map[string]string{
			"amount":   fmt.Sprintf("%.2f", price.Amount),
			"currency": price.Currency,
		},
		"metadata": map[string]string{
			"user_id": fmt.Sprintf("%d", user.ID),
			"tier":    string(price.Tier),
		},
		"redirect_url": c.RedirectTo,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.APIBaseURL, "/")+"/charges", strings.NewReader(string(raw)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CC-Api-Key", c.APIKey)
	req.Header.Set("X-CC-Version", "2018-03-22")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("coinbase charge create failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out struct {
		Data struct {
			Code      string `json:"code"`
			HostedURL string `json:"hosted_url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Data.HostedURL) == "" {
		return nil, errors.New("coinbase charge create returned empty hosted_url")
	}
	return &CheckoutSession{Provider: models.ProviderCoinbase, SessionID: out.Data.Code, RedirectURL: out.Data.HostedURL}, nil
}
