// Package stripeclient implements the reconciler's processor calls on top of
// stripe-go.
package stripeclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"cleanhub/internal/modules/payment"
)

// PlanMetadataKey tags processor products with the local plan id.
const PlanMetadataKey = "plan_id"

var ErrNotConfigured = errors.New("stripe secret key is not configured")

type Client struct {
	api      *client.API
	currency string
	loggerf  func(format string, args ...interface{})
}

type Config struct {
	SecretKey string
	Currency  string
	// APIBaseURL points the client at stripe-mock or a test server.
	APIBaseURL string
}

func New(cfg Config, loggerf func(format string, args ...interface{})) (*Client, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, ErrNotConfigured
	}
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	currency := cfg.Currency
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}

	var backends *stripe.Backends
	if cfg.APIBaseURL != "" {
		backends = &stripe.Backends{
			API: stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
				URL:               stripe.String(cfg.APIBaseURL),
				MaxNetworkRetries: stripe.Int64(0),
			}),
		}
	}
	api := &client.API{}
	api.Init(cfg.SecretKey, backends)
	return &Client{api: api, currency: strings.ToLower(currency), loggerf: loggerf}, nil
}

func (c *Client) GetSubscription(ctx context.Context, id string) (*payment.ProcessorSubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := c.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("get subscription %s: %w", id, err)
	}
	return toProcessorSubscription(sub), nil
}

// FindProductByPlan searches products by the plan id metadata tag.
func (c *Client) FindProductByPlan(ctx context.Context, planID string) (string, error) {
	params := &stripe.ProductSearchParams{}
	params.Context = ctx
	params.Query = fmt.Sprintf("metadata['%s']:'%s'", PlanMetadataKey, escapeQuery(planID))

	iter := c.api.Products.Search(params)
	for iter.Next() {
		p := iter.Product()
		if p != nil && p.Active {
			return p.ID, nil
		}
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("search products for plan %s: %w", planID, err)
	}
	return "", nil
}

func (c *Client) CreateProduct(ctx context.Context, planID, name string) (string, error) {
	params := &stripe.ProductParams{Name: stripe.String(name)}
	params.Context = ctx
	params.AddMetadata(PlanMetadataKey, planID)
	// Concurrent creations for the same plan collapse on the processor side.
	params.SetIdempotencyKey("product-plan-" + planID)

	p, err := c.api.Products.New(params)
	if err != nil {
		return "", fmt.Errorf("create product for plan %s: %w", planID, err)
	}
	c.loggerf("level=info msg=stripe product created product_id=%s plan_id=%s", p.ID, planID)
	return p.ID, nil
}

func (c *Client) CreateMonthlyPrice(ctx context.Context, productID string, amount decimal.Decimal) (string, error) {
	params := &stripe.PriceParams{
		Currency:   stripe.String(c.currency),
		Product:    stripe.String(productID),
		UnitAmount: stripe.Int64(toMinorUnits(amount)),
		Recurring: &stripe.PriceRecurringParams{
			Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
		},
	}
	params.Context = ctx

	price, err := c.api.Prices.New(params)
	if err != nil {
		return "", fmt.Errorf("create price for product %s: %w", productID, err)
	}
	return price.ID, nil
}

// SwapPrice replaces the price on the subscription's first item. Proration
// is disabled because the difference was already charged.
func (c *Client) SwapPrice(ctx context.Context, subscriptionID, priceID string) (*payment.ProcessorSubscription, error) {
	current, err := c.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if current.ItemID == "" {
		return nil, fmt.Errorf("subscription %s has no items", subscriptionID)
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{{
			ID:    stripe.String(current.ItemID),
			Price: stripe.String(priceID),
		}},
		ProrationBehavior: stripe.String("none"),
	}
	params.Context = ctx

	sub, err := c.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("update subscription %s: %w", subscriptionID, err)
	}
	c.loggerf("level=info msg=stripe subscription price swapped subscription_id=%s price_id=%s", subscriptionID, priceID)
	return toProcessorSubscription(sub), nil
}

func toProcessorSubscription(sub *stripe.Subscription) *payment.ProcessorSubscription {
	out := &payment.ProcessorSubscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		out.ItemID = item.ID
		out.PeriodStart = unixTime(item.CurrentPeriodStart)
		out.PeriodEnd = unixTime(item.CurrentPeriodEnd)
	}
	return out
}

func unixTime(v int64) *time.Time {
	if v == 0 {
		return nil
	}
	t := time.Unix(v, 0).UTC()
	return &t
}

// toMinorUnits converts to cents; config admits only two-decimal currencies.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func escapeQuery(v string) string {
	return strings.ReplaceAll(v, "'", "\\'")
}

var _ payment.Processor = (*Client)(nil)
