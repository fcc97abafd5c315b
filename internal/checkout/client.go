package checkout

import (
	checkoutdomain "github.com/listingcraft/listingcraft/internal/checkout/domain"
	"github.com/listingcraft/listingcraft/internal/config"
	stripe "github.com/stripe/stripe-go/v76"
	portalsession "github.com/stripe/stripe-go/v76/billingportal/session"
	"github.com/stripe/stripe-go/v76/checkout/session"
	stripesub "github.com/stripe/stripe-go/v76/subscription"
)

// stripeClient is the live processor client; it is absent (nil) when no API
// key is configured and the checkout surface reports itself unconfigured.
type stripeClient struct{}

func newClientFromConfig(cfg config.Config) checkoutdomain.ProcessorClient {
	if cfg.BillingAPIKey == "" {
		return nil
	}
	stripe.Key = cfg.BillingAPIKey
	return &stripeClient{}
}

func (c *stripeClient) NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return session.New(params)
}

func (c *stripeClient) NewPortalSession(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
	return portalsession.New(params)
}

func (c *stripeClient) UpdateSubscription(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	return stripesub.Update(id, params)
}
