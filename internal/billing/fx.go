package billing

import (
	"time"

	stripeadapter "github.com/listingcraft/listingcraft/internal/billing/adapters/stripe"
	billingdomain "github.com/listingcraft/listingcraft/internal/billing/domain"
	"github.com/listingcraft/listingcraft/internal/billing/repository"
	"github.com/listingcraft/listingcraft/internal/billing/service"
	"github.com/listingcraft/listingcraft/internal/clock"
	"github.com/listingcraft/listingcraft/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(
		repository.Provide,
		service.NewService,
		newWebhookAdapter,
	),
)

func newWebhookAdapter(cfg config.Config, clk clock.Clock) billingdomain.WebhookAdapter {
	tolerance := time.Duration(cfg.WebhookClockTolerance) * time.Second
	return stripeadapter.NewAdapter(cfg.BillingWebhookSecret, tolerance, clk)
}
