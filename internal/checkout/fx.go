package checkout

import (
	"github.com/listingcraft/listingcraft/internal/checkout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("checkout.service",
	fx.Provide(
		newClientFromConfig,
		service.NewService,
	),
)
