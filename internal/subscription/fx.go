package subscription

import (
	"github.com/listingcraft/listingcraft/internal/subscription/repository"
	"github.com/listingcraft/listingcraft/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
