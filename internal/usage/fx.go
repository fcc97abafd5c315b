package usage

import (
	"github.com/listingcraft/listingcraft/internal/usage/repository"
	"github.com/listingcraft/listingcraft/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
