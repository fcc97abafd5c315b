package plan

import (
	"github.com/listingcraft/listingcraft/internal/plan/repository"
	"github.com/listingcraft/listingcraft/internal/plan/service"
	"go.uber.org/fx"
)

var Module = fx.Module("plan.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
