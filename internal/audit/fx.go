package audit

import (
	"github.com/listingcraft/listingcraft/internal/audit/repository"
	"github.com/listingcraft/listingcraft/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
