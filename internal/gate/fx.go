package gate

import (
	"github.com/listingcraft/listingcraft/internal/gate/service"
	"go.uber.org/fx"
)

var Module = fx.Module("gate.service",
	fx.Provide(service.NewService),
)
