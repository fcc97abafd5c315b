package listing

import (
	"github.com/listingcraft/listingcraft/internal/listing/repository"
	"github.com/listingcraft/listingcraft/internal/listing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("listing.service",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
