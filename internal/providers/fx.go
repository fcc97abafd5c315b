package providers

import (
	"github.com/listingcraft/listingcraft/internal/providers/completion"
	"github.com/listingcraft/listingcraft/internal/providers/email"
	"github.com/listingcraft/listingcraft/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	completion.Module,
	email.Module,
	pdf.Module,
)
