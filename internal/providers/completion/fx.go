package completion

import (
	"github.com/listingcraft/listingcraft/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.completion",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config) Provider {
	return NewDeepSeek(cfg.CompletionBaseURL, cfg.CompletionAPIKey, cfg.CompletionModel)
}
