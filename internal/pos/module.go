package pos

import (
	"pos_data_layer/internal/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Module(
		"pos",
		fx.Provide(func(source ClientSource, cfg config.Config, logger *zap.Logger) *Service {
			return NewService(source, cfg, logger)
		}),
	)
}
