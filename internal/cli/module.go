package cli

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Module(
		"cli",
		fx.Decorate(func(logger *zap.Logger) *zap.Logger {
			return logger.Named("cli")
		}),
		fx.Provide(NewRunner),
	)
}
