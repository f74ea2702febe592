package llm

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Module(
		"llm",
		fx.Decorate(func(logger *zap.Logger) *zap.Logger {
			return logger.Named("llm")
		}),
		fx.Provide(NewClient),
		fx.Invoke(func(lc fx.Lifecycle, c *Client, logger *zap.Logger) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					if c.Enabled() {
						logger.Info("assistant enabled", zap.String("model", c.Model()))
					}
					return nil
				},
			})
		}),
	)
}
