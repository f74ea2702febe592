package supabase

import (
	"context"

	"pos_data_layer/internal/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Module(
		"supabase",
		fx.Provide(func(cfg config.Config, logger *zap.Logger) *Provider {
			return NewProvider(cfg, logger)
		}),
		fx.Invoke(func(lc fx.Lifecycle, p *Provider) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					// Failure leaves StateFailed; facade calls report it.
					_, _ = p.Initialize(ctx)
					return nil
				},
				OnStop: func(_ context.Context) error {
					return p.Close()
				},
			})
		}),
	)
}
