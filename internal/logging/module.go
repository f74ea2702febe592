package logging

import (
	"context"
	"os"

	"pos_data_layer/internal/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module decorates the application logger. It is a plain option group, not
// an fx.Module, so the decoration reaches every other module.
func Module() fx.Option {
	return fx.Options(
		fx.Provide(func(cfg config.Config) (*os.File, error) {
			return OpenLogFile(cfg.LogFile)
		}),
		fx.Decorate(func(base *zap.Logger, cfg config.Config, file *os.File) *zap.Logger {
			return Configure(base, file, cfg.Debug)
		}),
		fx.Invoke(func(lc fx.Lifecycle, file *os.File, logger *zap.Logger) {
			if file == nil {
				return
			}
			lc.Append(fx.Hook{
				OnStop: func(_ context.Context) error {
					_ = logger.Sync()
					return file.Close()
				},
			})
		}),
	)
}
