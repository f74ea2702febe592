package internal

import (
	"context"
	"errors"
	"flag"
	"os"

	"pos_data_layer/internal/cli"
	"pos_data_layer/internal/config"
	"pos_data_layer/internal/llm"
	"pos_data_layer/internal/logging"
	"pos_data_layer/internal/pos"
	"pos_data_layer/internal/supabase"

	"github.com/go-core-fx/logger"
	"go.uber.org/fx"
)

// ErrCommandFailed is returned when the command printed a failure envelope.
var ErrCommandFailed = cli.ErrCommandFailed

func Run() error {
	opts, err := cli.ParseArgs(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	var runner *cli.Runner

	app := fx.New(
		logger.Module(),
		logger.WithFxDefaultLogger(),
		config.Module(),
		fx.Supply(opts),
		fx.Decorate(func(cfg config.Config, opts cli.Options) config.Config {
			return opts.Apply(cfg)
		}),
		logging.Module(),
		supabase.Module(),
		fx.Provide(func(p *supabase.Provider) pos.ClientSource { return p }),
		pos.Module(),
		llm.Module(),
		cli.Module(),
		fx.Populate(&runner),
	)

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		_ = app.Stop(ctx)
	}()

	return runner.Execute(ctx)
}
