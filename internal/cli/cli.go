package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"pos_data_layer/internal/llm"
	"pos_data_layer/internal/pos"

	"go.uber.org/zap"
)

// ErrCommandFailed is returned when the facade answered with a failure
// envelope. The envelope itself has already been written.
var ErrCommandFailed = errors.New("command failed")

type Runner struct {
	options   Options
	service   *pos.Service
	llmClient *llm.Client
	in        io.Reader
	out       io.Writer
	logger    *zap.Logger
}

func NewRunner(opts Options, service *pos.Service, llmClient *llm.Client, logger *zap.Logger) *Runner {
	return &Runner{
		options:   opts,
		service:   service,
		llmClient: llmClient,
		in:        os.Stdin,
		out:       os.Stdout,
		logger:    logger,
	}
}

// Execute runs the command chosen on the command line until it finishes or
// the process receives SIGINT/SIGTERM.
func (r *Runner) Execute(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	return r.run(ctx, r.options.Command, r.options.Args)
}

func (r *Runner) run(ctx context.Context, name string, args []string) error {
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}

	r.logger.Debug("command", zap.String("name", name), zap.Strings("args", args))
	return cmd.run(r, ctx, args)
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
